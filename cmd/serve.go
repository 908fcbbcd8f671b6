package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/streetview-harvester/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and progress over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			srv := api.NewServer(a.Store(), a.Clock(), a.Logger().Named("api"))
			return srv.ListenAndServe(cmd.Context(), a.Config().Server.Port)
		},
	}
}
