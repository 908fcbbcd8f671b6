package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/JakeFAU/streetview-harvester/internal/report"
)

func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

func newReportCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print harvest progress and the projected panorama total",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			rep, err := report.Build(cmd.Context(), a.Store(), a.Clock().Now(), true)
			if err != nil {
				return err
			}
			if asJSON {
				return report.RenderJSON(cmd.OutOrStdout(), rep)
			}
			return report.Render(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	return cmd
}
