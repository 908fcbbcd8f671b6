// Package cmd defines the harvester CLI: sample, search, enrich, report and serve.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/streetview-harvester/internal/app"
	"github.com/JakeFAU/streetview-harvester/internal/config"
	"github.com/JakeFAU/streetview-harvester/internal/logging"
)

const closeTimeout = 15 * time.Second

// flagKeyPrefix marks command annotations that bind a flag to a config key.
const flagKeyPrefix = "config-key:"

type appKeyType struct{}

// newApp is the application factory. It is a variable so tests can pass
// extra options such as an isolated Prometheus registry.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// session owns what PersistentPreRunE builds so it can be released even when
// a command fails.
type session struct {
	app    *app.App
	logger *zap.Logger
}

func (s *session) close() error {
	var err error
	if s.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		err = s.app.Close(ctx)
		s.app = nil
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	return err
}

func newRootCmd(s *session) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvests Street View panorama metadata across administrative zones.",
		Long: `harvester seeds a lattice of sample points inside zone boundaries, searches
each point for nearby panoramas, enriches discovered panoramas with capture
date and copyright, and reports progress. Every pass is resumable: state lives
in the task store and interrupted work is picked up by the next run.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := config.NewViper()
			if err := bindFlags(v, cmd); err != nil {
				return err
			}
			cfg, err := config.LoadFromViper(v, cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			s.logger = logger
			zap.ReplaceGlobals(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			s.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(
		newSampleCmd(),
		newSearchCmd(),
		newEnrichCmd(),
		newReportCmd(),
		newServeCmd(),
	)
	return cmd
}

// bindFlag records that flag overrides key when set.
func bindFlag(cmd *cobra.Command, flag, key string) {
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	cmd.Annotations[flagKeyPrefix+flag] = key
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := cmd.Annotations[flagKeyPrefix+f.Name]
		if !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func appFrom(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// run executes the CLI with args and releases everything it opened.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s := &session{}
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := s.close(); cerr != nil {
		fmt.Fprintf(stderr, "Error: shutdown: %v\n", cerr)
		err = errors.Join(err, cerr)
	}
	return err
}

// Execute runs the CLI against os.Args and returns the process exit code.
// SIGINT and SIGTERM cancel the running pass.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		return 1
	}
	return 0
}
