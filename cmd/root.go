// Package cmd defines and implements the CLI commands for the chunkgen executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/app"
	"github.com/JakeFAU/chunkgen/internal/config"
	"github.com/JakeFAU/chunkgen/internal/logging"
	"github.com/JakeFAU/chunkgen/internal/report"
	pkgconfig "github.com/JakeFAU/chunkgen/pkg/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the slice of *app.App that commands use. Tests swap in fakes.
type App interface {
	Generate(ctx context.Context, req app.GenerateRequest, out report.Sink) error
	Serve(ctx context.Context) error
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		logDev  bool
	)
	cmd := &cobra.Command{
		Use:   "chunkgen",
		Short: "Pre-generates grid cells in bounded batches.",
		Long: `chunkgen populates every cell of a rectangular region against a backend
that can only handle a few outstanding requests at a time. Failed cells are
retried once and progress is reported as the region fills in.`,
		SilenceErrors: true,

		// Loads configuration and builds the application before the
		// subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := pkgconfig.InitConfig(cfgFile); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg, err := config.Decode(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.InitLogger(cfg.Logging.Development || logDev)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Flushes sinks and releases services once the subcommand returns.
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
			defer cancel()
			if err := appInstance.Close(ctx); err != nil {
				appInstance.Logger().Warn("shutdown incomplete", zap.Error(err))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./chunkgen.yaml and $HOME/.chunkgen)")
	cmd.PersistentFlags().BoolVar(&logDev, "log-dev", false, "use the human-readable development logger")

	cmd.AddCommand(newGenerateCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop already ran
	}
}
