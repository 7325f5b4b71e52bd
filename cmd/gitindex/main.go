package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomantics/gitindex/config"
	"github.com/gomantics/gitindex/db"
	"github.com/gomantics/gitindex/domains/indexing"
	"github.com/gomantics/gitindex/pkg/logger"
	"github.com/gomantics/gitindex/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const stopTimeout = 30 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "gitindex",
	Short:         "gitindex keeps a key-value index of a fleet of bare git repositories",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single index update and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		return runOnce(cmd.Context(), cfg)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Update the index periodically until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		fx.New(
			options(cfg),
			fx.Invoke(indexing.StartWorker),
		).Run()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (toml, yaml or json)")

	flags := rootCmd.PersistentFlags()
	flags.String("scan-path", "", "directory holding the bare repositories")
	flags.String("projects-list", "", "file listing repository paths relative to the scan path, one per line")
	flags.String("db-path", config.DefaultDatabasePath, "index store directory")
	flags.String("metrics-textfile", "", "write run metrics to this file for the node exporter")
	flags.String("env", config.EnvironmentProd, "environment: dev or prod")

	serveCmd.Flags().Duration("refresh-interval", config.DefaultRefreshInterval, "time between index updates")

	rootCmd.AddCommand(runCmd, serveCmd)
}

// options wires the application graph shared by all commands
func options(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			logger.New,
			db.New,
			metrics.New,
			indexing.NewOrchestrator,
			indexing.NewWorker,
		),
		fx.Decorate(func(l *zap.Logger) *zap.Logger {
			return l.With(zap.String("service", "gitindex"))
		}),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{
				Logger: l,
			}
		}),
	)
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	var worker *indexing.Worker

	app := fx.New(
		options(cfg),
		fx.Populate(&worker),
	)

	startCtx, cancel := context.WithTimeout(ctx, fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	worker.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return app.Stop(stopCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
