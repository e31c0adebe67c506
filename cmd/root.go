package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/app"
	"github.com/JakeFAU/festival-crawler/internal/config"
	"github.com/JakeFAU/festival-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can swap in a
// container built around fakes.
var newApp = app.Build

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "festcrawl",
		Short: "A resumable crawler for film festival submission deadlines.",
		Long: `festcrawl walks film festival listing sites in checkpointed batches,
extracting festival names and submission deadlines into a JSONL log.
A crawl can be stopped at any batch boundary and resumed later from the
saved state file.`,
		SilenceUsage: true,

		// Config is resolved here so every subcommand sees the same flags,
		// file and environment precedence.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        cfg.Logging.File,
				MaxSizeMB:   cfg.Logging.MaxSizeMB,
				MaxBackups:  cfg.Logging.MaxBackups,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				if err := appInstance.Close(context.WithoutCancel(cmd.Context())); err != nil {
					zap.L().Warn("application shutdown incomplete", zap.Error(err))
				}
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("seeds", "seeds.txt", "file with one seed URL per line")
	flags.String("state", "state.json", "crawl checkpoint file")
	flags.String("output", "data.jsonl", "festival record log; errors go to <output>.errors.jsonl")
	flags.Int("max-depth", 3, "entries at or beyond this depth are discarded")
	flags.Int("batch-size", 10, "frontier entries fetched per batch")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newSmokeCmd())

	return cmd
}

// Execute is the main entry point. SIGINT and SIGTERM stop a crawl at the
// next batch boundary.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Fatal("Command execution failed", zap.Error(err))
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
