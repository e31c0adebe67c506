package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/festival-crawler/internal/scheduler"
)

// newRunCmd creates the 'run' subcommand, which processes one batch by
// default or keeps going until the frontier drains with --continuous.
func newRunCmd() *cobra.Command {
	var continuous bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs crawl batches against the saved checkpoint",
		Long: `Loads the checkpoint (seeding the frontier from the seeds file when it
is empty) and processes one batch. With --continuous, batches repeat until
the frontier is exhausted or the process is interrupted. Interrupts are
honored between batches, so the checkpoint always reflects whole batches.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, continuous)
		},
	}
	cmd.Flags().BoolVar(&continuous, "continuous", false, "keep running batches until the frontier is empty")
	cmd.Flags().String("addr", "", "listen address for the status server (empty disables it)")
	return cmd
}

func runCrawl(cmd *cobra.Command, continuous bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	serveErr := make(chan error, 1)
	if addr := appInstance.Config().Server.Addr; addr != "" {
		go func() {
			serveErr <- appInstance.Server().Serve(ctx, addr)
		}()
	} else {
		close(serveErr)
	}

	summary, runErr := appInstance.Runner().Run(ctx, scheduler.RunOptions{Continuous: continuous})

	cancel()
	if err := <-serveErr; err != nil {
		logger.Warn("status server stopped with error", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawler: %w", runErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"batches=%d processed=%d festivals=%d errors=%d frontier=%d\n",
		summary.Batches, summary.Processed, summary.Festivals, summary.Errors, summary.FrontierRemaining)
	logger.Info("Run command finished.")
	return nil
}
