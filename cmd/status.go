package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the 'status' subcommand, which summarizes the saved
// checkpoint without fetching anything.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints a summary of the saved checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			state, err := appInstance.Store().Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load checkpoint: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "visited=%d frontier=%d festivals=%d errors=%d\n",
				len(state.Visited), len(state.Frontier), state.FestivalCount, state.ErrorCount)
			if len(state.Frontier) > 0 {
				next := state.Frontier[0]
				fmt.Fprintf(out, "next=%s depth=%d\n", next.URL, next.Depth)
			}
			return nil
		},
	}
}
