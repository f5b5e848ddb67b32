package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/internal/app"
)

func inlineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inline <account-id>...",
		Short: "Close the given accounts right away, outside the batch job",
		Long: `Close the given accounts up to the COB date under an inline lock.

The command refuses to start when any account is locked by a running batch. Accounts that
fail keep their lock with the error recorded.

Examples:
  loancob inline 42
  loancob inline 42 43 44
  loancob inline 42,43,44`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseAccountIDs(args)
			if err != nil {
				return err
			}
			v, err := newViper(cmd)
			if err != nil {
				return err
			}

			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				result, err := c.Inline.Run(ctx, ids)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "closed: %v\n", result.Processed)
				if len(result.Failed) == 0 {
					return nil
				}
				failed := make([]int64, 0, len(result.Failed))
				for id := range result.Failed {
					failed = append(failed, id)
				}
				sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
				for _, id := range failed {
					fmt.Fprintf(out, "failed: %d: %v\n", id, result.Failed[id])
				}
				return fmt.Errorf("%d of %d accounts failed and stay locked", len(failed), len(ids))
			})
		},
	}
}
