package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/internal/app"
)

func catchUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catch-up",
		Short: "Close every business date missed since the oldest closed loan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			jobType := v.GetString(flagJobType)

			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				executions, err := c.CatchUp.Run(ctx, jobType)
				for _, execution := range executions {
					printExecution(cmd.OutOrStdout(), execution)
				}
				return err
			})
		},
	}
	cmd.Flags().String(flagJobType, "", "business step set to run (default: the configured job name)")
	return cmd
}
