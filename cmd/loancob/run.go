package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/internal/app"
	"github.com/tigerroll/loancob/internal/cob"
	model "github.com/tigerroll/loancob/pkg/batch/core/domain/model"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run close of business for the COB date",
		Long: `Run close of business for every eligible loan account.

Without --date the COB date is taken from the business_dates table, falling back to the day
before today in the configured timezone.

Examples:
  loancob run
  loancob run --date 2026-05-10
  loancob run --catch-up --date 2026-05-08`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			jobType := v.GetString(flagJobType)
			catchUp := v.GetBool(flagCatchUp)
			date := v.GetString(flagDate)

			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				var (
					execution *model.JobExecution
					err       error
				)
				if date == "" {
					execution, err = c.COB.RunCOB(ctx, jobType, catchUp)
				} else {
					businessDate, parseErr := parseDate(date)
					if parseErr != nil {
						return parseErr
					}
					execution, err = c.COB.RunCOBForDate(ctx, jobType, businessDate, catchUp)
				}
				if err != nil {
					return err
				}
				printExecution(cmd.OutOrStdout(), execution)
				return executionError(execution)
			})
		},
	}

	cmd.Flags().String(flagJobType, "", "business step set to run (default: the configured job name)")
	cmd.Flags().String(flagDate, "", "COB date to close, YYYY-MM-DD")
	cmd.Flags().Bool(flagCatchUp, false, "only visit accounts closed exactly one day before the date")
	return cmd
}

func printExecution(w io.Writer, execution *model.JobExecution) {
	date, _ := execution.Parameters.GetString(cob.ParamBusinessDate)
	fmt.Fprintf(w, "%s %s [%s] %s\n", execution.JobName, date, execution.ID, execution.CurrentStatus())
	for _, se := range execution.Steps() {
		counts := se.Counts()
		fmt.Fprintf(w, "  %-24s %-10s read=%d write=%d skip=%d\n", se.StepName, se.Status,
			counts.Read, counts.Write, counts.SkipRead+counts.SkipProcess+counts.SkipWrite)
	}
}
