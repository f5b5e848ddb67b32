package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/internal/app"
)

func businessDateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "business-date",
		Short: "Show or set the business and COB dates",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current business date and the COB date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				current, err := c.Dates.CurrentBusinessDate(ctx)
				if err != nil {
					return err
				}
				cobDate, err := c.Dates.COBDate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "business date: %s\ncob date:      %s\n",
					current.Format(dateLayout), cobDate.Format(dateLayout))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <BUSINESS|COB> <YYYY-MM-DD>",
		Short: "Store a business or COB date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dateType, err := parseBusinessDateType(args[0])
			if err != nil {
				return err
			}
			date, err := parseDate(args[1])
			if err != nil {
				return err
			}
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				return c.BusinessDates.Save(ctx, dateType, date)
			})
		},
	})
	return cmd
}
