package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/internal/app"
	"github.com/tigerroll/loancob/internal/domain/entity"
)

func lockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock <account-id>",
		Short: "Place a soft lock on an account for the COB date",
		Long: `Place a lock on an account so close of business leaves it alone.

An existing lock on the account is replaced.

Examples:
  loancob lock 42 --message "manual review"
  loancob lock 42 --owner LOAN_COB_CHUNK_PROCESSING`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid account id '%s'", args[0])
			}
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			owner, err := parseLockOwner(v.GetString(flagOwner))
			if err != nil {
				return err
			}
			message := v.GetString(flagMessage)

			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				if err := c.Locks.PlaceSoftLock(ctx, id, owner, message); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "account %d locked by %s\n", id, owner)
				return nil
			})
		},
	}
	cmd.Flags().String(flagOwner, string(entity.LockOwnerInlineProcessing), "lock owner")
	cmd.Flags().String(flagMessage, "", "error message stored on the lock")
	return cmd
}
