package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/loancob/internal/app"
	"github.com/tigerroll/loancob/internal/migrations"
	"github.com/tigerroll/loancob/pkg/batch/component/tasklet/migration"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply, roll back or show the database schema",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			v, err := newViper(cmd)
			if err != nil {
				return err
			}

			return app.RunApplication(cmd.Context(), appOptions(v), func(ctx context.Context, c app.Components) error {
				dir := migrations.Dir(c.DB.Dialector.Name())
				switch command {
				case "up":
					return c.Migrator.Up(ctx, migrations.FS, dir, migration.AppMigrationsTable)
				case "down":
					return c.Migrator.Down(ctx, migrations.FS, dir, migration.AppMigrationsTable)
				case "version":
					version, dirty, err := c.Migrator.Version(migrations.FS, dir, migration.AppMigrationsTable)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
					return nil
				default:
					return fmt.Errorf("unknown migrate command '%s'", command)
				}
			})
		},
	}
}
