package main

import (
	login "github.com/goliatone/go-login"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/migrate"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var quick bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, root.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if quick {
				return login.CreateSchema(ctx, a.db)
			}

			fsys, err := login.DialectMigrations(a.cfg.Database.Driver)
			if err != nil {
				return err
			}

			migrations := migrate.NewMigrations()
			if err := migrations.Discover(fsys); err != nil {
				return err
			}

			migrator := migrate.NewMigrator(a.db, migrations)
			if err := migrator.Init(ctx); err != nil {
				return err
			}

			group, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}

			if group.IsZero() {
				a.logger.Info("schema up to date", "driver", a.cfg.Database.Driver)
				return nil
			}

			a.logger.Info("schema migrated", "driver", a.cfg.Database.Driver, "group", group.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&quick, "create-only", false, "Create the users table from the model, skipping SQL migrations")

	return cmd
}
