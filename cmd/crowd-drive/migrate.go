package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/crowd-drive/internal/runlog"
)

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run log database schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initLogging(v, cmd.ErrOrStderr()); err != nil {
				return err
			}
			mustBind(v, cmd.Flags(), map[string]string{"db": "db"})
			return nil
		},
	}
	cmd.PersistentFlags().String("db", "runs.db", "run log sqlite database")

	withDB := func(fn func(cmd *cobra.Command, db *runlog.DB, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := runlog.OpenNoMigrate(v.GetString("db"))
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd, db, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *runlog.DB, _ []string) error {
				if err := db.MigrateUp(); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, db *runlog.DB, _ []string) error {
				if err := db.MigrateDown(); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, db *runlog.DB, args []string) error {
				target, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("version %q: %w", args[0], err)
				}
				if err := db.MigrateTo(uint(target)); err != nil {
					return err
				}
				return printVersion(cmd, db)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current and latest schema versions",
			Args:  cobra.NoArgs,
			RunE:  withDB(func(cmd *cobra.Command, db *runlog.DB, _ []string) error { return printVersion(cmd, db) }),
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, db *runlog.DB) error {
	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := runlog.LatestVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d (%s)\n", v, latest, state)
	return nil
}
