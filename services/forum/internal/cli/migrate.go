package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/example/acadmate/internal/platform/db"
	"github.com/example/acadmate/services/forum/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the forum schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if databaseURL == "" {
			return errors.New("database url is required (--database-url or DATABASE_URL)")
		}
		if err := db.MigrateUp(databaseURL, migrations.FS, newLogger()); err != nil {
			return err
		}
		cmd.Println("Migrations applied.")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if databaseURL == "" {
			return errors.New("database url is required (--database-url or DATABASE_URL)")
		}
		if err := db.MigrateDown(databaseURL, migrations.FS); err != nil {
			return err
		}
		cmd.Println("Rolled back one migration.")
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
