package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/auditq/internal/config"
	"github.com/ziadkadry99/auditq/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations",
	Long:  `Runs the embedded migrations against the configured PostgreSQL DSN. SQLite databases create their schema on open and need no migration.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		down, _ := cmd.Flags().GetBool("down")
		versionOnly, _ := cmd.Flags().GetBool("version")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return fmt.Errorf("migrate only applies to database.driver %q (configured: %q)", config.DriverPostgres, cfg.Database.Driver)
		}

		direction := db.MigrateUp
		switch {
		case down && versionOnly:
			return fmt.Errorf("--down and --version are mutually exclusive")
		case down:
			direction = db.MigrateDown
		case versionOnly:
			direction = db.MigrateVersion
		}

		status, err := db.Migrate(cfg.Database.DSN, direction)
		if err != nil {
			return err
		}

		dirty := ""
		if status.Dirty {
			dirty = " (dirty)"
		}
		fmt.Printf("Schema version %d%s\n", status.Version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("up", true, "apply all pending migrations")
	migrateCmd.Flags().Bool("down", false, "roll back all migrations")
	migrateCmd.Flags().Bool("version", false, "print the current schema version only")
	rootCmd.AddCommand(migrateCmd)
}
