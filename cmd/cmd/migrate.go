package cmd

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	_ "github.com/lib/pq"

	"curator/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "migrate-status",
	Short: "Show applied/pending migration status",
	RunE:  runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateStatusCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return persistence.Migrate(db)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return persistence.MigrationStatus(db)
}
