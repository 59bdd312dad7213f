package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikroWizard/mikroman/cmd/mikroctl/root"
	"github.com/MikroWizard/mikroman/internal/config"
	"github.com/MikroWizard/mikroman/internal/db"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  runMigrate,
	}
	root.GetRoot().AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	url := db.URL(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
	if err := db.Run(url); err != nil {
		return err
	}
	fmt.Println("Database is up to date.")
	return nil
}
