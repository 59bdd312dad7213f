package root

import (
	"database/sql"

	"github.com/MikroWizard/mikroman/internal/config"
	"github.com/MikroWizard/mikroman/internal/db"
)

// ConnectDB opens the database the daemons write to, from the same
// environment variables they read.
func ConnectDB() (*sql.DB, error) {
	cfg := config.Load()
	return db.Connect(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPass)
}
