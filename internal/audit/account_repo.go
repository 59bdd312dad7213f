package audit

import (
	"context"
	"database/sql"
	"strings"

	"github.com/MikroWizard/mikroman/internal/models"
)

// AccountRepo persists config-change accounting entries parsed from syslog.
// Rows are immutable once written.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Add records one config change. ctype/address/config default to "unknown"
// when the line did not carry them.
func (r *AccountRepo) Add(ctx context.Context, e models.AccountingEntry) error {
	if e.CType == "" {
		e.CType = "unknown"
	}
	if e.Address == "" {
		e.Address = "unknown"
	}
	if e.Config == "" {
		e.Config = "unknown"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO account (devid, section, action, username, message, ctype, address, config)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.DeviceID, strings.TrimSpace(e.Section), strings.TrimSpace(e.Action),
		strings.TrimSpace(e.Username), strings.TrimSpace(e.Message),
		strings.TrimSpace(e.CType), strings.TrimSpace(e.Address), strings.TrimSpace(e.Config))
	return err
}

// List returns recent accounting entries, newest first.
func (r *AccountRepo) List(ctx context.Context, limit, offset int) ([]models.AccountingEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(devid,0), COALESCE(username,''), COALESCE(action,''),
			COALESCE(section,''), COALESCE(message,''), COALESCE(config,''),
			COALESCE(ctype,''), COALESCE(address,''), created
		 FROM account ORDER BY created DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AccountingEntry
	for rows.Next() {
		var e models.AccountingEntry
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Username, &e.Action,
			&e.Section, &e.Message, &e.Config, &e.CType, &e.Address, &e.Created); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
