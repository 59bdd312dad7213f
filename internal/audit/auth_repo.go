package audit

import (
	"context"
	"database/sql"

	"github.com/MikroWizard/mikroman/internal/models"
)

// AuthRepo is the read side of the auth table, consumed by the CLI and the
// excluded reporting layer. The correlation engine owns writes.
type AuthRepo struct {
	db *sql.DB
}

func NewAuthRepo(db *sql.DB) *AuthRepo {
	return &AuthRepo{db: db}
}

// List returns recent session records, newest first.
func (r *AuthRepo) List(ctx context.Context, limit, offset int) ([]models.AuthSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(devid,0), ltype, COALESCE(username,''), COALESCE(ip,''),
			COALESCE(by,''), COALESCE(sessionid,''), started, ended, COALESCE(message,''), created
		 FROM auth ORDER BY created DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.AuthSession
	for rows.Next() {
		var s models.AuthSession
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Kind, &s.Username, &s.IP,
			&s.By, &s.SessionID, &s.Started, &s.Ended, &s.Message, &s.Created); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Open returns sessions that have not been closed yet.
func (r *AuthRepo) Open(ctx context.Context, deviceID int64) ([]models.AuthSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(devid,0), ltype, COALESCE(username,''), COALESCE(ip,''),
			COALESCE(by,''), COALESCE(sessionid,''), started, ended, COALESCE(message,''), created
		 FROM auth WHERE devid=$1 AND ltype='loggedin' AND ended=0 ORDER BY started`,
		deviceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.AuthSession
	for rows.Next() {
		var s models.AuthSession
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Kind, &s.Username, &s.IP,
			&s.By, &s.SessionID, &s.Started, &s.Ended, &s.Message, &s.Created); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
