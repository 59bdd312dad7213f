package audit

import (
	"context"
	"database/sql"

	"github.com/MikroWizard/mikroman/internal/models"
)

// EventRepo records device state changes (reboots, link flaps, DHCP,
// wireless clients) observed via syslog.
type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

// StateEvent inserts a state event unless an identical unfixed one is
// already open. status 1 events are informational and always inserted.
func (r *EventRepo) StateEvent(ctx context.Context, deviceID int64, src, detail, level string, status int, comment string) error {
	if status == 0 {
		var id int64
		err := r.db.QueryRowContext(ctx,
			`SELECT id FROM events
			 WHERE devid=$1 AND eventtype='state' AND src=$2 AND detail=$3 AND level=$4 AND status=0`,
			deviceID, src, detail, level,
		).Scan(&id)
		if err == nil {
			return nil // identical open event, keep the first one
		}
		if err != sql.ErrNoRows {
			return err
		}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (devid, eventtype, detail, level, src, status, comment)
		 VALUES ($1, 'state', $2, $3, $4, $5, $6)`,
		deviceID, detail, level, src, status, comment)
	return err
}

// OpenBySrc returns unfixed events from one source for a device.
func (r *EventRepo) OpenBySrc(ctx context.Context, deviceID int64, src string) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(devid,0), eventtype, COALESCE(detail,''), COALESCE(level,''),
			src, status, COALESCE(comment,''), fixtime, created
		 FROM events WHERE devid=$1 AND src=$2 AND status=0`,
		deviceID, src,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.EventType, &e.Detail, &e.Level,
			&e.Src, &e.Status, &e.Comment, &e.FixTime, &e.Created); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Fix marks an event resolved.
func (r *EventRepo) Fix(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET status=1, fixtime=NOW() WHERE id=$1`, id)
	return err
}

// FixMatching resolves the open event with the given type and detail, if
// any. Reports whether one was fixed.
func (r *EventRepo) FixMatching(ctx context.Context, deviceID int64, eventType, detail string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status=1, fixtime=NOW()
		 WHERE devid=$1 AND eventtype=$2 AND detail=$3 AND status=0`,
		deviceID, eventType, detail)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// List returns recent events, newest first.
func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(devid,0), eventtype, COALESCE(detail,''), COALESCE(level,''),
			src, status, COALESCE(comment,''), fixtime, created
		 FROM events ORDER BY created DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.EventType, &e.Detail, &e.Level,
			&e.Src, &e.Status, &e.Comment, &e.FixTime, &e.Created); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
