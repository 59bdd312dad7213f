package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MikroWizard/mikroman/internal/models"
)

// ErrDeviceNotFound is returned when no device matches the lookup key.
var ErrDeviceNotFound = errors.New("device not found")

const deviceColumns = `id, COALESCE(name,''), ip, COALESCE(peer_ip,''), COALESCE(port,8728),
	COALESCE(user_name,''), COALESCE(password,''), COALESCE(current_firmware,''),
	COALESCE(status,'unknown'), COALESCE(syslog_configured,false), created`

// DeviceRepo reads device rows. The inventory subsystem owns writes.
type DeviceRepo struct {
	db *sql.DB
}

func NewDeviceRepo(db *sql.DB) *DeviceRepo {
	return &DeviceRepo{db: db}
}

// GetByIP resolves the device a RADIUS NAS-IP-Address or syslog sender
// address belongs to.
func (r *DeviceRepo) GetByIP(ctx context.Context, ip string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE ip=$1`, ip)
	return scanDevice(row)
}

// GetByID fetches one device row.
func (r *DeviceRepo) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id=$1`, id)
	return scanDevice(row)
}

// ListEnabled returns every device the enforcement sweep should visit.
func (r *DeviceRepo) ListEnabled(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE status <> 'disabled' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDeviceRow(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// SetSyslogConfigured records that the sweep verified the device's remote
// logging action.
func (r *DeviceRepo) SetSyslogConfigured(ctx context.Context, id int64, ok bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET syslog_configured=$2 WHERE id=$1`, id, ok)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row *sql.Row) (*models.Device, error) {
	d, err := scanDeviceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func scanDeviceRow(row rowScanner) (*models.Device, error) {
	var d models.Device
	if err := row.Scan(&d.ID, &d.Name, &d.IP, &d.PeerIP, &d.Port,
		&d.UserName, &d.Password, &d.CurrentFirmware,
		&d.Status, &d.SyslogConfigured, &d.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}
	return &d, nil
}
