package repo

import (
	"context"
	"database/sql"
	"errors"
)

// Well-known sysconfig keys consumed by this core.
const (
	KeyRadSecret   = "rad_secret"   // shared RADIUS secret
	KeyForcePerms  = "force_perms"  // push permission groups before Access-Accept
	KeyForceRadius = "force_radius" // sweep keeps radius client config on devices
	KeyDefaultIP   = "default_ip"   // fallback peer address for devices without one
	KeyDefaultUser = "default_user" // fallback API credentials
	KeyDefaultPass = "default_password"
)

// ErrSysconfigMissing is returned for unknown configuration keys.
var ErrSysconfigMissing = errors.New("sysconfig key not found")

// SysconfigRepo reads the key/value system configuration store.
type SysconfigRepo struct {
	db *sql.DB
}

func NewSysconfigRepo(db *sql.DB) *SysconfigRepo {
	return &SysconfigRepo{db: db}
}

func (r *SysconfigRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(value,'') FROM sysconfig WHERE key=$1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSysconfigMissing
	}
	return value, err
}

// GetBool treats the stored value "True" (the writer's convention) or any
// parseable truthy string as true; a missing key is false, not an error.
func (r *SysconfigRepo) GetBool(ctx context.Context, key string) (bool, error) {
	v, err := r.Get(ctx, key)
	if errors.Is(err, ErrSysconfigMissing) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "True" || v == "true" || v == "1", nil
}
