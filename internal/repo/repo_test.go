package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestDeviceRepo_GetByIP(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows([]string{
		"id", "name", "ip", "peer_ip", "port", "user_name", "password",
		"current_firmware", "status", "syslog_configured", "created",
	}).AddRow(2, "core-1", "10.0.0.2", "10.9.0.1", 8728, "svc", "pw", "7.10", "up", true, time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM devices WHERE ip=\$1`).
		WithArgs("10.0.0.2").WillReturnRows(rows)

	dev, err := NewDeviceRepo(db).GetByIP(context.Background(), "10.0.0.2")
	if err != nil {
		t.Fatalf("GetByIP: %v", err)
	}
	if dev.ID != 2 || dev.Name != "core-1" || dev.PeerIP != "10.9.0.1" || !dev.SyslogConfigured {
		t.Errorf("device = %+v", dev)
	}
}

func TestDeviceRepo_GetByIPNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT (.+) FROM devices WHERE ip=\$1`).
		WithArgs("10.0.0.99").WillReturnError(sql.ErrNoRows)

	_, err := NewDeviceRepo(db).GetByIP(context.Background(), "10.0.0.99")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestUserRepo_GetByUsername(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"id", "username", "hash", "created"}).
		AddRow(7, "alice", "44EBBA8D5312B8D611474411F56989AE", time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username=\$1`).
		WithArgs("alice").WillReturnRows(rows)

	u, err := NewUserRepo(db).GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if u.ID != 7 || u.NTHash != "44EBBA8D5312B8D611474411F56989AE" {
		t.Errorf("user = %+v", u)
	}

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE username=\$1`).
		WithArgs("nobody").WillReturnError(sql.ErrNoRows)
	if _, err := NewUserRepo(db).GetByUsername(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestSysconfigRepo_GetBool(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSysconfigRepo(db)

	mock.ExpectQuery(`SELECT COALESCE\(value,''\) FROM sysconfig WHERE key=\$1`).
		WithArgs(KeyForcePerms).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("True"))
	on, err := repo.GetBool(context.Background(), KeyForcePerms)
	if err != nil || !on {
		t.Errorf("GetBool(True) = %v, %v", on, err)
	}

	// A missing key is off, not an error.
	mock.ExpectQuery(`SELECT COALESCE\(value,''\) FROM sysconfig WHERE key=\$1`).
		WithArgs(KeyForceRadius).WillReturnError(sql.ErrNoRows)
	on, err = repo.GetBool(context.Background(), KeyForceRadius)
	if err != nil || on {
		t.Errorf("GetBool(missing) = %v, %v", on, err)
	}
}

func TestPermRepo_DeviceGroupIDsIncludesGlobal(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT group_id FROM device_groups_devices_rel WHERE device_id=\$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(3).AddRow(9))

	ids, err := NewPermRepo(db).DeviceGroupIDs(context.Background(), 5)
	if err != nil {
		t.Fatalf("DeviceGroupIDs: %v", err)
	}
	want := []int64{3, 9, GlobalGroupID}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestPermRepo_AssignmentsByUserAndGroups(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "group_id", "perm_id", "name", "perms", "created",
	}).AddRow(1, 7, 3, 11, "netops", `{"ssh": true, "web": false}`, time.Now())
	mock.ExpectQuery(`SELECT rel.id, rel.user_id, rel.group_id, p.id, p.name, p.perms, p.created`).
		WithArgs(int64(7), pq.Array([]int64{3, 1})).
		WillReturnRows(rows)

	assignments, err := NewPermRepo(db).AssignmentsByUserAndGroups(context.Background(), 7, []int64{3, 1})
	if err != nil {
		t.Fatalf("AssignmentsByUserAndGroups: %v", err)
	}
	if len(assignments) != 1 || assignments[0].Perm.Name != "netops" {
		t.Errorf("assignments = %+v", assignments)
	}
}
