package syslogd

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/MikroWizard/mikroman/internal/audit"
	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/repo"
)

type fakeLocalUsers struct {
	local map[string]bool
	err   error
}

func (f *fakeLocalUsers) Contains(_ context.Context, _ *models.Device, username string) (bool, error) {
	return f.local[username], f.err
}

func testServer(t *testing.T, local ...string) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := &fakeLocalUsers{local: map[string]bool{}}
	for _, u := range local {
		users.local[u] = true
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(Deps{
		Devices:    repo.NewDeviceRepo(db),
		LocalUsers: users,
		Audit:      audit.NewEngine(db, log, audit.Options{Window: 2, Interval: time.Millisecond, MaxPolls: 1}),
		Accounts:   audit.NewAccountRepo(db),
		Events:     audit.NewEventRepo(db),
		Log:        log,
	}, ":0")
	s.now = func() int64 { return 1700000000 }
	return s, mock
}

func expectDevice(mock sqlmock.Sqlmock, ip string) {
	rows := sqlmock.NewRows([]string{
		"id", "name", "ip", "peer_ip", "port", "user_name", "password",
		"current_firmware", "status", "syslog_configured", "created",
	}).AddRow(12, "sw-lab", ip, "", 8728, "", "", "7.11.2", "up", true, time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM devices WHERE ip=\$1`).
		WithArgs(ip).WillReturnRows(rows)
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		in      string
		topics  string
		devID   int64
		message string
		ok      bool
	}{
		{
			in:      "system,info,account mikrowizard12: user admin logged in from 192.0.2.9 via ssh",
			topics:  "system,info,account",
			devID:   12,
			message: "user admin logged in from 192.0.2.9 via ssh",
			ok:      true,
		},
		{
			in:      "interface,info mikrowizard3: ether1 link down",
			topics:  "interface,info",
			devID:   3,
			message: "ether1 link down",
			ok:      true,
		},
		{in: "system,info: no marker here", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := parseLine(tc.in)
		if ok != tc.ok {
			t.Errorf("parseLine(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.Topics != tc.topics || got.DeviceID != tc.devID || got.Message != tc.message {
			t.Errorf("parseLine(%q) = %+v", tc.in, got)
		}
	}
}

func TestParseLogin(t *testing.T) {
	ev, ok := parseLogin("user admin logged in from 192.0.2.9 via ssh")
	if !ok || !ev.LoggedIn || ev.Failed || ev.Username != "admin" || ev.IP != "192.0.2.9" || ev.Via != "ssh" {
		t.Errorf("logged in: %+v, ok=%v", ev, ok)
	}

	ev, ok = parseLogin("user admin logged out from 192.0.2.9 via winbox")
	if !ok || ev.LoggedIn || ev.Failed || ev.Via != "winbox" {
		t.Errorf("logged out: %+v, ok=%v", ev, ok)
	}

	ev, ok = parseLogin("login failure for user eve from 192.0.2.66 via telnet")
	if !ok || !ev.Failed || ev.Username != "eve" || ev.IP != "192.0.2.66" || ev.Via != "telnet" {
		t.Errorf("failure: %+v, ok=%v", ev, ok)
	}

	if _, ok = parseLogin("user database synchronized"); ok {
		t.Error("non-login line matched")
	}
}

func TestClassifyConnection(t *testing.T) {
	cases := []struct {
		channel string
		address string
		want    string
	}{
		{"winbox-3.41/tcp-msg(winbox)", "192.0.2.9", "winbox-tcp"},
		{"mac-msg(winbox)", "192.0.2.9", "winbox-mac"},
		{"winbox-3.41/tcp-msg(winbox)", "192.0.2.9/terminal", "winbox-tcp/terminal"},
		{"ssh", "192.0.2.9", "ssh"},
		{"telnet", "192.0.2.9", "telnet"},
		{"api", "192.0.2.9", "api"},
		{"http/web", "192.0.2.9", "web (http)"},
	}
	for _, tc := range cases {
		if got := classifyConnection(tc.channel, tc.address); got != tc.want {
			t.Errorf("classifyConnection(%q, %q) = %q, want %q", tc.channel, tc.address, got, tc.want)
		}
	}
}

func TestParseConfigChange(t *testing.T) {
	change, ok := parseConfigChange(
		"dhcp-server changed by winbox-3.41/tcp-msg(winbox):admin@192.0.2.9/terminal (network pool)")
	if !ok {
		t.Fatal("specific form did not match")
	}
	if change.Section != "dhcp-server" || change.Action != "changed" || change.Username != "admin" {
		t.Errorf("parsed %+v", change)
	}
	if change.CType != "winbox-tcp/terminal" || change.Address != "192.0.2.9" || change.Config != "network pool" {
		t.Errorf("parsed %+v", change)
	}

	change, ok = parseConfigChange("system scheduler unscheduled by console")
	if !ok {
		t.Fatal("generic form did not match")
	}
	if change.Section != "system scheduler" || change.Action != "unscheduled" || change.Username != "console" {
		t.Errorf("generic parsed %+v", change)
	}
	if change.CType != "" || change.Address != "" {
		t.Errorf("generic parsed %+v", change)
	}

	if _, ok = parseConfigChange("cpu load 92%"); ok {
		t.Error("noise line matched")
	}
}

// A local-user login inserts an open loggedin row tagged with origin local.
func TestHandleLine_LocalLogin(t *testing.T) {
	s, mock := testServer(t, "admin")
	expectDevice(mock, "10.0.0.7")
	mock.ExpectExec(`INSERT INTO auth`).
		WithArgs(int64(12), "loggedin", "admin", "192.0.2.9", "ssh",
			int64(1700000000), int64(0), "", "local").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.HandleLine(context.Background(), "10.0.0.7",
		"system,info,account mikrowizard12: user admin logged in from 192.0.2.9 via ssh")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

// A login failure by a non-local user is radius-confirmed: it merges into
// the failed row the authentication engine already wrote instead of
// inserting a second one.
func TestHandleLine_RadiusFailureMerges(t *testing.T) {
	s, mock := testServer(t, "admin")
	expectDevice(mock, "10.0.0.7")
	mock.ExpectQuery(`SELECT id FROM auth WHERE ltype='failed'`).
		WithArgs("eve", int64(1700000000-2), int64(1700000000+2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectExec(`UPDATE auth SET by=\$2, sessionid=\$3 WHERE id=\$1`).
		WithArgs(int64(41), "telnet", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.HandleLine(context.Background(), "10.0.0.7",
		"system,error,critical mikrowizard12: login failure for user eve from 192.0.2.66 via telnet")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

// A radius-origin logout without a session id is dropped: the accounting
// Stop closes the row.
func TestHandleLine_RadiusLogoutDropped(t *testing.T) {
	s, mock := testServer(t)
	expectDevice(mock, "10.0.0.7")

	s.HandleLine(context.Background(), "10.0.0.7",
		"system,info,account mikrowizard12: user eve logged out from 192.0.2.66 via winbox")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_DeviceIDMismatchDropped(t *testing.T) {
	s, mock := testServer(t)
	expectDevice(mock, "10.0.0.7") // resolves to device 12, marker says 99

	s.HandleLine(context.Background(), "10.0.0.7",
		"system,info,account mikrowizard99: user admin logged in from 192.0.2.9 via ssh")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_OwnAPISessionDropped(t *testing.T) {
	s, mock := testServer(t, "admin")
	expectDevice(mock, "10.0.0.7")

	s.HandleLine(context.Background(), "10.0.0.7",
		"system,info,account mikrowizard12: user admin logged in from 192.0.2.1 via api")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_ConfigChange(t *testing.T) {
	s, mock := testServer(t)
	line := "system,info mikrowizard12: dhcp-server changed by winbox-3.41/tcp-msg(winbox):admin@192.0.2.9 (network pool)"
	expectDevice(mock, "10.0.0.7")
	mock.ExpectExec(`INSERT INTO account`).
		WithArgs(int64(12), "dhcp-server", "changed", "admin", line,
			"winbox-tcp", "192.0.2.9", "network pool").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.HandleLine(context.Background(), "10.0.0.7", line)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_LinkDownThenUp(t *testing.T) {
	s, mock := testServer(t)

	// Down opens a warning event after the duplicate check.
	expectDevice(mock, "10.0.0.7")
	mock.ExpectQuery(`SELECT id FROM events`).
		WithArgs(int64(12), "syslog", "Link Down: ether1", "Warning").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(int64(12), "Link Down: ether1", "Warning", "syslog", 0, "Link is down for ether1").
		WillReturnResult(sqlmock.NewResult(7, 1))
	s.HandleLine(context.Background(), "10.0.0.7",
		"interface,info mikrowizard12: ether1 link down")

	// A second down for the same interface is deduplicated.
	expectDevice(mock, "10.0.0.7")
	mock.ExpectQuery(`SELECT id FROM events`).
		WithArgs(int64(12), "syslog", "Link Down: ether1", "Warning").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	s.HandleLine(context.Background(), "10.0.0.7",
		"interface,info mikrowizard12: ether1 link down")

	// Up fixes the open event.
	expectDevice(mock, "10.0.0.7")
	mock.ExpectExec(`UPDATE events SET status=1`).
		WithArgs(int64(12), "state", "Link Down: ether1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.HandleLine(context.Background(), "10.0.0.7",
		"interface,info mikrowizard12: ether1 link up")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_DHCPAssigned(t *testing.T) {
	s, mock := testServer(t)
	expectDevice(mock, "10.0.0.7")
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(int64(12), "dhcp assigned", "info", "syslog", 1,
			"server dhcp1 assigned 10.1.1.50 to AA:BB:CC:DD:EE:FF").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.HandleLine(context.Background(), "10.0.0.7",
		"dhcp,info mikrowizard12: dhcp1 assigned 10.1.1.50 to AA:BB:CC:DD:EE:FF")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_WirelessClient(t *testing.T) {
	s, mock := testServer(t)
	expectDevice(mock, "10.0.0.7")
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(int64(12), "wireless client", "info", "syslog", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.HandleLine(context.Background(), "10.0.0.7",
		"wireless,info mikrowizard12: AA:BB:CC:DD:EE:FF@wlan1: connected, signal strength -61")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestHandleLine_RebootEvent(t *testing.T) {
	s, mock := testServer(t)
	expectDevice(mock, "10.0.0.7")
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs(int64(12), "Unexpected Reboot", "Critical", "syslog", 1, "router rebooted without proper shutdown").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s.HandleLine(context.Background(), "10.0.0.7",
		"system,error,critical mikrowizard12: router rebooted without proper shutdown")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
