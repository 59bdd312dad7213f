package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/routeros"
)

type call struct {
	path  string
	id    string
	attrs map[string]string
}

// fakeClient plays back canned Print results and records writes.
type fakeClient struct {
	prints  map[string][]map[string]string
	version routeros.Version

	adds     []call
	updates  []call
	sets     []call
	removes  []call
	failAdds int // fail this many Add calls first
	closed   bool
}

func (f *fakeClient) Print(path string) ([]map[string]string, error) {
	return f.prints[path], nil
}

func (f *fakeClient) Add(path string, attrs map[string]string) error {
	if f.failAdds > 0 {
		f.failAdds--
		return errors.New("unknown parameter")
	}
	f.adds = append(f.adds, call{path: path, attrs: attrs})
	return nil
}

func (f *fakeClient) Update(path, id string, attrs map[string]string) error {
	f.updates = append(f.updates, call{path: path, id: id, attrs: attrs})
	return nil
}

func (f *fakeClient) SetGlobal(path string, attrs map[string]string) error {
	f.sets = append(f.sets, call{path: path, attrs: attrs})
	return nil
}

func (f *fakeClient) Remove(path string, ids ...string) error {
	for _, id := range ids {
		f.removes = append(f.removes, call{path: path, id: id})
	}
	return nil
}

func (f *fakeClient) Version() (routeros.Version, error) { return f.version, nil }
func (f *fakeClient) Close() error                       { f.closed = true; return nil }

type fakeDialer struct {
	client *fakeClient
	err    error
}

func (d *fakeDialer) Dial(*models.Device) (routeros.Client, error) {
	return d.client, d.err
}

func TestGateCapabilities(t *testing.T) {
	cases := []struct {
		version string
		in      []string
		want    []string
	}{
		{"7.7", []string{"dude", "ssh", "web"}, []string{"ssh", "web"}},
		{"7.7", []string{"!dude", "ssh"}, []string{"ssh"}},
		{"7.6", []string{"dude", "ssh"}, []string{"dude", "ssh"}},
		{"7.3", []string{"tikapp", "ssh"}, []string{"ssh"}},
		{"7.2", []string{"!tikapp", "ssh"}, []string{"!tikapp", "ssh"}},
		{"7.1", []string{"rest-api", "ssh"}, []string{"rest-api", "ssh"}},
		{"7.0", []string{"rest-api", "ssh"}, []string{"ssh"}},
		{"7.0", []string{"!rest-api", "ssh"}, []string{"ssh"}},
	}
	for _, c := range cases {
		got := GateCapabilities(routeros.MustVersion(c.version), c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("GateCapabilities(%s, %v) = %v, want %v", c.version, c.in, got, c.want)
		}
	}
}

func TestApplyPermissionGroup_Unchanged(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{
		"/user/group": {{".id": "*3", "name": "ops", "policy": "web,ssh,read"}},
	}}
	if err := ApplyPermissionGroup(c, "ops", []string{"read", "ssh", "web"}); err != nil {
		t.Fatalf("ApplyPermissionGroup: %v", err)
	}
	if len(c.adds) != 0 || len(c.updates) != 0 {
		t.Errorf("expected no writes, got adds=%v updates=%v", c.adds, c.updates)
	}
}

func TestApplyPermissionGroup_UpdatesExisting(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{
		"/user/group": {{".id": "*3", "name": "ops", "policy": "ssh"}},
	}}
	if err := ApplyPermissionGroup(c, "ops", []string{"web", "ssh"}); err != nil {
		t.Fatalf("ApplyPermissionGroup: %v", err)
	}
	if len(c.updates) != 1 || c.updates[0].id != "*3" {
		t.Fatalf("expected one update of *3, got %v", c.updates)
	}
	if c.updates[0].attrs["policy"] != "ssh,web" {
		t.Errorf("policy = %q, want sorted \"ssh,web\"", c.updates[0].attrs["policy"])
	}
}

func TestApplyPermissionGroup_CreatesMissing(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{"/user/group": {}}}
	if err := ApplyPermissionGroup(c, "ops", []string{"ssh"}); err != nil {
		t.Fatalf("ApplyPermissionGroup: %v", err)
	}
	if len(c.adds) != 1 || c.adds[0].attrs["name"] != "ops" {
		t.Errorf("expected one add, got %v", c.adds)
	}
}

func TestConfigureRadiusClient_NoDrift(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{
		"/user/aaa": {{"use-radius": "true", "accounting": "true", "interim-update": "0s"}},
		"/radius":   {{"address": "10.0.0.1", "secret": "s3cret"}},
	}}
	if err := ConfigureRadiusClient(c, "10.0.0.1", "s3cret"); err != nil {
		t.Fatalf("ConfigureRadiusClient: %v", err)
	}
	if len(c.sets) != 0 || len(c.adds) != 0 {
		t.Errorf("expected no writes, got sets=%v adds=%v", c.sets, c.adds)
	}
}

func TestConfigureRadiusClient_WritesOnDrift(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{
		"/user/aaa": {{"use-radius": "false", "accounting": "true", "interim-update": "0s"}},
		"/radius":   {},
	}}
	if err := ConfigureRadiusClient(c, "10.0.0.1", "s3cret"); err != nil {
		t.Fatalf("ConfigureRadiusClient: %v", err)
	}
	if len(c.sets) != 1 || c.sets[0].path != "/user/aaa" {
		t.Errorf("expected /user/aaa set, got %v", c.sets)
	}
	if len(c.adds) != 1 || c.adds[0].attrs["address"] != "10.0.0.1" {
		t.Errorf("expected radius client add, got %v", c.adds)
	}
}

// Firmwares without require-message-auth reject the first add; the client
// must be registered anyway.
func TestConfigureRadiusClient_LegacyFallback(t *testing.T) {
	c := &fakeClient{
		prints: map[string][]map[string]string{
			"/user/aaa": {{"use-radius": "true", "accounting": "true", "interim-update": "0s"}},
			"/radius":   {},
		},
		failAdds: 1,
	}
	if err := ConfigureRadiusClient(c, "10.0.0.1", "s3cret"); err != nil {
		t.Fatalf("ConfigureRadiusClient: %v", err)
	}
	if len(c.adds) != 1 {
		t.Fatalf("expected fallback add, got %v", c.adds)
	}
	if _, present := c.adds[0].attrs["require-message-auth"]; present {
		t.Error("fallback add must not carry require-message-auth")
	}
}

func TestEnforceUserGroup(t *testing.T) {
	c := &fakeClient{
		prints: map[string][]map[string]string{
			"/user/aaa":   {{"use-radius": "true", "accounting": "true", "interim-update": "0s"}},
			"/radius":     {{"address": "10.0.0.1", "secret": "s3cret"}},
			"/user/group": {},
		},
		version: routeros.MustVersion("7.7"),
	}
	pool := NewPool(1)
	defer pool.Close()
	e := NewEnforcer(&fakeDialer{client: c}, pool, slog.New(slog.NewTextHandler(io.Discard, nil)), 5014)

	perm := &models.PermGroup{Name: "ops", Perms: `{"ssh":true,"dude":true,"web":false}`}
	dev := &models.Device{ID: 9, IP: "192.0.2.9"}
	if err := e.EnforceUserGroup(context.Background(), dev, perm, "10.0.0.1", "s3cret"); err != nil {
		t.Fatalf("EnforceUserGroup: %v", err)
	}
	if len(c.adds) != 1 {
		t.Fatalf("expected group add, got %v", c.adds)
	}
	// dude stripped at 7.7, web pushed negated.
	if got := c.adds[0].attrs["policy"]; got != "!web,ssh" {
		t.Errorf("policy = %q, want \"!web,ssh\"", got)
	}
	if !c.closed {
		t.Error("device connection not closed")
	}
}

func TestEnforceUserGroup_DialFailure(t *testing.T) {
	pool := NewPool(1)
	defer pool.Close()
	e := NewEnforcer(&fakeDialer{err: errors.New("connection refused")}, pool,
		slog.New(slog.NewTextHandler(io.Discard, nil)), 5014)

	perm := &models.PermGroup{Name: "ops", Perms: `{"ssh":true}`}
	err := e.EnforceUserGroup(context.Background(), &models.Device{ID: 9}, perm, "10.0.0.1", "s")
	if err == nil {
		t.Error("expected error when device is unreachable")
	}
}

func TestCheckSyslogConfig_Applies(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{
		"/system/logging/action": {{".id": "*1", "name": "mikrowizard99", "remote": "10.0.0.2", "remote-port": "5014"}},
		"/system/logging":        {},
	}}
	pool := NewPool(1)
	defer pool.Close()
	e := NewEnforcer(&fakeDialer{client: c}, pool, slog.New(slog.NewTextHandler(io.Discard, nil)), 5014)

	ok, err := e.CheckSyslogConfig(context.Background(), &models.Device{ID: 7}, "10.0.0.1", true)
	if err != nil {
		t.Fatalf("CheckSyslogConfig: %v", err)
	}
	if !ok {
		t.Fatal("expected configured=true after apply")
	}
	// Stale action for another device id replaced, three topic rules added.
	if len(c.removes) == 0 {
		t.Error("stale mikrowizard action not removed")
	}
	var actions, rules int
	for _, a := range c.adds {
		switch a.path {
		case "/system/logging/action":
			actions++
			if a.attrs["name"] != "mikrowizard7" {
				t.Errorf("action name = %q", a.attrs["name"])
			}
		case "/system/logging":
			rules++
		}
	}
	if actions != 1 || rules != 3 {
		t.Errorf("adds: actions=%d rules=%d, want 1 and 3", actions, rules)
	}
}

func TestCheckSyslogConfig_ReportsDriftWithoutApply(t *testing.T) {
	c := &fakeClient{prints: map[string][]map[string]string{
		"/system/logging/action": {},
		"/system/logging":        {},
	}}
	pool := NewPool(1)
	defer pool.Close()
	e := NewEnforcer(&fakeDialer{client: c}, pool, slog.New(slog.NewTextHandler(io.Discard, nil)), 5014)

	ok, err := e.CheckSyslogConfig(context.Background(), &models.Device{ID: 7}, "10.0.0.1", false)
	if err != nil {
		t.Fatalf("CheckSyslogConfig: %v", err)
	}
	if ok {
		t.Error("expected configured=false")
	}
	if len(c.adds) != 0 || len(c.removes) != 0 {
		t.Error("check without apply must not write")
	}
}
