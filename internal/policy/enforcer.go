// Package policy pushes abstract capability sets to devices as native
// permission groups and keeps their RADIUS client registration pointed at
// this server. Every write is idempotent: current device state is read
// first and nothing is touched when it already matches.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/MikroWizard/mikroman/internal/metrics"
	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/routeros"
)

// Dialer abstracts connection setup so tests can hand the enforcer a fake
// device.
type Dialer interface {
	Dial(dev *models.Device) (routeros.Client, error)
}

type Enforcer struct {
	dialer     Dialer
	pool       *Pool
	log        *slog.Logger
	syslogPort int
}

func NewEnforcer(dialer Dialer, pool *Pool, log *slog.Logger, syslogPort int) *Enforcer {
	return &Enforcer{dialer: dialer, pool: pool, log: log, syslogPort: syslogPort}
}

// EnforceUserGroup is the Access-Request hook: make sure the device trusts
// this RADIUS server and carries the user's permission group, gated by
// firmware capability. Any failure means the accept must not be sent.
func (e *Enforcer) EnforceUserGroup(ctx context.Context, dev *models.Device, perm *models.PermGroup, peerIP, secret string) error {
	err := e.pool.Do(ctx, func() error {
		c, err := e.dialer.Dial(dev)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := ConfigureRadiusClient(c, peerIP, secret); err != nil {
			return err
		}

		version, err := c.Version()
		if err != nil {
			return err
		}
		caps, err := perm.Capabilities()
		if err != nil {
			return fmt.Errorf("policy: bad capability set %q: %w", perm.Name, err)
		}
		return ApplyPermissionGroup(c, perm.Name, GateCapabilities(version, caps))
	})
	if err != nil {
		metrics.PolicyPushes.WithLabelValues("failed").Inc()
		return fmt.Errorf("policy: enforce %q on device %d: %w", perm.Name, dev.ID, err)
	}
	metrics.PolicyPushes.WithLabelValues("applied").Inc()
	return nil
}

// ConfigureRadiusClient ensures the device's AAA subsystem uses RADIUS with
// accounting and no interim updates, and that a client registration for
// nasIP with the shared secret exists. Reads first, writes only on drift.
func ConfigureRadiusClient(c routeros.Client, nasIP, secret string) error {
	aaa, err := c.Print("/user/aaa")
	if err != nil {
		return err
	}
	if len(aaa) == 0 ||
		aaa[0]["use-radius"] != "true" ||
		aaa[0]["accounting"] != "true" ||
		aaa[0]["interim-update"] != "0s" {
		if err := c.SetGlobal("/user/aaa", map[string]string{
			"use-radius":     "yes",
			"accounting":     "yes",
			"interim-update": "0s",
		}); err != nil {
			return err
		}
	}

	clients, err := c.Print("/radius")
	if err != nil {
		return err
	}
	for _, item := range clients {
		if item["address"] == nasIP && item["secret"] == secret {
			return nil
		}
	}

	attrs := map[string]string{
		"address": nasIP,
		"secret":  secret,
		"service": "login",
		// Older firmwares reject this key; retried without it below.
		"require-message-auth": "no",
	}
	if err := c.Add("/radius", attrs); err != nil {
		delete(attrs, "require-message-auth")
		return c.Add("/radius", attrs)
	}
	return nil
}

// ApplyPermissionGroup creates or updates the native user group so its
// sorted policy list equals caps. No write when they already match.
func ApplyPermissionGroup(c routeros.Client, name string, caps []string) error {
	desired := append([]string(nil), caps...)
	sort.Strings(desired)

	groups, err := c.Print("/user/group")
	if err != nil {
		return err
	}
	existingID := ""
	for _, g := range groups {
		if g["name"] != name {
			continue
		}
		existingID = g[".id"]
		current := strings.Split(g["policy"], ",")
		sort.Strings(current)
		if equalStrings(current, desired) {
			metrics.PolicyPushes.WithLabelValues("unchanged").Inc()
			return nil
		}
	}

	attrs := map[string]string{
		"name":   name,
		"policy": strings.Join(desired, ","),
	}
	if existingID != "" {
		return c.Update("/user/group", existingID, attrs)
	}
	return c.Add("/user/group", attrs)
}

// EnsureRadiusClient is the sweep hook: point the device's AAA subsystem
// at this server without touching permission groups.
func (e *Enforcer) EnsureRadiusClient(ctx context.Context, dev *models.Device, peerIP, secret string) error {
	return e.pool.Do(ctx, func() error {
		c, err := e.dialer.Dial(dev)
		if err != nil {
			return err
		}
		defer c.Close()
		return ConfigureRadiusClient(c, peerIP, secret)
	})
}

// CheckSyslogConfig verifies (and with apply set, installs) the device's
// remote logging action named "mikrowizard<devid>" pointed at peerIP and
// the three topic rules feeding it. Reports whether the device ends up
// correctly configured.
func (e *Enforcer) CheckSyslogConfig(ctx context.Context, dev *models.Device, peerIP string, apply bool) (bool, error) {
	ok := false
	err := e.pool.Do(ctx, func() error {
		c, err := e.dialer.Dial(dev)
		if err != nil {
			return err
		}
		defer c.Close()
		ok, err = checkSyslogConfig(c, dev.ID, peerIP, e.syslogPort, apply)
		return err
	})
	return ok, err
}

func checkSyslogConfig(c routeros.Client, devID int64, peerIP string, port int, apply bool) (bool, error) {
	actionName := fmt.Sprintf("mikrowizard%d", devID)

	actions, err := c.Print("/system/logging/action")
	if err != nil {
		return false, err
	}
	var ours []map[string]string
	exact := false
	for _, a := range actions {
		if !strings.Contains(a["name"], "mikrowizard") {
			continue
		}
		ours = append(ours, a)
		if a["name"] == actionName &&
			a["remote"] == peerIP &&
			a["remote-port"] == strconv.Itoa(port) {
			exact = true
		}
	}
	if !exact {
		if !apply {
			return false, nil
		}
		var stale []string
		for _, a := range ours {
			stale = append(stale, a[".id"])
		}
		if err := c.Remove("/system/logging/action", stale...); err != nil {
			return false, err
		}
		if err := c.Add("/system/logging/action", map[string]string{
			"name":        actionName,
			"remote":      peerIP,
			"remote-port": strconv.Itoa(port),
			"target":      "remote",
		}); err != nil {
			return false, err
		}
	}

	rules, err := c.Print("/system/logging")
	if err != nil {
		return false, err
	}
	matched := 0
	var staleRules []string
	for _, r := range rules {
		if r["action"] == actionName {
			matched++
		}
		if strings.Contains(r["prefix"], "mikrowizard") {
			staleRules = append(staleRules, r[".id"])
		}
	}
	if matched != 3 {
		if !apply {
			return false, nil
		}
		if err := c.Remove("/system/logging", staleRules...); err != nil {
			return false, err
		}
		for _, topic := range []string{"critical", "error", "info"} {
			if err := c.Add("/system/logging", map[string]string{
				"action": actionName,
				"topics": topic,
				"prefix": actionName,
			}); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
