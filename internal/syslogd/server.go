// Package syslogd ingests the remote-logging stream of managed devices.
// Each UDP datagram is one RouterOS log line; recognized lines become
// correlation signals or state events, everything else is dropped with a
// warning so a garbled line can never disturb ingestion.
package syslogd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/MikroWizard/mikroman/internal/audit"
	"github.com/MikroWizard/mikroman/internal/metrics"
	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/repo"
)

const maxDatagram = 4096

// localUserLookup reports whether a username exists in the device's native
// user table; the answer decides the local/radius origin tag.
type localUserLookup interface {
	Contains(ctx context.Context, dev *models.Device, username string) (bool, error)
}

// Deps are the collaborators one ingestion server needs.
type Deps struct {
	Devices    *repo.DeviceRepo
	LocalUsers localUserLookup
	Audit      *audit.Engine
	Accounts   *audit.AccountRepo
	Events     *audit.EventRepo
	Log        *slog.Logger
}

// Server is the single-threaded UDP syslog listener. Lines are processed
// synchronously; the bounded correlation poll inside the audit engine is
// acceptable here because ingestion is off the authentication path.
type Server struct {
	deps Deps
	addr string

	conn *net.UDPConn
	now  func() int64
}

func NewServer(deps Deps, addr string) *Server {
	return &Server{deps: deps, addr: addr}
}

// Run listens until ctx is done or the socket fails.
func (s *Server) Run(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("syslogd: resolve %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("syslogd: listen %s: %w", s.addr, err)
	}
	s.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.deps.Log.Info("syslog listener starting", "addr", s.addr)
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				s.deps.Log.Info("syslog listener stopped")
				return nil
			}
			return fmt.Errorf("syslogd: read: %w", err)
		}
		line := strings.TrimSpace(string(buf[:n]))
		if line == "" {
			continue
		}
		s.HandleLine(ctx, src.IP.String(), line)
	}
}

// HandleLine routes one log line. Every failure is a warning and a drop;
// nothing here returns an error to the read loop.
func (s *Server) HandleLine(ctx context.Context, srcIP, line string) {
	parsed, ok := parseLine(line)
	if !ok {
		metrics.SyslogLines.WithLabelValues("unroutable").Inc()
		s.deps.Log.Warn("syslog line without device marker", "src", srcIP, "line", line)
		return
	}

	dev, err := s.deps.Devices.GetByIP(ctx, srcIP)
	if err != nil {
		metrics.SyslogLines.WithLabelValues("unknown_device").Inc()
		s.deps.Log.Warn("syslog from unknown sender", "src", srcIP, "err", err)
		return
	}
	if dev.ID != parsed.DeviceID {
		metrics.SyslogLines.WithLabelValues("id_mismatch").Inc()
		s.deps.Log.Warn("syslog device id mismatch",
			"src", srcIP, "marker_id", parsed.DeviceID, "device_id", dev.ID)
		return
	}
	// Management actions made through our own API session echo back through
	// syslog; recording them would double-count the operation.
	if strings.Contains(parsed.Message, "via api") {
		metrics.SyslogLines.WithLabelValues("own_api").Inc()
		return
	}

	switch {
	case strings.HasPrefix(parsed.Topics, "system,info,account"):
		s.handleAccount(ctx, dev, parsed)
	case strings.HasPrefix(parsed.Topics, "system,error,critical"):
		s.handleCritical(ctx, dev, parsed)
	case strings.HasPrefix(parsed.Topics, "system,info"):
		s.handleSystemInfo(ctx, dev, parsed)
	case strings.HasPrefix(parsed.Topics, "interface,info"):
		s.handleLink(ctx, dev, parsed)
	case strings.HasPrefix(parsed.Topics, "dhcp,info"):
		s.handleDHCP(ctx, dev, parsed)
	case strings.HasPrefix(parsed.Topics, "wireless,info"):
		s.handleWireless(ctx, dev, parsed)
	default:
		metrics.SyslogLines.WithLabelValues("unmatched").Inc()
		s.deps.Log.Warn("unmatched syslog line", "devid", dev.ID, "line", line)
	}
}

// handleAccount turns login/logout lines into correlation signals. The
// origin tag depends on whether the username exists locally on the device.
func (s *Server) handleAccount(ctx context.Context, dev *models.Device, parsed parsedLine) {
	ev, ok := parseLogin(parsed.Message)
	if !ok {
		metrics.SyslogLines.WithLabelValues("unmatched").Inc()
		s.deps.Log.Warn("unparseable account line", "devid", dev.ID, "line", parsed.Raw)
		return
	}
	metrics.SyslogLines.WithLabelValues("account").Inc()

	origin := models.OriginRadius
	isLocal, err := s.deps.LocalUsers.Contains(ctx, dev, ev.Username)
	if err != nil {
		s.deps.Log.Warn("local user lookup failed, assuming radius origin",
			"devid", dev.ID, "username", ev.Username, "err", err)
	} else if isLocal {
		origin = models.OriginLocal
	}

	kind := models.AuthLoggedOut
	if ev.Failed {
		kind = models.AuthFailed
	} else if ev.LoggedIn {
		kind = models.AuthLoggedIn
	}
	sig := audit.Signal{
		DeviceID:  dev.ID,
		Kind:      kind,
		Username:  ev.Username,
		IP:        ev.IP,
		By:        ev.Via,
		Timestamp: s.clock(),
		Message:   origin,
	}
	if err := s.deps.Audit.Process(ctx, sig); err != nil {
		s.deps.Log.Warn("account signal failed", "devid", dev.ID, "kind", kind, "err", err)
	}
}

func (s *Server) handleCritical(ctx context.Context, dev *models.Device, parsed parsedLine) {
	switch {
	case strings.Contains(parsed.Message, "login failure"):
		s.handleAccount(ctx, dev, parsed)
	case strings.Contains(parsed.Message, "rebooted"):
		metrics.SyslogLines.WithLabelValues("reboot").Inc()
		s.stateEvent(ctx, dev, "Unexpected Reboot", "Critical", 1, parsed.Message)
	default:
		metrics.SyslogLines.WithLabelValues("critical").Inc()
		s.stateEvent(ctx, dev, "Critical", "Critical", 0, parsed.Message)
	}
}

func (s *Server) handleSystemInfo(ctx context.Context, dev *models.Device, parsed parsedLine) {
	switch {
	case strings.Contains(parsed.Message, "rebooted"):
		metrics.SyslogLines.WithLabelValues("reboot").Inc()
		s.stateEvent(ctx, dev, "Router Rebooted", "info", 1, parsed.Message)
		return
	case strings.Contains(parsed.Message, "resetting system configuration"):
		metrics.SyslogLines.WithLabelValues("reset").Inc()
		s.stateEvent(ctx, dev, "Router reset", "info", 1, parsed.Message)
		return
	}

	change, ok := parseConfigChange(parsed.Message)
	if !ok {
		metrics.SyslogLines.WithLabelValues("unmatched").Inc()
		s.deps.Log.Warn("unmatched system,info line", "devid", dev.ID, "line", parsed.Raw)
		return
	}
	metrics.SyslogLines.WithLabelValues("config_change").Inc()
	err := s.deps.Accounts.Add(ctx, models.AccountingEntry{
		DeviceID: dev.ID,
		Username: change.Username,
		Action:   change.Action,
		Section:  change.Section,
		Message:  parsed.Raw,
		Config:   change.Config,
		CType:    change.CType,
		Address:  change.Address,
	})
	if err != nil {
		s.deps.Log.Warn("accounting record failed", "devid", dev.ID, "err", err)
	}
}

// handleLink opens a "Link Down" event on down and fixes the matching open
// event on up, so a flapping interface leaves one closed event per cycle.
func (s *Server) handleLink(ctx context.Context, dev *models.Device, parsed parsedLine) {
	m := linkRe.FindStringSubmatch(parsed.Message)
	if m == nil {
		metrics.SyslogLines.WithLabelValues("unmatched").Inc()
		return
	}
	metrics.SyslogLines.WithLabelValues("link").Inc()
	iface := m[1]
	if m[2] == "down" {
		s.stateEvent(ctx, dev, "Link Down: "+iface, "Warning", 0,
			fmt.Sprintf("Link is down for %s", iface))
		return
	}
	fixed, err := s.deps.Events.FixMatching(ctx, dev.ID, "state", "Link Down: "+iface)
	if err != nil {
		s.deps.Log.Warn("event fix failed", "devid", dev.ID, "iface", iface, "err", err)
	} else if !fixed {
		s.deps.Log.Debug("link up without an open down event", "devid", dev.ID, "iface", iface)
	}
}

func (s *Server) handleDHCP(ctx context.Context, dev *models.Device, parsed parsedLine) {
	m := dhcpRe.FindStringSubmatch(parsed.Message)
	if m == nil {
		metrics.SyslogLines.WithLabelValues("unmatched").Inc()
		return
	}
	metrics.SyslogLines.WithLabelValues("dhcp").Inc()
	switch {
	case m[2] == "assigned":
		s.stateEvent(ctx, dev, "dhcp assigned", "info", 1,
			fmt.Sprintf("server %s assigned %s to %s", m[1], m[3], m[5]))
	case m[2] == "deassigned":
		s.stateEvent(ctx, dev, "dhcp deassigned", "info", 1,
			fmt.Sprintf("server %s deassigned %s from %s", m[1], m[3], m[5]))
	case m[1] == "dhcp-client":
		s.stateEvent(ctx, dev, "dhcp client", "info", 1, m[2]+" "+m[3])
	}
}

func (s *Server) handleWireless(ctx context.Context, dev *models.Device, parsed parsedLine) {
	m := wirelessRe.FindStringSubmatch(parsed.Message)
	if m == nil {
		metrics.SyslogLines.WithLabelValues("unmatched").Inc()
		return
	}
	metrics.SyslogLines.WithLabelValues("wireless").Inc()
	comment := strings.TrimSpace(fmt.Sprintf("%s %s %s %s", m[1], m[2], m[3], m[4]))
	s.stateEvent(ctx, dev, "wireless client", "info", 1, comment)
}

func (s *Server) stateEvent(ctx context.Context, dev *models.Device, detail, level string, status int, comment string) {
	if err := s.deps.Events.StateEvent(ctx, dev.ID, "syslog", detail, level, status, comment); err != nil {
		s.deps.Log.Warn("state event failed", "devid", dev.ID, "detail", detail, "err", err)
	}
}

func (s *Server) clock() int64 {
	if s.now != nil {
		return s.now()
	}
	return time.Now().Unix()
}
