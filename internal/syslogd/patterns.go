package syslogd

import (
	"regexp"
	"strings"
)

// Every forwarded line carries the correlation marker "mikrowizard<id>:"
// after the facility/severity prefix; the embedded id is the only key back
// to a device record.
var markerRe = regexp.MustCompile(`(?:^|\s|,)mikrowizard(\d+):\s*(.*)$`)

var (
	loginRe        = regexp.MustCompile(`user (\S+) logged (in|out) from (\S+) via (\S+)`)
	loginFailureRe = regexp.MustCompile(`login failure for user (\S+) from (\S+) via (\S+)`)

	configChangeRe = regexp.MustCompile(`^(.*) (changed|added|removed|unscheduled) by ` +
		`(winbox-\d.{1,3}\d\/.*\(winbox\)|mac-msg\(winbox\)|tcp-msg\(winbox\)|ssh|telnet|api|api-ssl|.*\/web|ftp|www-ssl).*:(.*)@(\S+) \((.*)\)`)
	configChangeGenericRe = regexp.MustCompile(`^(.*) (changed|added|removed|unscheduled) by (.*)$`)

	linkRe = regexp.MustCompile(`^(.*) link (down|up)`)

	dhcpRe = regexp.MustCompile(`^(dhcp-client|\S+) (deassigned|assigned|\S+) (\d+\.\d+\.\d+\.\d+|on \S+ address)\s*(from|to|$)\s*(.*)`)

	wirelessRe = regexp.MustCompile(`^([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})@(\S+): (connected|disconnected),? ?(.*)`)
)

// parsedLine is one syslog datagram split into its routable parts.
type parsedLine struct {
	Topics   string // facility/severity prefix, e.g. "system,info,account"
	DeviceID int64
	Message  string // everything after the marker
	Raw      string
}

// loginEvent covers both "logged in/out" and "login failure" account lines.
type loginEvent struct {
	Username string
	IP       string
	Via      string // connection type: ssh, winbox, console, ...
	LoggedIn bool
	Failed   bool
}

func parseLogin(message string) (loginEvent, bool) {
	if m := loginFailureRe.FindStringSubmatch(message); m != nil {
		return loginEvent{Username: m[1], IP: m[2], Via: m[3], Failed: true}, true
	}
	if m := loginRe.FindStringSubmatch(message); m != nil {
		return loginEvent{Username: m[1], IP: m[3], Via: m[4], LoggedIn: m[2] == "in"}, true
	}
	return loginEvent{}, false
}

// configChange is a parsed "X changed by Y" management-plane line.
type configChange struct {
	Section  string
	Action   string
	Username string
	CType    string
	Address  string
	Config   string
}

func parseConfigChange(message string) (configChange, bool) {
	if m := configChangeRe.FindStringSubmatch(message); m != nil {
		address, _, _ := strings.Cut(m[5], "/")
		return configChange{
			Section:  m[1],
			Action:   m[2],
			Username: strings.TrimSpace(m[4]),
			CType:    classifyConnection(m[3], m[5]),
			Address:  address,
			Config:   m[6],
		}, true
	}
	if m := configChangeGenericRe.FindStringSubmatch(message); m != nil {
		return configChange{Section: m[1], Action: m[2], Username: m[3]}, true
	}
	return configChange{}, false
}

// classifyConnection collapses the channel tag RouterOS prints after "by"
// into a stable connection-type label.
func classifyConnection(channel, address string) string {
	switch {
	case strings.Contains(channel, "winbox"):
		ctype := "winbox"
		if strings.Contains(channel, "tcp") {
			ctype = "winbox-tcp"
		} else if strings.Contains(channel, "mac") {
			ctype = "winbox-mac"
		}
		if strings.Contains(address, "/terminal") {
			ctype += "/terminal"
		}
		return ctype
	case strings.Contains(channel, "ssh"):
		return "ssh"
	case strings.Contains(channel, "telnet"):
		return "telnet"
	case strings.Contains(channel, "/web"):
		kind, rest, _ := strings.Cut(channel, "/")
		return rest + " (" + kind + ")"
	case strings.Contains(channel, "api"):
		return "api"
	}
	return channel
}

// parseLine splits a raw datagram at the correlation marker. Lines without
// the marker are unroutable and dropped by the caller.
func parseLine(raw string) (parsedLine, bool) {
	loc := markerRe.FindStringSubmatchIndex(raw)
	if loc == nil {
		return parsedLine{}, false
	}
	id := parseDeviceID(raw[loc[2]:loc[3]])
	if id <= 0 {
		return parsedLine{}, false
	}
	return parsedLine{
		Topics:   strings.TrimRight(strings.TrimSpace(raw[:loc[0]]), ","),
		DeviceID: id,
		Message:  raw[loc[4]:loc[5]],
		Raw:      raw,
	}, true
}

func parseDeviceID(s string) int64 {
	var id int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
