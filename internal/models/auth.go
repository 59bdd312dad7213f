package models

import "time"

// Session record kinds. These mirror the type_auth enum in the auth table.
const (
	AuthFailed    = "failed"
	AuthLoggedIn  = "loggedin"
	AuthLoggedOut = "loggedout"
)

// Connection-origin tags carried in the record message. A syslog-observed
// login is tagged by whether the username exists locally on the device;
// anything else came through RADIUS.
const (
	OriginLocal  = "local"
	OriginRadius = "radius"
)

// AuthSession is one row of the login audit trail. A row is created by
// whichever channel's signal lands first and enriched, never replaced, by
// the other channel.
type AuthSession struct {
	ID        int64     `json:"id"`
	DeviceID  int64     `json:"devid"`
	Kind      string    `json:"ltype"`
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	By        string    `json:"by,omitempty"`        // connection origin (ssh, winbox, ...)
	SessionID string    `json:"sessionid,omitempty"` // RADIUS Acct-Session-Id or synthesized
	Started   int64     `json:"started"`             // epoch seconds
	Ended     int64     `json:"ended"`               // epoch seconds, 0 while open
	Message   string    `json:"message,omitempty"`   // origin hint or failure reason
	Created   time.Time `json:"created"`
}

// AccountingEntry is one immutable config-change row parsed from syslog.
type AccountingEntry struct {
	ID       int64     `json:"id"`
	DeviceID int64     `json:"devid"`
	Username string    `json:"username"`
	Action   string    `json:"action"`
	Section  string    `json:"section"`
	Message  string    `json:"message"`
	Config   string    `json:"config"`
	CType    string    `json:"ctype"`
	Address  string    `json:"address"`
	Created  time.Time `json:"created"`
}
