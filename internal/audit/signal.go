// Package audit owns the login audit trail: the session correlation engine
// that merges RADIUS decisions, RADIUS accounting and parsed syslog into
// deduplicated auth rows, plus the accounting and state-event stores.
package audit

// Signal is one login observation from either channel. The RADIUS engine
// emits them synchronously with its decision; syslogd emits them when the
// device's own log line arrives, typically seconds later and without a
// shared transaction id.
type Signal struct {
	DeviceID  int64
	Kind      string // models.AuthFailed, AuthLoggedIn, AuthLoggedOut
	Username  string
	IP        string
	By        string // connection origin from syslog (ssh, winbox, ...)
	SessionID string // Acct-Session-Id when the channel has one
	Timestamp int64  // epoch seconds
	Message   string // origin tag (local/radius) or failure reason
}
