package models

import "time"

// Device is a managed router as seen by the AAA core. The inventory
// subsystem owns these rows; this core only reads them.
type Device struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	IP               string    `json:"ip"`
	PeerIP           string    `json:"peer_ip,omitempty"` // address the device logs and authenticates back to
	Port             int       `json:"port"`
	UserName         string    `json:"-"`
	Password         string    `json:"-"`
	CurrentFirmware  string    `json:"current_firmware"`
	Status           string    `json:"status"`
	SyslogConfigured bool      `json:"syslog_configured"`
	Created          time.Time `json:"created"`
}

// APIPort returns the RouterOS API port, defaulting when the row has none.
func (d *Device) APIPort() int {
	if d.Port == 0 {
		return 8728
	}
	return d.Port
}
