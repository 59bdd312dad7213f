package models

import "time"

// Event is a device state-change row (link flaps, reboots, DHCP leases,
// wireless clients). Unfixed events of the same shape are deduplicated.
type Event struct {
	ID        int64      `json:"id"`
	DeviceID  int64      `json:"devid"`
	EventType string     `json:"eventtype"` // "state" for everything syslogd records
	Detail    string     `json:"detail"`
	Level     string     `json:"level"`
	Src       string     `json:"src"`
	Status    int        `json:"status"` // 0 open, 1 fixed
	Comment   string     `json:"comment,omitempty"`
	FixTime   *time.Time `json:"fixtime,omitempty"`
	Created   time.Time  `json:"created"`
}
