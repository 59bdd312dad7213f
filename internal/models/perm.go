package models

import (
	"encoding/json"
	"sort"
	"time"
)

// PermGroup is an abstract capability set pushed to devices as a native
// user group. Perms maps capability name to enabled; a disabled capability
// is pushed negated ("!dude").
type PermGroup struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Perms   string    `json:"perms"` // JSON object, capability -> bool
	Created time.Time `json:"created"`
}

// Capabilities expands the Perms JSON into the sorted native policy list.
func (p *PermGroup) Capabilities() ([]string, error) {
	var m map[string]bool
	if err := json.Unmarshal([]byte(p.Perms), &m); err != nil {
		return nil, err
	}
	caps := make([]string, 0, len(m))
	for name, enabled := range m {
		if enabled {
			caps = append(caps, name)
		} else {
			caps = append(caps, "!"+name)
		}
	}
	sort.Strings(caps)
	return caps, nil
}

// PermAssignment binds a user to a permission group through a device group.
type PermAssignment struct {
	ID      int64 `json:"id"`
	UserID  int64 `json:"user_id"`
	GroupID int64 `json:"group_id"`
	Perm    PermGroup
}
