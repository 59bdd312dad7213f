// Package routeros wraps the RouterOS API wire client behind the small
// read/write surface the policy and syslog modules need, plus firmware
// version parsing and comparison.
package routeros

import (
	"fmt"
	"strings"
	"time"

	ros "github.com/go-routeros/routeros/v3"

	"github.com/MikroWizard/mikroman/internal/models"
)

// Client is the generic "read config path" / "write config path" surface of
// one device connection. Implementations are not safe for concurrent use;
// the policy worker pool serializes access per job.
type Client interface {
	// Print lists the items under an API path, e.g. "/user/group".
	Print(path string) ([]map[string]string, error)
	// Add creates an item under a path.
	Add(path string, attrs map[string]string) error
	// Update modifies the item with the given .id.
	Update(path, id string, attrs map[string]string) error
	// SetGlobal writes settings on a single-instance path such as "/user/aaa".
	SetGlobal(path string, attrs map[string]string) error
	// Remove deletes items by .id.
	Remove(path string, ids ...string) error
	// Version reports the installed firmware version.
	Version() (Version, error)
	Close() error
}

// Dialer opens API connections to managed devices with a fixed timeout and
// fallback credentials for rows with no stored ones.
type Dialer struct {
	Timeout     time.Duration
	DefaultUser string
	DefaultPass string
}

// Dial connects to the device's API port. The timeout covers the TCP
// connect and login handshake; individual commands inherit it as the
// client's read deadline.
func (d *Dialer) Dial(dev *models.Device) (Client, error) {
	user, pass := dev.UserName, dev.Password
	if user == "" {
		user, pass = d.DefaultUser, d.DefaultPass
	}
	addr := fmt.Sprintf("%s:%d", dev.IP, dev.APIPort())
	c, err := ros.DialTimeout(addr, user, pass, d.Timeout)
	if err != nil {
		return nil, fmt.Errorf("routeros: dial %s: %w", addr, err)
	}
	return &apiClient{c: c}, nil
}

type apiClient struct {
	c *ros.Client
}

func (a *apiClient) Print(path string) ([]map[string]string, error) {
	reply, err := a.c.Run(path + "/print")
	if err != nil {
		return nil, fmt.Errorf("routeros: print %s: %w", path, err)
	}
	items := make([]map[string]string, 0, len(reply.Re))
	for _, re := range reply.Re {
		items = append(items, re.Map)
	}
	return items, nil
}

func (a *apiClient) Add(path string, attrs map[string]string) error {
	_, err := a.c.Run(words(path+"/add", attrs)...)
	if err != nil {
		return fmt.Errorf("routeros: add %s: %w", path, err)
	}
	return nil
}

func (a *apiClient) Update(path, id string, attrs map[string]string) error {
	sentence := words(path+"/set", attrs)
	sentence = append(sentence, "=.id="+id)
	if _, err := a.c.Run(sentence...); err != nil {
		return fmt.Errorf("routeros: set %s: %w", path, err)
	}
	return nil
}

func (a *apiClient) SetGlobal(path string, attrs map[string]string) error {
	if _, err := a.c.Run(words(path+"/set", attrs)...); err != nil {
		return fmt.Errorf("routeros: set %s: %w", path, err)
	}
	return nil
}

func (a *apiClient) Remove(path string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := a.c.Run(path+"/remove", "=.id="+strings.Join(ids, ","))
	if err != nil {
		return fmt.Errorf("routeros: remove %s: %w", path, err)
	}
	return nil
}

func (a *apiClient) Version() (Version, error) {
	items, err := a.Print("/system/resource")
	if err != nil {
		return Version{}, err
	}
	if len(items) == 0 {
		return Version{}, fmt.Errorf("routeros: empty /system/resource reply")
	}
	return ParseVersion(items[0]["version"])
}

func (a *apiClient) Close() error {
	a.c.Close()
	return nil
}

func words(command string, attrs map[string]string) []string {
	sentence := []string{command}
	for k, v := range attrs {
		sentence = append(sentence, "="+k+"="+v)
	}
	return sentence
}
