// Package devrpc holds the live device reads syslogd needs outside the
// policy push path. Today that is the device's local user list, which
// decides whether a syslog-observed login was local or RADIUS-backed.
package devrpc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/routeros"
)

// Dialer matches routeros.Dialer; declared here so tests can fake it.
type Dialer interface {
	Dial(dev *models.Device) (routeros.Client, error)
}

// LocalUsers fetches a device's local user list, cached in redis for a
// short TTL so a chatty device does not get one API login per log line.
// A nil redis client disables caching.
type LocalUsers struct {
	dialer Dialer
	rdb    *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewLocalUsers(dialer Dialer, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *LocalUsers {
	return &LocalUsers{dialer: dialer, rdb: rdb, ttl: ttl, log: log}
}

// Get returns the device's local usernames.
func (l *LocalUsers) Get(ctx context.Context, dev *models.Device) ([]string, error) {
	key := fmt.Sprintf("localusers:%d", dev.ID)
	if l.rdb != nil {
		if v, err := l.rdb.Get(ctx, key).Result(); err == nil {
			if v == "" {
				return nil, nil
			}
			return strings.Split(v, "\n"), nil
		} else if err != redis.Nil {
			l.log.Warn("local user cache read failed", "devid", dev.ID, "err", err)
		}
	}

	c, err := l.dialer.Dial(dev)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	items, err := c.Print("/user")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if n := item["name"]; n != "" {
			names = append(names, n)
		}
	}

	if l.rdb != nil {
		if err := l.rdb.Set(ctx, key, strings.Join(names, "\n"), l.ttl).Err(); err != nil {
			l.log.Warn("local user cache write failed", "devid", dev.ID, "err", err)
		}
	}
	return names, nil
}

// Contains reports whether username exists locally on the device.
func (l *LocalUsers) Contains(ctx context.Context, dev *models.Device, username string) (bool, error) {
	names, err := l.Get(ctx, dev)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == username {
			return true, nil
		}
	}
	return false, nil
}
