package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/MikroWizard/mikroman/internal/metrics"
	"github.com/MikroWizard/mikroman/internal/models"
)

// Options tunes the bounded cross-channel poll. The defaults are the
// production-tuned values; see Engine for the contract.
type Options struct {
	// Window is the ± uncertainty window in seconds around a signal's
	// timestamp when matching the other channel's record.
	Window int64
	// Interval is the pause between poll attempts.
	Interval time.Duration
	// MaxPolls is the hard ceiling on poll attempts.
	MaxPolls int
}

func DefaultOptions() Options {
	return Options{Window: 2, Interval: 300 * time.Millisecond, MaxPolls: 33}
}

// Engine is the session correlation state machine. RADIUS and syslog are
// independent, unordered channels; rather than blocking indefinitely or
// accepting unbounded duplicate rows, the engine polls the store for the
// other channel's record inside a bounded window and enriches it when
// found. Duplicate-insert races between the two writer processes are an
// accepted, bounded data-quality cost.
type Engine struct {
	db   *sql.DB
	log  *slog.Logger
	opts Options

	// sleep and randSuffix are swappable for tests.
	sleep      func(time.Duration)
	randSuffix func() string
}

func NewEngine(db *sql.DB, log *slog.Logger, opts Options) *Engine {
	if opts.Window <= 0 {
		opts = DefaultOptions()
	}
	return &Engine{
		db:         db,
		log:        log,
		opts:       opts,
		sleep:      time.Sleep,
		randSuffix: randomSuffix,
	}
}

// Process routes one signal through the state machine. Errors are storage
// errors; a signal that matches nothing is not an error.
func (e *Engine) Process(ctx context.Context, sig Signal) error {
	sig.Username = strings.TrimSpace(sig.Username)
	sig.By = strings.TrimSpace(sig.By)
	sig.IP = strings.TrimSpace(sig.IP)

	switch sig.Kind {
	case models.AuthFailed:
		return e.processFailed(ctx, sig)
	case models.AuthLoggedIn:
		return e.processLoggedIn(ctx, sig)
	case models.AuthLoggedOut:
		return e.processLoggedOut(ctx, sig)
	default:
		return fmt.Errorf("audit: unknown signal kind %q", sig.Kind)
	}
}

// processFailed merges a syslog-confirmed RADIUS rejection into the failed
// row the RADIUS engine already wrote; any other failure inserts directly.
func (e *Engine) processFailed(ctx context.Context, sig Signal) error {
	if sig.Message == models.OriginRadius {
		ids, found, err := e.pollFind(ctx, func(ctx context.Context) ([]int64, error) {
			return e.findIDs(ctx,
				`SELECT id FROM auth WHERE ltype='failed' AND username=$1 AND started > $2 AND started < $3`,
				sig.Username, sig.Timestamp-e.opts.Window, sig.Timestamp+e.opts.Window)
		})
		if err != nil {
			return err
		}
		if found {
			for i, id := range ids {
				// The merged row gets a synthesized session id so later
				// signals can address it.
				sessionID := fmt.Sprintf("%d%s", sig.Timestamp+int64(i)+1, e.randSuffix())
				if _, err := e.db.ExecContext(ctx,
					`UPDATE auth SET by=$2, sessionid=$3 WHERE id=$1`,
					id, sig.By, sessionID); err != nil {
					return err
				}
			}
			metrics.CorrelationMerged.WithLabelValues(models.AuthFailed).Inc()
			return nil
		}
	}
	return e.insert(ctx, sig, sig.Timestamp, sig.Timestamp)
}

// processLoggedIn enriches the open record for (device, username) when one
// exists, preferring an exact session-id match; a syslog radius-confirmed
// signal without a session id polls for the accounting Start that may not
// have landed yet.
func (e *Engine) processLoggedIn(ctx context.Context, sig Signal) error {
	var ids []int64
	var found bool
	var err error

	switch {
	case sig.SessionID != "":
		ids, err = e.findIDs(ctx,
			`SELECT id FROM auth WHERE devid=$1 AND ltype='loggedin' AND username=$2 AND sessionid=$3 AND ended=0`,
			sig.DeviceID, sig.Username, sig.SessionID)
		found = err == nil && len(ids) > 0
	case sig.Message == models.OriginRadius:
		ids, found, err = e.pollFind(ctx, func(ctx context.Context) ([]int64, error) {
			return e.findIDs(ctx,
				`SELECT id FROM auth WHERE devid=$1 AND ltype='loggedin' AND username=$2 AND ended=0 AND started > $3 AND started < $4`,
				sig.DeviceID, sig.Username, sig.Timestamp-e.opts.Window, sig.Timestamp+e.opts.Window)
		})
	}
	if err != nil {
		return err
	}

	if found {
		for _, id := range ids {
			if _, err := e.db.ExecContext(ctx,
				`UPDATE auth SET
					sessionid = CASE WHEN sessionid IS NULL OR sessionid = '' THEN $2 ELSE sessionid END,
					by = CASE WHEN $3 <> '' THEN $3 ELSE by END,
					message = CASE WHEN $4 <> '' THEN $4 ELSE message END
				 WHERE id=$1`,
				id, sig.SessionID, sig.By, sig.Message); err != nil {
				return err
			}
		}
		metrics.CorrelationMerged.WithLabelValues(models.AuthLoggedIn).Inc()
		return nil
	}
	return e.insert(ctx, sig, sig.Timestamp, 0)
}

// processLoggedOut closes the open record when a session id is known. A
// radius-tagged signal without one is dropped: the accounting Stop carries
// the id and will close the row itself.
func (e *Engine) processLoggedOut(ctx context.Context, sig Signal) error {
	if sig.SessionID != "" {
		res, err := e.db.ExecContext(ctx,
			`UPDATE auth SET ended=$2 WHERE sessionid=$1 AND ltype='loggedin' AND ended=0`,
			sig.SessionID, sig.Timestamp)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			metrics.CorrelationMerged.WithLabelValues(models.AuthLoggedOut).Inc()
			return nil
		}
		e.log.Warn("loggedout for unknown session",
			"devid", sig.DeviceID, "username", sig.Username, "sessionid", sig.SessionID)
		return nil
	}
	if sig.Message == models.OriginRadius {
		return nil
	}
	// Standalone logout for audit completeness.
	return e.insert(ctx, sig, 0, sig.Timestamp)
}

func (e *Engine) insert(ctx context.Context, sig Signal, started, ended int64) error {
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO auth (devid, ltype, username, ip, by, started, ended, sessionid, message)
		 VALUES (NULLIF($1,0), $2, $3, $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''))`,
		sig.DeviceID, sig.Kind, sig.Username, sig.IP, sig.By, started, ended, sig.SessionID, sig.Message)
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", sig.Kind, err)
	}
	metrics.CorrelationInserted.WithLabelValues(sig.Kind).Inc()
	return nil
}

// pollFind runs find until it returns rows or the retry budget is spent.
// The first attempt is immediate; each subsequent attempt waits Interval,
// up to MaxPolls waits, so the total delay is hard-bounded.
func (e *Engine) pollFind(ctx context.Context, find func(context.Context) ([]int64, error)) ([]int64, bool, error) {
	for attempt := 0; ; attempt++ {
		ids, err := find(ctx)
		if err != nil {
			return nil, false, err
		}
		if len(ids) > 0 {
			return ids, true, nil
		}
		if attempt >= e.opts.MaxPolls {
			return nil, false, nil
		}
		metrics.CorrelationPolls.Inc()
		e.sleep(e.opts.Interval)
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
	}
}

func (e *Engine) findIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomSuffix() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}
