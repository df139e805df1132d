package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	logx "github.com/ragrelay/server/pkg/logger"
)

// ErrStoreUnavailable distinguishes a backing-store outage under fail-closed
// mode from an ordinary over-limit rejection.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Mode selects the failure policy when the backing store is unreachable.
type Mode string

const (
	// FailOpen allows the request when the store cannot be consulted.
	FailOpen Mode = "fail_open"
	// FailClosed rejects with ErrStoreUnavailable instead of guessing.
	FailClosed Mode = "fail_closed"
)

// ParseMode normalises a configured mode string, defaulting to fail-open.
func ParseMode(v string) Mode {
	if Mode(v) == FailClosed {
		return FailClosed
	}
	return FailOpen
}

// Config holds limiter settings sourced from the environment.
type Config struct {
	MaxRequests int    `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"20"`
	Window      string `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	Mode        string `envconfig:"RATE_LIMIT_MODE" default:"fail_open"`
}

// Decision is the admission-control verdict for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Admission is the store-level outcome of one atomic check-and-record.
type Admission struct {
	Allowed bool
	// Count is the number of window entries after the call (including the
	// recorded attempt when allowed).
	Count int
	// OldestAt is the timestamp of the oldest surviving entry.
	OldestAt time.Time
}

// WindowStore is the sorted-set-like boundary the limiter runs against.
// Admit must atomically purge entries older than now-window, count the
// survivors, and record the attempt only when the count is under the limit.
// Rejected attempts are never recorded.
type WindowStore interface {
	Admit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Admission, error)
}

// Limiter is a distributed sliding-window admission-control primitive keyed
// by user and operation.
type Limiter struct {
	store  WindowStore
	limit  int
	window time.Duration
	mode   Mode

	// now is swapped in tests to drive the window deterministically.
	now func() time.Time
}

func New(store WindowStore, limit int, window time.Duration, mode Mode) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		mode:   mode,
		now:    time.Now,
	}
}

// Check admits or rejects one request for the user and operation. Under
// fail-open mode a store outage admits the request; under fail-closed it
// returns an error wrapping ErrStoreUnavailable.
func (l *Limiter) Check(ctx context.Context, userID, operation string) (Decision, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", userID, operation)
	now := l.now()

	adm, err := l.store.Admit(ctx, key, now, l.window, l.limit)
	if err != nil {
		if l.mode == FailClosed {
			return Decision{}, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
		}
		logx.Warn().Err(err).Str("key", key).Msg("Rate limit store unreachable; failing open")
		return Decision{Allowed: true, Remaining: l.limit, ResetAt: now.Add(l.window)}, nil
	}

	remaining := l.limit - adm.Count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now.Add(l.window)
	if !adm.OldestAt.IsZero() {
		resetAt = adm.OldestAt.Add(l.window)
	}

	return Decision{
		Allowed:   adm.Allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
