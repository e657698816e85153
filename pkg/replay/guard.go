// Package replay implements the stateful acceptance filter that rejects
// replayed, stale, and future-dated envelopes.
//
// The guard keeps one bounded, time-ordered set of (nonce, timestamp) pairs
// per active session. Classification is per message:
//
//   - Duplicate: nonce already present, regardless of timestamp. Duplicate
//     detection takes precedence over freshness.
//   - Stale: timestamp older than now − window.
//   - FutureSkew: timestamp beyond now + skew tolerance.
//   - Fresh: everything else; the pair is recorded atomically with the check.
//
// Check-then-insert is a single critical section per session, so two
// concurrent replays of the same nonce cannot both pass. Sessions share no
// mutable state and are checked fully in parallel.
//
// Eviction is lazy: each check purges entries whose retention has lapsed,
// amortized O(1) per check with memory bounded by message rate × window
// length. Sweep is available for optional periodic hygiene but is not
// required for correctness.
package replay

import (
	"fmt"
	"sync"
	"time"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// Guard is the replay acceptance filter. It is safe for concurrent use
// across any number of sessions.
type Guard struct {
	window time.Duration
	skew   time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*sessionWindow
}

// sessionWindow tracks the nonces seen for one session.
//
// Entries are retained for window + skew after arrival: an accepted entry's
// timestamp can pass the staleness check for at most that long, so any
// replay that would look fresh still finds its nonce present.
type sessionWindow struct {
	mu     sync.Mutex
	nonces map[string]int64 // nonce -> sender timestamp (epoch millis)
	order  []windowEntry    // arrival order, for lazy eviction
}

type windowEntry struct {
	nonce     string
	arrivedAt time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a replay guard with the given acceptance window and
// future-skew tolerance. Non-positive values fall back to the defaults
// (5 minutes / 1 minute).
func NewGuard(window, skew time.Duration, opts ...Option) *Guard {
	if window <= 0 {
		window = constants.DefaultReplayWindowMillis * time.Millisecond
	}
	if skew <= 0 {
		skew = constants.DefaultSkewToleranceMillis * time.Millisecond
	}
	g := &Guard{
		window:   window,
		skew:     skew,
		now:      time.Now,
		sessions: make(map[string]*sessionWindow),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Window returns the configured acceptance window.
func (g *Guard) Window() time.Duration { return g.window }

// Skew returns the configured future-skew tolerance.
func (g *Guard) Skew() time.Duration { return g.skew }

// Check classifies one inbound envelope for the given session and, if
// fresh, records its (nonce, timestamp) pair. The check and the insert are
// one atomic step.
//
// Returns nil for fresh envelopes, ErrReplayDetected for duplicates and
// stale timestamps, and ErrClockSkewSuspected for timestamps implausibly in
// the future. All outcomes are terminal for the message and non-fatal for
// the session.
func (g *Guard) Check(sessionID string, nonce []byte, timestampMillis int64) error {
	sw := g.session(sessionID)
	now := g.now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evict(now, g.window+g.skew)

	key := string(nonce)
	if _, seen := sw.nonces[key]; seen {
		return fmt.Errorf("duplicate nonce: %w", qerrors.ErrReplayDetected)
	}

	ts := time.UnixMilli(timestampMillis)
	if ts.Before(now.Add(-g.window)) {
		return fmt.Errorf("stale timestamp: %w", qerrors.ErrReplayDetected)
	}
	if ts.After(now.Add(g.skew)) {
		return qerrors.ErrClockSkewSuspected
	}

	sw.nonces[key] = timestampMillis
	sw.order = append(sw.order, windowEntry{nonce: key, arrivedAt: now})
	return nil
}

// Drop destroys all replay state for a session. Call on session teardown
// (session end, logout, or idle timeout).
func (g *Guard) Drop(sessionID string) {
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
}

// Sweep evicts lapsed entries across all sessions and removes sessions with
// no remaining entries. Optional memory hygiene; correctness never depends
// on it.
func (g *Guard) Sweep() {
	now := g.now()
	retention := g.window + g.skew

	g.mu.Lock()
	defer g.mu.Unlock()

	for id, sw := range g.sessions {
		sw.mu.Lock()
		sw.evict(now, retention)
		empty := len(sw.order) == 0
		sw.mu.Unlock()
		if empty {
			delete(g.sessions, id)
		}
	}
}

// Sessions returns the number of sessions currently holding replay state.
func (g *Guard) Sessions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// session returns the window for the given session, creating it on first
// use.
func (g *Guard) session(id string) *sessionWindow {
	g.mu.RLock()
	sw, ok := g.sessions[id]
	g.mu.RUnlock()
	if ok {
		return sw
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if sw, ok = g.sessions[id]; ok {
		return sw
	}
	sw = &sessionWindow{nonces: make(map[string]int64)}
	g.sessions[id] = sw
	return sw
}

// evict removes entries retained longer than the retention period.
// Called with sw.mu held. Entries are arrival-ordered, so eviction stops at
// the first entry still inside retention.
func (sw *sessionWindow) evict(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(sw.order); i++ {
		if sw.order[i].arrivedAt.After(cutoff) {
			break
		}
		delete(sw.nonces, sw.order[i].nonce)
	}
	if i > 0 {
		sw.order = append(sw.order[:0], sw.order[i:]...)
	}
}
