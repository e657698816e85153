package replay_test

import (
	"sync"
	"testing"
	"time"

	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
	"github.com/cryptexq/cryptexq-go/pkg/replay"
)

const (
	testWindow = 5 * time.Minute
	testSkew   = time.Minute
)

// testStart returns a whole-millisecond base time, so converting boundary
// timestamps through UnixMilli loses no precision.
func testStart() time.Time {
	return time.Now().Truncate(time.Millisecond)
}

// fixedClock returns a guard pinned to a fixed time plus a setter to move it.
func fixedClock(start time.Time) (func() time.Time, func(time.Time)) {
	var mu sync.Mutex
	current := start
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	set := func(t time.Time) {
		mu.Lock()
		defer mu.Unlock()
		current = t
	}
	return now, set
}

func newNonce() []byte {
	return crypto.MustSecureRandomBytes(12)
}

func TestGuardAcceptsFresh(t *testing.T) {
	now, _ := fixedClock(testStart())
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	if err := g.Check("s1", newNonce(), now().UnixMilli()); err != nil {
		t.Fatalf("fresh envelope rejected: %v", err)
	}
}

func TestGuardRejectsDuplicate(t *testing.T) {
	now, _ := fixedClock(testStart())
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	ts := now().UnixMilli()

	if err := g.Check("s1", nonce, ts); err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if err := g.Check("s1", nonce, ts); !qerrors.Is(err, qerrors.ErrReplayDetected) {
		t.Errorf("duplicate: got %v, want ErrReplayDetected", err)
	}
}

func TestGuardDuplicatePrecedence(t *testing.T) {
	// A recorded nonce replayed with a stale or future timestamp is still
	// classified as a duplicate.
	start := testStart()
	now, setNow := fixedClock(start)
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	if err := g.Check("s1", nonce, start.UnixMilli()); err != nil {
		t.Fatalf("first check failed: %v", err)
	}

	// Move time forward but keep the entry inside retention.
	setNow(start.Add(time.Minute))

	err := g.Check("s1", nonce, start.Add(-testWindow-time.Hour).UnixMilli())
	if !qerrors.Is(err, qerrors.ErrReplayDetected) {
		t.Errorf("duplicate with stale ts: got %v, want ErrReplayDetected", err)
	}
	err = g.Check("s1", nonce, start.Add(time.Hour).UnixMilli())
	if !qerrors.Is(err, qerrors.ErrReplayDetected) {
		t.Errorf("duplicate with future ts: got %v, want ErrReplayDetected", err)
	}
}

func TestGuardStalenessBoundary(t *testing.T) {
	start := testStart()
	now, _ := fixedClock(start)
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	// Exactly at now - window: accepted.
	if err := g.Check("s1", newNonce(), start.Add(-testWindow).UnixMilli()); err != nil {
		t.Errorf("boundary timestamp rejected: %v", err)
	}

	// One millisecond older: rejected as stale.
	err := g.Check("s1", newNonce(), start.Add(-testWindow-time.Millisecond).UnixMilli())
	if !qerrors.Is(err, qerrors.ErrReplayDetected) {
		t.Errorf("stale: got %v, want ErrReplayDetected", err)
	}

	// One millisecond inside: accepted.
	if err := g.Check("s1", newNonce(), start.Add(-testWindow+time.Millisecond).UnixMilli()); err != nil {
		t.Errorf("inside-window timestamp rejected: %v", err)
	}
}

func TestGuardFutureSkewBoundary(t *testing.T) {
	start := testStart()
	now, _ := fixedClock(start)
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	// Exactly at now + skew: accepted.
	if err := g.Check("s1", newNonce(), start.Add(testSkew).UnixMilli()); err != nil {
		t.Errorf("boundary future timestamp rejected: %v", err)
	}

	// One millisecond beyond: clock skew suspected.
	err := g.Check("s1", newNonce(), start.Add(testSkew+time.Millisecond).UnixMilli())
	if !qerrors.Is(err, qerrors.ErrClockSkewSuspected) {
		t.Errorf("future skew: got %v, want ErrClockSkewSuspected", err)
	}

	// One millisecond inside: accepted.
	if err := g.Check("s1", newNonce(), start.Add(testSkew-time.Millisecond).UnixMilli()); err != nil {
		t.Errorf("inside-skew timestamp rejected: %v", err)
	}
}

func TestGuardRejectedTimestampNotRecorded(t *testing.T) {
	// A stale rejection must not record the nonce: the same nonce with a
	// fresh timestamp is then accepted.
	start := testStart()
	now, _ := fixedClock(start)
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	if err := g.Check("s1", nonce, start.Add(-testWindow-time.Hour).UnixMilli()); !qerrors.Is(err, qerrors.ErrReplayDetected) {
		t.Fatalf("stale: got %v, want ErrReplayDetected", err)
	}
	if err := g.Check("s1", nonce, start.UnixMilli()); err != nil {
		t.Errorf("nonce from rejected envelope should be usable: %v", err)
	}
}

func TestGuardSessionIndependence(t *testing.T) {
	now, _ := fixedClock(testStart())
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	ts := now().UnixMilli()

	if err := g.Check("s1", nonce, ts); err != nil {
		t.Fatalf("first session check failed: %v", err)
	}
	// Same nonce in a different session is fresh.
	if err := g.Check("s2", nonce, ts); err != nil {
		t.Errorf("same nonce in another session rejected: %v", err)
	}
	// But replaying within either session is caught.
	if err := g.Check("s2", nonce, ts); !qerrors.Is(err, qerrors.ErrReplayDetected) {
		t.Errorf("got %v, want ErrReplayDetected", err)
	}
}

func TestGuardDropDestroysState(t *testing.T) {
	now, _ := fixedClock(testStart())
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	ts := now().UnixMilli()

	if err := g.Check("s1", nonce, ts); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	g.Drop("s1")

	// After teardown the window protects a new session, not the old one.
	if err := g.Check("s1", nonce, ts); err != nil {
		t.Errorf("nonce rejected after session drop: %v", err)
	}
}

func TestGuardLazyEviction(t *testing.T) {
	start := testStart()
	now, setNow := fixedClock(start)
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	if err := g.Check("s1", nonce, start.UnixMilli()); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	// Once retention has lapsed, the entry is evicted on the next check.
	// The old nonce would only pass the freshness check with a fresh
	// timestamp, which eviction makes acceptable again.
	setNow(start.Add(testWindow + testSkew + time.Second))
	if err := g.Check("s1", nonce, now().UnixMilli()); err != nil {
		t.Errorf("evicted nonce rejected: %v", err)
	}
}

func TestGuardSweep(t *testing.T) {
	start := testStart()
	now, setNow := fixedClock(start)
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	for i := 0; i < 3; i++ {
		if err := g.Check("s1", newNonce(), start.UnixMilli()); err != nil {
			t.Fatalf("check failed: %v", err)
		}
	}
	if g.Sessions() != 1 {
		t.Fatalf("sessions: got %d, want 1", g.Sessions())
	}

	setNow(start.Add(testWindow + testSkew + time.Second))
	g.Sweep()

	if g.Sessions() != 0 {
		t.Errorf("sessions after sweep: got %d, want 0", g.Sessions())
	}
}

func TestGuardConcurrentDuplicateStorm(t *testing.T) {
	// Many goroutines race the same (nonce, timestamp); exactly one wins.
	now, _ := fixedClock(testStart())
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	nonce := newNonce()
	ts := now().UnixMilli()

	const workers = 64
	var wg sync.WaitGroup
	var acceptedCount int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Check("storm", nonce, ts); err == nil {
				mu.Lock()
				acceptedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acceptedCount != 1 {
		t.Errorf("accepted count: got %d, want exactly 1", acceptedCount)
	}
}

func TestGuardConcurrentSessions(t *testing.T) {
	now, _ := fixedClock(testStart())
	g := replay.NewGuard(testWindow, testSkew, replay.WithClock(now))

	const sessions = 16
	const perSession = 50

	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			for j := 0; j < perSession; j++ {
				if err := g.Check(id, newNonce(), now().UnixMilli()); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent fresh check failed: %v", err)
	}
}

func TestGuardDefaults(t *testing.T) {
	g := replay.NewGuard(0, 0)
	if g.Window() != 5*time.Minute {
		t.Errorf("default window: got %v, want 5m", g.Window())
	}
	if g.Skew() != time.Minute {
		t.Errorf("default skew: got %v, want 1m", g.Skew())
	}
}
