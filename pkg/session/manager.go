package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
	"github.com/cryptexq/cryptexq-go/pkg/keyexchange"
	"github.com/cryptexq/cryptexq-go/pkg/metrics"
	"github.com/cryptexq/cryptexq-go/pkg/replay"
)

// Manager owns the session table. It establishes sessions through a key
// establisher, tears down idle ones, and optionally persists key material
// as sealed blobs for resumption across restarts.
type Manager struct {
	establisher *keyexchange.Establisher
	guard       *replay.Guard

	suite         constants.CipherSuite
	policy        envelope.Policy
	signer        *envelope.SigningKeyPair
	peerVerifyKey []byte
	keeper        *Keeper
	idleTimeout   time.Duration

	collector *metrics.Collector
	logger    *metrics.Logger
	tracer    metrics.Tracer
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSuite selects the AEAD suite for new sessions.
func WithSuite(suite constants.CipherSuite) ManagerOption {
	return func(m *Manager) {
		m.suite = suite
	}
}

// WithPolicy sets the acceptance policy for inbound envelopes.
func WithPolicy(p envelope.Policy) ManagerOption {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithSigner makes every session attach audit signatures with the given key
// pair. Inbound signatures verify against the same key unless
// WithPeerVerifyKey overrides it.
func WithSigner(kp *envelope.SigningKeyPair) ManagerOption {
	return func(m *Manager) {
		m.signer = kp
	}
}

// WithPeerVerifyKey sets the encoded public key used to verify inbound
// audit signatures.
func WithPeerVerifyKey(pub []byte) ManagerOption {
	return func(m *Manager) {
		m.peerVerifyKey = pub
	}
}

// WithKeeper enables blob persistence for established sessions.
func WithKeeper(k *Keeper) ManagerOption {
	return func(m *Manager) {
		m.keeper = k
	}
}

// WithIdleTimeout sets the inactivity period after which ReapIdle tears a
// session down.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) ManagerOption {
	return func(m *Manager) {
		m.collector = c
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *metrics.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithTracer sets the tracer for session operations.
func WithTracer(t metrics.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = t
	}
}

// WithManagerClock overrides the time source. Intended for tests.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager. The establisher and replay guard
// are required; everything else has working defaults.
func NewManager(establisher *keyexchange.Establisher, guard *replay.Guard, opts ...ManagerOption) (*Manager, error) {
	if establisher == nil || guard == nil {
		return nil, qerrors.ErrInvalidConfig
	}
	m := &Manager{
		establisher: establisher,
		guard:       guard,
		suite:       constants.CipherSuiteAES256GCM,
		policy:      envelope.DefaultPolicy(),
		idleTimeout: constants.DefaultIdleTimeoutSeconds * time.Second,
		logger:      metrics.GetLogger().Named("session"),
		tracer:      metrics.NoOpTracer{},
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.suite.IsSupported() {
		return nil, qerrors.ErrUnsupportedCipherSuite
	}
	if m.collector == nil {
		m.collector = metrics.NewCollector(m.logger)
	}
	if m.signer != nil && m.peerVerifyKey == nil {
		pub, err := m.signer.PublicKeyBytes()
		if err != nil {
			return nil, err
		}
		m.peerVerifyKey = pub
	}
	return m, nil
}

// Collector returns the manager's metrics collector.
func (m *Manager) Collector() *metrics.Collector {
	return m.collector
}

// Establish runs a key exchange between the two identities and registers
// the resulting session. On exchange failure no session exists and the
// caller may simply retry.
func (m *Manager) Establish(ctx context.Context, localID, peerID string) (*Session, error) {
	ctx, end := m.tracer.StartSpan(ctx, metrics.SpanEstablish, metrics.WithSpanAttributes(
		map[string]interface{}{"mode": m.establisher.Mode().String()}))

	start := m.now()
	km, err := m.establisher.Establish(ctx, localID, peerID)
	end(err)
	if err != nil {
		m.collector.HandshakeFailed(m.establisher.Mode().String(), err)
		return nil, err
	}
	m.collector.HandshakeCompleted(m.establisher.Mode().String(), m.now().Sub(start))

	s := m.newSession(uuid.NewString(), localID, peerID, km)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	if m.keeper != nil {
		if err := m.keeper.Save(s); err != nil {
			m.logger.Warn("session blob save failed", metrics.Fields{
				"session": s.ID,
				"error":   err.Error(),
			})
		}
	}

	m.logger.Info("session opened", metrics.Fields{
		"session": s.ID,
		"local":   localID,
		"peer":    peerID,
		"suite":   m.suite.String(),
	})
	return s, nil
}

// Restore rebuilds a session from its persisted blob. Expired key material
// is rejected; the restored session starts with empty replay state, so the
// window protects only traffic received after restoration.
func (m *Manager) Restore(ctx context.Context, id string) (*Session, error) {
	if m.keeper == nil {
		return nil, qerrors.ErrSessionNotFound
	}

	_, end := m.tracer.StartSpan(ctx, metrics.SpanBlobRestore, metrics.WithSpanAttributes(
		map[string]interface{}{"session.id": id}))

	rec, err := m.keeper.Load(id)
	end(err)
	if err != nil {
		return nil, err
	}

	s := m.newSession(id, rec.LocalID, rec.PeerID, rec.KM)
	s.suite = rec.Suite
	cipher, err := envelope.NewCipher(rec.Suite)
	if err != nil {
		return nil, err
	}
	s.cipher = cipher

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session restored", metrics.Fields{"session": id})
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, qerrors.ErrSessionNotFound
	}
	return s, nil
}

// Close tears down one session and removes its persisted blob.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return qerrors.ErrSessionNotFound
	}

	s.Close()
	if m.keeper != nil {
		if err := m.keeper.Delete(id); err != nil {
			m.logger.Warn("session blob delete failed", metrics.Fields{
				"session": id,
				"error":   err.Error(),
			})
		}
	}
	m.logger.Info("session closed", metrics.Fields{"session": id})
	return nil
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range sessions {
		s.Close()
		if m.keeper != nil {
			_ = m.keeper.Delete(id)
		}
	}
}

// ReapIdle closes sessions whose last activity is older than the idle
// timeout, and sessions whose key material has expired. Returns the number
// of sessions torn down. Teardown destroys the session's replay state.
func (m *Manager) ReapIdle() int {
	now := m.now()

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		last := s.LastActivity()
		if last.IsZero() {
			last = s.km.EstablishedAt
		}
		if now.Sub(last) > m.idleTimeout || s.km.Expired(now) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		if err := m.Close(id); err == nil {
			m.logger.Info("idle session reaped", metrics.Fields{"session": id})
		}
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) newSession(id, localID, peerID string, km *envelope.KeyMaterial) *Session {
	// The suite is validated in NewManager, so NewCipher cannot fail here.
	cipher, _ := envelope.NewCipher(m.suite)
	s := &Session{
		ID:            id,
		LocalID:       localID,
		PeerID:        peerID,
		km:            km,
		suite:         m.suite,
		cipher:        cipher,
		codec:         envelope.NewCodec(),
		guard:         m.guard,
		policy:        m.policy,
		signer:        m.signer,
		peerVerifyKey: m.peerVerifyKey,
		collector:     m.collector,
		tracer:        m.tracer,
		now:           m.now,
	}
	s.state.Store(int32(StateEstablished))
	s.lastActivity.Store(m.now().UnixMilli())
	return s
}
