package metrics

import (
	"sync/atomic"
	"time"
)

// Collector counts protocol outcomes and logs security events. Each
// rejection class has its own counter and its own log signature, so replay
// storms, tampering, and clock drift are separable in monitoring.
//
// All methods are safe for concurrent use.
type Collector struct {
	logger *Logger

	handshakeLatency *Histogram

	sessionsEstablished atomic.Uint64
	handshakeFailures   atomic.Uint64
	envelopesSealed     atomic.Uint64
	envelopesOpened     atomic.Uint64
	malformedRejected   atomic.Uint64
	replaysBlocked      atomic.Uint64
	skewSuspected       atomic.Uint64
	integrityViolations atomic.Uint64
	unsignedRejected    atomic.Uint64
	decryptFailures     atomic.Uint64
	signaturesRejected  atomic.Uint64
}

// NewCollector creates a collector logging security events through the
// given logger. A nil logger silences event logging but keeps counting.
func NewCollector(logger *Logger) *Collector {
	if logger == nil {
		logger = NullLogger()
	}
	return &Collector{
		logger:           logger.Named("security"),
		handshakeLatency: NewHistogram(HandshakeLatencyBuckets),
	}
}

// HandshakeCompleted records a successful key establishment and its
// latency.
func (c *Collector) HandshakeCompleted(mode string, elapsed time.Duration) {
	c.sessionsEstablished.Add(1)
	c.handshakeLatency.Observe(float64(elapsed.Microseconds()) / 1000.0)
	c.logger.Info("session established", Fields{
		"mode":       mode,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

// HandshakeFailed records a failed key establishment.
func (c *Collector) HandshakeFailed(mode string, err error) {
	c.handshakeFailures.Add(1)
	c.logger.Error("key exchange failed", Fields{
		"mode":  mode,
		"error": err.Error(),
	})
}

// EnvelopeSealed records a successfully sealed envelope.
func (c *Collector) EnvelopeSealed(sessionID string) {
	c.envelopesSealed.Add(1)
	c.logger.Debug("envelope sealed", Fields{"session": sessionID})
}

// EnvelopeOpened records a successfully opened envelope.
func (c *Collector) EnvelopeOpened(sessionID string) {
	c.envelopesOpened.Add(1)
	c.logger.Debug("envelope opened", Fields{"session": sessionID})
}

// MalformedRejected records a structurally invalid envelope.
func (c *Collector) MalformedRejected(sessionID string) {
	c.malformedRejected.Add(1)
	c.logger.Warn("malformed envelope rejected", Fields{"session": sessionID})
}

// ReplayBlocked records a duplicate or stale envelope.
func (c *Collector) ReplayBlocked(sessionID string) {
	c.replaysBlocked.Add(1)
	c.logger.Warn("replay blocked", Fields{"session": sessionID})
}

// SkewSuspected records an envelope with an implausibly future timestamp.
func (c *Collector) SkewSuspected(sessionID string) {
	c.skewSuspected.Add(1)
	c.logger.Warn("clock skew suspected", Fields{"session": sessionID})
}

// IntegrityViolation records an HMAC mismatch. Logged at error level:
// this is tampering, a wrong key, or corruption, never normal traffic.
func (c *Collector) IntegrityViolation(sessionID, sender string) {
	c.integrityViolations.Add(1)
	c.logger.Error("integrity violation", Fields{
		"session": sessionID,
		"sender":  sender,
	})
}

// UnsignedRejected records a legacy envelope rejected by policy.
func (c *Collector) UnsignedRejected(sessionID, sender string) {
	c.unsignedRejected.Add(1)
	c.logger.Warn("unsigned envelope rejected", Fields{
		"session": sessionID,
		"sender":  sender,
	})
}

// DecryptFailure records an AEAD authentication failure.
func (c *Collector) DecryptFailure(sessionID string) {
	c.decryptFailures.Add(1)
	c.logger.Warn("decryption failed", Fields{"session": sessionID})
}

// SignatureRejected records a failed detached signature verification.
func (c *Collector) SignatureRejected(sessionID, sender string) {
	c.signaturesRejected.Add(1)
	c.logger.Error("audit signature rejected", Fields{
		"session": sessionID,
		"sender":  sender,
	})
}

// HandshakeLatency returns the handshake latency histogram.
func (c *Collector) HandshakeLatency() *Histogram {
	return c.handshakeLatency
}

// Snapshot is a point-in-time view of the collector's counters.
type Snapshot struct {
	SessionsEstablished uint64 `json:"sessions_established"`
	HandshakeFailures   uint64 `json:"handshake_failures"`
	EnvelopesSealed     uint64 `json:"envelopes_sealed"`
	EnvelopesOpened     uint64 `json:"envelopes_opened"`
	MalformedRejected   uint64 `json:"malformed_rejected"`
	ReplaysBlocked      uint64 `json:"replays_blocked"`
	SkewSuspected       uint64 `json:"skew_suspected"`
	IntegrityViolations uint64 `json:"integrity_violations"`
	UnsignedRejected    uint64 `json:"unsigned_rejected"`
	DecryptFailures     uint64 `json:"decrypt_failures"`
	SignaturesRejected  uint64 `json:"signatures_rejected"`
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		SessionsEstablished: c.sessionsEstablished.Load(),
		HandshakeFailures:   c.handshakeFailures.Load(),
		EnvelopesSealed:     c.envelopesSealed.Load(),
		EnvelopesOpened:     c.envelopesOpened.Load(),
		MalformedRejected:   c.malformedRejected.Load(),
		ReplaysBlocked:      c.replaysBlocked.Load(),
		SkewSuspected:       c.skewSuspected.Load(),
		IntegrityViolations: c.integrityViolations.Load(),
		UnsignedRejected:    c.unsignedRejected.Load(),
		DecryptFailures:     c.decryptFailures.Load(),
		SignaturesRejected:  c.signaturesRejected.Load(),
	}
}
