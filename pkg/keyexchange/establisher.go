// Package keyexchange implements simulated session key establishment.
//
// Three modes are supported, selected at construction:
//
//   - classical_dh: ephemeral X25519 Diffie-Hellman.
//   - hybrid_pqc: X25519 combined with ML-KEM-1024 encapsulation. The
//     session key is secure as long as either component holds.
//   - qkd_simulated: a BB84 quantum key distribution simulation whose raw
//     key is hybridized with an ML-KEM-1024 secret.
//
// Every mode ends in the same SHAKE-256 derivation over the mode's secrets
// and an identity transcript, under a mode-specific domain separator. The
// resulting KeyMaterial is indistinguishable across modes, so everything
// downstream of establishment is mode-agnostic.
//
// Establishment failures return no key material and retain no partial
// state; callers restart the handshake from scratch.
package keyexchange

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
)

// Mode selects the key establishment flavor.
type Mode uint8

const (
	// ModeClassicalDH is ephemeral X25519 Diffie-Hellman.
	ModeClassicalDH Mode = iota

	// ModeHybridPQC combines X25519 with ML-KEM-1024.
	ModeHybridPQC

	// ModeQKDSimulated runs a BB84 simulation hybridized with ML-KEM-1024.
	ModeQKDSimulated
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeClassicalDH:
		return "classical_dh"
	case ModeHybridPQC:
		return "hybrid_pqc"
	case ModeQKDSimulated:
		return "qkd_simulated"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "classical_dh":
		return ModeClassicalDH, nil
	case "hybrid_pqc":
		return ModeHybridPQC, nil
	case "qkd_simulated":
		return ModeQKDSimulated, nil
	default:
		return 0, fmt.Errorf("%w: %q", qerrors.ErrUnsupportedMode, s)
	}
}

// Establisher produces session key material for envelope sessions. It is
// immutable after construction and safe for concurrent use.
type Establisher struct {
	mode         Mode
	integrityKey []byte
	noiseRate    float64
	lifetime     time.Duration
	now          func() time.Time
}

// EstablisherOption configures an Establisher.
type EstablisherOption func(*Establisher)

// WithNoiseRate sets the simulated quantum channel noise for
// ModeQKDSimulated. Rates are clamped to [0, 1].
func WithNoiseRate(rate float64) EstablisherOption {
	return func(e *Establisher) {
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		e.noiseRate = rate
	}
}

// WithLifetime sets the validity period of established key material.
func WithLifetime(d time.Duration) EstablisherOption {
	return func(e *Establisher) {
		e.lifetime = d
	}
}

// WithEstablisherClock overrides the time source. Intended for tests.
func WithEstablisherClock(now func() time.Time) EstablisherOption {
	return func(e *Establisher) {
		e.now = now
	}
}

// NewEstablisher creates an Establisher for the given mode. The integrity
// secret is the process-wide provisioned secret; the HMAC integrity key is
// derived from it under its own domain separator, keeping it independent of
// every session key.
func NewEstablisher(mode Mode, integritySecret []byte, opts ...EstablisherOption) (*Establisher, error) {
	switch mode {
	case ModeClassicalDH, ModeHybridPQC, ModeQKDSimulated:
	default:
		return nil, qerrors.ErrUnsupportedMode
	}
	if len(integritySecret) == 0 {
		return nil, qerrors.ErrMissingIntegritySecret
	}

	integrityKey, err := crypto.DeriveKey(constants.DomainSeparatorIntegrityKey, integritySecret, constants.IntegrityKeySize)
	if err != nil {
		return nil, err
	}

	e := &Establisher{
		mode:         mode,
		integrityKey: integrityKey,
		noiseRate:    constants.QKDDefaultNoiseRate,
		lifetime:     constants.DefaultSessionLifetimeSeconds * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Mode returns the configured establishment mode.
func (e *Establisher) Mode() Mode { return e.mode }

// Establish runs one simulated key agreement between the two identities and
// returns fresh key material. The context deadline bounds the exchange; it
// is checked between phases.
//
// On any failure Establish returns nil key material; nothing about the
// attempt survives for a retry to observe.
func (e *Establisher) Establish(ctx context.Context, localID, peerID string) (*envelope.KeyMaterial, error) {
	if localID == "" || peerID == "" ||
		len(localID) > constants.MaxIdentitySize || len(peerID) > constants.MaxIdentitySize {
		return nil, e.fail("validate", qerrors.ErrInvalidPeerMaterial)
	}
	if err := e.checkDeadline(ctx, "start"); err != nil {
		return nil, err
	}

	transcript := crypto.TranscriptHash(
		[]byte(constants.ProtocolName),
		[]byte(e.mode.String()),
		[]byte(localID),
		[]byte(peerID),
	)

	var sessionKey []byte
	var err error
	switch e.mode {
	case ModeClassicalDH:
		sessionKey, err = e.establishClassical(ctx, transcript)
	case ModeHybridPQC:
		sessionKey, err = e.establishHybrid(ctx, transcript)
	case ModeQKDSimulated:
		sessionKey, err = e.establishQKD(ctx, transcript)
	default:
		err = qerrors.ErrUnsupportedMode
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	km := &envelope.KeyMaterial{
		SessionKey:    sessionKey,
		IntegrityKey:  append([]byte(nil), e.integrityKey...),
		EstablishedAt: now,
		ExpiresAt:     now.Add(e.lifetime),
	}
	if err := km.Validate(); err != nil {
		km.Zeroize()
		return nil, e.fail("derive", err)
	}
	return km, nil
}

// establishClassical performs an ephemeral X25519 exchange with both
// endpoints simulated in-process. Both directions of the DH computation
// must agree before any key is derived.
func (e *Establisher) establishClassical(ctx context.Context, transcript []byte) ([]byte, error) {
	secret, err := e.classicalSecret(ctx)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(secret)

	if err := e.checkDeadline(ctx, "derive"); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKeyMultiple(constants.DomainSeparatorClassical,
		[][]byte{secret, transcript}, constants.SessionKeySize)
	if err != nil {
		return nil, e.fail("derive", err)
	}
	return key, nil
}

// establishHybrid combines the classical DH secret with an ML-KEM-1024
// shared secret so that compromising either primitive alone does not
// compromise the session key.
func (e *Establisher) establishHybrid(ctx context.Context, transcript []byte) ([]byte, error) {
	classical, err := e.classicalSecret(ctx)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(classical)

	pq, err := e.postQuantumSecret(ctx)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(pq)

	if err := e.checkDeadline(ctx, "derive"); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKeyMultiple(constants.DomainSeparatorHybrid,
		[][]byte{classical, pq, transcript}, constants.SessionKeySize)
	if err != nil {
		return nil, e.fail("derive", err)
	}
	return key, nil
}

// establishQKD runs the BB84 simulation and hybridizes its raw key with an
// ML-KEM-1024 secret, so a failed simulation assumption never leaves the
// session key weaker than the PQC component.
func (e *Establisher) establishQKD(ctx context.Context, transcript []byte) ([]byte, error) {
	if err := e.checkDeadline(ctx, "sift"); err != nil {
		return nil, err
	}
	bb84, err := runBB84(e.noiseRate)
	if err != nil {
		return nil, e.fail("sift", err)
	}
	defer crypto.Zeroize(bb84.key)

	pq, err := e.postQuantumSecret(ctx)
	if err != nil {
		return nil, err
	}
	defer crypto.Zeroize(pq)

	if err := e.checkDeadline(ctx, "derive"); err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKeyMultiple(constants.DomainSeparatorQKD,
		[][]byte{bb84.key, pq, transcript}, constants.SessionKeySize)
	if err != nil {
		return nil, e.fail("derive", err)
	}
	return key, nil
}

// classicalSecret simulates both endpoints of an ephemeral X25519 exchange
// and returns the agreed shared secret.
func (e *Establisher) classicalSecret(ctx context.Context) ([]byte, error) {
	if err := e.checkDeadline(ctx, "dh"); err != nil {
		return nil, err
	}

	local, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, e.fail("dh", err)
	}
	defer local.Zeroize()

	peer, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, e.fail("dh", err)
	}
	defer peer.Zeroize()

	localView, err := crypto.X25519(local.PrivateKey, peer.PublicKey)
	if err != nil {
		return nil, e.fail("dh", err)
	}
	peerView, err := crypto.X25519(peer.PrivateKey, local.PublicKey)
	if err != nil {
		crypto.Zeroize(localView)
		return nil, e.fail("dh", err)
	}
	defer crypto.Zeroize(peerView)

	if !crypto.ConstantTimeCompare(localView, peerView) {
		crypto.Zeroize(localView)
		return nil, e.fail("dh", qerrors.ErrInvalidPeerMaterial)
	}
	return localView, nil
}

// postQuantumSecret simulates both endpoints of an ML-KEM-1024
// encapsulation and returns the agreed shared secret.
func (e *Establisher) postQuantumSecret(ctx context.Context) ([]byte, error) {
	if err := e.checkDeadline(ctx, "encapsulate"); err != nil {
		return nil, err
	}

	kp, err := crypto.GenerateMLKEMKeyPair()
	if err != nil {
		return nil, e.fail("encapsulate", err)
	}
	defer kp.Zeroize()

	kemCiphertext, encapsulated, err := crypto.MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		return nil, e.fail("encapsulate", err)
	}
	defer crypto.Zeroize(encapsulated)

	decapsulated, err := crypto.MLKEMDecapsulate(kp.DecapsulationKey, kemCiphertext)
	if err != nil {
		return nil, e.fail("decapsulate", err)
	}

	if !crypto.ConstantTimeCompare(encapsulated, decapsulated) {
		crypto.Zeroize(decapsulated)
		return nil, e.fail("decapsulate", qerrors.ErrInvalidPeerMaterial)
	}
	return decapsulated, nil
}

// checkDeadline aborts the exchange if the context is done. Phases
// themselves do not block, so checking between them bounds the whole
// exchange.
func (e *Establisher) checkDeadline(ctx context.Context, phase string) error {
	select {
	case <-ctx.Done():
		return e.fail(phase, ctx.Err())
	default:
		return nil
	}
}

// fail wraps a cause so callers see both the generic exchange failure and
// the specific cause through errors.Is.
func (e *Establisher) fail(phase string, cause error) error {
	return qerrors.NewExchangeError(e.mode.String(), phase,
		fmt.Errorf("%w: %w", qerrors.ErrKeyExchangeFailed, cause))
}
