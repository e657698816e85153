// Package session wires the envelope pipeline end to end: key
// establishment, sealing and opening of message envelopes, replay
// filtering, and session lifecycle including teardown and resumption.
//
// A Session is the unit of secure messaging between two identities. Sealing
// runs encrypt, integrity digest, optional audit signature, and wire
// encoding; opening runs the checks in the reverse trust order: structure
// first, then replay, then integrity, then decryption, then signature.
// Every rejection is terminal for that message and harmless to the session.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
	"github.com/cryptexq/cryptexq-go/pkg/metrics"
	"github.com/cryptexq/cryptexq-go/pkg/replay"
)

// State represents the lifecycle state of a session.
type State int32

const (
	// StateNew indicates a session that has not completed establishment.
	StateNew State = iota

	// StateEstablished indicates the session can seal and open envelopes.
	StateEstablished

	// StateClosed indicates the session has been torn down.
	StateClosed
)

// String returns a human-readable name for the session state.
func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateEstablished:
		return "Established"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session is one secure messaging relationship between a local and a peer
// identity. Safe for concurrent use; sealing and opening serialize on the
// session's lock.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// LocalID and PeerID are the two endpoint identities.
	LocalID string
	PeerID  string

	mu    sync.Mutex
	state atomic.Int32

	km     *envelope.KeyMaterial
	suite  constants.CipherSuite
	cipher *envelope.Cipher
	codec  *envelope.Codec
	guard  *replay.Guard
	policy envelope.Policy

	// signer, if set, attaches an audit signature to every sealed
	// envelope. peerVerifyKey, if set, is used to verify inbound
	// signatures.
	signer        *envelope.SigningKeyPair
	peerVerifyKey []byte

	collector *metrics.Collector
	tracer    metrics.Tracer
	now       func() time.Time

	lastActivity atomic.Int64 // unix millis
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// LastActivity returns the time of the last successful seal or open.
func (s *Session) LastActivity() time.Time {
	return time.UnixMilli(s.lastActivity.Load())
}

// ExpiresAt returns when the session's key material expires.
func (s *Session) ExpiresAt() time.Time {
	return s.km.ExpiresAt
}

// VerifyKey returns the encoded public key for verifying this session's
// audit signatures, or nil when the session does not sign.
func (s *Session) VerifyKey() ([]byte, error) {
	if s.signer == nil {
		return nil, nil
	}
	return s.signer.PublicKeyBytes()
}

// Seal encrypts plaintext into a wire-ready envelope: AEAD encryption under
// the session key, HMAC integrity digest under the independent integrity
// key, an audit signature when the session has a signer, then wire
// encoding.
func (s *Session) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	if s.State() != StateEstablished {
		return nil, qerrors.ErrSessionClosed
	}

	_, end := s.tracer.StartSpan(ctx, metrics.SpanSeal, metrics.WithSpanAttributes(
		map[string]interface{}{"session.id": s.ID}))

	wire, err := s.seal(plaintext)
	end(err)
	if err != nil {
		return nil, err
	}

	s.touch()
	s.collector.EnvelopeSealed(s.ID)
	return wire, nil
}

func (s *Session) seal(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ciphertext, nonce, err := s.cipher.Encrypt(s.km, plaintext)
	if err != nil {
		return nil, err
	}

	e := &envelope.MessageEnvelope{
		SenderID:    s.LocalID,
		RecipientID: s.PeerID,
		Nonce:       nonce,
		Timestamp:   s.now().UnixMilli(),
		Ciphertext:  ciphertext,
	}

	if err := envelope.Attach(e, s.km.IntegrityKey); err != nil {
		return nil, err
	}

	if s.signer != nil {
		if err := envelope.SignEnvelope(s.signer, e); err != nil {
			return nil, err
		}
	}

	return s.codec.Encode(e)
}

// Open decodes and verifies a wire envelope and returns its plaintext.
//
// Checks run cheapest-first and every failure is terminal for the message:
// structural validation, replay and freshness, integrity digest, AEAD
// decryption, then the audit signature when one is present or required.
// No partial plaintext is ever returned.
func (s *Session) Open(ctx context.Context, wire []byte) ([]byte, error) {
	if s.State() != StateEstablished {
		return nil, qerrors.ErrSessionClosed
	}

	_, end := s.tracer.StartSpan(ctx, metrics.SpanOpen, metrics.WithSpanAttributes(
		map[string]interface{}{"session.id": s.ID}))

	plaintext, err := s.open(wire)
	end(err)
	if err != nil {
		return nil, err
	}

	s.touch()
	s.collector.EnvelopeOpened(s.ID)
	return plaintext, nil
}

func (s *Session) open(wire []byte) ([]byte, error) {
	e, err := s.codec.Decode(wire)
	if err != nil {
		s.collector.MalformedRejected(s.ID)
		return nil, err
	}

	if err := s.guard.Check(s.ID, e.Nonce, e.Timestamp); err != nil {
		if qerrors.Is(err, qerrors.ErrClockSkewSuspected) {
			s.collector.SkewSuspected(s.ID)
		} else {
			s.collector.ReplayBlocked(s.ID)
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch envelope.VerifyEnvelope(e, s.km.IntegrityKey) {
	case envelope.IntegrityValid:
	case envelope.IntegrityAbsent:
		if !s.policy.AcceptUnsigned {
			s.collector.UnsignedRejected(s.ID, e.SenderID)
			return nil, qerrors.ErrUnsignedEnvelope
		}
	default:
		s.collector.IntegrityViolation(s.ID, e.SenderID)
		return nil, qerrors.ErrIntegrityViolation
	}

	plaintext, err := s.cipher.Decrypt(s.km, e.Ciphertext, e.Nonce)
	if err != nil {
		s.collector.DecryptFailure(s.ID)
		return nil, err
	}

	if err := envelope.CheckSignature(e, s.peerVerifyKey, s.policy); err != nil {
		s.collector.SignatureRejected(s.ID, e.SenderID)
		crypto.Zeroize(plaintext)
		return nil, err
	}

	return plaintext, nil
}

// Close tears down the session: key material is wiped and all replay state
// for the session is destroyed. Closing twice is harmless.
func (s *Session) Close() {
	if !s.state.CompareAndSwap(int32(StateEstablished), int32(StateClosed)) &&
		!s.state.CompareAndSwap(int32(StateNew), int32(StateClosed)) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.guard.Drop(s.ID)
	s.km.Zeroize()
}

func (s *Session) touch() {
	s.lastActivity.Store(s.now().UnixMilli())
}
