// Package errors defines the error taxonomy for the CryptexQ envelope
// protocol. Every per-message failure is an explicit variant, never a silent
// outcome, and error messages avoid leaking which cryptographic check failed
// beyond what the caller needs for classification.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for envelope validation and cryptographic operations.
var (
	// ErrMalformedEnvelope indicates a structural or field-validation
	// failure. No cryptographic work is attempted on such envelopes.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrDecryptionFailed indicates AEAD tag mismatch or corrupt
	// ciphertext. No partial plaintext is ever surfaced.
	ErrDecryptionFailed = errors.New("envelope: decryption failed")

	// ErrIntegrityViolation indicates an HMAC mismatch on the canonical
	// envelope bytes. Logged distinctly from decryption failures since it
	// points at a different layer of tampering.
	ErrIntegrityViolation = errors.New("envelope: integrity violation")

	// ErrUnsignedEnvelope indicates an envelope without an integrity
	// digest from a legacy sender, rejected by policy.
	ErrUnsignedEnvelope = errors.New("envelope: unsigned envelope rejected by policy")

	// ErrSignatureInvalid indicates a detached audit signature failed
	// verification or was required but absent.
	ErrSignatureInvalid = errors.New("envelope: signature verification failed")

	// ErrInvalidKeySize indicates a key has an incorrect size.
	ErrInvalidKeySize = errors.New("crypto: invalid key size")

	// ErrInvalidNonce indicates the nonce size is incorrect.
	ErrInvalidNonce = errors.New("crypto: invalid nonce size")

	// ErrCiphertextTooShort indicates ciphertext is too short to be valid.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrKeyMaterialExpired indicates session key material was used past
	// its validity window.
	ErrKeyMaterialExpired = errors.New("crypto: key material expired")

	// ErrKeyMaterialInvalid indicates key material failed validation
	// (wrong lengths, zero keys, or session key equal to integrity key).
	ErrKeyMaterialInvalid = errors.New("crypto: invalid key material")

	// ErrUnsupportedCipherSuite indicates an unsupported AEAD suite.
	ErrUnsupportedCipherSuite = errors.New("crypto: unsupported cipher suite")
)

// Sentinel errors for key establishment.
var (
	// ErrKeyExchangeFailed indicates the simulated key agreement could not
	// complete. No session is created; callers restart the whole handshake.
	ErrKeyExchangeFailed = errors.New("keyexchange: key exchange failed")

	// ErrInvalidPeerMaterial indicates the peer's public material was
	// malformed.
	ErrInvalidPeerMaterial = errors.New("keyexchange: invalid peer material")

	// ErrNoiseThresholdExceeded indicates the simulated quantum channel
	// error rate exceeded the eavesdropping threshold.
	ErrNoiseThresholdExceeded = errors.New("keyexchange: channel noise threshold exceeded")

	// ErrInsufficientKeyBits indicates BB84 sifting left too few shared
	// bits to derive a session key.
	ErrInsufficientKeyBits = errors.New("keyexchange: insufficient sifted key bits")

	// ErrUnsupportedMode indicates an unrecognized key exchange mode.
	ErrUnsupportedMode = errors.New("keyexchange: unsupported mode")
)

// Sentinel errors for replay protection.
var (
	// ErrReplayDetected indicates a duplicate nonce or a timestamp older
	// than the acceptance window. Non-fatal to the session.
	ErrReplayDetected = errors.New("replay: replay detected")

	// ErrClockSkewSuspected indicates a timestamp implausibly far in the
	// future, more likely misconfiguration than attack.
	ErrClockSkewSuspected = errors.New("replay: clock skew suspected")
)

// Sentinel errors for session management.
var (
	// ErrSessionNotFound indicates no session exists for the given id.
	ErrSessionNotFound = errors.New("session: session not found")

	// ErrSessionClosed indicates the session has been torn down.
	ErrSessionClosed = errors.New("session: session closed")

	// ErrInvalidBlob indicates a persisted session blob failed to
	// authenticate or parse.
	ErrInvalidBlob = errors.New("session: invalid session blob")
)

// Sentinel errors for configuration.
var (
	// ErrMissingIntegritySecret indicates INTEGRITY_SECRET was not
	// provided. This is a startup failure, never a silent default.
	ErrMissingIntegritySecret = errors.New("config: INTEGRITY_SECRET is required")

	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// CryptoError wraps a cryptographic error with the failing operation.
type CryptoError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ExchangeError wraps a key establishment error with the mode and phase
// where it occurred.
type ExchangeError struct {
	Mode  string // Exchange mode (e.g., "hybrid_pqc")
	Phase string // Exchange phase (e.g., "encapsulate", "sift")
	Err   error  // Underlying error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("keyexchange %s/%s: %v", e.Mode, e.Phase, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates a new ExchangeError.
func NewExchangeError(mode, phase string, err error) *ExchangeError {
	return &ExchangeError{Mode: mode, Phase: phase, Err: err}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
