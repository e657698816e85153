// integrity.go implements the HMAC-SHA256 integrity layer.
//
// The integrity digest covers the canonical envelope bytes and is keyed by
// the process-wide integrity secret, which is independent of every session
// key. This is the defense-in-depth layer: an attacker holding a session
// key can forge ciphertexts but not integrity-valid envelopes.
package envelope

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// IntegrityOutcome classifies the result of verifying an envelope's
// integrity field. Missing digests are a distinct outcome rather than a
// silent pass, so the accept-legacy decision stays in one place (Policy).
type IntegrityOutcome int

const (
	// IntegrityValid means the digest matched.
	IntegrityValid IntegrityOutcome = iota

	// IntegrityInvalid means the digest did not match: tampering, a
	// wrong integrity key, or transport corruption.
	IntegrityInvalid

	// IntegrityAbsent means the envelope carries no digest (legacy
	// sender).
	IntegrityAbsent
)

// String returns a human-readable name for the outcome.
func (o IntegrityOutcome) String() string {
	switch o {
	case IntegrityValid:
		return "Valid"
	case IntegrityInvalid:
		return "Invalid"
	case IntegrityAbsent:
		return "Absent"
	default:
		return "Unknown"
	}
}

// Sign computes the HMAC-SHA256 digest over the canonical envelope bytes.
func Sign(integrityKey, canonical []byte) ([]byte, error) {
	if len(integrityKey) != constants.IntegrityKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	mac := hmac.New(sha256.New, integrityKey)
	mac.Write(canonical)
	return mac.Sum(nil), nil
}

// Verify recomputes the digest and compares in constant time.
// A wrong key size verifies as false rather than erroring, so it cannot be
// used to distinguish key-provisioning mistakes from tampering.
func Verify(integrityKey, canonical, digest []byte) bool {
	expected, err := Sign(integrityKey, canonical)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, digest)
}

// Attach computes and sets the integrity field on the envelope.
// The envelope's other fields must be final: any later mutation invalidates
// the digest.
func Attach(e *MessageEnvelope, integrityKey []byte) error {
	digest, err := Sign(integrityKey, CanonicalBytes(e))
	if err != nil {
		return err
	}
	e.Integrity = Integrity{
		Kind:  constants.IntegrityHMACSHA256,
		Value: digest,
	}
	return nil
}

// VerifyEnvelope classifies the envelope's integrity field against the
// integrity key. It never errors; policy decides what to do with each
// outcome.
func VerifyEnvelope(e *MessageEnvelope, integrityKey []byte) IntegrityOutcome {
	switch e.Integrity.Kind {
	case constants.IntegrityUnsigned:
		return IntegrityAbsent
	case constants.IntegrityHMACSHA256:
		if Verify(integrityKey, CanonicalBytes(e), e.Integrity.Value) {
			return IntegrityValid
		}
		return IntegrityInvalid
	default:
		return IntegrityInvalid
	}
}
