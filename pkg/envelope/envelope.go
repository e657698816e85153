// envelope.go defines the message envelope data model and acceptance policy.
package envelope

import (
	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// Integrity is the tagged integrity field of an envelope. Kind selects the
// scheme; Value is the digest. An envelope from a legacy sender carries
// IntegrityUnsigned and an empty Value.
type Integrity struct {
	Kind  constants.IntegrityKind
	Value []byte
}

// MessageEnvelope is one wire-format secured message.
//
// SenderID and RecipientID are opaque identity strings supplied by the
// external account store; the envelope layer never authenticates users,
// only messages.
type MessageEnvelope struct {
	// SenderID identifies the sending endpoint.
	SenderID string

	// RecipientID identifies the receiving endpoint.
	RecipientID string

	// Nonce is the unique-per-message 12-byte AEAD nonce.
	Nonce []byte

	// Timestamp is the sender-side epoch milliseconds.
	Timestamp int64

	// Ciphertext is the encrypted payload including the 16-byte
	// authentication tag.
	Ciphertext []byte

	// Integrity is the HMAC layer over the canonical envelope bytes.
	Integrity Integrity

	// Signature is the optional detached ML-DSA-65 signature for
	// third-party verification. Nil unless the sending policy requests it.
	Signature []byte
}

// Validate performs the structural well-formedness check. It runs before
// any cryptographic work: a malformed envelope is rejected without touching
// keys.
func (e *MessageEnvelope) Validate() error {
	if e == nil {
		return qerrors.ErrMalformedEnvelope
	}
	if e.SenderID == "" || len(e.SenderID) > constants.MaxIdentitySize {
		return qerrors.ErrMalformedEnvelope
	}
	if e.RecipientID == "" || len(e.RecipientID) > constants.MaxIdentitySize {
		return qerrors.ErrMalformedEnvelope
	}
	if len(e.Nonce) != constants.NonceSize {
		return qerrors.ErrMalformedEnvelope
	}
	if e.Timestamp <= 0 {
		return qerrors.ErrMalformedEnvelope
	}
	if len(e.Ciphertext) < constants.MinCiphertextSize {
		return qerrors.ErrMalformedEnvelope
	}
	if !e.Integrity.Kind.IsSupported() {
		return qerrors.ErrMalformedEnvelope
	}
	switch e.Integrity.Kind {
	case constants.IntegrityUnsigned:
		if len(e.Integrity.Value) != 0 {
			return qerrors.ErrMalformedEnvelope
		}
	case constants.IntegrityHMACSHA256:
		if len(e.Integrity.Value) != constants.IntegrityDigestSize {
			return qerrors.ErrMalformedEnvelope
		}
	}
	if len(e.Signature) != 0 && len(e.Signature) != constants.MLDSASignatureSize {
		return qerrors.ErrMalformedEnvelope
	}
	return nil
}

// Signed reports whether the envelope carries a detached audit signature.
func (e *MessageEnvelope) Signed() bool {
	return len(e.Signature) > 0
}

// Policy centralizes acceptance decisions that are not purely cryptographic.
// Keeping the legacy/unsigned decision here avoids nil checks scattered at
// call sites.
type Policy struct {
	// AcceptUnsigned admits envelopes from legacy senders that carry no
	// integrity digest. Default false: unsigned envelopes are rejected.
	AcceptUnsigned bool

	// RequireSignature demands a valid detached audit signature on every
	// envelope. Absent signatures become verification failures.
	RequireSignature bool
}

// DefaultPolicy rejects unsigned envelopes and does not demand audit
// signatures.
func DefaultPolicy() Policy {
	return Policy{}
}
