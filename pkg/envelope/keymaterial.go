// Package envelope implements the CryptexQ secure message envelope: key
// material, authenticated payload encryption, the HMAC integrity layer, the
// optional detached audit signature, and the binary wire codec.
//
// An envelope protects a single chat message. The send path encrypts the
// payload under the session key, computes an HMAC-SHA256 digest over the
// canonical envelope bytes under the independent integrity key, optionally
// attaches an ML-DSA-65 signature for third-party audit, and serializes the
// result for the transport. The receive path reverses this, failing closed
// at every step.
package envelope

import (
	"time"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
)

// KeyMaterial holds a derived session key and its validity window, together
// with the independently provisioned integrity key.
//
// The session key is purpose-bound to encryption and owned by exactly one
// session. The integrity key is process-wide, read-only after load, and is
// never derived from the session key: a compromised session key alone does
// not allow forging integrity-valid envelopes.
type KeyMaterial struct {
	// SessionKey is the 32-byte symmetric encryption key.
	SessionKey []byte

	// IntegrityKey is the 32-byte HMAC key, provisioned independently.
	IntegrityKey []byte

	// EstablishedAt is when the key agreement completed.
	EstablishedAt time.Time

	// ExpiresAt bounds the key's validity. A session key used after
	// expiry is invalid.
	ExpiresAt time.Time
}

// Validate checks the key material invariants: correct lengths, non-zero
// keys, and session key distinct from integrity key. The key comparison is
// constant-time.
func (km *KeyMaterial) Validate() error {
	if km == nil {
		return qerrors.ErrKeyMaterialInvalid
	}
	if len(km.SessionKey) != constants.SessionKeySize {
		return qerrors.ErrKeyMaterialInvalid
	}
	if len(km.IntegrityKey) != constants.IntegrityKeySize {
		return qerrors.ErrKeyMaterialInvalid
	}
	if isZero(km.SessionKey) || isZero(km.IntegrityKey) {
		return qerrors.ErrKeyMaterialInvalid
	}
	if crypto.ConstantTimeCompare(km.SessionKey, km.IntegrityKey) {
		return qerrors.ErrKeyMaterialInvalid
	}
	if !km.ExpiresAt.After(km.EstablishedAt) {
		return qerrors.ErrKeyMaterialInvalid
	}
	return nil
}

// Expired reports whether the key material is past its validity window.
func (km *KeyMaterial) Expired(now time.Time) bool {
	return now.After(km.ExpiresAt)
}

// Zeroize wipes both keys. The key material must not be used afterwards.
func (km *KeyMaterial) Zeroize() {
	crypto.ZeroizeMultiple(km.SessionKey, km.IntegrityKey)
	km.SessionKey = nil
	km.IntegrityKey = nil
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
