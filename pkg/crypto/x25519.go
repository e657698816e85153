// x25519.go implements X25519 Elliptic Curve Diffie-Hellman operations.
//
// X25519 (RFC 7748) provides approximately 128 bits of security against
// classical computers. It is NOT quantum-resistant; in the hybrid exchange
// modes it provides defense-in-depth alongside ML-KEM, and on its own it
// backs the classical_dh mode.
package crypto

import (
	"crypto/ecdh"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// X25519KeyPair represents an X25519 key pair for classical ECDH.
type X25519KeyPair struct {
	// PublicKey is the public component for sharing
	PublicKey *ecdh.PublicKey

	// PrivateKey is the secret component
	PrivateKey *ecdh.PrivateKey
}

// GenerateX25519KeyPair generates a new X25519 key pair using the system's
// CSPRNG. Clamping of the private scalar is handled by crypto/ecdh.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(Reader)
	if err != nil {
		return nil, qerrors.NewCryptoError("GenerateX25519KeyPair", err)
	}
	return &X25519KeyPair{
		PublicKey:  priv.PublicKey(),
		PrivateKey: priv,
	}, nil
}

// X25519 performs a Diffie-Hellman exchange between a private and a public
// key, returning the 32-byte shared secret.
//
// crypto/ecdh rejects low-order points, so an all-zero shared secret cannot
// be returned.
func X25519(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	if priv == nil || pub == nil {
		return nil, qerrors.ErrInvalidKeySize
	}
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, qerrors.NewCryptoError("X25519", err)
	}
	return secret, nil
}

// ParseX25519PublicKey parses a 32-byte X25519 public key.
func ParseX25519PublicKey(data []byte) (*ecdh.PublicKey, error) {
	if len(data) != constants.X25519PublicKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	pub, err := ecdh.X25519().NewPublicKey(data)
	if err != nil {
		return nil, qerrors.NewCryptoError("ParseX25519PublicKey", err)
	}
	return pub, nil
}

// PublicKeyBytes returns the encoded bytes of the public key.
func (kp *X25519KeyPair) PublicKeyBytes() []byte {
	return kp.PublicKey.Bytes()
}

// Zeroize clears the key pair references. The underlying crypto/ecdh keys
// do not expose their buffers for explicit wiping.
func (kp *X25519KeyPair) Zeroize() {
	kp.PrivateKey = nil
	kp.PublicKey = nil
}
