// cipher.go implements authenticated encryption of envelope payloads.
//
// Two AEAD suites are supported:
//   - AES-256-GCM: FIPS-approved, hardware-accelerated on modern CPUs
//   - ChaCha20-Poly1305: high performance without hardware support
//
// Both use a 256-bit key, a 96-bit nonce, and a 128-bit authentication tag
// appended to the ciphertext.
//
// CRITICAL: Nonce reuse under the same key completely breaks security. A
// fresh random nonce is drawn from the CSPRNG on every Encrypt call; the
// cipher never uses counters, so there is no cross-process state to
// synchronize and no reuse hazard between restarts.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
)

// Cipher performs authenticated encryption and decryption of message
// payloads using session key material. A Cipher is stateless apart from its
// suite selection and is safe for concurrent use.
type Cipher struct {
	suite constants.CipherSuite

	// now is overridable for expiry tests.
	now func() time.Time
}

// NewCipher creates a Cipher for the given AEAD suite.
func NewCipher(suite constants.CipherSuite) (*Cipher, error) {
	if !suite.IsSupported() {
		return nil, qerrors.ErrUnsupportedCipherSuite
	}
	return &Cipher{suite: suite, now: time.Now}, nil
}

// Suite returns the cipher suite identifier.
func (c *Cipher) Suite() constants.CipherSuite {
	return c.suite
}

// Encrypt encrypts and authenticates plaintext under the session key.
//
// A fresh random 96-bit nonce is generated per call. The returned
// ciphertext includes the 16-byte authentication tag; the nonce is returned
// separately for placement in the envelope.
//
// Returns an error if the key material is invalid or expired, or if the
// CSPRNG fails.
func (c *Cipher) Encrypt(km *KeyMaterial, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if err := km.Validate(); err != nil {
		return nil, nil, err
	}
	if km.Expired(c.now()) {
		return nil, nil, qerrors.ErrKeyMaterialExpired
	}

	aead, err := c.newAEAD(km.SessionKey)
	if err != nil {
		return nil, nil, err
	}

	nonce, err = crypto.SecureRandomBytes(constants.NonceSize)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt verifies and decrypts a ciphertext produced by Encrypt.
//
// Decrypt fails closed: tag mismatch, truncated ciphertext, wrong nonce
// length, and expired key material all yield ErrDecryptionFailed (wrapped
// where a more specific cause is safe to expose), and no partial plaintext
// is ever returned.
func (c *Cipher) Decrypt(km *KeyMaterial, ciphertext, nonce []byte) ([]byte, error) {
	if err := km.Validate(); err != nil {
		return nil, err
	}
	if km.Expired(c.now()) {
		return nil, qerrors.ErrDecryptionFailed
	}
	if len(nonce) != constants.NonceSize {
		return nil, qerrors.ErrDecryptionFailed
	}
	if len(ciphertext) < constants.TagSize {
		return nil, qerrors.ErrDecryptionFailed
	}

	aead, err := c.newAEAD(km.SessionKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, qerrors.ErrDecryptionFailed
	}
	return plaintext, nil
}

// SealRaw encrypts plaintext directly under a 32-byte key, outside any
// session key material. Used for sealing persisted session blobs.
func (c *Cipher) SealRaw(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != constants.SessionKeySize {
		return nil, nil, qerrors.ErrInvalidKeySize
	}

	aead, err := c.newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err = crypto.SecureRandomBytes(constants.NonceSize)
	if err != nil {
		return nil, nil, err
	}

	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// OpenRaw decrypts a ciphertext produced by SealRaw. Fails closed with
// ErrDecryptionFailed.
func (c *Cipher) OpenRaw(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(key) != constants.SessionKeySize {
		return nil, qerrors.ErrInvalidKeySize
	}
	if len(nonce) != constants.NonceSize || len(ciphertext) < constants.TagSize {
		return nil, qerrors.ErrDecryptionFailed
	}

	aead, err := c.newAEAD(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, qerrors.ErrDecryptionFailed
	}
	return plaintext, nil
}

func (c *Cipher) newAEAD(key []byte) (cipher.AEAD, error) {
	switch c.suite {
	case constants.CipherSuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("Cipher.newAEAD", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, qerrors.NewCryptoError("Cipher.newAEAD", err)
		}
		return aead, nil

	case constants.CipherSuiteChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, qerrors.NewCryptoError("Cipher.newAEAD", err)
		}
		return aead, nil

	default:
		return nil, qerrors.ErrUnsupportedCipherSuite
	}
}
