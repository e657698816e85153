package envelope_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
)

func TestCipherRoundTrip(t *testing.T) {
	suites := []constants.CipherSuite{
		constants.CipherSuiteAES256GCM,
		constants.CipherSuiteChaCha20Poly1305,
	}

	for _, suite := range suites {
		t.Run(suite.String(), func(t *testing.T) {
			cipher, err := envelope.NewCipher(suite)
			if err != nil {
				t.Fatalf("NewCipher failed: %v", err)
			}
			km := testKeyMaterial(t)
			plaintext := []byte("hello quantum world")

			ciphertext, nonce, err := cipher.Encrypt(km, plaintext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if len(nonce) != constants.NonceSize {
				t.Errorf("nonce size: got %d, want %d", len(nonce), constants.NonceSize)
			}
			if len(ciphertext) != len(plaintext)+constants.TagSize {
				t.Errorf("ciphertext size: got %d, want %d", len(ciphertext), len(plaintext)+constants.TagSize)
			}

			decrypted, err := cipher.Decrypt(km, ciphertext, nonce)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
			}
		})
	}
}

func TestCipherEmptyPlaintext(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	km := testKeyMaterial(t)

	ciphertext, nonce, err := cipher.Encrypt(km, nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if len(ciphertext) != constants.TagSize {
		t.Errorf("ciphertext size: got %d, want tag-only %d", len(ciphertext), constants.TagSize)
	}

	decrypted, err := cipher.Decrypt(km, ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("decrypted empty plaintext: got %d bytes", len(decrypted))
	}
}

func TestCipherNonceUniqueness(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	km := testKeyMaterial(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, nonce, err := cipher.Encrypt(km, []byte("msg"))
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if seen[string(nonce)] {
			t.Fatal("nonce repeated across Encrypt calls")
		}
		seen[string(nonce)] = true
	}
}

func TestCipherTamperedCiphertext(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	km := testKeyMaterial(t)

	ciphertext, nonce, err := cipher.Encrypt(km, []byte("sensitive payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip one bit anywhere in the ciphertext or tag.
	for _, pos := range []int{0, len(ciphertext) / 2, len(ciphertext) - 1} {
		tampered := append([]byte(nil), ciphertext...)
		tampered[pos] ^= 0x01

		plaintext, err := cipher.Decrypt(km, tampered, nonce)
		if !qerrors.Is(err, qerrors.ErrDecryptionFailed) {
			t.Errorf("tamper at %d: got %v, want ErrDecryptionFailed", pos, err)
		}
		if plaintext != nil {
			t.Errorf("tamper at %d: partial plaintext returned", pos)
		}
	}
}

func TestCipherWrongNonce(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	km := testKeyMaterial(t)

	ciphertext, nonce, err := cipher.Encrypt(km, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	other := append([]byte(nil), nonce...)
	other[0] ^= 0x01
	if _, err := cipher.Decrypt(km, ciphertext, other); !qerrors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Errorf("flipped nonce: got %v, want ErrDecryptionFailed", err)
	}

	if _, err := cipher.Decrypt(km, ciphertext, nonce[:8]); !qerrors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Errorf("short nonce: got %v, want ErrDecryptionFailed", err)
	}
}

func TestCipherTruncatedCiphertext(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	km := testKeyMaterial(t)

	nonce := crypto.MustSecureRandomBytes(constants.NonceSize)
	if _, err := cipher.Decrypt(km, make([]byte, constants.TagSize-1), nonce); !qerrors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Errorf("truncated ciphertext: got %v, want ErrDecryptionFailed", err)
	}
}

func TestCipherExpiredKeyMaterial(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	km := testKeyMaterial(t)
	km.EstablishedAt = time.Now().Add(-2 * time.Hour)
	km.ExpiresAt = time.Now().Add(-time.Hour)

	if _, _, err := cipher.Encrypt(km, []byte("msg")); !qerrors.Is(err, qerrors.ErrKeyMaterialExpired) {
		t.Errorf("Encrypt with expired material: got %v, want ErrKeyMaterialExpired", err)
	}
	nonce := crypto.MustSecureRandomBytes(constants.NonceSize)
	if _, err := cipher.Decrypt(km, make([]byte, 32), nonce); !qerrors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Errorf("Decrypt with expired material: got %v, want ErrDecryptionFailed", err)
	}
}

func TestCipherUnsupportedSuite(t *testing.T) {
	if _, err := envelope.NewCipher(constants.CipherSuite(0x9999)); !qerrors.Is(err, qerrors.ErrUnsupportedCipherSuite) {
		t.Errorf("got %v, want ErrUnsupportedCipherSuite", err)
	}
}

func TestCipherSealRawRoundTrip(t *testing.T) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}

	key := crypto.MustSecureRandomBytes(32)
	ciphertext, nonce, err := cipher.SealRaw(key, []byte("blob content"))
	if err != nil {
		t.Fatalf("SealRaw failed: %v", err)
	}

	plaintext, err := cipher.OpenRaw(key, ciphertext, nonce)
	if err != nil {
		t.Fatalf("OpenRaw failed: %v", err)
	}
	if !bytes.Equal(plaintext, []byte("blob content")) {
		t.Error("SealRaw round trip mismatch")
	}

	wrongKey := crypto.MustSecureRandomBytes(32)
	if _, err := cipher.OpenRaw(wrongKey, ciphertext, nonce); !qerrors.Is(err, qerrors.ErrDecryptionFailed) {
		t.Errorf("wrong key: got %v, want ErrDecryptionFailed", err)
	}
}
