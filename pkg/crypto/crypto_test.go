package crypto_test

import (
	"bytes"
	"testing"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
)

// --- Random Tests ---

func TestSecureRandom(t *testing.T) {
	buf := make([]byte, 32)
	if err := crypto.SecureRandom(buf); err != nil {
		t.Fatalf("SecureRandom failed: %v", err)
	}

	allZeros := true
	for _, b := range buf {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		t.Error("SecureRandom returned all zeros")
	}
}

func TestSecureRandomBytes(t *testing.T) {
	sizes := []int{12, 16, 32, 64}
	for _, size := range sizes {
		buf, err := crypto.SecureRandomBytes(size)
		if err != nil {
			t.Fatalf("SecureRandomBytes(%d) failed: %v", size, err)
		}
		if len(buf) != size {
			t.Errorf("SecureRandomBytes(%d) returned %d bytes", size, len(buf))
		}
	}
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte("hello world")
	b := []byte("hello world")
	c := []byte("hello worle")
	d := []byte("hello")

	if !crypto.ConstantTimeCompare(a, b) {
		t.Error("Equal slices should compare equal")
	}
	if crypto.ConstantTimeCompare(a, c) {
		t.Error("Different slices should not compare equal")
	}
	if crypto.ConstantTimeCompare(a, d) {
		t.Error("Different length slices should not compare equal")
	}
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	crypto.Zeroize(buf)

	for i, b := range buf {
		if b != 0 {
			t.Errorf("Zeroize failed at index %d: got %d, want 0", i, b)
		}
	}
}

// --- KDF Tests ---

func TestDeriveKeyDeterministic(t *testing.T) {
	input := []byte("shared secret material")

	k1, err := crypto.DeriveKey(constants.DomainSeparatorHybrid, input, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	k2, err := crypto.DeriveKey(constants.DomainSeparatorHybrid, input, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	if !bytes.Equal(k1, k2) {
		t.Error("Same domain and input should derive the same key")
	}
}

func TestDeriveKeyDomainSeparation(t *testing.T) {
	input := []byte("shared secret material")

	k1, err := crypto.DeriveKey(constants.DomainSeparatorClassical, input, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	k2, err := crypto.DeriveKey(constants.DomainSeparatorHybrid, input, 32)
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}

	if bytes.Equal(k1, k2) {
		t.Error("Different domains should derive different keys")
	}
}

func TestDeriveKeyInvalidLength(t *testing.T) {
	if _, err := crypto.DeriveKey("domain", []byte("input"), 0); err == nil {
		t.Error("Zero output length should fail")
	}
	if _, err := crypto.DeriveKey("domain", []byte("input"), -1); err == nil {
		t.Error("Negative output length should fail")
	}
}

func TestDeriveKeyMultipleUnambiguous(t *testing.T) {
	// Length prefixes must keep (ab, c) distinct from (a, bc).
	k1, err := crypto.DeriveKeyMultiple("domain", [][]byte{[]byte("ab"), []byte("c")}, 32)
	if err != nil {
		t.Fatalf("DeriveKeyMultiple failed: %v", err)
	}
	k2, err := crypto.DeriveKeyMultiple("domain", [][]byte{[]byte("a"), []byte("bc")}, 32)
	if err != nil {
		t.Fatalf("DeriveKeyMultiple failed: %v", err)
	}

	if bytes.Equal(k1, k2) {
		t.Error("Different input splits should derive different keys")
	}
}

func TestTranscriptHash(t *testing.T) {
	h1 := crypto.TranscriptHash([]byte("alice"), []byte("bob"))
	h2 := crypto.TranscriptHash([]byte("alice"), []byte("bob"))
	h3 := crypto.TranscriptHash([]byte("bob"), []byte("alice"))

	if len(h1) != constants.TranscriptHashSize {
		t.Errorf("Transcript hash size: got %d, want %d", len(h1), constants.TranscriptHashSize)
	}
	if !bytes.Equal(h1, h2) {
		t.Error("Same components should hash identically")
	}
	if bytes.Equal(h1, h3) {
		t.Error("Component order must affect the hash")
	}
}

// --- X25519 Tests ---

func TestX25519KeyGeneration(t *testing.T) {
	kp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}

	if len(kp.PublicKeyBytes()) != constants.X25519PublicKeySize {
		t.Errorf("Public key size: got %d, want %d", len(kp.PublicKeyBytes()), constants.X25519PublicKeySize)
	}
}

func TestX25519KeyExchange(t *testing.T) {
	alice, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}
	bob, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}

	s1, err := crypto.X25519(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("X25519 failed: %v", err)
	}
	s2, err := crypto.X25519(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("X25519 failed: %v", err)
	}

	if !bytes.Equal(s1, s2) {
		t.Error("Both directions should agree on the shared secret")
	}
	if len(s1) != constants.X25519SharedSecretSize {
		t.Errorf("Shared secret size: got %d, want %d", len(s1), constants.X25519SharedSecretSize)
	}
}

func TestParseX25519PublicKey(t *testing.T) {
	kp, err := crypto.GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair failed: %v", err)
	}

	parsed, err := crypto.ParseX25519PublicKey(kp.PublicKeyBytes())
	if err != nil {
		t.Fatalf("ParseX25519PublicKey failed: %v", err)
	}
	if !bytes.Equal(parsed.Bytes(), kp.PublicKeyBytes()) {
		t.Error("Parsed key should round-trip")
	}

	if _, err := crypto.ParseX25519PublicKey([]byte("short")); err == nil {
		t.Error("Truncated public key should fail to parse")
	}
}

// --- ML-KEM Tests ---

func TestMLKEMEncapsulateDecapsulate(t *testing.T) {
	kp, err := crypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair failed: %v", err)
	}

	ciphertext, sharedEnc, err := crypto.MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		t.Fatalf("MLKEMEncapsulate failed: %v", err)
	}
	if len(ciphertext) != constants.MLKEMCiphertextSize {
		t.Errorf("Ciphertext size: got %d, want %d", len(ciphertext), constants.MLKEMCiphertextSize)
	}
	if len(sharedEnc) != constants.MLKEMSharedSecretSize {
		t.Errorf("Shared secret size: got %d, want %d", len(sharedEnc), constants.MLKEMSharedSecretSize)
	}

	sharedDec, err := crypto.MLKEMDecapsulate(kp.DecapsulationKey, ciphertext)
	if err != nil {
		t.Fatalf("MLKEMDecapsulate failed: %v", err)
	}
	if !bytes.Equal(sharedEnc, sharedDec) {
		t.Error("Encapsulated and decapsulated secrets should match")
	}
}

func TestMLKEMImplicitRejection(t *testing.T) {
	kp, err := crypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair failed: %v", err)
	}

	ciphertext, shared, err := crypto.MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		t.Fatalf("MLKEMEncapsulate failed: %v", err)
	}

	// Corrupt the ciphertext. ML-KEM decapsulation does not fail but
	// derives an unrelated secret (implicit rejection).
	corrupted := append([]byte(nil), ciphertext...)
	corrupted[0] ^= 0xFF

	derived, err := crypto.MLKEMDecapsulate(kp.DecapsulationKey, corrupted)
	if err != nil {
		t.Fatalf("MLKEMDecapsulate failed: %v", err)
	}
	if bytes.Equal(shared, derived) {
		t.Error("Corrupted ciphertext should not decapsulate to the same secret")
	}
}

func TestParseMLKEMPublicKey(t *testing.T) {
	kp, err := crypto.GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("GenerateMLKEMKeyPair failed: %v", err)
	}

	parsed, err := crypto.ParseMLKEMPublicKey(kp.PublicKeyBytes())
	if err != nil {
		t.Fatalf("ParseMLKEMPublicKey failed: %v", err)
	}
	if !bytes.Equal(parsed.Bytes(), kp.PublicKeyBytes()) {
		t.Error("Parsed key should round-trip")
	}

	if _, err := crypto.ParseMLKEMPublicKey(make([]byte, 10)); err == nil {
		t.Error("Wrong-size public key should fail to parse")
	}
}
