// Package constants defines security parameters and wire-format constants for
// the CryptexQ secure message envelope protocol.
//
// The envelope protocol targets AES-256-equivalent security: 256-bit symmetric
// keys, 96-bit random nonces, and 128-bit authentication tags, with a hybrid
// post-quantum key establishment layered on top.
package constants

// Protocol version and identification
const (
	// EnvelopeVersion is the current version of the CryptexQ envelope format.
	EnvelopeVersion uint8 = 0x01

	// ProtocolName is used for domain separation in key derivation.
	ProtocolName = "CryptexQ-Envelope-v1"
)

// Symmetric encryption parameters (AEAD)
const (
	// SessionKeySize is the size of session encryption keys in bytes (256 bits).
	SessionKeySize = 32

	// IntegrityKeySize is the size of the HMAC integrity key in bytes (256 bits).
	IntegrityKeySize = 32

	// NonceSize is the size of the per-message AEAD nonce in bytes (96 bits).
	NonceSize = 12

	// TagSize is the size of the AEAD authentication tag in bytes (128 bits).
	TagSize = 16

	// IntegrityDigestSize is the size of the HMAC-SHA256 integrity digest in bytes.
	IntegrityDigestSize = 32
)

// ML-KEM-1024 parameters (NIST FIPS 203, Category 5)
const (
	// MLKEMPublicKeySize is the size of an ML-KEM-1024 encapsulation key in bytes.
	MLKEMPublicKeySize = 1568

	// MLKEMCiphertextSize is the size of an ML-KEM-1024 ciphertext in bytes.
	MLKEMCiphertextSize = 1568

	// MLKEMSharedSecretSize is the size of the shared secret from ML-KEM in bytes.
	MLKEMSharedSecretSize = 32
)

// X25519 parameters (RFC 7748)
const (
	// X25519PublicKeySize is the size of an X25519 public key in bytes.
	X25519PublicKeySize = 32

	// X25519SharedSecretSize is the size of the X25519 shared secret in bytes.
	X25519SharedSecretSize = 32
)

// ML-DSA-65 parameters (NIST FIPS 204), used for detachable audit signatures.
const (
	// MLDSAPublicKeySize is the size of an ML-DSA-65 public key in bytes.
	MLDSAPublicKeySize = 1952

	// MLDSASignatureSize is the size of an ML-DSA-65 signature in bytes.
	MLDSASignatureSize = 3309
)

// Key derivation parameters (SHAKE-256)
const (
	// KDFOutputSize is the default output size for key derivation in bytes.
	KDFOutputSize = 32

	// TranscriptHashSize is the size of the exchange transcript hash in bytes.
	TranscriptHashSize = 32

	// DomainSeparatorClassical is used for classical_dh session key derivation.
	DomainSeparatorClassical = "CryptexQ-v1-Classical"

	// DomainSeparatorHybrid is used for hybrid_pqc session key derivation.
	DomainSeparatorHybrid = "CryptexQ-v1-HybridPQC"

	// DomainSeparatorQKD is used for qkd_simulated session key derivation.
	DomainSeparatorQKD = "CryptexQ-v1-QKDHybrid"

	// DomainSeparatorBlob is used to derive the session-blob sealing key
	// from the integrity secret.
	DomainSeparatorBlob = "CryptexQ-v1-SessionBlob"

	// DomainSeparatorIntegrityKey is used to derive the HMAC integrity key
	// from the provisioned integrity secret.
	DomainSeparatorIntegrityKey = "CryptexQ-v1-IntegrityKey"
)

// Replay protection defaults. Both are overridable through configuration.
const (
	// DefaultReplayWindowMillis is the acceptance window for message
	// timestamps (5 minutes).
	DefaultReplayWindowMillis = 300000

	// DefaultSkewToleranceMillis is the tolerated sender clock skew into
	// the future (1 minute).
	DefaultSkewToleranceMillis = 60000
)

// QKD simulation parameters (BB84)
const (
	// QKDRawBits is the number of raw qubits exchanged in the BB84
	// simulation. Sifting discards roughly half, so this leaves enough
	// material for a 256-bit key with margin.
	QKDRawBits = 1024

	// QKDMinSiftedBits is the minimum number of sifted bits required to
	// derive a session key.
	QKDMinSiftedBits = 128

	// QKDDefaultNoiseRate is the simulated channel noise applied to
	// measurements when no rate is configured.
	QKDDefaultNoiseRate = 0.02

	// QKDEavesdropThreshold is the observed error rate above which the
	// exchange is treated as eavesdropped and aborted.
	QKDEavesdropThreshold = 0.15
)

// Session parameters
const (
	// DefaultSessionLifetimeSeconds bounds how long a session key stays
	// valid before a fresh establishment is required (1 hour).
	DefaultSessionLifetimeSeconds = 3600

	// DefaultIdleTimeoutSeconds tears down sessions with no traffic
	// (15 minutes).
	DefaultIdleTimeoutSeconds = 900
)

// Envelope size limits
const (
	// MaxEnvelopeSize is the maximum size of a serialized envelope.
	MaxEnvelopeSize = 65536

	// MaxIdentitySize is the maximum length of a sender or recipient
	// identity string on the wire.
	MaxIdentitySize = 255

	// MinCiphertextSize is the minimum length of a valid AEAD ciphertext.
	// An empty plaintext seals to a tag-only ciphertext.
	MinCiphertextSize = TagSize
)

// CipherSuite identifies the AEAD construction protecting envelope payloads.
type CipherSuite uint16

const (
	// CipherSuiteAES256GCM uses AES-256-GCM for payload encryption.
	CipherSuiteAES256GCM CipherSuite = 0x0001

	// CipherSuiteChaCha20Poly1305 uses ChaCha20-Poly1305 for payload encryption.
	CipherSuiteChaCha20Poly1305 CipherSuite = 0x0002
)

// String returns a human-readable name for the cipher suite.
func (cs CipherSuite) String() string {
	switch cs {
	case CipherSuiteAES256GCM:
		return "AES-256-GCM"
	case CipherSuiteChaCha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the cipher suite is supported.
func (cs CipherSuite) IsSupported() bool {
	return cs == CipherSuiteAES256GCM || cs == CipherSuiteChaCha20Poly1305
}

// IntegrityKind identifies the scheme protecting envelope integrity.
// Adding a new scheme is a new variant here, not a string comparison
// scattered through the code.
type IntegrityKind uint8

const (
	// IntegrityUnsigned marks an envelope carrying no integrity digest
	// (legacy senders). Policy decides whether such envelopes are accepted.
	IntegrityUnsigned IntegrityKind = 0x00

	// IntegrityHMACSHA256 is an HMAC-SHA256 digest over the canonical
	// envelope bytes.
	IntegrityHMACSHA256 IntegrityKind = 0x01
)

// String returns a human-readable name for the integrity kind.
func (k IntegrityKind) String() string {
	switch k {
	case IntegrityUnsigned:
		return "UNSIGNED"
	case IntegrityHMACSHA256:
		return "HMAC_SHA256"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the integrity kind is a known variant.
func (k IntegrityKind) IsSupported() bool {
	return k == IntegrityUnsigned || k == IntegrityHMACSHA256
}
