// kdf.go implements key derivation using SHAKE-256 (SHA-3 XOF).
//
// SHAKE-256 (FIPS 202) is an extendable-output function based on the Keccak
// sponge construction. It provides 256-bit security against collision and
// preimage attacks and is immune to length-extension attacks.
//
// Every derivation is domain-separated and length-prefixed:
//
//	output = SHAKE-256(
//	    len(domain) || domain ||
//	    len(input) || input,
//	    output_length
//	)
//
// Length prefixes are 4-byte big-endian integers so concatenated inputs
// parse unambiguously. Both endpoints of a key exchange must apply the
// identical derivation or the session keys diverge.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// DeriveKey derives a key using SHAKE-256 with domain separation.
//
// Parameters:
//   - domain: Domain separation string (prevents cross-protocol attacks)
//   - input: Secret input material to derive from
//   - outputLen: Desired output length in bytes
//
// Returns:
//   - derived: The derived key material
//   - error: Non-nil if parameters are invalid
func DeriveKey(domain string, input []byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<20 { // Max 1MB
		return nil, qerrors.NewCryptoError("DeriveKey", qerrors.ErrInvalidKeySize)
	}

	h := sha3.NewShake256()

	domainBytes := []byte(domain)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(domainBytes)))
	h.Write(lenBuf)
	h.Write(domainBytes)

	binary.BigEndian.PutUint32(lenBuf, uint32(len(input)))
	h.Write(lenBuf)
	h.Write(input)

	output := make([]byte, outputLen)
	_, _ = h.Read(output) // SHAKE256.Read never fails

	return output, nil
}

// DeriveKeyMultiple derives a key from multiple inputs with domain
// separation. This is the combiner for hybrid key establishment, where the
// classical secret, the post-quantum secret, and the exchange transcript
// hash are folded into one session key.
//
// Parameters:
//   - domain: Domain separation string
//   - inputs: Multiple input values to combine
//   - outputLen: Desired output length in bytes
//
// Returns:
//   - derived: The derived key material
//   - error: Non-nil if parameters are invalid
func DeriveKeyMultiple(domain string, inputs [][]byte, outputLen int) ([]byte, error) {
	if outputLen <= 0 || outputLen > 1<<20 {
		return nil, qerrors.NewCryptoError("DeriveKeyMultiple", qerrors.ErrInvalidKeySize)
	}

	h := sha3.NewShake256()
	lenBuf := make([]byte, 4)

	domainBytes := []byte(domain)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(domainBytes)))
	h.Write(lenBuf)
	h.Write(domainBytes)

	binary.BigEndian.PutUint32(lenBuf, uint32(len(inputs)))
	h.Write(lenBuf)

	for _, input := range inputs {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(input)))
		h.Write(lenBuf)
		h.Write(input)
	}

	output := make([]byte, outputLen)
	_, _ = h.Read(output) // SHAKE256.Read never fails

	return output, nil
}

// TranscriptHash computes a hash over the public values of a key exchange.
//
// The transcript binds the derived session key to everything both parties
// saw: identity strings, public keys, ciphertexts. Changing any component
// changes the hash, which prevents transcript manipulation.
//
// Parameters:
//   - components: Ordered list of transcript components
//
// Returns:
//   - hash: 32-byte transcript hash
func TranscriptHash(components ...[]byte) []byte {
	h := sha3.New256()
	lenBuf := make([]byte, 4)

	binary.BigEndian.PutUint32(lenBuf, uint32(len(components)))
	h.Write(lenBuf)

	for _, component := range components {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(component)))
		h.Write(lenBuf)
		h.Write(component)
	}

	return h.Sum(nil)
}
