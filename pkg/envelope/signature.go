// signature.go implements the optional detached audit signature.
//
// The signature uses ML-DSA-65 (NIST FIPS 204), a post-quantum lattice
// signature scheme. It runs independently of the integrity key: a party
// holding only the sender's public key, such as an auditor, can confirm
// authorship without access to any shared secret.
package envelope

import (
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// SigningKeyPair holds an ML-DSA-65 key pair for producing audit signatures.
type SigningKeyPair struct {
	PublicKey  *mldsa65.PublicKey
	PrivateKey *mldsa65.PrivateKey
}

// GenerateSigningKeyPair generates a new ML-DSA-65 key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := mldsa65.GenerateKey(nil)
	if err != nil {
		return nil, qerrors.NewCryptoError("GenerateSigningKeyPair", err)
	}
	return &SigningKeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// PublicKeyBytes returns the encoded public key for distribution to
// verifiers.
func (kp *SigningKeyPair) PublicKeyBytes() ([]byte, error) {
	data, err := kp.PublicKey.MarshalBinary()
	if err != nil {
		return nil, qerrors.NewCryptoError("SigningKeyPair.PublicKeyBytes", err)
	}
	return data, nil
}

// SignEnvelope produces a detached signature over the canonical envelope
// bytes. The integrity field must already be attached; the signature covers
// the same canonical bytes the digest covers, so the two layers attest to
// the identical content.
func SignEnvelope(kp *SigningKeyPair, e *MessageEnvelope) error {
	if kp == nil || kp.PrivateKey == nil {
		return qerrors.ErrSignatureInvalid
	}
	sig := make([]byte, mldsa65.SignatureSize)
	mldsa65.SignTo(kp.PrivateKey, CanonicalBytes(e), nil, false, sig)
	e.Signature = sig
	return nil
}

// VerifySignature verifies a detached signature over the canonical envelope
// bytes against an encoded ML-DSA-65 public key.
func VerifySignature(publicKey []byte, e *MessageEnvelope) bool {
	if len(publicKey) != constants.MLDSAPublicKeySize {
		return false
	}
	if len(e.Signature) != constants.MLDSASignatureSize {
		return false
	}
	pub := new(mldsa65.PublicKey)
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return false
	}
	return mldsa65.Verify(pub, CanonicalBytes(e), nil, e.Signature)
}

// CheckSignature applies policy to the signature field: absence is not an
// error unless the policy mandates third-party verification.
func CheckSignature(e *MessageEnvelope, publicKey []byte, policy Policy) error {
	if !e.Signed() {
		if policy.RequireSignature {
			return qerrors.ErrSignatureInvalid
		}
		return nil
	}
	if !VerifySignature(publicKey, e) {
		return qerrors.ErrSignatureInvalid
	}
	return nil
}
