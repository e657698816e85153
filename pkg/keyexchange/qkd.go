// qkd.go simulates a BB84 quantum key distribution round.
//
// The simulation models both endpoints of a BB84 exchange in-process:
//
//  1. Alice encodes random bits in random bases; Bob measures in his own
//     random bases. A measurement in the matching basis reproduces Alice's
//     bit except when channel noise flips it.
//  2. Sifting discards every position where the bases differ, which is
//     half of them on average.
//  3. Half of the sifted bits are sacrificed to estimate the channel error
//     rate. An error rate above the eavesdropping threshold aborts the
//     exchange, since an intercept-resend attacker induces errors it
//     cannot avoid.
//  4. The surviving bits become raw key material.
//
// All randomness comes from the CSPRNG. This is a simulation of the QKD
// protocol flow, not a source of information-theoretic security.
package keyexchange

import (
	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
)

// bb84Result holds the outcome of a simulated BB84 round.
type bb84Result struct {
	// key is the packed raw key material from the surviving sifted bits.
	key []byte

	// siftedBits counts positions where Alice's and Bob's bases matched.
	siftedBits int

	// errorRate is the channel error rate observed on the sampled bits.
	errorRate float64
}

// runBB84 simulates one BB84 round over a channel with the given noise
// rate. Returns ErrNoiseThresholdExceeded when the observed error rate
// suggests eavesdropping and ErrInsufficientKeyBits when sifting leaves too
// little key material.
func runBB84(noiseRate float64) (*bb84Result, error) {
	aliceBits, err := randomBits(constants.QKDRawBits)
	if err != nil {
		return nil, err
	}
	aliceBases, err := randomBits(constants.QKDRawBits)
	if err != nil {
		return nil, err
	}
	bobBases, err := randomBits(constants.QKDRawBits)
	if err != nil {
		return nil, err
	}
	noise, err := crypto.SecureRandomBytes(constants.QKDRawBits)
	if err != nil {
		return nil, err
	}

	// A noise byte below the scaled rate flips the measured bit. The rate
	// is clamped to [0, 1]; at 1 every measurement flips.
	if noiseRate < 0 {
		noiseRate = 0
	}
	if noiseRate > 1 {
		noiseRate = 1
	}
	flipBelow := int(noiseRate * 256)

	var aliceSifted, bobSifted []byte
	for i := 0; i < constants.QKDRawBits; i++ {
		if aliceBases[i] != bobBases[i] {
			continue
		}
		measured := aliceBits[i]
		if int(noise[i]) < flipBelow {
			measured ^= 1
		}
		aliceSifted = append(aliceSifted, aliceBits[i])
		bobSifted = append(bobSifted, measured)
	}

	res := &bb84Result{siftedBits: len(aliceSifted)}
	if len(aliceSifted) < 2*constants.QKDMinSiftedBits {
		return nil, qerrors.ErrInsufficientKeyBits
	}

	// Even positions are disclosed for error estimation, odd positions
	// survive as key material.
	sampled, mismatched := 0, 0
	var keyBits []byte
	for i := range aliceSifted {
		if i%2 == 0 {
			sampled++
			if aliceSifted[i] != bobSifted[i] {
				mismatched++
			}
			continue
		}
		keyBits = append(keyBits, aliceSifted[i])
	}

	res.errorRate = float64(mismatched) / float64(sampled)
	if res.errorRate > constants.QKDEavesdropThreshold {
		return nil, qerrors.ErrNoiseThresholdExceeded
	}
	if len(keyBits) < constants.QKDMinSiftedBits {
		return nil, qerrors.ErrInsufficientKeyBits
	}

	res.key = packBits(keyBits)
	return res, nil
}

// randomBits returns n cryptographically random bits, one per byte.
func randomBits(n int) ([]byte, error) {
	raw, err := crypto.SecureRandomBytes(n)
	if err != nil {
		return nil, err
	}
	for i := range raw {
		raw[i] &= 1
	}
	return raw, nil
}

// packBits packs one-bit-per-byte values into bytes, MSB first. A trailing
// partial byte is zero-padded.
func packBits(bits []byte) []byte {
	packed := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			packed[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return packed
}
