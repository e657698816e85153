package keyexchange

import (
	"testing"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

func TestRunBB84CleanChannel(t *testing.T) {
	res, err := runBB84(0)
	if err != nil {
		t.Fatalf("runBB84 failed: %v", err)
	}

	if res.errorRate != 0 {
		t.Errorf("error rate on clean channel: got %f, want 0", res.errorRate)
	}
	if res.siftedBits < 2*constants.QKDMinSiftedBits {
		t.Errorf("sifted bits: got %d, want at least %d", res.siftedBits, 2*constants.QKDMinSiftedBits)
	}
	if len(res.key)*8 < constants.QKDMinSiftedBits {
		t.Errorf("key bits: got %d, want at least %d", len(res.key)*8, constants.QKDMinSiftedBits)
	}
}

func TestRunBB84ModerateNoise(t *testing.T) {
	// Noise below the eavesdropping threshold still yields a key.
	res, err := runBB84(constants.QKDDefaultNoiseRate)
	if err != nil {
		t.Fatalf("runBB84 failed: %v", err)
	}
	if res.errorRate > constants.QKDEavesdropThreshold {
		t.Errorf("error rate: got %f, want at most %f", res.errorRate, constants.QKDEavesdropThreshold)
	}
}

func TestRunBB84EavesdropperNoise(t *testing.T) {
	// Heavy noise looks like an intercept-resend attack and aborts.
	if _, err := runBB84(0.5); !qerrors.Is(err, qerrors.ErrNoiseThresholdExceeded) {
		t.Errorf("got %v, want ErrNoiseThresholdExceeded", err)
	}
}

func TestRunBB84ClampsNoiseRate(t *testing.T) {
	// Rates outside [0, 1] clamp rather than overflowing the flip
	// threshold. Above 1 behaves as a fully noisy channel.
	if _, err := runBB84(1.5); !qerrors.Is(err, qerrors.ErrNoiseThresholdExceeded) {
		t.Errorf("rate above one: got %v, want ErrNoiseThresholdExceeded", err)
	}

	// Below 0 behaves as a clean channel.
	res, err := runBB84(-0.5)
	if err != nil {
		t.Fatalf("negative rate failed: %v", err)
	}
	if res.errorRate != 0 {
		t.Errorf("error rate with negative rate: got %f, want 0", res.errorRate)
	}
}

func TestPackBits(t *testing.T) {
	got := packBits([]byte{1, 0, 1, 0, 1, 0, 1, 0, 1})
	if len(got) != 2 {
		t.Fatalf("packed length: got %d, want 2", len(got))
	}
	if got[0] != 0xAA {
		t.Errorf("first byte: got 0x%02X, want 0xAA", got[0])
	}
	if got[1] != 0x80 {
		t.Errorf("trailing partial byte: got 0x%02X, want 0x80", got[1])
	}
}

func TestRandomBits(t *testing.T) {
	bits, err := randomBits(1024)
	if err != nil {
		t.Fatalf("randomBits failed: %v", err)
	}

	ones := 0
	for _, b := range bits {
		if b > 1 {
			t.Fatalf("bit value out of range: %d", b)
		}
		if b == 1 {
			ones++
		}
	}
	// A fair source lands far from both extremes.
	if ones < 256 || ones > 768 {
		t.Errorf("ones count %d outside plausible range for 1024 fair bits", ones)
	}
}
