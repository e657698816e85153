package envelope_test

import (
	"testing"
	"time"

	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
)

func testKeyMaterial(t *testing.T) *envelope.KeyMaterial {
	t.Helper()
	now := time.Now()
	return &envelope.KeyMaterial{
		SessionKey:    crypto.MustSecureRandomBytes(32),
		IntegrityKey:  crypto.MustSecureRandomBytes(32),
		EstablishedAt: now,
		ExpiresAt:     now.Add(time.Hour),
	}
}

func TestKeyMaterialValidate(t *testing.T) {
	km := testKeyMaterial(t)
	if err := km.Validate(); err != nil {
		t.Fatalf("valid key material rejected: %v", err)
	}
}

func TestKeyMaterialValidateRejects(t *testing.T) {
	now := time.Now()
	sessionKey := crypto.MustSecureRandomBytes(32)
	integrityKey := crypto.MustSecureRandomBytes(32)

	tests := []struct {
		name string
		km   *envelope.KeyMaterial
	}{
		{
			name: "short session key",
			km: &envelope.KeyMaterial{
				SessionKey:    sessionKey[:16],
				IntegrityKey:  integrityKey,
				EstablishedAt: now,
				ExpiresAt:     now.Add(time.Hour),
			},
		},
		{
			name: "short integrity key",
			km: &envelope.KeyMaterial{
				SessionKey:    sessionKey,
				IntegrityKey:  integrityKey[:16],
				EstablishedAt: now,
				ExpiresAt:     now.Add(time.Hour),
			},
		},
		{
			name: "identical keys",
			km: &envelope.KeyMaterial{
				SessionKey:    sessionKey,
				IntegrityKey:  append([]byte(nil), sessionKey...),
				EstablishedAt: now,
				ExpiresAt:     now.Add(time.Hour),
			},
		},
		{
			name: "zero session key",
			km: &envelope.KeyMaterial{
				SessionKey:    make([]byte, 32),
				IntegrityKey:  integrityKey,
				EstablishedAt: now,
				ExpiresAt:     now.Add(time.Hour),
			},
		},
		{
			name: "expiry before establishment",
			km: &envelope.KeyMaterial{
				SessionKey:    sessionKey,
				IntegrityKey:  integrityKey,
				EstablishedAt: now,
				ExpiresAt:     now.Add(-time.Hour),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.km.Validate()
			if err == nil {
				t.Fatal("Validate accepted invalid key material")
			}
			if !qerrors.Is(err, qerrors.ErrKeyMaterialInvalid) && !qerrors.Is(err, qerrors.ErrInvalidKeySize) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestKeyMaterialExpired(t *testing.T) {
	km := testKeyMaterial(t)

	if km.Expired(km.EstablishedAt.Add(time.Minute)) {
		t.Error("material inside validity reported expired")
	}
	if !km.Expired(km.ExpiresAt.Add(time.Millisecond)) {
		t.Error("material past expiry reported valid")
	}
}

func TestKeyMaterialZeroize(t *testing.T) {
	km := testKeyMaterial(t)
	km.Zeroize()

	for _, b := range km.SessionKey {
		if b != 0 {
			t.Fatal("session key not wiped")
		}
	}
	for _, b := range km.IntegrityKey {
		if b != 0 {
			t.Fatal("integrity key not wiped")
		}
	}
}
