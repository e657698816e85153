package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cryptexq/cryptexq-go/internal/config"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
	"github.com/cryptexq/cryptexq-go/pkg/keyexchange"
	"github.com/cryptexq/cryptexq-go/pkg/metrics"
	"github.com/cryptexq/cryptexq-go/pkg/replay"
	"github.com/cryptexq/cryptexq-go/pkg/session"
)

// demoCommand runs the full envelope scenario between alice and bob:
// establish, seal, open, then show that a replayed envelope and a tampered
// envelope are both rejected.
func demoCommand() {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, qerrors.ErrMissingIntegritySecret) {
			fmt.Fprintln(os.Stderr, "Error: INTEGRITY_SECRET is not set.")
			fmt.Fprintln(os.Stderr, `Set it in the environment or a .env file, e.g.:`)
			fmt.Fprintln(os.Stderr, `  INTEGRITY_SECRET=$(head -c 32 /dev/urandom | base64)`)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := metrics.NewLogger(
		metrics.WithLevel(metrics.ParseLevel(cfg.LogLevel)),
		metrics.WithName("cryptexq"),
	)
	metrics.SetLogger(logger)

	mode, err := keyexchange.ParseMode(cfg.KeyExchangeMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("cryptexq envelope demo")
	fmt.Printf("  mode:   %s\n", mode)
	fmt.Printf("  window: %s, skew: %s\n", cfg.ReplayWindow, cfg.SkewTolerance)
	fmt.Println()

	establisher, err := keyexchange.NewEstablisher(mode, cfg.IntegritySecret,
		keyexchange.WithNoiseRate(cfg.QKDNoiseRate),
		keyexchange.WithLifetime(cfg.SessionLifetime),
	)
	if err != nil {
		fail(err)
	}

	guard := replay.NewGuard(cfg.ReplayWindow, cfg.SkewTolerance)

	signer, err := envelope.GenerateSigningKeyPair()
	if err != nil {
		fail(err)
	}

	opts := []session.ManagerOption{
		session.WithSigner(signer),
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithLogger(logger),
	}
	if cfg.BlobDir != "" {
		store, err := session.NewFileStore(cfg.BlobDir)
		if err != nil {
			fail(err)
		}
		keeper, err := session.NewKeeper(store, cfg.IntegritySecret)
		if err != nil {
			fail(err)
		}
		opts = append(opts, session.WithKeeper(keeper))
	}

	mgr, err := session.NewManager(establisher, guard, opts...)
	if err != nil {
		fail(err)
	}
	defer mgr.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Establish.
	sess, err := mgr.Establish(ctx, "alice", "bob")
	if err != nil {
		fail(err)
	}
	fmt.Printf("[1] session established: %s\n", sess.ID)

	// 2. Seal and open a message.
	wire, err := sess.Seal(ctx, []byte("hello quantum world"))
	if err != nil {
		fail(err)
	}
	fmt.Printf("[2] sealed %d plaintext bytes into %d wire bytes\n", 19, len(wire))

	plaintext, err := sess.Open(ctx, wire)
	if err != nil {
		fail(err)
	}
	fmt.Printf("[3] opened: %q\n", plaintext)

	// 3. Replay the exact same bytes.
	if _, err := sess.Open(ctx, wire); errors.Is(err, qerrors.ErrReplayDetected) {
		fmt.Println("[4] replayed envelope rejected: replay detected")
	} else {
		fail(fmt.Errorf("replay was not rejected: %v", err))
	}

	// 4. Tamper with a fresh envelope's ciphertext.
	wire2, err := sess.Seal(ctx, []byte("a second message"))
	if err != nil {
		fail(err)
	}
	tampered, err := flipCiphertextBit(wire2)
	if err != nil {
		fail(err)
	}
	if _, err := sess.Open(ctx, tampered); errors.Is(err, qerrors.ErrIntegrityViolation) {
		fmt.Println("[5] tampered envelope rejected: integrity violation")
	} else {
		fail(fmt.Errorf("tampering was not detected: %v", err))
	}

	snap := mgr.Collector().Snapshot()
	fmt.Println()
	fmt.Println("counters:")
	fmt.Printf("  sealed=%d opened=%d replays_blocked=%d integrity_violations=%d\n",
		snap.EnvelopesSealed, snap.EnvelopesOpened, snap.ReplaysBlocked, snap.IntegrityViolations)
}

// flipCiphertextBit decodes a wire envelope, flips one bit of its
// ciphertext, and re-encodes it with the original digest left in place.
func flipCiphertextBit(wire []byte) ([]byte, error) {
	codec := envelope.NewCodec()
	e, err := codec.Decode(wire)
	if err != nil {
		return nil, err
	}
	e.Ciphertext[0] ^= 0x01
	return codec.Encode(e)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
