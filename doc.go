// Package cryptexq provides a secure message envelope protocol for
// real-time messaging: simulated post-quantum session key establishment,
// authenticated encryption of message payloads, an independent HMAC
// integrity layer, stateful replay protection, and an optional detached
// audit signature.
//
// The packages compose into a per-message pipeline:
//
//	keyexchange  ->  session key material (classical, hybrid PQC, or QKD)
//	envelope     ->  AEAD cipher, integrity digest, signature, wire codec
//	replay       ->  per-session duplicate and freshness filtering
//	session      ->  seal/open pipeline, lifecycle, blob persistence
//	metrics      ->  logging, security counters, tracing
//
// See cmd/cryptexq for a runnable end-to-end scenario.
package cryptexq
