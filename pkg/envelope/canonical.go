// canonical.go defines the canonical envelope byte encoding.
//
// The canonical bytes are what the integrity layer and the audit signature
// cover: a deterministic, order-fixed concatenation of every envelope field
// except the integrity and signature fields themselves. Both signer and
// verifier must produce identical bytes, so the encoding is length-prefixed
// with fixed-width big-endian integers and specified exactly once, here.
//
// Layout:
//
//	len(sender)(4 BE)    || sender
//	len(recipient)(4 BE) || recipient
//	len(nonce)(4 BE)     || nonce
//	timestamp(8 BE)
//	len(ciphertext)(4 BE)|| ciphertext
package envelope

import (
	"encoding/binary"
)

// CanonicalBytes returns the deterministic byte encoding of the envelope
// fields covered by the integrity digest and the audit signature.
//
// The caller is expected to have validated the envelope; CanonicalBytes
// itself never fails.
func CanonicalBytes(e *MessageEnvelope) []byte {
	sender := []byte(e.SenderID)
	recipient := []byte(e.RecipientID)

	size := 4 + len(sender) +
		4 + len(recipient) +
		4 + len(e.Nonce) +
		8 +
		4 + len(e.Ciphertext)

	buf := make([]byte, 0, size)
	lenBuf := make([]byte, 8)

	appendField := func(field []byte) {
		binary.BigEndian.PutUint32(lenBuf[:4], uint32(len(field)))
		buf = append(buf, lenBuf[:4]...)
		buf = append(buf, field...)
	}

	appendField(sender)
	appendField(recipient)
	appendField(e.Nonce)

	binary.BigEndian.PutUint64(lenBuf, uint64(e.Timestamp))
	buf = append(buf, lenBuf...)

	appendField(e.Ciphertext)

	return buf
}
