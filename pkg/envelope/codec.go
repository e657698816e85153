// codec.go implements serialization of envelopes to the transport's byte
// format.
//
// Wire Format:
//
//	+------+---------+----------+
//	| Type | Length  | Payload  |
//	| 1B   | 4B BE   | Variable |
//	+------+---------+----------+
//
// Envelope payload:
//
//	+---------+------------+-------------+-------+-----------+------------+
//	| Version | FromLen(1) | From        | ToLen | To        | Nonce(12)  |
//	+---------+------------+-------------+-------+-----------+------------+
//	| Timestamp(8 BE) | CtLen(4 BE) | Ciphertext | Kind(1) | [Digest(32)] |
//	+-----------------+-------------+------------+---------+--------------+
//	| SigLen(4 BE) | Signature (absent if SigLen = 0)                     |
//	+--------------+------------------------------------------------------+
//
// The digest field is present only for IntegrityHMACSHA256. Decoding
// validates structure fully and returns ErrMalformedEnvelope before any
// cryptographic work is attempted.
package envelope

import (
	"encoding/binary"
	"io"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
)

// MessageTypeEnvelope identifies a serialized envelope on the wire.
const MessageTypeEnvelope uint8 = 0x20

// HeaderSize is the size of the message header (type + length).
const HeaderSize = 5 // 1 byte type + 4 bytes length

// Codec serializes and deserializes envelopes. It holds no state and is
// safe for concurrent use.
type Codec struct{}

// NewCodec creates a new envelope codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Encode serializes an envelope into the transport byte format.
func (c *Codec) Encode(e *MessageEnvelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	sender := []byte(e.SenderID)
	recipient := []byte(e.RecipientID)

	payloadSize := 1 + // version
		1 + len(sender) +
		1 + len(recipient) +
		constants.NonceSize +
		8 + // timestamp
		4 + len(e.Ciphertext) +
		1 + len(e.Integrity.Value) + // kind + digest (digest may be empty)
		4 + len(e.Signature)

	if HeaderSize+payloadSize > constants.MaxEnvelopeSize {
		return nil, qerrors.ErrMalformedEnvelope
	}

	buf := make([]byte, HeaderSize+payloadSize)
	offset := 0

	// Header
	buf[offset] = MessageTypeEnvelope
	offset++
	binary.BigEndian.PutUint32(buf[offset:], uint32(payloadSize))
	offset += 4

	// Version
	buf[offset] = constants.EnvelopeVersion
	offset++

	// Sender (length-prefixed)
	buf[offset] = byte(len(sender))
	offset++
	copy(buf[offset:], sender)
	offset += len(sender)

	// Recipient (length-prefixed)
	buf[offset] = byte(len(recipient))
	offset++
	copy(buf[offset:], recipient)
	offset += len(recipient)

	// Nonce
	copy(buf[offset:], e.Nonce)
	offset += constants.NonceSize

	// Timestamp
	binary.BigEndian.PutUint64(buf[offset:], uint64(e.Timestamp))
	offset += 8

	// Ciphertext
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(e.Ciphertext)))
	offset += 4
	copy(buf[offset:], e.Ciphertext)
	offset += len(e.Ciphertext)

	// Integrity
	buf[offset] = byte(e.Integrity.Kind)
	offset++
	copy(buf[offset:], e.Integrity.Value)
	offset += len(e.Integrity.Value)

	// Signature
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(e.Signature)))
	offset += 4
	copy(buf[offset:], e.Signature)

	return buf, nil
}

// Decode deserializes an envelope from the transport byte format.
// Every structural defect yields ErrMalformedEnvelope.
func (c *Codec) Decode(data []byte) (*MessageEnvelope, error) {
	if len(data) < HeaderSize {
		return nil, qerrors.ErrMalformedEnvelope
	}
	if data[0] != MessageTypeEnvelope {
		return nil, qerrors.ErrMalformedEnvelope
	}

	payloadLen := binary.BigEndian.Uint32(data[1:5])
	if payloadLen > constants.MaxEnvelopeSize {
		return nil, qerrors.ErrMalformedEnvelope
	}
	if len(data) != HeaderSize+int(payloadLen) {
		return nil, qerrors.ErrMalformedEnvelope
	}

	r := &reader{data: data, offset: HeaderSize}
	e := &MessageEnvelope{}

	version, ok := r.byte()
	if !ok || version != constants.EnvelopeVersion {
		return nil, qerrors.ErrMalformedEnvelope
	}

	sender, ok := r.shortField()
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	e.SenderID = string(sender)

	recipient, ok := r.shortField()
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	e.RecipientID = string(recipient)

	nonce, ok := r.take(constants.NonceSize)
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	e.Nonce = append([]byte(nil), nonce...)

	tsBytes, ok := r.take(8)
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	ts := binary.BigEndian.Uint64(tsBytes)
	if ts > 1<<62 {
		return nil, qerrors.ErrMalformedEnvelope
	}
	e.Timestamp = int64(ts)

	ciphertext, ok := r.longField()
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	e.Ciphertext = append([]byte(nil), ciphertext...)

	kindByte, ok := r.byte()
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	kind := constants.IntegrityKind(kindByte)
	if !kind.IsSupported() {
		return nil, qerrors.ErrMalformedEnvelope
	}
	e.Integrity.Kind = kind
	if kind == constants.IntegrityHMACSHA256 {
		digest, ok := r.take(constants.IntegrityDigestSize)
		if !ok {
			return nil, qerrors.ErrMalformedEnvelope
		}
		e.Integrity.Value = append([]byte(nil), digest...)
	}

	sig, ok := r.longField()
	if !ok {
		return nil, qerrors.ErrMalformedEnvelope
	}
	if len(sig) > 0 {
		e.Signature = append([]byte(nil), sig...)
	}

	if !r.done() {
		return nil, qerrors.ErrMalformedEnvelope
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}

	return e, nil
}

// ReadEnvelope reads one complete serialized envelope from the reader.
func (c *Codec) ReadEnvelope(rd io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(rd, header); err != nil {
		return nil, err
	}

	if header[0] != MessageTypeEnvelope {
		return nil, qerrors.ErrMalformedEnvelope
	}

	payloadLen := binary.BigEndian.Uint32(header[1:5])
	if payloadLen > constants.MaxEnvelopeSize {
		return nil, qerrors.ErrMalformedEnvelope
	}

	msg := make([]byte, HeaderSize+payloadLen)
	copy(msg, header)

	if payloadLen > 0 {
		if _, err := io.ReadFull(rd, msg[HeaderSize:]); err != nil {
			return nil, err
		}
	}

	return msg, nil
}

// reader is a bounds-checked cursor over the payload bytes.
type reader struct {
	data   []byte
	offset int
}

func (r *reader) byte() (byte, bool) {
	if r.offset+1 > len(r.data) {
		return 0, false
	}
	b := r.data[r.offset]
	r.offset++
	return b, true
}

func (r *reader) take(n int) ([]byte, bool) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, false
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, true
}

// shortField reads a 1-byte length prefix followed by that many bytes.
func (r *reader) shortField() ([]byte, bool) {
	n, ok := r.byte()
	if !ok {
		return nil, false
	}
	return r.take(int(n))
}

// longField reads a 4-byte big-endian length prefix followed by that many
// bytes.
func (r *reader) longField() ([]byte, bool) {
	lenBytes, ok := r.take(4)
	if !ok {
		return nil, false
	}
	n := binary.BigEndian.Uint32(lenBytes)
	if n > constants.MaxEnvelopeSize {
		return nil, false
	}
	return r.take(int(n))
}

func (r *reader) done() bool {
	return r.offset == len(r.data)
}
