package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"unixlink/pkg/protocol/codec"
)

// MaxMessageSize caps one encoded envelope body. Enforced on encode as a
// send error and on decode as a connection-fatal protocol error, so a
// corrupt or hostile peer cannot force unbounded buffering.
const MaxMessageSize = 1 << 20 // 1 MiB

// frameHeaderSize is the length prefix: u32 big-endian.
const frameHeaderSize = 4

// ErrFrameTooLarge reports a frame over MaxMessageSize. On the decode path
// it is fatal for the connection that produced it.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum message size")

// EncodeFrame serializes env with c and prepends the 4-byte big-endian
// length. Nothing is produced for oversized bodies.
func EncodeFrame(c codec.Codec, env *Envelope) ([]byte, error) {
	body, err := c.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	if len(body) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	out := make([]byte, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(out[:frameHeaderSize], uint32(len(body)))
	copy(out[frameHeaderSize:], body)
	return out, nil
}

// Decoder recovers frame bodies from an accumulating byte stream. Feed it
// reads via Write and drain complete frames via Next; partial input is
// buffered until the rest arrives, so feeding one byte at a time yields the
// same frames as feeding everything at once.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Write appends stream bytes to the accumulation buffer. It never fails;
// the signature satisfies io.Writer.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered reports how many undecoded bytes are pending.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next returns the next complete frame body, or (nil, nil) when more bytes
// are needed. ErrFrameTooLarge means the stream is poisoned and the
// connection must be dropped.
func (d *Decoder) Next() ([]byte, error) {
	if len(d.buf) < frameHeaderSize {
		return nil, nil
	}
	n := int(binary.BigEndian.Uint32(d.buf[:frameHeaderSize]))
	if n > MaxMessageSize {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, n)
	}
	if len(d.buf) < frameHeaderSize+n {
		return nil, nil
	}
	body := make([]byte, n)
	copy(body, d.buf[frameHeaderSize:frameHeaderSize+n])
	rest := len(d.buf) - frameHeaderSize - n
	copy(d.buf, d.buf[frameHeaderSize+n:])
	d.buf = d.buf[:rest]
	return body, nil
}
