// Package protocol defines the wire envelope and length-prefixed framing
// shared by both linker roles.
package protocol

import (
	"fmt"

	"unixlink/pkg/protocol/codec"
)

// Envelope is the logical message unit carried by one frame.
type Envelope struct {
	Event   string `json:"event" cbor:"event"`
	Payload any    `json:"payload" cbor:"payload"`
}

// DecodeEnvelope parses one frame body. A body that does not decode, or that
// lacks a string `event` key, is a per-frame error; the connection itself
// stays usable.
func DecodeEnvelope(c codec.Codec, body []byte) (*Envelope, error) {
	var m map[string]any
	if err := c.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	ev, ok := m["event"].(string)
	if !ok {
		return nil, fmt.Errorf("decode envelope: missing event key")
	}
	return &Envelope{Event: ev, Payload: m["payload"]}, nil
}
