package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"unixlink/pkg/protocol/codec"
)

// normalize round-trips v through encoding/json so expectations use the
// same value domain the wire produces (float64 numbers, map[string]any).
func normalize(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestFrameRoundTrip(t *testing.T) {
	c := codec.JSON()
	payloads := []any{
		"hello",
		"",
		42.5,
		true,
		nil,
		map[string]any{"n": 1, "nested": map[string]any{"k": []any{"a", "b"}}},
		[]any{1, "two", false, nil},
	}
	for _, p := range payloads {
		frame, err := EncodeFrame(c, &Envelope{Event: "s-ev", Payload: p})
		if err != nil {
			t.Fatalf("encode %v: %v", p, err)
		}
		dec := NewDecoder()
		if _, err := dec.Write(frame); err != nil {
			t.Fatalf("feed: %v", err)
		}
		body, err := dec.Next()
		if err != nil || body == nil {
			t.Fatalf("next: body=%v err=%v", body, err)
		}
		env, err := DecodeEnvelope(c, body)
		if err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Event != "s-ev" {
			t.Fatalf("event mismatch: %q", env.Event)
		}
		if want := normalize(t, p); !reflect.DeepEqual(env.Payload, want) {
			t.Fatalf("payload mismatch: got %#v want %#v", env.Payload, want)
		}
		if dec.Buffered() != 0 {
			t.Fatalf("leftover bytes: %d", dec.Buffered())
		}
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	c := codec.JSON()
	var stream []byte
	for _, ev := range []string{"c-a", "c-b", "c-c"} {
		frame, err := EncodeFrame(c, &Envelope{Event: ev, Payload: ev + "-payload"})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		stream = append(stream, frame...)
	}

	collect := func(dec *Decoder) [][]byte {
		var out [][]byte
		for {
			body, err := dec.Next()
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if body == nil {
				return out
			}
			out = append(out, body)
		}
	}

	whole := NewDecoder()
	whole.Write(stream)
	wantFrames := collect(whole)
	if len(wantFrames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(wantFrames))
	}

	drip := NewDecoder()
	var gotFrames [][]byte
	for i := range stream {
		drip.Write(stream[i : i+1])
		gotFrames = append(gotFrames, collect(drip)...)
	}
	if len(gotFrames) != len(wantFrames) {
		t.Fatalf("frame count mismatch: %d vs %d", len(gotFrames), len(wantFrames))
	}
	for i := range wantFrames {
		if !bytes.Equal(gotFrames[i], wantFrames[i]) {
			t.Fatalf("frame %d differs", i)
		}
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	c := codec.JSON()
	big := strings.Repeat("a", MaxMessageSize+1)
	if _, err := EncodeFrame(c, &Envelope{Event: "s-x", Payload: big}); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecoderOversizedFrame(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxMessageSize+1)
	dec := NewDecoder()
	dec.Write(hdr[:])
	if _, err := dec.Next(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	c := codec.JSON()
	for _, body := range []string{`{"payload": 1}`, `not json`, `[1,2,3]`} {
		if _, err := DecodeEnvelope(c, []byte(body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
}

func TestDecoderInterleavedPartials(t *testing.T) {
	c := codec.JSON()
	f1, _ := EncodeFrame(c, &Envelope{Event: "s-a", Payload: 1})
	f2, _ := EncodeFrame(c, &Envelope{Event: "s-b", Payload: 2})

	dec := NewDecoder()
	dec.Write(f1[:3])
	if body, err := dec.Next(); body != nil || err != nil {
		t.Fatalf("incomplete frame yielded body=%v err=%v", body, err)
	}
	dec.Write(f1[3:])
	dec.Write(f2[:1])
	body, err := dec.Next()
	if err != nil || body == nil {
		t.Fatalf("first frame: body=%v err=%v", body, err)
	}
	if body, _ := dec.Next(); body != nil {
		t.Fatalf("second frame should be incomplete")
	}
	dec.Write(f2[1:])
	if body, err := dec.Next(); err != nil || body == nil {
		t.Fatalf("second frame: body=%v err=%v", body, err)
	}
}
