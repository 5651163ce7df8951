package codec

import (
	"testing"
)

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodec(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	in := map[string]any{"n": 42, "nested": map[string]any{"k": "v"}}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	switch n := out["n"].(type) {
	case uint64:
		if n != 42 {
			t.Fatalf("roundtrip mismatch: %#v", out)
		}
	case int64:
		if n != 42 {
			t.Fatalf("roundtrip mismatch: %#v", out)
		}
	default:
		t.Fatalf("unexpected number type %T", out["n"])
	}
	nested, ok := out["nested"].(map[string]any)
	if !ok || nested["k"] != "v" {
		t.Fatalf("nested map mismatch: %#v", out["nested"])
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if c := r.Get("application/json"); c == nil {
		t.Fatalf("json codec missing from registry")
	}
	if c := r.Get("application/cbor"); c != nil {
		t.Fatalf("cbor should require explicit registration")
	}
	cb, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	r.Register(cb)
	if c := r.Get("application/cbor"); c == nil {
		t.Fatalf("cbor codec missing after Register")
	}
}
