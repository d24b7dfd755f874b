package protocol

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestPackedRoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint32().Draw(t, "v")
		w := NewWriter()
		w.Packed(v)
		r := NewReader(w.Data())
		got, err := r.ReadPacked()
		if err != nil {
			t.Fatalf("read packed: %v", err)
		}
		if got != v {
			t.Fatalf("packed round trip: wrote %d, read %d", v, got)
		}
		if r.Remaining() != 0 {
			t.Fatalf("expected no remaining bytes, got %d", r.Remaining())
		}
	})
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "bob", "big bob", "ünïcodé"} {
		w := NewWriter()
		w.String(s)
		got, err := NewReader(w.Data()).ReadString()
		if err != nil {
			t.Fatalf("read string %q: %v", s, err)
		}
		if got != s {
			t.Errorf("string round trip: wrote %q, read %q", s, got)
		}
	}
}

func TestNestedMessageFraming(t *testing.T) {
	w := NewWriter()
	w.StartMessage(0x05)
	w.Int32LE(42)
	w.StartMessage(0x02)
	w.Packed(7)
	w.EndMessage()
	w.EndMessage()

	r := NewReader(w.Data())
	tag, body, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("read outer: %v", err)
	}
	if tag != 0x05 {
		t.Fatalf("outer tag = 0x%02x, want 0x05", tag)
	}
	if v, _ := body.ReadInt32LE(); v != 42 {
		t.Fatalf("inner int = %d, want 42", v)
	}
	tag, inner, err := body.ReadMessage()
	if err != nil {
		t.Fatalf("read inner: %v", err)
	}
	if tag != 0x02 {
		t.Fatalf("inner tag = 0x%02x, want 0x02", tag)
	}
	if v, _ := inner.ReadPacked(); v != 7 {
		t.Fatalf("inner packed = %d, want 7", v)
	}
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader([]byte{0x05, 0x00}) // length 5 but no tag/payload
	if _, _, err := r.ReadMessage(); err == nil {
		t.Fatal("expected error on truncated message")
	}

	r = NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	if _, err := r.ReadPacked(); err == nil {
		t.Fatal("expected error on overlong packed integer")
	}
}

func TestWriterReset(t *testing.T) {
	w := NewWriter()
	w.Bytes([]byte{1, 2, 3})
	w.Reset()
	w.Byte(9)
	if !bytes.Equal(w.Data(), []byte{9}) {
		t.Fatalf("reset writer data = %v, want [9]", w.Data())
	}
}
