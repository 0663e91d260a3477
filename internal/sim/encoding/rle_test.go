package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 0, 0, 1)
	for i := 0; i < 50; i++ {
		in = append(in, 0)
	}
	in = append(in, 1, 0, 0, 0)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_Limit(t *testing.T) {
	in := make([]uint16, 100)
	enc := EncodeRLE(in)
	if _, err := DecodeRLE(enc, 99); err == nil {
		t.Fatalf("expected limit error")
	}
	if _, err := DecodeRLE(enc, 100); err != nil {
		t.Fatalf("DecodeRLE at exact limit: %v", err)
	}
}

func TestRLE_BadInput(t *testing.T) {
	if _, err := DecodeRLE("not base64!!", 0); err == nil {
		t.Fatalf("expected base64 error")
	}
	// A single varint with no run length.
	if _, err := DecodeRLE("AQ==", 0); err == nil {
		t.Fatalf("expected truncated pair error")
	}
}
