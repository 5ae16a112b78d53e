package db

import "testing"

func TestVectorToBytes(t *testing.T) {
	b := VectorToBytes([]float32{1, -2})
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	// 1.0 little-endian
	if b[0] != 0x00 || b[3] != 0x3f || b[2] != 0x80 {
		t.Errorf("unexpected encoding % x", b[:4])
	}
	// -2.0 little-endian
	if b[7] != 0xc0 || b[6] != 0x00 {
		t.Errorf("unexpected encoding % x", b[4:])
	}
}

func TestVectorBlob(t *testing.T) {
	v := []float32{0.5, 3, -1}
	if got, want := VectorBlob(v), string(VectorToBytes(v)); got != want {
		t.Errorf("blob % x, want % x", got, want)
	}
	if VectorBlob(nil) != "" {
		t.Error("expected empty blob for nil vector")
	}
}
