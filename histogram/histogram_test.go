package histogram

import (
	"encoding/binary"
	"testing"

	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/tuvok"
)

func TestCompress(t *testing.T) {
	tests := []struct {
		size, max int
		want      int
	}{
		{4096, 256, 256},
		{4096, 4096, 4096},
		{1000, 256, 250},
		{10, 3, 3},
		{10, 0, 10},
	}
	for _, tc := range tests {
		counts := make([]uint64, tc.size)
		for i := range counts {
			counts[i] = uint64(i % 7)
		}
		h := New(0)
		h.SetHistogram(counts)
		before := h.Sum()
		h.Compress(tc.max)
		if h.Len() != tc.want {
			t.Errorf("%d -> max %d: expected %d buckets, got %d", tc.size, tc.max, tc.want, h.Len())
		}
		if h.Sum() != before {
			t.Errorf("%d -> max %d: sum changed from %d to %d", tc.size, tc.max, before, h.Sum())
		}
	}

	h := New(0)
	h.SetHistogram([]uint64{1, 2, 3, 4, 5})
	h.Compress(2)
	if got := h.GetHistogram(); len(got) != 2 || got[0] != 6 || got[1] != 9 {
		t.Errorf("expected [6 9], got %v", got)
	}
}

func TestSetHistogramCopies(t *testing.T) {
	counts := []uint64{1, 2, 3}
	h := New(0)
	h.SetHistogram(counts)
	counts[0] = 99
	if h.Get(0) != 1 {
		t.Errorf("histogram aliases caller slice")
	}
	if h.FilledSize() != 3 {
		t.Errorf("expected filled size 3, got %d", h.FilledSize())
	}
}

func TestComputeFromDataset(t *testing.T) {
	domain := tuvok.Vec3{6, 5, 4}
	data := make([]byte, 2*domain.Volume())
	for i := uint64(0); i < domain.Volume(); i++ {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(i%300))
	}
	ds, err := dataset.NewMemory("h", tuvok.T_uint16, 1, domain, tuvok.Vec3{4, 4, 4}, data)
	if err != nil {
		t.Fatal(err)
	}
	h, err := ComputeFromDataset(ds, 4096)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if h.Sum() != domain.Volume() {
		t.Errorf("expected %d voxels counted, got %d", domain.Volume(), h.Sum())
	}
	if h.Len() != 120 {
		t.Errorf("expected histogram trimmed to max value + 1 = 120, got %d", h.Len())
	}

	fds, err := dataset.NewMemory("f", tuvok.T_float32, 1, tuvok.Vec3{1, 1, 1}, tuvok.Vec3{1, 1, 1}, make([]byte, 4))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ComputeFromDataset(fds, 256); err == nil {
		t.Errorf("expected float dataset to be rejected")
	}
}

func TestMarshal(t *testing.T) {
	h := New(0)
	h.SetHistogram([]uint64{0, 1 << 40, 7, 0})
	b, err := h.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got Histogram1D
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Len() != 4 || got.Get(1) != 1<<40 || got.Get(2) != 7 {
		t.Errorf("bad histogram after unmarshal: %v", got.GetHistogram())
	}
	b[len(b)-1] ^= 0xff
	if err := got.UnmarshalBinary(b); err == nil {
		t.Errorf("expected checksum failure on corrupted data")
	}
}
