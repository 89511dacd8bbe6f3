package quantize

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/tuvok/tuvok/tuvok"
)

func TestBinCap(t *testing.T) {
	if c := BinCap(Target8); c != 256 {
		t.Errorf("expected 8-bit cap 256, got %d", c)
	}
	if c := BinCap(Target12); c != 4096 {
		t.Errorf("expected 12-bit cap 4096, got %d", c)
	}
}

func palette(n int, scale uint32) []uint32 {
	vals := make([]uint32, 0, 2*n)
	for i := n - 1; i >= 0; i-- {
		vals = append(vals, uint32(i)*scale+100000)
	}
	for i := 0; i < n; i++ {
		vals = append(vals, uint32(i)*scale+100000)
	}
	return vals
}

func TestBinningAtCap(t *testing.T) {
	tests := []struct {
		target Target
		n      int
	}{
		{Target8, 256},
		{Target12, 4096},
	}
	for _, tc := range tests {
		vals := palette(tc.n, 1000)
		var out bytes.Buffer
		res, err := BinningQuantize(NewBytesSource(encode(t, vals), tuvok.T_uint32), tuvok.T_uint32, tc.target, &out,
			Options{InCoreBytes: 512})
		if err != nil {
			t.Fatalf("%s: %v", tc.target, err)
		}
		if !res.Binned {
			t.Fatalf("%s: expected %d distinct values to be binned", tc.target, tc.n)
		}
		if len(res.BinValues) != tc.n {
			t.Fatalf("%s: expected %d bins, got %d", tc.target, tc.n, len(res.BinValues))
		}
		bins := make([]uint16, len(vals))
		if tc.target == Target8 {
			for i, b := range out.Bytes() {
				bins[i] = uint16(b)
			}
		} else if err := binary.Read(&out, binary.LittleEndian, bins); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for i, v := range vals {
			if res.BinValues[bins[i]] != float64(v) {
				t.Fatalf("%s: element %d value %d came back as %g", tc.target, i, v, res.BinValues[bins[i]])
			}
		}
		if bins[len(vals)-1] != uint16(tc.n-1) || bins[tc.n-1] != 0 {
			t.Errorf("%s: expected bins in ascending value order", tc.target)
		}
		if sum(res.Histogram) != uint64(len(vals)) {
			t.Errorf("%s: histogram sum %d != %d", tc.target, sum(res.Histogram), len(vals))
		}
	}
}

func TestBinningOverCapFallsBack(t *testing.T) {
	vals := palette(257, 1000)
	var out bytes.Buffer
	res, err := BinningQuantize(NewBytesSource(encode(t, vals), tuvok.T_uint32), tuvok.T_uint32, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("binning: %v", err)
	}
	if res.Binned || res.BinValues != nil {
		t.Errorf("expected fallback to rescaling past 256 distinct values")
	}
	if !res.Rewritten || out.Len() != len(vals) {
		t.Errorf("expected a rescaled 8-bit stream of %d bytes, got %d", len(vals), out.Len())
	}
	if res.Range.UMin != 100000 || res.Range.UMax != 356000 {
		t.Errorf("bad fallback range %s", res.Range)
	}
	if sum(res.Histogram) != uint64(len(vals)) {
		t.Errorf("histogram sum %d != %d", sum(res.Histogram), len(vals))
	}
}

func TestBinningSignedFloat(t *testing.T) {
	vals := []float64{-2.5, 1e9, -2.5, 3.25}
	var out bytes.Buffer
	res, err := BinningQuantize(NewBytesSource(encode(t, vals), tuvok.T_float64), tuvok.T_float64, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("binning: %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte{0, 2, 0, 1}) {
		t.Errorf("expected bins [0 2 0 1], got %v", out.Bytes())
	}
	if res.Range.FMin != -2.5 || res.Range.FMax != 1e9 {
		t.Errorf("bad range %s", res.Range)
	}
}

func TestBinningCountsNaN(t *testing.T) {
	vals := []float32{1, float32(math.NaN()), 2}
	var out bytes.Buffer
	res, err := BinningQuantize(NewBytesSource(encode(t, vals), tuvok.T_float32), tuvok.T_float32, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("binning: %v", err)
	}
	if !res.Binned {
		t.Fatalf("expected binned result")
	}
	if !bytes.Equal(out.Bytes(), []byte{0, 0, 1}) {
		t.Errorf("expected NaN in bin 0, got %v", out.Bytes())
	}
	if n := sum(res.Histogram); n != 3 || res.Histogram[0] != 2 || res.Histogram[1] != 1 {
		t.Errorf("expected histogram [2 1] summing to 3, got sum %d from %v", n, res.Histogram[:2])
	}

	// The rescaling path agrees on the count.
	out.Reset()
	res, err = Quantize(NewBytesSource(encode(t, vals), tuvok.T_float32), tuvok.T_float32, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if n := sum(res.Histogram); n != 3 {
		t.Errorf("expected rescaled histogram to sum to 3, got %d", n)
	}
	if out.Len() != 3 || out.Bytes()[1] != 0 {
		t.Errorf("expected NaN written as 0, got %v", out.Bytes())
	}
}
