package quantize

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/tuvok/tuvok/tuvok"
)

func sum(hist []uint64) (total uint64) {
	for _, c := range hist {
		total += c
	}
	return
}

func TestQuantizeAlreadyFits(t *testing.T) {
	vals := []uint8{0, 3, 3, 200, 17}
	var out bytes.Buffer
	res, err := Quantize(NewBytesSource(vals, tuvok.T_uint8), tuvok.T_uint8, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if res.Rewritten || out.Len() != 0 {
		t.Errorf("expected fitting data to be left alone, rewritten %t, wrote %d bytes", res.Rewritten, out.Len())
	}
	if len(res.Histogram) != 201 {
		t.Errorf("expected histogram resized to max+1 = 201, got %d", len(res.Histogram))
	}
	if res.Histogram[3] != 2 || res.Histogram[200] != 1 || sum(res.Histogram) != 5 {
		t.Errorf("bad per-value counts in histogram")
	}

	// 16-bit data below 4096 already fits 12 bits
	wide := encode(t, []uint16{0, 4095, 12})
	out.Reset()
	res, err = Quantize(NewBytesSource(wide, tuvok.T_uint16), tuvok.T_uint16, Target12, &out, Options{})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if res.Rewritten || len(res.Histogram) != 4096 {
		t.Errorf("expected 12-bit fitting data to be left alone with 4096 buckets, got %t/%d",
			res.Rewritten, len(res.Histogram))
	}
}

func TestQuantizeIntegerRescale(t *testing.T) {
	vals := make([]int32, 5000)
	for i := range vals {
		vals[i] = int32(i*97%100001) - 50000
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	var out bytes.Buffer
	res, err := Quantize(NewBytesSource(encode(t, vals), tuvok.T_int32), tuvok.T_int32, Target12, &out,
		Options{InCoreBytes: 1000})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if !res.Rewritten {
		t.Fatalf("expected wide data to be rewritten")
	}
	if res.Range.IMin != int64(lo) || res.Range.IMax != int64(hi) {
		t.Errorf("expected range [%d, %d], got %s", lo, hi, res.Range)
	}
	got := make([]uint16, len(vals))
	if err := binary.Read(&out, binary.LittleEndian, got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	factor := math.Min(1, 4095/float64(hi-lo))
	for i, v := range vals {
		want := uint16(math.Min(4095, math.Floor(float64(v-lo)*factor)))
		if got[i] != want {
			t.Fatalf("element %d (%d): expected %d, got %d", i, v, want, got[i])
		}
	}
	if sum(res.Histogram) != uint64(len(vals)) {
		t.Errorf("histogram sum %d != %d", sum(res.Histogram), len(vals))
	}
}

func TestQuantizeIntegerNeverStretches(t *testing.T) {
	vals := []uint16{1000, 1001, 1010}
	var out bytes.Buffer
	res, err := Quantize(NewBytesSource(encode(t, vals), tuvok.T_uint16), tuvok.T_uint16, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if !res.Rewritten {
		t.Fatalf("expected rewrite of 16-bit data to 8 bits")
	}
	want := []byte{0, 1, 10}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("expected offsets %v with factor 1, got %v", want, out.Bytes())
	}
}

func TestQuantizeFloatStretches(t *testing.T) {
	vals := []float32{0.5, 0.75, 1.0, 0.5}
	var out bytes.Buffer
	res, err := Quantize(NewBytesSource(encode(t, vals), tuvok.T_float32), tuvok.T_float32, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	want := []byte{0, 127, 255, 0}
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("expected float range stretched to %v, got %v", want, out.Bytes())
	}
	if res.Range.FMin != 0.5 || res.Range.FMax != 1.0 {
		t.Errorf("bad float range %s", res.Range)
	}
	if sum(res.Histogram) != 4 || res.Histogram[0] != 2 || res.Histogram[255] != 1 {
		t.Errorf("bad float histogram")
	}
}

func TestQuantizeConstantAndEmpty(t *testing.T) {
	vals := []int64{-7, -7, -7}
	var out bytes.Buffer
	res, err := Quantize(NewBytesSource(encode(t, vals), tuvok.T_int64), tuvok.T_int64, Target8, &out, Options{})
	if err != nil {
		t.Fatalf("quantize: %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte{0, 0, 0}) || res.Histogram[0] != 3 {
		t.Errorf("expected constant data to map to zero, got %v", out.Bytes())
	}

	out.Reset()
	res, err = Quantize(NewBytesSource(nil, tuvok.T_float64), tuvok.T_float64, Target12, &out, Options{})
	if err != nil {
		t.Fatalf("quantize empty: %v", err)
	}
	if res.ElementsRead != 0 || out.Len() != 0 || sum(res.Histogram) != 0 {
		t.Errorf("expected nothing from an empty source")
	}
}

func TestQuantizeBadTarget(t *testing.T) {
	if _, err := Quantize(NewBytesSource(nil, tuvok.T_uint8), tuvok.T_uint8, Target(16), &bytes.Buffer{}, Options{}); err == nil {
		t.Errorf("expected error for 16-bit target")
	}
	if _, err := TargetFor(10); err == nil {
		t.Errorf("expected error for 10-bit target")
	}
}
