package quantize

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/tuvok/tuvok/tuvok"
)

// Target is the bit depth quantized data is reduced to.
type Target uint8

const (
	// Target8 writes uint8 values and uses a 256 bucket histogram.
	Target8 Target = 8

	// Target12 writes uint16 values holding 12 bits and uses a 4096 bucket histogram.
	Target12 Target = 12
)

// TargetFor returns the Target for 8 or 12 bits.
func TargetFor(bits uint) (Target, error) {
	switch bits {
	case 8:
		return Target8, nil
	case 12:
		return Target12, nil
	}
	return 0, fmt.Errorf("quantization to %d bits is not supported, only 8 or 12", bits)
}

// HistogramSize returns the number of histogram buckets for the target.
func (t Target) HistogramSize() int {
	return 1 << uint(t)
}

// MaxValue returns the largest value written for the target.
func (t Target) MaxValue() uint64 {
	return uint64(1)<<uint(t) - 1
}

// Bytes returns the width of each output value.
func (t Target) Bytes() int {
	if t == Target8 {
		return 1
	}
	return 2
}

// DataType returns the element type of the output stream.
func (t Target) DataType() tuvok.DataType {
	if t == Target8 {
		return tuvok.T_uint8
	}
	return tuvok.T_uint16
}

func (t Target) String() string {
	return fmt.Sprintf("%d-bit", uint8(t))
}

// Options tune the quantization passes.
type Options struct {
	// InCoreBytes bounds the working buffer of each pass.
	InCoreBytes uint64
}

// Result describes a quantization.
type Result struct {
	// Rewritten is false if the source already fit the target and nothing was written.
	Rewritten bool

	// Range is the value range of the source.
	Range Range

	// Histogram of the output values.  If nothing was rewritten it has Range max + 1
	// entries, otherwise the target's histogram size.
	Histogram []uint64

	// ElementsRead is the number of source elements processed.
	ElementsRead uint64

	// Binned is true if values were remapped through a value -> bin bijection, in
	// which case BinValues[i] is the source value written as i.
	Binned    bool
	BinValues []float64
}

// Quantize rescales every element of src into the target bit depth and writes the
// result to w.  If the source is unsigned, already fits into the target's histogram
// and is no wider than the target, nothing is written and Result.Rewritten is false;
// the histogram is still returned.  src is rewound before the second pass.
func Quantize(src Source, t tuvok.DataType, target Target, w io.Writer, opts Options) (Result, error) {
	p, err := PolicyFor(t)
	if err != nil {
		return Result{}, err
	}
	if _, err := TargetFor(uint(target)); err != nil {
		return Result{}, err
	}
	switch t {
	case tuvok.T_uint8:
		return quantize[uint8](src, p, target, w, opts)
	case tuvok.T_int8:
		return quantize[int8](src, p, target, w, opts)
	case tuvok.T_uint16:
		return quantize[uint16](src, p, target, w, opts)
	case tuvok.T_int16:
		return quantize[int16](src, p, target, w, opts)
	case tuvok.T_uint32:
		return quantize[uint32](src, p, target, w, opts)
	case tuvok.T_int32:
		return quantize[int32](src, p, target, w, opts)
	case tuvok.T_uint64:
		return quantize[uint64](src, p, target, w, opts)
	case tuvok.T_int64:
		return quantize[int64](src, p, target, w, opts)
	case tuvok.T_float32:
		return quantize[float32](src, p, target, w, opts)
	default:
		return quantize[float64](src, p, target, w, opts)
	}
}

// Factors returns the output and histogram scale factors for data spanning span.
// Integer policies never stretch data, so their factors are clamped to 1.
func Factors(p Policy, target Target, span float64) (factor, histFactor float64) {
	if span <= 0 {
		return 1, 1
	}
	factor = float64(target.MaxValue()) / span
	histFactor = float64(target.HistogramSize()-1) / span
	if p.ClampFactor {
		factor = math.Min(factor, 1)
		histFactor = math.Min(histFactor, 1)
	}
	return
}

func quantize[T number](src Source, p Policy, target Target, w io.Writer, opts Options) (Result, error) {
	histSize := target.HistogramSize()
	scanned, err := scan[T](src, p, opts.InCoreBytes, histSize)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Range:        scanned.Range,
		ElementsRead: scanned.ElementsRead,
	}

	if p.Kind == Unsigned && scanned.Range.UMax < uint64(histSize) && p.Bytes <= target.Bytes() {
		// every value was binned by the scan pass
		res.Histogram = scanned.Histogram[:scanned.Range.UMax+1]
		return res, nil
	}

	if err := src.Rewind(); err != nil {
		return Result{}, err
	}
	lo, hi := typedRange[T](scanned.Range)
	var span float64
	if scanned.ElementsRead > 0 {
		span = offset(p.Kind, hi, lo)
	}
	factor, histFactor := Factors(p, target, span)
	maxOut := float64(target.MaxValue())
	maxBin := float64(histSize - 1)

	hist := make([]uint64, histSize)
	bw := bufio.NewWriter(w)
	cr := newChunkReader[T](src, p.Bytes, opts.InCoreBytes, scanned.ElementsRead)
	out := make([]byte, len(cr.vals)*target.Bytes())
	var written uint64
	for {
		vals, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("quantization pass failed after %d elements: %w", written, err)
		}
		for i, v := range vals {
			d := offset(p.Kind, v, lo)
			scaled := math.Min(maxOut, math.Floor(d*factor))
			bin := math.Min(maxBin, math.Floor(d*histFactor))
			hist[int(bin)]++
			if target == Target8 {
				out[i] = uint8(scaled)
			} else {
				binary.LittleEndian.PutUint16(out[2*i:], uint16(scaled))
			}
		}
		if _, err := bw.Write(out[:len(vals)*target.Bytes()]); err != nil {
			return Result{}, fmt.Errorf("unable to write quantized data: %w", err)
		}
		written += uint64(len(vals))
	}
	if err := bw.Flush(); err != nil {
		return Result{}, fmt.Errorf("unable to write quantized data: %w", err)
	}
	if written != scanned.ElementsRead {
		tuvok.Warningf("Quantization pass read %d elements, range pass read %d.\n", written, scanned.ElementsRead)
	}
	res.Rewritten = true
	res.Histogram = hist
	return res, nil
}

// typedRange converts r back into T.
func typedRange[T number](r Range) (lo, hi T) {
	switch r.Kind {
	case Unsigned:
		return T(r.UMin), T(r.UMax)
	case Signed:
		return T(r.IMin), T(r.IMax)
	}
	return T(r.FMin), T(r.FMax)
}
