package quantize

import (
	"fmt"
	"math"

	"github.com/tuvok/tuvok/tuvok"
)

// Kind classifies how values of an element type are compared and offset.
type Kind uint8

const (
	Unsigned Kind = iota
	Signed
	Float
)

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	case Float:
		return "float"
	}
	return "unknown"
}

// Policy holds the numeric rules for one element type.
type Policy struct {
	Type  tuvok.DataType
	Bytes int
	Kind  Kind

	// ClampFactor limits the rescale factor to 1 so integer data is only ever
	// compressed into the target range, never stretched.
	ClampFactor bool

	// Bias is added to signed integer values to get a non-negative histogram index.
	Bias uint64
}

// PolicyFor returns the numeric policy of the given element type.
func PolicyFor(t tuvok.DataType) (Policy, error) {
	if !t.Valid() {
		return Policy{}, fmt.Errorf("no quantization policy for %s", t)
	}
	p := Policy{
		Type:        t,
		Bytes:       t.Bytes(),
		ClampFactor: !t.IsFloat(),
	}
	switch {
	case t.IsFloat():
		p.Kind = Float
	case t.IsSigned():
		p.Kind = Signed
		p.Bias = uint64(1) << (t.BitWidth() - 1)
	default:
		p.Kind = Unsigned
	}
	return p, nil
}

// number is the closed set of element types the generic passes are instantiated for.
type number interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | uint64 | int64 | float32 | float64
}

// limits returns the most negative (zero for unsigned) and the largest value of T.
func limits[T number]() (lowest, highest T) {
	var z T
	switch any(z).(type) {
	case uint8:
		return any(uint8(0)).(T), any(uint8(math.MaxUint8)).(T)
	case int8:
		return any(int8(math.MinInt8)).(T), any(int8(math.MaxInt8)).(T)
	case uint16:
		return any(uint16(0)).(T), any(uint16(math.MaxUint16)).(T)
	case int16:
		return any(int16(math.MinInt16)).(T), any(int16(math.MaxInt16)).(T)
	case uint32:
		return any(uint32(0)).(T), any(uint32(math.MaxUint32)).(T)
	case int32:
		return any(int32(math.MinInt32)).(T), any(int32(math.MaxInt32)).(T)
	case uint64:
		return any(uint64(0)).(T), any(uint64(math.MaxUint64)).(T)
	case int64:
		return any(int64(math.MinInt64)).(T), any(int64(math.MaxInt64)).(T)
	case float32:
		return any(float32(-math.MaxFloat32)).(T), any(float32(math.MaxFloat32)).(T)
	default:
		return any(float64(-math.MaxFloat64)).(T), any(float64(math.MaxFloat64)).(T)
	}
}

// offset returns v - lo as a float64 without intermediate overflow for 64-bit integers.
// v must not be smaller than lo.
func offset[T number](k Kind, v, lo T) float64 {
	switch k {
	case Unsigned:
		return float64(uint64(v) - uint64(lo))
	case Signed:
		return float64(uint64(int64(v)) - uint64(int64(lo)))
	default:
		d := float64(v) - float64(lo)
		if d != d { // NaN
			return 0
		}
		return d
	}
}

// binIndex returns the histogram bucket of v when binning by value, or false if
// the biased value does not fit into histSize buckets.
func binIndex[T number](p Policy, v T, histSize int) (int, bool) {
	var u uint64
	switch p.Kind {
	case Unsigned:
		u = uint64(v)
	case Signed:
		u = uint64(int64(v)) + p.Bias
	default:
		return 0, false
	}
	if u >= uint64(histSize) {
		return 0, false
	}
	return int(u), true
}

// Range is a discovered (min, max) pair kept in the representation natural to the
// element type so 64-bit integers stay exact.
type Range struct {
	Kind       Kind
	UMin, UMax uint64
	IMin, IMax int64
	FMin, FMax float64
}

func makeRange[T number](k Kind, lo, hi T) Range {
	switch k {
	case Unsigned:
		return Range{Kind: Unsigned, UMin: uint64(lo), UMax: uint64(hi)}
	case Signed:
		return Range{Kind: Signed, IMin: int64(lo), IMax: int64(hi)}
	default:
		return Range{Kind: Float, FMin: float64(lo), FMax: float64(hi)}
	}
}

// Min returns the minimum as a float64.
func (r Range) Min() float64 {
	switch r.Kind {
	case Unsigned:
		return float64(r.UMin)
	case Signed:
		return float64(r.IMin)
	}
	return r.FMin
}

// Max returns the maximum as a float64.
func (r Range) Max() float64 {
	switch r.Kind {
	case Unsigned:
		return float64(r.UMax)
	case Signed:
		return float64(r.IMax)
	}
	return r.FMax
}

func (r Range) String() string {
	switch r.Kind {
	case Unsigned:
		return fmt.Sprintf("[%d, %d]", r.UMin, r.UMax)
	case Signed:
		return fmt.Sprintf("[%d, %d]", r.IMin, r.IMax)
	}
	return fmt.Sprintf("[%g, %g]", r.FMin, r.FMax)
}
