package quantize

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/tuvok/tuvok/tuvok"
)

// MaxBins is the largest number of distinct values BinningQuantize remaps.
const MaxBins = 4096

// BinCap returns the number of distinct values that can be remapped into target.
func BinCap(target Target) uint64 {
	bits := uint64(8 * target.Bytes())
	if bits >= 64 {
		return MaxBins
	}
	if c := uint64(1) << bits; c < MaxBins {
		return c
	}
	return MaxBins
}

// BinningQuantize remaps every distinct value of src to a dense bin index in
// ascending value order if there are at most BinCap(target) distinct values.
// Otherwise it falls back to Quantize.  Result.BinValues maps each bin back to
// its source value.
func BinningQuantize(src Source, t tuvok.DataType, target Target, w io.Writer, opts Options) (Result, error) {
	p, err := PolicyFor(t)
	if err != nil {
		return Result{}, err
	}
	if _, err := TargetFor(uint(target)); err != nil {
		return Result{}, err
	}
	switch t {
	case tuvok.T_uint8:
		return binQuantize[uint8](src, p, target, w, opts)
	case tuvok.T_int8:
		return binQuantize[int8](src, p, target, w, opts)
	case tuvok.T_uint16:
		return binQuantize[uint16](src, p, target, w, opts)
	case tuvok.T_int16:
		return binQuantize[int16](src, p, target, w, opts)
	case tuvok.T_uint32:
		return binQuantize[uint32](src, p, target, w, opts)
	case tuvok.T_int32:
		return binQuantize[int32](src, p, target, w, opts)
	case tuvok.T_uint64:
		return binQuantize[uint64](src, p, target, w, opts)
	case tuvok.T_int64:
		return binQuantize[int64](src, p, target, w, opts)
	case tuvok.T_float32:
		return binQuantize[float32](src, p, target, w, opts)
	default:
		return binQuantize[float64](src, p, target, w, opts)
	}
}

func binQuantize[T number](src Source, p Policy, target Target, w io.Writer, opts Options) (Result, error) {
	limit := BinCap(target)
	counts := make(map[T]uint64)
	lowest, highest := limits[T]()
	gmin, gmax := highest, lowest

	want := src.Size()
	cr := newChunkReader[T](src, p.Bytes, opts.InCoreBytes, want)
	var read, nans uint64
	overflow := false
	for !overflow {
		vals, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("binning scan of %s data failed after %d elements: %w", p.Type, read, err)
		}
		read += uint64(len(vals))
		for _, v := range vals {
			if v != v { // NaN shares bin 0
				nans++
				continue
			}
			counts[v]++
			if uint64(len(counts)) > limit {
				overflow = true
				break
			}
			if v < gmin {
				gmin = v
			}
			if v > gmax {
				gmax = v
			}
		}
	}
	if err := src.Rewind(); err != nil {
		return Result{}, err
	}
	if overflow {
		tuvok.Debugf("More than %d distinct %s values, rescaling instead of binning.\n", limit, p.Type)
		return quantize[T](src, p, target, w, opts)
	}
	if read != want {
		tuvok.Warningf("Source declared %d %s elements but only %d could be read; using %d.\n",
			want, p.Type, read, read)
	}

	values := make([]T, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	bins := make(map[T]uint16, len(values))
	binValues := make([]float64, len(values))
	hist := make([]uint64, target.HistogramSize())
	for i, v := range values {
		bins[v] = uint16(i)
		binValues[i] = float64(v)
		hist[i] = counts[v]
	}
	hist[0] += nans

	bw := bufio.NewWriter(w)
	cr = newChunkReader[T](src, p.Bytes, opts.InCoreBytes, read)
	out := make([]byte, len(cr.vals)*target.Bytes())
	for {
		vals, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("binning pass of %s data failed: %w", p.Type, err)
		}
		for i, v := range vals {
			bin := bins[v] // 0 for NaN
			if target == Target8 {
				out[i] = uint8(bin)
			} else {
				binary.LittleEndian.PutUint16(out[2*i:], bin)
			}
		}
		if _, err := bw.Write(out[:len(vals)*target.Bytes()]); err != nil {
			return Result{}, fmt.Errorf("unable to write binned data: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return Result{}, fmt.Errorf("unable to write binned data: %w", err)
	}

	res := Result{
		Rewritten:    true,
		ElementsRead: read,
		Histogram:    hist,
		Binned:       true,
		BinValues:    binValues,
	}
	if len(values) > 0 {
		res.Range = makeRange(p.Kind, gmin, gmax)
	} else {
		res.Range = makeRange(p.Kind, highest, lowest)
	}
	return res, nil
}
