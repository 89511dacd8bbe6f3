package quantize

import (
	"fmt"
	"io"

	"github.com/tuvok/tuvok/tuvok"
)

// ScanResult is the outcome of a single pass over a source.
type ScanResult struct {
	Range Range

	// Histogram holds per-value counts when every value fit into the requested
	// number of buckets.  It is nil when HistogramValid is false.
	Histogram      []uint64
	HistogramValid bool

	// ElementsRead is the number of elements actually read, which may be smaller
	// than the size the source declared.
	ElementsRead uint64
}

// Scan finds the minimum and maximum of all elements in src using at most
// inCoreBytes of working buffer.  If histSize > 0, values are also binned by
// value (signed integers biased by the magnitude of their type's minimum) until
// the first value that does not fit in histSize buckets; from then on the
// histogram is abandoned for the pass.  Floating point data is never binned.
// The caller must Rewind src before a further pass.
func Scan(src Source, t tuvok.DataType, inCoreBytes uint64, histSize int) (ScanResult, error) {
	p, err := PolicyFor(t)
	if err != nil {
		return ScanResult{}, err
	}
	switch t {
	case tuvok.T_uint8:
		return scan[uint8](src, p, inCoreBytes, histSize)
	case tuvok.T_int8:
		return scan[int8](src, p, inCoreBytes, histSize)
	case tuvok.T_uint16:
		return scan[uint16](src, p, inCoreBytes, histSize)
	case tuvok.T_int16:
		return scan[int16](src, p, inCoreBytes, histSize)
	case tuvok.T_uint32:
		return scan[uint32](src, p, inCoreBytes, histSize)
	case tuvok.T_int32:
		return scan[int32](src, p, inCoreBytes, histSize)
	case tuvok.T_uint64:
		return scan[uint64](src, p, inCoreBytes, histSize)
	case tuvok.T_int64:
		return scan[int64](src, p, inCoreBytes, histSize)
	case tuvok.T_float32:
		return scan[float32](src, p, inCoreBytes, histSize)
	default:
		return scan[float64](src, p, inCoreBytes, histSize)
	}
}

func scan[T number](src Source, p Policy, inCoreBytes uint64, histSize int) (ScanResult, error) {
	lowest, highest := limits[T]()
	gmin, gmax := highest, lowest

	binning := histSize > 0 && p.Kind != Float
	var hist []uint64
	if binning {
		hist = make([]uint64, histSize)
	}

	want := src.Size()
	cr := newChunkReader[T](src, p.Bytes, inCoreBytes, want)
	var read uint64
	for {
		vals, err := cr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ScanResult{}, fmt.Errorf("scan of %s data failed after %d elements: %w", p.Type, read, err)
		}
		read += uint64(len(vals))

		cmin, cmax := highest, lowest
		for _, v := range vals {
			if v < cmin {
				cmin = v
			}
			if v > cmax {
				cmax = v
			}
		}
		if cmin < gmin {
			gmin = cmin
		}
		if cmax > gmax {
			gmax = cmax
		}

		if binning {
			for _, v := range vals {
				idx, ok := binIndex(p, v, histSize)
				if !ok {
					binning = false
					hist = nil
					break
				}
				hist[idx]++
			}
		}
	}
	if read != want {
		tuvok.Warningf("Source declared %d %s elements but only %d could be read; using %d.\n",
			want, p.Type, read, read)
	}
	return ScanResult{
		Range:          makeRange(p.Kind, gmin, gmax),
		Histogram:      hist,
		HistogramValid: binning,
		ElementsRead:   read,
	}, nil
}
