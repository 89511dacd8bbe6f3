/*
	Package histogram holds 1D value histograms used for transfer function design
	and dataset statistics.
*/
package histogram

import (
	"encoding/binary"
	"fmt"

	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/tuvok"
)

// Histogram1D is an ordered list of bucket counts.
type Histogram1D struct {
	bins []uint64
}

// New returns an empty histogram with the given number of buckets.
func New(size int) *Histogram1D {
	return &Histogram1D{bins: make([]uint64, size)}
}

// SetHistogram replaces all buckets with a copy of counts.
func (h *Histogram1D) SetHistogram(counts []uint64) {
	h.bins = append(h.bins[:0:0], counts...)
}

// GetHistogram returns the bucket counts.  The slice must not be modified.
func (h *Histogram1D) GetHistogram() []uint64 {
	return h.bins
}

// Len returns the number of buckets.
func (h *Histogram1D) Len() int {
	return len(h.bins)
}

// Get returns the count of bucket i.
func (h *Histogram1D) Get(i int) uint64 {
	return h.bins[i]
}

// Sum returns the total of all bucket counts.
func (h *Histogram1D) Sum() uint64 {
	var total uint64
	for _, c := range h.bins {
		total += c
	}
	return total
}

// FilledSize returns the index of the last nonzero bucket plus one.
func (h *Histogram1D) FilledSize() int {
	for i := len(h.bins) - 1; i >= 0; i-- {
		if h.bins[i] != 0 {
			return i + 1
		}
	}
	return 0
}

// Compress merges adjacent buckets so at most maxTargetSize remain.  Buckets are
// merged by the integer factor ceil(Len / maxTargetSize), so the result may have
// fewer than maxTargetSize buckets.
func (h *Histogram1D) Compress(maxTargetSize int) {
	if maxTargetSize <= 0 || len(h.bins) <= maxTargetSize {
		return
	}
	factor := (len(h.bins) + maxTargetSize - 1) / maxTargetSize
	merged := make([]uint64, (len(h.bins)+factor-1)/factor)
	for i, c := range h.bins {
		merged[i/factor] += c
	}
	h.bins = merged
}

// ComputeFromDataset builds the histogram of the finest LOD of the first timestep
// of ds, one bucket per value, then compresses it to at most maxSize buckets.
// Only unsigned integer data of at most 16 bits is supported.
func ComputeFromDataset(ds dataset.Dataset, maxSize int) (*Histogram1D, error) {
	if ds.GetIsFloat() || ds.GetIsSigned() || ds.GetBitWidth() > 16 {
		return nil, fmt.Errorf("histogram of %q needs unsigned data of at most 16 bits, not %d bits (signed %t, float %t)",
			ds.Name(), ds.GetBitWidth(), ds.GetIsSigned(), ds.GetIsFloat())
	}
	bytesPer := int(ds.GetBitWidth() / 8)
	h := New(1 << ds.GetBitWidth())
	timedLog := tuvok.NewTimeLog()
	layout := ds.GetBrickLayout(0)
	var buf []byte
	var err error
	for i := uint64(0); i < layout.Volume(); i++ {
		key := tuvok.BrickKey{Index: i}
		if buf, err = ds.GetBrick(key, buf); err != nil {
			return nil, fmt.Errorf("histogram of %q: %w", ds.Name(), err)
		}
		if bytesPer == 1 {
			for _, v := range buf {
				h.bins[v]++
			}
			continue
		}
		for j := 0; j+1 < len(buf); j += 2 {
			h.bins[binary.LittleEndian.Uint16(buf[j:])]++
		}
	}
	if filled := h.FilledSize(); filled > 0 {
		h.bins = h.bins[:filled]
	}
	h.Compress(maxSize)
	timedLog.Debugf("Computed %d bucket histogram of %q", h.Len(), ds.Name())
	return h, nil
}

// MarshalBinary encodes the histogram as snappy-compressed little-endian counts.
func (h *Histogram1D) MarshalBinary() ([]byte, error) {
	raw := make([]byte, 8*len(h.bins))
	for i, c := range h.bins {
		binary.LittleEndian.PutUint64(raw[8*i:], c)
	}
	return tuvok.SerializeData(raw, tuvok.Snappy, tuvok.CRC32)
}

// UnmarshalBinary decodes a histogram written by MarshalBinary.
func (h *Histogram1D) UnmarshalBinary(b []byte) error {
	raw, _, err := tuvok.DeserializeData(b, true)
	if err != nil {
		return err
	}
	if len(raw)%8 != 0 {
		return fmt.Errorf("histogram data of %d bytes is not a whole number of counts", len(raw))
	}
	h.bins = make([]uint64, len(raw)/8)
	for i := range h.bins {
		h.bins[i] = binary.LittleEndian.Uint64(raw[8*i:])
	}
	return nil
}
