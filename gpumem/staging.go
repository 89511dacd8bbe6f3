package gpumem

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tuvok/tuvok/cache"
	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

// staging is the CPU-side layout of a brick before upload.
type staging struct {
	counts tuvok.Vec3 // voxels read from the dataset
	padded tuvok.Vec3 // voxels in the texture
	inType tuvok.DataType
	desc   gpu.TextureDesc
}

// bytes is the CPU memory the staged brick needs.
func (s staging) bytes() uint64 {
	return s.desc.Bytes()
}

func downsamples(t tuvok.DataType, flags VolumeFlags) bool {
	return flags.DownsampleTo8Bit && t == tuvok.T_uint16
}

func planStaging(ds dataset.Dataset, key tuvok.BrickKey, flags VolumeFlags) (staging, error) {
	var s staging
	t, err := dataset.DataType(ds)
	if err != nil {
		return s, fmt.Errorf("dataset %q: %w", ds.Name(), err)
	}
	if s.counts, err = ds.GetBrickVoxelCounts(key); err != nil {
		return s, err
	}
	s.inType = t
	s.padded = s.counts
	if flags.PowerOfTwo {
		s.padded = s.counts.NextPowerOfTwo()
	}
	outType := t
	if downsamples(t, flags) {
		outType = tuvok.T_uint8
	}
	s.desc = gpu.TextureDesc{
		Dims:       3,
		Size:       s.padded,
		Type:       outType,
		Components: ds.GetComponentCount(),
	}
	if flags.Emulate3DWith2DStacks {
		s.desc.Dims = 2
		s.desc.Size = tuvok.Vec3{s.padded[0], s.padded[1] * s.padded[2], 1}
	}
	if err := s.desc.Validate(); err != nil {
		return s, fmt.Errorf("brick %s of %q: %w", key, ds.Name(), err)
	}
	return s, nil
}

// brickData returns the raw voxels of a brick from the brick cache, reading and
// caching them on a miss.  The returned buffer must not be modified.
func brickData(bc *cache.BrickCache, id cache.DatasetID, ds dataset.Dataset, key tuvok.BrickKey) ([]byte, error) {
	ck := cache.Key{Dataset: id, Brick: key}
	if bc != nil {
		if data, found := bc.Lookup(ck); found {
			return data, nil
		}
	}
	data, err := ds.GetBrick(key, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to read brick %s of %q: %w", key, ds.Name(), err)
	}
	if bc != nil {
		bc.Add(ck, data)
	}
	return data, nil
}

// stage builds the texture contents of a brick.  Each voxel is components
// interleaved values.  The result may share raw, which contexts only read.
func stage(s staging, raw []byte, ds dataset.Dataset, flags VolumeFlags) ([]byte, error) {
	comps := uint64(s.desc.Components)
	want := s.counts.Volume() * uint64(s.inType.Bytes()) * comps
	if uint64(len(raw)) != want {
		return nil, fmt.Errorf("brick of %s voxels has %d bytes, expected %d", s.counts, len(raw), want)
	}
	src := raw
	if downsamples(s.inType, flags) {
		_, max := ds.GetRange()
		src = downsample16(raw, max)
	}
	if s.padded == s.counts {
		return src, nil
	}
	return pad(src, s.counts, s.padded, uint64(s.desc.Type.Bytes())*comps, flags.DisableBorder), nil
}

// downsample16 rescales little-endian uint16 values into 8 bits using the
// dataset maximum.
func downsample16(raw []byte, max float64) []byte {
	if max <= 0 || max > math.MaxUint16 {
		max = math.MaxUint16
	}
	scale := 255 / max
	out := make([]byte, len(raw)/2)
	for i := range out {
		v := float64(binary.LittleEndian.Uint16(raw[2*i:])) * scale
		out[i] = uint8(math.Min(255, v))
	}
	return out
}

// pad grows a brick from counts to padded voxels.  Padding replicates the last
// voxel along each grown axis, or is zero if zero is set.
func pad(src []byte, counts, padded tuvok.Vec3, elem uint64, zero bool) []byte {
	dst := make([]byte, padded.Volume()*elem)
	rowIn := counts[0] * elem
	rowOut := padded[0] * elem
	for z := uint64(0); z < padded[2]; z++ {
		sz := z
		if sz >= counts[2] {
			if zero {
				break
			}
			sz = counts[2] - 1
		}
		for y := uint64(0); y < padded[1]; y++ {
			sy := y
			if sy >= counts[1] {
				if zero {
					break
				}
				sy = counts[1] - 1
			}
			out := dst[(z*padded[1]+y)*rowOut : (z*padded[1]+y+1)*rowOut]
			in := src[(sz*counts[1]+sy)*rowIn : (sz*counts[1]+sy+1)*rowIn]
			copy(out, in)
			if !zero {
				last := in[rowIn-elem:]
				for x := rowIn; x < rowOut; x += elem {
					copy(out[x:x+elem], last)
				}
			}
		}
	}
	return dst
}
