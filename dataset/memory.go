package dataset

import (
	"fmt"

	"github.com/tuvok/tuvok/quantize"
	"github.com/tuvok/tuvok/storage"
	"github.com/tuvok/tuvok/tuvok"
)

// Memory is a dataset held entirely in RAM.  Coarser LODs are built by taking
// every second voxel along each axis of the next finer level.
type Memory struct {
	bricking

	name       string
	t          tuvok.DataType
	components uint

	// levels[timestep][lod] is the whole volume of that level, x fastest.
	levels   [][][]byte
	min, max float64
}

// NewMemory returns a dataset over the given timesteps, each a flat little-endian
// array of domain.Volume() voxels with components interleaved.
func NewMemory(name string, t tuvok.DataType, components uint, domain, brickSize tuvok.Vec3, timesteps ...[]byte) (*Memory, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("dataset %q: bad data type %s", name, t)
	}
	if components == 0 {
		return nil, fmt.Errorf("dataset %q: must have at least one component", name)
	}
	if domain.Volume() == 0 || brickSize.Volume() == 0 {
		return nil, fmt.Errorf("dataset %q: domain %s and brick size %s must be nonzero", name, domain, brickSize)
	}
	if len(timesteps) == 0 {
		return nil, fmt.Errorf("dataset %q: no voxel data", name)
	}
	elem := uint64(t.Bytes()) * uint64(components)
	want := domain.Volume() * elem
	ds := &Memory{
		bricking: bricking{
			domain:    domain,
			brickSize: brickSize,
			lods:      storage.LODCountFor(domain, brickSize),
			timesteps: uint64(len(timesteps)),
		},
		name:       name,
		t:          t,
		components: components,
		levels:     make([][][]byte, len(timesteps)),
	}

	first := true
	for ts, data := range timesteps {
		if uint64(len(data)) != want {
			return nil, fmt.Errorf("dataset %q timestep %d: expected %d bytes for %s voxels of %s, got %d",
				name, ts, want, domain, t, len(data))
		}
		res, err := quantize.Scan(quantize.NewBytesSource(data, t), t, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("dataset %q timestep %d: %w", name, ts, err)
		}
		if first || res.Range.Min() < ds.min {
			ds.min = res.Range.Min()
		}
		if first || res.Range.Max() > ds.max {
			ds.max = res.Range.Max()
		}
		first = false

		levels := make([][]byte, ds.lods)
		levels[0] = data
		for lod := uint64(1); lod < ds.lods; lod++ {
			levels[lod] = subsample(levels[lod-1], ds.domainSize(lod-1), ds.domainSize(lod), elem)
		}
		ds.levels[ts] = levels
	}
	tuvok.Debugf("Built in-memory dataset %q: %s %s x%d, %d LODs, range [%g, %g]\n",
		name, domain, t, components, ds.lods, ds.min, ds.max)
	return ds, nil
}

func subsample(src []byte, from, to tuvok.Vec3, elem uint64) []byte {
	dst := make([]byte, to.Volume()*elem)
	var di uint64
	for z := uint64(0); z < to[2]; z++ {
		for y := uint64(0); y < to[1]; y++ {
			for x := uint64(0); x < to[0]; x++ {
				si := ((2*z*from[1]+2*y)*from[0] + 2*x) * elem
				copy(dst[di:di+elem], src[si:si+elem])
				di += elem
			}
		}
	}
	return dst
}

func (ds *Memory) Name() string { return ds.name }
func (ds *Memory) GetBitWidth() uint { return ds.t.BitWidth() }
func (ds *Memory) GetComponentCount() uint { return ds.components }
func (ds *Memory) GetIsSigned() bool { return ds.t.IsSigned() }
func (ds *Memory) GetIsFloat() bool { return ds.t.IsFloat() }
func (ds *Memory) GetRange() (float64, float64) { return ds.min, ds.max }
func (ds *Memory) GetTimestepCount() uint64 { return ds.timesteps }
func (ds *Memory) GetLODLevelCount() uint64 { return ds.lods }

func (ds *Memory) GetDomainSize(lod uint64) tuvok.Vec3 {
	return ds.domainSize(lod)
}

func (ds *Memory) GetBrickLayout(lod uint64) tuvok.Vec3 {
	return ds.layout(lod)
}

func (ds *Memory) GetBrickVoxelCounts(key tuvok.BrickKey) (tuvok.Vec3, error) {
	_, counts, err := ds.brickExtent(key)
	return counts, err
}

func (ds *Memory) GetMaxUsedBrickSizes() tuvok.Vec3 {
	return ds.maxUsedBrickSizes()
}

func (ds *Memory) GetTotalBrickCount() uint64 {
	return ds.totalBrickCount()
}

func (ds *Memory) GetBrick(key tuvok.BrickKey, buf []byte) ([]byte, error) {
	origin, counts, err := ds.brickExtent(key)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", ds.name, err)
	}
	elem := uint64(ds.t.Bytes()) * uint64(ds.components)
	size := counts.Volume() * elem
	if uint64(cap(buf)) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]

	d := ds.domainSize(key.LOD)
	level := ds.levels[key.Timestep][key.LOD]
	rowBytes := counts[0] * elem
	var di uint64
	for z := uint64(0); z < counts[2]; z++ {
		for y := uint64(0); y < counts[1]; y++ {
			si := (((origin[2]+z)*d[1]+origin[1]+y)*d[0] + origin[0]) * elem
			copy(buf[di:di+rowBytes], level[si:si+rowBytes])
			di += rowBytes
		}
	}
	return buf, nil
}

// Close releases nothing; the voxel data stays owned by the caller.
func (ds *Memory) Close() error {
	return nil
}
