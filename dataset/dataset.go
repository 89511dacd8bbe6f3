/*
	Package dataset defines the bricked volume collaborator the memory manager
	pages from, along with an in-memory implementation and one backed by a brick
	store.

	LOD 0 is the finest level.  Each coarser level halves every axis, rounding up,
	until the whole volume fits in a single brick.  Bricks within a level are
	indexed linearly with x varying fastest.
*/
package dataset

import (
	"fmt"

	"github.com/tuvok/tuvok/storage"
	"github.com/tuvok/tuvok/tuvok"
)

// Dataset is a bricked volume.  Implementations need not be safe for concurrent use.
type Dataset interface {
	// Name identifies the dataset in logs and is the key datasets are shared by.
	Name() string

	GetBitWidth() uint
	GetComponentCount() uint
	GetIsSigned() bool
	GetIsFloat() bool

	// GetRange returns the value range over all voxels.
	GetRange() (min, max float64)

	GetTimestepCount() uint64
	GetLODLevelCount() uint64

	// GetDomainSize returns the voxel extent of a LOD.
	GetDomainSize(lod uint64) tuvok.Vec3

	// GetBrickLayout returns the number of bricks along each axis of a LOD.
	GetBrickLayout(lod uint64) tuvok.Vec3

	// GetBrickVoxelCounts returns the voxel extent of one brick, which is smaller
	// than the brick size on the upper boundary of the domain.
	GetBrickVoxelCounts(key tuvok.BrickKey) (tuvok.Vec3, error)

	// GetMaxUsedBrickSizes returns the largest voxel extent of any brick.
	GetMaxUsedBrickSizes() tuvok.Vec3

	GetTotalBrickCount() uint64

	// GetBrick returns the voxels of a brick, x fastest, components interleaved,
	// reusing buf if it is large enough.
	GetBrick(key tuvok.BrickKey, buf []byte) ([]byte, error)

	Close() error
}

// DataType returns the element type of the dataset's voxels.
func DataType(ds Dataset) (tuvok.DataType, error) {
	return tuvok.DataTypeFor(ds.GetBitWidth(), ds.GetIsSigned(), ds.GetIsFloat())
}

// BrickBytes returns the size of a brick's voxel data.
func BrickBytes(ds Dataset, key tuvok.BrickKey) (uint64, error) {
	counts, err := ds.GetBrickVoxelCounts(key)
	if err != nil {
		return 0, err
	}
	return counts.Volume() * uint64(ds.GetBitWidth()/8) * uint64(ds.GetComponentCount()), nil
}

// Keys returns every brick key of a dataset ordered by timestep, LOD, index.
func Keys(ds Dataset) []tuvok.BrickKey {
	var keys []tuvok.BrickKey
	for t := uint64(0); t < ds.GetTimestepCount(); t++ {
		for lod := uint64(0); lod < ds.GetLODLevelCount(); lod++ {
			n := ds.GetBrickLayout(lod).Volume()
			for i := uint64(0); i < n; i++ {
				keys = append(keys, tuvok.BrickKey{Timestep: t, LOD: lod, Index: i})
			}
		}
	}
	return keys
}

// bricking is the brick geometry shared by the implementations.
type bricking struct {
	domain    tuvok.Vec3
	brickSize tuvok.Vec3
	lods      uint64
	timesteps uint64
}

func (b bricking) domainSize(lod uint64) tuvok.Vec3 {
	return storage.LODDomain(b.domain, lod)
}

func (b bricking) layout(lod uint64) tuvok.Vec3 {
	return b.domainSize(lod).CeilDiv(b.brickSize)
}

func (b bricking) validKey(key tuvok.BrickKey) error {
	if key.Timestep >= b.timesteps || key.LOD >= b.lods {
		return fmt.Errorf("brick %s outside of %d timesteps and %d LODs", key, b.timesteps, b.lods)
	}
	if n := b.layout(key.LOD).Volume(); key.Index >= n {
		return fmt.Errorf("brick %s outside of %d bricks in LOD %d", key, n, key.LOD)
	}
	return nil
}

// brickExtent returns the voxel offset and extent of a brick within its LOD.
func (b bricking) brickExtent(key tuvok.BrickKey) (origin, counts tuvok.Vec3, err error) {
	if err = b.validKey(key); err != nil {
		return
	}
	d := b.domainSize(key.LOD)
	c := tuvok.BrickCoord(key.Index, b.layout(key.LOD))
	for i := range c {
		origin[i] = c[i] * b.brickSize[i]
		counts[i] = b.brickSize[i]
		if origin[i]+counts[i] > d[i] {
			counts[i] = d[i] - origin[i]
		}
	}
	return
}

func (b bricking) maxUsedBrickSizes() tuvok.Vec3 {
	var m tuvok.Vec3
	for lod := uint64(0); lod < b.lods; lod++ {
		d := b.domainSize(lod)
		for i := range m {
			s := b.brickSize[i]
			if d[i] < s {
				s = d[i]
			}
			if s > m[i] {
				m[i] = s
			}
		}
	}
	return m
}

func (b bricking) totalBrickCount() uint64 {
	var n uint64
	for lod := uint64(0); lod < b.lods; lod++ {
		n += b.layout(lod).Volume()
	}
	return n * b.timesteps
}
