package tuvok

import (
	"encoding/binary"
	"fmt"
)

// BrickKey identifies a brick within a dataset: the timestep, the level of detail
// (0 is the finest), and the linear index of the brick within that level's brick layout.
type BrickKey struct {
	Timestep uint64
	LOD      uint64
	Index    uint64
}

// BrickKeyBytes is the size of a serialized BrickKey.
const BrickKeyBytes = 24

// Bytes returns a big-endian encoding so serialized keys sort by timestep, LOD, index.
func (k BrickKey) Bytes() []byte {
	b := make([]byte, BrickKeyBytes)
	binary.BigEndian.PutUint64(b[0:8], k.Timestep)
	binary.BigEndian.PutUint64(b[8:16], k.LOD)
	binary.BigEndian.PutUint64(b[16:24], k.Index)
	return b
}

// BrickKeyFromBytes decodes a key serialized with Bytes().
func BrickKeyFromBytes(b []byte) (BrickKey, error) {
	if len(b) != BrickKeyBytes {
		return BrickKey{}, fmt.Errorf("brick key must be %d bytes, got %d", BrickKeyBytes, len(b))
	}
	return BrickKey{
		Timestep: binary.BigEndian.Uint64(b[0:8]),
		LOD:      binary.BigEndian.Uint64(b[8:16]),
		Index:    binary.BigEndian.Uint64(b[16:24]),
	}, nil
}

func (k BrickKey) String() string {
	return fmt.Sprintf("(t %d, lod %d, brick %d)", k.Timestep, k.LOD, k.Index)
}

// Vec3 is a 3d extent or position in voxels or bricks.
type Vec3 [3]uint64

// Volume returns the product of the components.
func (v Vec3) Volume() uint64 {
	return v[0] * v[1] * v[2]
}

// Max returns the component-wise maximum.
func (v Vec3) Max(x Vec3) Vec3 {
	for i := 0; i < 3; i++ {
		if x[i] > v[i] {
			v[i] = x[i]
		}
	}
	return v
}

// CeilDiv returns the component-wise ceil(v / x).
func (v Vec3) CeilDiv(x Vec3) Vec3 {
	var r Vec3
	for i := 0; i < 3; i++ {
		if x[i] == 0 {
			continue
		}
		r[i] = (v[i] + x[i] - 1) / x[i]
	}
	return r
}

// NextPowerOfTwo returns each component rounded up to a power of two.
func (v Vec3) NextPowerOfTwo() Vec3 {
	var r Vec3
	for i := 0; i < 3; i++ {
		r[i] = NextPowerOfTwo(v[i])
	}
	return r
}

// IsPowerOfTwo returns true if every component is a power of two.
func (v Vec3) IsPowerOfTwo() bool {
	for i := 0; i < 3; i++ {
		if NextPowerOfTwo(v[i]) != v[i] {
			return false
		}
	}
	return true
}

func (v Vec3) String() string {
	return fmt.Sprintf("%d x %d x %d", v[0], v[1], v[2])
}

// NextPowerOfTwo returns the smallest power of two >= n.  Zero maps to one.
func NextPowerOfTwo(n uint64) uint64 {
	p := uint64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// LinearIndex returns the index of the brick at coord within the given layout,
// x varying fastest.
func LinearIndex(coord, layout Vec3) uint64 {
	return coord[0] + layout[0]*(coord[1]+layout[1]*coord[2])
}

// BrickCoord is the inverse of LinearIndex.
func BrickCoord(index uint64, layout Vec3) Vec3 {
	var c Vec3
	c[0] = index % layout[0]
	index /= layout[0]
	c[1] = index % layout[1]
	c[2] = index / layout[1]
	return c
}
