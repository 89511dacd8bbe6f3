package storage

import (
	"fmt"

	"github.com/blang/semver"
	"github.com/tinylib/msgp/msgp"

	"github.com/tuvok/tuvok/tuvok"
)

// Metadata describes the volume held in a brick store.
type Metadata struct {
	Version    semver.Version
	Name       string
	Type       tuvok.DataType
	Components uint64

	// Domain is the size of the finest LOD in voxels.
	Domain    tuvok.Vec3
	BrickSize tuvok.Vec3
	LODCount  uint64
	Timesteps uint64

	// Min and Max are the value range over all voxels.
	Min, Max float64

	Compression tuvok.Compression
	Checksum    tuvok.Checksum
}

func appendVec3(b []byte, v tuvok.Vec3) []byte {
	b = msgp.AppendArrayHeader(b, 3)
	for _, x := range v {
		b = msgp.AppendUint64(b, x)
	}
	return b
}

func readVec3(b []byte) (v tuvok.Vec3, o []byte, err error) {
	var sz uint32
	if sz, o, err = msgp.ReadArrayHeaderBytes(b); err != nil {
		return
	}
	if sz != 3 {
		err = fmt.Errorf("expected 3 components in vector, got %d", sz)
		return
	}
	for i := range v {
		if v[i], o, err = msgp.ReadUint64Bytes(o); err != nil {
			return
		}
	}
	return
}

// MarshalMsg appends the msgpack encoding of m to b.
func (m Metadata) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 12)
	b = msgp.AppendString(b, "version")
	b = msgp.AppendString(b, m.Version.String())
	b = msgp.AppendString(b, "name")
	b = msgp.AppendString(b, m.Name)
	b = msgp.AppendString(b, "type")
	b = msgp.AppendString(b, m.Type.String())
	b = msgp.AppendString(b, "components")
	b = msgp.AppendUint64(b, m.Components)
	b = msgp.AppendString(b, "domain")
	b = appendVec3(b, m.Domain)
	b = msgp.AppendString(b, "brick")
	b = appendVec3(b, m.BrickSize)
	b = msgp.AppendString(b, "lods")
	b = msgp.AppendUint64(b, m.LODCount)
	b = msgp.AppendString(b, "timesteps")
	b = msgp.AppendUint64(b, m.Timesteps)
	b = msgp.AppendString(b, "min")
	b = msgp.AppendFloat64(b, m.Min)
	b = msgp.AppendString(b, "max")
	b = msgp.AppendFloat64(b, m.Max)
	b = msgp.AppendString(b, "compression")
	b = msgp.AppendUint8(b, uint8(m.Compression))
	b = msgp.AppendString(b, "checksum")
	b = msgp.AppendUint8(b, uint8(m.Checksum))
	return b, nil
}

// UnmarshalMsg decodes m from b, returning the remaining bytes.  Unknown fields
// are skipped.
func (m *Metadata) UnmarshalMsg(b []byte) (o []byte, err error) {
	var fields uint32
	if fields, o, err = msgp.ReadMapHeaderBytes(b); err != nil {
		return
	}
	for ; fields > 0; fields-- {
		var field string
		if field, o, err = msgp.ReadStringBytes(o); err != nil {
			return
		}
		var s string
		var u8 uint8
		switch field {
		case "version":
			if s, o, err = msgp.ReadStringBytes(o); err == nil {
				m.Version, err = semver.Parse(s)
			}
		case "name":
			m.Name, o, err = msgp.ReadStringBytes(o)
		case "type":
			if s, o, err = msgp.ReadStringBytes(o); err == nil {
				m.Type, err = tuvok.ParseDataType(s)
			}
		case "components":
			m.Components, o, err = msgp.ReadUint64Bytes(o)
		case "domain":
			m.Domain, o, err = readVec3(o)
		case "brick":
			m.BrickSize, o, err = readVec3(o)
		case "lods":
			m.LODCount, o, err = msgp.ReadUint64Bytes(o)
		case "timesteps":
			m.Timesteps, o, err = msgp.ReadUint64Bytes(o)
		case "min":
			m.Min, o, err = msgp.ReadFloat64Bytes(o)
		case "max":
			m.Max, o, err = msgp.ReadFloat64Bytes(o)
		case "compression":
			u8, o, err = msgp.ReadUint8Bytes(o)
			m.Compression = tuvok.Compression(u8)
		case "checksum":
			u8, o, err = msgp.ReadUint8Bytes(o)
			m.Checksum = tuvok.Checksum(u8)
		default:
			o, err = msgp.Skip(o)
		}
		if err != nil {
			err = fmt.Errorf("metadata field %q: %w", field, err)
			return
		}
	}
	return
}

// LODDomain returns the voxel extent of the given LOD.  Every coarser LOD halves
// each axis, rounding up.
func (m Metadata) LODDomain(lod uint64) tuvok.Vec3 {
	return LODDomain(m.Domain, lod)
}

// LODDomain returns the voxel extent of level lod of a pyramid whose finest
// level is domain.
func LODDomain(domain tuvok.Vec3, lod uint64) tuvok.Vec3 {
	d := domain
	for l := uint64(0); l < lod; l++ {
		for i := range d {
			d[i] = (d[i] + 1) / 2
		}
	}
	return d
}

// LODCountFor returns the number of LODs needed until the whole domain fits in
// one brick.
func LODCountFor(domain, brickSize tuvok.Vec3) uint64 {
	count := uint64(1)
	if brickSize[0] == 0 || brickSize[1] == 0 || brickSize[2] == 0 {
		return count
	}
	d := domain
	for d[0] > brickSize[0] || d[1] > brickSize[1] || d[2] > brickSize[2] {
		for i := range d {
			d[i] = (d[i] + 1) / 2
		}
		count++
	}
	return count
}
