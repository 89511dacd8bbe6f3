package gpumem

import (
	"fmt"

	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

// VolumeFlags are the texture compatibility settings a brick was uploaded with.
// Records only match requests with identical flags.
type VolumeFlags struct {
	// PowerOfTwo pads every axis to the next power of two.
	PowerOfTwo bool

	// DownsampleTo8Bit rescales 16-bit unsigned bricks into 8 bits.
	DownsampleTo8Bit bool

	// DisableBorder zero-fills padding instead of replicating the last voxels.
	DisableBorder bool

	// Emulate3DWith2DStacks stores the brick as a 2D texture of stacked slices.
	Emulate3DWith2DStacks bool
}

func (f VolumeFlags) String() string {
	return fmt.Sprintf("pow2 %t, 8bit %t, noborder %t, 2dstacks %t",
		f.PowerOfTwo, f.DownsampleTo8Bit, f.DisableBorder, f.Emulate3DWith2DStacks)
}

// VolumeHandle refers to a volume record.  The zero value is never valid.
type VolumeHandle struct {
	slot       uint32
	generation uint32
}

// IsZero returns true for the zero handle.
func (h VolumeHandle) IsZero() bool {
	return h.generation == 0
}

func (h VolumeHandle) String() string {
	return fmt.Sprintf("volume %d.%d", h.slot, h.generation)
}

// VolumeRequest asks for a brick to be resident in a graphics context.
type VolumeRequest struct {
	Dataset dataset.Dataset
	Key     tuvok.BrickKey
	Flags   VolumeFlags
	Context gpu.Context

	// Frame and IntraFrame are the renderer's counters for this access.  They
	// must never decrease.
	Frame      uint64
	IntraFrame uint64
}

// VolumeInfo describes a resident volume.
type VolumeInfo struct {
	Handle      VolumeHandle
	DatasetName string
	Key         tuvok.BrickKey
	Flags       VolumeFlags
	Context     gpu.ContextID
	Texture     gpu.TextureHandle
	Desc        gpu.TextureDesc

	// VoxelCounts is the unpadded extent of the brick within the texture.
	VoxelCounts tuvok.Vec3

	Users      uint32
	Frame      uint64
	IntraFrame uint64
	CPUBytes   uint64
	GPUBytes   uint64
}

type volumeRecord struct {
	generation uint32
	live       bool

	// ds is a back-reference; the record never owns or closes the dataset.
	ds     dataset.Dataset
	key    tuvok.BrickKey
	flags  VolumeFlags
	ctx    gpu.Context
	tex    gpu.TextureHandle
	desc   gpu.TextureDesc
	counts tuvok.Vec3

	// cpuBytes is the staging size committed for the lifetime of the record even
	// though the staging buffer itself is dropped after upload.
	cpuBytes uint64
	gpuBytes uint64

	users      uint32
	frame      uint64
	intraFrame uint64
}

// older returns true if r was used less recently than o.
func (r *volumeRecord) older(o *volumeRecord) bool {
	if r.frame != o.frame {
		return r.frame < o.frame
	}
	return r.intraFrame < o.intraFrame
}

func (r *volumeRecord) touch(frame, intraFrame uint64) {
	r.frame = frame
	r.intraFrame = intraFrame
}

func (r *volumeRecord) info(h VolumeHandle) VolumeInfo {
	return VolumeInfo{
		Handle:      h,
		DatasetName: r.ds.Name(),
		Key:         r.key,
		Flags:       r.flags,
		Context:     r.ctx.ID(),
		Texture:     r.tex,
		Desc:        r.desc,
		VoxelCounts: r.counts,
		Users:       r.users,
		Frame:       r.frame,
		IntraFrame:  r.intraFrame,
		CPUBytes:    r.cpuBytes,
		GPUBytes:    r.gpuBytes,
	}
}

func (r *volumeRecord) String() string {
	return fmt.Sprintf("brick %s of %q in context %d (%s, %d users)", r.key, r.ds.Name(), r.ctx.ID(), r.desc, r.users)
}

// volumePool is the arena of volume records.  Freed slots are reused and their
// generation bumped so old handles go stale.
type volumePool struct {
	records []volumeRecord
	free    []uint32
	live    int
}

func (p *volumePool) handle(slot uint32) VolumeHandle {
	return VolumeHandle{slot: slot, generation: p.records[slot].generation}
}

// get returns the live record of h.
func (p *volumePool) get(h VolumeHandle) (*volumeRecord, error) {
	if h.IsZero() || int(h.slot) >= len(p.records) {
		return nil, fmt.Errorf("%s: %w", h, ErrStaleHandle)
	}
	r := &p.records[h.slot]
	if !r.live || r.generation != h.generation {
		return nil, fmt.Errorf("%s: %w", h, ErrStaleHandle)
	}
	return r, nil
}

// insert stores rec in a free slot and returns its handle.
func (p *volumePool) insert(rec volumeRecord) VolumeHandle {
	var slot uint32
	if n := len(p.free); n > 0 {
		slot = p.free[n-1]
		p.free = p.free[:n-1]
		rec.generation = p.records[slot].generation + 1
		p.records[slot] = rec
	} else {
		slot = uint32(len(p.records))
		rec.generation = 1
		p.records = append(p.records, rec)
	}
	p.records[slot].live = true
	p.live++
	return p.handle(slot)
}

// remove frees the slot of a record.  The caller releases its resources.
func (p *volumePool) remove(slot uint32) {
	r := &p.records[slot]
	gen := r.generation
	*r = volumeRecord{generation: gen}
	p.free = append(p.free, slot)
	p.live--
}

// reissue bumps the generation of a live record so handles from before a
// replacement go stale.
func (p *volumePool) reissue(slot uint32) VolumeHandle {
	p.records[slot].generation++
	return p.handle(slot)
}

// each calls fn for every live record in slot order until fn returns false.
func (p *volumePool) each(fn func(slot uint32, r *volumeRecord) bool) {
	for i := range p.records {
		if p.records[i].live && !fn(uint32(i), &p.records[i]) {
			return
		}
	}
}

// oldestUnused returns the slot of the least recently used record with no users,
// keeping the first in slot order on ties, among those accepted by match.
func (p *volumePool) oldestUnused(match func(r *volumeRecord) bool) (uint32, bool) {
	var best *volumeRecord
	var bestSlot uint32
	p.each(func(slot uint32, r *volumeRecord) bool {
		if r.users != 0 || (match != nil && !match(r)) {
			return true
		}
		if best == nil || r.older(best) {
			best, bestSlot = r, slot
		}
		return true
	})
	return bestSlot, best != nil
}

// oldest returns the slot of the least recently used record regardless of users.
func (p *volumePool) oldest() (uint32, bool) {
	var best *volumeRecord
	var bestSlot uint32
	p.each(func(slot uint32, r *volumeRecord) bool {
		if best == nil || r.older(best) {
			best, bestSlot = r, slot
		}
		return true
	})
	return bestSlot, best != nil
}
