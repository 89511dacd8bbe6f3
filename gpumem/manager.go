package gpumem

import (
	"errors"
	"fmt"

	"github.com/tuvok/tuvok/cache"
	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

// maxInUseFrees bounds how many in-use volumes one out-of-memory round may free.
const maxInUseFrees = 4

// Loader opens the dataset stored at filename.
type Loader func(filename string) (dataset.Dataset, error)

// DefaultLoader opens a badger brick store.
func DefaultLoader(filename string) (dataset.Dataset, error) {
	return dataset.OpenStore(filename)
}

// Requester identifies a client sharing resources, usually a renderer.
type Requester string

// Options configure a Manager.
type Options struct {
	SystemInfo SystemInfo

	// BrickCacheBytes is the capacity of the CPU brick cache, 0 for unlimited.
	// The cache is separate from the CPU budget.
	BrickCacheBytes uint64

	// DisableBrickCache reads every brick from its dataset.
	DisableBrickCache bool

	// Loader opens datasets, DefaultLoader if nil.
	Loader Loader
}

type datasetEntry struct {
	filename   string
	ds         dataset.Dataset
	requesters []Requester
}

// Manager shares GPU resources between renderers within memory budgets.
type Manager struct {
	sysInfo SystemInfo
	budget  *MemoryBudget
	bricks  *cache.BrickCache
	loader  Loader

	datasets []*datasetEntry
	volumes  volumePool

	// dsIDs keys the brick cache by dataset instance rather than name.
	dsIDs  map[dataset.Dataset]cache.DatasetID
	nextID cache.DatasetID

	textures *sharedList[textureKey, *Texture2D]
	trans1D  []*Trans1D
	trans2D  []*Trans2D
	fbos     []*Framebuffer
	programs *sharedList[programKey, *Program]

	frame, intraFrame         uint64
	lastFrame, lastIntraFrame uint64
}

// NewManager returns a manager with empty resource lists.
func NewManager(opts Options) *Manager {
	m := &Manager{
		sysInfo:  opts.SystemInfo,
		budget:   NewMemoryBudget(opts.SystemInfo),
		loader:   opts.Loader,
		dsIDs:    make(map[dataset.Dataset]cache.DatasetID),
		textures: newSharedList[textureKey, *Texture2D](),
		programs: newSharedList[programKey, *Program](),
	}
	if m.loader == nil {
		m.loader = DefaultLoader
	}
	if !opts.DisableBrickCache {
		m.bricks = cache.New(opts.BrickCacheBytes)
	}
	tuvok.Infof("Memory manager started with %s, brick cache %s.\n", m.budget, limitString(opts.BrickCacheBytes))
	return m
}

// Budget returns the memory counters.
func (m *Manager) Budget() *MemoryBudget {
	return m.budget
}

// ---- Datasets ----

// datasetID returns the brick cache id of ds, assigning one on first use.
func (m *Manager) datasetID(ds dataset.Dataset) cache.DatasetID {
	id, found := m.dsIDs[ds]
	if !found {
		m.nextID++
		id = m.nextID
		m.dsIDs[ds] = id
	}
	return id
}

// forgetDataset drops the cached bricks of ds and its cache id.
func (m *Manager) forgetDataset(ds dataset.Dataset) {
	id, found := m.dsIDs[ds]
	if !found {
		return
	}
	if m.bricks != nil {
		m.bricks.RemoveDataset(id)
	}
	delete(m.dsIDs, ds)
}

// LoadDataset returns the dataset at filename, loading it on the first request.
// Every call adds req to the dataset's requesters, even if req is already listed.
func (m *Manager) LoadDataset(filename string, req Requester) (dataset.Dataset, error) {
	for _, e := range m.datasets {
		if e.filename == filename {
			e.requesters = append(e.requesters, req)
			tuvok.Debugf("Reusing dataset %q for %q, %d requesters.\n", filename, req, len(e.requesters))
			return e.ds, nil
		}
	}
	timedLog := tuvok.NewTimeLog()
	ds, err := m.loader(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to load dataset %q: %w", filename, err)
	}
	m.datasets = append(m.datasets, &datasetEntry{filename: filename, ds: ds, requesters: []Requester{req}})
	timedLog.Infof("Loaded dataset %q with %d bricks for %q", filename, ds.GetTotalBrickCount(), req)
	return ds, nil
}

// FreeDataset removes one occurrence of req from the requesters of ds.  When no
// requesters remain, every volume of ds is freed and the dataset is closed.
func (m *Manager) FreeDataset(ds dataset.Dataset, req Requester) error {
	for i, e := range m.datasets {
		if e.ds != ds {
			continue
		}
		idx := -1
		for j, r := range e.requesters {
			if r == req {
				idx = j
				break
			}
		}
		if idx < 0 {
			tuvok.Warningf("Requester %q freeing dataset %q it never requested.\n", req, e.filename)
			return nil
		}
		e.requesters = append(e.requesters[:idx], e.requesters[idx+1:]...)
		if len(e.requesters) > 0 {
			return nil
		}
		m.datasets = append(m.datasets[:i], m.datasets[i+1:]...)
		m.FreeAssociatedTextures(ds)
		m.forgetDataset(ds)
		tuvok.Debugf("Closing dataset %q, no requesters left.\n", e.filename)
		return ds.Close()
	}
	tuvok.Warningf("Freeing dataset %q that was never loaded.\n", ds.Name())
	return nil
}

// ---- Frame counters ----

// NewFrame advances the frame counter and resets the intra-frame counter.
func (m *Manager) NewFrame() uint64 {
	m.frame++
	m.intraFrame = 0
	return m.frame
}

// Tick returns the counters for the next brick drawn in the current frame.
func (m *Manager) Tick() (frame, intraFrame uint64) {
	m.intraFrame++
	return m.frame, m.intraFrame
}

func (m *Manager) checkCounters(frame, intraFrame uint64) {
	if frame < m.lastFrame || (frame == m.lastFrame && intraFrame < m.lastIntraFrame) {
		tuvok.Warningf("Frame counters went backwards from (%d, %d) to (%d, %d).\n",
			m.lastFrame, m.lastIntraFrame, frame, intraFrame)
		return
	}
	m.lastFrame, m.lastIntraFrame = frame, intraFrame
}

// ---- Volumes ----

// GetVolume returns a handle to a GPU texture holding the requested brick.  The
// volume's user count is incremented and must be balanced by ReleaseVolume.
func (m *Manager) GetVolume(req VolumeRequest) (VolumeHandle, error) {
	if req.Dataset == nil || req.Context == nil {
		return VolumeHandle{}, fmt.Errorf("volume request needs a dataset and a context")
	}
	m.checkCounters(req.Frame, req.IntraFrame)

	var found VolumeHandle
	m.volumes.each(func(slot uint32, r *volumeRecord) bool {
		if r.ds == req.Dataset && r.key == req.Key && r.flags == req.Flags && r.ctx.ID() == req.Context.ID() {
			r.users++
			r.touch(req.Frame, req.IntraFrame)
			found = m.volumes.handle(slot)
			return false
		}
		return true
	})
	if !found.IsZero() {
		return found, nil
	}

	plan, err := planStaging(req.Dataset, req.Key, req.Flags)
	if err != nil {
		return VolumeHandle{}, err
	}
	need := plan.bytes()
	if !m.budget.FitsCPU(need) || !m.budget.FitsGPU(need) {
		slot, ok := m.volumes.oldestUnused(func(r *volumeRecord) bool {
			return r.desc == plan.desc && r.flags == req.Flags && r.ctx.ID() == req.Context.ID()
		})
		if ok {
			return m.replace(slot, req, plan)
		}
		if err := m.makeRoomCPU(need); err != nil {
			return VolumeHandle{}, fmt.Errorf("brick %s of %q: %w", req.Key, req.Dataset.Name(), err)
		}
	}

	raw, err := brickData(m.bricks, m.datasetID(req.Dataset), req.Dataset, req.Key)
	if err != nil {
		return VolumeHandle{}, err
	}
	data, err := stage(plan, raw, req.Dataset, req.Flags)
	if err != nil {
		return VolumeHandle{}, fmt.Errorf("brick %s of %q: %w", req.Key, req.Dataset.Name(), err)
	}
	var tex gpu.TextureHandle
	what := fmt.Sprintf("brick %s of %q", req.Key, req.Dataset.Name())
	err = m.allocate(what, plan.desc.Bytes(), func() (err error) {
		tex, err = req.Context.CreateTexture(plan.desc, data)
		return
	})
	if err != nil {
		return VolumeHandle{}, err
	}
	m.budget.addCPU(need)
	m.budget.addGPU(plan.desc.Bytes())
	h := m.volumes.insert(volumeRecord{
		ds:       req.Dataset,
		key:      req.Key,
		flags:    req.Flags,
		ctx:      req.Context,
		tex:      tex,
		desc:     plan.desc,
		counts:   plan.counts,
		cpuBytes: need,
		gpuBytes: plan.desc.Bytes(),
		users:    1,
	})
	m.volumes.records[h.slot].touch(req.Frame, req.IntraFrame)
	m.relievePressure()
	return h, nil
}

// Replace overwrites the texture of a volume in place with another brick of the
// same texture shape.  The request must come from the volume's context.  The
// returned handle holds the only use of the volume: every holder of the old
// handle counts as released, and the old handle goes stale.
func (m *Manager) Replace(h VolumeHandle, req VolumeRequest) (VolumeHandle, error) {
	r, err := m.volumes.get(h)
	if err != nil {
		return VolumeHandle{}, err
	}
	if req.Dataset == nil || req.Context == nil {
		return VolumeHandle{}, fmt.Errorf("volume request needs a dataset and a context")
	}
	if r.ctx.ID() != req.Context.ID() {
		tuvok.Errorf("Cannot replace %s from context %d.\n", r, req.Context.ID())
		return VolumeHandle{}, fmt.Errorf("%s from context %d: %w", h, req.Context.ID(), ErrContextMismatch)
	}
	if r.flags != req.Flags {
		return VolumeHandle{}, fmt.Errorf("cannot replace %s with flags %s", r, req.Flags)
	}
	plan, err := planStaging(req.Dataset, req.Key, req.Flags)
	if err != nil {
		return VolumeHandle{}, err
	}
	if plan.desc != r.desc {
		return VolumeHandle{}, fmt.Errorf("cannot replace %s with %s", r, plan.desc)
	}
	m.checkCounters(req.Frame, req.IntraFrame)
	if r.users > 1 {
		tuvok.Debugf("Replacing %s drops %d other users.\n", r, r.users-1)
	}
	return m.replace(h.slot, req, plan)
}

// replace uploads a brick into the texture of the record in slot, which must
// have the same texture shape and context.
func (m *Manager) replace(slot uint32, req VolumeRequest, plan staging) (VolumeHandle, error) {
	r := &m.volumes.records[slot]
	if r.ctx.ID() != req.Context.ID() {
		tuvok.Errorf("Cannot replace %s from context %d.\n", r, req.Context.ID())
		return VolumeHandle{}, ErrContextMismatch
	}
	raw, err := brickData(m.bricks, m.datasetID(req.Dataset), req.Dataset, req.Key)
	if err != nil {
		return VolumeHandle{}, err
	}
	data, err := stage(plan, raw, req.Dataset, req.Flags)
	if err != nil {
		return VolumeHandle{}, err
	}
	if err := r.ctx.UpdateTexture(r.tex, data); err != nil {
		return VolumeHandle{}, fmt.Errorf("unable to replace %s: %w", r, err)
	}
	tuvok.Debugf("Replaced %s with brick %s of %q.\n", r, req.Key, req.Dataset.Name())
	r.ds = req.Dataset
	r.key = req.Key
	r.counts = plan.counts
	r.users = 1
	r.touch(req.Frame, req.IntraFrame)
	return m.volumes.reissue(slot), nil
}

// Volume returns the state of a resident volume.
func (m *Manager) Volume(h VolumeHandle) (VolumeInfo, error) {
	r, err := m.volumes.get(h)
	if err != nil {
		return VolumeInfo{}, err
	}
	return r.info(h), nil
}

// Volumes lists every resident volume in slot order.
func (m *Manager) Volumes() []VolumeInfo {
	infos := make([]VolumeInfo, 0, m.volumes.live)
	m.volumes.each(func(slot uint32, r *volumeRecord) bool {
		infos = append(infos, r.info(m.volumes.handle(slot)))
		return true
	})
	return infos
}

// ReleaseVolume decrements the user count of a volume.  The texture stays
// resident until evicted.
func (m *Manager) ReleaseVolume(h VolumeHandle) {
	r, err := m.volumes.get(h)
	if err != nil {
		tuvok.Warningf("Releasing %v.\n", err)
		return
	}
	if r.users == 0 {
		tuvok.Warningf("Releasing %s which has no users.\n", r)
		return
	}
	r.users--
}

// FreeAssociatedTextures frees every volume of ds and returns how many were freed.
func (m *Manager) FreeAssociatedTextures(ds dataset.Dataset) int {
	var n int
	m.volumes.each(func(slot uint32, r *volumeRecord) bool {
		if r.ds == ds {
			if r.users > 0 {
				tuvok.Warningf("Freeing %s which is still in use.\n", r)
			}
			m.freeVolume(slot)
			n++
		}
		return true
	})
	return n
}

func (m *Manager) freeVolume(slot uint32) {
	r := &m.volumes.records[slot]
	if err := r.ctx.DeleteTexture(r.tex); err != nil {
		tuvok.Errorf("Unable to delete texture of %s: %v\n", r, err)
	}
	m.budget.freeCPU(r.cpuBytes)
	m.budget.freeGPU(r.gpuBytes)
	m.volumes.remove(slot)
}

// makeRoomCPU evicts unused volumes, oldest first, until need bytes fit the CPU
// budget.  When only volumes in use are left it frees up to maxInUseFrees of
// them, oldest first, before giving up.
func (m *Manager) makeRoomCPU(need uint64) error {
	if limit := m.budget.CPULimit(); limit != 0 && need > limit {
		return fmt.Errorf("%s of staging memory exceeds %s: %w", tuvok.ByteSize(need), m.budget, ErrCannotRenderBrick)
	}
	var inUseFreed int
	for !m.budget.FitsCPU(need) {
		if slot, ok := m.volumes.oldestUnused(nil); ok {
			tuvok.Debugf("Evicting %s to make room for %s of CPU memory.\n", &m.volumes.records[slot], tuvok.ByteSize(need))
			m.freeVolume(slot)
			continue
		}
		slot, ok := m.volumes.oldest()
		if !ok || inUseFreed == maxInUseFrees {
			return fmt.Errorf("%s of staging memory does not fit %s after freeing %d volumes in use: %w",
				tuvok.ByteSize(need), m.budget, inUseFreed, ErrCannotRenderBrick)
		}
		tuvok.Warningf("Out of CPU memory, freeing %s.\n", &m.volumes.records[slot])
		m.freeVolume(slot)
		inUseFreed++
	}
	return nil
}

// freeAllUnused frees every volume without users.
func (m *Manager) freeAllUnused() int {
	var n int
	m.volumes.each(func(slot uint32, r *volumeRecord) bool {
		if r.users == 0 {
			m.freeVolume(slot)
			n++
		}
		return true
	})
	return n
}

// freeInUse frees up to max of the least recently used volumes regardless of users.
func (m *Manager) freeInUse(max int) int {
	var n int
	for ; n < max; n++ {
		slot, ok := m.volumes.oldest()
		if !ok {
			break
		}
		tuvok.Warningf("Out of GPU memory, freeing %s.\n", &m.volumes.records[slot])
		m.freeVolume(slot)
	}
	return n
}

// allocate runs create until it succeeds, freeing volumes on out-of-memory: first
// every unused volume, then up to maxInUseFrees volumes in use.  When no volume
// is left it returns ErrCannotRenderBrick.  n is the GPU memory the resource
// takes, checked against the budget before each attempt.
func (m *Manager) allocate(what string, n uint64, create func() error) error {
	for {
		var err error
		if m.budget.FitsGPU(n) {
			err = create()
		} else {
			err = fmt.Errorf("%s does not fit %s: %w", tuvok.ByteSize(n), m.budget, gpu.ErrOutOfMemory)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, gpu.ErrOutOfMemory) {
			return fmt.Errorf("unable to allocate %s: %w", what, err)
		}
		if freed := m.freeAllUnused(); freed > 0 {
			tuvok.Debugf("Freed %d unused volumes to allocate %s.\n", freed, what)
			continue
		}
		if freed := m.freeInUse(maxInUseFrees); freed > 0 {
			continue
		}
		tuvok.Errorf("Cannot allocate %s even with no volumes resident: %v\n", what, err)
		return fmt.Errorf("%s: %v: %w", what, err, ErrCannotRenderBrick)
	}
}

// relievePressure frees unused volumes, oldest first, while the totals exceed
// the limits.
func (m *Manager) relievePressure() {
	for m.budget.OverLimit() {
		slot, ok := m.volumes.oldestUnused(nil)
		if !ok {
			tuvok.Warningf("Memory use over limits with nothing to free: %s\n", m.budget)
			return
		}
		m.freeVolume(slot)
	}
}

// MemSizesChanged re-reads the memory limits and frees unused volumes until the
// totals fit them.
func (m *Manager) MemSizesChanged() {
	m.budget.SetLimits(m.sysInfo)
	tuvok.Infof("Memory limits changed: %s\n", m.budget)
	m.relievePressure()
}
