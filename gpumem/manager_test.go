package gpumem

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

// brickBytes is the size of a full 4x4x4 uint8 brick.
const brickBytes = 64

func testDataset(t *testing.T, name string) *dataset.Memory {
	domain := tuvok.Vec3{8, 8, 8}
	data := make([]byte, domain.Volume())
	for i := range data {
		data[i] = byte(i % 251)
	}
	ds, err := dataset.NewMemory(name, tuvok.T_uint8, 1, domain, tuvok.Vec3{4, 4, 4}, data)
	if err != nil {
		t.Fatalf("unable to build dataset: %v", err)
	}
	return ds
}

func request(ds dataset.Dataset, ctx gpu.Context, index, frame, intra uint64) VolumeRequest {
	return VolumeRequest{
		Dataset:    ds,
		Key:        tuvok.BrickKey{Index: index},
		Context:    ctx,
		Frame:      frame,
		IntraFrame: intra,
	}
}

func mustGet(t *testing.T, m *Manager, req VolumeRequest) VolumeHandle {
	h, err := m.GetVolume(req)
	if err != nil {
		t.Fatalf("unable to get brick %s: %v", req.Key, err)
	}
	return h
}

func indices(m *Manager) []uint64 {
	var idx []uint64
	for _, v := range m.Volumes() {
		idx = append(idx, v.Key.Index)
	}
	return idx
}

func sameIndices(got []uint64, want ...uint64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestExactMatchReuse(t *testing.T) {
	m := NewManager(Options{})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "reuse")

	h1 := mustGet(t, m, request(ds, ctx, 0, 1, 1))
	h2 := mustGet(t, m, request(ds, ctx, 0, 1, 2))
	if h1 != h2 {
		t.Fatalf("expected the same handle, got %s and %s", h1, h2)
	}
	info, err := m.Volume(h1)
	if err != nil {
		t.Fatalf("bad volume: %v", err)
	}
	if info.Users != 2 || info.IntraFrame != 2 {
		t.Errorf("expected 2 users touched at intra-frame 2, got %+v", info)
	}
	if n := ctx.Counters().TexturesCreated; n != 1 {
		t.Errorf("expected one texture created, got %d", n)
	}
	want, _ := ds.GetBrick(tuvok.BrickKey{}, nil)
	if !bytes.Equal(ctx.TextureData(info.Texture), want) {
		t.Errorf("texture doesn't hold brick 0")
	}
	if m.Budget().CPUUsed() != brickBytes || m.Budget().GPUUsed() != brickBytes {
		t.Errorf("bad accounting: %s", m.Budget())
	}

	// Different flags need a separate volume.
	req := request(ds, ctx, 0, 1, 3)
	req.Flags.PowerOfTwo = true
	if h3 := mustGet(t, m, req); h3 == h1 {
		t.Errorf("expected a new volume for different flags")
	}
}

func TestBestMatchReplacesOldestUnused(t *testing.T) {
	m := NewManager(Options{SystemInfo: StaticSystemInfo{CPU: 3 * brickBytes}})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "best")

	h0 := mustGet(t, m, request(ds, ctx, 0, 2, 1))
	h1 := mustGet(t, m, request(ds, ctx, 1, 1, 5))
	h2 := mustGet(t, m, request(ds, ctx, 2, 2, 2))
	for _, h := range []VolumeHandle{h0, h1, h2} {
		m.ReleaseVolume(h)
	}

	h3 := mustGet(t, m, request(ds, ctx, 3, 3, 1))
	if got := indices(m); !sameIndices(got, 0, 3, 2) {
		t.Fatalf("expected brick 1 to be replaced in place, got %v", got)
	}
	c := ctx.Counters()
	if c.TexturesCreated != 3 || c.TextureUpdates != 1 {
		t.Errorf("expected 3 creations and 1 update, got %+v", c)
	}
	if _, err := m.Volume(h1); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected replaced handle to be stale, got %v", err)
	}
	info, err := m.Volume(h3)
	if err != nil {
		t.Fatalf("bad volume: %v", err)
	}
	if info.Users != 1 || info.Frame != 3 {
		t.Errorf("bad replaced record: %+v", info)
	}
	want, _ := ds.GetBrick(tuvok.BrickKey{Index: 3}, nil)
	if !bytes.Equal(ctx.TextureData(info.Texture), want) {
		t.Errorf("texture doesn't hold brick 3")
	}
	if m.Budget().CPUUsed() != 3*brickBytes {
		t.Errorf("replacement changed accounting: %s", m.Budget())
	}
}

func TestBestMatchTieKeepsFirst(t *testing.T) {
	m := NewManager(Options{SystemInfo: StaticSystemInfo{CPU: 3 * brickBytes}})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "tie")

	for i := uint64(0); i < 3; i++ {
		m.ReleaseVolume(mustGet(t, m, request(ds, ctx, i, 1, 1)))
	}
	mustGet(t, m, request(ds, ctx, 5, 1, 1))
	if got := indices(m); !sameIndices(got, 5, 1, 2) {
		t.Errorf("expected the first record to be replaced, got %v", got)
	}
}

func TestBestMatchSkipsInUse(t *testing.T) {
	m := NewManager(Options{SystemInfo: StaticSystemInfo{CPU: 2 * brickBytes}})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "inuse")

	h0 := mustGet(t, m, request(ds, ctx, 0, 1, 1))
	m.ReleaseVolume(mustGet(t, m, request(ds, ctx, 1, 1, 2)))
	h2 := mustGet(t, m, request(ds, ctx, 2, 1, 3))
	if got := indices(m); !sameIndices(got, 0, 2) {
		t.Errorf("expected the unused volume to be replaced, got %v", got)
	}

	// Nothing unused is left and the CPU budget is full, so the oldest volume
	// in use makes room.
	h3 := mustGet(t, m, request(ds, ctx, 3, 1, 4))
	if got := indices(m); !sameIndices(got, 2, 3) {
		t.Fatalf("expected the oldest in-use volume to be freed, got %v", got)
	}
	if _, err := m.Volume(h0); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected freed handle to be stale, got %v", err)
	}
	for _, h := range []VolumeHandle{h2, h3} {
		if _, err := m.Volume(h); err != nil {
			t.Errorf("volume %s was freed: %v", h, err)
		}
	}
	if m.Budget().CPUUsed() != 2*brickBytes {
		t.Errorf("expected two bricks of CPU memory, got %s", m.Budget())
	}
}

func TestBrickLargerThanCPUBudget(t *testing.T) {
	m := NewManager(Options{SystemInfo: StaticSystemInfo{CPU: brickBytes / 2}})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "big")

	_, err := m.GetVolume(request(ds, ctx, 0, 1, 1))
	if !errors.Is(err, ErrCannotRenderBrick) {
		t.Fatalf("expected ErrCannotRenderBrick, got %v", err)
	}
	if m.Budget().CPUUsed() != 0 || m.Budget().GPUUsed() != 0 || len(m.Volumes()) != 0 {
		t.Errorf("failed request left state behind: %s", m.Budget())
	}
}

func TestOutOfMemoryFreesUnusedFirst(t *testing.T) {
	m := NewManager(Options{})
	ctx := gpu.NewSoft(1, 2*brickBytes)
	ds := testDataset(t, "oom")

	h0 := mustGet(t, m, request(ds, ctx, 0, 1, 1))
	h1 := mustGet(t, m, request(ds, ctx, 1, 1, 2))
	m.ReleaseVolume(h1)

	h2 := mustGet(t, m, request(ds, ctx, 2, 1, 3))
	if got := indices(m); !sameIndices(got, 0, 2) {
		t.Fatalf("expected the unused volume to be freed, got %v", got)
	}
	if _, err := m.Volume(h1); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected freed handle to be stale, got %v", err)
	}
	if _, err := m.Volume(h0); err != nil {
		t.Errorf("in-use volume was freed: %v", err)
	}

	// Everything resident is in use so in-use volumes are freed.
	h3 := mustGet(t, m, request(ds, ctx, 3, 1, 4))
	if got := indices(m); len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected only brick 3 resident, got %v", got)
	}
	for _, h := range []VolumeHandle{h0, h2} {
		if _, err := m.Volume(h); !errors.Is(err, ErrStaleHandle) {
			t.Errorf("expected %s to be stale, got %v", h, err)
		}
	}
	if _, err := m.Volume(h3); err != nil {
		t.Errorf("bad new volume: %v", err)
	}
	if m.Budget().GPUUsed() != ctx.Used() {
		t.Errorf("budget %s disagrees with context use %d", m.Budget(), ctx.Used())
	}
}

func TestOutOfMemoryRetry(t *testing.T) {
	m := NewManager(Options{})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "retry")

	m.ReleaseVolume(mustGet(t, m, request(ds, ctx, 0, 1, 1)))
	ctx.FailNext(1)
	mustGet(t, m, request(ds, ctx, 1, 1, 2))
	if got := indices(m); !sameIndices(got, 1) {
		t.Errorf("expected retry after freeing unused volumes, got %v", got)
	}

	ctx.FailNext(5)
	_, err := m.GetVolume(request(ds, ctx, 2, 1, 3))
	if !errors.Is(err, ErrCannotRenderBrick) {
		t.Errorf("expected ErrCannotRenderBrick once nothing is left, got %v", err)
	}
	if len(m.Volumes()) != 0 || m.Budget().GPUUsed() != 0 {
		t.Errorf("expected every volume freed, got %v and %s", indices(m), m.Budget())
	}
}

func TestReplace(t *testing.T) {
	m := NewManager(Options{})
	ctx1 := gpu.NewSoft(1, 0)
	ctx2 := gpu.NewSoft(2, 0)
	ds := testDataset(t, "replace")

	h := mustGet(t, m, request(ds, ctx1, 0, 1, 1))
	mustGet(t, m, request(ds, ctx1, 0, 1, 2))

	if _, err := m.Replace(h, request(ds, ctx2, 1, 1, 3)); !errors.Is(err, ErrContextMismatch) {
		t.Fatalf("expected ErrContextMismatch, got %v", err)
	}
	if _, err := m.Volume(h); err != nil {
		t.Fatalf("failed replace invalidated handle: %v", err)
	}

	nh, err := m.Replace(h, request(ds, ctx1, 1, 1, 4))
	if err != nil {
		t.Fatalf("unable to replace: %v", err)
	}
	if _, err := m.Volume(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected old handle to be stale, got %v", err)
	}
	info, err := m.Volume(nh)
	if err != nil {
		t.Fatalf("bad volume: %v", err)
	}
	if info.Key.Index != 1 || info.Users != 1 {
		t.Errorf("expected brick 1 with 1 user, got %+v", info)
	}
	want, _ := ds.GetBrick(tuvok.BrickKey{Index: 1}, nil)
	if !bytes.Equal(ctx1.TextureData(info.Texture), want) {
		t.Errorf("texture doesn't hold brick 1")
	}

	// One release of the new handle leaves the volume unused and evictable.
	m.ReleaseVolume(nh)
	if info, _ := m.Volume(nh); info.Users != 0 {
		t.Errorf("expected no users after release, got %d", info.Users)
	}
	if st := m.Stats(); st.VolumesInUse != 0 {
		t.Errorf("expected no volumes in use, got %d", st.VolumesInUse)
	}
	if n := m.freeAllUnused(); n != 1 {
		t.Errorf("expected the replaced volume to be evictable, freed %d", n)
	}
	nh = mustGet(t, m, request(ds, ctx1, 1, 1, 5))

	// LOD 1 is the same 4x4x4 shape; a flag change is not.
	if _, err := m.Replace(nh, VolumeRequest{Dataset: ds, Key: tuvok.BrickKey{LOD: 1}, Context: ctx1, Frame: 1, IntraFrame: 6}); err != nil {
		t.Errorf("unable to replace with a coarser brick: %v", err)
	}
	if _, err := m.Replace(nh, request(ds, ctx1, 2, 1, 7)); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected stale handle error, got %v", err)
	}
}

func TestReleaseVolume(t *testing.T) {
	m := NewManager(Options{})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "release")

	h := mustGet(t, m, request(ds, ctx, 0, 1, 1))
	m.ReleaseVolume(h)
	m.ReleaseVolume(h)
	info, err := m.Volume(h)
	if err != nil {
		t.Fatalf("bad volume: %v", err)
	}
	if info.Users != 0 {
		t.Errorf("expected user count to stay at 0, got %d", info.Users)
	}
	m.ReleaseVolume(VolumeHandle{})
	if len(m.Volumes()) != 1 {
		t.Errorf("released volume should stay resident")
	}
}

func TestFrameCounters(t *testing.T) {
	m := NewManager(Options{})
	if f := m.NewFrame(); f != 1 {
		t.Errorf("expected frame 1, got %d", f)
	}
	m.Tick()
	f, i := m.Tick()
	if f != 1 || i != 2 {
		t.Errorf("expected (1, 2), got (%d, %d)", f, i)
	}
	m.NewFrame()
	if f, i := m.Tick(); f != 2 || i != 1 {
		t.Errorf("expected (2, 1), got (%d, %d)", f, i)
	}
}

func TestMemSizesChanged(t *testing.T) {
	info := &StaticSystemInfo{}
	m := NewManager(Options{SystemInfo: info})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "limits")

	for i := uint64(0); i < 4; i++ {
		m.ReleaseVolume(mustGet(t, m, request(ds, ctx, i, 1, i+1)))
	}
	held := mustGet(t, m, request(ds, ctx, 0, 2, 1))

	info.CPU = 2 * brickBytes
	m.MemSizesChanged()
	if got := indices(m); !sameIndices(got, 0, 3) {
		t.Errorf("expected the oldest unused volumes freed, got %v", got)
	}
	if _, err := m.Volume(held); err != nil {
		t.Errorf("in-use volume was freed: %v", err)
	}
	if m.Budget().CPULimit() != 2*brickBytes || m.Budget().CPUUsed() != 2*brickBytes {
		t.Errorf("bad budget after limit change: %s", m.Budget())
	}
}

type countingDataset struct {
	dataset.Dataset
	closed int
}

func (c *countingDataset) Close() error {
	c.closed++
	return nil
}

func filledDataset(t *testing.T, name string, value byte) *dataset.Memory {
	domain := tuvok.Vec3{8, 8, 8}
	data := bytes.Repeat([]byte{value}, int(domain.Volume()))
	ds, err := dataset.NewMemory(name, tuvok.T_uint8, 1, domain, tuvok.Vec3{4, 4, 4}, data)
	if err != nil {
		t.Fatalf("unable to build dataset: %v", err)
	}
	return ds
}

func TestSameNameDatasetsCachedApart(t *testing.T) {
	files := map[string]dataset.Dataset{
		"left/vol.raw":  filledDataset(t, "vol.raw", 1),
		"right/vol.raw": filledDataset(t, "vol.raw", 2),
	}
	m := NewManager(Options{Loader: func(filename string) (dataset.Dataset, error) {
		ds, found := files[filename]
		if !found {
			return nil, errors.New("no such dataset")
		}
		return ds, nil
	}})
	ctx := gpu.NewSoft(1, 0)

	a, err := m.LoadDataset("left/vol.raw", "left")
	if err != nil {
		t.Fatalf("unable to load: %v", err)
	}
	b, err := m.LoadDataset("right/vol.raw", "right")
	if err != nil {
		t.Fatalf("unable to load: %v", err)
	}
	if a.Name() != b.Name() {
		t.Fatalf("expected datasets with equal names, got %q and %q", a.Name(), b.Name())
	}

	ha := mustGet(t, m, request(a, ctx, 0, 1, 1))
	hb := mustGet(t, m, request(b, ctx, 0, 1, 2))
	for _, tc := range []struct {
		h    VolumeHandle
		want byte
	}{{ha, 1}, {hb, 2}} {
		info, err := m.Volume(tc.h)
		if err != nil {
			t.Fatalf("bad volume: %v", err)
		}
		if data := ctx.TextureData(info.Texture); len(data) == 0 || data[0] != tc.want {
			t.Errorf("expected texture of %s filled with %d, got %v", tc.h, tc.want, data)
		}
	}
	if n := m.bricks.Len(); n != 2 {
		t.Fatalf("expected one cached brick per dataset, got %d", n)
	}

	m.ReleaseVolume(ha)
	if err := m.FreeDataset(a, "left"); err != nil {
		t.Fatalf("bad free: %v", err)
	}
	if n := m.bricks.Len(); n != 1 {
		t.Errorf("freeing one dataset dropped the other's cached bricks, %d left", n)
	}
	if _, err := m.Volume(hb); err != nil {
		t.Errorf("volume of the remaining dataset was freed: %v", err)
	}
	m.ReleaseVolume(hb)
	if err := m.FreeDataset(b, "right"); err != nil {
		t.Fatalf("bad free: %v", err)
	}
	if n := m.bricks.Len(); n != 0 {
		t.Errorf("expected empty brick cache, got %d entries", n)
	}
	if err := m.Close(); err != nil {
		t.Errorf("bad close: %v", err)
	}
}

func TestDatasetSharing(t *testing.T) {
	var loads int
	ds := &countingDataset{Dataset: testDataset(t, "shared")}
	m := NewManager(Options{Loader: func(filename string) (dataset.Dataset, error) {
		if filename != "shared.db" {
			return nil, errors.New("no such dataset")
		}
		loads++
		return ds, nil
	}})
	ctx := gpu.NewSoft(1, 0)

	d1, err := m.LoadDataset("shared.db", "left")
	if err != nil {
		t.Fatalf("unable to load: %v", err)
	}
	d2, err := m.LoadDataset("shared.db", "right")
	if err != nil {
		t.Fatalf("unable to load: %v", err)
	}
	if d1 != d2 || loads != 1 {
		t.Fatalf("expected one shared dataset, got %d loads", loads)
	}
	if _, err := m.LoadDataset("missing.db", "left"); err == nil {
		t.Errorf("expected error loading missing dataset")
	}

	mustGet(t, m, request(d1, ctx, 0, 1, 1))
	mustGet(t, m, request(d1, ctx, 1, 1, 2))

	if err := m.FreeDataset(d1, "left"); err != nil {
		t.Fatalf("bad free: %v", err)
	}
	if ds.closed != 0 || len(m.Volumes()) != 2 {
		t.Fatalf("dataset freed while still requested")
	}
	if err := m.FreeDataset(d1, "right"); err != nil {
		t.Fatalf("bad free: %v", err)
	}
	if ds.closed != 1 || len(m.Volumes()) != 0 {
		t.Errorf("expected dataset closed and volumes freed, got %d closes and %d volumes", ds.closed, len(m.Volumes()))
	}
	if m.Budget().CPUUsed() != 0 || m.Budget().GPUUsed() != 0 {
		t.Errorf("bad accounting after free: %s", m.Budget())
	}
	if _, _, progs := ctx.Live(); progs != 0 {
		t.Errorf("unexpected programs")
	}
	if tex, _, _ := ctx.Live(); tex != 0 {
		t.Errorf("expected all textures deleted, got %d", tex)
	}

	// A third load reopens it.
	if _, err := m.LoadDataset("shared.db", "left"); err != nil || loads != 2 {
		t.Errorf("expected reload, got %d loads: %v", loads, err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("bad close: %v", err)
	}
	if ds.closed != 2 {
		t.Errorf("expected close to close leaked dataset, got %d closes", ds.closed)
	}
}

func TestStats(t *testing.T) {
	m := NewManager(Options{SystemInfo: StaticSystemInfo{GPU: tuvok.Mega}})
	ctx := gpu.NewSoft(1, 0)
	ds := testDataset(t, "stats")

	mustGet(t, m, request(ds, ctx, 0, 1, 1))
	m.ReleaseVolume(mustGet(t, m, request(ds, ctx, 1, 1, 2)))
	mustGet(t, m, request(ds, ctx, 1, 1, 3))
	mustGet(t, m, request(ds, ctx, 0, 1, 4))

	s := m.Stats()
	if s.Volumes != 2 || s.VolumesInUse != 2 {
		t.Errorf("bad volume counts: %+v", s)
	}
	if s.GPUUsed != 2*brickBytes || s.GPULimit != tuvok.Mega {
		t.Errorf("bad memory: %+v", s)
	}
	if s.BrickCache.Hits != 0 || s.BrickCache.Misses != 2 {
		t.Errorf("expected two brick cache misses, got %+v", s.BrickCache)
	}
	if s.Bookkeeping == 0 {
		t.Errorf("expected nonzero bookkeeping size")
	}
}
