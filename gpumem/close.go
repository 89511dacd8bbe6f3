package gpumem

import (
	"fmt"

	"github.com/DmitriyVTitov/size"

	"github.com/tuvok/tuvok/cache"
	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/tuvok"
)

// Stats summarizes the resources a Manager holds.
type Stats struct {
	Datasets     int
	Volumes      int
	VolumesInUse int
	Textures2D   int
	Trans1D      int
	Trans2D      int
	Framebuffers int
	Programs     int

	CPUUsed, CPULimit uint64
	GPUUsed, GPULimit uint64

	BrickCache cache.Stats

	// Bookkeeping is the approximate memory of the volume records themselves.
	Bookkeeping int
}

// Stats returns current resource counts and memory use.
func (m *Manager) Stats() Stats {
	s := Stats{
		Datasets:     len(m.datasets),
		Volumes:      m.volumes.live,
		Textures2D:   m.textures.len(),
		Trans1D:      len(m.trans1D),
		Trans2D:      len(m.trans2D),
		Framebuffers: len(m.fbos),
		Programs:     m.programs.len(),
		CPUUsed:      m.budget.CPUUsed(),
		CPULimit:     m.budget.CPULimit(),
		GPUUsed:      m.budget.GPUUsed(),
		GPULimit:     m.budget.GPULimit(),
		Bookkeeping:  size.Of(m.Volumes()),
	}
	m.volumes.each(func(_ uint32, r *volumeRecord) bool {
		if r.users > 0 {
			s.VolumesInUse++
		}
		return true
	})
	if m.bricks != nil {
		s.BrickCache = m.bricks.Stats()
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("%d datasets, %d volumes (%d in use), %d textures, %d+%d transfer functions, %d framebuffers, %d programs; CPU %s, GPU %s",
		s.Datasets, s.Volumes, s.VolumesInUse, s.Textures2D, s.Trans1D, s.Trans2D, s.Framebuffers, s.Programs,
		tuvok.ByteSize(s.CPUUsed), tuvok.ByteSize(s.GPUUsed))
}

// Close frees every resource still held, logging each as a leak, and closes all
// datasets.  It returns ErrAccountingMismatch if memory remains accounted for
// afterwards.
func (m *Manager) Close() error {
	var leaks int
	for _, e := range m.datasets {
		tuvok.Warningf("Leak: dataset %q still held by %v.\n", e.filename, e.requesters)
		leaks++
	}
	m.volumes.each(func(slot uint32, r *volumeRecord) bool {
		if r.users > 0 {
			tuvok.Warningf("Leak: %s.\n", r)
			leaks++
		}
		m.freeVolume(slot)
		return true
	})
	for _, e := range m.textures.drain() {
		tuvok.Warningf("Leak: texture %q with %d accesses.\n", e.value.Filename, e.count)
		m.deleteTexture2D(e.value)
		leaks++
	}
	for _, t := range m.trans1D {
		tuvok.Warningf("Leak: 1D %s held by %v.\n", t.name(), t.requesters)
		m.deleteTrans(&t.transTexture)
		leaks++
	}
	m.trans1D = nil
	for _, t := range m.trans2D {
		tuvok.Warningf("Leak: 2D %s held by %v.\n", t.name(), t.requesters)
		m.deleteTrans(&t.transTexture)
		leaks++
	}
	m.trans2D = nil
	for _, fb := range m.fbos {
		tuvok.Warningf("Leak: %s.\n", fb)
		m.deleteFBO(fb)
		leaks++
	}
	m.fbos = nil
	for _, e := range m.programs.drain() {
		tuvok.Warningf("Leak: %s with %d accesses.\n", e.value, e.count)
		m.deleteProgram(e.value)
		leaks++
	}

	var closeErr error
	for _, e := range m.datasets {
		m.forgetDataset(e.ds)
		if err := e.ds.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("unable to close dataset %q: %w", e.filename, err)
		}
	}
	m.datasets = nil
	if m.bricks != nil {
		m.bricks.Clear()
	}
	m.dsIDs = make(map[dataset.Dataset]cache.DatasetID)

	if m.budget.CPUUsed() != 0 || m.budget.GPUUsed() != 0 {
		tuvok.Criticalf("Memory accounting mismatch at shutdown: %s\n", m.budget)
		return fmt.Errorf("%s after freeing everything: %w", m.budget, ErrAccountingMismatch)
	}
	if leaks > 0 {
		tuvok.Warningf("Memory manager shut down with %d leaked resources.\n", leaks)
	} else {
		tuvok.Infof("Memory manager shut down cleanly.\n")
	}
	return closeErr
}
