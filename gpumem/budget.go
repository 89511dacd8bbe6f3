package gpumem

import (
	"fmt"

	"github.com/tuvok/tuvok/tuvok"
)

// SystemInfo reports how much memory the manager may use.
type SystemInfo interface {
	MaxUsableCPUMemory() uint64
	MaxUsableGPUMemory() uint64
}

// StaticSystemInfo is a SystemInfo with fixed limits.
type StaticSystemInfo struct {
	CPU, GPU uint64
}

func (s StaticSystemInfo) MaxUsableCPUMemory() uint64 { return s.CPU }
func (s StaticSystemInfo) MaxUsableGPUMemory() uint64 { return s.GPU }

// MemoryBudget tracks bytes committed to CPU staging and GPU resources against
// their limits.  A limit of 0 means unlimited.
type MemoryBudget struct {
	cpuUsed, gpuUsed   uint64
	cpuLimit, gpuLimit uint64
}

// NewMemoryBudget returns an empty budget with the limits of info.
func NewMemoryBudget(info SystemInfo) *MemoryBudget {
	b := &MemoryBudget{}
	b.SetLimits(info)
	return b
}

// SetLimits re-reads the limits from info.
func (b *MemoryBudget) SetLimits(info SystemInfo) {
	if info == nil {
		b.cpuLimit, b.gpuLimit = 0, 0
		return
	}
	b.cpuLimit = info.MaxUsableCPUMemory()
	b.gpuLimit = info.MaxUsableGPUMemory()
}

func (b *MemoryBudget) CPUUsed() uint64  { return b.cpuUsed }
func (b *MemoryBudget) GPUUsed() uint64  { return b.gpuUsed }
func (b *MemoryBudget) CPULimit() uint64 { return b.cpuLimit }
func (b *MemoryBudget) GPULimit() uint64 { return b.gpuLimit }

// FitsCPU returns true if n more bytes stay within the CPU limit.
func (b *MemoryBudget) FitsCPU(n uint64) bool {
	return b.cpuLimit == 0 || b.cpuUsed+n <= b.cpuLimit
}

// FitsGPU returns true if n more bytes stay within the GPU limit.
func (b *MemoryBudget) FitsGPU(n uint64) bool {
	return b.gpuLimit == 0 || b.gpuUsed+n <= b.gpuLimit
}

// OverLimit returns true if either counter exceeds its limit.
func (b *MemoryBudget) OverLimit() bool {
	return (b.cpuLimit != 0 && b.cpuUsed > b.cpuLimit) || (b.gpuLimit != 0 && b.gpuUsed > b.gpuLimit)
}

func (b *MemoryBudget) addCPU(n uint64) { b.cpuUsed += n }
func (b *MemoryBudget) addGPU(n uint64) { b.gpuUsed += n }

func (b *MemoryBudget) freeCPU(n uint64) {
	if n > b.cpuUsed {
		tuvok.Errorf("Freeing %s of CPU memory with only %s accounted for.\n", tuvok.ByteSize(n), tuvok.ByteSize(b.cpuUsed))
		b.cpuUsed = 0
		return
	}
	b.cpuUsed -= n
}

func (b *MemoryBudget) freeGPU(n uint64) {
	if n > b.gpuUsed {
		tuvok.Errorf("Freeing %s of GPU memory with only %s accounted for.\n", tuvok.ByteSize(n), tuvok.ByteSize(b.gpuUsed))
		b.gpuUsed = 0
		return
	}
	b.gpuUsed -= n
}

func limitString(n uint64) string {
	if n == 0 {
		return "unlimited"
	}
	return tuvok.ByteSize(n)
}

func (b *MemoryBudget) String() string {
	return fmt.Sprintf("CPU %s of %s, GPU %s of %s", tuvok.ByteSize(b.cpuUsed), limitString(b.cpuLimit),
		tuvok.ByteSize(b.gpuUsed), limitString(b.gpuLimit))
}
