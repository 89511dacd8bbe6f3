package gpu

import (
	"fmt"
	"strings"

	"github.com/tuvok/tuvok/tuvok"
)

// SoftCounters count the calls a Soft context served.
type SoftCounters struct {
	TexturesCreated uint64
	TextureUpdates  uint64
	TexturesDeleted uint64
	Framebuffers    uint64
	Programs        uint64
	OutOfMemory     uint64
}

type softTexture struct {
	desc TextureDesc
	data []byte
}

// Soft is a Context that keeps resources in host memory with a fixed device
// capacity.  It runs without a display and is used by tests and simulations.
type Soft struct {
	id       ContextID
	capacity uint64
	used     uint64

	// failNext forces the next n allocations to fail with ErrOutOfMemory.
	failNext int

	nextHandle   uint64
	textures     map[TextureHandle]*softTexture
	framebuffers map[FramebufferHandle]FramebufferDesc
	programs     map[ProgramHandle]uint64

	counters SoftCounters
}

// NewSoft returns a software context with the given device memory.  A capacity
// of 0 means unlimited.
func NewSoft(id ContextID, capacity uint64) *Soft {
	return &Soft{
		id:           id,
		capacity:     capacity,
		textures:     make(map[TextureHandle]*softTexture),
		framebuffers: make(map[FramebufferHandle]FramebufferDesc),
		programs:     make(map[ProgramHandle]uint64),
	}
}

func (s *Soft) ID() ContextID {
	return s.id
}

// FailNext makes the next n allocations fail with ErrOutOfMemory regardless of
// free memory.
func (s *Soft) FailNext(n int) {
	s.failNext = n
}

func (s *Soft) reserve(n uint64, what string) error {
	if s.failNext > 0 {
		s.failNext--
		s.counters.OutOfMemory++
		return fmt.Errorf("context %d allocating %s: %w", s.id, what, ErrOutOfMemory)
	}
	if s.capacity != 0 && s.used+n > s.capacity {
		s.counters.OutOfMemory++
		return fmt.Errorf("context %d allocating %s with %s of %s used: %w",
			s.id, tuvok.ByteSize(n), tuvok.ByteSize(s.used), tuvok.ByteSize(s.capacity), ErrOutOfMemory)
	}
	s.used += n
	return nil
}

func (s *Soft) handle() uint64 {
	s.nextHandle++
	return s.nextHandle
}

func (s *Soft) CreateTexture(desc TextureDesc, data []byte) (TextureHandle, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}
	if data != nil && uint64(len(data)) != desc.Bytes() {
		return 0, fmt.Errorf("%s needs %d bytes, got %d", desc, desc.Bytes(), len(data))
	}
	if err := s.reserve(desc.Bytes(), desc.String()); err != nil {
		return 0, err
	}
	tex := &softTexture{desc: desc, data: make([]byte, desc.Bytes())}
	copy(tex.data, data)
	h := TextureHandle(s.handle())
	s.textures[h] = tex
	s.counters.TexturesCreated++
	return h, nil
}

func (s *Soft) UpdateTexture(h TextureHandle, data []byte) error {
	tex, found := s.textures[h]
	if !found {
		return fmt.Errorf("context %d has no texture %d", s.id, h)
	}
	if uint64(len(data)) != tex.desc.Bytes() {
		return fmt.Errorf("update of %s needs %d bytes, got %d", tex.desc, tex.desc.Bytes(), len(data))
	}
	copy(tex.data, data)
	s.counters.TextureUpdates++
	return nil
}

func (s *Soft) DeleteTexture(h TextureHandle) error {
	tex, found := s.textures[h]
	if !found {
		return fmt.Errorf("context %d has no texture %d", s.id, h)
	}
	s.used -= tex.desc.Bytes()
	delete(s.textures, h)
	s.counters.TexturesDeleted++
	return nil
}

// TextureData returns the contents of a texture, or nil if it doesn't exist.
func (s *Soft) TextureData(h TextureHandle) []byte {
	if tex, found := s.textures[h]; found {
		return tex.data
	}
	return nil
}

func (s *Soft) CreateFramebuffer(desc FramebufferDesc) (FramebufferHandle, error) {
	if desc.Width == 0 || desc.Height == 0 || desc.Buffers == 0 {
		return 0, fmt.Errorf("cannot create empty %s", desc)
	}
	if err := s.reserve(desc.Bytes(), desc.String()); err != nil {
		return 0, err
	}
	h := FramebufferHandle(s.handle())
	s.framebuffers[h] = desc
	s.counters.Framebuffers++
	return h, nil
}

func (s *Soft) DeleteFramebuffer(h FramebufferHandle) error {
	desc, found := s.framebuffers[h]
	if !found {
		return fmt.Errorf("context %d has no framebuffer %d", s.id, h)
	}
	s.used -= desc.Bytes()
	delete(s.framebuffers, h)
	return nil
}

// CreateProgram accepts any non-empty sources.  A source containing "#error" fails
// to compile.  Programs take no device memory.
func (s *Soft) CreateProgram(vertex, fragment []string) (ProgramHandle, error) {
	if len(vertex) == 0 || len(fragment) == 0 {
		return 0, fmt.Errorf("program needs vertex and fragment shaders, got %d and %d", len(vertex), len(fragment))
	}
	for _, src := range append(append([]string{}, vertex...), fragment...) {
		if strings.TrimSpace(src) == "" {
			return 0, fmt.Errorf("empty shader source")
		}
		if strings.Contains(src, "#error") {
			return 0, fmt.Errorf("shader failed to compile: %s", firstLine(src))
		}
	}
	h := ProgramHandle(s.handle())
	s.programs[h] = uint64(len(vertex) + len(fragment))
	s.counters.Programs++
	return h, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Soft) DeleteProgram(h ProgramHandle) error {
	if _, found := s.programs[h]; !found {
		return fmt.Errorf("context %d has no program %d", s.id, h)
	}
	delete(s.programs, h)
	return nil
}

// Used returns the device memory in use.
func (s *Soft) Used() uint64 {
	return s.used
}

// Live returns the number of textures, framebuffers and programs alive.
func (s *Soft) Live() (textures, framebuffers, programs int) {
	return len(s.textures), len(s.framebuffers), len(s.programs)
}

func (s *Soft) Counters() SoftCounters {
	return s.counters
}
