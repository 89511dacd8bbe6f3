/*
	Package gpu abstracts the graphics context the memory manager allocates
	textures, framebuffers and shader programs in.

	Contexts are bound to one thread.  Implementations report exhausted device
	memory by returning ErrOutOfMemory so callers can free resources and retry.
*/
package gpu

import (
	"errors"
	"fmt"

	"github.com/tuvok/tuvok/tuvok"
)

// ErrOutOfMemory is returned when the device cannot hold a new resource.
var ErrOutOfMemory = errors.New("out of GPU memory")

// ContextID identifies a graphics context.
type ContextID uint64

type (
	TextureHandle     uint64
	FramebufferHandle uint64
	ProgramHandle     uint64
)

// TextureDesc describes the shape and texel format of a texture.
type TextureDesc struct {
	// Dims is 1, 2 or 3.  Unused axes of Size are 1.
	Dims       int
	Size       tuvok.Vec3
	Type       tuvok.DataType
	Components uint
}

// Bytes returns the memory a texture of this shape occupies.
func (d TextureDesc) Bytes() uint64 {
	return d.Size.Volume() * uint64(d.Type.Bytes()) * uint64(d.Components)
}

func (d TextureDesc) String() string {
	return fmt.Sprintf("%dD %s texture of %s x%d", d.Dims, d.Size, d.Type, d.Components)
}

// Validate checks the descriptor is usable.
func (d TextureDesc) Validate() error {
	if d.Dims < 1 || d.Dims > 3 {
		return fmt.Errorf("texture must have 1 to 3 dimensions, not %d", d.Dims)
	}
	if d.Size.Volume() == 0 {
		return fmt.Errorf("texture size %s is empty", d.Size)
	}
	if !d.Type.Valid() || d.Components == 0 || d.Components > 4 {
		return fmt.Errorf("bad texel format %s x%d", d.Type, d.Components)
	}
	return nil
}

// FramebufferDesc describes an offscreen render target.
type FramebufferDesc struct {
	Width, Height uint64
	Type          tuvok.DataType
	Components    uint

	// Buffers is the number of color attachments.
	Buffers uint
	Depth   bool
}

// Bytes returns the memory of all attachments.
func (d FramebufferDesc) Bytes() uint64 {
	n := d.Width * d.Height * uint64(d.Type.Bytes()) * uint64(d.Components) * uint64(d.Buffers)
	if d.Depth {
		n += d.Width * d.Height * 4
	}
	return n
}

func (d FramebufferDesc) String() string {
	return fmt.Sprintf("%dx%d framebuffer of %s x%d, %d buffers, depth %t",
		d.Width, d.Height, d.Type, d.Components, d.Buffers, d.Depth)
}

// Context is a graphics context.
type Context interface {
	ID() ContextID

	// CreateTexture allocates a texture and uploads data, which must hold
	// desc.Bytes() bytes.
	CreateTexture(desc TextureDesc, data []byte) (TextureHandle, error)

	// UpdateTexture overwrites the contents of a texture in place.
	UpdateTexture(h TextureHandle, data []byte) error

	DeleteTexture(h TextureHandle) error

	CreateFramebuffer(desc FramebufferDesc) (FramebufferHandle, error)
	DeleteFramebuffer(h FramebufferHandle) error

	// CreateProgram compiles and links shader sources.
	CreateProgram(vertex, fragment []string) (ProgramHandle, error)
	DeleteProgram(h ProgramHandle) error
}
