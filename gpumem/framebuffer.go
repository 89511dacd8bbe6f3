package gpumem

import (
	"fmt"

	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

// Framebuffer is an offscreen render target.  Framebuffers are never shared.
type Framebuffer struct {
	Context gpu.Context
	Handle  gpu.FramebufferHandle
	Desc    gpu.FramebufferDesc
}

// GetFBO creates a framebuffer in ctx, freeing volumes if memory is short.
func (m *Manager) GetFBO(ctx gpu.Context, desc gpu.FramebufferDesc) (*Framebuffer, error) {
	fb := &Framebuffer{Context: ctx, Desc: desc}
	err := m.allocate(desc.String(), desc.Bytes(), func() (err error) {
		fb.Handle, err = ctx.CreateFramebuffer(desc)
		return
	})
	if err != nil {
		return nil, err
	}
	m.budget.addGPU(desc.Bytes())
	m.fbos = append(m.fbos, fb)
	return fb, nil
}

// FreeFBO deletes a framebuffer.
func (m *Manager) FreeFBO(fb *Framebuffer) {
	for i, f := range m.fbos {
		if f == fb {
			m.fbos = append(m.fbos[:i], m.fbos[i+1:]...)
			m.deleteFBO(fb)
			return
		}
	}
	tuvok.Warningf("Freeing unknown %s.\n", fb.Desc)
}

func (m *Manager) deleteFBO(fb *Framebuffer) {
	if err := fb.Context.DeleteFramebuffer(fb.Handle); err != nil {
		tuvok.Errorf("Unable to delete %s: %v\n", fb.Desc, err)
	}
	m.budget.freeGPU(fb.Desc.Bytes())
}

func (fb *Framebuffer) String() string {
	return fmt.Sprintf("%s in context %d", fb.Desc, fb.Context.ID())
}
