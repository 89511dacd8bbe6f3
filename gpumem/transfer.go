package gpumem

import (
	"fmt"

	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/transfer"
	"github.com/tuvok/tuvok/tuvok"
)

// transTexture is the GPU side of a transfer function.
type transTexture struct {
	// Filename is empty for functions not loaded from a file.
	Filename string
	Context  gpu.Context
	Texture  gpu.TextureHandle

	desc       gpu.TextureDesc
	requesters []Requester
}

// Trans1D is a 1D transfer function and its texture.
type Trans1D struct {
	transTexture
	TF *transfer.TF1D
}

// Trans2D is a 2D transfer function and its texture.
type Trans2D struct {
	transTexture
	TF *transfer.TF2D
}

func (t *transTexture) name() string {
	if t.Filename == "" {
		return fmt.Sprintf("transfer function texture %d", t.Texture)
	}
	return fmt.Sprintf("transfer function %q", t.Filename)
}

// upload creates the texture or, if it exists with the same shape, overwrites it.
func (m *Manager) upload(t *transTexture, desc gpu.TextureDesc, data []byte) error {
	if t.Texture != 0 {
		if t.desc == desc {
			return t.Context.UpdateTexture(t.Texture, data)
		}
		m.deleteTrans(t)
	}
	err := m.allocate(t.name(), desc.Bytes(), func() (err error) {
		t.Texture, err = t.Context.CreateTexture(desc, data)
		return
	})
	if err != nil {
		return err
	}
	t.desc = desc
	m.budget.addGPU(desc.Bytes())
	return nil
}

func (m *Manager) deleteTrans(t *transTexture) {
	if err := t.Context.DeleteTexture(t.Texture); err != nil {
		tuvok.Errorf("Unable to delete %s: %v\n", t.name(), err)
	}
	m.budget.freeGPU(t.desc.Bytes())
	t.Texture = 0
	t.desc = gpu.TextureDesc{}
}

// removeRequester drops one occurrence of req and returns true if none are left.
func (t *transTexture) removeRequester(req Requester) (last, found bool) {
	for i, r := range t.requesters {
		if r == req {
			t.requesters = append(t.requesters[:i], t.requesters[i+1:]...)
			return len(t.requesters) == 0, true
		}
	}
	return false, false
}

func desc1D(tf *transfer.TF1D) gpu.TextureDesc {
	return gpu.TextureDesc{Dims: 1, Size: tuvok.Vec3{uint64(tf.Size()), 1, 1}, Type: tuvok.T_uint8, Components: 4}
}

func desc2D(tf *transfer.TF2D) gpu.TextureDesc {
	return gpu.TextureDesc{Dims: 2, Size: tuvok.Vec3{uint64(tf.Width), uint64(tf.Height), 1}, Type: tuvok.T_uint8, Components: 4}
}

// GetEmpty1DTrans returns a new transfer function of size entries for req.
func (m *Manager) GetEmpty1DTrans(ctx gpu.Context, size int, req Requester) (*Trans1D, error) {
	t := &Trans1D{TF: transfer.New1D(size)}
	t.Context = ctx
	if err := m.upload(&t.transTexture, desc1D(t.TF), t.TF.RGBA8()); err != nil {
		return nil, err
	}
	t.requesters = []Requester{req}
	m.trans1D = append(m.trans1D, t)
	return t, nil
}

// Get1DTransFromFile returns the transfer function stored in filename, sharing
// it with earlier requests for the same file and context.
func (m *Manager) Get1DTransFromFile(ctx gpu.Context, filename string, req Requester) (*Trans1D, error) {
	for _, t := range m.trans1D {
		if t.Filename == filename && t.Context.ID() == ctx.ID() {
			t.requesters = append(t.requesters, req)
			return t, nil
		}
	}
	tf, err := transfer.Load1DFile(filename)
	if err != nil {
		return nil, err
	}
	t := &Trans1D{TF: tf}
	t.Filename = filename
	t.Context = ctx
	if err := m.upload(&t.transTexture, desc1D(tf), tf.RGBA8()); err != nil {
		return nil, err
	}
	t.requesters = []Requester{req}
	m.trans1D = append(m.trans1D, t)
	return t, nil
}

// Changed1DTrans uploads the current contents of t.TF.
func (m *Manager) Changed1DTrans(t *Trans1D) error {
	return m.upload(&t.transTexture, desc1D(t.TF), t.TF.RGBA8())
}

// Free1DTrans removes req from the requesters of t, deleting it after the last.
func (m *Manager) Free1DTrans(t *Trans1D, req Requester) {
	last, found := t.removeRequester(req)
	if !found {
		tuvok.Warningf("Requester %q freeing %s it never requested.\n", req, t.name())
		return
	}
	if !last {
		return
	}
	for i, o := range m.trans1D {
		if o == t {
			m.trans1D = append(m.trans1D[:i], m.trans1D[i+1:]...)
			break
		}
	}
	m.deleteTrans(&t.transTexture)
}

// GetEmpty2DTrans returns a new width x height transfer function for req.
func (m *Manager) GetEmpty2DTrans(ctx gpu.Context, width, height int, req Requester) (*Trans2D, error) {
	t := &Trans2D{TF: transfer.New2D(width, height)}
	t.Context = ctx
	if err := m.upload(&t.transTexture, desc2D(t.TF), t.TF.RGBA8()); err != nil {
		return nil, err
	}
	t.requesters = []Requester{req}
	m.trans2D = append(m.trans2D, t)
	return t, nil
}

// Get2DTransFromFile returns the transfer function stored in filename, sharing
// it with earlier requests for the same file and context.
func (m *Manager) Get2DTransFromFile(ctx gpu.Context, filename string, req Requester) (*Trans2D, error) {
	for _, t := range m.trans2D {
		if t.Filename == filename && t.Context.ID() == ctx.ID() {
			t.requesters = append(t.requesters, req)
			return t, nil
		}
	}
	tf, err := transfer.Load2DFile(filename)
	if err != nil {
		return nil, err
	}
	t := &Trans2D{TF: tf}
	t.Filename = filename
	t.Context = ctx
	if err := m.upload(&t.transTexture, desc2D(tf), tf.RGBA8()); err != nil {
		return nil, err
	}
	t.requesters = []Requester{req}
	m.trans2D = append(m.trans2D, t)
	return t, nil
}

// Changed2DTrans uploads the current contents of t.TF.
func (m *Manager) Changed2DTrans(t *Trans2D) error {
	return m.upload(&t.transTexture, desc2D(t.TF), t.TF.RGBA8())
}

// Free2DTrans removes req from the requesters of t, deleting it after the last.
func (m *Manager) Free2DTrans(t *Trans2D, req Requester) {
	last, found := t.removeRequester(req)
	if !found {
		tuvok.Warningf("Requester %q freeing %s it never requested.\n", req, t.name())
		return
	}
	if !last {
		return
	}
	for i, o := range m.trans2D {
		if o == t {
			m.trans2D = append(m.trans2D[:i], m.trans2D[i+1:]...)
			break
		}
	}
	m.deleteTrans(&t.transTexture)
}
