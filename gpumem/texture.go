package gpumem

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

type textureKey struct {
	filename string
	ctx      gpu.ContextID
}

// Texture2D is an RGBA8 texture loaded from an image file.
type Texture2D struct {
	Filename string
	Context  gpu.Context
	Texture  gpu.TextureHandle
	Desc     gpu.TextureDesc
}

// loadRGBA decodes a PNG, JPEG, GIF, BMP or TIFF file into 8-bit RGBA texels.
func loadRGBA(filename string) (*image.RGBA, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open image %q: %w", filename, err)
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("unable to decode image %q: %w", filename, err)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	tuvok.Debugf("Decoded %s image %q of %dx%d.\n", format, filename, b.Dx(), b.Dy())
	return rgba, nil
}

// Load2DTextureFromFile returns the texture of an image file in ctx, sharing it
// with earlier requests for the same file and context.
func (m *Manager) Load2DTextureFromFile(ctx gpu.Context, filename string) (*Texture2D, error) {
	key := textureKey{filename: filename, ctx: ctx.ID()}
	return m.textures.acquire(key, func() (*Texture2D, error) {
		rgba, err := loadRGBA(filename)
		if err != nil {
			return nil, err
		}
		b := rgba.Bounds()
		t := &Texture2D{
			Filename: filename,
			Context:  ctx,
			Desc: gpu.TextureDesc{
				Dims:       2,
				Size:       tuvok.Vec3{uint64(b.Dx()), uint64(b.Dy()), 1},
				Type:       tuvok.T_uint8,
				Components: 4,
			},
		}
		err = m.allocate(fmt.Sprintf("texture %q", filename), t.Desc.Bytes(), func() (err error) {
			t.Texture, err = ctx.CreateTexture(t.Desc, rgba.Pix)
			return
		})
		if err != nil {
			return nil, err
		}
		m.budget.addGPU(t.Desc.Bytes())
		return t, nil
	})
}

// Free2DTexture releases one access to t, deleting it after the last.
func (m *Manager) Free2DTexture(t *Texture2D) {
	last, found := m.textures.release(t)
	if !found {
		tuvok.Warningf("Freeing unknown texture %q.\n", t.Filename)
		return
	}
	if last {
		m.deleteTexture2D(t)
	}
}

func (m *Manager) deleteTexture2D(t *Texture2D) {
	if err := t.Context.DeleteTexture(t.Texture); err != nil {
		tuvok.Errorf("Unable to delete texture %q: %v\n", t.Filename, err)
	}
	m.budget.freeGPU(t.Desc.Bytes())
}
