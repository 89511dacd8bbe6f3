package gpumem

import (
	"fmt"
	"os"
	"strings"

	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/tuvok"
)

type programKey struct {
	ctx   gpu.ContextID
	files string
}

// Program is a linked shader program.
type Program struct {
	Vertex, Fragment []string
	Context          gpu.Context
	Handle           gpu.ProgramHandle
}

func (p *Program) String() string {
	return fmt.Sprintf("program %v + %v in context %d", p.Vertex, p.Fragment, p.Context.ID())
}

func readSources(filenames []string) ([]string, error) {
	sources := make([]string, len(filenames))
	for i, fn := range filenames {
		b, err := os.ReadFile(fn)
		if err != nil {
			return nil, fmt.Errorf("unable to read shader %q: %w", fn, err)
		}
		sources[i] = string(b)
	}
	return sources, nil
}

// GetProgram returns the program built from the given shader files in ctx,
// sharing it with earlier requests for the same files and context.
func (m *Manager) GetProgram(ctx gpu.Context, vertexFiles, fragmentFiles []string) (*Program, error) {
	key := programKey{
		ctx:   ctx.ID(),
		files: strings.Join(vertexFiles, "\x00") + "\x01" + strings.Join(fragmentFiles, "\x00"),
	}
	return m.programs.acquire(key, func() (*Program, error) {
		vs, err := readSources(vertexFiles)
		if err != nil {
			return nil, err
		}
		fs, err := readSources(fragmentFiles)
		if err != nil {
			return nil, err
		}
		h, err := ctx.CreateProgram(vs, fs)
		if err != nil {
			return nil, fmt.Errorf("unable to build program from %v and %v: %w", vertexFiles, fragmentFiles, err)
		}
		p := &Program{Vertex: vertexFiles, Fragment: fragmentFiles, Context: ctx, Handle: h}
		tuvok.Debugf("Built %s.\n", p)
		return p, nil
	})
}

// FreeProgram releases one access to p, deleting it after the last.
func (m *Manager) FreeProgram(p *Program) {
	last, found := m.programs.release(p)
	if !found {
		tuvok.Warningf("Freeing unknown %s.\n", p)
		return
	}
	if last {
		m.deleteProgram(p)
	}
}

func (m *Manager) deleteProgram(p *Program) {
	if err := p.Context.DeleteProgram(p.Handle); err != nil {
		tuvok.Errorf("Unable to delete %s: %v\n", p, err)
	}
}
