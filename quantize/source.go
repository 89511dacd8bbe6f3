package quantize

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/tuvok/tuvok/tuvok"
)

// DefaultInCoreBytes bounds chunk reads when no in-core size is configured.
const DefaultInCoreBytes = 64 * tuvok.Mega

// Source is a restartable stream of little-endian element values.
type Source interface {
	io.Reader

	// Size returns the number of elements the source declares.
	Size() uint64

	// Rewind positions the source at its first element.
	Rewind() error
}

// FileSource reads elements from a raw file, optionally skipping a header.
type FileSource struct {
	f        *os.File
	filename string
	skip     int64
	size     uint64
}

// NewFileSource opens a raw file of elements of type t.  The first headerSkip bytes
// are ignored and the declared size is the number of whole elements after them.
func NewFileSource(filename string, headerSkip uint64, t tuvok.DataType) (*FileSource, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("bad data type %s for %q", t, filename)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open source %q: %w", filename, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to stat source %q: %w", filename, err)
	}
	var size uint64
	if uint64(fi.Size()) > headerSkip {
		size = (uint64(fi.Size()) - headerSkip) / uint64(t.Bytes())
	}
	src := &FileSource{
		f:        f,
		filename: filename,
		skip:     int64(headerSkip),
		size:     size,
	}
	if err := src.Rewind(); err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func (s *FileSource) Read(p []byte) (int, error) {
	return s.f.Read(p)
}

func (s *FileSource) Size() uint64 {
	return s.size
}

func (s *FileSource) Rewind() error {
	if _, err := s.f.Seek(s.skip, io.SeekStart); err != nil {
		return fmt.Errorf("unable to rewind %q: %w", s.filename, err)
	}
	return nil
}

// Filename returns the file being read.
func (s *FileSource) Filename() string {
	return s.filename
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

// BytesSource reads elements from an in-memory buffer.
type BytesSource struct {
	r    *bytes.Reader
	size uint64
}

// NewBytesSource returns a source over b holding elements of type t.
func NewBytesSource(b []byte, t tuvok.DataType) *BytesSource {
	return &BytesSource{
		r:    bytes.NewReader(b),
		size: uint64(len(b) / t.Bytes()),
	}
}

// NewDeclaredBytesSource returns a source over b that declares the given number of
// elements regardless of how many b actually holds.
func NewDeclaredBytesSource(b []byte, declared uint64) *BytesSource {
	return &BytesSource{
		r:    bytes.NewReader(b),
		size: declared,
	}
}

func (s *BytesSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *BytesSource) Size() uint64 {
	return s.size
}

func (s *BytesSource) Rewind() error {
	_, err := s.r.Seek(0, io.SeekStart)
	return err
}
