package quantize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// chunkReader decodes a Source into typed chunks of bounded size.
type chunkReader[T number] struct {
	src       Source
	elemBytes int
	remaining uint64
	raw       []byte
	vals      []T
	rd        bytes.Reader
}

func newChunkReader[T number](src Source, elemBytes int, inCoreBytes, want uint64) *chunkReader[T] {
	if inCoreBytes == 0 {
		inCoreBytes = DefaultInCoreBytes
	}
	chunkElems := inCoreBytes / uint64(elemBytes)
	if chunkElems == 0 {
		chunkElems = 1
	}
	if want < chunkElems {
		chunkElems = want
	}
	if chunkElems == 0 {
		chunkElems = 1
	}
	return &chunkReader[T]{
		src:       src,
		elemBytes: elemBytes,
		remaining: want,
		raw:       make([]byte, chunkElems*uint64(elemBytes)),
		vals:      make([]T, chunkElems),
	}
}

// next returns the next chunk of values.  The returned slice is reused by the
// following call.  It returns io.EOF once the wanted count was read or the source
// ran dry.
func (c *chunkReader[T]) next() ([]T, error) {
	if c.remaining == 0 {
		return nil, io.EOF
	}
	n := uint64(len(c.vals))
	if c.remaining < n {
		n = c.remaining
	}
	got, err := io.ReadFull(c.src, c.raw[:n*uint64(c.elemBytes)])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	numVals := got / c.elemBytes
	if uint64(numVals) < n {
		c.remaining = 0
	} else {
		c.remaining -= n
	}
	if numVals == 0 {
		return nil, io.EOF
	}
	c.rd.Reset(c.raw[:numVals*c.elemBytes])
	vals := c.vals[:numVals]
	if err := binary.Read(&c.rd, binary.LittleEndian, vals); err != nil {
		return nil, err
	}
	return vals, nil
}
