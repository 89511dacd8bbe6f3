/*
	Package storage persists bricked volumes in a key-value engine.

	Values are simply []byte at the engine level.  A BrickStore lays out two key
	spaces on top of an engine: a single metadata record describing the volume and
	one record per brick holding serialized (optionally compressed) voxel data.
*/
package storage

import (
	"errors"
	"fmt"

	"github.com/blang/semver"

	"github.com/tuvok/tuvok/tuvok"
)

// Version is the brick store format written by this package.  Stores with a
// different major version cannot be opened.
var Version = semver.MustParse("1.0.0")

// ErrNotFound is returned when a requested brick or metadata record does not exist.
var ErrNotFound = errors.New("not found in store")

// Engine is a simple key-value backend.  Get returns a nil value and nil error
// for a missing key.
type Engine interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// KeysWithPrefix returns all keys starting with prefix in ascending order.
	KeysWithPrefix(prefix []byte) ([][]byte, error)

	Close() error
	String() string
}

const (
	metadataPrefix byte = 0x01
	brickPrefix    byte = 0x02
)

func metadataKey() []byte {
	return []byte{metadataPrefix}
}

func brickKey(k tuvok.BrickKey) []byte {
	return append([]byte{brickPrefix}, k.Bytes()...)
}

// BrickStore reads and writes the bricks of one volume.
type BrickStore struct {
	eng  Engine
	meta Metadata
}

// Create initializes a store on eng with the given metadata, replacing any
// metadata already present.  The format version is set by Create.
func Create(eng Engine, meta Metadata) (*BrickStore, error) {
	if !meta.Type.Valid() {
		return nil, fmt.Errorf("cannot create brick store with data type %s", meta.Type)
	}
	if meta.Components == 0 {
		meta.Components = 1
	}
	if meta.Timesteps == 0 {
		meta.Timesteps = 1
	}
	meta.Version = Version
	b, err := meta.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	if err := eng.Put(metadataKey(), b); err != nil {
		return nil, fmt.Errorf("unable to write metadata to %s: %w", eng, err)
	}
	return &BrickStore{eng: eng, meta: meta}, nil
}

// Open returns the store held by eng.
func Open(eng Engine) (*BrickStore, error) {
	b, err := eng.Get(metadataKey())
	if err != nil {
		return nil, fmt.Errorf("unable to read metadata from %s: %w", eng, err)
	}
	if b == nil {
		return nil, fmt.Errorf("no brick store metadata in %s: %w", eng, ErrNotFound)
	}
	var meta Metadata
	if _, err := meta.UnmarshalMsg(b); err != nil {
		return nil, fmt.Errorf("bad brick store metadata in %s: %w", eng, err)
	}
	if meta.Version.Major != Version.Major {
		return nil, fmt.Errorf("brick store %s has format %s, cannot read with format %s", eng, meta.Version, Version)
	}
	if meta.Version.GT(Version) {
		tuvok.Warningf("Brick store %s was written with newer format %s than %s.\n", eng, meta.Version, Version)
	}
	return &BrickStore{eng: eng, meta: meta}, nil
}

// Metadata returns the volume description.
func (s *BrickStore) Metadata() Metadata {
	return s.meta
}

// PutBrick serializes and stores the voxels of a brick.
func (s *BrickStore) PutBrick(k tuvok.BrickKey, data []byte) error {
	v, err := tuvok.SerializeData(data, s.meta.Compression, s.meta.Checksum)
	if err != nil {
		return fmt.Errorf("unable to serialize brick %s: %w", k, err)
	}
	return s.eng.Put(brickKey(k), v)
}

// GetBrick returns the voxels of a brick.
func (s *BrickStore) GetBrick(k tuvok.BrickKey) ([]byte, error) {
	v, err := s.eng.Get(brickKey(k))
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("brick %s: %w", k, ErrNotFound)
	}
	data, _, err := tuvok.DeserializeData(v, true)
	if err != nil {
		return nil, fmt.Errorf("unable to deserialize brick %s: %w", k, err)
	}
	return data, nil
}

// DeleteBrick removes a brick.
func (s *BrickStore) DeleteBrick(k tuvok.BrickKey) error {
	return s.eng.Delete(brickKey(k))
}

// BrickKeys returns the keys of all stored bricks in key order.
func (s *BrickStore) BrickKeys() ([]tuvok.BrickKey, error) {
	keys, err := s.eng.KeysWithPrefix([]byte{brickPrefix})
	if err != nil {
		return nil, err
	}
	bks := make([]tuvok.BrickKey, 0, len(keys))
	for _, key := range keys {
		bk, err := tuvok.BrickKeyFromBytes(key[1:])
		if err != nil {
			return nil, fmt.Errorf("bad brick key %x in %s: %w", key, s.eng, err)
		}
		bks = append(bks, bk)
	}
	return bks, nil
}

// Close closes the underlying engine.
func (s *BrickStore) Close() error {
	return s.eng.Close()
}

func (s *BrickStore) String() string {
	return fmt.Sprintf("brick store %q on %s", s.meta.Name, s.eng)
}
