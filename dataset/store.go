package dataset

import (
	"fmt"
	"os"

	"github.com/tuvok/tuvok/storage"
	"github.com/tuvok/tuvok/storage/badger"
	"github.com/tuvok/tuvok/tuvok"
)

// Store is a dataset read from a brick store.
type Store struct {
	bricking

	store *storage.BrickStore
	meta  storage.Metadata
}

// NewStore returns a dataset over an opened brick store.  The dataset owns the
// store and closes it on Close.
func NewStore(s *storage.BrickStore) (*Store, error) {
	meta := s.Metadata()
	if !meta.Type.Valid() || meta.Components == 0 {
		return nil, fmt.Errorf("%s has bad voxel format %s x%d", s, meta.Type, meta.Components)
	}
	if meta.Domain.Volume() == 0 || meta.BrickSize.Volume() == 0 {
		return nil, fmt.Errorf("%s has empty domain %s or brick size %s", s, meta.Domain, meta.BrickSize)
	}
	lods := meta.LODCount
	if lods == 0 {
		lods = storage.LODCountFor(meta.Domain, meta.BrickSize)
	}
	return &Store{
		bricking: bricking{
			domain:    meta.Domain,
			brickSize: meta.BrickSize,
			lods:      lods,
			timesteps: meta.Timesteps,
		},
		store: s,
		meta:  meta,
	}, nil
}

// OpenStore opens the badger brick store at path as a dataset.  The store must
// already exist; nothing is created on disk for a missing path.
func OpenStore(path string) (*Store, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("no brick store at %q: %w", path, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("brick store path %q is not a directory", path)
	}
	db, _, err := badger.Open(badger.Options{Path: path})
	if err != nil {
		return nil, err
	}
	s, err := storage.Open(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	ds, err := NewStore(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return ds, nil
}

// Persist writes every brick of ds into a new brick store on eng.
func Persist(ds Dataset, eng storage.Engine, compress tuvok.Compression, checksum tuvok.Checksum) (*Store, error) {
	t, err := DataType(ds)
	if err != nil {
		return nil, err
	}
	min, max := ds.GetRange()
	meta := storage.Metadata{
		Name:        ds.Name(),
		Type:        t,
		Components:  uint64(ds.GetComponentCount()),
		Domain:      ds.GetDomainSize(0),
		BrickSize:   ds.GetMaxUsedBrickSizes(),
		LODCount:    ds.GetLODLevelCount(),
		Timesteps:   ds.GetTimestepCount(),
		Min:         min,
		Max:         max,
		Compression: compress,
		Checksum:    checksum,
	}
	s, err := storage.Create(eng, meta)
	if err != nil {
		return nil, err
	}
	timedLog := tuvok.NewTimeLog()
	var buf []byte
	var written uint64
	for _, key := range Keys(ds) {
		if buf, err = ds.GetBrick(key, buf); err != nil {
			return nil, fmt.Errorf("unable to read brick %s of %q: %w", key, ds.Name(), err)
		}
		if err := s.PutBrick(key, buf); err != nil {
			return nil, err
		}
		written += uint64(len(buf))
	}
	timedLog.Infof("Persisted %d bricks (%s) of %q into %s", ds.GetTotalBrickCount(), tuvok.ByteSize(written), ds.Name(), eng)
	return NewStore(s)
}

func (ds *Store) Name() string { return ds.meta.Name }
func (ds *Store) GetBitWidth() uint { return ds.meta.Type.BitWidth() }
func (ds *Store) GetComponentCount() uint { return uint(ds.meta.Components) }
func (ds *Store) GetIsSigned() bool { return ds.meta.Type.IsSigned() }
func (ds *Store) GetIsFloat() bool { return ds.meta.Type.IsFloat() }
func (ds *Store) GetRange() (float64, float64) { return ds.meta.Min, ds.meta.Max }
func (ds *Store) GetTimestepCount() uint64 { return ds.timesteps }
func (ds *Store) GetLODLevelCount() uint64 { return ds.lods }

func (ds *Store) GetDomainSize(lod uint64) tuvok.Vec3 {
	return ds.domainSize(lod)
}

func (ds *Store) GetBrickLayout(lod uint64) tuvok.Vec3 {
	return ds.layout(lod)
}

func (ds *Store) GetBrickVoxelCounts(key tuvok.BrickKey) (tuvok.Vec3, error) {
	_, counts, err := ds.brickExtent(key)
	return counts, err
}

func (ds *Store) GetMaxUsedBrickSizes() tuvok.Vec3 {
	return ds.maxUsedBrickSizes()
}

func (ds *Store) GetTotalBrickCount() uint64 {
	return ds.totalBrickCount()
}

func (ds *Store) GetBrick(key tuvok.BrickKey, buf []byte) ([]byte, error) {
	_, counts, err := ds.brickExtent(key)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", ds.meta.Name, err)
	}
	data, err := ds.store.GetBrick(key)
	if err != nil {
		return nil, err
	}
	want := counts.Volume() * uint64(ds.meta.Type.Bytes()) * ds.meta.Components
	if uint64(len(data)) != want {
		return nil, fmt.Errorf("brick %s of %q has %d bytes, expected %d", key, ds.meta.Name, len(data), want)
	}
	if uint64(cap(buf)) < want {
		return data, nil
	}
	buf = buf[:want]
	copy(buf, data)
	return buf, nil
}

// Close closes the underlying store.
func (ds *Store) Close() error {
	return ds.store.Close()
}
