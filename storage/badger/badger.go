/*
	Package badger is a storage.Engine backed by BadgerDB.
*/
package badger

import (
	"fmt"
	"os"
	"time"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/tuvok/tuvok/storage"
	"github.com/tuvok/tuvok/tuvok"
)

var _ storage.Engine = (*DB)(nil)

const (
	// DefaultVersionsToKeep is the number of versions to keep per key.  Bricks are
	// overwritten in place so older versions are never read.
	DefaultVersionsToKeep = 1

	// DefaultSyncWrites is true if all writes are synced to disk, thereby making db resilient
	// at cost of speed.
	DefaultSyncWrites = false

	// DefaultSyncInterval is how often buffered writes are synced for on-disk stores.
	DefaultSyncInterval = 30 * time.Second
)

// EngineVersion is the version of this engine adapter.
var EngineVersion = semver.MustParse("0.2.0")

// Options configure a badger store.
type Options struct {
	// Path is the directory of the database.  Ignored if InMemory.
	Path string

	// InMemory keeps everything in RAM, used for tests and scratch conversions.
	InMemory bool

	ReadOnly bool

	// ValueThreshold and ValueLogFileSize are passed to badger if nonzero.
	ValueThreshold   int64
	ValueLogFileSize int64
}

func getOptions(o Options) badger.Options {
	var opts badger.Options
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(o.Path)
	}
	opts = opts.WithLogger(logger{}).
		WithNumVersionsToKeep(DefaultVersionsToKeep).
		WithSyncWrites(DefaultSyncWrites).
		WithReadOnly(o.ReadOnly)
	if o.ValueThreshold > 0 {
		opts = opts.WithValueThreshold(o.ValueThreshold)
	}
	if o.ValueLogFileSize > 0 {
		opts = opts.WithValueLogFileSize(o.ValueLogFileSize)
	}
	return opts
}

// logger routes badger messages through the tuvok log facade.  Badger's info
// messages are chatty so they are demoted to debug.
type logger struct{}

func (logger) Errorf(format string, args ...interface{})   { tuvok.Errorf("badger: "+format, args...) }
func (logger) Warningf(format string, args ...interface{}) { tuvok.Warningf("badger: "+format, args...) }
func (logger) Infof(format string, args ...interface{})    { tuvok.Debugf("badger: "+format, args...) }
func (logger) Debugf(format string, args ...interface{})   { tuvok.Debugf("badger: "+format, args...) }

// DB is a storage.Engine on a badger database.
type DB struct {
	directory string
	inMemory  bool
	bdp       *badger.DB

	// stopSyncCh is used to signal the sync goroutine to stop.
	stopSyncCh chan struct{}
	syncDone   chan struct{}
}

// Open returns a badger engine, creating the directory at o.Path if it doesn't
// exist.  The returned bool is true if the database was newly created.
func Open(o Options) (*DB, bool, error) {
	var created bool
	if !o.InMemory {
		if o.Path == "" {
			return nil, false, fmt.Errorf("path must be specified for badger store")
		}
		if _, err := os.Stat(o.Path); os.IsNotExist(err) {
			if o.ReadOnly {
				return nil, false, fmt.Errorf("no badger store at %s to open read-only", o.Path)
			}
			tuvok.Infof("Database not already at path (%s). Creating directory...\n", o.Path)
			created = true
			if err := os.MkdirAll(o.Path, 0744); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", o.Path, err)
			}
		}
	} else {
		created = true
	}

	timedLog := tuvok.NewTimeLog()
	bdp, err := badger.Open(getOptions(o))
	if err != nil {
		return nil, created, fmt.Errorf("unable to open badger @ %s: %w", o.Path, err)
	}
	db := &DB{
		directory: o.Path,
		inMemory:  o.InMemory,
		bdp:       bdp,
	}
	if !o.InMemory && !o.ReadOnly {
		db.stopSyncCh = make(chan struct{})
		db.syncDone = make(chan struct{})
		go db.syncPeriodically(DefaultSyncInterval)
	}
	timedLog.Debugf("Opened %s", db)
	return db, created, nil
}

// OpenInMemory returns an empty in-memory engine.
func OpenInMemory() (*DB, error) {
	db, _, err := Open(Options{InMemory: true})
	return db, err
}

// Periodically sync to prevent too many writes from being buffered
// if the process crashes.
func (db *DB) syncPeriodically(interval time.Duration) {
	defer close(db.syncDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopSyncCh:
			tuvok.Debugf("Stopping sync goroutine for badger @ %s\n", db.directory)
			return
		case <-ticker.C:
			if err := db.bdp.Sync(); err != nil {
				tuvok.Errorf("Unable to sync badger @ %s: %v\n", db.directory, err)
			}
		}
	}
}

func (db *DB) String() string {
	if db.inMemory {
		return fmt.Sprintf("badger %s in memory", EngineVersion)
	}
	return fmt.Sprintf("badger %s @ %s", EngineVersion, db.directory)
}

// Close closes the database.  It is safe to call more than once.
func (db *DB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	if db.stopSyncCh != nil {
		close(db.stopSyncCh)
		<-db.syncDone
		db.stopSyncCh = nil
	}
	err := db.bdp.Close()
	db.bdp = nil
	tuvok.Debugf("Closed badger @ %s\n", db.directory)
	return err
}

// Get returns a value given a key, or nil if the key does not exist.
func (db *DB) Get(key []byte) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed badger store")
	}
	var v []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	return v, err
}

// Put writes a value with given key.
func (db *DB) Put(key, value []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed badger store")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete removes a key.  Deleting a missing key is not an error.
func (db *DB) Delete(key []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on closed badger store")
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// KeysWithPrefix returns all keys beginning with prefix in ascending order.
func (db *DB) KeysWithPrefix(prefix []byte) ([][]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call KeysWithPrefix on closed badger store")
	}
	var keys [][]byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}
