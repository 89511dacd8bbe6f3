/*
	Package converter turns raw volume files into quantized files and brick stores.

	Value ranges found while reading a file are cached by file, header skip and
	type so repeated conversions of the same source skip the range pass.
	Reducing a type wider than 16 bits to 8 bits goes through a 12-bit
	intermediate file.
*/
package converter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coocood/freecache"
	"github.com/twinj/uuid"

	"github.com/tuvok/tuvok/dataset"
	"github.com/tuvok/tuvok/quantize"
	"github.com/tuvok/tuvok/storage/badger"
	"github.com/tuvok/tuvok/tuvok"
)

// RawFile describes a flat little-endian voxel file.
type RawFile struct {
	Filename   string
	HeaderSkip uint64
	Type       tuvok.DataType
	Components uint
	Domain     tuvok.Vec3
	Aspect     [3]float64
}

func (raw RawFile) cacheKey() []byte {
	return []byte(fmt.Sprintf("%s\x00%d\x00%s", raw.Filename, raw.HeaderSkip, raw.Type))
}

func (raw RawFile) elements() uint64 {
	return raw.Domain.Volume() * uint64(raw.Components)
}

func (raw RawFile) rangeInfo(r quantize.Range) RangeInfo {
	return RangeInfo{
		Domain:     raw.Domain,
		Aspect:     raw.Aspect,
		Type:       raw.Type,
		Components: raw.Components,
		Range:      r,
	}
}

// Options configure a Converter.
type Options struct {
	// InCoreBytes bounds the working buffer of each pass.
	InCoreBytes uint64

	// RangeCacheBytes sizes the range cache.  0 disables it.
	RangeCacheBytes int

	// TempDir holds intermediate files, the system default if empty.
	TempDir string
}

// Converter quantizes and converts raw volume files.  It must not be used
// concurrently.
type Converter struct {
	opts   Options
	ranges *freecache.Cache
}

// New returns a converter.
func New(opts Options) *Converter {
	c := &Converter{opts: opts}
	if opts.RangeCacheBytes > 0 {
		c.ranges = freecache.NewCache(opts.RangeCacheBytes)
		tuvok.Infof("Created range cache of %s.\n", tuvok.ByteSize(uint64(opts.RangeCacheBytes)))
	}
	if c.opts.TempDir == "" {
		c.opts.TempDir = os.TempDir()
	}
	return c
}

func (c *Converter) cachedRange(raw RawFile) (RangeInfo, bool) {
	if c.ranges == nil {
		return RangeInfo{}, false
	}
	b, err := c.ranges.Get(raw.cacheKey())
	if err != nil {
		if err != freecache.ErrNotFound {
			tuvok.Errorf("Unable to get cached range of %q: %v\n", raw.Filename, err)
		}
		return RangeInfo{}, false
	}
	var ri RangeInfo
	if _, err := ri.UnmarshalMsg(b); err != nil {
		tuvok.Errorf("Bad cached range of %q: %v\n", raw.Filename, err)
		return RangeInfo{}, false
	}
	return ri, true
}

func (c *Converter) rememberRange(raw RawFile, r quantize.Range) {
	if c.ranges == nil {
		return
	}
	b, err := raw.rangeInfo(r).MarshalMsg(nil)
	if err != nil {
		tuvok.Errorf("Unable to encode range of %q: %v\n", raw.Filename, err)
		return
	}
	if err := c.ranges.Set(raw.cacheKey(), b, 0); err != nil {
		tuvok.Errorf("Unable to cache range of %q: %v\n", raw.Filename, err)
	}
}

// CachedRanges returns the number of cached ranges and the cache hit rate.
func (c *Converter) CachedRanges() (entries int64, hitRate float64) {
	if c.ranges == nil {
		return 0, 0
	}
	return c.ranges.EntryCount(), c.ranges.HitRate()
}

func (c *Converter) open(raw RawFile) (*quantize.FileSource, error) {
	src, err := quantize.NewFileSource(raw.Filename, raw.HeaderSkip, raw.Type)
	if err != nil {
		return nil, err
	}
	if want := raw.elements(); want != 0 && src.Size() != want {
		tuvok.Warningf("%q holds %d elements after a %d byte header, expected %d for %s x%d.\n",
			raw.Filename, src.Size(), raw.HeaderSkip, want, raw.Domain, raw.Components)
	}
	return src, nil
}

// Range returns the value range of a raw file, reading it unless cached.
func (c *Converter) Range(raw RawFile) (RangeInfo, error) {
	if ri, found := c.cachedRange(raw); found {
		tuvok.Debugf("Using cached range %s of %q.\n", ri.Range, raw.Filename)
		return ri, nil
	}
	src, err := c.open(raw)
	if err != nil {
		return RangeInfo{}, err
	}
	defer src.Close()
	timedLog := tuvok.NewTimeLog()
	res, err := quantize.Scan(src, raw.Type, c.opts.InCoreBytes, 0)
	if err != nil {
		return RangeInfo{}, fmt.Errorf("unable to scan %q: %w", raw.Filename, err)
	}
	timedLog.Debugf("Scanned %d elements of %q, range %s", res.ElementsRead, raw.Filename, res.Range)
	c.rememberRange(raw, res.Range)
	return raw.rangeInfo(res.Range), nil
}

// Output is the data produced by a quantization.
type Output struct {
	// Filename holds the quantized data.  It is the source file itself if the
	// source already fit the target, and empty on failure.
	Filename   string
	HeaderSkip uint64
	Type       tuvok.DataType

	// SourceRange is the value range of the original file.
	SourceRange quantize.Range

	// Result of the final pass.
	Result quantize.Result
}

// Quantize reduces raw to the target bit depth in outFilename.  With binning, a
// source with few enough distinct values is remapped through a value to bin
// table instead of rescaled.  Reducing a type wider than 16 bits to 8 bits first
// writes a 12-bit intermediate file that is removed afterwards.
func (c *Converter) Quantize(raw RawFile, outFilename string, target quantize.Target, binning bool) (Output, error) {
	if target != quantize.Target8 || raw.Type.Bytes() <= 2 {
		return c.quantizeFile(raw, outFilename, target, binning)
	}

	intermediate := filepath.Join(c.opts.TempDir, "tuvok-"+uuid.NewV4().String()+".raw")
	first, err := c.quantizeFile(raw, intermediate, quantize.Target12, binning)
	if err != nil {
		return Output{}, err
	}
	if first.Filename == intermediate {
		defer func() {
			if err := os.Remove(intermediate); err != nil {
				tuvok.Errorf("Unable to remove intermediate file %q: %v\n", intermediate, err)
			}
		}()
	}
	tuvok.Debugf("Reducing 12-bit intermediate %q to %s.\n", first.Filename, target)
	next := raw
	next.Filename = first.Filename
	next.HeaderSkip = first.HeaderSkip
	next.Type = first.Type
	out, err := c.quantizeFile(next, outFilename, target, false)
	if err != nil {
		return Output{}, fmt.Errorf("unable to reduce %q to %s: %w", raw.Filename, target, err)
	}
	out.SourceRange = first.SourceRange
	return out, nil
}

func (c *Converter) quantizeFile(raw RawFile, outFilename string, target quantize.Target, binning bool) (out Output, err error) {
	src, err := c.open(raw)
	if err != nil {
		return Output{}, err
	}
	defer src.Close()

	f, err := os.Create(outFilename)
	if err != nil {
		return Output{}, fmt.Errorf("unable to create output %q: %w", outFilename, err)
	}
	keep := false
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("unable to close output %q: %w", outFilename, cerr)
			out = Output{}
			keep = false
		}
		if !keep {
			os.Remove(outFilename)
		}
	}()

	timedLog := tuvok.NewTimeLog()
	w := bufio.NewWriter(f)
	var res quantize.Result
	if binning {
		res, err = quantize.BinningQuantize(src, raw.Type, target, w, quantize.Options{InCoreBytes: c.opts.InCoreBytes})
	} else {
		res, err = quantize.Quantize(src, raw.Type, target, w, quantize.Options{InCoreBytes: c.opts.InCoreBytes})
	}
	if err != nil {
		return Output{}, fmt.Errorf("unable to quantize %q to %s: %w", raw.Filename, target, err)
	}
	if err := w.Flush(); err != nil {
		return Output{}, fmt.Errorf("unable to write %q: %w", outFilename, err)
	}
	c.rememberRange(raw, res.Range)

	if !res.Rewritten {
		timedLog.Infof("%q with range %s already fits %s", raw.Filename, res.Range, target)
		return Output{
			Filename:    raw.Filename,
			HeaderSkip:  raw.HeaderSkip,
			Type:        raw.Type,
			SourceRange: res.Range,
			Result:      res,
		}, nil
	}
	keep = true
	timedLog.Infof("Quantized %d elements of %q with range %s to %s in %q (binned %t)",
		res.ElementsRead, raw.Filename, res.Range, target, outFilename, res.Binned)
	return Output{
		Filename:    outFilename,
		Type:        target.DataType(),
		SourceRange: res.Range,
		Result:      res,
	}, nil
}

// StoreOptions describe the brick store written by Convert.
type StoreOptions struct {
	Name        string
	BrickSize   tuvok.Vec3
	Compression tuvok.Compression
	Checksum    tuvok.Checksum
}

// Convert reads every timestep of raw, bricks it and writes the bricks into a new
// badger store at path.  Each timestep follows the previous one in the file.
func (c *Converter) Convert(raw RawFile, timesteps int, path string, opts StoreOptions) (*dataset.Store, error) {
	if timesteps < 1 {
		timesteps = 1
	}
	f, err := os.Open(raw.Filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", raw.Filename, err)
	}
	defer f.Close()
	if _, err := f.Seek(int64(raw.HeaderSkip), io.SeekStart); err != nil {
		return nil, fmt.Errorf("unable to skip header of %q: %w", raw.Filename, err)
	}
	size := raw.elements() * uint64(raw.Type.Bytes())
	if size == 0 {
		return nil, fmt.Errorf("%q: empty domain %s", raw.Filename, raw.Domain)
	}
	data := make([][]byte, timesteps)
	for ts := range data {
		data[ts] = make([]byte, size)
		if _, err := io.ReadFull(f, data[ts]); err != nil {
			return nil, fmt.Errorf("unable to read timestep %d of %q: %w", ts, raw.Filename, err)
		}
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(raw.Filename)
	}
	mem, err := dataset.NewMemory(name, raw.Type, raw.Components, raw.Domain, opts.BrickSize, data...)
	if err != nil {
		return nil, fmt.Errorf("unable to brick %q: %w", raw.Filename, err)
	}

	db, created, err := badger.Open(badger.Options{Path: path})
	if err != nil {
		return nil, err
	}
	if !created {
		db.Close()
		return nil, fmt.Errorf("brick store %q already exists", path)
	}
	ds, err := dataset.Persist(mem, db, opts.Compression, opts.Checksum)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to convert %q: %w", raw.Filename, err)
	}
	return ds, nil
}
