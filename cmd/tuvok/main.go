// Command-line interface to the tuvok quantization pipeline and brick memory manager.

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/tuvok/tuvok/config"
	"github.com/tuvok/tuvok/converter"
	"github.com/tuvok/tuvok/gpu"
	"github.com/tuvok/tuvok/gpumem"
	"github.com/tuvok/tuvok/histogram"
	"github.com/tuvok/tuvok/quantize"
	"github.com/tuvok/tuvok/storage"
	"github.com/tuvok/tuvok/tuvok"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// TOML configuration file.
	configFile = flag.String("config", "", "")
)

const helpMessage = `
tuvok quantizes raw volumes and simulates brick rendering within memory budgets

Usage: tuvok [options] <command>

      -config     =string   TOML configuration file.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	scan     <raw file> type=<type> [skip=<bytes>]
	quantize <raw file> <output file> type=<type> [bits=8|12] [skip=<bytes>] [binning=true]
	convert  <raw file> <store path> type=<type> size=x,y,z [brick=x,y,z] [components=n] [frames=n] [skip=<bytes>]
	simulate <store path> [frames=n] [lod=n]

Types are int8, uint8, int16, uint16, int32, uint32, int64, uint64, float32 and float64.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		tuvok.Verbose = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.Logging.SetLogger()

	if err := DoCommand(tuvok.Command(flag.Args()), cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// DoCommand runs a command line.
func DoCommand(cmd tuvok.Command, cfg *config.Config) error {
	switch cmd.Name() {
	case "about":
		fmt.Printf("tuvok brick store version %s, %s %s/%s\n", storage.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return nil
	case "scan":
		return doScan(cmd, cfg)
	case "quantize":
		return doQuantize(cmd, cfg)
	case "convert":
		return doConvert(cmd, cfg)
	case "simulate":
		return doSimulate(cmd, cfg)
	}
	return fmt.Errorf("unknown command %q, try -help", cmd.Name())
}

func rawFile(cmd tuvok.Command, filename string) (converter.RawFile, error) {
	raw := converter.RawFile{Filename: filename, Components: 1, Aspect: [3]float64{1, 1, 1}}
	s, found := cmd.Parameter(tuvok.KeyType)
	if !found {
		return raw, fmt.Errorf("%s needs a %s=<type> setting", cmd.Name(), tuvok.KeyType)
	}
	var err error
	if raw.Type, err = tuvok.ParseDataType(s); err != nil {
		return raw, err
	}
	if raw.HeaderSkip, err = cmd.UintParameter(tuvok.KeySkip, 0); err != nil {
		return raw, err
	}
	comps, err := cmd.UintParameter(tuvok.KeyComponents, 1)
	if err != nil {
		return raw, err
	}
	raw.Components = uint(comps)
	raw.Domain, err = cmd.Vec3Parameter(tuvok.KeySize, tuvok.Vec3{})
	return raw, err
}

func doScan(cmd tuvok.Command, cfg *config.Config) error {
	var filename string
	cmd.CommandArgs(&filename)
	if filename == "" {
		return fmt.Errorf("scan needs a raw file")
	}
	raw, err := rawFile(cmd, filename)
	if err != nil {
		return err
	}
	ri, err := converter.New(cfg.ConverterOptions()).Range(raw)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", filename, ri)
	return nil
}

func doQuantize(cmd tuvok.Command, cfg *config.Config) error {
	var in, out string
	cmd.CommandArgs(&in, &out)
	if in == "" || out == "" {
		return fmt.Errorf("quantize needs a raw file and an output file")
	}
	raw, err := rawFile(cmd, in)
	if err != nil {
		return err
	}
	bits, err := cmd.UintParameter(tuvok.KeyBits, 8)
	if err != nil {
		return err
	}
	target, err := quantize.TargetFor(uint(bits))
	if err != nil {
		return err
	}
	var binning bool
	if s, found := cmd.Parameter(tuvok.KeyBinning); found {
		if binning, err = strconv.ParseBool(s); err != nil {
			return fmt.Errorf("bad %s=%q setting: %v", tuvok.KeyBinning, s, err)
		}
	}
	res, err := converter.New(cfg.ConverterOptions()).Quantize(raw, out, target, binning)
	if err != nil {
		return err
	}
	h := histogram.New(len(res.Result.Histogram))
	h.SetHistogram(res.Result.Histogram)
	if !res.Result.Rewritten {
		fmt.Printf("%s already fits %s, range %s, %d histogram entries used\n", in, target, res.SourceRange, h.FilledSize())
		return nil
	}
	fmt.Printf("wrote %s: %d elements, source range %s, %d histogram entries used", res.Filename, h.Sum(), res.SourceRange, h.FilledSize())
	if res.Result.Binned {
		fmt.Printf(", %d distinct values binned", len(res.Result.BinValues))
	}
	fmt.Println()
	return nil
}

func doConvert(cmd tuvok.Command, cfg *config.Config) error {
	var in, path string
	cmd.CommandArgs(&in, &path)
	if in == "" || path == "" {
		return fmt.Errorf("convert needs a raw file and a store path")
	}
	raw, err := rawFile(cmd, in)
	if err != nil {
		return err
	}
	if raw.Domain.Volume() == 0 {
		return fmt.Errorf("convert needs a %s=x,y,z setting", tuvok.KeySize)
	}
	opts := converter.StoreOptions{}
	if opts.BrickSize, err = cmd.Vec3Parameter(tuvok.KeyBrickSize, tuvok.Vec3{64, 64, 64}); err != nil {
		return err
	}
	if opts.Compression, err = cfg.Compression(); err != nil {
		return err
	}
	if opts.Checksum, err = cfg.Checksum(); err != nil {
		return err
	}
	frames, err := cmd.UintParameter(tuvok.KeyFrames, 1)
	if err != nil {
		return err
	}
	ds, err := converter.New(cfg.ConverterOptions()).Convert(raw, int(frames), path, opts)
	if err != nil {
		return err
	}
	defer ds.Close()
	min, max := ds.GetRange()
	fmt.Printf("wrote %d bricks in %d LODs to %s, range [%g, %g]\n", ds.GetTotalBrickCount(), ds.GetLODLevelCount(), path, min, max)
	return nil
}

// doSimulate renders every brick of one LOD for a number of frames through a
// software context with the configured GPU memory.
func doSimulate(cmd tuvok.Command, cfg *config.Config) error {
	var path string
	cmd.CommandArgs(&path)
	if path == "" {
		return fmt.Errorf("simulate needs a store path")
	}
	frames, err := cmd.UintParameter(tuvok.KeyFrames, 3)
	if err != nil {
		return err
	}
	lod, err := cmd.UintParameter(tuvok.KeyLOD, 0)
	if err != nil {
		return err
	}

	m := gpumem.NewManager(cfg.ManagerOptions())
	ctx := gpu.NewSoft(1, cfg.SystemInfo().GPU)
	return simulate(m, ctx, path, frames, lod)
}

// simulate draws every brick of one LOD of the dataset at path for a number of
// frames.  The dataset is freed and the manager closed on every return.
func simulate(m *gpumem.Manager, ctx *gpu.Soft, path string, frames, lod uint64) (err error) {
	defer func() {
		if cerr := m.Close(); err == nil {
			err = cerr
		}
	}()
	const requester = gpumem.Requester("simulate")
	ds, err := m.LoadDataset(path, requester)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := m.FreeDataset(ds, requester); err == nil {
			err = ferr
		}
	}()
	if lod >= ds.GetLODLevelCount() {
		lod = ds.GetLODLevelCount() - 1
	}
	if h, err := histogram.ComputeFromDataset(ds, 256); err == nil {
		fmt.Printf("histogram of %d entries over %d voxels\n", h.Len(), h.Sum())
	} else {
		tuvok.Debugf("No histogram for %q: %v\n", path, err)
	}

	n := ds.GetBrickLayout(lod).Volume()
	for f := uint64(0); f < frames; f++ {
		m.NewFrame()
		handles := make([]gpumem.VolumeHandle, 0, n)
		for i := uint64(0); i < n; i++ {
			frame, intra := m.Tick()
			h, err := m.GetVolume(gpumem.VolumeRequest{
				Dataset:    ds,
				Key:        tuvok.BrickKey{LOD: lod, Index: i},
				Flags:      gpumem.VolumeFlags{PowerOfTwo: true},
				Context:    ctx,
				Frame:      frame,
				IntraFrame: intra,
			})
			if err != nil {
				for _, h := range handles {
					m.ReleaseVolume(h)
				}
				return fmt.Errorf("frame %d: %w", f, err)
			}
			handles = append(handles, h)
		}
		for _, h := range handles {
			m.ReleaseVolume(h)
		}
		c := ctx.Counters()
		fmt.Printf("frame %d: %s; %d uploads, %d replacements, %d out of memory\n",
			f+1, m.Stats(), c.TexturesCreated, c.TextureUpdates, c.OutOfMemory)
	}
	return nil
}
