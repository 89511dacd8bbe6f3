package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tuvok/tuvok/quantize"
	"github.com/tuvok/tuvok/tuvok"
)

const testConfig = `
[memory]
incore_mb = 16
cpu_mb = 512
gpu_mb = 1024

[cache]
brick_mb = 64
range_mb = 2

[store]
compression = "zstd"
checksum = "none"
temp_dir = "scratch"

[logging]
logfile = "logs/tuvok.log"
max_log_size = 100
max_log_age = 30
`

func TestDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("unable to load defaults: %v", err)
	}
	if c.InCoreBytes() != quantize.DefaultInCoreBytes {
		t.Errorf("expected default in-core size, got %d", c.InCoreBytes())
	}
	if info := c.SystemInfo(); info.CPU != 0 || info.GPU != 0 {
		t.Errorf("expected unlimited memory, got %+v", info)
	}
	if comp, _ := c.Compression(); comp != tuvok.Snappy {
		t.Errorf("expected snappy, got %s", comp)
	}
	if cs, _ := c.Checksum(); cs != tuvok.CRC32 {
		t.Errorf("expected CRC32, got %s", cs)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "tuvok.toml")
	if err := os.WriteFile(fn, []byte(testConfig), 0644); err != nil {
		t.Fatalf("unable to write config: %v", err)
	}
	c, err := Load(fn)
	if err != nil {
		t.Fatalf("unable to load config: %v", err)
	}
	if c.Location() != fn {
		t.Errorf("bad location %q", c.Location())
	}
	if c.InCoreBytes() != 16*tuvok.Mega {
		t.Errorf("bad in-core size %d", c.InCoreBytes())
	}
	opts := c.ManagerOptions()
	if opts.SystemInfo.MaxUsableCPUMemory() != 512*tuvok.Mega || opts.SystemInfo.MaxUsableGPUMemory() != tuvok.Giga {
		t.Errorf("bad memory limits %+v", opts.SystemInfo)
	}
	if opts.BrickCacheBytes != 64*tuvok.Mega {
		t.Errorf("bad brick cache size %d", opts.BrickCacheBytes)
	}
	conv := c.ConverterOptions()
	if conv.RangeCacheBytes != 2*tuvok.Mega || conv.TempDir != filepath.Join(dir, "scratch") {
		t.Errorf("bad converter options %+v", conv)
	}
	if comp, _ := c.Compression(); comp != tuvok.Zstd {
		t.Errorf("expected zstd, got %s", comp)
	}
	if cs, _ := c.Checksum(); cs != tuvok.NoChecksum {
		t.Errorf("expected no checksum, got %s", cs)
	}
	if c.Logging.Logfile != filepath.Join(dir, "logs", "tuvok.log") || c.Logging.MaxSize != 100 || c.Logging.MaxAge != 30 {
		t.Errorf("bad logging config %+v", c.Logging)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("expected error for missing file")
	}
	fn := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(fn, []byte("[store]\ncompression = \"lzma\"\n"), 0644); err != nil {
		t.Fatalf("unable to write config: %v", err)
	}
	if _, err := Load(fn); err == nil {
		t.Errorf("expected error for unknown compression")
	}
}
