// Package config reads the TOML configuration of the tuvok tools.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tuvok/tuvok/converter"
	"github.com/tuvok/tuvok/gpumem"
	"github.com/tuvok/tuvok/quantize"
	"github.com/tuvok/tuvok/tuvok"
)

type memoryConfig struct {
	InCoreMB uint64 `toml:"incore_mb"`
	CPUMB    uint64 `toml:"cpu_mb"`
	GPUMB    uint64 `toml:"gpu_mb"`
}

type cacheConfig struct {
	BrickMB uint64 `toml:"brick_mb"`
	RangeMB uint64 `toml:"range_mb"`
}

type storeConfig struct {
	Compression string
	Checksum    string
	TempDir     string `toml:"temp_dir"`
}

// Config is the parsed configuration.  Sizes are in megabytes and 0 means
// unlimited, except InCoreMB where 0 selects the default.
type Config struct {
	Memory  memoryConfig
	Cache   cacheConfig
	Store   storeConfig
	Logging tuvok.LogConfig

	location string
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Memory: memoryConfig{InCoreMB: quantize.DefaultInCoreBytes / tuvok.Mega},
		Cache:  cacheConfig{BrickMB: 256, RangeMB: 1},
		Store:  storeConfig{Compression: "snappy", Checksum: "crc32"},
	}
}

// Load reads the TOML file at filename over the defaults.  Relative paths are
// taken relative to the file's directory.
func Load(filename string) (*Config, error) {
	c := Default()
	if filename == "" {
		return c, nil
	}
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config %q: %w", filename, err)
	}
	c.location = filename
	if err := c.convertPathsToAbsolute(filepath.Dir(filename)); err != nil {
		return nil, fmt.Errorf("could not convert relative paths in %q: %w", filename, err)
	}
	if _, err := c.Compression(); err != nil {
		return nil, fmt.Errorf("config %q: %w", filename, err)
	}
	if _, err := c.Checksum(); err != nil {
		return nil, fmt.Errorf("config %q: %w", filename, err)
	}
	tuvok.Debugf("Loaded config %q: %+v\n", filename, *c)
	return c, nil
}

func (c *Config) convertPathsToAbsolute(dir string) (err error) {
	if c.Logging.Logfile != "" {
		if c.Logging.Logfile, err = tuvok.ConvertToAbsolute(c.Logging.Logfile, dir); err != nil {
			return
		}
	}
	if c.Store.TempDir != "" {
		c.Store.TempDir, err = tuvok.ConvertToAbsolute(c.Store.TempDir, dir)
	}
	return
}

// Location returns the file the configuration was read from, if any.
func (c *Config) Location() string {
	return c.location
}

// Compression returns the brick compression of new stores.
func (c *Config) Compression() (tuvok.Compression, error) {
	return tuvok.ParseCompression(c.Store.Compression)
}

// Checksum returns the brick checksum of new stores.
func (c *Config) Checksum() (tuvok.Checksum, error) {
	switch strings.ToLower(c.Store.Checksum) {
	case "", "none":
		return tuvok.NoChecksum, nil
	case "crc32":
		return tuvok.CRC32, nil
	}
	return tuvok.NoChecksum, fmt.Errorf("unknown checksum %q", c.Store.Checksum)
}

// InCoreBytes returns the working buffer size of streaming passes.
func (c *Config) InCoreBytes() uint64 {
	if c.Memory.InCoreMB == 0 {
		return quantize.DefaultInCoreBytes
	}
	return c.Memory.InCoreMB * tuvok.Mega
}

// SystemInfo returns the memory limits of the manager.
func (c *Config) SystemInfo() gpumem.StaticSystemInfo {
	return gpumem.StaticSystemInfo{
		CPU: c.Memory.CPUMB * tuvok.Mega,
		GPU: c.Memory.GPUMB * tuvok.Mega,
	}
}

// ManagerOptions returns the options of a memory manager.
func (c *Config) ManagerOptions() gpumem.Options {
	return gpumem.Options{
		SystemInfo:      c.SystemInfo(),
		BrickCacheBytes: c.Cache.BrickMB * tuvok.Mega,
	}
}

// ConverterOptions returns the options of a converter.
func (c *Config) ConverterOptions() converter.Options {
	return converter.Options{
		InCoreBytes:     c.InCoreBytes(),
		RangeCacheBytes: int(c.Cache.RangeMB * tuvok.Mega),
		TempDir:         c.Store.TempDir,
	}
}
