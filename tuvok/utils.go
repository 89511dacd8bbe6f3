package tuvok

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// ByteSize formats a byte count for log messages, e.g. "1.5 GiB".
func ByteSize(n uint64) string {
	return humanize.IBytes(n)
}

// ConvertToAbsolute returns path as absolute, resolving a relative path against baseDir.
func ConvertToAbsolute(path, baseDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("can't make %q absolute: %v", baseDir, err)
	}
	return filepath.Join(absBase, path), nil
}
