/*
	Package transfer holds 1D and 2D transfer functions mapping data values (and,
	in 2D, gradient magnitude) to RGBA colors.

	Text files store a 1D function as its entry count followed by one "r g b a"
	line per entry, and a 2D function as "width height" followed by width*height
	such lines, x fastest.  Components are in [0, 1].
*/
package transfer

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// RGBA is a color with components in [0, 1].
type RGBA [4]float32

func (c RGBA) bytes() [4]byte {
	var b [4]byte
	for i, v := range c {
		b[i] = uint8(math.Round(float64(clamp(v)) * 255))
	}
	return b
}

func clamp(v float32) float32 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TF1D is a 1D transfer function.
type TF1D struct {
	Colors []RGBA
}

// New1D returns a transfer function of size transparent black entries.
func New1D(size int) *TF1D {
	return &TF1D{Colors: make([]RGBA, size)}
}

// Size returns the number of entries.
func (tf *TF1D) Size() int {
	return len(tf.Colors)
}

// SetRamp sets every channel to a linear ramp from 0 to 1.
func (tf *TF1D) SetRamp() {
	n := len(tf.Colors)
	for i := range tf.Colors {
		v := float32(0)
		if n > 1 {
			v = float32(i) / float32(n-1)
		}
		tf.Colors[i] = RGBA{v, v, v, v}
	}
}

// Resize resamples the function to size entries by nearest neighbor.
func (tf *TF1D) Resize(size int) {
	old := tf.Colors
	tf.Colors = make([]RGBA, size)
	if len(old) == 0 {
		return
	}
	for i := range tf.Colors {
		tf.Colors[i] = old[i*len(old)/size]
	}
}

// RGBA8 returns the function as 8-bit RGBA texels.
func (tf *TF1D) RGBA8() []byte {
	out := make([]byte, 0, 4*len(tf.Colors))
	for _, c := range tf.Colors {
		b := c.bytes()
		out = append(out, b[:]...)
	}
	return out
}

// Save writes the function in text form.
func (tf *TF1D) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(tf.Colors))
	writeColors(bw, tf.Colors)
	return bw.Flush()
}

// SaveFile writes the function to filename.
func (tf *TF1D) SaveFile(filename string) error {
	return saveFile(filename, tf.Save)
}

// Load1D reads a function written by Save.
func Load1D(r io.Reader) (*TF1D, error) {
	sc := newScanner(r)
	dims, err := sc.ints(1)
	if err != nil {
		return nil, fmt.Errorf("bad 1D transfer function header: %w", err)
	}
	colors, err := sc.colors(dims[0])
	if err != nil {
		return nil, err
	}
	return &TF1D{Colors: colors}, nil
}

// Load1DFile reads a 1D transfer function file.
func Load1DFile(filename string) (*TF1D, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open transfer function %q: %w", filename, err)
	}
	defer f.Close()
	tf, err := Load1D(f)
	if err != nil {
		return nil, fmt.Errorf("transfer function %q: %w", filename, err)
	}
	return tf, nil
}

// TF2D is a 2D transfer function over value and gradient magnitude.
type TF2D struct {
	Width, Height int
	Colors        []RGBA
}

// New2D returns a transfer function of transparent black entries.
func New2D(width, height int) *TF2D {
	return &TF2D{Width: width, Height: height, Colors: make([]RGBA, width*height)}
}

// At returns the color at (x, y).
func (tf *TF2D) At(x, y int) RGBA {
	return tf.Colors[y*tf.Width+x]
}

// Set changes the color at (x, y).
func (tf *TF2D) Set(x, y int, c RGBA) {
	tf.Colors[y*tf.Width+x] = c
}

// RGBA8 returns the function as 8-bit RGBA texels, x fastest.
func (tf *TF2D) RGBA8() []byte {
	out := make([]byte, 0, 4*len(tf.Colors))
	for _, c := range tf.Colors {
		b := c.bytes()
		out = append(out, b[:]...)
	}
	return out
}

// Save writes the function in text form.
func (tf *TF2D) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", tf.Width, tf.Height)
	writeColors(bw, tf.Colors)
	return bw.Flush()
}

// SaveFile writes the function to filename.
func (tf *TF2D) SaveFile(filename string) error {
	return saveFile(filename, tf.Save)
}

// Load2D reads a function written by Save.
func Load2D(r io.Reader) (*TF2D, error) {
	sc := newScanner(r)
	dims, err := sc.ints(2)
	if err != nil {
		return nil, fmt.Errorf("bad 2D transfer function header: %w", err)
	}
	colors, err := sc.colors(dims[0] * dims[1])
	if err != nil {
		return nil, err
	}
	return &TF2D{Width: dims[0], Height: dims[1], Colors: colors}, nil
}

// Load2DFile reads a 2D transfer function file.
func Load2DFile(filename string) (*TF2D, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to open transfer function %q: %w", filename, err)
	}
	defer f.Close()
	tf, err := Load2D(f)
	if err != nil {
		return nil, fmt.Errorf("transfer function %q: %w", filename, err)
	}
	return tf, nil
}

func writeColors(w io.Writer, colors []RGBA) {
	for _, c := range colors {
		fmt.Fprintf(w, "%g %g %g %g\n", c[0], c[1], c[2], c[3])
	}
}

func saveFile(filename string, save func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("unable to create transfer function %q: %w", filename, err)
	}
	if err := save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// scanner reads whitespace separated numbers.
type scanner struct {
	sc *bufio.Scanner
}

func newScanner(r io.Reader) *scanner {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return &scanner{sc: sc}
}

func (s *scanner) word() (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return s.sc.Text(), nil
}

func (s *scanner) ints(n int) ([]int, error) {
	vals := make([]int, n)
	for i := range vals {
		w, err := s.word()
		if err != nil {
			return nil, err
		}
		v, err := strconv.Atoi(w)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("bad size %q", w)
		}
		vals[i] = v
	}
	return vals, nil
}

func (s *scanner) colors(n int) ([]RGBA, error) {
	colors := make([]RGBA, n)
	for i := range colors {
		for c := 0; c < 4; c++ {
			w, err := s.word()
			if err != nil {
				return nil, fmt.Errorf("entry %d of %d: %w", i, n, err)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(w), 32)
			if err != nil {
				return nil, fmt.Errorf("entry %d of %d: %w", i, n, err)
			}
			colors[i][c] = float32(v)
		}
	}
	return colors, nil
}
