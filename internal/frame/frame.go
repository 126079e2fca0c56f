// Package frame loads fiber-extracted exposures: FITS images with one
// flux trace per fiber row, plus the header metadata the
// reconstruction needs (channel, amplifier, dither index, wavelength
// solution, bias overscan region).
package frame

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/stat"

	"fiberecon/internal/ifu"
)

// BiasMode selects the overscan handling at load time.
type BiasMode string

const (
	// BiasDeclaredRegion subtracts the per-row mean of the columns
	// declared by the BIASSEC header card, once, at load.
	BiasDeclaredRegion BiasMode = "declared-region"
	// BiasNone loads the flux untouched.
	BiasNone BiasMode = "none"
)

// Header is the frame metadata extracted from the FITS header.
type Header struct {
	Channel     string // CCDPOS
	Amplifier   string // AMP
	DitherIndex int    // DITHER, 1-based; 0 if the card is absent
	CRVal1      float64
	CDelt1      float64
	BiasC1      int // BIASSEC column range, 1-based inclusive
	BiasC2      int // 0 if no BIASSEC card
}

// Frame is one loaded fiber-extracted exposure. Read-only once
// loaded; discarded after its contribution is accumulated.
type Frame struct {
	Path   string
	Header Header

	// Flux is fiber row x detector column.
	Flux [][]float64

	// DX, DY is the sky offset of this dither, resolved from the
	// dither table via the dither index.
	DX, DY float64

	// BiasApplied records that the overscan level has been removed,
	// so it can never be subtracted twice.
	BiasApplied bool
}

// MissingDitherIndexError is returned when a frame header carries no
// DITHER card and the caller supplied no explicit index. The dither
// index selects which sky offset is applied; it must never be
// guessed.
type MissingDitherIndexError struct {
	Path string
}

func (e *MissingDitherIndexError) Error() string {
	return fmt.Sprintf("%s: no DITHER card in header and no explicit dither index given", e.Path)
}

// Options controls frame loading.
type Options struct {
	// DitherIndex overrides the DITHER header card when > 0.
	DitherIndex int
	// Bias selects the overscan handling; zero value means
	// BiasDeclaredRegion.
	Bias BiasMode
}

// Load reads one fiber-extracted FITS exposure.
func Load(path string, opts Options) (*Frame, error) {
	if opts.Bias == "" {
		opts.Bias = BiasDeclaredRegion
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fits, err := fitsio.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer fits.Close()

	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s: primary HDU is not an image", path)
	}
	hdr := img.Header()

	axes := hdr.Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("%s: expected a 2-D image, got %d axes", path, len(axes))
	}
	cols, rows := axes[0], axes[1]

	flux, err := readImage(img, hdr.Bitpix(), rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	fr := &Frame{Path: path, Flux: flux}
	fr.Header.Channel = cardString(hdr, "CCDPOS")
	fr.Header.Amplifier = cardString(hdr, "AMP")
	fr.Header.CRVal1 = cardFloat(hdr, "CRVAL1")
	fr.Header.CDelt1 = cardFloat(hdr, "CDELT1")

	switch {
	case opts.DitherIndex > 0:
		fr.Header.DitherIndex = opts.DitherIndex
	default:
		fr.Header.DitherIndex = cardInt(hdr, "DITHER")
		if fr.Header.DitherIndex == 0 {
			return nil, &MissingDitherIndexError{Path: path}
		}
	}

	if sec := cardString(hdr, "BIASSEC"); sec != "" {
		c1, c2, err := parseBiasSection(sec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if c2 > cols {
			return nil, fmt.Errorf("%s: BIASSEC %s exceeds %d columns", path, sec, cols)
		}
		fr.Header.BiasC1, fr.Header.BiasC2 = c1, c2
	}

	if opts.Bias == BiasDeclaredRegion && fr.Header.BiasC2 > 0 {
		fr.subtractBias()
	}
	return fr, nil
}

// subtractBias removes the per-row mean over the declared overscan
// columns from every column of that row. Guarded so a frame is only
// ever corrected once.
func (fr *Frame) subtractBias() {
	if fr.BiasApplied {
		return
	}
	c1, c2 := fr.Header.BiasC1-1, fr.Header.BiasC2 // to 0-based half-open
	for _, row := range fr.Flux {
		level := stat.Mean(row[c1:c2], nil)
		for i := range row {
			row[i] -= level
		}
	}
	fr.BiasApplied = true
}

// WavelengthToColumn converts a wavelength to the nearest detector
// column using the frame's linear wavelength solution. The result is
// clamped to the valid column range.
func (fr *Frame) WavelengthToColumn(w float64) int {
	if fr.Header.CDelt1 == 0 || len(fr.Flux) == 0 {
		return 0
	}
	col := int((w-fr.Header.CRVal1)/fr.Header.CDelt1 + 0.5)
	if col < 0 {
		col = 0
	}
	if max := len(fr.Flux[0]) - 1; col > max {
		col = max
	}
	return col
}

// ResolveOffsets fills each frame's sky offset from the dither table
// via its dither index.
func ResolveOffsets(frames []*Frame, dt *ifu.DitherTable) error {
	for _, fr := range frames {
		d, ok := dt.ByIndex(fr.Header.DitherIndex)
		if !ok {
			return fmt.Errorf("%s: dither index %d not in dither table %s",
				fr.Path, fr.Header.DitherIndex, dt.Path)
		}
		fr.DX, fr.DY = d.DX, d.DY
	}
	return nil
}

// parseBiasSection decodes a BIASSEC card like "[2049:2112]" or
// "[2049:2112,1:224]", returning the 1-based inclusive column range.
func parseBiasSection(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad BIASSEC %q", s)
	}
	c1, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	c2, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || c1 < 1 || c2 < c1 {
		return 0, 0, fmt.Errorf("bad BIASSEC %q", s)
	}
	return c1, c2, nil
}

func readImage(img fitsio.Image, bitpix, rows, cols int) ([][]float64, error) {
	// fitsio.Image.Read fills the caller's slice in place; it must be
	// allocated to the pixel count up front.
	n := rows * cols
	var flat []float64
	switch bitpix {
	case -64:
		data := make([]float64, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		flat = data
	case -32:
		data := make([]float32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		flat = make([]float64, 0, n)
		for _, v := range data {
			flat = append(flat, float64(v))
		}
	case 16:
		data := make([]int16, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		flat = make([]float64, 0, n)
		for _, v := range data {
			flat = append(flat, float64(v))
		}
	case 32:
		data := make([]int32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		flat = make([]float64, 0, n)
		for _, v := range data {
			flat = append(flat, float64(v))
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	if len(flat) != n {
		return nil, fmt.Errorf("image has %d pixels, expected %dx%d", len(flat), rows, cols)
	}

	flux := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		flux[r] = flat[r*cols : (r+1)*cols : (r+1)*cols]
	}
	return flux, nil
}

func cardString(hdr *fitsio.Header, name string) string {
	c := hdr.Get(name)
	if c == nil {
		return ""
	}
	if s, ok := c.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func cardInt(hdr *fitsio.Header, name string) int {
	c := hdr.Get(name)
	if c == nil {
		return 0
	}
	switch v := c.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func cardFloat(hdr *fitsio.Header, name string) float64 {
	c := hdr.Get(name)
	if c == nil {
		return 0
	}
	switch v := c.Value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
