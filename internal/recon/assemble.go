package recon

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/google/uuid"
)

// NormalizeMode selects how accumulated flux is turned into the
// output pixel value.
type NormalizeMode string

const (
	// NormalizeMean divides each pixel by its coverage: the mean of
	// the contributing fiber flux.
	NormalizeMean NormalizeMode = "mean"
	// NormalizeSum keeps the straight accumulated sum.
	NormalizeSum NormalizeMode = "sum"
)

// NoData marks pixels with zero coverage in the output image,
// distinguishable from a real zero-flux measurement.
var NoData = math.NaN()

// Provenance is the minimal reproducibility record attached to an
// output image.
type Provenance struct {
	RunID       string
	Created     time.Time
	Inputs      []string
	Calibration map[string]int // e.g. "DISTVER_L" -> 14
	Weighting   Weighting
	Normalize   NormalizeMode
}

// Image is the finalized reconstruction output. Immutable.
type Image struct {
	Data       []float64 // NX*NY, row-major, NoData where uncovered
	NX, NY     int
	PixelScale float64
	X0, Y0     float64

	Provenance Provenance
}

// NewProvenance stamps a fresh run record.
func NewProvenance(inputs []string, weighting Weighting, normalize NormalizeMode) Provenance {
	return Provenance{
		RunID:       uuid.NewString(),
		Created:     time.Now().UTC(),
		Inputs:      inputs,
		Calibration: make(map[string]int),
		Weighting:   weighting,
		Normalize:   normalize,
	}
}

// Finalize normalizes the accumulated grid into the output image.
// A grid can only be finalized once; afterwards it must not be
// accumulated into again.
func Finalize(g *Grid, mode NormalizeMode, prov Provenance) (*Image, error) {
	if g.finalized {
		return nil, fmt.Errorf("grid already finalized")
	}
	g.finalized = true

	data := make([]float64, len(g.Flux))
	for i, cov := range g.Coverage {
		switch {
		case cov == 0:
			data[i] = NoData
		case mode == NormalizeMean:
			data[i] = g.Flux[i] / cov
		default:
			data[i] = g.Flux[i]
		}
	}
	return &Image{
		Data:       data,
		NX:         g.NX,
		NY:         g.NY,
		PixelScale: g.PixelScale,
		X0:         g.X0,
		Y0:         g.Y0,
		Provenance: prov,
	}, nil
}

// WriteImage writes the reconstructed image as a FITS file with the
// provenance in the primary header. Uncovered pixels are IEEE NaN,
// the floating-point FITS blank convention.
func WriteImage(path string, img *Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		return err
	}
	defer fits.Close()

	hdu := fitsio.NewImage(-64, []int{img.NX, img.NY})
	defer hdu.Close()

	cards := []fitsio.Card{
		{Name: "PIXSCALE", Value: img.PixelScale, Comment: "sky units per output pixel"},
		{Name: "CRVAL1", Value: img.X0, Comment: "sky x of pixel (0,0) center"},
		{Name: "CRVAL2", Value: img.Y0, Comment: "sky y of pixel (0,0) center"},
		{Name: "WEIGHTMD", Value: string(img.Provenance.Weighting), Comment: "flux distribution policy"},
		{Name: "NORMMODE", Value: string(img.Provenance.Normalize), Comment: "coverage normalization policy"},
		{Name: "RUNID", Value: img.Provenance.RunID, Comment: "reconstruction run id"},
		{Name: "DATE", Value: img.Provenance.Created.Format(time.RFC3339), Comment: "creation time (UTC)"},
		{Name: "NINPUT", Value: len(img.Provenance.Inputs), Comment: "number of input frames"},
	}
	for i, in := range img.Provenance.Inputs {
		cards = append(cards, fitsio.Card{
			Name:  fmt.Sprintf("INPUT%02d", i+1),
			Value: filepath.Base(in),
		})
	}
	calKeys := make([]string, 0, len(img.Provenance.Calibration))
	for key := range img.Provenance.Calibration {
		calKeys = append(calKeys, key)
	}
	sort.Strings(calKeys)
	for _, key := range calKeys {
		cards = append(cards, fitsio.Card{Name: key, Value: img.Provenance.Calibration[key], Comment: "calibration file version"})
	}
	if err := hdu.Header().Append(cards...); err != nil {
		return err
	}
	if err := hdu.Write(img.Data); err != nil {
		return err
	}
	return fits.Write(hdu)
}
