package cure

import (
	"fmt"
	"os"
)

// PSFModel is the point spread function model for one spectrograph
// channel: elliptical Gaussian-Hermite shape terms as bivariate
// Chebyshev fits over the detector. Immutable once parsed.
type PSFModel struct {
	Version int

	// MinW/MaxW and MinF/MaxF are only present in version 3 files.
	MinW, MaxW float64
	MinF, MaxF float64
	MinX, MaxX float64
	MinY, MaxY float64

	SigXPar FVector
	SigYPar FVector
	H2YPar  FVector
	H3YPar  FVector
}

var psfModelDecoders = map[int]func(*reader, *PSFModel) error{
	2: decodePSFModel2,
	3: decodePSFModel3,
}

// OpenPSFModel parses a cure PSF model file.
func OpenPSFModel(path string) (*PSFModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := newReader(f)
	version, err := r.intLine()
	if err != nil {
		return nil, &MalformedFileError{Path: path, Offset: r.off, Reason: fmt.Sprintf("unreadable version tag: %v", err)}
	}
	decode, ok := psfModelDecoders[version]
	if !ok {
		return nil, &UnsupportedFormatError{Path: path, Kind: "psfmodel", Version: version}
	}

	m := &PSFModel{Version: version}
	if err := decode(r, m); err != nil {
		return nil, &MalformedFileError{Path: path, Offset: r.off, Reason: err.Error()}
	}
	return m, nil
}

func (m *PSFModel) readVectors(r *reader) error {
	for _, v := range []struct {
		name string
		dst  *FVector
	}{
		{"sigx_par", &m.SigXPar}, {"sigy_par", &m.SigYPar},
		{"h2y_par", &m.H2YPar}, {"h3y_par", &m.H3YPar},
	} {
		if err := v.dst.read(r); err != nil {
			return fmt.Errorf("reading %s: %w", v.name, err)
		}
		if len(v.dst.Data) != 36 {
			return fmt.Errorf("%s has %d coefficients, expected 36", v.name, len(v.dst.Data))
		}
	}
	return nil
}

func decodePSFModel2(r *reader, m *PSFModel) error {
	for _, dst := range []*float64{&m.MinX, &m.MaxX, &m.MinY, &m.MaxY} {
		v, err := r.floatLine()
		if err != nil {
			return fmt.Errorf("reading bounds: %w", err)
		}
		*dst = v
	}
	return m.readVectors(r)
}

// Version 3 prepends the wavelength and fiber validity ranges to the
// version 2 layout.
func decodePSFModel3(r *reader, m *PSFModel) error {
	for _, dst := range []*float64{
		&m.MinW, &m.MaxW, &m.MinF, &m.MaxF,
		&m.MinX, &m.MaxX, &m.MinY, &m.MaxY,
	} {
		v, err := r.floatLine()
		if err != nil {
			return fmt.Errorf("reading bounds: %w", err)
		}
		*dst = v
	}
	return m.readVectors(r)
}

func (m *PSFModel) scalX(x float64) float64 { return (x - m.MinX) / (m.MaxX - m.MinX) }
func (m *PSFModel) scalY(y float64) float64 { return (y - m.MinY) / (m.MaxY - m.MinY) }

// SigmaX returns the PSF x width at detector (x, y).
func (m *PSFModel) SigmaX(x, y float64) float64 {
	return interpCheby2D7(m.scalX(x), m.scalY(y), m.SigXPar.Data)
}

// SigmaY returns the PSF y width at detector (x, y).
func (m *PSFModel) SigmaY(x, y float64) float64 {
	return interpCheby2D7(m.scalX(x), m.scalY(y), m.SigYPar.Data)
}
