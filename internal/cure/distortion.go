package cure

import (
	"fmt"
	"io"
	"os"
)

// Distortion is the optical distortion model for one spectrograph
// channel: bivariate Chebyshev fits relating detector position,
// fiber number and wavelength. Immutable once parsed.
type Distortion struct {
	Version int

	MinW, MaxW float64
	MinF, MaxF float64
	MinX, MaxX float64
	MinY, MaxY float64

	WavePar, WaveErrors   FVector
	FiberPar, FiberErrors FVector
	XPar, XErrors         FVector
	YPar, YErrors         FVector
	FYPar, FYErrors       FVector

	ReferenceWavelength float64
	ReferenceW          MArray
	ReferenceF          MArray
	WaveOffsets         MArray
	XOffsets            MArray

	// AmpOffsets carries the per-amplifier trace offsets appended in
	// version 17 files; empty for version 14.
	AmpOffsets FVector
}

// distortionDecoders maps the supported file versions to their layout
// decoders. Adding a version means adding an entry, never changing an
// existing decoder.
var distortionDecoders = map[int]func(*reader, *Distortion) error{
	14: decodeDistortion14,
	17: decodeDistortion17,
}

// OpenDistortion parses a cure distortion file.
func OpenDistortion(path string) (*Distortion, error) {
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
	decode, ok := distortionDecoders[version]
	if !ok {
		return nil, &UnsupportedFormatError{Path: path, Kind: "distortion", Version: version}
	}

	d := &Distortion{Version: version}
	if err := decode(r, d); err != nil {
		return nil, &MalformedFileError{Path: path, Offset: r.off, Reason: err.Error()}
	}
	return d, nil
}

func decodeDistortion14(r *reader, d *Distortion) error {
	for _, dst := range []*float64{
		&d.MinW, &d.MaxW, &d.MinF, &d.MaxF,
		&d.MinX, &d.MaxX, &d.MinY, &d.MaxY,
	} {
		v, err := r.floatLine()
		if err != nil {
			return fmt.Errorf("reading bounds: %w", err)
		}
		*dst = v
	}

	for _, v := range []struct {
		name string
		dst  *FVector
	}{
		{"wave_par", &d.WavePar}, {"wave_errors", &d.WaveErrors},
		{"fiber_par", &d.FiberPar}, {"fiber_errors", &d.FiberErrors},
		{"x_par", &d.XPar}, {"x_errors", &d.XErrors},
		{"y_par", &d.YPar}, {"y_errors", &d.YErrors},
		{"fy_par", &d.FYPar}, {"fy_errors", &d.FYErrors},
	} {
		if err := v.dst.read(r); err != nil {
			return fmt.Errorf("reading %s: %w", v.name, err)
		}
	}
	for _, v := range []struct {
		name string
		vec  *FVector
	}{
		{"wave_par", &d.WavePar}, {"fiber_par", &d.FiberPar},
		{"x_par", &d.XPar}, {"y_par", &d.YPar}, {"fy_par", &d.FYPar},
	} {
		if len(v.vec.Data) != 36 {
			return fmt.Errorf("%s has %d coefficients, expected 36", v.name, len(v.vec.Data))
		}
	}

	rw, err := r.floatLine()
	if err != nil {
		return fmt.Errorf("reading reference wavelength: %w", err)
	}
	d.ReferenceWavelength = rw

	for _, v := range []struct {
		name string
		dst  *MArray
	}{
		{"reference_w", &d.ReferenceW}, {"reference_f", &d.ReferenceF},
		{"wave_offsets", &d.WaveOffsets}, {"x_offsets", &d.XOffsets},
	} {
		if err := v.dst.read(r); err != nil {
			return fmt.Errorf("reading %s: %w", v.name, err)
		}
	}
	return nil
}

// Version 17 is the 14 layout with per-amplifier trace offsets
// appended after the offset arrays.
func decodeDistortion17(r *reader, d *Distortion) error {
	if err := decodeDistortion14(r, d); err != nil {
		return err
	}
	if err := d.AmpOffsets.read(r); err != nil {
		return fmt.Errorf("reading amp_offsets: %w", err)
	}
	return nil
}

// Write serializes the model back into its on-disk layout. Reparsing
// the output reproduces the coefficients bit for bit.
func (d *Distortion) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Distortion model\n%d\n", d.Version); err != nil {
		return err
	}
	for _, v := range []float64{
		d.MinW, d.MaxW, d.MinF, d.MaxF,
		d.MinX, d.MaxX, d.MinY, d.MaxY,
	} {
		if _, err := fmt.Fprintf(w, "%g\n", v); err != nil {
			return err
		}
	}
	for _, vec := range []*FVector{
		&d.WavePar, &d.WaveErrors, &d.FiberPar, &d.FiberErrors,
		&d.XPar, &d.XErrors, &d.YPar, &d.YErrors, &d.FYPar, &d.FYErrors,
	} {
		if err := vec.Write(w); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%g\n", d.ReferenceWavelength); err != nil {
		return err
	}
	for _, arr := range []*MArray{
		&d.ReferenceW, &d.ReferenceF, &d.WaveOffsets, &d.XOffsets,
	} {
		if err := arr.Write(w); err != nil {
			return err
		}
	}
	if d.Version >= 17 {
		if err := d.AmpOffsets.Write(w); err != nil {
			return err
		}
	}
	return nil
}

func (d *Distortion) scalX(x float64) float64 { return (x - d.MinX) / (d.MaxX - d.MinX) }
func (d *Distortion) scalY(y float64) float64 { return (y - d.MinY) / (d.MaxY - d.MinY) }
func (d *Distortion) scalW(w float64) float64 { return (w - d.MinW) / (d.MaxW - d.MinW) }
func (d *Distortion) scalF(f float64) float64 { return (f - d.MinF) / (d.MaxF - d.MinF) }

// MapXFY returns the detector y position of fiber f at detector x.
func (d *Distortion) MapXFY(x, f float64) float64 {
	return interpCheby2D7(d.scalX(x), d.scalF(f), d.FYPar.Data)
}

// MapXYFiber returns the fractional fiber number at detector (x, y).
func (d *Distortion) MapXYFiber(x, y float64) float64 {
	return interpCheby2D7(d.scalX(x), d.scalY(y), d.FiberPar.Data)
}

// MapXYWavelength returns the wavelength at detector (x, y).
func (d *Distortion) MapXYWavelength(x, y float64) float64 {
	return interpCheby2D7(d.scalX(x), d.scalY(y), d.WavePar.Data)
}
