package cure

import (
	"fmt"
	"os"
)

// FiberModel is the fiber trace model for one spectrograph channel:
// the cross-dispersion profile width (sigma) and the Hermite shape
// terms of every fiber as bivariate Chebyshev fits, plus per-fiber
// amplitude vectors. Immutable once parsed.
type FiberModel struct {
	Version int

	MinW, MaxW float64
	MinF, MaxF float64
	MinX, MaxX float64
	MinY, MaxY float64

	// FiducialFib is only present in version 16/17 files.
	FiducialFib int

	SigmaPar, SigmaErrors FVector
	H2Par, H2Errors       FVector
	H3Par, H3Errors       FVector

	// ExpPar appears from version 19 on.
	ExpPar, ExpErrors FVector

	// PowerlawWings appears in version 21 files.
	PowerlawWings [4]float64

	Amplitudes []FVector
}

// fiberModelDecoders is the version allowlist. 17 shares the 16
// layout and 20 shares the 19 layout; the historical format bumps did
// not change those serializations.
var fiberModelDecoders = map[int]func(*reader, *FiberModel) error{
	16: decodeFiberModel16,
	17: decodeFiberModel16,
	18: decodeFiberModel18,
	19: decodeFiberModel19,
	20: decodeFiberModel19,
	21: decodeFiberModel21,
}

// OpenFiberModel parses a cure fiber model file.
func OpenFiberModel(path string) (*FiberModel, error) {
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
	decode, ok := fiberModelDecoders[version]
	if !ok {
		return nil, &UnsupportedFormatError{Path: path, Kind: "fibermodel", Version: version}
	}

	m := &FiberModel{Version: version}
	if err := decode(r, m); err != nil {
		return nil, &MalformedFileError{Path: path, Offset: r.off, Reason: err.Error()}
	}
	return m, nil
}

func (m *FiberModel) readBounds(r *reader) error {
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
	return nil
}

func (m *FiberModel) readShapeVectors(r *reader) error {
	for _, v := range []struct {
		name string
		dst  *FVector
	}{
		{"sigma_par", &m.SigmaPar}, {"sigma_errors", &m.SigmaErrors},
		{"h2_par", &m.H2Par}, {"h2_errors", &m.H2Errors},
		{"h3_par", &m.H3Par}, {"h3_errors", &m.H3Errors},
	} {
		if err := v.dst.read(r); err != nil {
			return fmt.Errorf("reading %s: %w", v.name, err)
		}
	}
	for _, v := range []struct {
		name string
		vec  *FVector
	}{
		{"sigma_par", &m.SigmaPar}, {"h2_par", &m.H2Par}, {"h3_par", &m.H3Par},
	} {
		if len(v.vec.Data) != 36 {
			return fmt.Errorf("%s has %d coefficients, expected 36", v.name, len(v.vec.Data))
		}
	}
	return nil
}

func (m *FiberModel) readExpVectors(r *reader) error {
	if err := m.ExpPar.read(r); err != nil {
		return fmt.Errorf("reading exp_par: %w", err)
	}
	if err := m.ExpErrors.read(r); err != nil {
		return fmt.Errorf("reading exp_errors: %w", err)
	}
	return nil
}

func (m *FiberModel) readAmplitudes(r *reader) error {
	// historical quirk: the amplitude count is written as a float
	n, err := r.floatLine()
	if err != nil {
		return fmt.Errorf("reading amplitude count: %w", err)
	}
	count := int(n)
	if count < 0 {
		return fmt.Errorf("negative amplitude count %d", count)
	}
	m.Amplitudes = make([]FVector, count)
	for i := range m.Amplitudes {
		if err := m.Amplitudes[i].read(r); err != nil {
			return fmt.Errorf("reading amplitude %d: %w", i, err)
		}
	}
	return nil
}

func decodeFiberModel16(r *reader, m *FiberModel) error {
	if err := m.readBounds(r); err != nil {
		return err
	}
	fib, err := r.intLine()
	if err != nil {
		return fmt.Errorf("reading fiducial fiber: %w", err)
	}
	m.FiducialFib = fib
	if err := m.readShapeVectors(r); err != nil {
		return err
	}
	return m.readAmplitudes(r)
}

func decodeFiberModel18(r *reader, m *FiberModel) error {
	if err := m.readBounds(r); err != nil {
		return err
	}
	if err := m.readShapeVectors(r); err != nil {
		return err
	}
	return m.readAmplitudes(r)
}

func decodeFiberModel19(r *reader, m *FiberModel) error {
	if err := m.readBounds(r); err != nil {
		return err
	}
	if err := m.readShapeVectors(r); err != nil {
		return err
	}
	if err := m.readExpVectors(r); err != nil {
		return err
	}
	return m.readAmplitudes(r)
}

func decodeFiberModel21(r *reader, m *FiberModel) error {
	if err := m.readBounds(r); err != nil {
		return err
	}
	if err := m.readShapeVectors(r); err != nil {
		return err
	}
	if err := m.readExpVectors(r); err != nil {
		return err
	}
	for i := range m.PowerlawWings {
		v, err := r.floatLine()
		if err != nil {
			return fmt.Errorf("reading powerlaw wing %d: %w", i, err)
		}
		m.PowerlawWings[i] = v
	}
	return m.readAmplitudes(r)
}

// NumFibers returns the number of fibers the model was fit for.
func (m *FiberModel) NumFibers() int { return len(m.Amplitudes) }

func (m *FiberModel) scalX(x float64) float64 { return (x - m.MinX) / (m.MaxX - m.MinX) }
func (m *FiberModel) scalY(y float64) float64 { return (y - m.MinY) / (m.MaxY - m.MinY) }

// TraceWidth returns the cross-dispersion profile sigma at detector
// position (x, y).
func (m *FiberModel) TraceWidth(x, y float64) float64 {
	return interpCheby2D7(m.scalX(x), m.scalY(y), m.SigmaPar.Data)
}

// H2 returns the second Hermite shape term at detector (x, y).
func (m *FiberModel) H2(x, y float64) float64 {
	return interpCheby2D7(m.scalX(x), m.scalY(y), m.H2Par.Data)
}

// H3 returns the third Hermite shape term at detector (x, y).
func (m *FiberModel) H3(x, y float64) float64 {
	return interpCheby2D7(m.scalX(x), m.scalY(y), m.H3Par.Data)
}
