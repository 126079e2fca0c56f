package cure

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fvecText serializes n deterministic coefficients in the ltl FVector
// layout, seeded so distinct vectors differ.
func fvecText(t *testing.T, n int, seed float64) string {
	t.Helper()
	v := FVector{Data: make([]float64, n)}
	for i := range v.Data {
		v.Data[i] = seed + float64(i)*0.125
	}
	var buf bytes.Buffer
	if err := v.Write(&buf); err != nil {
		t.Fatalf("building FVector fixture: %v", err)
	}
	return buf.String()
}

func marrText(t *testing.T, rows, cols int, seed float64) string {
	t.Helper()
	var sb strings.Builder
	fmt.Fprintf(&sb, "MArray<double,2> ( %d x %d ) : (1,%d) (1,%d) \n[", rows, cols, rows, cols)
	for j := 0; j < cols; j++ {
		sb.WriteString("[ ")
		for i := 0; i < rows; i++ {
			fmt.Fprintf(&sb, "%g ", seed+float64(j*rows+i))
		}
		sb.WriteString("]")
		if j < cols-1 {
			sb.WriteString("\n ")
		}
	}
	sb.WriteString("]\n")
	return sb.String()
}

// writeDistortionFixture builds a minimal well-formed distortion file
// of the given version.
func writeDistortionFixture(t *testing.T, dir string, version int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("# distortion fixture\n")
	fmt.Fprintf(&sb, "%d\n", version)
	for _, b := range []float64{3500, 5500, 1, 224, 0, 1031, 0, 1031} {
		fmt.Fprintf(&sb, "%g\n", b)
	}
	for i := 0; i < 10; i++ {
		sb.WriteString(fvecText(t, 36, float64(i)))
	}
	sb.WriteString("4505.0\n")
	for i := 0; i < 4; i++ {
		sb.WriteString(marrText(t, 3, 2, float64(100+i)))
	}
	if version >= 17 {
		sb.WriteString(fvecText(t, 4, 900))
	}

	path := filepath.Join(dir, fmt.Sprintf("distortion_%d.dist", version))
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestOpenDistortion_SupportedVersions(t *testing.T) {
	for _, version := range []int{14, 17} {
		t.Run(fmt.Sprintf("v%d", version), func(t *testing.T) {
			path := writeDistortionFixture(t, t.TempDir(), version)
			d, err := OpenDistortion(path)
			if err != nil {
				t.Fatalf("OpenDistortion failed: %v", err)
			}
			if d.Version != version {
				t.Errorf("expected version %d, got %d", version, d.Version)
			}
			if d.MinW != 3500 || d.MaxW != 5500 {
				t.Errorf("wavelength bounds [%g, %g], want [3500, 5500]", d.MinW, d.MaxW)
			}
			if d.ReferenceWavelength != 4505 {
				t.Errorf("reference wavelength %g, want 4505", d.ReferenceWavelength)
			}
			if len(d.FYPar.Data) != 36 {
				t.Errorf("fy_par has %d coefficients, want 36", len(d.FYPar.Data))
			}
			if d.WaveOffsets.Dims[0] != 3 || d.WaveOffsets.Dims[1] != 2 {
				t.Errorf("wave_offsets dims %v, want [3 2]", d.WaveOffsets.Dims)
			}
			if version >= 17 && len(d.AmpOffsets.Data) != 4 {
				t.Errorf("amp_offsets has %d elements, want 4", len(d.AmpOffsets.Data))
			}
		})
	}
}

func TestOpenDistortion_UnsupportedVersion(t *testing.T) {
	path := writeDistortionFixture(t, t.TempDir(), 15)
	_, err := OpenDistortion(path)
	var uerr *UnsupportedFormatError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UnsupportedFormatError, got %v", err)
	}
	if uerr.Version != 15 {
		t.Errorf("error carries version %d, want 15", uerr.Version)
	}
	if uerr.Path != path {
		t.Errorf("error carries path %q, want %q", uerr.Path, path)
	}
}

func TestOpenDistortion_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := writeDistortionFixture(t, dir, 14)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// corrupt one FVector header so the element type is unknown
	bad := strings.Replace(string(data), "FVector< double,36,0 >", "FVector< quux,36,0 >", 1)
	badPath := filepath.Join(dir, "bad.dist")
	if err := os.WriteFile(badPath, []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = OpenDistortion(badPath)
	var merr *MalformedFileError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedFileError, got %v", err)
	}
	if merr.Offset == 0 {
		t.Error("expected a nonzero byte offset in the error")
	}
}

func TestDistortion_WriteRoundTrip(t *testing.T) {
	path := writeDistortionFixture(t, t.TempDir(), 14)
	d, err := OpenDistortion(path)
	if err != nil {
		t.Fatalf("OpenDistortion failed: %v", err)
	}
	// perturb to values that do not print exactly in short form
	d.FYPar.Data[0] = math.Pi
	d.FYPar.Data[35] = 1.0 / 3.0

	out := filepath.Join(t.TempDir(), "rt.dist")
	f, err := os.Create(out)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Write(f); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	d2, err := OpenDistortion(out)
	if err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	for i := range d.FYPar.Data {
		if d2.FYPar.Data[i] != d.FYPar.Data[i] {
			t.Errorf("fy_par[%d] not bit-identical: %v != %v", i, d2.FYPar.Data[i], d.FYPar.Data[i])
		}
	}
	for i := range d.WavePar.Data {
		if d2.WavePar.Data[i] != d.WavePar.Data[i] {
			t.Errorf("wave_par[%d] not bit-identical after round trip", i)
		}
	}
	if d2.ReferenceWavelength != d.ReferenceWavelength {
		t.Error("reference wavelength not preserved")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			if d2.XOffsets.At(i, j) != d.XOffsets.At(i, j) {
				t.Errorf("x_offsets(%d,%d) not bit-identical", i, j)
			}
		}
	}
}

func TestDistortion_MapXFY(t *testing.T) {
	// a model whose fy series is the constant 42: only the trailing
	// T0x coefficient is set
	d := &Distortion{
		MinX: 0, MaxX: 100, MinF: 0, MaxF: 10,
		FYPar: FVector{Data: make([]float64, 36)},
	}
	d.FYPar.Data[35] = 42
	if got := d.MapXFY(50, 5); got != 42 {
		t.Errorf("MapXFY = %v, want 42", got)
	}
}

func TestDistortion_MapXY(t *testing.T) {
	d := &Distortion{
		MinX: 0, MaxX: 100, MinY: 0, MaxY: 100,
		WavePar:  FVector{Data: make([]float64, 36)},
		FiberPar: FVector{Data: make([]float64, 36)},
	}
	d.WavePar.Data[35] = 4505
	d.FiberPar.Data[35] = 112
	if got := d.MapXYWavelength(50, 50); got != 4505 {
		t.Errorf("MapXYWavelength = %v, want 4505", got)
	}
	if got := d.MapXYFiber(50, 50); got != 112 {
		t.Errorf("MapXYFiber = %v, want 112", got)
	}
}
