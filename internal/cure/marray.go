package cure

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// FVector is the ltl fixed-size vector serialization used throughout
// the cure calibration files. On disk it looks like
//
//	FVector< double,36,0 >
//	 [ 6.4277265720642998e+00 4.6045159399542094e+01 ... ]
//
// with the payload possibly spanning several lines.
type FVector struct {
	Data []float64
}

func (v *FVector) read(r *reader) error {
	dtype, err := r.readToChar('<')
	if err != nil {
		return err
	}
	if strings.TrimSpace(dtype) != "FVector" {
		return fmt.Errorf("expected FVector, got %q", strings.TrimSpace(dtype))
	}

	ftype, err := r.readToChar(',')
	if err != nil {
		return err
	}
	switch strings.TrimSpace(ftype) {
	case "float", "double", "int", "T":
	default:
		return fmt.Errorf("unsupported FVector element type %q", strings.TrimSpace(ftype))
	}

	sizeStr, err := r.readToChar(',')
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(strings.TrimSpace(sizeStr))
	if err != nil {
		return fmt.Errorf("bad FVector size: %w", err)
	}

	strideStr, err := r.readToChar('>')
	if err != nil {
		return err
	}
	stride, err := strconv.Atoi(strings.TrimSpace(strideStr))
	if err != nil {
		return fmt.Errorf("bad FVector stride: %w", err)
	}
	if stride != 0 {
		return fmt.Errorf("unsupported FVector stride %d", stride)
	}

	if err := r.eatToBlockStart(); err != nil {
		return err
	}
	payload, err := r.readToChar(']')
	if err != nil {
		return err
	}
	v.Data, err = parseFloats(payload)
	if err != nil {
		return err
	}
	if len(v.Data) != size {
		return fmt.Errorf("FVector declared %d elements, found %d", size, len(v.Data))
	}

	// trailing newline after the closing bracket
	return r.eatToChar('\n')
}

// Write serializes the vector so that a subsequent read reproduces the
// coefficients bit for bit.
func (v *FVector) Write(w io.Writer) error {
	if len(v.Data) == 0 {
		return fmt.Errorf("refusing to write empty FVector")
	}
	if _, err := fmt.Fprintf(w, "FVector< double,%d,0 >\n [", len(v.Data)); err != nil {
		return err
	}
	for i, x := range v.Data {
		if _, err := io.WriteString(w, " "+strconv.FormatFloat(x, 'e', -1, 64)); err != nil {
			return err
		}
		if (i+1)%9 == 0 {
			if _, err := io.WriteString(w, " \n "); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "  ]\n")
	return err
}

// MArray is the ltl multi-dimensional array serialization:
//
//	MArray<double,2> ( 14 x 246 ) : (1,14) (1,246)
//	[[ ... ]
//	 [ ... ]]
//
// The file stores Dims[1] blocks of Dims[0] values each; element (i,j)
// of the in-memory matrix is the i-th value of the j-th block.
type MArray struct {
	Dims []int
	M    *mat.Dense
}

// At returns element (i, j); for a one-dimensional array use j == 0.
func (a *MArray) At(i, j int) float64 { return a.M.At(i, j) }

func (a *MArray) read(r *reader) error {
	dtype, err := r.readToChar('<')
	if err != nil {
		return err
	}
	if strings.TrimSpace(dtype) != "MArray" {
		return fmt.Errorf("expected MArray, got %q", strings.TrimSpace(dtype))
	}

	ftype, err := r.readToChar(',')
	if err != nil {
		return err
	}
	switch strings.TrimSpace(ftype) {
	case "float", "double", "int", "T":
	default:
		return fmt.Errorf("unsupported MArray element type %q", strings.TrimSpace(ftype))
	}

	ndimsStr, err := r.readToChar('>')
	if err != nil {
		return err
	}
	ndims, err := strconv.Atoi(strings.TrimSpace(ndimsStr))
	if err != nil {
		return fmt.Errorf("bad MArray rank: %w", err)
	}
	if ndims < 1 || ndims > 2 {
		return fmt.Errorf("unsupported MArray rank %d", ndims)
	}

	if err := r.eatToChar('('); err != nil {
		return err
	}
	dims := make([]int, 0, ndims)
	for d := 1; d < ndims; d++ {
		s, err := r.readToChar('x')
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("bad MArray dimension: %w", err)
		}
		dims = append(dims, n)
	}
	s, err := r.readToChar(')')
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("bad MArray dimension: %w", err)
	}
	dims = append(dims, n)

	// skip the per-dimension base descriptors "(1,14) (1,246)"
	for d := 0; d < ndims; d++ {
		if err := r.eatToChar('('); err != nil {
			return err
		}
		if _, err := r.readToChar(')'); err != nil {
			return err
		}
	}

	rows := dims[0]
	cols := 1
	if ndims == 2 {
		cols = dims[1]
	}

	m := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		if err := r.eatToBlockStart(); err != nil {
			return err
		}
		payload, err := r.readToChar(']')
		if err != nil {
			return err
		}
		vals, err := parseFloats(payload)
		if err != nil {
			return err
		}
		if len(vals) != rows {
			return fmt.Errorf("MArray block %d declared %d elements, found %d", j, rows, len(vals))
		}
		for i, x := range vals {
			m.Set(i, j, x)
		}
	}
	a.Dims = dims
	a.M = m

	return r.eatToChar('\n')
}

// Write serializes the array in the block layout read expects.
func (a *MArray) Write(w io.Writer) error {
	if a.M == nil {
		return fmt.Errorf("refusing to write empty MArray")
	}
	rows, cols := a.M.Dims()
	ndims := len(a.Dims)

	if _, err := fmt.Fprintf(w, "MArray<double,%d> ( %d", ndims, a.Dims[0]); err != nil {
		return err
	}
	for _, d := range a.Dims[1:] {
		if _, err := fmt.Fprintf(w, " x %d", d); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, " ) :"); err != nil {
		return err
	}
	for _, d := range a.Dims {
		if _, err := fmt.Fprintf(w, " (1,%d)", d); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, " \n["); err != nil {
		return err
	}
	for j := 0; j < cols; j++ {
		if _, err := io.WriteString(w, "[ "); err != nil {
			return err
		}
		for i := 0; i < rows; i++ {
			if _, err := io.WriteString(w, strconv.FormatFloat(a.M.At(i, j), 'e', -1, 64)+" "); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "]"); err != nil {
			return err
		}
		if j < cols-1 {
			if _, err := io.WriteString(w, "\n "); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}

// parseFloats splits a whitespace-separated payload and rejects
// non-finite values: NaN or Inf in a calibration file means the fit
// that produced it diverged and the file must not be used.
func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("bad numeric value %q: %w", f, err)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("non-finite value %q", f)
		}
		out = append(out, x)
	}
	return out, nil
}
