package cure

import (
	"bytes"
	"strings"
	"testing"
)

func TestFVector_ReadWriteRoundTrip(t *testing.T) {
	in := FVector{Data: []float64{6.4277265720642998, 46.045159399542094, -0.25, 1e-17, 3, 7, 11, 13, 17, 19, 23}}

	var buf bytes.Buffer
	if err := in.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var out FVector
	if err := out.read(newReader(&buf)); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(out.Data) != len(in.Data) {
		t.Fatalf("expected %d elements, got %d", len(in.Data), len(out.Data))
	}
	for i := range in.Data {
		if out.Data[i] != in.Data[i] {
			t.Errorf("element %d: %v != %v (not bit-identical)", i, out.Data[i], in.Data[i])
		}
	}
}

func TestFVector_ReadLtlFormat(t *testing.T) {
	// format as written by the ltl library itself
	src := "FVector< float,4,0 >\n [ 1.000000e+00 2.000000e+00 \n 3.000000e+00 4.000000e+00  ]\n"
	var v FVector
	if err := v.read(newReader(strings.NewReader(src))); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := []float64{1, 2, 3, 4}
	for i, x := range want {
		if v.Data[i] != x {
			t.Errorf("element %d: got %v, want %v", i, v.Data[i], x)
		}
	}
}

func TestFVector_SizeMismatch(t *testing.T) {
	src := "FVector< double,5,0 >\n [ 1.0 2.0 3.0  ]\n"
	var v FVector
	if err := v.read(newReader(strings.NewReader(src))); err == nil {
		t.Fatal("expected error for element count mismatch")
	}
}

func TestFVector_NonFinite(t *testing.T) {
	src := "FVector< double,2,0 >\n [ 1.0 nan  ]\n"
	var v FVector
	if err := v.read(newReader(strings.NewReader(src))); err == nil {
		t.Fatal("expected error for non-finite value")
	}
}

func TestFVector_WrongHeader(t *testing.T) {
	src := "MArray< double,2,0 >\n [ 1.0 2.0  ]\n"
	var v FVector
	if err := v.read(newReader(strings.NewReader(src))); err == nil {
		t.Fatal("expected error for wrong serialization header")
	}
}

func TestMArray_Read2D(t *testing.T) {
	// 2 x 3: three blocks of two values; element (i,j) = block j, value i
	src := "MArray<double,2> ( 2 x 3 ) : (1,2) (1,3) \n" +
		"[[ 1.0 2.0 ]\n [ 3.0 4.0 ]\n [ 5.0 6.0 ]]\n"
	var a MArray
	if err := a.read(newReader(strings.NewReader(src))); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if a.Dims[0] != 2 || a.Dims[1] != 3 {
		t.Fatalf("expected dims [2 3], got %v", a.Dims)
	}
	checks := []struct {
		i, j int
		want float64
	}{
		{0, 0, 1}, {1, 0, 2},
		{0, 1, 3}, {1, 1, 4},
		{0, 2, 5}, {1, 2, 6},
	}
	for _, c := range checks {
		if got := a.At(c.i, c.j); got != c.want {
			t.Errorf("At(%d,%d) = %v, want %v", c.i, c.j, got, c.want)
		}
	}
}

func TestMArray_ReadWriteRoundTrip(t *testing.T) {
	src := "MArray<double,2> ( 2 x 2 ) : (1,2) (1,2) \n" +
		"[[ 1.25 2.5 ]\n [ 0.3333333333333333 4.0 ]]\n"
	var a MArray
	if err := a.read(newReader(strings.NewReader(src))); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	var b MArray
	if err := b.read(newReader(&buf)); err != nil {
		t.Fatalf("reparse failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if a.At(i, j) != b.At(i, j) {
				t.Errorf("At(%d,%d): %v != %v", i, j, a.At(i, j), b.At(i, j))
			}
		}
	}
}

func TestMArray_Read1D(t *testing.T) {
	src := "MArray<double,1> ( 3 ) : (1,3) \n[[ 7.0 8.0 9.0 ]]\n"
	var a MArray
	if err := a.read(newReader(strings.NewReader(src))); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i, want := range []float64{7, 8, 9} {
		if got := a.At(i, 0); got != want {
			t.Errorf("At(%d,0) = %v, want %v", i, got, want)
		}
	}
}

func TestMArray_BlockCountMismatch(t *testing.T) {
	src := "MArray<double,2> ( 2 x 2 ) : (1,2) (1,2) \n" +
		"[[ 1.0 2.0 3.0 ]\n [ 4.0 5.0 ]]\n"
	var a MArray
	if err := a.read(newReader(strings.NewReader(src))); err == nil {
		t.Fatal("expected error for block element count mismatch")
	}
}
