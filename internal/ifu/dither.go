package ifu

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Dither is one row of the dither file: the sky offset and observing
// conditions of a single exposure position.
type Dither struct {
	ID       string // "D1", "D2", ...
	Basename string
	DX, DY   float64
	Seeing   float64
	Norm     float64
	Airmass  float64
}

// DitherTable maps dither ids to their offsets.
type DitherTable struct {
	Path    string
	Dithers map[string]Dither
}

// DitherParseError reports a dither file row whose basename does not
// carry a recognizable dither number.
type DitherParseError struct {
	Path string
	Line int
}

func (e *DitherParseError) Error() string {
	return fmt.Sprintf("%s:%d: no D<n> dither tag found in basename column", e.Path, e.Line)
}

var ditherTag = regexp.MustCompile(`D\d`)

// LoadDitherTable parses a dither file. Rows are
// "basename tag dx dy seeing norm airmass"; the dither id is the D<n>
// token in the second column. Comment and blank lines are skipped.
func LoadDitherTable(path string) (*DitherTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &DitherTable{Path: path, Dithers: make(map[string]Dither)}

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 7 {
			continue
		}
		id := ditherTag.FindString(fields[1])
		if id == "" {
			return nil, &DitherParseError{Path: path, Line: lineNo}
		}
		d := Dither{ID: id, Basename: fields[0]}
		for _, v := range []struct {
			name string
			dst  *float64
			s    string
		}{
			{"dx", &d.DX, fields[2]},
			{"dy", &d.DY, fields[3]},
			{"seeing", &d.Seeing, fields[4]},
			{"norm", &d.Norm, fields[5]},
			{"airmass", &d.Airmass, fields[6]},
		} {
			x, err := strconv.ParseFloat(v.s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad %s value %q: %w", path, lineNo, v.name, v.s, err)
			}
			*v.dst = x
		}
		t.Dithers[id] = d
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// SingleDither returns a one-entry table with zero offset and unit
// conditions, for observations taken without dithering.
func SingleDither() *DitherTable {
	return &DitherTable{
		Dithers: map[string]Dither{
			"D1": {ID: "D1", Seeing: 1, Norm: 1, Airmass: 1},
		},
	}
}

// ByIndex returns the dither for a 1-based dither index.
func (t *DitherTable) ByIndex(i int) (Dither, bool) {
	d, ok := t.Dithers[fmt.Sprintf("D%d", i)]
	return d, ok
}

// IDs returns the dither ids in sorted order.
func (t *DitherTable) IDs() []string {
	out := make([]string, 0, len(t.Dithers))
	for id := range t.Dithers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
