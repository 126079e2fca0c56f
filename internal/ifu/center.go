// Package ifu parses the instrument geometry tables: the IFU-center
// file mapping fibers to head positions, and the dither offset file.
package ifu

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Fiber is one row of the IFU-center file: the physical position and
// health of a single fiber. A fiber is usable only if Alive and
// Throughput > 0; broken fibers are expected input, not corruption.
type Fiber struct {
	ID         int // fiber number on the spectrograph, 1-based; 0 for dead fibers
	X, Y       float64
	Channel    string
	Throughput float64
	Alive      bool
}

// CenterTable is the parsed IFU-center file. Fibers preserves file
// order; lookup by (channel, id) is O(1). Immutable after load.
type CenterTable struct {
	Path string

	FiberD   float64 // fiber diameter, arcsec
	FiberSep float64 // fiber separation, arcsec
	NFibX    int
	NFibY    int

	Fibers []Fiber

	byKey map[fiberKey]int
}

type fiberKey struct {
	channel string
	id      int
}

// ValidationError reports an internally inconsistent IFU-center row:
// a fiber flagged alive but with no throughput. This is distinct from
// a normal dead-fiber row, which is accepted silently.
type ValidationError struct {
	Path string
	Line int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s:%d: fiber with positive fiber number and zero throughput", e.Path, e.Line)
}

// deadThroughput is the threshold below which an alive fiber row is
// inconsistent; matches the cure convention of "zero or less".
const deadThroughput = 0.01

// LoadCenterTable parses an IFU-center file. The preamble holds the
// fiber diameter/separation and the head grid dimensions; the body
// rows are "id x y channel fibnum throughput". A row whose fiber
// number is not a positive integer marks a dead fiber.
func LoadCenterTable(path string) (*CenterTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := &CenterTable{Path: path, byKey: make(map[fiberKey]int)}

	sc := bufio.NewScanner(f)
	lineNo := 0
	preamble := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		switch preamble {
		case 0:
			if len(fields) < 2 {
				return nil, fmt.Errorf("%s:%d: expected fiber diameter and separation", path, lineNo)
			}
			if t.FiberD, err = strconv.ParseFloat(fields[0], 64); err != nil {
				return nil, fmt.Errorf("%s:%d: bad fiber diameter: %w", path, lineNo, err)
			}
			if t.FiberSep, err = strconv.ParseFloat(fields[1], 64); err != nil {
				return nil, fmt.Errorf("%s:%d: bad fiber separation: %w", path, lineNo, err)
			}
			preamble++
			continue
		case 1:
			if len(fields) < 2 {
				return nil, fmt.Errorf("%s:%d: expected nfibx and nfiby", path, lineNo)
			}
			if t.NFibX, err = strconv.Atoi(fields[0]); err != nil {
				return nil, fmt.Errorf("%s:%d: bad nfibx: %w", path, lineNo, err)
			}
			if t.NFibY, err = strconv.Atoi(fields[1]); err != nil {
				return nil, fmt.Errorf("%s:%d: bad nfiby: %w", path, lineNo, err)
			}
			preamble++
			continue
		}

		fib, valid := parseFiberRow(fields)
		if !valid {
			t.Fibers = append(t.Fibers, fib)
			continue
		}
		if fib.Throughput < deadThroughput {
			return nil, &ValidationError{Path: path, Line: lineNo}
		}
		t.byKey[fiberKey{fib.Channel, fib.ID}] = len(t.Fibers)
		t.Fibers = append(t.Fibers, fib)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if preamble < 2 {
		return nil, fmt.Errorf("%s: truncated preamble", path)
	}
	return t, nil
}

// parseFiberRow decodes "id x y channel fibnum throughput". The first
// column is ignored. Any malformed numeric field, or a fiber number
// that is not a positive integer, yields a dead fiber.
func parseFiberRow(fields []string) (Fiber, bool) {
	if len(fields) < 6 {
		return Fiber{}, false
	}
	x, errX := strconv.ParseFloat(fields[1], 64)
	y, errY := strconv.ParseFloat(fields[2], 64)
	channel := fields[3]
	fib := Fiber{X: x, Y: y, Channel: channel}
	if errX != nil || errY != nil {
		return fib, false
	}
	id, err := strconv.Atoi(fields[4])
	if err != nil || id <= 0 {
		return fib, false
	}
	th, err := strconv.ParseFloat(fields[5], 64)
	if err != nil {
		return fib, false
	}
	fib.ID = id
	fib.Throughput = th
	fib.Alive = true
	return fib, true
}

// Fiber looks up an alive fiber by channel and fiber number.
func (t *CenterTable) Fiber(channel string, id int) (Fiber, bool) {
	i, ok := t.byKey[fiberKey{channel, id}]
	if !ok {
		return Fiber{}, false
	}
	return t.Fibers[i], true
}

// NumFibers counts the alive fibers of a channel.
func (t *CenterTable) NumFibers(channel string) int {
	n := 0
	for _, f := range t.Fibers {
		if f.Alive && f.Channel == channel {
			n++
		}
	}
	return n
}

// Channels lists the channels present in the table, in file order.
func (t *CenterTable) Channels() []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range t.Fibers {
		if f.Alive && !seen[f.Channel] {
			seen[f.Channel] = true
			out = append(out, f.Channel)
		}
	}
	return out
}

// AliveFibers returns the alive fibers of a channel, in file order.
func (t *CenterTable) AliveFibers(channel string) []Fiber {
	var out []Fiber
	for _, f := range t.Fibers {
		if f.Alive && f.Channel == channel {
			out = append(out, f)
		}
	}
	return out
}
