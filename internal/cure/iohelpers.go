// Package cure parses the calibration files produced by the cure
// reduction pipeline: optical distortion, fiber trace and PSF models.
// Each file type carries a leading integer format version; parsing
// dispatches to a fixed-layout decoder per supported version.
package cure

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// reader wraps a bufio.Reader and tracks the byte offset for error
// reporting. The cure serialization (ltl FVector/MArray dumps) is a
// char-delimited format, so everything below works one byte at a time.
type reader struct {
	r   *bufio.Reader
	off int64
}

func newReader(r io.Reader) *reader {
	return &reader{r: bufio.NewReader(r)}
}

func (r *reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err == nil {
		r.off++
	}
	return b, err
}

// skipComments returns the next line that is neither blank nor a
// '#' comment, with surrounding whitespace trimmed.
func (r *reader) skipComments() (string, error) {
	for {
		line, err := r.r.ReadString('\n')
		r.off += int64(len(line))
		if line == "" && err != nil {
			return "", err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if err != nil {
				return "", io.ErrUnexpectedEOF
			}
			continue
		}
		return trimmed, nil
	}
}

func (r *reader) intLine() (int, error) {
	line, err := r.skipComments()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(line)
}

func (r *reader) floatLine() (float64, error) {
	line, err := r.skipComments()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(line, 64)
}

// eatToChar consumes input up to and including c.
func (r *reader) eatToChar(c byte) error {
	for {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b == c {
			return nil
		}
	}
}

// readToChar collects input up to (not including) c, folding newlines
// into spaces so values spanning lines parse with strings.Fields.
func (r *reader) readToChar(c byte) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.readByte()
		if err != nil {
			return sb.String(), err
		}
		if b == c {
			return sb.String(), nil
		}
		if b == '\n' {
			b = ' '
		}
		sb.WriteByte(b)
	}
}

// eatToBlockStart positions the reader just inside the innermost '['
// of a data block opening like "[" or "[[ ".
func (r *reader) eatToBlockStart() error {
	if err := r.eatToChar('['); err != nil {
		return err
	}
	for {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b == ' ' {
			return nil
		}
	}
}
