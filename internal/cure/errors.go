package cure

import "fmt"

// UnsupportedFormatError is returned when a calibration file declares a
// format version outside the parser's allowlist. There is no fallback:
// guessing a closest-match layout would silently corrupt coefficients.
type UnsupportedFormatError struct {
	Path    string
	Kind    string // "distortion", "fibermodel", "psfmodel"
	Version int
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: unsupported %s file version %d", e.Path, e.Kind, e.Version)
}

// MalformedFileError reports a structural violation inside a recognized
// calibration file version: wrong serialization header, element-count
// mismatch, or a non-finite value.
type MalformedFileError struct {
	Path   string
	Offset int64 // byte offset where the violation was detected
	Reason string
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("%s: malformed calibration file at byte %d: %s", e.Path, e.Offset, e.Reason)
}
