package srm

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrZeroInterval       = errors.New("zero recording interval")
	ErrNoBlocks           = errors.New("no data blocks")
	ErrTruncated          = errors.New("truncated input")
)

// FormatError reports a fatal decode failure at a byte offset. Err is one of
// the package sentinels, possibly wrapped with detail.
type FormatError struct {
	Offset int
	Field  string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("srm: %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(offset int, field string, err error) error {
	return &FormatError{Offset: offset, Field: field, Err: err}
}
