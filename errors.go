package gogextract

import (
	"context"
	"fmt"

	"github.com/nguyengg/gogextract/zip/scan"
)

// FormatError is returned when a required marker or signature could not be located, or when a record failed to
// decode.
//
// Use errors.Is(err, ErrFormat) to test for any FormatError.
type FormatError = scan.FormatError

var (
	// ErrFormat is matched by every FormatError.
	ErrFormat = scan.ErrFormat

	// ErrNotAvailable is returned if the EOCD signature is absent after exhausting the search bound, which means
	// either the installer does not end with a ZIP archive or the resource is truncated.
	ErrNotAvailable = scan.ErrNotAvailable
)

func formatError(record, format string, a ...any) error {
	return &FormatError{Record: record, Err: fmt.Errorf(format, a...)}
}

// RangeError is returned when a ranged read of a remote or local resource fails.
//
// Backend-specific errors such as httpreader.ErrExpiredToken are wrapped and can be tested with errors.Is.
type RangeError struct {
	// Start and End is the half-open range [Start, End) that was being read.
	Start, End int64
	Err        error
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("read range [%d, %d) error: %v", e.Start, e.End, e.Err)
}

// checkedFetcher makes sure every failure is a *RangeError and every success returns exactly the requested length.
type checkedFetcher struct {
	f scan.RangeFetcher
}

func checked(f scan.RangeFetcher) scan.RangeFetcher {
	if _, ok := f.(checkedFetcher); ok {
		return f
	}

	return checkedFetcher{f}
}

func (c checkedFetcher) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	b, err := c.f.FetchRange(ctx, start, end)
	if err != nil {
		return nil, &RangeError{Start: start, End: end, Err: err}
	}
	if int64(len(b)) != end-start {
		return nil, &RangeError{Start: start, End: end, Err: fmt.Errorf("expected %d bytes, got %d", end-start, len(b))}
	}

	return b, nil
}
