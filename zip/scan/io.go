package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// RangeFetcher fetches arbitrary byte ranges of a resource.
//
// The range is half-open: FetchRange(ctx, start, end) returns exactly end-start bytes starting at start, or an error.
// Implementations are expected to issue one request per call.
type RangeFetcher interface {
	FetchRange(ctx context.Context, start, end int64) ([]byte, error)
}

// ReaderAtFetcher adapts an io.ReaderAt such as an *os.File into a RangeFetcher.
type ReaderAtFetcher struct {
	io.ReaderAt
}

var _ RangeFetcher = ReaderAtFetcher{}

func (f ReaderAtFetcher) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	}

	b := make([]byte, end-start)
	switch n, err := f.ReadAt(b, start); {
	case n == len(b):
		return b, nil
	case err == nil || errors.Is(err, io.EOF):
		return nil, fmt.Errorf("read [%d, %d) error: %w", start, end, io.ErrUnexpectedEOF)
	default:
		return nil, err
	}
}
