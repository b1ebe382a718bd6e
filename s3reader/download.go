package s3reader

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
)

// DownloadRange downloads the half-open range [start, end) of the object into w.
//
// The download goes through manager.Downloader so that options such as those from package managerlogging can be
// applied. Returns the number of bytes written.
func (r *Reader) DownloadRange(ctx context.Context, w io.WriterAt, start, end int64, optFns ...func(*manager.Downloader)) (int64, error) {
	switch {
	case start < 0 || end < start:
		return 0, fmt.Errorf("invalid range [%d, %d)", start, end)
	case start == end:
		return 0, nil
	case start >= r.size:
		return 0, io.EOF
	}

	end = min(end, r.size)

	n, err := manager.NewDownloader(r.client, optFns...).Download(ctx, w, r.getObjectInput(start, end))
	if err != nil {
		return n, fmt.Errorf("download range error: %w", err)
	}
	if n != end-start {
		return n, fmt.Errorf("insufficient download: expected %d bytes, got %d", end-start, n)
	}

	return n, nil
}
