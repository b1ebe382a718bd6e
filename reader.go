package gogextract

import (
	"bytes"
	"context"
	"io"

	"github.com/nguyengg/gogextract/zip/scan"
)

// DefaultSequentialBufferSize is the default chunk size of NewSequentialReader.
const DefaultSequentialBufferSize = 64 * 1024

// NewSequentialReader returns an io.Reader that reads the resource from start to end in chunks of bufferSize bytes.
//
// Each chunk is fetched with one ranged read, so a ProbeSizes over a typical installer header only costs one request.
// If bufferSize is not positive, DefaultSequentialBufferSize is used.
func NewSequentialReader(ctx context.Context, f scan.RangeFetcher, size int64, bufferSize int) io.Reader {
	if bufferSize <= 0 {
		bufferSize = DefaultSequentialBufferSize
	}

	return &sequentialReader{
		ctx:        ctx,
		f:          checked(f),
		size:       size,
		bufferSize: int64(bufferSize),
	}
}

type sequentialReader struct {
	ctx        context.Context
	f          scan.RangeFetcher
	size       int64
	bufferSize int64
	// off is the offset of the next byte to be fetched, not the next byte to be returned.
	off int64
	buf bytes.Buffer
}

func (r *sequentialReader) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	// always uses from buffer if possible.
	if r.buf.Len() > 0 {
		return r.buf.Read(p)
	}

	if r.off >= r.size {
		return 0, io.EOF
	}

	// fetch at least bufferSize bytes and keep what does not fit in p for the next Read.
	end := min(r.size, r.off+max(int64(len(p)), r.bufferSize))
	b, err := r.f.FetchRange(r.ctx, r.off, end)
	if err != nil {
		return 0, err
	}
	r.off = end

	if n = copy(p, b); n < len(b) {
		r.buf.Write(b[n:])
	}

	return n, nil
}
