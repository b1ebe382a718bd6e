package gogextract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
)

// dataErrReader returns its data together with err on the same Read.
type dataErrReader struct {
	data string
	err  error
}

func (r *dataErrReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, r.err
}

func TestCopyBufferWithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	n, err := CopyBufferWithContext(t.Context(), buf, iotest.OneByteReader(strings.NewReader("hello world")), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "hello world", buf.String())
}

func TestCopyBufferWithContext_ReadError(t *testing.T) {
	cause := errors.New("connection reset")

	buf := &bytes.Buffer{}
	n, err := CopyBufferWithContext(t.Context(), buf, &dataErrReader{data: "hello", err: cause}, nil)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", buf.String())
}

func TestCopyBufferWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	buf := &bytes.Buffer{}
	n, err := CopyBufferWithContext(ctx, buf, strings.NewReader("hello"), make([]byte, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(2), n)
}
