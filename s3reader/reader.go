// Package s3reader reads arbitrary byte ranges of an installer stored in S3 with ranged GetObject calls.
package s3reader

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nguyengg/gogextract/zip/scan"
)

// Client abstracts the S3 APIs that are needed by Reader.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Options customises New.
type Options struct {
	// ModifyGetObjectInput can be used to modify the GetObject input parameters such as adding ExpectedBucketOwner.
	//
	// Its return value will be used to make the GetObject call.
	ModifyGetObjectInput func(*s3.GetObjectInput) *s3.GetObjectInput

	// ModifyHeadObjectInput can be used to modify the HeadObject input parameters such as adding
	// ExpectedBucketOwner.
	//
	// Its return value will be used to make the HeadObject call. Used only by New.
	ModifyHeadObjectInput func(*s3.HeadObjectInput) *s3.HeadObjectInput

	// Size if positive is used as the object size and New will not make the HeadObject call.
	Size int64
}

// WithExpectedBucketOwner sets ExpectedBucketOwner on every GetObject and HeadObject call.
func WithExpectedBucketOwner(owner string) func(*Options) {
	return func(opts *Options) {
		getFn, headFn := opts.ModifyGetObjectInput, opts.ModifyHeadObjectInput

		opts.ModifyGetObjectInput = func(input *s3.GetObjectInput) *s3.GetObjectInput {
			if getFn != nil {
				input = getFn(input)
			}
			input.ExpectedBucketOwner = aws.String(owner)
			return input
		}
		opts.ModifyHeadObjectInput = func(input *s3.HeadObjectInput) *s3.HeadObjectInput {
			if headFn != nil {
				input = headFn(input)
			}
			input.ExpectedBucketOwner = aws.String(owner)
			return input
		}
	}
}

// Reader uses ranged GetObject to implement scan.RangeFetcher and io.ReaderAt.
type Reader struct {
	client      Client
	bucket, key string
	size        int64
	modifyGet   func(*s3.GetObjectInput) *s3.GetObjectInput
}

var (
	_ scan.RangeFetcher = (*Reader)(nil)
	_ io.ReaderAt       = (*Reader)(nil)
)

// New returns a Reader for the given bucket and key.
//
// A HeadObject call is made to determine the size of the object unless [Options.Size] is given.
func New(ctx context.Context, client Client, bucket, key string, optFns ...func(*Options)) (*Reader, error) {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	r := &Reader{
		client:    client,
		bucket:    bucket,
		key:       key,
		size:      opts.Size,
		modifyGet: opts.ModifyGetObjectInput,
	}
	if r.size > 0 {
		return r, nil
	}

	input := &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if opts.ModifyHeadObjectInput != nil {
		input = opts.ModifyHeadObjectInput(input)
	}

	headObjectOutput, err := client.HeadObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get object metadata error: %w", err)
	}

	if r.size = aws.ToInt64(headObjectOutput.ContentLength); r.size < 0 {
		return nil, fmt.Errorf("invalid object size: %d", r.size)
	}

	return r, nil
}

// Bucket returns the bucket of the S3 object.
func (r *Reader) Bucket() string {
	return r.bucket
}

// Key returns the key of the S3 object.
func (r *Reader) Key() string {
	return r.key
}

// Size returns the size of the S3 object.
func (r *Reader) Size() int64 {
	return r.size
}

// FetchRange fetches the half-open range [start, end) with one GetObject call.
//
// Ranges starting at or past the end of the object return io.EOF; ranges extending past it are clamped.
func (r *Reader) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	switch {
	case start < 0 || end < start:
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	case start == end:
		return []byte{}, nil
	case start >= r.size:
		return nil, io.EOF
	}

	end = min(end, r.size)

	getObjectOutput, err := r.client.GetObject(ctx, r.getObjectInput(start, end))
	if err != nil {
		return nil, fmt.Errorf("get object error: %w", err)
	}
	defer getObjectOutput.Body.Close()

	b := make([]byte, end-start)
	if n, err := io.ReadFull(getObjectOutput.Body, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("insufficient read: expected %d bytes, got %d", len(b), n)
		}

		return nil, fmt.Errorf("read object error: %w", err)
	}

	return b, nil
}

// ReadAt implements io.ReaderAt.
//
// If fewer bytes are available than requested, it returns the number of bytes read along with io.EOF.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	b, err := r.FetchRange(context.Background(), off, off+int64(len(p)))
	if err != nil {
		return 0, err
	}

	n := copy(p, b)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// getObjectInput creates the GetObject input for the half-open range [start, end).
func (r *Reader) getObjectInput(start, end int64) *s3.GetObjectInput {
	input := &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	}
	if r.modifyGet != nil {
		input = r.modifyGet(input)
	}

	return input
}
