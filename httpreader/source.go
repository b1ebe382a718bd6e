// Package httpreader reads arbitrary byte ranges of a remote installer with HTTP range requests.
package httpreader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nguyengg/gogextract/zip/scan"
	"github.com/valyala/bytebufferpool"
)

var (
	// ErrExpiredToken is returned when the server responds with 401 Unauthorized.
	//
	// The bearer token must be refreshed and a new Source created.
	ErrExpiredToken = errors.New("authentication expired")

	// ErrRangeNotSupported is returned when the server ignores the Range header and responds with the whole content.
	ErrRangeNotSupported = errors.New("range requests not supported")
)

// StatusError is returned for any unexpected HTTP status code.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("range request failed: %s", e.Status)
}

// Options customises NewSource.
type Options struct {
	// Client is the HTTP client used for all requests.
	//
	// By default, http.DefaultClient is used.
	Client *http.Client

	// Header is added to every request.
	Header http.Header

	// Size if positive is used as the content size and NewSource will not probe the server for it.
	//
	// Set this when the size is already known, such as from the Content-Length declared by an API.
	Size int64
}

// WithClient changes the HTTP client.
func WithClient(client *http.Client) func(*Options) {
	return func(opts *Options) {
		opts.Client = client
	}
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) func(*Options) {
	return func(opts *Options) {
		if opts.Header == nil {
			opts.Header = make(http.Header)
		}
		opts.Header.Set(key, value)
	}
}

// WithBearerToken sets the Authorization header.
func WithBearerToken(token string) func(*Options) {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) func(*Options) {
	return WithHeader("User-Agent", userAgent)
}

// WithSize skips probing the server for the content size.
func WithSize(size int64) func(*Options) {
	return func(opts *Options) {
		opts.Size = size
	}
}

// Source uses HTTP range requests to implement scan.RangeFetcher and io.ReaderAt.
type Source struct {
	url          string
	client       *http.Client
	header       http.Header
	size         int64
	etag         string
	lastModified string
}

var (
	_ scan.RangeFetcher = (*Source)(nil)
	_ io.ReaderAt       = (*Source)(nil)
)

// NewSource creates a Source for the given URL.
//
// Unless [Options.Size] is given, a HEAD request and a single-byte range request are made to determine the content
// size and to verify that the server supports range requests.
func NewSource(ctx context.Context, url string, optFns ...func(*Options)) (*Source, error) {
	opts := &Options{Client: http.DefaultClient}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}

	s := &Source{
		url:    url,
		client: opts.Client,
		header: opts.Header.Clone(),
		size:   opts.Size,
	}
	if s.size > 0 {
		return s, nil
	}

	if err := s.fetchMetadata(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// URL returns the URL of the source.
func (s *Source) URL() string {
	return s.url
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// ETag returns the entity tag of the remote content if the server provided one while probing.
func (s *Source) ETag() string {
	return s.etag
}

// LastModified returns the Last-Modified header of the remote content if the server provided one while probing.
func (s *Source) LastModified() string {
	return s.lastModified
}

// FetchRange fetches the half-open range [start, end) with one GET request.
//
// Returns ErrExpiredToken on 401, io.EOF on 416, ErrRangeNotSupported on 200, and a *StatusError for any other status
// that is not 206.
func (s *Source) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	switch {
	case start < 0 || end < start:
		return nil, fmt.Errorf("invalid range [%d, %d)", start, end)
	case start == end:
		return []byte{}, nil
	case start >= s.size:
		return nil, io.EOF
	}

	end = min(end, s.size)
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	if err := s.rangeRequest(ctx, start, end-1, bb); err != nil {
		return nil, err
	}
	if int64(bb.Len()) != end-start {
		return nil, fmt.Errorf("insufficient read: expected %d bytes, got %d", end-start, bb.Len())
	}

	return append([]byte(nil), bb.B...), nil
}

// ReadAt implements io.ReaderAt.
//
// If fewer bytes are available than requested, it returns the number of bytes read along with io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	end := min(off+int64(len(p)), s.size)
	b, err := s.FetchRange(context.Background(), off, end)
	if err != nil {
		return 0, err
	}

	n := copy(p, b)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// rangeRequest writes the inclusive range [first, last] into w.
func (s *Source) rangeRequest(ctx context.Context, first, last int64, w io.Writer) error {
	req, err := s.newRequest(ctx, http.MethodGet)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", first, last))

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	if err = checkStatus(res); err != nil {
		return err
	}

	_, err = io.Copy(w, io.LimitReader(res.Body, last-first+1))
	return err
}

func checkStatus(res *http.Response) error {
	switch res.StatusCode {
	case http.StatusPartialContent:
		return nil
	case http.StatusRequestedRangeNotSatisfiable:
		return io.EOF
	case http.StatusUnauthorized:
		return ErrExpiredToken
	case http.StatusOK:
		return ErrRangeNotSupported
	default:
		return &StatusError{StatusCode: res.StatusCode, Status: res.Status}
	}
}

// fetchMetadata determines the content size from a HEAD request and verifies it with a single-byte range request.
func (s *Source) fetchMetadata(ctx context.Context) error {
	size := int64(-1)

	if req, err := s.newRequest(ctx, http.MethodHead); err != nil {
		return err
	} else if res, err := s.client.Do(req); err == nil {
		if res.StatusCode == http.StatusOK {
			size = res.ContentLength
			s.etag = res.Header.Get("ETag")
			s.lastModified = res.Header.Get("Last-Modified")
		}
		_ = res.Body.Close()
	}

	req, err := s.newRequest(ctx, http.MethodGet)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()

	if err = checkStatus(res); err != nil {
		return fmt.Errorf("range probe error: %w", err)
	}

	rangeSize, err := parseContentRange(res.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	if size > 0 && size != rangeSize {
		return fmt.Errorf("content size mismatch: head=%d range=%d", size, rangeSize)
	}

	s.size = rangeSize
	if s.etag == "" {
		s.etag = res.Header.Get("ETag")
	}
	if s.lastModified == "" {
		s.lastModified = res.Header.Get("Last-Modified")
	}

	return nil
}

func (s *Source) newRequest(ctx context.Context, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url, http.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	// ranges refer to the stored bytes so transparent compression must be disabled.
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

// parseContentRange returns the total size from a Content-Range header value such as "bytes 0-0/1234".
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}

	_, total, ok := strings.Cut(strings.TrimPrefix(value, "bytes "), "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}

	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}

	return size, nil
}
