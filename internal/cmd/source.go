package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/gogextract"
	"github.com/nguyengg/gogextract/httpreader"
	"github.com/nguyengg/gogextract/internal/config"
	"github.com/nguyengg/gogextract/s3reader"
	"github.com/nguyengg/gogextract/zip/scan"
)

// source is an opened local or remote installer.
type source struct {
	scan.RangeFetcher
	size int64

	// s3 is non-nil only if the installer is in S3.
	s3 *s3reader.Reader
}

// sources opens installers by URL and keeps track of the local files that need closing.
type sources struct {
	verbose bool
	loggers map[string]*log.Logger

	// mu guards closers.
	mu      sync.Mutex
	closers []io.Closer
}

// open implements gogextract.Opener.
func (s *sources) open(ctx context.Context, d gogextract.Download) (scan.RangeFetcher, int64, error) {
	src, err := s.openSource(ctx, d.URL, d.Size)
	if err != nil {
		return nil, 0, err
	}

	return src.RangeFetcher, src.size, nil
}

func (s *sources) openSource(ctx context.Context, url string, size int64) (*source, error) {
	src := &source{}

	switch {
	case strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"):
		cfg := config.ForHTTP()
		optFns := []func(*httpreader.Options){httpreader.WithSize(size)}
		if cfg.Token != "" {
			optFns = append(optFns, httpreader.WithBearerToken(cfg.Token))
		}
		if cfg.UserAgent != "" {
			optFns = append(optFns, httpreader.WithUserAgent(cfg.UserAgent))
		}

		hs, err := httpreader.NewSource(ctx, url, optFns...)
		if err != nil {
			if errors.Is(err, httpreader.ErrExpiredToken) {
				return nil, fmt.Errorf("%w; update the token in the [http] section of the config file", err)
			}
			return nil, err
		}

		src.RangeFetcher, src.size = hs, hs.Size()

	case strings.HasPrefix(url, "s3://"):
		bucket, key, err := s3reader.ParseURI(url)
		if err != nil {
			return nil, err
		}

		client, err := config.NewS3Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("create s3 client error: %w", err)
		}

		optFns := []func(*s3reader.Options){func(opts *s3reader.Options) {
			opts.Size = size
		}}
		if owner := config.ForS3().ExpectedBucketOwner; owner != "" {
			optFns = append(optFns, s3reader.WithExpectedBucketOwner(owner))
		}

		if src.s3, err = s3reader.New(ctx, client, bucket, key, optFns...); err != nil {
			return nil, err
		}

		src.RangeFetcher, src.size = src.s3, src.s3.Size()

	default:
		f, err := os.Open(url)
		if err != nil {
			return nil, err
		}

		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}

		s.mu.Lock()
		s.closers = append(s.closers, f)
		s.mu.Unlock()

		src.RangeFetcher, src.size = scan.ReaderAtFetcher{ReaderAt: f}, fi.Size()
	}

	if s.verbose {
		logger := s.loggers[url]
		if logger == nil {
			logger = log.Default()
		}

		src.RangeFetcher = &loggingFetcher{RangeFetcher: src.RangeFetcher, logger: logger}
	}

	return src, nil
}

// Close closes all local files that were opened.
func (s *sources) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil

	return errors.Join(errs...)
}

// loggingFetcher logs every successful range request.
type loggingFetcher struct {
	scan.RangeFetcher
	logger *log.Logger
	n      atomic.Int32
}

func (f *loggingFetcher) FetchRange(ctx context.Context, start, end int64) ([]byte, error) {
	b, err := f.RangeFetcher.FetchRange(ctx, start, end)
	if err == nil && len(b) > 0 {
		f.logger.Printf("got bytes=%d-%d (%s), %d requests so far",
			start, start+int64(len(b))-1, humanize.IBytes(uint64(len(b))), f.n.Add(1))
	}

	return b, err
}
