package gogextract

import (
	"context"
	"fmt"
	"log"

	"github.com/nguyengg/gogextract/zip/scan"
	"golang.org/x/sync/errgroup"
)

// Download describes one installer of a product, usually one per operating system.
type Download struct {
	// OS is the platform the installer is for, such as "linux".
	OS string `json:"os,omitempty"`
	// Name is a human-readable name of the installer.
	Name string `json:"name,omitempty"`
	// URL is where the installer can be fetched from.
	URL string `json:"url"`
	// Size is the declared total size, usually from the Content-Length header. 0 if unknown.
	Size int64 `json:"size,omitempty"`
}

// Opener creates the RangeFetcher for a Download and returns the resource's size.
//
// If the Download already declares a positive Size, implementations may return it without asking the server.
type Opener func(ctx context.Context, d Download) (scan.RangeFetcher, int64, error)

// IndexAllOptions customises IndexAll.
type IndexAllOptions struct {
	// Concurrency is the maximum number of downloads indexed at the same time.
	//
	// By default, 4 downloads are indexed at once.
	Concurrency int

	// IndexOptions is applied to every Index call.
	IndexOptions []func(*IndexOptions)

	// LoggerFn if given returns the logger for the i-th download out of n.
	LoggerFn func(i, n int, d Download) *log.Logger
}

// IndexAll indexes every download independently and in parallel.
//
// The results are in the same order as downloads. The first error cancels the indexing of the remaining downloads and
// is returned.
func IndexAll(ctx context.Context, downloads []Download, open Opener, optFns ...func(*IndexAllOptions)) ([]*ArchiveIndex, error) {
	opts := &IndexAllOptions{Concurrency: 4}
	for _, fn := range optFns {
		fn(opts)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Concurrency))

	results := make([]*ArchiveIndex, len(downloads))
	for i, d := range downloads {
		g.Go(func() error {
			f, size, err := open(ctx, d)
			if err != nil {
				return fmt.Errorf("open %s error: %w", d.URL, err)
			}

			indexOpts := opts.IndexOptions
			if opts.LoggerFn != nil {
				logger := opts.LoggerFn(i, len(downloads), d)
				indexOpts = append(indexOpts[:len(indexOpts):len(indexOpts)], func(o *IndexOptions) {
					o.Logger = logger
				})
			}

			idx, err := Index(ctx, f, d.URL, size, indexOpts...)
			if err != nil {
				return fmt.Errorf("index %s error: %w", d.URL, err)
			}

			results[i] = idx
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
