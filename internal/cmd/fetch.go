package cmd

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/gogextract"
	"github.com/nguyengg/gogextract/internal"
	"github.com/nguyengg/gogextract/internal/config"
	"github.com/nguyengg/gogextract/internal/store"
	"github.com/nguyengg/gogextract/managerlogging"
)

type Fetch struct {
	DB         flags.Filename `long:"db" description:"reuse the index saved in this SQLite database, saving a new one if there is none"`
	Output     flags.Filename `short:"o" long:"output" description:"directory to write the fetched files to" default:"."`
	WholeRange bool           `long:"whole-range" description:"write each entry's entire byte range starting with its local file header instead of only its compressed data"`
	Verbose    bool           `short:"v" long:"verbose" description:"log every range request"`
	Args       struct {
		URL   string   `positional-arg-name:"url" description:"http(s):// or s3:// URL, or local path of the installer" required:"yes"`
		Names []string `positional-arg-name:"name" description:"names of the files in the payload archive such as data/noarch/gameinfo" required:"yes"`
	} `positional-args:"yes"`

	logger *log.Logger
}

func (c *Fetch) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	url := c.Args.URL
	s := &sources{verbose: c.Verbose, loggers: map[string]*log.Logger{url: internal.NewLogger(0, 1, url)}}
	defer s.Close()

	src, err := s.openSource(ctx, url, 0)
	if err != nil {
		return err
	}

	idx, err := c.index(ctx, src, url)
	if err != nil {
		return err
	}

	success := 0
	n := len(c.Args.Names)
	for i, name := range c.Args.Names {
		c.logger = internal.NewLogger(i, n, name)

		if err = c.fetch(ctx, src, idx, name); err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf("fetch error: %v", err)
	}

	log.Printf("successfully fetched %d/%d files", success, n)
	if success != n {
		return fmt.Errorf("failed to fetch %d files", n-success)
	}

	return nil
}

// index loads the index from the database if possible, otherwise computes it and saves it if a database is given.
func (c *Fetch) index(ctx context.Context, src *source, url string) (*gogextract.ArchiveIndex, error) {
	cfg := config.ForIndex()
	indexFn := func() (*gogextract.ArchiveIndex, error) {
		return gogextract.Index(ctx, src, url, src.size, func(opts *gogextract.IndexOptions) {
			opts.ScanMode = cfg.ScanMode
			opts.MaxTrailerBytes = cfg.MaxTrailerBytes
			if c.Verbose {
				opts.Logger = internal.NewLogger(0, 1, url)
			}
		})
	}

	if c.DB == "" {
		return indexFn()
	}

	db, err := store.Open(ctx, string(c.DB))
	if err != nil {
		return nil, err
	}
	defer db.Close()

	switch idx, err := db.Load(ctx, url); {
	case err == nil && idx.Size == src.size:
		return idx, nil
	case err == nil:
		log.Printf("saved index of %s is stale (size %d, now %d)", url, idx.Size, src.size)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	idx, err := indexFn()
	if err != nil {
		return nil, err
	}

	if err = db.Save(ctx, idx); err != nil {
		return nil, fmt.Errorf("save index error: %w", err)
	}

	return idx, nil
}

func (c *Fetch) fetch(ctx context.Context, src *source, idx *gogextract.ArchiveIndex, name string) error {
	k := idx.IndexOf(name)
	if k < 0 {
		return fmt.Errorf("%w: %s", gogextract.ErrEntryNotFound, name)
	}

	e := idx.Entries[k]
	stem, ext := internal.StemAndExt(path.Base(name))
	switch {
	case c.WholeRange:
		ext += ".zipentry"
	case e.Method == zip.Deflate:
		ext += ".deflate"
	case e.Method != zip.Store:
		ext += ".raw"
	}

	f, err := internal.OpenExclFile(string(c.Output), stem, ext)
	if err != nil {
		return err
	}

	var written int64
	if c.WholeRange {
		written, err = c.fetchRange(ctx, src, f, idx.Range(k))
	} else {
		var raw *gogextract.RawEntry
		if raw, err = gogextract.WriteEntry(ctx, src, idx, name, f); err == nil {
			written = int64(len(raw.Data))
		}
	}

	if err != nil {
		_, _ = f.Close(), os.Remove(f.Name())
		return err
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close file error: %w", err)
	}

	c.logger.Printf("wrote %s to %s", humanize.IBytes(uint64(written)), f.Name())
	return nil
}

// fetchRange writes the half-open range r to f, using manager.Downloader if the installer is in S3.
func (c *Fetch) fetchRange(ctx context.Context, src *source, f *os.File, r gogextract.Range) (int64, error) {
	if src.s3 != nil {
		var optFns []func(*manager.Downloader)
		if c.Verbose {
			optFns = append(optFns, managerlogging.LogRangedGets(c.logger))
		}

		return src.s3.DownloadRange(ctx, f, r.Start, r.End, optFns...)
	}

	b, err := src.FetchRange(ctx, r.Start, r.End)
	if err != nil {
		return 0, err
	}

	n, err := f.Write(b)
	return int64(n), err
}
