package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/gogextract"
	"github.com/nguyengg/gogextract/internal"
	"github.com/nguyengg/gogextract/internal/config"
	"github.com/nguyengg/gogextract/internal/store"
	"github.com/nguyengg/gogextract/zip/scan"
)

type Index struct {
	MaxConcurrency  int            `short:"P" long:"max-concurrency" description:"index up to max-concurrency installers at a time; defaults to the [index] concurrency setting or 4"`
	ScanMode        string         `long:"scan-mode" choice:"window" choice:"probe-each" description:"how to search for the end of central directory record; defaults to the [index] scan-mode setting or window"`
	MaxTrailerBytes int64          `long:"max-trailer-bytes" description:"search at most this many bytes from the end for the end of central directory record; 0 searches the whole file"`
	JSON            bool           `long:"json" description:"print the indexes as JSON to stdout"`
	DB              flags.Filename `long:"db" description:"also save the indexes to this SQLite database for later fetches"`
	Verbose         bool           `short:"v" long:"verbose" description:"log every range request"`
	Args            struct {
		URLs []string `positional-arg-name:"url" description:"http(s):// or s3:// URLs, or local paths of the installers to be indexed" required:"yes"`
	} `positional-args:"yes"`
}

func (c *Index) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max-concurrency must be non-negative")
	}

	cfg := config.ForIndex()
	if c.MaxConcurrency > 0 {
		cfg.Concurrency = c.MaxConcurrency
	}
	if c.ScanMode != "" {
		mode, err := scan.ParseMode(c.ScanMode)
		if err != nil {
			return err
		}
		cfg.ScanMode = mode
	}
	if c.MaxTrailerBytes != 0 {
		cfg.MaxTrailerBytes = c.MaxTrailerBytes
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	n := len(c.Args.URLs)
	downloads := make([]gogextract.Download, n)
	s := &sources{verbose: c.Verbose, loggers: make(map[string]*log.Logger, n)}
	defer s.Close()
	for i, url := range c.Args.URLs {
		downloads[i] = gogextract.Download{Name: url, URL: url}
		s.loggers[url] = internal.NewLogger(i, n, url)
	}

	results, err := gogextract.IndexAll(ctx, downloads, s.open, func(opts *gogextract.IndexAllOptions) {
		opts.Concurrency = cfg.Concurrency
		opts.IndexOptions = append(opts.IndexOptions, func(opts *gogextract.IndexOptions) {
			opts.ScanMode = cfg.ScanMode
			opts.MaxTrailerBytes = cfg.MaxTrailerBytes
		})
		opts.LoggerFn = func(i, n int, d gogextract.Download) *log.Logger {
			return s.loggers[d.URL]
		}
	})
	if err != nil {
		return err
	}

	if c.DB != "" {
		if err = c.save(ctx, results); err != nil {
			return err
		}
	}

	if c.JSON {
		return writeJSON(results)
	}

	for i, idx := range results {
		logger := s.loggers[downloads[i].URL]
		logger.Printf("%d entries, central directory at %d (%s)", len(idx.Entries), idx.CDStart, humanize.IBytes(uint64(idx.CDSize)))
		for k, e := range idx.Entries {
			r := idx.Range(k)
			fmt.Printf("%s\t%d\t%d\t%s\n", idx.URL, r.Start, r.End, e.Name)
		}
	}

	return nil
}

func (c *Index) save(ctx context.Context, results []*gogextract.ArchiveIndex) error {
	db, err := store.Open(ctx, string(c.DB))
	if err != nil {
		return err
	}
	defer db.Close()

	for _, idx := range results {
		if err = db.Save(ctx, idx); err != nil {
			return fmt.Errorf("save index of %s error: %w", idx.URL, err)
		}
	}

	log.Printf("saved %d indexes to %s", len(results), c.DB)
	return nil
}

type entryJSON struct {
	Name             string `json:"name"`
	Method           uint16 `json:"method"`
	CRC32            uint32 `json:"crc32"`
	CompressedSize   uint64 `json:"compressedSize"`
	UncompressedSize uint64 `json:"uncompressedSize"`
	StartOffset      int64  `json:"startOffset"`
	EndOffset        int64  `json:"endOffset"`
}

type indexJSON struct {
	URL          string      `json:"url"`
	Size         int64       `json:"size"`
	ScriptLen    int64       `json:"scriptLen"`
	BootstrapLen int64       `json:"bootstrapLen"`
	EOCD         string      `json:"eocd"`
	CDStart      int64       `json:"cdStart"`
	CDSize       int64       `json:"cdSize"`
	Comment      string      `json:"comment,omitempty"`
	Entries      []entryJSON `json:"entries"`
}

func writeJSON(results []*gogextract.ArchiveIndex) error {
	values := make([]indexJSON, len(results))
	for i, idx := range results {
		v := indexJSON{
			URL:          idx.URL,
			Size:         idx.Size,
			ScriptLen:    idx.ScriptLen,
			BootstrapLen: idx.BootstrapLen,
			EOCD:         idx.Location.String(),
			CDStart:      idx.CDStart,
			CDSize:       idx.CDSize,
			Comment:      idx.Comment,
			Entries:      make([]entryJSON, len(idx.Entries)),
		}
		for k, e := range idx.Entries {
			v.Entries[k] = entryJSON{
				Name:             e.Name,
				Method:           e.Method,
				CRC32:            e.CRC32,
				CompressedSize:   e.CompressedSize64,
				UncompressedSize: e.UncompressedSize64,
				StartOffset:      e.StartOffset,
				EndOffset:        e.EndOffset,
			}
		}
		values[i] = v
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(values)
}
