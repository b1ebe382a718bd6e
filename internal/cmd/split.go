package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/mholt/archives"
	"github.com/nguyengg/gogextract"
	"github.com/nguyengg/gogextract/internal"
	"github.com/nguyengg/gogextract/internal/config"
)

type Split struct {
	Unpacker  bool           `long:"unpacker" description:"write the shell script header to unpacker.sh"`
	MojoSetup bool           `long:"mojosetup" description:"write the bootstrap archive to mojosetup.tar.gz"`
	Data      bool           `long:"data" description:"write the payload archive to data.zip"`
	Output    flags.Filename `short:"o" long:"output" description:"parent directory of the per-installer output directories; defaults to the [split] output setting or the current directory"`
	Quiet     bool           `short:"q" long:"quiet" description:"do not show progress bars"`
	Args      struct {
		Files []flags.Filename `positional-arg-name:"installer" description:"the local installers to be split" required:"yes"`
	} `positional-args:"yes"`

	logger *log.Logger
}

func (c *Split) Execute(args []string) (err error) {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	// none given means all.
	if !c.Unpacker && !c.MojoSetup && !c.Data {
		c.Unpacker, c.MojoSetup, c.Data = true, true, true
	}

	output := string(c.Output)
	if output == "" {
		output = config.ForSplit().Output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	success := 0
	n := len(c.Args.Files)
	for i, file := range c.Args.Files {
		c.logger = internal.NewLogger(i, n, string(file))
		c.logger.Printf("start splitting")

		if err = c.split(ctx, string(file), output); err == nil {
			c.logger.Printf("done splitting")
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		c.logger.Printf("split error: %v", err)
	}

	log.Printf("successfully split %d/%d files", success, n)
	if success != n {
		return fmt.Errorf("failed to split %d files", n-success)
	}

	return nil
}

func (c *Split) split(ctx context.Context, name, output string) error {
	src, err := os.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	// installer names usually have versions with dots, so only the last extension is removed.
	base := filepath.Base(name)
	dir := filepath.Join(output, strings.TrimSuffix(base, filepath.Ext(base)))

	// a first pass without segments validates the layout so that the progress bar knows the payload size.
	l, err := gogextract.Split(ctx, src, dir)
	if err != nil {
		return err
	}
	c.logger.Printf("script is %s, bootstrap is %s, payload is %s",
		humanize.IBytes(uint64(l.ScriptLen)), humanize.IBytes(uint64(l.BootstrapLen)), humanize.IBytes(uint64(l.Payload().Len())))

	if _, err = gogextract.Split(ctx, src, dir, func(opts *gogextract.SplitOptions) {
		opts.Unpacker = c.Unpacker
		opts.MojoSetup = c.MojoSetup
		opts.Data = c.Data
		opts.Logger = c.logger
		if c.Data {
			opts.ProgressBar = internal.ProgressWriter(l.Payload().Len(), gogextract.PayloadName, c.Quiet)
		}
	}); err != nil {
		return err
	}

	for _, segment := range []struct {
		name     string
		selected bool
	}{
		{gogextract.ScriptName, c.Unpacker},
		{gogextract.BootstrapName, c.MojoSetup},
		{gogextract.PayloadName, c.Data},
	} {
		if segment.selected {
			c.identify(ctx, filepath.Join(dir, segment.name))
		}
	}

	return nil
}

// identify logs the format of a written segment.
func (c *Split) identify(ctx context.Context, name string) {
	f, err := os.Open(name)
	if err != nil {
		c.logger.Printf("open %s error: %v", filepath.Base(name), err)
		return
	}
	defer f.Close()

	switch format, _, err := archives.Identify(ctx, filepath.Base(name), f); {
	case errors.Is(err, archives.NoMatch):
		c.logger.Printf("%s is not an archive", filepath.Base(name))
	case err != nil:
		c.logger.Printf("identify %s error: %v", filepath.Base(name), err)
	default:
		c.logger.Printf("%s is a %s archive", filepath.Base(name), strings.TrimPrefix(format.Extension(), "."))
	}
}
