package gogextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

const (
	// ScriptName is the name of the file that Split writes the shell script header to.
	ScriptName = "unpacker.sh"
	// BootstrapName is the name of the file that Split writes the bootstrap archive to.
	BootstrapName = "mojosetup.tar.gz"
	// PayloadName is the name of the file that Split writes the payload ZIP archive to.
	PayloadName = "data.zip"

	// peekSize is the number of bytes at the start of the installer that must contain the line count marker.
	peekSize = 10240
)

// SplitOptions customises Split.
//
// All combinations of Unpacker, MojoSetup, and Data are legal, including none, in which case Split only probes the
// installer and returns its Layout.
type SplitOptions struct {
	// Unpacker writes the shell script header to ScriptName.
	Unpacker bool
	// MojoSetup writes the bootstrap archive to BootstrapName.
	MojoSetup bool
	// Data writes the payload ZIP archive to PayloadName.
	Data bool

	// ProgressBar if given will also receive every byte of the payload as it is written.
	ProgressBar io.Writer

	// Logger if given will receive a message for every segment written.
	Logger *log.Logger
}

// AllSegments selects all three segments.
func AllSegments(opts *SplitOptions) {
	opts.Unpacker = true
	opts.MojoSetup = true
	opts.Data = true
}

// Split reads the installer from src and writes the selected segments into dir.
//
// The directory is created if it does not exist. Existing files with the same names are overwritten. Nothing is
// cleaned up on failure, so segments written before the error remain.
func Split(ctx context.Context, src io.ReadSeeker, dir string, optFns ...func(*SplitOptions)) (l Layout, err error) {
	opts := &SplitOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	if err = os.MkdirAll(dir, 0755); err != nil {
		return l, fmt.Errorf("create output directory error: %w", err)
	}

	if l.Size, err = src.Seek(0, io.SeekEnd); err != nil {
		return l, fmt.Errorf("seek end error: %w", err)
	}

	// the line count marker must be within the first few KiB. short files are fine.
	peek := make([]byte, peekSize)
	if _, err = src.Seek(0, io.SeekStart); err != nil {
		return l, fmt.Errorf("seek start error: %w", err)
	}
	n, err := io.ReadFull(src, peek)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return l, fmt.Errorf("read header error: %w", err)
	}
	lines, err := parseMarker(lineCountPattern, peek[:n])
	switch {
	case err != nil:
		return l, formatError("shell script", "parse line count error: %w", err)
	case lines < 0:
		return l, formatError("shell script", "line count marker not found in the first %d bytes", n)
	}

	if _, err = src.Seek(0, io.SeekStart); err != nil {
		return l, fmt.Errorf("seek start error: %w", err)
	}
	if l.ScriptLen, err = scriptLength(src, lines); err != nil {
		return l, err
	}

	// scriptLength reads ahead so the script is read again from the start.
	if _, err = src.Seek(0, io.SeekStart); err != nil {
		return l, fmt.Errorf("seek start error: %w", err)
	}
	script := make([]byte, l.ScriptLen)
	if _, err = io.ReadFull(src, script); err != nil {
		return l, fmt.Errorf("read script error: %w", err)
	}

	if l.BootstrapLen, err = parseMarker(byteSizePattern, script); err != nil {
		return l, formatError("shell script", "parse bootstrap size error: %w", err)
	} else if l.BootstrapLen < 0 {
		return l, formatError("shell script", "bootstrap size marker not found within the first %d lines", lines)
	}
	if err = l.Validate(); err != nil {
		return l, err
	}

	if opts.Unpacker {
		if err = writeSegment(filepath.Join(dir, ScriptName), scriptPerm, bytes.NewReader(script), opts.Logger); err != nil {
			return l, err
		}
	}

	if opts.MojoSetup {
		if _, err = src.Seek(l.ScriptLen, io.SeekStart); err != nil {
			return l, fmt.Errorf("seek bootstrap error: %w", err)
		}
		if err = writeSegment(filepath.Join(dir, BootstrapName), 0666, io.LimitReader(src, l.BootstrapLen), opts.Logger); err != nil {
			return l, err
		}
	}

	if opts.Data {
		if _, err = src.Seek(l.PayloadOffset(), io.SeekStart); err != nil {
			return l, fmt.Errorf("seek payload error: %w", err)
		}
		if err = writePayload(ctx, filepath.Join(dir, PayloadName), src, opts); err != nil {
			return l, err
		}
	}

	return l, nil
}

// writeSegment writes r to the named file. If perm has any execute bit, it is applied regardless of umask.
func writeSegment(name string, perm os.FileMode, r io.Reader, logger *log.Logger) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s error: %w", filepath.Base(name), err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s error: %w", filepath.Base(name), err)
	}

	if perm&0111 != 0 {
		if err = chmod(f, perm); err != nil {
			_ = f.Close()
			return fmt.Errorf("chmod %s error: %w", filepath.Base(name), err)
		}
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s error: %w", filepath.Base(name), err)
	}

	if logger != nil {
		logger.Printf("wrote %s (%s)", filepath.Base(name), humanize.IBytes(uint64(n)))
	}

	return nil
}

// writePayload copies the rest of src to the named file.
//
// The copy can be cancelled with ctx, and every byte is also sent to opts.ProgressBar if given.
func writePayload(ctx context.Context, name string, src io.Reader, opts *SplitOptions) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("create %s error: %w", filepath.Base(name), err)
	}

	var w io.Writer = f
	if opts.ProgressBar != nil {
		w = io.MultiWriter(f, opts.ProgressBar)
	}

	n, err := CopyBufferWithContext(ctx, w, src, nil)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s error: %w", filepath.Base(name), err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s error: %w", filepath.Base(name), err)
	}

	if opts.Logger != nil {
		opts.Logger.Printf("wrote %s (%s)", filepath.Base(name), humanize.IBytes(uint64(n)))
	}

	return nil
}
