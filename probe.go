package gogextract

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strconv"

	"github.com/dustin/go-humanize"
)

var (
	// lineCountPattern captures the number of lines of the shell script header.
	lineCountPattern = regexp.MustCompile("offset=`head -n (\\d+)")
	// byteSizePattern captures the size of the bootstrap archive.
	byteSizePattern = regexp.MustCompile(`filesizes="(\d+)`)
)

// MaxScriptSize is the largest shell script header that ProbeSizes will read.
const MaxScriptSize int64 = 1 << 20

// ProbeSizes reads r line by line to determine the length of the shell script header and of the bootstrap archive.
//
// The script declares its own line count with "offset=`head -n N" and the bootstrap size with `filesizes="M`, which
// must appear within those N lines. The returned scriptLen is the exact number of bytes of the first N lines including
// their line terminators.
//
// ProbeSizes consumes r and stops as soon as both markers are found and N lines have been read. A FormatError is
// returned if either marker is missing, if the line count marker does not start within the first few KiB, if the N
// lines exceed MaxScriptSize, or if r ends before N lines.
func ProbeSizes(r io.Reader) (scriptLen, bootstrapLen int64, err error) {
	var (
		br = bufio.NewReaderSize(r, 4096)
		// line accumulates the fragments of the current line.
		line []byte
		// ends[i] is the cumulative byte count through line i+1, kept until the line count is known.
		ends []int64
		// n is the declared line count; -1 until found.
		n int64 = -1
		// sizeLine is the 1-based line number where the byte-size marker was first found; 0 if not found.
		sizeLine int64
		read     int64
		perr     error
	)
	bootstrapLen = -1

	for n < 0 || int64(len(ends)) < n {
		frag, err := br.ReadSlice('\n')
		line = append(line, frag...)
		read += int64(len(frag))

		eof := errors.Is(err, io.EOF)
		if err != nil && !eof && !errors.Is(err, bufio.ErrBufferFull) {
			return 0, 0, err
		}

		if len(line) > 0 && (eof || line[len(line)-1] == '\n') {
			ends = append(ends, read)

			if n < 0 {
				if n, perr = parseMarker(lineCountPattern, line); perr != nil {
					return 0, 0, formatError("shell script", "parse line count error: %w", perr)
				}
			}

			if bootstrapLen < 0 {
				if bootstrapLen, perr = parseMarker(byteSizePattern, line); perr != nil {
					return 0, 0, formatError("shell script", "parse bootstrap size error: %w", perr)
				}
				if bootstrapLen >= 0 {
					sizeLine = int64(len(ends))
				}
			}

			line = line[:0]
		}

		if eof {
			break
		}

		// a partial line may still turn out to hold the line count marker.
		if n < 0 && read >= peekSize && !lineCountPattern.Match(line) {
			return 0, 0, formatError("shell script", "line count marker not found in the first %d bytes", read)
		}
		if read > MaxScriptSize {
			return 0, 0, formatError("shell script", "script header exceeds %s", humanize.IBytes(uint64(MaxScriptSize)))
		}
	}

	switch {
	case n < 0:
		return 0, 0, formatError("shell script", "line count marker not found in %d lines", len(ends))
	case int64(len(ends)) < n:
		return 0, 0, formatError("shell script", "stream ended after %d lines, expected at least %d", len(ends), n)
	case bootstrapLen < 0 || sizeLine > n:
		return 0, 0, formatError("shell script", "bootstrap size marker not found within the first %d lines", n)
	default:
		return ends[n-1], bootstrapLen, nil
	}
}

// parseMarker returns the number captured by the pattern, or -1 if the pattern does not match b.
func parseMarker(pattern *regexp.Regexp, b []byte) (int64, error) {
	m := pattern.FindSubmatch(b)
	if m == nil {
		return -1, nil
	}

	return strconv.ParseInt(string(m[1]), 10, 64)
}

// scriptLength returns the exact number of bytes of the first n lines of r.
func scriptLength(r io.Reader, n int64) (int64, error) {
	br := bufio.NewReader(r)

	var size int64
	for i := int64(0); i < n; i++ {
		line, err := br.ReadBytes('\n')
		size += int64(len(line))

		if errors.Is(err, io.EOF) {
			if len(line) > 0 && i == n-1 {
				return size, nil
			}
			return 0, formatError("shell script", "file ended after %d lines, expected at least %d", i, n)
		}
		if err != nil {
			return 0, err
		}
	}

	return size, nil
}
