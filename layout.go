// Package gogextract splits MojoSetup installers into their segments and indexes the payload ZIP archive of local
// or remote installers without downloading them.
package gogextract

import "fmt"

// Range is a half-open byte range [Start, End).
type Range struct {
	Start, End int64
}

// Len returns End - Start.
func (r Range) Len() int64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Layout describes an installer as three contiguous segments: the shell script, the bootstrap archive, and the payload
// ZIP archive that occupies the remainder of the file.
//
// The segment ranges are derived from the three lengths and always satisfy
// Script().End == Bootstrap().Start, Bootstrap().End == Payload().Start, and Payload().End == Size.
type Layout struct {
	// ScriptLen is the exact number of bytes of the shell script header.
	ScriptLen int64
	// BootstrapLen is the number of bytes of the bootstrap archive, as declared by the shell script.
	BootstrapLen int64
	// Size is the total size of the installer.
	Size int64
}

// Script returns the range of the shell script header.
func (l Layout) Script() Range {
	return Range{0, l.ScriptLen}
}

// Bootstrap returns the range of the bootstrap archive.
func (l Layout) Bootstrap() Range {
	return Range{l.ScriptLen, l.ScriptLen + l.BootstrapLen}
}

// Payload returns the range of the payload ZIP archive.
func (l Layout) Payload() Range {
	return Range{l.PayloadOffset(), l.Size}
}

// PayloadOffset returns the absolute offset of the payload, which is also the value to add to any offset that is
// relative to the start of the ZIP archive.
func (l Layout) PayloadOffset() int64 {
	return l.ScriptLen + l.BootstrapLen
}

// Validate returns a FormatError if the lengths are negative or the declared segments do not fit within Size.
func (l Layout) Validate() error {
	switch {
	case l.ScriptLen < 0 || l.BootstrapLen < 0:
		return formatError("layout", "negative segment length (script=%d, bootstrap=%d)", l.ScriptLen, l.BootstrapLen)
	case l.PayloadOffset() > l.Size:
		return formatError("layout", "script (%d bytes) and bootstrap (%d bytes) exceed total size %d", l.ScriptLen, l.BootstrapLen, l.Size)
	default:
		return nil
	}
}
