// Package ndjson implements line framing, event decoding and malformed-line
// recovery for the newline-delimited JSON reply stream.
package ndjson

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMaxLineSize bounds the residue a Framer will hold (32 MiB).
// Inline base64 images make single lines large, so the limit is generous.
const DefaultMaxLineSize = 32 * 1024 * 1024

// FrameErrorKind classifies framing errors.
type FrameErrorKind int

const (
	// FrameErrorTooLarge indicates a line exceeding the configured maximum.
	FrameErrorTooLarge FrameErrorKind = iota
)

// FrameError represents a framing error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error ends the stream.
// Oversized lines cannot be resynchronized, so they are fatal.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Framer turns arbitrarily split byte chunks into complete lines.
//
// The residue is kept as raw bytes and only converted to a string once a
// line is complete, so multi-byte UTF-8 sequences split across chunk
// boundaries decode correctly. Yielded lines do not include the newline.
//
// A Framer is owned by a single session and is not safe for concurrent use.
type Framer struct {
	residue []byte
	maxLine int
}

// NewFramer creates a framer with DefaultMaxLineSize.
func NewFramer() *Framer {
	return NewFramerWithLimit(DefaultMaxLineSize)
}

// NewFramerWithLimit creates a framer with a custom residue limit.
// A limit <= 0 disables the check.
func NewFramerWithLimit(maxLine int) *Framer {
	return &Framer{maxLine: maxLine}
}

// Feed appends chunk to the residue and returns every line completed by it.
// The trailing fragment after the last newline becomes the new residue.
//
// Errors:
//   - *FrameError with Kind=FrameErrorTooLarge: residue exceeds the limit (fatal)
func (f *Framer) Feed(chunk []byte) ([]string, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	f.residue = append(f.residue, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.residue, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(f.residue[:idx]))
		f.residue = f.residue[idx+1:]
	}

	// Compact so the backing array does not grow without bound
	if len(f.residue) == 0 {
		f.residue = nil
	} else if len(lines) > 0 {
		f.residue = append([]byte(nil), f.residue...)
	}

	if f.maxLine > 0 && len(f.residue) > f.maxLine {
		size := len(f.residue)
		f.residue = nil
		return lines, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("line size %d exceeds maximum %d", size, f.maxLine),
		}
	}

	return lines, nil
}

// Flush returns the residue as a final line if it contains anything other
// than whitespace, and clears it. Called once at end of stream.
func (f *Framer) Flush() (string, bool) {
	rest := f.residue
	f.residue = nil
	if len(bytes.TrimSpace(rest)) == 0 {
		return "", false
	}
	return string(rest), true
}

// Pending returns the number of buffered residue bytes.
func (f *Framer) Pending() int {
	return len(f.residue)
}

// Reset discards the residue.
func (f *Framer) Reset() {
	f.residue = nil
}
