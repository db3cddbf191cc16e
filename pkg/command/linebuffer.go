package command

import (
	"bytes"
	"errors"
	"strings"
)

// DefaultLineCapacity bounds the reassembly window for a single command
// line read from stdin.
const DefaultLineCapacity = 4096

// ErrLineTooLong reports that a pending line outgrew the window and was
// discarded. It is returned once per over-long line, not for every further
// chunk of it.
var ErrLineTooLong = errors.New("ultra-long command line ignored")

// LineBuffer reassembles a byte stream into discrete newline-terminated
// command lines, tolerating partial reads. The partial-line window has a
// fixed capacity: an over-long line is dropped with ErrLineTooLong instead
// of growing the buffer, and the rest of that line is swallowed quietly up
// to its eventual newline.
type LineBuffer struct {
	pending []byte   // partial line; cap is the window capacity
	lines   []string // complete raw lines awaiting Next
	ignore  bool     // discarding the tail of an over-long line
}

// NewLineBuffer returns a LineBuffer with the given window capacity;
// capacity <= 0 selects DefaultLineCapacity.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = DefaultLineCapacity
	}
	return &LineBuffer{pending: make([]byte, 0, capacity)}
}

// Feed appends incoming bytes, splitting off complete lines as they form.
func (b *LineBuffer) Feed(p []byte) error {
	var err error
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			if b.ignore {
				return err // still inside the over-long line
			}
			if len(b.pending)+len(p) > cap(b.pending) {
				b.pending = b.pending[:0]
				b.ignore = true
				if err == nil {
					err = ErrLineTooLong
				}
				return err
			}
			b.pending = append(b.pending, p...)
			return err
		}
		chunk := p[:i]
		p = p[i+1:]
		if b.ignore {
			// the over-long line finally ended; drop it
			b.ignore = false
			b.pending = b.pending[:0]
			continue
		}
		if len(b.pending)+len(chunk) > cap(b.pending) {
			b.pending = b.pending[:0]
			if err == nil {
				err = ErrLineTooLong
			}
			continue
		}
		b.lines = append(b.lines, string(b.pending)+string(chunk))
		b.pending = b.pending[:0]
	}
	return err
}

// Next returns the next complete command line, trimmed of surrounding
// whitespace, skipping blank lines and '#' comments. ok is false when no
// complete line is buffered.
func (b *LineBuffer) Next() (line string, ok bool) {
	for len(b.lines) > 0 {
		raw := b.lines[0]
		b.lines = b.lines[1:]
		line = strings.TrimSpace(raw)
		if line == "" || line[0] == '#' {
			continue
		}
		return line, true
	}
	return "", false
}

// Reset discards any partially buffered command and pending overflow
// state; used when command input is switched off.
func (b *LineBuffer) Reset() {
	b.pending = b.pending[:0]
	b.lines = nil
	b.ignore = false
}
