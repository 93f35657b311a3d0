// Package headerscan is a line-oriented lexer for RFC 822 header
// regions. It walks a stream, stitches folded field values back
// together, and accounts for the physical and virtual size of the
// region as it goes, which is what the part parser records and the
// search engine verifies against.
package headerscan

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/zostay/go-mailpart/stream"
)

// ErrTooLong is returned when the header region exceeds the scanner's
// configured maximum byte length.
var ErrTooLong = errors.New("header exceeds maximum scan length")

// Field is one logical header field with its folded continuation lines
// stitched into Value.
type Field struct {
	// Name is the field name before the colon. Lines that are neither a
	// valid field nor a continuation surface with an empty Name.
	Name string

	// Value is the field body, unfolded: continuation line breaks and
	// their leading whitespace collapse to a single space.
	Value string
}

// Scanner reads header fields off the front of a stream. After Next
// returns io.EOF the stream is positioned at the first body byte and
// Sizes reports the region consumed, blank separator line included.
type Scanner struct {
	// Stop, when set, is consulted with each line (terminator stripped)
	// before it is consumed. A true return ends the header region
	// without consuming the line; the part parser uses this to keep a
	// blank-line-less header from running through a MIME boundary.
	Stop func(line []byte) bool

	// Raw, when set, receives every consumed line exactly as it appears
	// in the source, terminator included. The search engine taps the
	// header bytes through it.
	Raw func(raw []byte)

	s       stream.Stream
	maxLen  int
	phys    uint64
	virt    uint64
	lines   uint32
	pending *line
	done    bool
	err     error
}

type line struct {
	text  []byte // line content, terminator and trailing CR stripped
	blank bool
}

// New returns a scanner over s. maxLen bounds the region; zero or
// negative means unbounded.
func New(s stream.Stream, maxLen int) *Scanner {
	return &Scanner{s: s, maxLen: maxLen}
}

// Sizes reports the physical and virtual byte size consumed so far.
// The virtual size counts each bare LF as CRLF.
func (sc *Scanner) Sizes() (physical, virtual uint64) {
	return sc.phys, sc.virt
}

// Lines reports how many terminated lines were consumed so far.
func (sc *Scanner) Lines() uint32 { return sc.lines }

// readLine consumes one line including its terminator, keeping the size
// accounting current. A nil line means the region is exhausted.
func (sc *Scanner) readLine() (*line, error) {
	if sc.err != nil {
		return nil, sc.err
	}

	data := sc.s.Data()
	idx := bytes.IndexByte(data, '\n')
	for idx < 0 {
		if sc.maxLen > 0 && int(sc.phys)+len(data) > sc.maxLen {
			sc.err = ErrTooLong
			return nil, sc.err
		}
		if _, err := sc.s.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			sc.err = err
			return nil, err
		}
		data = sc.s.Data()
		idx = bytes.IndexByte(data, '\n')
	}
	data = sc.s.Data()

	var raw []byte
	if idx < 0 {
		if len(data) == 0 {
			return nil, nil
		}
		raw = data
	} else {
		raw = data[:idx+1]
	}

	text := raw
	term := 0
	if idx >= 0 {
		text = text[:len(text)-1]
		term = 1
		if len(text) > 0 && text[len(text)-1] == '\r' {
			text = text[:len(text)-1]
			term = 2
		}
	}

	if sc.Stop != nil && len(text) > 0 && sc.Stop(text) {
		return nil, nil
	}

	ln := &line{text: append([]byte(nil), text...), blank: len(text) == 0 && term > 0}
	sc.phys += uint64(len(raw))
	sc.virt += uint64(len(raw))
	if term == 1 {
		sc.virt++ // bare LF counts as CRLF
	}
	if term > 0 {
		sc.lines++
	}
	if sc.maxLen > 0 && int(sc.phys) > sc.maxLen {
		sc.err = ErrTooLong
		return nil, sc.err
	}
	if sc.Raw != nil {
		sc.Raw(raw)
	}
	if err := sc.s.Skip(int64(len(raw))); err != nil {
		sc.err = err
		return nil, err
	}
	return ln, nil
}

func isWSP(b byte) bool { return b == ' ' || b == '\t' }

// Next returns the next logical field. It returns io.EOF once the blank
// separator line or the end of the region is reached.
func (sc *Scanner) Next() (*Field, error) {
	if sc.done {
		return nil, io.EOF
	}
	if sc.err != nil {
		return nil, sc.err
	}

	first := sc.pending
	sc.pending = nil
	if first == nil {
		var err error
		first, err = sc.readLine()
		if err != nil {
			return nil, err
		}
	}
	if first == nil || first.blank {
		sc.done = true
		return nil, io.EOF
	}

	f := &Field{}
	if colon := bytes.IndexByte(first.text, ':'); colon >= 0 {
		f.Name = strings.TrimRight(string(first.text[:colon]), " \t")
		f.Value = strings.TrimLeft(string(first.text[colon+1:]), " \t")
	} else {
		f.Value = string(first.text)
	}

	// stitch folded continuation lines
	for {
		ln, err := sc.readLine()
		if err != nil {
			return f, nil
		}
		if ln == nil || ln.blank {
			sc.done = true
			return f, nil
		}
		if !isWSP(ln.text[0]) {
			sc.pending = ln
			return f, nil
		}
		f.Value += " " + strings.TrimLeft(string(ln.text), " \t")
	}
}

// Drain consumes the rest of the header region without returning
// fields, so callers interested only in sizes can finish the scan.
func (sc *Scanner) Drain() error {
	for {
		_, err := sc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
