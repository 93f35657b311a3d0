package message

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"strings"

	"github.com/zostay/go-mailpart/internal/headerscan"
	"github.com/zostay/go-mailpart/stream"
)

// Constants related to Parse() options.
const (
	// DefaultMaxMultipartDepth is the default depth the parser will
	// recurse into a message.
	DefaultMaxMultipartDepth = 10

	// DefaultMaxHeaderLength is the default maximum byte length of any
	// single header region before parsing gives up.
	DefaultMaxHeaderLength = 65536
)

// ErrLargeHeader is returned by Parse when a header region is longer
// than the configured WithMaxHeaderLength option (or the default,
// DefaultMaxHeaderLength).
var ErrLargeHeader = errors.New("the header exceeds the maximum parse length")

type parser struct {
	s            stream.Stream
	maxDepth     int
	maxHeaderLen int
}

// ParseOption modifies how the parser works.
type ParseOption func(*parser)

// WithMaxDepth controls how deep the parser recurses into nested
// multipart and message/rfc822 parts. Parts below the limit are sized
// but not descended into.
func WithMaxDepth(n int) ParseOption {
	return func(pr *parser) { pr.maxDepth = n }
}

// WithMaxHeaderLength bounds the size of any single header region, so
// hostile input cannot run the scanner out of memory. Zero or negative
// removes the bound.
func WithMaxHeaderLength(n int) ParseOption {
	return func(pr *parser) { pr.maxHeaderLen = n }
}

// tally accumulates region sizes while scanning. Unlike Size it always
// counts lines; whether they land on the part depends on its flags.
type tally struct {
	phys  uint64
	virt  uint64
	lines uint32
}

func (t *tally) add(o tally) {
	t.phys += o.phys
	t.virt += o.virt
	t.lines += o.lines
}

// boundaryEntry is one open multipart boundary. The stack of these
// terminates body scans; an inner part reusing an ancestor's boundary
// never makes it onto the stack, which is how the ancestor wins the
// RFC 2046 tie-break.
type boundaryEntry struct {
	delim []byte
	owner *Part
}

// Parse consumes the stream from its current position and returns the
// structural tree of the message. The stream must be seekable for the
// returned tree to be usable with the search engine, which re-reads
// regions by position.
//
// Parsing is best-effort: malformed boundaries and truncated headers
// yield a tree that still satisfies the structural invariants, together
// with the error that stopped the scan. Callers detect truncation by
// comparing the root's total size against the on-disk message length.
func Parse(s stream.Stream, opts ...ParseOption) (*Part, error) {
	pr := &parser{
		s:            s,
		maxDepth:     DefaultMaxMultipartDepth,
		maxHeaderLen: DefaultMaxHeaderLength,
	}
	for _, opt := range opts {
		opt(pr)
	}

	root := &Part{}
	_, err := pr.parsePart(root, nil, 0)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return root, err
}

// lineInfo is one peeked line: text up to the LF (which may still end
// with CR) and whether an LF terminated it.
type lineInfo struct {
	text []byte
	term int // 0 at end of input, 1 for a terminating LF
}

// peekLine exposes the next line without consuming it. It returns
// io.EOF when no input remains.
func (pr *parser) peekLine() (*lineInfo, error) {
	data := pr.s.Data()
	idx := bytes.IndexByte(data, '\n')
	for idx < 0 {
		if _, err := pr.s.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		data = pr.s.Data()
		idx = bytes.IndexByte(data, '\n')
	}
	data = pr.s.Data()
	if idx < 0 {
		if len(data) == 0 {
			return nil, io.EOF
		}
		return &lineInfo{text: data}, nil
	}
	return &lineInfo{text: data[:idx], term: 1}, nil
}

// consume advances past a peeked line, folding its bytes into the tally.
func (pr *parser) consume(ln *lineInfo, t *tally) error {
	n := len(ln.text) + ln.term
	t.phys += uint64(n)
	t.virt += uint64(n)
	if ln.term > 0 {
		t.lines++
		if len(ln.text) == 0 || ln.text[len(ln.text)-1] != '\r' {
			t.virt++ // bare LF counts as CRLF
		}
	}
	return pr.s.Skip(int64(n))
}

// matchBoundary checks a line against the open boundary stack,
// innermost first. It returns the index of the matched entry and
// whether the line is the closing "--boundary--" form.
func matchBoundary(stack []*boundaryEntry, text []byte) (int, bool) {
	t := bytes.TrimRight(text, "\r")
	if !bytes.HasPrefix(t, []byte("--")) {
		return -1, false
	}
	t = t[2:]
	for i := len(stack) - 1; i >= 0; i-- {
		if !bytes.HasPrefix(t, stack[i].delim) {
			continue
		}
		rest := bytes.TrimRight(t[len(stack[i].delim):], " \t")
		if len(rest) == 0 {
			return i, false
		}
		if bytes.Equal(rest, []byte("--")) {
			return i, true
		}
	}
	return -1, false
}

func stackHas(stack []*boundaryEntry, delim string) bool {
	for _, b := range stack {
		if string(b.delim) == delim {
			return true
		}
	}
	return false
}

// parsePart parses one part, header and body, leaving the stream
// positioned at the enclosing boundary line (or the end of input). It
// returns the total size of the region it consumed.
func (pr *parser) parsePart(p *Part, stack []*boundaryEntry, depth int) (tally, error) {
	var total tally

	ct, err := pr.parseHeader(p, stack, &total)
	if err != nil {
		return total, err
	}

	var (
		mediatype string
		params    map[string]string
	)
	if ct != "" {
		mediatype, params, _ = mime.ParseMediaType(ct)
		mediatype = strings.ToLower(mediatype)
	}

	switch {
	case strings.HasPrefix(mediatype, "multipart/"):
		p.Flags |= FlagMultipart
		if mediatype == "multipart/signed" {
			p.Flags |= FlagMultipartSigned
		}
		if delim := params["boundary"]; delim != "" {
			p.Flags |= FlagHasBoundary
			if depth < pr.maxDepth && !stackHas(stack, delim) {
				return pr.parseMultipart(p, stack, delim, depth, total)
			}
		}
	case mediatype == "message/rfc822":
		if depth < pr.maxDepth {
			p.Flags |= FlagMessageRFC822
			return pr.parseMessage(p, stack, depth, total)
		}
	case mediatype == "" || strings.HasPrefix(mediatype, "text/"):
		p.Flags |= FlagText
	}

	body, err := pr.scanOpaque(stack)
	p.BodySize = Size{Physical: body.phys, Virtual: body.virt}
	if p.Flags&countsLines != 0 {
		p.BodySize.Lines = body.lines
	}
	total.add(body)
	return total, err
}

// parseHeader scans the header region, recording its size on the part
// and returning the Content-Type value, if any.
func (pr *parser) parseHeader(p *Part, stack []*boundaryEntry, total *tally) (string, error) {
	hs := headerscan.New(pr.s, pr.maxHeaderLen)
	hs.Stop = func(line []byte) bool {
		i, _ := matchBoundary(stack, line)
		return i >= 0
	}

	var ct string
	var scanErr error
	for {
		f, err := hs.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				scanErr = err
			}
			break
		}
		if strings.EqualFold(f.Name, "Content-Type") && ct == "" {
			ct = f.Value
		}
	}

	phys, virt := hs.Sizes()
	p.HeaderSize = Size{Physical: phys, Virtual: virt}
	total.phys += phys
	total.virt += virt
	total.lines += hs.Lines()

	if errors.Is(scanErr, headerscan.ErrTooLong) {
		scanErr = ErrLargeHeader
	}
	return ct, scanErr
}

// scanOpaque counts body bytes up to the nearest open boundary line or
// the end of input, without consuming the boundary.
func (pr *parser) scanOpaque(stack []*boundaryEntry) (tally, error) {
	var t tally
	for {
		ln, err := pr.peekLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return t, nil
			}
			return t, err
		}
		if i, _ := matchBoundary(stack, ln.text); i >= 0 {
			return t, nil
		}
		if err := pr.consume(ln, &t); err != nil {
			return t, err
		}
		if ln.term == 0 {
			return t, nil
		}
	}
}

// parseMessage parses the single embedded sub-message of a
// message/rfc822 part. The embedded message is the whole body.
func (pr *parser) parseMessage(p *Part, stack []*boundaryEntry, depth int, total tally) (tally, error) {
	child := &Part{Parent: p, PhysicalPos: uint64(pr.s.Offset())}
	p.Children = []*Part{child}

	sub, err := pr.parsePart(child, stack, depth+1)
	p.BodySize = Size{Physical: sub.phys, Virtual: sub.virt, Lines: sub.lines}
	total.add(sub)
	return total, err
}

// parseMultipart parses the children delimited by the part's own
// boundary. The preamble, the boundary lines themselves and the
// epilogue after the closing boundary all count toward the parent's
// body.
func (pr *parser) parseMultipart(p *Part, stack []*boundaryEntry, delim string, depth int, total tally) (tally, error) {
	var body tally

	inner := make([]*boundaryEntry, len(stack)+1)
	copy(inner, stack)
	inner[len(stack)] = &boundaryEntry{delim: []byte(delim), owner: p}

	finish := func(err error) (tally, error) {
		p.BodySize = Size{Physical: body.phys, Virtual: body.virt}
		total.add(body)
		return total, err
	}

	for {
		ln, err := pr.peekLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return finish(nil)
			}
			return finish(err)
		}

		i, closing := matchBoundary(inner, ln.text)
		if i < 0 {
			// preamble, or stray bytes between boundary lines
			if err := pr.consume(ln, &body); err != nil {
				return finish(err)
			}
			if ln.term == 0 {
				return finish(nil)
			}
			continue
		}
		if i < len(stack) {
			// an ancestor's boundary: our closing delimiter never came
			return finish(nil)
		}

		term := ln.term
		if err := pr.consume(ln, &body); err != nil {
			return finish(err)
		}
		if closing {
			// epilogue belongs to this part's body
			ep, err := pr.scanOpaque(stack)
			body.add(ep)
			return finish(err)
		}
		if term == 0 {
			return finish(nil)
		}

		child := &Part{Parent: p, PhysicalPos: uint64(pr.s.Offset())}
		p.Children = append(p.Children, child)
		sub, err := pr.parsePart(child, inner, depth+1)
		body.add(sub)
		if err != nil {
			return finish(err)
		}
	}
}
