// Package stream provides the lazily buffered byte-stream abstraction the
// message parser and the body-search engine consume. A Stream exposes a
// window of buffered bytes that grows via Read and shrinks via Skip, so
// parsers can look ahead across block boundaries without re-entrancy or
// copying. Streams over files and memory regions are seekable; bounded
// child views are created with Limit and fan-out cursors with Tee.
package stream

import (
	"errors"
	"io"
)

// Errors returned by streams.
var (
	// ErrClosed is returned by every call made after Close. In-flight
	// readers observe it on their next call.
	ErrClosed = errors.New("stream is closed")

	// ErrNotSeekable is returned by Seek on streams that read from a
	// sequential source.
	ErrNotSeekable = errors.New("stream is not seekable")

	// ErrBusy is returned by a tee child's Read while the shared buffer
	// already holds at least the configured ceiling. It is not sticky;
	// the call will succeed once slower children advance.
	ErrBusy = errors.New("stream buffer is full")
)

// Stream is a forward-reading view over a sequence of bytes. Read extends
// the buffered window, Data exposes it without consuming, and Skip
// consumes from its front. All errors are sticky except ErrBusy: after
// the first failure every subsequent call reports the same error.
type Stream interface {
	// Read extends the buffered window, returning the number of bytes
	// added. It returns io.EOF once the underlying source is exhausted
	// and may block until input is available.
	Read() (int, error)

	// Data returns the buffered bytes that have not been consumed yet.
	// The slice is only valid until the next call on the stream.
	Data() []byte

	// Skip consumes n bytes, advancing Offset. Skipping past the buffered
	// window is permitted on any stream; sequential streams read and
	// discard to get there.
	Skip(n int64) error

	// Seek repositions the stream at the given absolute offset and
	// discards the buffered window. Only seekable streams support it.
	Seek(offset int64) error

	// Offset reports the logical position of Data()[0] within the stream.
	Offset() int64

	// Close releases the underlying source. Closing is how a caller
	// cancels a search from another goroutine.
	Close() error
}

// ReadData reads until more than threshold bytes are buffered, then
// returns the window. At the end of the stream it returns the remaining
// window together with io.EOF. This is the look-ahead primitive used
// wherever a scanner needs a token that may span read boundaries.
func ReadData(s Stream, threshold int) ([]byte, error) {
	for len(s.Data()) <= threshold {
		if _, err := s.Read(); err != nil {
			return s.Data(), err
		}
	}
	return s.Data(), nil
}

// buffer is the in-memory Stream. The whole region is available up
// front, so Read only toggles window visibility.
type buffer struct {
	b      []byte
	off    int64 // offset of the window start
	avail  int64 // window length
	err    error
	closed bool
}

// NewBuffer returns a seekable Stream over the given bytes. The slice is
// not copied.
func NewBuffer(b []byte) Stream {
	return &buffer{b: b}
}

func (s *buffer) Read() (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	rest := int64(len(s.b)) - s.off - s.avail
	if rest <= 0 {
		return 0, io.EOF
	}
	s.avail += rest
	return int(rest), nil
}

func (s *buffer) Data() []byte {
	if s.err != nil {
		return nil
	}
	return s.b[s.off : s.off+s.avail]
}

func (s *buffer) Skip(n int64) error {
	if s.err != nil {
		return s.err
	}
	s.off += n
	s.avail -= n
	if s.off > int64(len(s.b)) {
		s.off = int64(len(s.b))
	}
	if s.avail < 0 {
		s.avail = 0
	}
	return nil
}

func (s *buffer) Seek(offset int64) error {
	if s.err != nil {
		return s.err
	}
	if offset > int64(len(s.b)) {
		offset = int64(len(s.b))
	}
	s.off = offset
	s.avail = 0
	return nil
}

func (s *buffer) Offset() int64 { return s.off }

func (s *buffer) Close() error {
	if !s.closed {
		s.closed = true
		s.err = ErrClosed
	}
	return nil
}

// readerAt is the Stream over an io.ReaderAt of known size, used for
// file- and mmap-backed messages.
type readerAt struct {
	r    io.ReaderAt
	size int64

	buf   []byte
	off   int64 // stream offset of buf[0]
	start int   // consumed prefix of buf
	err   error
}

// defaultChunk is how many bytes a readerAt stream pulls per Read.
const defaultChunk = 8192

// NewReaderAt returns a seekable Stream over the first size bytes of r.
func NewReaderAt(r io.ReaderAt, size int64) Stream {
	return &readerAt{r: r, size: size}
}

func (s *readerAt) Read() (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	end := s.off + int64(len(s.buf))
	if end >= s.size {
		return 0, io.EOF
	}
	want := int64(defaultChunk)
	if end+want > s.size {
		want = s.size - end
	}
	p := make([]byte, want)
	n, err := s.r.ReadAt(p, end)
	if n > 0 {
		s.off += int64(s.start)
		s.buf = append(s.buf[s.start:len(s.buf):len(s.buf)], p[:n]...)
		s.start = 0
	}
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *readerAt) Data() []byte {
	if s.err != nil {
		return nil
	}
	return s.buf[s.start:]
}

func (s *readerAt) Skip(n int64) error {
	if s.err != nil {
		return s.err
	}
	if n <= int64(len(s.buf)-s.start) {
		s.start += int(n)
		return nil
	}
	return s.Seek(s.Offset() + n)
}

func (s *readerAt) Seek(offset int64) error {
	if s.err != nil {
		return s.err
	}
	if offset > s.size {
		offset = s.size
	}
	s.off = offset
	s.buf = s.buf[:0]
	s.start = 0
	return nil
}

func (s *readerAt) Offset() int64 { return s.off + int64(s.start) }

func (s *readerAt) Close() error {
	if s.err == nil {
		s.err = ErrClosed
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// reader is the Stream over a sequential io.Reader. It cannot seek;
// skipping past the window reads and discards.
type reader struct {
	r     io.Reader
	buf   []byte
	off   int64 // stream offset of buf[0]
	start int   // consumed prefix of buf
	err   error
}

// NewReader returns a sequential Stream over r. Seek fails with
// ErrNotSeekable.
func NewReader(r io.Reader) Stream {
	return &reader{r: r}
}

func (s *reader) Read() (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	p := make([]byte, defaultChunk)
	n, err := s.r.Read(p)
	if n > 0 {
		s.off += int64(s.start)
		s.buf = append(s.buf[s.start:len(s.buf):len(s.buf)], p[:n]...)
		s.start = 0
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		s.err = err
		return n, err
	}
	if n == 0 {
		// A zero-byte read with no error; try again next call.
		return 0, nil
	}
	return n, nil
}

func (s *reader) Data() []byte {
	if s.err != nil {
		return nil
	}
	return s.buf[s.start:]
}

func (s *reader) Skip(n int64) error {
	if s.err != nil {
		return s.err
	}
	for n > int64(len(s.buf)-s.start) {
		n -= int64(len(s.buf) - s.start)
		s.off += int64(len(s.buf))
		s.buf = s.buf[:0]
		s.start = 0
		if _, err := s.Read(); err != nil {
			return err
		}
	}
	s.start += int(n)
	return nil
}

func (s *reader) Seek(int64) error {
	if s.err != nil {
		return s.err
	}
	return ErrNotSeekable
}

func (s *reader) Offset() int64 { return s.off + int64(s.start) }

func (s *reader) Close() error {
	if s.err == nil {
		s.err = ErrClosed
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
