package stream

import "io"

// limited is a bounded child view over a parent stream. The view appears
// to begin at offset 0 and ends after length bytes; reads past the end
// return io.EOF. The child drives the parent's position, so only one
// view may be active at a time; interleaved cursors need a Tee.
type limited struct {
	parent Stream
	base   int64
	length int64
	pos    int64 // logical offset of the window start within the view
	err    error
}

// Limit returns a child view over length bytes of parent starting at the
// absolute offset start. The child inherits the parent's seekability.
func Limit(parent Stream, start, length int64) Stream {
	return &limited{parent: parent, base: start, length: length}
}

// align repositions the parent at the child's window start if another
// view moved it since the last call.
func (s *limited) align() error {
	want := s.base + s.pos
	if s.parent.Offset() == want {
		return nil
	}
	if err := s.parent.Seek(want); err != nil {
		if err == ErrNotSeekable && s.parent.Offset() < want {
			return s.parent.Skip(want - s.parent.Offset())
		}
		return err
	}
	return nil
}

func (s *limited) Read() (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if err := s.align(); err != nil {
		s.err = err
		return 0, err
	}
	if s.pos+int64(len(s.parent.Data())) >= s.length {
		return 0, io.EOF
	}
	n, err := s.parent.Read()
	if err != nil && err != io.EOF {
		s.err = err
	}
	if over := s.pos + int64(len(s.parent.Data())) - s.length; err == nil && over > 0 {
		n -= int(over)
		if n < 0 {
			n = 0
		}
	}
	return n, err
}

func (s *limited) Data() []byte {
	if s.err != nil {
		return nil
	}
	if s.parent.Offset() != s.base+s.pos {
		return nil
	}
	d := s.parent.Data()
	if max := s.length - s.pos; int64(len(d)) > max {
		d = d[:max]
	}
	return d
}

func (s *limited) Skip(n int64) error {
	if s.err != nil {
		return s.err
	}
	if err := s.align(); err != nil {
		s.err = err
		return err
	}
	if n > s.length-s.pos {
		n = s.length - s.pos
	}
	if err := s.parent.Skip(n); err != nil {
		s.err = err
		return err
	}
	s.pos += n
	return nil
}

func (s *limited) Seek(offset int64) error {
	if s.err != nil {
		return s.err
	}
	if offset > s.length {
		offset = s.length
	}
	if err := s.parent.Seek(s.base + offset); err != nil {
		if err != ErrNotSeekable {
			s.err = err
		}
		return err
	}
	s.pos = offset
	return nil
}

func (s *limited) Offset() int64 { return s.pos }

// Close detaches the view. The parent stays open; it belongs to the
// caller that created the view.
func (s *limited) Close() error {
	if s.err == nil {
		s.err = ErrClosed
	}
	return nil
}
