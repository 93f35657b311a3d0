package stream

import "io"

// DefaultTeeMaxBuffer is the buffer-growth ceiling a Tee uses unless
// WithTeeMaxBuffer says otherwise.
const DefaultTeeMaxBuffer = 1 << 20

// Tee fans a single upstream out to multiple independent child cursors.
// The children share the upstream's buffer: the tee holds exactly the
// span between the slowest and fastest child and reclaims it as the
// slowest child advances. Once the span has reached the ceiling, a
// child's Read gets ErrBusy until laggards catch up; the single upstream
// Read that reaches the ceiling may carry the span past it.
type Tee struct {
	src      Stream
	children []*teeChild
	maxBuf   int64
}

// TeeOption configures a Tee.
type TeeOption func(*Tee)

// WithTeeMaxBuffer sets the ceiling on the shared buffer span.
func WithTeeMaxBuffer(n int64) TeeOption {
	return func(t *Tee) { t.maxBuf = n }
}

// NewTee wraps src for fan-out. The upstream must not be read directly
// once the tee owns it.
func NewTee(src Stream, opts ...TeeOption) *Tee {
	t := &Tee{src: src, maxBuf: DefaultTeeMaxBuffer}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Child issues a new cursor positioned at the upstream's current offset.
func (t *Tee) Child() Stream {
	c := &teeChild{tee: t, off: t.src.Offset()}
	t.children = append(t.children, c)
	return c
}

// Close closes the upstream. Children fail with the upstream's sticky
// error afterwards.
func (t *Tee) Close() error {
	return t.src.Close()
}

// reclaim drops the buffer prefix every remaining child has consumed.
func (t *Tee) reclaim() error {
	if len(t.children) == 0 {
		return nil
	}
	min := t.children[0].off
	for _, c := range t.children[1:] {
		if c.off < min {
			min = c.off
		}
	}
	if min > t.src.Offset() {
		return t.src.Skip(min - t.src.Offset())
	}
	return nil
}

func (t *Tee) drop(child *teeChild) {
	for i, c := range t.children {
		if c == child {
			t.children = append(t.children[:i], t.children[i+1:]...)
			break
		}
	}
	_ = t.reclaim()
}

type teeChild struct {
	tee *Tee
	off int64
	err error
}

func (c *teeChild) Read() (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	t := c.tee
	if err := t.reclaim(); err != nil {
		c.err = err
		return 0, err
	}
	if int64(len(t.src.Data())) >= t.maxBuf {
		return 0, ErrBusy
	}
	n, err := t.src.Read()
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

func (c *teeChild) Data() []byte {
	if c.err != nil {
		return nil
	}
	d := c.tee.src.Data()
	lead := c.off - c.tee.src.Offset()
	if lead >= int64(len(d)) {
		return nil
	}
	return d[lead:]
}

func (c *teeChild) Skip(n int64) error {
	if c.err != nil {
		return c.err
	}
	end := c.tee.src.Offset() + int64(len(c.tee.src.Data()))
	c.off += n
	if c.off > end {
		c.off = end
	}
	return c.tee.reclaim()
}

func (c *teeChild) Seek(int64) error {
	if c.err != nil {
		return c.err
	}
	return ErrNotSeekable
}

func (c *teeChild) Offset() int64 { return c.off }

// Close detaches the cursor and releases its hold on the shared buffer.
func (c *teeChild) Close() error {
	if c.err == nil {
		c.err = ErrClosed
		c.tee.drop(c)
	}
	return nil
}
