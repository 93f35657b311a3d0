package stream_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/go-mailpart/stream"
)

func TestTeeChildrenShareUpstream(t *testing.T) {
	t.Parallel()

	tee := stream.NewTee(stream.NewBuffer([]byte("abcdef")))
	c1 := tee.Child()
	c2 := tee.Child()

	data, err := stream.ReadData(c1, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), data)

	// c2 sees the same bytes without re-reading
	assert.Equal(t, []byte("abcdef"), c2.Data())

	// a fast child consuming does not steal from the slow one
	require.NoError(t, c1.Skip(6))
	assert.Equal(t, []byte("abcdef"), c2.Data())
	assert.Nil(t, c1.Data())

	// once the slow child advances, the shared buffer is reclaimed
	require.NoError(t, c2.Skip(3))
	assert.Equal(t, []byte("def"), c2.Data())
	assert.Equal(t, int64(6), c1.Offset())
	assert.Equal(t, int64(3), c2.Offset())
}

func TestTeeBusy(t *testing.T) {
	t.Parallel()

	tee := stream.NewTee(
		stream.NewBuffer([]byte("0123456789")),
		stream.WithTeeMaxBuffer(4))
	c1 := tee.Child()
	c2 := tee.Child()

	_, err := c1.Read()
	assert.NoError(t, err)

	// c2 has not moved, so the buffer cannot grow further
	_, err = c1.Read()
	assert.ErrorIs(t, err, stream.ErrBusy)

	// the laggard advancing clears the pressure
	require.NoError(t, c2.Skip(10))
	require.NoError(t, c1.Skip(10))
	_, err = c1.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTeeChildClose(t *testing.T) {
	t.Parallel()

	tee := stream.NewTee(stream.NewBuffer([]byte("abc")))
	c1 := tee.Child()
	c2 := tee.Child()

	_, err := stream.ReadData(c1, 0)
	assert.NoError(t, err)

	// closing the slow child releases its hold
	require.NoError(t, c2.Close())
	require.NoError(t, c1.Skip(3))
	_, err = c1.Read()
	assert.ErrorIs(t, err, io.EOF)

	_, err = c2.Read()
	assert.ErrorIs(t, err, stream.ErrClosed)
}
