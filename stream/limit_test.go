package stream_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/go-mailpart/stream"
)

func TestLimit(t *testing.T) {
	t.Parallel()

	parent := stream.NewBuffer([]byte("0123456789"))
	child := stream.Limit(parent, 2, 5)

	assert.Equal(t, int64(0), child.Offset())

	data, err := stream.ReadData(child, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)

	require.NoError(t, child.Skip(3))
	assert.Equal(t, int64(3), child.Offset())
	assert.Equal(t, []byte("56"), child.Data())

	// reads past the view's end report EOF
	_, err = stream.ReadData(child, 2)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, child.Seek(0))
	data, err = stream.ReadData(child, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)
}

func TestLimitRealigns(t *testing.T) {
	t.Parallel()

	parent := stream.NewBuffer([]byte("0123456789"))
	a := stream.Limit(parent, 0, 4)
	b := stream.Limit(parent, 4, 4)

	data, err := stream.ReadData(a, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("0123"), data)

	data, err = stream.ReadData(b, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("4567"), data)

	// a realigns the parent the next time it is used
	data, err = stream.ReadData(a, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte("0123"), data)
}

func TestLimitTruncatedParent(t *testing.T) {
	t.Parallel()

	// the view is longer than the parent really is
	parent := stream.NewBuffer([]byte("abc"))
	child := stream.Limit(parent, 1, 10)

	data, err := stream.ReadData(child, 2)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []byte("bc"), data)
}
