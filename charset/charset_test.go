package charset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/go-mailpart/charset"
)

func TestToUpperUTF8String(t *testing.T) {
	t.Parallel()

	got, err := charset.ToUpperUTF8String("", "héllo wörld")
	assert.NoError(t, err)
	assert.Equal(t, "HÉLLO WÖRLD", got)

	got, err = charset.ToUpperUTF8String("utf-8", "café")
	assert.NoError(t, err)
	assert.Equal(t, "CAFÉ", got)

	got, err = charset.ToUpperUTF8String("us-ascii", "plain text")
	assert.NoError(t, err)
	assert.Equal(t, "PLAIN TEXT", got)
}

func TestToUpperUTF8StringLatin1(t *testing.T) {
	t.Parallel()

	got, err := charset.ToUpperUTF8String("iso-8859-1", "caf\xe9")
	assert.NoError(t, err)
	assert.Equal(t, "CAFÉ", got)
}

func TestUnknownCharset(t *testing.T) {
	t.Parallel()

	_, err := charset.NewConverter("x-no-such-charset")
	assert.ErrorIs(t, err, charset.ErrUnknownCharset)

	_, err = charset.ToUpperUTF8String("x-no-such-charset", "key")
	assert.ErrorIs(t, err, charset.ErrUnknownCharset)
}

func TestInvalidInput(t *testing.T) {
	t.Parallel()

	// high bytes are not ASCII
	_, err := charset.ToUpperUTF8String("us-ascii", "caf\xe9")
	assert.ErrorIs(t, err, charset.ErrInvalidInput)

	// a truncated UTF-8 sequence never completes
	_, err = charset.ToUpperUTF8String("utf-8", "caf\xc3")
	assert.ErrorIs(t, err, charset.ErrInvalidInput)
}

func TestConvertIncompleteInput(t *testing.T) {
	t.Parallel()

	conv, err := charset.NewConverter("utf-8")
	require.NoError(t, err)

	eAcute := []byte("é")
	require.Len(t, eAcute, 2)

	// the first block ends mid-rune
	var dst [64]byte
	nDst, nSrc, res := conv.Convert(dst[:], append([]byte("caf"), eAcute[0]))
	assert.Equal(t, charset.IncompleteInput, res)
	assert.Equal(t, 3, nSrc)
	assert.Equal(t, []byte("CAF"), dst[:nDst])

	// carrying the tail into the next block completes the rune
	nDst, nSrc, res = conv.Convert(dst[:], eAcute)
	assert.Equal(t, charset.Full, res)
	assert.Equal(t, 2, nSrc)
	assert.Equal(t, "É", string(dst[:nDst]))
}

func TestConvertOutputFull(t *testing.T) {
	t.Parallel()

	conv, err := charset.NewConverter("")
	require.NoError(t, err)

	// a two-byte output window forces overflow into the next call
	var dst [2]byte
	nDst, nSrc, res := conv.Convert(dst[:], []byte("abcd"))
	assert.Equal(t, charset.OutputFull, res)
	assert.Equal(t, 4, nSrc)
	assert.Equal(t, []byte("AB"), dst[:nDst])

	nDst, nSrc, res = conv.Convert(dst[:], nil)
	assert.Equal(t, charset.Full, res)
	assert.Equal(t, 0, nSrc)
	assert.Equal(t, []byte("CD"), dst[:nDst])
}
