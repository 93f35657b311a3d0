package message_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/stream"
)

func parseString(t *testing.T, raw string, opts ...message.ParseOption) *message.Part {
	t.Helper()
	root, err := message.Parse(stream.NewBuffer([]byte(raw)), opts...)
	require.NoError(t, err)
	require.NotNil(t, root)
	return root
}

func TestParseSimple(t *testing.T) {
	t.Parallel()

	raw := "Subject: hi\r\n\r\nhello world"
	root := parseString(t, raw)

	assert.True(t, root.IsText())
	assert.False(t, root.IsMultipart())
	assert.Empty(t, root.Children)
	assert.Equal(t, uint64(0), root.PhysicalPos)
	assert.Equal(t, uint64(15), root.HeaderSize.Physical)
	assert.Equal(t, uint64(15), root.HeaderSize.Virtual)
	assert.Equal(t, uint64(11), root.BodySize.Physical)
	assert.Equal(t, uint64(11), root.BodySize.Virtual)
	assert.Equal(t, uint32(0), root.BodySize.Lines)
	assert.Equal(t, uint64(len(raw)), root.TotalSize())
}

func TestParseBareLFSizes(t *testing.T) {
	t.Parallel()

	raw := "Subject: x\n\nbody\nmore\n"
	root := parseString(t, raw)

	assert.Equal(t, uint64(12), root.HeaderSize.Physical)
	assert.Equal(t, uint64(14), root.HeaderSize.Virtual)
	assert.Equal(t, uint64(10), root.BodySize.Physical)
	assert.Equal(t, uint64(12), root.BodySize.Virtual)
	assert.Equal(t, uint32(2), root.BodySize.Lines)
}

const multipartMsg = "Content-Type: multipart/mixed; boundary=XX\n" +
	"\n" +
	"preamble\n" +
	"--XX\n" +
	"Content-Type: text/plain\n" +
	"\n" +
	"first part\n" +
	"--XX\n" +
	"Content-Type: text/html\n" +
	"\n" +
	"<p>second part</p>\n" +
	"--XX--\n" +
	"epilogue\n"

func TestParseMultipart(t *testing.T) {
	t.Parallel()

	root := parseString(t, multipartMsg)

	assert.True(t, root.IsMultipart())
	assert.True(t, root.Flags&message.FlagHasBoundary != 0)
	assert.Equal(t, uint32(0), root.BodySize.Lines,
		"multipart bodies do not count lines")
	require.Len(t, root.Children, 2)

	c1, c2 := root.Children[0], root.Children[1]
	assert.Same(t, root, c1.Parent)
	assert.Same(t, c2, c1.NextSibling())
	assert.Nil(t, c2.NextSibling())

	// children begin right after their boundary lines
	wantC1 := uint64(strings.Index(multipartMsg, "Content-Type: text/plain"))
	wantC2 := uint64(strings.Index(multipartMsg, "Content-Type: text/html"))
	assert.Equal(t, wantC1, c1.PhysicalPos)
	assert.Equal(t, wantC2, c2.PhysicalPos)

	assert.True(t, c1.IsText())
	assert.True(t, c2.IsText())
	assert.Equal(t, uint64(len("first part\n")), c1.BodySize.Physical)
	assert.Equal(t, uint64(len("<p>second part</p>\n")), c2.BodySize.Physical)

	// the epilogue and boundary lines belong to the parent body
	assert.Equal(t, uint64(len(multipartMsg)), root.TotalSize())
}

func TestParseMissingFinalBoundary(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: multipart/mixed; boundary=B\n" +
		"\n" +
		"--B\n" +
		"\n" +
		"the last part just runs on\n"
	root := parseString(t, raw)

	require.Len(t, root.Children, 1)
	c := root.Children[0]
	assert.Equal(t, uint64(len("the last part just runs on\n")), c.BodySize.Physical)
	assert.Equal(t, uint64(len(raw)), root.TotalSize())
}

func TestParseBoundaryReuseTieBreak(t *testing.T) {
	t.Parallel()

	// the nested multipart reuses the ancestor boundary; per RFC 2046
	// the ancestor wins and the inner part gets no children
	raw := "Content-Type: multipart/mixed; boundary=Z\n" +
		"\n" +
		"--Z\n" +
		"Content-Type: multipart/alternative; boundary=Z\n" +
		"\n" +
		"inner body\n" +
		"--Z\n" +
		"\n" +
		"sibling\n" +
		"--Z--\n"
	root := parseString(t, raw)

	require.Len(t, root.Children, 2)
	inner := root.Children[0]
	assert.True(t, inner.IsMultipart())
	assert.True(t, inner.Flags&message.FlagHasBoundary != 0)
	assert.Empty(t, inner.Children)
	assert.Equal(t, uint64(len("inner body\n")), inner.BodySize.Physical)
}

func TestParseMessageRFC822(t *testing.T) {
	t.Parallel()

	inner := "Subject: inside\n" +
		"\n" +
		"inner body\n"
	raw := "Content-Type: message/rfc822\n" +
		"\n" +
		inner
	root := parseString(t, raw)

	assert.True(t, root.IsMessage())
	require.Len(t, root.Children, 1)

	c := root.Children[0]
	assert.True(t, c.IsText())
	assert.Equal(t, uint64(strings.Index(raw, "Subject")), c.PhysicalPos)
	assert.Equal(t, uint64(len(inner)), root.BodySize.Physical)
	assert.Equal(t, uint32(3), root.BodySize.Lines,
		"an embedded message counts all its lines")
	assert.Equal(t, uint32(1), c.BodySize.Lines)
}

func TestParseEmptyInput(t *testing.T) {
	t.Parallel()

	root := parseString(t, "")
	assert.Equal(t, uint64(0), root.HeaderSize.Physical)
	assert.Equal(t, uint64(0), root.BodySize.Physical)
	assert.True(t, root.IsText())
	assert.Empty(t, root.Children)
}

func TestParseMultipartSigned(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: multipart/signed; boundary=S\n" +
		"\n" +
		"--S\n" +
		"\n" +
		"signed text\n" +
		"--S--\n"
	root := parseString(t, raw)

	assert.True(t, root.IsMultipart())
	assert.True(t, root.Flags&message.FlagMultipartSigned != 0)
	require.Len(t, root.Children, 1)
}

func TestParseDepthLimit(t *testing.T) {
	t.Parallel()

	root := parseString(t, multipartMsg, message.WithMaxDepth(0))
	assert.True(t, root.IsMultipart())
	assert.Empty(t, root.Children, "recursion disabled leaves the body opaque")
	assert.Equal(t, uint64(len(multipartMsg)), root.TotalSize())
}

func TestParseContainment(t *testing.T) {
	t.Parallel()

	root := parseString(t, multipartMsg)
	rootEnd := root.PhysicalPos + root.TotalSize()
	root.Walk(func(p *message.Part) bool {
		assert.GreaterOrEqual(t, p.HeaderSize.Virtual, p.HeaderSize.Physical)
		assert.GreaterOrEqual(t, p.BodySize.Virtual, p.BodySize.Physical)
		if p.Parent != nil {
			assert.GreaterOrEqual(t, p.PhysicalPos, p.Parent.PhysicalPos)
		}
		assert.LessOrEqual(t, p.PhysicalPos+p.TotalSize(), rootEnd)
		return true
	})
}
