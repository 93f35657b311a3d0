package search

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zostay/go-mailpart/charset"
	"github.com/zostay/go-mailpart/codec"
	"github.com/zostay/go-mailpart/internal/headerscan"
	"github.com/zostay/go-mailpart/message"
	"github.com/zostay/go-mailpart/stream"
)

// Errors that abort a search. Everything else is contained within one
// part: a part that cannot be decoded simply does not match.
var (
	// ErrUnknownCharset is returned when the charset declared for the
	// search key is not recognized. Charsets declared by message parts
	// degrade to US-ASCII instead; the user's key must be understood,
	// third-party messages may lie.
	ErrUnknownCharset = errors.New("unknown search key charset")

	// ErrInvalidKey is returned when the key is empty, is not a valid
	// byte sequence in its declared charset, or upper-cases to an
	// unreasonable length.
	ErrInvalidKey = errors.New("invalid search key")

	// ErrPartBroken is returned when the stream and the part tree
	// describe different messages. The caller should re-parse.
	ErrPartBroken = errors.New("message stream does not match its part tree")
)

// decodeBlockSize bounds how many body bytes are decoded and scanned at
// a time.
const decodeBlockSize = 8192

// Option adjusts how a search runs.
type Option func(*searcher)

// WithLogger directs corrupt-codec log signals somewhere. Searches are
// silent by default.
func WithLogger(log logrus.FieldLogger) Option {
	return func(sc *searcher) { sc.log = log }
}

type searcher struct {
	key          string // upper-cased UTF-8
	keyCharset   string
	noKeyCharset bool
	searchHeader bool
	log          logrus.FieldLogger
}

// discardLogger swallows log signals when no logger was supplied.
var discardLogger = func() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Search reports whether the key occurs in the message described by the
// part tree. The stream must produce the same bytes the tree was parsed
// from; a divergence fails with ErrPartBroken. Headers of nested parts
// are always searched; the root header participates only when
// includeHeaders is set. Parts that cannot be decoded are skipped, not
// failed.
func Search(key, keyCharset string, msg stream.Stream, root *message.Part, includeHeaders bool, opts ...Option) (bool, error) {
	ukey, err := prepareKey(key, keyCharset)
	if err != nil {
		return false, err
	}

	sc := &searcher{
		key:          ukey,
		keyCharset:   keyCharset,
		noKeyCharset: keyCharset == "",
		searchHeader: includeHeaders,
		log:          discardLogger,
	}
	for _, opt := range opts {
		opt(sc)
	}

	return sc.searchPart(msg, root)
}

// partContext carries what the header scan learned about one part.
type partContext struct {
	contentType string
	typeText    bool // text/* or message/*; the default with no type
	charsetName string
	qp          bool
	base64      bool
	unknownEnc  bool
}

// applyContentType classifies the part's declared media type and pulls
// out the charset parameter.
func (pc *partContext) applyContentType(value string) {
	if pc.contentType != "" {
		return
	}
	pc.contentType = value

	lower := strings.ToLower(strings.TrimSpace(value))
	pc.typeText = strings.HasPrefix(lower, "text/") ||
		strings.HasPrefix(lower, "message/")

	if _, params, err := mime.ParseMediaType(value); err == nil {
		if cs := params["charset"]; cs != "" && pc.charsetName == "" {
			pc.charsetName = cs
		}
	}
}

// applyTransferEncoding selects the transfer decoder. Anything beyond
// the identity encodings, quoted-printable and base64 marks the part
// undecodable.
func (pc *partContext) applyTransferEncoding(value string) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "7bit", "8bit", "binary":
	case "base64":
		pc.base64 = true
	case "quoted-printable":
		pc.qp = true
	default:
		pc.unknownEnc = true
	}
}

// searchPart walks one part depth-first: header first, then children or
// the leaf body. Ordering is observable; header matches in a part
// report before body matches in the same part.
func (sc *searcher) searchPart(s stream.Stream, p *message.Part) (bool, error) {
	if s.Offset() > int64(p.PhysicalPos) {
		return false, ErrPartBroken
	}
	if err := s.Skip(int64(p.PhysicalPos) - s.Offset()); err != nil {
		return false, err
	}

	pc := &partContext{typeText: true}
	ignoreHeader := p.Parent == nil && !sc.searchHeader

	found, err := sc.scanHeader(pc, s, p, ignoreHeader)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}

	if len(p.Children) > 0 {
		for _, c := range p.Children {
			found, err := sc.searchPart(s, c)
			if found || err != nil {
				return found, err
			}
		}
		// a multipart body holds only boundary lines and epilogue
		return false, nil
	}

	if s.Offset() != int64(p.PhysicalPos+p.HeaderSize.Physical) {
		// the header on disk is not the size the tree remembers
		return false, ErrPartBroken
	}

	return sc.searchBody(pc, s, p)
}

// scanHeader consumes the part's header region, feeding the raw bytes
// to the header matcher unless suppressed and extracting Content-Type
// and Content-Transfer-Encoding either way. The scan is bounded by the
// header size the tree remembers; a header that ends before that bound
// is what the caller's position check catches.
func (sc *searcher) scanHeader(pc *partContext, s stream.Stream, p *message.Part, ignoreHeader bool) (bool, error) {
	region := stream.Limit(s, int64(p.PhysicalPos), int64(p.HeaderSize.Physical))

	var hsearch *HeaderSearch
	hs := headerscan.New(region, 0)
	if !ignoreHeader {
		hsearch = newPreparedHeaderSearch(sc.key, sc.keyCharset)
		hs.Raw = func(raw []byte) { hsearch.SearchBlock(raw) }
	}

	for {
		f, err := hs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return false, err
		}
		switch {
		case strings.EqualFold(f.Name, "Content-Type"):
			pc.applyContentType(f.Value)
		case strings.EqualFold(f.Name, "Content-Transfer-Encoding"):
			pc.applyTransferEncoding(f.Value)
		}
	}

	return hsearch != nil && hsearch.Found(), nil
}

// searchBody decodes and scans a leaf body in blocks. Decode failures
// abandon the part without failing the search.
func (sc *searcher) searchBody(pc *partContext, s stream.Stream, p *message.Part) (bool, error) {
	if pc.unknownEnc || !pc.typeText {
		return false, nil
	}

	charsetName := pc.charsetName
	if charsetName == "" {
		charsetName = "us-ascii"
	}
	conv, err := charset.NewConverter(charsetName)
	if err != nil {
		// unknown charsets in messages degrade to ASCII; only the
		// search key's charset is allowed to fail
		conv, _ = charset.NewConverter("us-ascii")
	}

	body := stream.Limit(s,
		int64(p.PhysicalPos+p.HeaderSize.Physical),
		int64(p.BodySize.Physical))

	m := newMatcher(sc.key)
	var carry bytes.Buffer
	threshold := 0
	for {
		data, rerr := stream.ReadData(body, threshold)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return false, rerr
		}
		if len(data) <= threshold {
			break
		}
		if len(data) > decodeBlockSize {
			data = data[:decodeBlockSize]
		}

		var decodeBuf bytes.Buffer
		consumed := len(data)
		decoded := data
		switch {
		case pc.qp:
			consumed = codec.QuotedPrintableDecode(&decodeBuf, data)
			decoded = decodeBuf.Bytes()
		case pc.base64:
			var err error
			consumed, err = codec.Base64Decode(&decodeBuf, data)
			if err != nil {
				// corrupted base64 data, don't bother with the rest
				sc.log.WithFields(logrus.Fields{
					"offset": body.Offset() + int64(consumed),
				}).Warn("corrupt base64 data in message part")
				return false, nil
			}
			decoded = decodeBuf.Bytes()
		}

		found, res := searchBodyBlock(m, conv, &carry, decoded)
		if found {
			return true, nil
		}
		if res == charset.InvalidInput {
			return false, nil
		}

		if err := body.Skip(int64(consumed)); err != nil {
			return false, err
		}
		threshold = len(data) - consumed
	}

	return false, nil
}

// searchBodyBlock converts one decoded block to upper-cased UTF-8 and
// scans it, carrying incomplete multi-byte tails between blocks.
func searchBodyBlock(m *matcher, conv *charset.Converter, carry *bytes.Buffer, block []byte) (bool, charset.Result) {
	var in []byte
	if carry.Len() > 0 {
		in = append(append([]byte(nil), carry.Bytes()...), block...)
		carry.Reset()
	} else {
		in = block
	}

	var out [decodeBlockSize]byte
	idx := 0
	for {
		nDst, nSrc, res := conv.Convert(out[:], in[idx:])
		if m.feed(out[:nDst]) {
			return true, res
		}
		idx += nSrc

		switch res {
		case charset.OutputFull:
			// scanned what fit; go around for the rest
		case charset.IncompleteInput:
			carry.Write(in[idx:])
			return false, res
		case charset.InvalidInput:
			return false, res
		default:
			if idx >= len(in) {
				return false, charset.Full
			}
		}
	}
}

// matcher is the byte-level substring scanner for decoded body blocks.
// It is the header matcher's inner loop without the folding logic;
// blocks arrive already upper-cased.
type matcher struct {
	key     []byte
	matches []int
}

func newMatcher(key string) *matcher {
	m := &matcher{key: []byte(key)}
	m.matches = make([]int, 0, len(m.key))
	return m
}

// feed scans one block, reporting whether the key completed.
func (m *matcher) feed(data []byte) bool {
	for _, chr := range data {
		for i := len(m.matches) - 1; i >= 0; i-- {
			if m.key[m.matches[i]] == chr {
				m.matches[i]++
				if m.matches[i] == len(m.key) {
					return true
				}
			} else {
				m.matches = append(m.matches[:i], m.matches[i+1:]...)
			}
		}
		if chr == m.key[0] {
			if len(m.key) == 1 {
				return true
			}
			m.matches = append(m.matches, 1)
		}
	}
	return false
}
