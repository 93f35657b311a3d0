package message

import (
	"errors"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/zostay/go-addr/pkg/addr"

	"github.com/zostay/go-mailpart/charset"
	"github.com/zostay/go-mailpart/internal/headerscan"
	"github.com/zostay/go-mailpart/stream"
)

// Envelope carries the commonly displayed root-header fields of a
// message. Fields that are absent or unparseable are left zero; a
// message with a broken Date is still a message.
type Envelope struct {
	Date      time.Time
	Subject   string
	MessageID string
	From      addr.AddressList
	To        addr.AddressList
	Cc        addr.AddressList
}

// wordDecoder decodes RFC 2047 encoded words in display headers,
// reaching through the charset package for anything beyond UTF-8.
var wordDecoder = &mime.WordDecoder{
	CharsetReader: charset.NewReader,
}

// decodeDisplay decodes encoded words for display, falling back to the
// raw value when the encoding is broken.
func decodeDisplay(value string) string {
	if !strings.Contains(value, "=?") {
		return value
	}
	dec, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return dec
}

// ParseEnvelope reads the root header region of the message stream and
// returns its envelope. When root is non-nil the stream is positioned
// at the part first; otherwise it is read from its current position.
func ParseEnvelope(s stream.Stream, root *Part) (*Envelope, error) {
	if root != nil {
		if err := s.Seek(int64(root.PhysicalPos)); err != nil {
			return nil, err
		}
	}

	env := &Envelope{}
	hs := headerscan.New(s, DefaultMaxHeaderLength)
	for {
		f, err := hs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return env, nil
			}
			return env, err
		}

		switch {
		case strings.EqualFold(f.Name, "Date"):
			if t, err := dateparse.ParseAny(f.Value); err == nil {
				env.Date = t
			}
		case strings.EqualFold(f.Name, "Subject"):
			env.Subject = decodeDisplay(f.Value)
		case strings.EqualFold(f.Name, "Message-Id"):
			env.MessageID = strings.Trim(f.Value, "<> \t")
		case strings.EqualFold(f.Name, "From"):
			if env.From == nil {
				env.From, _ = addr.ParseEmailAddressList(decodeDisplay(f.Value))
			}
		case strings.EqualFold(f.Name, "To"):
			if env.To == nil {
				env.To, _ = addr.ParseEmailAddressList(decodeDisplay(f.Value))
			}
		case strings.EqualFold(f.Name, "Cc"):
			if env.Cc == nil {
				env.Cc, _ = addr.ParseEmailAddressList(decodeDisplay(f.Value))
			}
		}
	}
}
