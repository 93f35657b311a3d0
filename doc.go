// Package mailpart provides the structural message model that sits
// underneath a mail store: a tree of MIME parts with byte-accurate
// positions and sizes, a compact cache encoding of that tree, and a
// streaming substring search that reads the message through the
// transfer decoder and charset converter each part declares.
//
// The idea is that parsing the RFC 822 and MIME structure of a message
// is the expensive step and should happen at most once. The message
// package parses a byte stream into a message.Part tree and serializes
// the tree into a blob the cache package can store next to the message.
// From then on the tree is deserialized cheaply, and when only the
// header region grows or shrinks (a flag rewrite, for example), the
// blob is patched in place rather than re-parsed.
//
// The search package answers the single question the IMAP SEARCH layer
// needs from this level: does a substring occur in this message. It
// walks the part tree depth-first over the caller's stream, decodes
// headers per RFC 2047, picks the right transfer decoder and charset
// converter per leaf, and matches across block boundaries without ever
// holding the message in memory.
//
// The stream package defines the lazily buffered byte-stream view the
// other packages consume. Mailbox formats, command dispatch, and
// full-text index backends all live above or beside this module and
// talk to it only through streams, part trees, and cache blobs.
package mailpart
