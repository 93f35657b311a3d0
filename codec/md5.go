package codec

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
)

// MD5Hex returns the lowercase hex MD5 digest of the concatenation of
// the given byte slices. The APOP collaborator hashes the server
// timestamp banner followed by the shared secret.
func MD5Hex(parts ...[]byte) string {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HMACMD5 returns the HMAC-MD5 of data under key, as the CRAM-MD5
// collaborator uses it.
func HMACMD5(key, data []byte) []byte {
	h := hmac.New(md5.New, key)
	h.Write(data)
	return h.Sum(nil)
}
