package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Normalize strips a UTF-8 byte order mark, converts CRLF line endings to LF
// and trims trailing whitespace from the end of the document.
func Normalize(data []byte) []byte {
	data = bytes.TrimPrefix(data, bom)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.TrimRight(data, " \t\r\n")
}

// ContentHash returns the hex sha256 of the normalized bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(Normalize(data))
	return hex.EncodeToString(sum[:])
}

// Key builds a cache key of the form prefix:Hash(parts...).
func Key(prefix string, parts ...string) string {
	return prefix + ":" + Hash(parts...)
}

// Hash returns the hex sha256 of parts. Parts are separated by a NUL byte
// so that ("ab","c") and ("a","bc") differ.
func Hash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
