// Package principal renders execution-target identifiers in their textual
// form: a CRC32 checksum of the raw identifier is prepended, the whole thing
// is base32-encoded without padding, lowercased, and grouped in blocks of
// five characters separated by dashes.
package principal

import (
	"encoding/base32"
	"encoding/binary"
	"hash/crc32"
	"strings"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Encode returns the textual form of a raw identifier.
func Encode(raw []byte) string {
	buf := make([]byte, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	copy(buf[4:], raw)

	s := strings.ToLower(encoding.EncodeToString(buf))
	var b strings.Builder
	b.Grow(len(s) + len(s)/5)
	for i := 0; i < len(s); i += 5 {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + 5
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}
