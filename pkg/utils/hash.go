package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Hex returns the md5 of s as lowercase hex, truncated to hexLen chars
// (0 or out-of-range means the full 32). Used for content addressing, not
// security: page files are keyed by a 12-char URL hash and gold records by
// a 16-char source hash, where accidental collision odds are negligible.
func MD5Hex(s string, hexLen int) string {
	sum := md5.Sum([]byte(s))
	h := hex.EncodeToString(sum[:])
	if hexLen <= 0 || hexLen >= len(h) {
		return h
	}
	return h[:hexLen]
}
