package lww

import (
	"encoding/base64"
	"strconv"
	"unicode/utf16"

	"github.com/minio/blake2b-simd"
)

// RollingHash is the default Config.HashFunction: a 32-bit h*31+c hash over
// the UTF-16 code units of s, rendered in decimal. It is a cheap change
// detector, not a cryptographic digest.
func RollingHash(s string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return strconv.FormatInt(int64(h), 10)
}

// Blake2bHash digests s with BLAKE2b-256, base64url-encoded without padding.
// It is slower than RollingHash but collisions are not a practical concern.
func Blake2bHash(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
