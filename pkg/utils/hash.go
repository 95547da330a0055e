package utils

import (
	"crypto/md5"
	"encoding/hex"
)

// URLHashPrefix returns the first n hex characters of md5(url).
// Attachment filenames use an 8-character prefix so identically named files from different URLs never collide.
func URLHashPrefix(rawURL string, n int) string {
	sum := md5.Sum([]byte(rawURL))
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
