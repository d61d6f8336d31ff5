// Package checksum derives content addresses for media files.
package checksum

import (
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-1 digest of data.
func Sum(data []byte) string {
	h := sha1.Sum(data) //nolint:gosec
	return hex.EncodeToString(h[:])
}
