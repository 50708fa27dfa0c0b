package digest

import (
	"crypto/md5"
	"encoding/hex"
)

// Sum returns the lowercase hex MD5 of the input. Every stored token and every
// derived record identifier is computed with this digest, so the algorithm is
// part of the persisted data format and cannot change.
func Sum(input string) string {
	hash := md5.Sum([]byte(input))
	return hex.EncodeToString(hash[:])
}
