package imap

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// contentID derives a message's stable id from its raw bytes: the first 16
// bytes of its SHA3-256 digest, lowercase hex.
func contentID(raw []byte) string {
	sum := sha3.Sum256(raw)
	return hex.EncodeToString(sum[:16])
}
