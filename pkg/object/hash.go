package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// HashBytes computes the raw SHA-1 hash of data and returns it as a
// lowercase hex-encoded Hash.
func HashBytes(data []byte) Hash {
	sum := sha1.Sum(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-1 of the envelope "type len\0content",
// which is the identity of every stored object.
func HashObject(objType ObjectType, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}
