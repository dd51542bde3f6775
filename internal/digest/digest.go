// Package digest computes the stable 64-bit fingerprints used for
// constraint surrogate ids and input fingerprints.
package digest

import (
	"fmt"

	"github.com/minio/highwayhash"
)

var key = []byte("enclavecheck-highwayhash-key-v01")

// Sum64 hashes the parts with a separator between them so that
// ("ab","c") and ("a","bc") differ.
func Sum64(parts ...string) uint64 {
	h, err := highwayhash.New64(key)
	if err != nil {
		// key length is fixed at 32 bytes
		panic(err)
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Bytes hashes raw content.
func Bytes(data []byte) uint64 {
	h, err := highwayhash.New64(key)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return h.Sum64()
}

// String formats a fingerprint the way artifacts and the journal record it.
func String(sum uint64) string {
	return fmt.Sprintf("hwh64:%016x", sum)
}
