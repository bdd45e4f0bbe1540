package loadgen

import (
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// RandomKey returns a random key of length hex characters derived from
// version 4 UUIDs.
func RandomKey(length int) string {
	var b strings.Builder
	b.Grow(length + 32)
	for b.Len() < length {
		id := uuid.New()
		for _, c := range id[:] {
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()[:length]
}

const hexDigits = "0123456789abcdef"

// RandomValue returns a value of random printable bytes, its size uniformly
// drawn in [minSize, maxSize].
func RandomValue(r *rand.Rand, minSize, maxSize int) []byte {
	size := minSize
	if maxSize > minSize {
		size += r.IntN(maxSize - minSize + 1)
	}

	value := make([]byte, size)
	for i := range value {
		value[i] = byte('!' + r.IntN('~'-'!'+1))
	}
	return value
}

// Fingerprint returns a 64-bit digest of a value, kept in place of the value
// to verify it later.
func Fingerprint(value []byte) uint64 {
	return xxh3.Hash(value)
}
