package crypto

import (
	"crypto/cipher"
	"crypto/rand"

	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

// Rng is the stream every ceremony draws its randomness from. Seeding it
// explicitly makes ceremonies reproducible under test.
type Rng interface {
	cipher.Stream
}

// NewRng returns a deterministic stream expanded from the given seed.
func NewRng(seed [32]byte) Rng {
	return blake2xb.New(seed[:])
}

// NewRandomSeed samples a fresh seed from the operating system.
func NewRandomSeed() ([32]byte, error) {
	var seed [32]byte

	_, err := rand.Read(seed[:])

	return seed, err
}

// RandomBytes fills a buffer of size n from the stream.
func RandomBytes(rng Rng, n int) []byte {
	buf := make([]byte, n)
	rng.XORKeyStream(buf, buf)

	return buf
}
