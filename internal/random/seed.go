// Package random provides seed generation for the engine's pseudo-random
// decision makers.
//
// Seeds come from crypto/rand so independent games do not share sequences,
// while a fixed seed keeps a single game reproducible.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}

	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// New returns a generator seeded with seed, or with a fresh seed when seed is
// zero.
func New(seed int64) (*rand.Rand, error) {
	if seed == 0 {
		generated, err := NewSeed()
		if err != nil {
			return nil, err
		}
		seed = generated
	}
	return rand.New(rand.NewSource(seed)), nil
}
