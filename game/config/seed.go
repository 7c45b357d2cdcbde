package config

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/wricardo/knights-trail/game/engine"
)

// RandomSeed returns a positive 31-bit seed from the system entropy source.
func RandomSeed() (int64, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to read random seed: %w", err)
	}
	seed := int64(binary.BigEndian.Uint32(b[:]) & 0x7fffffff)
	if seed == 0 {
		seed = 1
	}
	return seed, nil
}

// EnsureSeed returns r unchanged when it carries a seed and a copy with a
// random seed otherwise.
func EnsureSeed(r engine.Ruleset) (engine.Ruleset, error) {
	if r.Seed != nil {
		return r, nil
	}
	seed, err := RandomSeed()
	if err != nil {
		return r, err
	}
	return r.WithSeed(seed), nil
}
