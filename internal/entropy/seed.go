// Package entropy resolves run seeds. A configured seed makes a run
// reproducible; seed 0 asks for a fresh one from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"time"
)

// ResolveSeed returns seed unchanged when it is non-zero, otherwise a random
// positive seed. The drawn seed is logged so the run can be replayed.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	seed = cryptoSeed()
	slog.Info("random seed drawn", "seed", seed)
	return seed
}

// cryptoSeed draws a positive int64 from crypto/rand, falling back to the
// clock if the system source fails.
func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Warn("crypto/rand unavailable, seeding from clock", "error", err)
		return time.Now().UnixNano()&(1<<62-1) | 1
	}
	n := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if n == 0 {
		n = 1
	}
	return n
}

// Salts separating the deterministic streams drawn from one run seed.
const (
	SaltPlacement int64 = 100 // world generation cell picks
	SaltSpawn     int64 = 300 // agent placement; agent i adds its ID
)

// Stream returns a math/rand source for one consumer of the run seed. The
// same (seed, salt) always yields the same sequence.
func Stream(seed, salt int64) *mrand.Rand {
	return mrand.New(mrand.NewSource(seed + salt))
}
