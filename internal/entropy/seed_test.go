package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSeedKeepsConfiguredSeed(t *testing.T) {
	assert.Equal(t, int64(42), ResolveSeed(42))
	assert.Equal(t, int64(-7), ResolveSeed(-7))
}

func TestResolveSeedDrawsPositiveSeed(t *testing.T) {
	for i := 0; i < 16; i++ {
		assert.Positive(t, ResolveSeed(0))
	}
}

func TestStreamIsReproducible(t *testing.T) {
	a, b := Stream(42, SaltSpawn), Stream(42, SaltSpawn)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
	assert.NotEqual(t, Stream(42, SaltSpawn).Int63(), Stream(42, SaltPlacement).Int63())
}
