package world

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePlacesEverything(t *testing.T) {
	cfg := DefaultGenConfig()
	cfg.Mixed = 5
	setup, err := Generate(cfg)
	require.NoError(t, err)

	assert.Equal(t, Pos{X: 10, Y: 10}, setup.BasePos)
	require.Len(t, setup.Resources, 65)

	counts := KindCounts(setup.Resources)
	assert.GreaterOrEqual(t, counts[KindCrystal], 30)
	assert.GreaterOrEqual(t, counts[KindMetal], 20)
	assert.GreaterOrEqual(t, counts[KindStructure], 10)

	seen := make(map[Pos]bool)
	for _, r := range setup.Resources {
		p, ok := setup.Grid.PositionOf(r)
		require.True(t, ok)
		assert.True(t, setup.Grid.InBounds(p))
		assert.NotEqual(t, setup.BasePos, p, "resources never start on the base")
		assert.False(t, seen[p], "resources never share a cell at setup")
		seen[p] = true
		assert.Equal(t, r.Kind.DefaultUtility(), r.Utility)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	a, err := Generate(cfg)
	require.NoError(t, err)
	b, err := Generate(cfg)
	require.NoError(t, err)

	for i := range a.Resources {
		pa, _ := a.Grid.PositionOf(a.Resources[i])
		pb, _ := b.Grid.PositionOf(b.Resources[i])
		assert.Equal(t, pa, pb)
		assert.Equal(t, a.Resources[i].Kind, b.Resources[i].Kind)
	}
}

func TestGenerateRejectsMalformedSetup(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Width, cfg.Height = 2, 2
	cfg.Counts = [NumKinds]int{4, 0, 0}
	_, err := Generate(cfg)
	require.ErrorIs(t, err, ErrNoFreeCell)

	cfg = SmallTestConfig()
	cfg.Base = &Pos{X: 8, Y: 0}
	_, err = Generate(cfg)
	require.ErrorIs(t, err, ErrOutOfBounds)

	cfg = SmallTestConfig()
	cfg.Width = 0
	_, err = Generate(cfg)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestGenerateHonoursBaseAndUtilities(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Base = &Pos{}
	cfg.Utilities[KindCrystal] = 15
	setup, err := Generate(cfg)
	require.NoError(t, err)

	p, ok := setup.Grid.PositionOf(setup.Base)
	require.True(t, ok)
	assert.Equal(t, Pos{}, p)
	for _, r := range setup.Resources {
		if r.Kind == KindCrystal {
			assert.Equal(t, 15.0, r.Utility)
		}
	}
}

func TestRandomFreeCellFillsGrid(t *testing.T) {
	cfg := GenConfig{Width: 3, Height: 3, Seed: 1}
	setup, err := Generate(cfg)
	require.NoError(t, err)
	rng := newTestRand()
	for i := 0; i < 8; i++ {
		p, err := RandomFreeCell(setup.Grid, rng)
		require.NoError(t, err)
		require.NoError(t, setup.Grid.Place(marker{EntityID(100 + i)}, p))
	}
	_, err = RandomFreeCell(setup.Grid, rng)
	require.ErrorIs(t, err, ErrNoFreeCell)
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(7))
}
