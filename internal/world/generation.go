// Setup generation: places the base and the initial resources.
// Deposits cluster where a layered simplex "richness" field is high.
package world

import (
	"errors"
	"fmt"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/planet-harvest/internal/entropy"
)

var ErrNoFreeCell = errors.New("no free cell left for placement")

// GenConfig holds setup generation parameters.
type GenConfig struct {
	Width  int
	Height int
	Seed   int64

	// Base is the base cell. Nil puts the base at the grid centre.
	Base *Pos

	// Counts is the number of resources of each kind.
	Counts [NumKinds]int
	// Mixed adds this many resources of uniformly random kind on top of Counts.
	Mixed int
	// Utilities overrides DefaultUtility per kind when non-zero.
	Utilities [NumKinds]float64

	// Richness in [0,1] is how strongly the noise field biases placement.
	// 0 places uniformly at random.
	Richness float64
}

// DefaultGenConfig returns a 20×20 map with the classic resource mix.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:    20,
		Height:   20,
		Seed:     42,
		Counts:   [NumKinds]int{30, 20, 10},
		Richness: 0.6,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:    8,
		Height:   8,
		Seed:     42,
		Counts:   [NumKinds]int{4, 2, 1},
		Richness: 0.5,
	}
}

// IDSource hands out entity IDs.
type IDSource struct {
	next EntityID
}

// NewIDSource starts issuing IDs at first.
func NewIDSource(first EntityID) *IDSource {
	return &IDSource{next: first}
}

// Next returns a fresh ID.
func (s *IDSource) Next() EntityID {
	id := s.next
	s.next++
	return id
}

// Setup is the generated starting world.
type Setup struct {
	Grid      *Grid
	Base      *Base
	BasePos   Pos
	Resources []*Resource
	IDs       *IDSource
}

// UtilityFor returns the configured or default utility of a kind.
func (cfg GenConfig) UtilityFor(k ResourceKind) float64 {
	if u := cfg.Utilities[k]; u > 0 {
		return u
	}
	return k.DefaultUtility()
}

// BasePos resolves the configured base position.
func (cfg GenConfig) BasePos() Pos {
	if cfg.Base != nil {
		return *cfg.Base
	}
	return Pos{X: cfg.Width / 2, Y: cfg.Height / 2}
}

// TotalResources returns how many resources the config asks for.
func (cfg GenConfig) TotalResources() int {
	n := cfg.Mixed
	for _, c := range cfg.Counts {
		n += c
	}
	return n
}

// Generate builds the grid, places the base and scatters resources on free,
// non-base cells. It fails only when the request cannot fit.
func Generate(cfg GenConfig) (*Setup, error) {
	grid, err := NewGrid(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	basePos := cfg.BasePos()
	if !grid.InBounds(basePos) {
		return nil, fmt.Errorf("base %s: %w", basePos, ErrOutOfBounds)
	}
	if free := grid.CellCount() - 1; cfg.TotalResources() > free {
		return nil, fmt.Errorf("%d resources on %d free cells: %w", cfg.TotalResources(), free, ErrNoFreeCell)
	}

	ids := NewIDSource(1)
	base := NewBase(ids.Next())
	if err := grid.Place(base, basePos); err != nil {
		return nil, fmt.Errorf("place base: %w", err)
	}

	rng := entropy.Stream(cfg.Seed, entropy.SaltPlacement)

	// Build the kind list: explicit counts first, then the random mix.
	var kinds []ResourceKind
	for k, n := range cfg.Counts {
		for i := 0; i < n; i++ {
			kinds = append(kinds, ResourceKind(k))
		}
	}
	for i := 0; i < cfg.Mixed; i++ {
		kinds = append(kinds, ResourceKind(rng.Intn(NumKinds)))
	}

	fields := [NumKinds]opensimplex.Noise{}
	for k := range fields {
		fields[k] = opensimplex.NewNormalized(cfg.Seed + int64(k) + 1)
	}

	resources := make([]*Resource, 0, len(kinds))
	for _, k := range kinds {
		pos, err := pickCell(grid, rng, func(p Pos) float64 {
			return richnessWeight(fields[k], p, cfg.Richness)
		})
		if err != nil {
			return nil, fmt.Errorf("place %s: %w", k, err)
		}
		r := NewResource(ids.Next(), k, cfg.UtilityFor(k))
		if err := grid.Place(r, pos); err != nil {
			return nil, fmt.Errorf("place %s: %w", k, err)
		}
		resources = append(resources, r)
	}

	return &Setup{
		Grid:      grid,
		Base:      base,
		BasePos:   basePos,
		Resources: resources,
		IDs:       ids,
	}, nil
}

// FreeCells returns every empty cell in row-major order. The base cell is
// never empty, so it is never returned.
func FreeCells(g *Grid) []Pos {
	var out []Pos
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			p := Pos{X: x, Y: y}
			if g.IsEmpty(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// RandomFreeCell picks a uniformly random empty cell.
func RandomFreeCell(g *Grid, rng *rand.Rand) (Pos, error) {
	return pickCell(g, rng, nil)
}

// pickCell draws an empty cell, weighted by weight when given.
func pickCell(g *Grid, rng *rand.Rand, weight func(Pos) float64) (Pos, error) {
	free := FreeCells(g)
	if len(free) == 0 {
		return Pos{}, ErrNoFreeCell
	}
	if weight == nil {
		return free[rng.Intn(len(free))], nil
	}

	total := 0.0
	weights := make([]float64, len(free))
	for i, p := range free {
		weights[i] = weight(p)
		total += weights[i]
	}
	if total <= 0 {
		return free[rng.Intn(len(free))], nil
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return free[i], nil
		}
	}
	return free[len(free)-1], nil
}

// richnessWeight blends a flat floor with the noise field. Below richness 1
// the floor leaves every free cell a non-zero chance.
func richnessWeight(noise opensimplex.Noise, p Pos, richness float64) float64 {
	if richness <= 0 {
		return 1
	}
	if richness > 1 {
		richness = 1
	}
	n := octaveNoise(noise, float64(p.X), float64(p.Y), 3, 0.15, 0.5)
	return (1 - richness) + richness*n*n*2
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// KindCounts returns how many of each kind are in the list.
func KindCounts(resources []*Resource) [NumKinds]int {
	var counts [NumKinds]int
	for _, r := range resources {
		counts[r.Kind]++
	}
	return counts
}
