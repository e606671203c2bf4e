package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/planet-harvest/internal/entropy"
	"github.com/talgya/planet-harvest/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	seed int64
	rng  *rand.Rand
	ids  *world.IDSource
}

// NewSpawner creates an agent spawner with the given seed. IDs come from the
// same source as the world's entities so they never collide.
func NewSpawner(seed int64, ids *world.IDSource) *Spawner {
	return &Spawner{
		seed: seed,
		rng:  entropy.Stream(seed, entropy.SaltSpawn),
		ids:  ids,
	}
}

// Spawn places counts[k] agents of each class on random free cells and
// returns them grouped by class, Reactive first. The order is the tick order.
func (s *Spawner) Spawn(g *world.Grid, counts [NumKinds]int) ([]*Agent, error) {
	total := 0
	for _, n := range counts {
		total += n
	}
	out := make([]*Agent, 0, total)
	for k, n := range counts {
		for i := 0; i < n; i++ {
			a, err := s.spawnOne(g, Kind(k))
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Spawner) spawnOne(g *world.Grid, kind Kind) (*Agent, error) {
	p, err := world.RandomFreeCell(g, s.rng)
	if err != nil {
		return nil, fmt.Errorf("spawn %s agent: %w", kind, err)
	}
	id := s.ids.Next()
	a := New(id, kind, p, entropy.Stream(s.seed, entropy.SaltSpawn+int64(id)))
	if err := g.Place(a, p); err != nil {
		return nil, fmt.Errorf("spawn %s agent: %w", kind, err)
	}
	a.visit(p)
	return a, nil
}

// Place puts a hand-built agent on the grid, for scenarios and tests.
func Place(g *world.Grid, a *Agent) error {
	if err := g.Place(a, a.Pos); err != nil {
		return err
	}
	a.visit(a.Pos)
	return nil
}
