package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/config"
	"github.com/talgya/planet-harvest/internal/world"
)

func smallConfig(seed int64) config.Config {
	cfg := config.Default()
	cfg.World.Width, cfg.World.Height = 12, 12
	cfg.World.Seed = seed
	cfg.World.Crystal, cfg.World.Metal, cfg.World.Structure = 6, 4, 3
	cfg.Engine.TickIntervalMs = 0
	return cfg
}

// handBuilt is a tiny world laid out by the test.
type handBuilt struct {
	setup *world.Setup
	ag    []*agents.Agent
}

func newHandBuilt(t *testing.T, w, h int, basePos world.Pos) *handBuilt {
	t.Helper()
	g, err := world.NewGrid(w, h)
	require.NoError(t, err)
	ids := world.NewIDSource(1)
	base := world.NewBase(ids.Next())
	require.NoError(t, g.Place(base, basePos))
	return &handBuilt{setup: &world.Setup{Grid: g, Base: base, BasePos: basePos, IDs: ids}}
}

func (h *handBuilt) resource(t *testing.T, kind world.ResourceKind, p world.Pos) *world.Resource {
	t.Helper()
	r := world.NewResource(h.setup.IDs.Next(), kind, kind.DefaultUtility())
	require.NoError(t, h.setup.Grid.Place(r, p))
	h.setup.Resources = append(h.setup.Resources, r)
	return r
}

func (h *handBuilt) agent(t *testing.T, kind agents.Kind, p world.Pos, goal world.Pos) *agents.Agent {
	t.Helper()
	a := agents.New(h.setup.IDs.Next(), kind, p, rand.New(rand.NewSource(1)))
	a.Chooser = func(_ *agents.Agent, candidates []world.Pos) world.Pos {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if world.Manhattan(c, goal) < world.Manhattan(best, goal) {
				best = c
			}
		}
		return best
	}
	require.NoError(t, agents.Place(h.setup.Grid, a))
	h.ag = append(h.ag, a)
	return a
}

func TestNewSimulationOrdersAgentsByClass(t *testing.T) {
	sim, err := NewSimulation(smallConfig(3))
	require.NoError(t, err)
	require.Len(t, sim.Agents, 8)
	assert.Len(t, sim.AgentIndex, 8)
	for i := 1; i < len(sim.Agents); i++ {
		assert.LessOrEqual(t, sim.Agents[i-1].Kind, sim.Agents[i].Kind)
	}
	assert.Equal(t, int64(3), sim.Seed)
	assert.Equal(t, 6*10.0+4*20.0+3*50.0, sim.TotalUtility())
	require.NoError(t, sim.CheckInvariants())
}

func TestNewSimulationRejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig(1)
	cfg.World.Width = 2
	cfg.World.Height = 2
	_, err := NewSimulation(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestFromSetupReordersHandBuiltAgents(t *testing.T) {
	h := newHandBuilt(t, 6, 6, world.Pos{})
	coop := h.agent(t, agents.KindCooperative, world.Pos{X: 5, Y: 5}, world.Pos{})
	reactive := h.agent(t, agents.KindReactive, world.Pos{X: 4, Y: 4}, world.Pos{})
	sim := FromSetup(h.setup, h.ag)
	assert.Equal(t, []*agents.Agent{reactive, coop}, sim.Agents)
}

func TestInvariantsHoldAcrossSeeds(t *testing.T) {
	for seed := int64(1); seed <= 12; seed++ {
		sim, err := NewSimulation(smallConfig(seed))
		require.NoError(t, err)
		for i := 0; i < 400; i++ {
			frame := sim.Step()
			require.NoError(t, sim.CheckInvariants(), "seed %d tick %d", seed, frame.Tick)
		}
		assert.LessOrEqual(t, sim.Base.Total(), sim.TotalUtility())
		assert.Equal(t, sim.Base.Len(), sim.Stats.Delivered)
	}
}

func TestRunsAreDeterministic(t *testing.T) {
	run := func() []world.Delivery {
		sim, err := NewSimulation(smallConfig(11))
		require.NoError(t, err)
		for i := 0; i < 300; i++ {
			sim.Step()
		}
		return sim.Ledger()
	}
	assert.Equal(t, run(), run())
}

func TestReactiveCrystalScenario(t *testing.T) {
	h := newHandBuilt(t, 5, 5, world.Pos{})
	h.resource(t, world.KindCrystal, world.Pos{X: 4, Y: 4})
	h.agent(t, agents.KindReactive, world.Pos{X: 0, Y: 4}, world.Pos{X: 4, Y: 4})
	sim := FromSetup(h.setup, h.ag)
	sim.SetVerify(true)

	var delivered []world.Delivery
	for i := 0; i < 8; i++ {
		delivered = append(delivered, sim.Step().Deliveries...)
	}
	require.Len(t, delivered, 1)
	assert.Equal(t, uint64(8), delivered[0].Tick)
	assert.Equal(t, 10.0, sim.Base.Total())
	assert.True(t, sim.Drained())
	assert.Zero(t, sim.Stats.Remaining)
	for _, e := range sim.RecentEvents(0) {
		assert.NotEqual(t, "invariant", e.Category, e.Description)
	}
}

func TestStructureScenario(t *testing.T) {
	h := newHandBuilt(t, 5, 5, world.Pos{})
	ruin := h.resource(t, world.KindStructure, world.Pos{X: 2, Y: 2})
	waiter := h.agent(t, agents.KindStateful, world.Pos{X: 3, Y: 3}, world.Pos{X: 2, Y: 2})
	helper := h.agent(t, agents.KindCooperative, world.Pos{X: 4, Y: 0}, world.Pos{X: 4, Y: 0})
	sim := FromSetup(h.setup, h.ag)

	for i := 0; i < 12 && !sim.Drained(); i++ {
		sim.Step()
		require.NoError(t, sim.CheckInvariants())
		if ruin.InTransit() {
			p, _ := sim.Grid.PositionOf(ruin)
			assert.Equal(t, p, waiter.Pos)
			assert.Equal(t, p, helper.Pos)
		}
	}
	require.True(t, sim.Drained())
	ledger := sim.Ledger()
	require.Len(t, ledger, 1)
	assert.Equal(t, 50.0, ledger[0].Utility)
	assert.ElementsMatch(t, []world.AgentID{waiter.ID, helper.ID}, ledger[0].Carriers)
}

func TestCheckInvariantsCatchesBrokenState(t *testing.T) {
	h := newHandBuilt(t, 5, 5, world.Pos{})
	crystal := h.resource(t, world.KindCrystal, world.Pos{X: 1, Y: 1})
	a := h.agent(t, agents.KindReactive, world.Pos{X: 3, Y: 3}, world.Pos{})
	b := h.agent(t, agents.KindReactive, world.Pos{X: 4, Y: 4}, world.Pos{})
	sim := FromSetup(h.setup, h.ag)
	require.NoError(t, sim.CheckInvariants())

	a.Pos = world.Pos{X: 0, Y: 0}
	assert.ErrorIs(t, sim.CheckInvariants(), ErrInvariant)
	a.Pos = world.Pos{X: 3, Y: 3}

	require.NoError(t, crystal.Claim(a.ID))
	require.NoError(t, crystal.BeginTransit())
	require.NoError(t, sim.Grid.Remove(crystal))
	a.Carried = crystal
	b.Carried = crystal
	assert.ErrorIs(t, sim.CheckInvariants(), ErrInvariant, "one resource, two carriers")

	b.Carried = nil
	require.NoError(t, sim.CheckInvariants())

	a.Partner = b.ID
	assert.ErrorIs(t, sim.CheckInvariants(), ErrInvariant, "one-sided partner link")
}

func TestSubscribeReceivesFrames(t *testing.T) {
	sim, err := NewSimulation(smallConfig(5))
	require.NoError(t, err)

	id, ch := sim.Subscribe()
	sim.Step()
	frame := <-ch
	assert.Equal(t, uint64(1), frame.Tick)
	assert.Len(t, frame.Agents, len(sim.Agents))

	sim.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	sim.Step() // no subscribers left; must not block
}

func TestEventBufferIsTrimmed(t *testing.T) {
	cfg := smallConfig(8)
	cfg.Engine.EventBuffer = 5
	sim, err := NewSimulation(cfg)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		sim.Step()
	}
	assert.LessOrEqual(t, len(sim.Events), 5)
	assert.Len(t, sim.RecentEvents(2), min(2, len(sim.Events)))
}
