// Simulation ties the grid, base, coordinator and agents together and runs
// them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/config"
	"github.com/talgya/planet-harvest/internal/coordinator"
	"github.com/talgya/planet-harvest/internal/entropy"
	"github.com/talgya/planet-harvest/internal/world"
)

// Simulation holds the complete world state. Step holds the write lock for
// the whole tick; readers go through the view methods, which take the read
// lock and return copies.
type Simulation struct {
	mu sync.RWMutex

	Seed    int64
	Grid    *world.Grid
	Base    *world.Base
	BasePos world.Pos
	Coord   *coordinator.Coordinator

	// Agents is the tick order: grouped by class, Reactive first.
	Agents     []*agents.Agent
	AgentIndex map[world.AgentID]*agents.Agent

	// Resources is every resource generated, delivered or not.
	Resources []*world.Resource

	Events   []Event // Recent events, trimmed to eventBuffer
	LastTick uint64
	Stats    SimStats

	verify       bool
	eventBuffer  int
	totalUtility float64

	subMu   sync.Mutex
	subs    map[int]chan TickFrame
	nextSub int
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "agent", "delivery", "invariant"
}

// SimStats tracks aggregate statistics, refreshed every tick.
type SimStats struct {
	Tick             uint64         `json:"tick"`
	Delivered        int            `json:"delivered"`
	DeliveredUtility float64        `json:"delivered_utility"`
	Remaining        int            `json:"remaining"`
	RemainingUtility float64        `json:"remaining_utility"`
	InTransit        int            `json:"in_transit"`
	Waiting          int            `json:"waiting_for_partner"`
	KnownResources   int            `json:"known_resources"`
	KnownStructures  int            `json:"known_structures"`
	Priority         string         `json:"priority"`
	States           map[string]int `json:"states"`
}

// NewSimulation generates a world from cfg and populates it.
func NewSimulation(cfg config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := entropy.ResolveSeed(cfg.World.Seed)
	gen := cfg.GenConfig()
	gen.Seed = seed

	setup, err := world.Generate(gen)
	if err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}
	ag, err := agents.NewSpawner(seed, setup.IDs).Spawn(setup.Grid, cfg.AgentCounts())
	if err != nil {
		return nil, fmt.Errorf("spawn agents: %w", err)
	}

	sim := FromSetup(setup, ag)
	sim.Seed = seed
	sim.verify = cfg.Engine.Verify
	if cfg.Engine.EventBuffer > 0 {
		sim.eventBuffer = cfg.Engine.EventBuffer
	}
	slog.Info("world generated",
		"seed", seed,
		"size", fmt.Sprintf("%dx%d", gen.Width, gen.Height),
		"base", setup.BasePos.String(),
		"resources", len(setup.Resources),
		"agents", len(ag),
		"utility_on_map", sim.totalUtility,
	)
	return sim, nil
}

// FromSetup builds a Simulation around an already generated world. Agents
// must already be on the grid; they are reordered by class.
func FromSetup(setup *world.Setup, ag []*agents.Agent) *Simulation {
	ordered := append([]*agents.Agent(nil), ag...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Kind < ordered[j].Kind })

	index := make(map[world.AgentID]*agents.Agent, len(ordered))
	for _, a := range ordered {
		index[a.ID] = a
	}
	total := 0.0
	for _, r := range setup.Resources {
		total += r.Utility
	}

	sim := &Simulation{
		Grid:         setup.Grid,
		Base:         setup.Base,
		BasePos:      setup.BasePos,
		Coord:        coordinator.New(setup.Grid, setup.BasePos),
		Agents:       ordered,
		AgentIndex:   index,
		Resources:    setup.Resources,
		eventBuffer:  1000,
		totalUtility: total,
		subs:         make(map[int]chan TickFrame),
	}
	sim.updateStats()
	return sim
}

// SetVerify turns the per-tick invariant check on or off.
func (s *Simulation) SetVerify(on bool) {
	s.mu.Lock()
	s.verify = on
	s.mu.Unlock()
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// TotalUtility is the utility of every resource generated.
func (s *Simulation) TotalUtility() float64 { return s.totalUtility }

func (s *Simulation) lookup(id world.AgentID) *agents.Agent {
	return s.AgentIndex[id]
}

// Step advances the world by one tick: the coordinator refreshes its
// priority, then every agent takes one turn in class order. The finished
// tick is published to subscribers.
func (s *Simulation) Step() TickFrame {
	s.mu.Lock()
	tick := s.LastTick + 1
	s.LastTick = tick
	s.Coord.Tick()

	env := &agents.Env{
		Grid:    s.Grid,
		Base:    s.Base,
		BasePos: s.BasePos,
		Coord:   s.Coord,
		Tick:    tick,
		Lookup:  s.lookup,
	}
	ledgerBefore := s.Base.Len()

	var events []Event
	for _, a := range s.Agents {
		for _, desc := range a.DecideAndAct(env) {
			events = append(events, Event{Tick: tick, Description: desc, Category: "agent"})
		}
	}

	deliveries := s.Base.LedgerSince(ledgerBefore)
	for _, d := range deliveries {
		events = append(events, Event{
			Tick:        tick,
			Description: fmt.Sprintf("base received %s #%d worth %.0f", d.Kind, d.ResourceID, d.Utility),
			Category:    "delivery",
		})
	}

	if s.verify {
		if err := s.checkInvariants(); err != nil {
			slog.Error("invariant violated", "tick", tick, "error", err)
			events = append(events, Event{Tick: tick, Description: err.Error(), Category: "invariant"})
		}
	}

	s.appendEvents(events)
	s.updateStats()
	frame := s.frame(tick, deliveries, events)
	s.mu.Unlock()

	s.publish(frame)
	return frame
}

func (s *Simulation) appendEvents(events []Event) {
	s.Events = append(s.Events, events...)
	if over := len(s.Events) - s.eventBuffer; over > 0 {
		s.Events = append([]Event(nil), s.Events[over:]...)
	}
}

// Drained reports whether every resource has been delivered.
func (s *Simulation) Drained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Base.Len() == len(s.Resources)
}

// Report logs a progress summary.
func (s *Simulation) Report(tick uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eventCounts := make(map[string]int)
	for _, e := range s.Events {
		eventCounts[e.Category]++
	}
	counts := s.Base.Counts()
	slog.Info("progress report",
		"tick", tick,
		"priority", s.Stats.Priority,
		"delivered", s.Stats.Delivered,
		"utility", fmt.Sprintf("%.0f/%.0f", s.Stats.DeliveredUtility, s.totalUtility),
		"crystal", counts[world.KindCrystal],
		"metal", counts[world.KindMetal],
		"structure", counts[world.KindStructure],
		"in_transit", s.Stats.InTransit,
		"waiting", s.Stats.Waiting,
		"exploring", s.Stats.States[agents.StateExploring.String()],
		"events_agent", eventCounts["agent"],
		"events_invariant", eventCounts["invariant"],
	)
}

func (s *Simulation) updateStats() {
	st := SimStats{
		Tick:             s.LastTick,
		Delivered:        s.Base.Len(),
		DeliveredUtility: s.Base.Total(),
		Waiting:          s.Coord.WaitingCount(),
		KnownResources:   s.Coord.KnownResources(),
		KnownStructures:  s.Coord.KnownStructures(),
		Priority:         s.Coord.Priority().String(),
		States:           make(map[string]int),
	}
	for _, r := range s.Resources {
		if r.Delivered() {
			continue
		}
		st.Remaining++
		st.RemainingUtility += r.Utility
		if r.InTransit() {
			st.InTransit++
		}
	}
	for _, a := range s.Agents {
		st.States[a.State.String()]++
	}
	s.Stats = st
}

// Subscribe registers a listener for tick frames. Slow listeners miss
// frames rather than stall the simulation.
func (s *Simulation) Subscribe() (int, <-chan TickFrame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextSub++
	ch := make(chan TickFrame, 16)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Simulation) publish(f TickFrame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- f:
		default:
			slog.Debug("subscriber lagging, frame dropped", "sub_id", id, "tick", f.Tick)
		}
	}
}
