// Package agents provides the harvesting agents: their classes, the per-tick
// state machine, exploration memory and the two-agent carry protocol.
package agents

import (
	"math/rand"

	"github.com/talgya/planet-harvest/internal/coordinator"
	"github.com/talgya/planet-harvest/internal/world"
)

// Kind is an agent's class. Classes differ only in which behaviours are
// switched on; see the policy methods below.
type Kind uint8

const (
	KindReactive    Kind = iota // Random walk, no memory
	KindStateful                // Avoids cells it has already visited
	KindGoalBased               // Plans toward known resources
	KindCooperative             // Goal-based, and helps carry structures
)

// NumKinds is the number of agent classes.
const NumKinds = 4

var kindNames = [NumKinds]string{"reactive", "stateful", "goal_based", "cooperative"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind maps a class name back to its value.
func ParseKind(s string) (Kind, bool) {
	for i, n := range kindNames {
		if n == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// remembers reports whether the class keeps a visited-cell memory.
func (k Kind) remembers() bool { return k != KindReactive }

// registers reports whether the class reports claimed structures to the
// coordinator's waiting queue.
func (k Kind) registers() bool { return k != KindReactive }

// plans reports whether the class picks targets from memory and intentions.
func (k Kind) plans() bool { return k == KindGoalBased || k == KindCooperative }

// State is where an agent is in its collection cycle.
type State uint8

const (
	StateExploring State = iota
	StateSeeking
	StateCollecting
	StateTransporting
	StateAwaitingPartner
)

var stateNames = [...]string{"exploring", "seeking", "collecting", "transporting", "awaiting_partner"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Target is the cell an agent is heading for, and why.
type Target struct {
	Pos        world.Pos                 `json:"pos"`
	ResourceID world.EntityID            `json:"resource_id,omitempty"`
	Reason     coordinator.IntentionKind `json:"reason"`
}

// NeighborChooser picks the next cell for an exploring agent from a
// non-empty list of candidates.
type NeighborChooser func(a *Agent, candidates []world.Pos) world.Pos

// Agent is one harvester. The grid is authoritative for position; Pos
// mirrors it and is updated on every move.
type Agent struct {
	ID    world.AgentID `json:"id"`
	Kind  Kind          `json:"kind"`
	State State         `json:"state"`
	Pos   world.Pos     `json:"pos"`

	// Carried is set on a solo carrier and on the leader of a joint carry.
	Carried *world.Resource `json:"-"`
	Target  *Target         `json:"target,omitempty"`

	// Partner links the two agents of a joint carry. Leader is true on the
	// helper, which drives both agents once transit begins.
	Partner   world.AgentID  `json:"partner,omitempty"`
	Leader    bool           `json:"leader,omitempty"`
	Structure world.EntityID `json:"structure,omitempty"` // waiting on, or helping with

	Visited     map[world.Pos]struct{}  `json:"-"`
	Discoveries []coordinator.Discovery `json:"discoveries"`
	seen        map[coordinator.Key]struct{}

	// Stats
	Steps            uint64  `json:"steps"`
	Delivered        int     `json:"delivered"`
	DeliveredUtility float64 `json:"delivered_utility"`

	Chooser NeighborChooser `json:"-"`
	rng     *rand.Rand
}

// New creates an exploring agent at p. rng drives its random choices.
func New(id world.AgentID, kind Kind, p world.Pos, rng *rand.Rand) *Agent {
	a := &Agent{
		ID:      id,
		Kind:    kind,
		State:   StateExploring,
		Pos:     p,
		Visited: make(map[world.Pos]struct{}),
		seen:    make(map[coordinator.Key]struct{}),
		rng:     rng,
	}
	a.Chooser = RandomChooser
	return a
}

// RandomChooser picks uniformly among the candidates.
func RandomChooser(a *Agent, candidates []world.Pos) world.Pos {
	return candidates[a.rng.Intn(len(candidates))]
}

func (a *Agent) EntityID() world.EntityID { return a.ID }

// AgentID, Position, Carrying and CanAssist make *Agent a coordinator.Requester.
func (a *Agent) AgentID() world.AgentID { return a.ID }
func (a *Agent) Position() world.Pos    { return a.Pos }

// Carrying reports whether the agent is bringing something home, alone or as
// one half of a joint carry.
func (a *Agent) Carrying() bool {
	return a.Carried != nil || (a.State == StateTransporting && a.Partner != 0)
}

// CanAssist reports whether the agent helps carry structures.
func (a *Agent) CanAssist() bool { return a.Kind == KindCooperative }

// Busy reports whether the agent is bound to a structure and must not start
// anything else.
func (a *Agent) Busy() bool {
	return a.State == StateAwaitingPartner || a.Partner != 0 || a.Carried != nil
}

// follower reports whether another agent moves this one.
func (a *Agent) follower() bool {
	return a.Partner != 0 && !a.Leader
}

// Env is what an agent can see and touch during its turn.
type Env struct {
	Grid    *world.Grid
	Base    *world.Base
	BasePos world.Pos
	Coord   *coordinator.Coordinator
	Tick    uint64

	// Lookup resolves an agent by ID; nil when unknown.
	Lookup func(world.AgentID) *Agent
}
