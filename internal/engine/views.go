package engine

import (
	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/coordinator"
	"github.com/talgya/planet-harvest/internal/world"
)

// TickFrame is what one tick looked like from the outside.
type TickFrame struct {
	Tick       uint64           `json:"tick"`
	Stats      SimStats         `json:"stats"`
	Deliveries []world.Delivery `json:"deliveries,omitempty"`
	Events     []Event          `json:"events,omitempty"`
	Agents     []AgentView      `json:"agents"`
}

// AgentView is a read-only copy of an agent.
type AgentView struct {
	ID          world.AgentID  `json:"id"`
	Kind        string         `json:"kind"`
	State       string         `json:"state"`
	Pos         world.Pos      `json:"pos"`
	Carrying    bool           `json:"carrying"`
	CarriedID   world.EntityID `json:"carried_id,omitempty"`
	Partner     world.AgentID  `json:"partner,omitempty"`
	Target      *agents.Target `json:"target,omitempty"`
	Pending     int            `json:"pending_discoveries"`
	Visited     int            `json:"visited"`
	Steps       uint64         `json:"steps"`
	Delivered   int            `json:"delivered"`
	UtilityEarn float64        `json:"utility_share"`
}

// ResourceView is a read-only copy of a resource.
type ResourceView struct {
	ID        world.EntityID `json:"id"`
	Kind      string         `json:"kind"`
	Utility   float64        `json:"utility"`
	Pos       *world.Pos     `json:"pos,omitempty"` // nil while carried off-grid or delivered
	Claimed   bool           `json:"claimed"`
	InTransit bool           `json:"in_transit"`
	Delivered bool           `json:"delivered"`
}

// GridView is the whole map for observers.
type GridView struct {
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Base      world.Pos      `json:"base"`
	Resources []ResourceView `json:"resources"`
	Agents    []AgentView    `json:"agents"`
}

// Status is the summary served at the top of the API.
type Status struct {
	Tick         uint64    `json:"tick"`
	Seed         int64     `json:"seed"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Base         world.Pos `json:"base"`
	Agents       int       `json:"agents"`
	Resources    int       `json:"resources"`
	TotalUtility float64   `json:"total_utility"`
	Drained      bool      `json:"drained"`
	Stats        SimStats  `json:"stats"`
}

func viewOf(a *agents.Agent) AgentView {
	v := AgentView{
		ID:          a.ID,
		Kind:        a.Kind.String(),
		State:       a.State.String(),
		Pos:         a.Pos,
		Carrying:    a.Carrying(),
		Partner:     a.Partner,
		Pending:     len(a.Discoveries),
		Visited:     len(a.Visited),
		Steps:       a.Steps,
		Delivered:   a.Delivered,
		UtilityEarn: a.DeliveredUtility,
	}
	if a.Carried != nil {
		v.CarriedID = a.Carried.ID
	}
	if a.Target != nil {
		t := *a.Target
		v.Target = &t
	}
	return v
}

func (s *Simulation) agentViews() []AgentView {
	out := make([]AgentView, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = viewOf(a)
	}
	return out
}

func (s *Simulation) frame(tick uint64, deliveries []world.Delivery, events []Event) TickFrame {
	return TickFrame{
		Tick:       tick,
		Stats:      s.Stats,
		Deliveries: deliveries,
		Events:     events,
		Agents:     s.agentViews(),
	}
}

// Status returns the current summary.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Tick:         s.LastTick,
		Seed:         s.Seed,
		Width:        s.Grid.Width(),
		Height:       s.Grid.Height(),
		Base:         s.BasePos,
		Agents:       len(s.Agents),
		Resources:    len(s.Resources),
		TotalUtility: s.totalUtility,
		Drained:      s.Base.Len() == len(s.Resources),
		Stats:        s.Stats,
	}
}

// AgentViews returns every agent in tick order.
func (s *Simulation) AgentViews() []AgentView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentViews()
}

// AgentView returns one agent.
func (s *Simulation) AgentView(id world.AgentID) (AgentView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return AgentView{}, false
	}
	return viewOf(a), true
}

// GridView returns every resource and agent with its position.
func (s *Simulation) GridView() GridView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := GridView{
		Width:     s.Grid.Width(),
		Height:    s.Grid.Height(),
		Base:      s.BasePos,
		Resources: make([]ResourceView, 0, len(s.Resources)),
		Agents:    s.agentViews(),
	}
	for _, r := range s.Resources {
		rv := ResourceView{
			ID:        r.ID,
			Kind:      r.Kind.String(),
			Utility:   r.Utility,
			Claimed:   r.Claimed(),
			InTransit: r.InTransit(),
			Delivered: r.Delivered(),
		}
		if p, ok := s.Grid.PositionOf(r); ok {
			rv.Pos = &p
		}
		v.Resources = append(v.Resources, rv)
	}
	return v
}

// CoordinatorView returns a copy of the shared beliefs.
func (s *Simulation) CoordinatorView() coordinator.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Coord.Snapshot()
}

// Ledger returns the base ledger, oldest first.
func (s *Simulation) Ledger() []world.Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Base.Ledger()
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.Events) - n
	if n <= 0 || start < 0 {
		start = 0
	}
	return append([]Event(nil), s.Events[start:]...)
}
