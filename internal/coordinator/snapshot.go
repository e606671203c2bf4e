package coordinator

import "github.com/talgya/planet-harvest/internal/world"

// Snapshot is a read-only copy of the belief store for observers.
type Snapshot struct {
	Priority    string                           `json:"priority"`
	Ticks       uint64                           `json:"ticks"`
	Resources   []Discovery                      `json:"known_resources"`
	Structures  []Discovery                      `json:"known_structures"`
	Waiting     []Waiting                        `json:"waiting_for_partner"`
	InProgress  map[world.EntityID]world.AgentID `json:"in_progress"`
	AgentCounts map[world.AgentID]int            `json:"discoveries_per_agent"`
}

// Snapshot copies the current beliefs.
func (c *Coordinator) Snapshot() Snapshot {
	s := Snapshot{
		Priority:    c.priority.String(),
		Ticks:       c.ticks,
		Resources:   append([]Discovery(nil), c.resources...),
		Structures:  append([]Discovery(nil), c.structures...),
		Waiting:     append([]Waiting(nil), c.waiting...),
		InProgress:  make(map[world.EntityID]world.AgentID, len(c.inProgress)),
		AgentCounts: make(map[world.AgentID]int, len(c.perAgent)),
	}
	for id, a := range c.inProgress {
		s.InProgress[id] = a
	}
	for a, log := range c.perAgent {
		s.AgentCounts[a] = len(log)
	}
	return s
}

// KnownResources returns the number of deduplicated light-resource beliefs.
func (c *Coordinator) KnownResources() int { return len(c.resources) }

// KnownStructures returns the number of deduplicated structure beliefs.
func (c *Coordinator) KnownStructures() int { return len(c.structures) }

// WaitingCount returns the length of the waiting-for-partner queue.
func (c *Coordinator) WaitingCount() int { return len(c.waiting) }

// AgentLog returns a copy of the discoveries an agent has reported.
func (c *Coordinator) AgentLog(agent world.AgentID) []Discovery {
	return append([]Discovery(nil), c.perAgent[agent]...)
}
