package coordinator

import (
	"github.com/talgya/planet-harvest/internal/world"
)

// IntentionKind is the directive handed to an agent.
type IntentionKind uint8

const (
	IntentExplore IntentionKind = iota
	IntentCollectAt
	IntentTransportStructure
	IntentAssistAgent
	IntentReturnToBase
)

var intentionNames = [...]string{"explore", "collect_at", "transport_structure", "assist_agent", "return_to_base"}

func (k IntentionKind) String() string {
	if int(k) < len(intentionNames) {
		return intentionNames[k]
	}
	return "unknown"
}

// Intention tells an agent what to do next. Target and ResourceID are set for
// CollectAt and TransportStructure.
type Intention struct {
	Kind       IntentionKind  `json:"kind"`
	Target     world.Pos      `json:"target"`
	ResourceID world.EntityID `json:"resource_id,omitempty"`
}

// Explore is the default when nothing actionable is known.
var Explore = Intention{Kind: IntentExplore}

// RequestIntention picks the next directive for an agent, in fixed order:
// carrying agents return to base; then structures from the agent's own log;
// then light resources from its own log; then the global priority. An agent
// finishes structure business from its own memory before taking wider
// direction.
func (c *Coordinator) RequestIntention(r Requester) Intention {
	if r.Carrying() {
		return Intention{Kind: IntentReturnToBase, Target: c.basePos}
	}

	agent := r.AgentID()
	c.release(agent)

	own := c.perAgent[agent]
	for _, d := range own {
		if !d.Kind.Heavy() {
			continue
		}
		if c.markedByOther(d.ResourceID, agent) {
			continue
		}
		if res, ok := c.available(d); ok {
			c.mark(res.ID, agent)
			return Intention{Kind: IntentTransportStructure, Target: d.Pos, ResourceID: res.ID}
		}
	}
	for _, d := range own {
		if d.Kind.Heavy() || c.markedByOther(d.ResourceID, agent) {
			continue
		}
		if res, ok := c.available(d); ok {
			c.mark(res.ID, agent)
			return Intention{Kind: IntentCollectAt, Target: d.Pos, ResourceID: res.ID}
		}
	}

	switch c.priority {
	case PriorityAssistAgent:
		if r.CanAssist() && len(c.waiting) > 0 {
			return Intention{Kind: IntentAssistAgent, Target: c.waiting[0].Pos, ResourceID: c.waiting[0].StructureID}
		}
		return c.bestOf(agent, c.resources, IntentCollectAt)
	case PriorityTransportStructure:
		if in := c.bestOf(agent, c.structures, IntentTransportStructure); in.Kind != IntentExplore {
			return in
		}
		return c.bestOf(agent, c.resources, IntentCollectAt)
	case PriorityCollectResource:
		return c.bestOf(agent, c.resources, IntentCollectAt)
	}
	return Explore
}

// bestOf picks the known, unclaimed, unmarked candidate with the highest
// utility per unit distance from the base. Ties keep discovery order.
func (c *Coordinator) bestOf(agent world.AgentID, list []Discovery, kind IntentionKind) Intention {
	best := -1
	bestScore := 0.0
	for i, d := range list {
		if c.markedByOther(d.ResourceID, agent) {
			continue
		}
		if _, ok := c.available(d); !ok {
			continue
		}
		score := Score(d, c.basePos)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Explore
	}
	d := list[best]
	c.mark(d.ResourceID, agent)
	return Intention{Kind: kind, Target: d.Pos, ResourceID: d.ResourceID}
}

// Score rates a discovery by utility over distance to the base.
func Score(d Discovery, basePos world.Pos) float64 {
	return d.Utility / (world.Euclidean(d.Pos, basePos) + 1)
}
