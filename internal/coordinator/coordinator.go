// Package coordinator is the shared belief/intention store. Agents report
// what they have seen when they reach the base; the coordinator merges those
// reports, keeps the queue of agents waiting for a carrying partner, and hands
// out intentions.
package coordinator

import (
	"log/slog"

	"github.com/talgya/planet-harvest/internal/world"
)

// Priority is the coordinator's global focus, refreshed once per tick.
type Priority uint8

const (
	PriorityExplore Priority = iota
	PriorityCollectResource
	PriorityTransportStructure
	PriorityAssistAgent
)

var priorityNames = [...]string{"explore", "collect_resource", "transport_structure", "assist_agent"}

func (p Priority) String() string {
	if int(p) < len(priorityNames) {
		return priorityNames[p]
	}
	return "unknown"
}

// Discovery is one observation of a resource at a cell.
type Discovery struct {
	ResourceID world.EntityID     `json:"resource_id"`
	Kind       world.ResourceKind `json:"kind"`
	Pos        world.Pos          `json:"pos"`
	Utility    float64            `json:"utility"`
	Tick       uint64             `json:"tick"`
}

// Key is the deduplication key of a discovery.
type Key struct {
	Kind world.ResourceKind
	Pos  world.Pos
}

func (d Discovery) Key() Key {
	return Key{Kind: d.Kind, Pos: d.Pos}
}

// ResourceSource resolves a resource that is still on the grid.
// *world.Grid satisfies it.
type ResourceSource interface {
	Resource(id world.EntityID) (*world.Resource, bool)
}

// Requester is the view of an agent the coordinator needs to pick an
// intention.
type Requester interface {
	AgentID() world.AgentID
	Position() world.Pos
	Carrying() bool
	CanAssist() bool
}

// Waiting is an agent parked on a structure until a helper arrives.
type Waiting struct {
	Agent       world.AgentID  `json:"agent"`
	StructureID world.EntityID `json:"structure_id"`
	Pos         world.Pos      `json:"pos"`
}

// Coordinator holds the aggregated beliefs. It never owns agent state; it
// only stores agent IDs.
type Coordinator struct {
	source  ResourceSource
	basePos world.Pos

	resources      []Discovery
	resourceIndex  map[Key]int
	structures     []Discovery
	structureIndex map[Key]int

	perAgent map[world.AgentID][]Discovery

	waiting    []Waiting
	registered map[world.EntityID]world.AgentID

	// inProgress marks resources an agent has been sent to collect.
	inProgress map[world.EntityID]world.AgentID
	assignedTo map[world.AgentID]world.EntityID

	priority Priority
	ticks    uint64
}

// New creates an empty coordinator for a world whose base sits at basePos.
func New(source ResourceSource, basePos world.Pos) *Coordinator {
	return &Coordinator{
		source:         source,
		basePos:        basePos,
		resourceIndex:  make(map[Key]int),
		structureIndex: make(map[Key]int),
		perAgent:       make(map[world.AgentID][]Discovery),
		registered:     make(map[world.EntityID]world.AgentID),
		inProgress:     make(map[world.EntityID]world.AgentID),
		assignedTo:     make(map[world.AgentID]world.EntityID),
		priority:       PriorityExplore,
	}
}

// Priority returns the global priority set by the last Tick.
func (c *Coordinator) Priority() Priority { return c.priority }

// Ticks returns how many times Tick has run.
func (c *Coordinator) Ticks() uint64 { return c.ticks }

// Tick recomputes the global priority. It runs once per simulation step,
// before any agent acts.
func (c *Coordinator) Tick() {
	c.ticks++
	c.pruneMarkers()

	prev := c.priority
	switch {
	case len(c.waiting) > 0:
		c.priority = PriorityAssistAgent
	case len(c.structures) > len(c.resources):
		c.priority = PriorityTransportStructure
	default:
		c.priority = PriorityCollectResource
	}
	if prev != c.priority {
		slog.Debug("coordinator priority changed",
			"from", prev.String(),
			"to", c.priority.String(),
			"waiting", len(c.waiting),
			"structures", len(c.structures),
			"resources", len(c.resources),
		)
	}
}

// RecordDiscoveries merges an agent's reports into the belief store. Known
// sets are deduplicated on (kind, pos); the agent's own log keeps every
// record it sends.
func (c *Coordinator) RecordDiscoveries(records []Discovery, agent world.AgentID) {
	if len(records) == 0 {
		return
	}
	for _, d := range records {
		c.insert(d)
	}
	c.perAgent[agent] = append(c.perAgent[agent], records...)
}

func (c *Coordinator) insert(d Discovery) bool {
	k := d.Key()
	if d.Kind.Heavy() {
		if _, ok := c.structureIndex[k]; ok {
			return false
		}
		c.structureIndex[k] = len(c.structures)
		c.structures = append(c.structures, d)
		return true
	}
	if _, ok := c.resourceIndex[k]; ok {
		return false
	}
	c.resourceIndex[k] = len(c.resources)
	c.resources = append(c.resources, d)
	return true
}

// RegisterStructure records that waitingAgent holds the waiting role on a
// structure and queues it for a helper. A structure is registered at most
// once; later calls return false.
func (c *Coordinator) RegisterStructure(d Discovery, waitingAgent world.AgentID) bool {
	if _, ok := c.registered[d.ResourceID]; ok {
		return false
	}
	c.insert(d)
	c.registered[d.ResourceID] = waitingAgent
	c.waiting = append(c.waiting, Waiting{Agent: waitingAgent, StructureID: d.ResourceID, Pos: d.Pos})
	c.release(waitingAgent)
	slog.Debug("structure registered", "structure", d.ResourceID, "pos", d.Pos.String(), "waiting_agent", waitingAgent)
	return true
}

// NextWaitingPartner pops the oldest waiting agent.
func (c *Coordinator) NextWaitingPartner() (Waiting, bool) {
	if len(c.waiting) == 0 {
		return Waiting{}, false
	}
	w := c.waiting[0]
	c.waiting = c.waiting[1:]
	return w, true
}

// Withdraw removes a specific agent from the waiting queue, for helpers that
// pair up on the spot. It reports whether the agent was queued.
func (c *Coordinator) Withdraw(agent world.AgentID) bool {
	for i, w := range c.waiting {
		if w.Agent == agent {
			c.waiting = append(c.waiting[:i:i], c.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// IsWaiting reports whether agent is still queued for a partner.
func (c *Coordinator) IsWaiting(agent world.AgentID) bool {
	for _, w := range c.waiting {
		if w.Agent == agent {
			return true
		}
	}
	return false
}

// ReleaseStructure is called once a structure has been delivered: the waiting
// slot is freed and every belief about the structure is dropped.
func (c *Coordinator) ReleaseStructure(id world.EntityID) {
	if agent, ok := c.registered[id]; ok {
		c.Withdraw(agent)
		delete(c.registered, id)
	}
	c.Forget(id)
}

// Forget drops the known-set records of a resource that no longer exists.
// Per-agent logs are history and are kept.
func (c *Coordinator) Forget(id world.EntityID) {
	c.resources = dropRecords(c.resources, id)
	c.resourceIndex = reindex(c.resources)
	c.structures = dropRecords(c.structures, id)
	c.structureIndex = reindex(c.structures)
	if agent, ok := c.inProgress[id]; ok {
		delete(c.inProgress, id)
		delete(c.assignedTo, agent)
	}
}

func dropRecords(list []Discovery, id world.EntityID) []Discovery {
	out := list[:0]
	for _, d := range list {
		if d.ResourceID != id {
			out = append(out, d)
		}
	}
	return out
}

func reindex(list []Discovery) map[Key]int {
	m := make(map[Key]int, len(list))
	for i, d := range list {
		m[d.Key()] = i
	}
	return m
}

// pruneMarkers drops in-progress markers for resources that left the grid.
func (c *Coordinator) pruneMarkers() {
	for id, agent := range c.inProgress {
		if _, ok := c.source.Resource(id); !ok {
			delete(c.inProgress, id)
			delete(c.assignedTo, agent)
		}
	}
}

// release drops the marker an agent holds, if any.
func (c *Coordinator) release(agent world.AgentID) {
	if id, ok := c.assignedTo[agent]; ok {
		delete(c.assignedTo, agent)
		delete(c.inProgress, id)
	}
}

func (c *Coordinator) mark(id world.EntityID, agent world.AgentID) {
	c.inProgress[id] = agent
	c.assignedTo[agent] = id
}

// markedByOther reports whether another agent is already heading for id.
func (c *Coordinator) markedByOther(id world.EntityID, agent world.AgentID) bool {
	holder, ok := c.inProgress[id]
	return ok && holder != agent
}

// available resolves a discovery to a resource that is still on the grid and
// unclaimed.
func (c *Coordinator) available(d Discovery) (*world.Resource, bool) {
	r, ok := c.source.Resource(d.ResourceID)
	if !ok || !r.Available() {
		return nil, false
	}
	return r, true
}
