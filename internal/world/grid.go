package world

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds   = errors.New("position out of bounds")
	ErrNotPlaced     = errors.New("entity not on grid")
	ErrAlreadyPlaced = errors.New("entity already on grid")
	ErrInvalidSize   = errors.New("grid dimensions must be positive")
)

// EntityID identifies anything that can occupy a cell. Agents, resources and
// the base share one ID space.
type EntityID uint64

// AgentID is the EntityID of an agent.
type AgentID = EntityID

// Entity is anything the grid can hold.
type Entity interface {
	EntityID() EntityID
}

// Grid is a bounded, non-toroidal occupancy grid. Each cell holds zero or
// more entities in insertion order. The grid does no locking: callers step
// the world from a single goroutine.
type Grid struct {
	width  int
	height int

	// cells is indexed y*width + x.
	cells [][]Entity
	where map[EntityID]Pos
	byID  map[EntityID]Entity
}

// NewGrid creates an empty width × height grid.
func NewGrid(width, height int) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Grid{
		width:  width,
		height: height,
		cells:  make([][]Entity, width*height),
		where:  make(map[EntityID]Pos),
		byID:   make(map[EntityID]Entity),
	}, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// CellCount returns width × height.
func (g *Grid) CellCount() int { return g.width * g.height }

// InBounds reports whether p lies in [0,width) × [0,height).
func (g *Grid) InBounds(p Pos) bool {
	return p.X >= 0 && p.X < g.width && p.Y >= 0 && p.Y < g.height
}

func (g *Grid) index(p Pos) int {
	return p.Y*g.width + p.X
}

// Place puts e on the grid at p.
func (g *Grid) Place(e Entity, p Pos) error {
	if !g.InBounds(p) {
		return fmt.Errorf("place %d at %s: %w", e.EntityID(), p, ErrOutOfBounds)
	}
	id := e.EntityID()
	if _, ok := g.where[id]; ok {
		return fmt.Errorf("place %d: %w", id, ErrAlreadyPlaced)
	}
	i := g.index(p)
	g.cells[i] = append(g.cells[i], e)
	g.where[id] = p
	g.byID[id] = e
	return nil
}

// Remove takes e off the grid.
func (g *Grid) Remove(e Entity) error {
	id := e.EntityID()
	p, ok := g.where[id]
	if !ok {
		return fmt.Errorf("remove %d: %w", id, ErrNotPlaced)
	}
	g.detach(id, p)
	delete(g.where, id)
	delete(g.byID, id)
	return nil
}

// Move relocates e to p. Out-of-bounds targets are rejected, never wrapped.
func (g *Grid) Move(e Entity, p Pos) error {
	id := e.EntityID()
	from, ok := g.where[id]
	if !ok {
		return fmt.Errorf("move %d: %w", id, ErrNotPlaced)
	}
	if !g.InBounds(p) {
		return fmt.Errorf("move %d to %s: %w", id, p, ErrOutOfBounds)
	}
	if from == p {
		return nil
	}
	g.detach(id, from)
	i := g.index(p)
	g.cells[i] = append(g.cells[i], e)
	g.where[id] = p
	return nil
}

func (g *Grid) detach(id EntityID, p Pos) {
	i := g.index(p)
	cell := g.cells[i]
	for j, e := range cell {
		if e.EntityID() == id {
			g.cells[i] = append(cell[:j:j], cell[j+1:]...)
			return
		}
	}
}

// PositionOf returns the cell e occupies.
func (g *Grid) PositionOf(e Entity) (Pos, bool) {
	p, ok := g.where[e.EntityID()]
	return p, ok
}

// Contains reports whether e is currently on the grid.
func (g *Grid) Contains(e Entity) bool {
	_, ok := g.where[e.EntityID()]
	return ok
}

// Neighbors8 returns the Moore neighbours of p clipped at the edges, in
// MooreDirections order.
func (g *Grid) Neighbors8(p Pos) []Pos {
	out := make([]Pos, 0, 8)
	for _, d := range MooreDirections {
		n := p.Add(d)
		if g.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// Contents returns a snapshot of the entities at p in insertion order.
// Out-of-bounds cells are empty.
func (g *Grid) Contents(p Pos) []Entity {
	if !g.InBounds(p) {
		return nil
	}
	cell := g.cells[g.index(p)]
	if len(cell) == 0 {
		return nil
	}
	out := make([]Entity, len(cell))
	copy(out, cell)
	return out
}

// IsEmpty reports whether nothing occupies p.
func (g *Grid) IsEmpty(p Pos) bool {
	return g.InBounds(p) && len(g.cells[g.index(p)]) == 0
}

// Resource returns the resource with the given ID if it is still on the grid.
func (g *Grid) Resource(id EntityID) (*Resource, bool) {
	r, ok := g.byID[id].(*Resource)
	return r, ok
}

// ResourcesAt returns the resources at p in insertion order.
func (g *Grid) ResourcesAt(p Pos) []*Resource {
	var out []*Resource
	for _, e := range g.Contents(p) {
		if r, ok := e.(*Resource); ok {
			out = append(out, r)
		}
	}
	return out
}

// Each calls fn for every non-empty cell in row-major order. The slice
// passed to fn is a snapshot.
func (g *Grid) Each(fn func(p Pos, contents []Entity)) {
	for i, cell := range g.cells {
		if len(cell) == 0 {
			continue
		}
		snapshot := make([]Entity, len(cell))
		copy(snapshot, cell)
		fn(Pos{X: i % g.width, Y: i / g.width}, snapshot)
	}
}

// EntityCount returns the number of entities on the grid.
func (g *Grid) EntityCount() int {
	return len(g.where)
}

func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, entities=%d)", g.width, g.height, len(g.where))
}
