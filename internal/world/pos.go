// Package world provides the bounded occupancy grid, the entity model
// (resources and the base) and the setup generator.
package world

import (
	"fmt"
	"math"
)

// Pos is a cell coordinate on the grid. X grows to the right, Y upward.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// MooreDirections lists the eight neighbour offsets in enumeration order:
// dx from -1 to 1, and for each dx, dy from -1 to 1. Greedy movement breaks
// ties by this order, so it must stay fixed.
var MooreDirections = [8]Pos{
	{X: -1, Y: -1},
	{X: -1, Y: 0},
	{X: -1, Y: 1},
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: 1, Y: -1},
	{X: 1, Y: 0},
	{X: 1, Y: 1},
}

// Add returns p shifted by d.
func (p Pos) Add(d Pos) Pos {
	return Pos{X: p.X + d.X, Y: p.Y + d.Y}
}

// Euclidean returns the straight-line distance between two cells.
func Euclidean(a, b Pos) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// Manhattan returns the taxicab distance between two cells.
func Manhattan(a, b Pos) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Chebyshev returns the king-move distance between two cells, which is the
// number of greedy steps needed to travel from a to b on an open grid.
func Chebyshev(a, b Pos) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
