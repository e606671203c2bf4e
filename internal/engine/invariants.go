package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/world"
)

// ErrInvariant is wrapped by every CheckInvariants failure.
var ErrInvariant = errors.New("invariant violated")

// CheckInvariants verifies the world's safety properties and reports the
// first one that fails.
func (s *Simulation) CheckInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkInvariants()
}

func (s *Simulation) checkInvariants() error {
	if err := s.checkBounds(); err != nil {
		return err
	}
	if err := s.checkClaims(); err != nil {
		return err
	}
	if err := s.checkPairs(); err != nil {
		return err
	}
	return s.checkConservation()
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvariant)
}

// Every agent is on the grid, in bounds, where it thinks it is.
func (s *Simulation) checkBounds() error {
	for _, a := range s.Agents {
		p, ok := s.Grid.PositionOf(a)
		if !ok {
			return violation("agent %d not on grid", a.ID)
		}
		if !s.Grid.InBounds(p) {
			return violation("agent %d out of bounds at %s", a.ID, p)
		}
		if p != a.Pos {
			return violation("agent %d at %s believes it is at %s", a.ID, p, a.Pos)
		}
	}
	return nil
}

// A resource is carried by at most one agent, and only by its claimant or
// its helper. Light resources in transit are off the grid; delivered
// resources are gone.
func (s *Simulation) checkClaims() error {
	carriers := make(map[world.EntityID]world.AgentID)
	for _, a := range s.Agents {
		r := a.Carried
		if r == nil {
			continue
		}
		if other, dup := carriers[r.ID]; dup {
			return violation("%s carried by agents %d and %d", r, other, a.ID)
		}
		carriers[r.ID] = a.ID
		if !r.InTransit() {
			return violation("%s carried by %d but not in transit", r, a.ID)
		}
		claimant, _ := r.ClaimedBy()
		helper, _ := r.Helper()
		if claimant != a.ID && helper != a.ID {
			return violation("%s carried by %d without a claim", r, a.ID)
		}
	}
	for _, r := range s.Resources {
		onGrid := s.Grid.Contains(r)
		switch {
		case r.Delivered():
			if onGrid {
				return violation("delivered %s still on the grid", r)
			}
		case r.InTransit():
			if _, ok := carriers[r.ID]; !ok {
				return violation("%s in transit with no carrier", r)
			}
			if r.Kind.Heavy() != onGrid {
				return violation("%s in transit, on grid=%v", r, onGrid)
			}
		default:
			if !onGrid {
				return violation("%s neither on the grid nor carried", r)
			}
		}
	}
	return nil
}

// Partners point at each other; a structure moves only with two distinct,
// co-located carriers; a waiting agent stands on the structure it claimed.
func (s *Simulation) checkPairs() error {
	for _, a := range s.Agents {
		if a.Partner != 0 {
			p, ok := s.AgentIndex[a.Partner]
			if !ok || p.Partner != a.ID {
				return violation("agent %d partner link to %d is one-sided", a.ID, a.Partner)
			}
			if p.ID == a.ID {
				return violation("agent %d partnered with itself", a.ID)
			}
			if a.Leader == p.Leader {
				return violation("agents %d and %d disagree on who leads", a.ID, p.ID)
			}
		}
		if a.State == agents.StateAwaitingPartner {
			r, ok := s.Grid.Resource(a.Structure)
			if !ok {
				return violation("agent %d waits on missing structure %d", a.ID, a.Structure)
			}
			if claimant, _ := r.ClaimedBy(); claimant != a.ID {
				return violation("agent %d waits on %s it did not claim", a.ID, r)
			}
			if p, _ := s.Grid.PositionOf(r); p != a.Pos {
				return violation("agent %d waits at %s away from %s at %s", a.ID, a.Pos, r, p)
			}
		}
		r := a.Carried
		if r == nil || !r.Kind.Heavy() {
			continue
		}
		claimant, _ := r.ClaimedBy()
		helper, hasHelper := r.Helper()
		if !hasHelper || claimant == helper {
			return violation("%s moving without two distinct carriers", r)
		}
		p, ok := s.AgentIndex[a.Partner]
		if !ok {
			return violation("%s carried by %d with no partner", r, a.ID)
		}
		if (a.ID != claimant || p.ID != helper) && (a.ID != helper || p.ID != claimant) {
			return violation("%s carriers %d,%d do not match claim %d,%d", r, a.ID, p.ID, claimant, helper)
		}
		rp, _ := s.Grid.PositionOf(r)
		if a.Pos != p.Pos || a.Pos != rp {
			return violation("%s at %s, carriers at %s and %s", r, rp, a.Pos, p.Pos)
		}
	}
	return nil
}

// Utility is neither created nor lost: delivered plus undelivered equals
// what was generated.
func (s *Simulation) checkConservation() error {
	undelivered := 0.0
	count := 0
	for _, r := range s.Resources {
		if !r.Delivered() {
			undelivered += r.Utility
			count++
		}
	}
	if got := s.Base.Total() + undelivered; math.Abs(got-s.totalUtility) > 1e-9 {
		return violation("utility %v delivered + %v left != %v generated", s.Base.Total(), undelivered, s.totalUtility)
	}
	if s.Base.Len()+count != len(s.Resources) {
		return violation("%d delivered + %d left != %d generated", s.Base.Len(), count, len(s.Resources))
	}
	return nil
}
