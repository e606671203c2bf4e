package agents

import (
	"github.com/talgya/planet-harvest/internal/coordinator"
	"github.com/talgya/planet-harvest/internal/world"
)

// visit records p in the agent's exploration memory.
func (a *Agent) visit(p world.Pos) {
	if a.Kind.remembers() {
		a.Visited[p] = struct{}{}
	}
}

// Visited cells are forgotten on every return to base, so the next trip
// starts fresh.
func (a *Agent) forgetVisited() {
	if len(a.Visited) > 0 {
		a.Visited = make(map[world.Pos]struct{})
	}
}

// unvisited filters candidates down to cells not yet in memory. When every
// candidate has been seen, the full list is returned.
func (a *Agent) unvisited(candidates []world.Pos) []world.Pos {
	if !a.Kind.remembers() {
		return candidates
	}
	fresh := make([]world.Pos, 0, len(candidates))
	for _, p := range candidates {
		if _, ok := a.Visited[p]; !ok {
			fresh = append(fresh, p)
		}
	}
	if len(fresh) == 0 {
		return candidates
	}
	return fresh
}

// observe logs every resource at the agent's cell that it is not itself
// handling. Resources in transit are skipped: their position is stale the
// moment the carriers move on.
func (a *Agent) observe(env *Env) {
	for _, r := range env.Grid.ResourcesAt(a.Pos) {
		if r == a.Carried || r.ID == a.Structure || r.InTransit() || r.Delivered() {
			continue
		}
		a.remember(discoveryOf(r, a.Pos, env.Tick))
	}
}

// remember appends d to the local log unless the same (kind, pos) is
// already pending.
func (a *Agent) remember(d coordinator.Discovery) {
	k := d.Key()
	if _, ok := a.seen[k]; ok {
		return
	}
	a.seen[k] = struct{}{}
	a.Discoveries = append(a.Discoveries, d)
}

// flush hands the local log to the coordinator and clears it. Records of
// resources that have since left the grid or are being carried are dropped.
func (a *Agent) flush(env *Env) int {
	fresh := a.Discoveries[:0]
	for _, d := range a.Discoveries {
		if r, ok := env.Grid.Resource(d.ResourceID); ok && !r.InTransit() {
			fresh = append(fresh, d)
		}
	}
	n := len(fresh)
	if n > 0 {
		env.Coord.RecordDiscoveries(fresh, a.ID)
	}
	a.Discoveries = nil
	a.seen = make(map[coordinator.Key]struct{})
	a.forgetVisited()
	return n
}

// nearestOwn picks the closest still-claimable entry from the agent's
// unflushed log. Structures come first, matching the order the coordinator
// uses for an agent's own reports. Cooperative agents also consider
// structures whose waiter still needs a helper.
func (a *Agent) nearestOwn(env *Env) (*Target, bool) {
	if !a.Kind.plans() {
		return nil, false
	}
	if t, ok := a.nearestWhere(env, func(r *world.Resource) (coordinator.IntentionKind, bool) {
		if !r.Kind.Heavy() {
			return 0, false
		}
		if r.Available() {
			return coordinator.IntentTransportStructure, true
		}
		if a.CanAssist() && needsHelper(env, r) {
			return coordinator.IntentAssistAgent, true
		}
		return 0, false
	}); ok {
		return t, true
	}
	return a.nearestWhere(env, func(r *world.Resource) (coordinator.IntentionKind, bool) {
		return coordinator.IntentCollectAt, !r.Kind.Heavy() && r.Available()
	})
}

func (a *Agent) nearestWhere(env *Env, accept func(*world.Resource) (coordinator.IntentionKind, bool)) (*Target, bool) {
	var best *Target
	bestDist := 0.0
	bestUtility := 0.0
	for _, d := range a.Discoveries {
		r, ok := env.Grid.Resource(d.ResourceID)
		if !ok {
			continue
		}
		reason, ok := accept(r)
		if !ok {
			continue
		}
		dist := world.Euclidean(a.Pos, d.Pos)
		if best == nil || dist < bestDist || (dist == bestDist && d.Utility > bestUtility) {
			best = &Target{Pos: d.Pos, ResourceID: d.ResourceID, Reason: reason}
			bestDist, bestUtility = dist, d.Utility
		}
	}
	return best, best != nil
}

// needsHelper reports whether r is a structure whose waiting agent is still
// parked on it without a helper.
func needsHelper(env *Env, r *world.Resource) bool {
	if !r.Kind.Heavy() || r.InTransit() || r.Delivered() {
		return false
	}
	if _, ok := r.Helper(); ok {
		return false
	}
	waiter, ok := r.ClaimedBy()
	if !ok || env.Lookup == nil {
		return false
	}
	w := env.Lookup(waiter)
	return w != nil && w.State == StateAwaitingPartner && w.Structure == r.ID
}

func discoveryOf(r *world.Resource, p world.Pos, tick uint64) coordinator.Discovery {
	return coordinator.Discovery{
		ResourceID: r.ID,
		Kind:       r.Kind,
		Pos:        p,
		Utility:    r.Utility,
		Tick:       tick,
	}
}
