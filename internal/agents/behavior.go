package agents

import (
	"fmt"
	"log/slog"

	"github.com/talgya/planet-harvest/internal/coordinator"
	"github.com/talgya/planet-harvest/internal/world"
)

// DecideAndAct runs one turn of the agent's state machine and returns
// human-readable events. An agent moves at most one cell per turn; a follower
// in a joint carry is moved by its leader and does nothing on its own turn.
func (a *Agent) DecideAndAct(env *Env) []string {
	switch a.State {
	case StateAwaitingPartner:
		return nil
	case StateTransporting:
		if a.follower() {
			return nil
		}
		return a.transport(env)
	case StateSeeking:
		return a.seek(env)
	case StateCollecting:
		return a.collect(env)
	default:
		return a.exploreTurn(env)
	}
}

// exploreTurn gives planning agents a chance to pick a target before falling
// back to a random step.
func (a *Agent) exploreTurn(env *Env) []string {
	if a.Kind.plans() {
		if events, ok := a.pickTarget(env, true); ok {
			return events
		}
	}
	return a.explore(env)
}

// pickTarget looks for something to do: the agent's own unflushed log first,
// then the coordinator. With step set, the agent takes its first step toward
// the new target in the same turn.
func (a *Agent) pickTarget(env *Env, step bool) ([]string, bool) {
	if t, ok := a.nearestOwn(env); ok {
		if !a.adopt(env, t) {
			return nil, false
		}
	} else {
		in := env.Coord.RequestIntention(a)
		if !a.adoptIntention(env, in) {
			return nil, false
		}
	}
	if !step {
		return nil, true
	}
	return a.seek(env), true
}

// adoptIntention turns a coordinator directive into a target. It reports
// false for Explore and ReturnToBase, which need no target.
func (a *Agent) adoptIntention(env *Env, in coordinator.Intention) bool {
	switch in.Kind {
	case coordinator.IntentCollectAt, coordinator.IntentTransportStructure:
		return a.adopt(env, &Target{Pos: in.Target, ResourceID: in.ResourceID, Reason: in.Kind})
	case coordinator.IntentAssistAgent:
		if !a.CanAssist() {
			return false
		}
		w, ok := env.Coord.NextWaitingPartner()
		if !ok {
			return false
		}
		return a.offerHelp(env, w.Agent, w.StructureID)
	}
	return false
}

func (a *Agent) adopt(env *Env, t *Target) bool {
	if t.Reason == coordinator.IntentAssistAgent {
		r, ok := env.Grid.Resource(t.ResourceID)
		if !ok {
			return false
		}
		waiter, _ := r.ClaimedBy()
		return a.offerHelp(env, waiter, r.ID)
	}
	a.Target = t
	a.State = StateSeeking
	return true
}

// explore takes one step to a neighbouring cell and handles whatever is
// there.
func (a *Agent) explore(env *Env) []string {
	candidates := env.Grid.Neighbors8(a.Pos)
	if len(candidates) == 0 {
		return nil
	}
	a.moveTo(env, a.Chooser(a, a.unvisited(candidates)))
	return a.inspect(env)
}

// inspect acts on the resources at the agent's cell: the first available
// light resource is picked up; a structure is claimed or, for cooperative
// agents, helped with. Everything else is logged.
func (a *Agent) inspect(env *Env) []string {
	for _, r := range env.Grid.ResourcesAt(a.Pos) {
		if r.Kind.Heavy() {
			if events, ok := a.meetStructure(env, r); ok {
				a.observe(env)
				return events
			}
			continue
		}
		if r.Available() {
			if events, ok := a.pickUp(env, r); ok {
				a.observe(env)
				return events
			}
		}
	}
	a.observe(env)
	return nil
}

// seek steps toward the current target.
func (a *Agent) seek(env *Env) []string {
	if a.Target == nil {
		a.State = StateExploring
		return a.explore(env)
	}
	if a.Leader {
		return a.approach(env)
	}
	a.stepToward(env, a.Target.Pos)
	a.observe(env)
	if a.Pos == a.Target.Pos {
		a.State = StateCollecting
	}
	return nil
}

// collect tries to take the targeted resource. If someone got there first,
// planning agents pick a new target and the others go back to exploring.
func (a *Agent) collect(env *Env) []string {
	if events := a.inspect(env); a.State != StateCollecting {
		return events
	}
	var lost world.EntityID
	if a.Target != nil {
		lost = a.Target.ResourceID
	}
	a.Target = nil
	a.State = StateExploring
	if a.Kind.plans() {
		a.pickTarget(env, false)
	}
	slog.Debug("target gone", "agent", a.ID, "resource", lost, "pos", a.Pos.String(), "next", a.State.String())
	return nil
}

// pickUp claims a light resource and lifts it off the grid.
func (a *Agent) pickUp(env *Env, r *world.Resource) ([]string, bool) {
	if err := r.Claim(a.ID); err != nil {
		slog.Debug("claim lost", "agent", a.ID, "resource", r.ID, "error", err)
		return nil, false
	}
	if err := r.BeginTransit(); err != nil {
		r.Release()
		slog.Warn("transit refused", "agent", a.ID, "resource", r.ID, "error", err)
		return nil, false
	}
	if err := env.Grid.Remove(r); err != nil {
		slog.Warn("pick up: resource not on grid", "resource", r.ID, "error", err)
	}
	a.Carried = r
	a.Target = nil
	a.State = StateTransporting
	return []string{fmt.Sprintf("agent %d (%s) picked up %s at %s", a.ID, a.Kind, r, a.Pos)}, true
}

// transport moves a carrier one step toward the base and delivers on
// arrival. The leader of a joint carry moves its partner and the structure
// with it.
func (a *Agent) transport(env *Env) []string {
	if a.Carried == nil {
		a.State = StateExploring
		return nil
	}
	if a.Pos != env.BasePos {
		a.stepToward(env, env.BasePos)
		if p := a.partner(env); p != nil {
			p.stepToward(env, env.BasePos)
		}
		if a.Carried.Kind.Heavy() {
			if err := env.Grid.Move(a.Carried, a.Pos); err != nil {
				slog.Warn("structure left behind", "structure", a.Carried.ID, "error", err)
			}
		}
		a.observe(env)
	}
	if a.Pos == env.BasePos {
		return a.deliver(env)
	}
	return nil
}

// deliver hands the carried resource to the base, reports discoveries and
// resets both carriers of a joint carry.
func (a *Agent) deliver(env *Env) []string {
	r := a.Carried
	carriers := []world.AgentID{a.ID}
	partner := a.partner(env)
	if partner != nil {
		carriers = append(carriers, partner.ID)
	}
	if r.Kind.Heavy() && env.Grid.Contains(r) {
		if err := env.Grid.Remove(r); err != nil {
			slog.Warn("deliver: remove structure", "structure", r.ID, "error", err)
		}
	}
	if err := env.Base.Deliver(r, env.Tick, carriers...); err != nil {
		slog.Error("delivery rejected", "agent", a.ID, "resource", r.ID, "error", err)
		a.Carried = nil
		a.State = StateExploring
		return nil
	}
	if r.Kind.Heavy() {
		env.Coord.ReleaseStructure(r.ID)
	} else {
		env.Coord.Forget(r.ID)
	}

	events := []string{fmt.Sprintf("agent %d (%s) delivered %s (utility %.0f) at tick %d",
		a.ID, a.Kind, r, r.Utility, env.Tick)}
	if partner != nil {
		events[0] = fmt.Sprintf("agents %d and %d delivered %s (utility %.0f) at tick %d",
			a.ID, partner.ID, r, r.Utility, env.Tick)
	}
	share := r.Utility / float64(len(carriers))
	a.arrive(env, share)
	if partner != nil {
		partner.arrive(env, share)
	}
	return events
}

// arrive resets an agent that has just delivered at the base.
func (a *Agent) arrive(env *Env, share float64) {
	a.Carried = nil
	a.Target = nil
	a.Partner = 0
	a.Leader = false
	a.Structure = 0
	a.Delivered++
	a.DeliveredUtility += share
	a.State = StateExploring
	a.flush(env)
	if a.Kind.plans() {
		a.pickTarget(env, false)
	}
}

// stepToward moves one cell toward target, taking the neighbour with the
// smallest straight-line distance. Ties go to the first neighbour in
// world.MooreDirections order.
func (a *Agent) stepToward(env *Env, target world.Pos) {
	if a.Pos == target {
		return
	}
	best := a.Pos
	bestDist := world.Euclidean(a.Pos, target)
	for _, n := range env.Grid.Neighbors8(a.Pos) {
		if d := world.Euclidean(n, target); d < bestDist {
			best, bestDist = n, d
		}
	}
	a.moveTo(env, best)
}

func (a *Agent) moveTo(env *Env, p world.Pos) {
	if p == a.Pos {
		return
	}
	if err := env.Grid.Move(a, p); err != nil {
		slog.Warn("move refused", "agent", a.ID, "from", a.Pos.String(), "to", p.String(), "error", err)
		return
	}
	a.Pos = p
	a.Steps++
	a.visit(p)
}
