package agents

import (
	"fmt"
	"log/slog"

	"github.com/talgya/planet-harvest/internal/coordinator"
	"github.com/talgya/planet-harvest/internal/world"
)

// Joint carry protocol:
//
//  1. The first agent to reach an unclaimed structure claims it and parks
//     there in StateAwaitingPartner. Registering classes queue it with the
//     coordinator.
//  2. A cooperative agent takes the helper seat, either from the queue or by
//     stumbling onto the structure, and walks to it.
//  3. Once both stand on the structure's cell the carry starts. From then on
//     the helper leads: each of its turns moves itself, the waiter and the
//     structure one step toward the base.
//  4. On arrival the base credits both carriers and both go back to
//     exploring.

// meetStructure handles a structure at the agent's cell. It reports whether
// the agent took a role in carrying it.
func (a *Agent) meetStructure(env *Env, r *world.Resource) ([]string, bool) {
	if a.Busy() {
		return nil, false
	}
	if r.Available() {
		if err := r.Claim(a.ID); err != nil {
			slog.Debug("structure claim lost", "agent", a.ID, "structure", r.ID, "error", err)
			return nil, false
		}
		a.State = StateAwaitingPartner
		a.Structure = r.ID
		a.Target = nil
		registered := false
		if a.Kind.registers() {
			registered = env.Coord.RegisterStructure(discoveryOf(r, a.Pos, env.Tick), a.ID)
		}
		slog.Debug("structure claimed", "agent", a.ID, "structure", r.ID, "pos", a.Pos.String(), "registered", registered)
		return []string{fmt.Sprintf("agent %d (%s) claimed %s at %s and waits for a partner", a.ID, a.Kind, r, a.Pos)}, true
	}
	if !a.CanAssist() || !needsHelper(env, r) {
		return nil, false
	}
	waiter, _ := r.ClaimedBy()
	if !a.offerHelp(env, waiter, r.ID) {
		return nil, false
	}
	events := []string{fmt.Sprintf("agent %d (%s) joins agent %d on %s", a.ID, a.Kind, waiter, r)}
	return append(events, a.approach(env)...), true
}

// offerHelp takes the helper seat on a structure and links the two agents.
// The waiter leaves the coordinator's queue if it is still there.
func (a *Agent) offerHelp(env *Env, waiterID world.AgentID, structureID world.EntityID) bool {
	if waiterID == a.ID || a.Busy() {
		return false
	}
	r, ok := env.Grid.Resource(structureID)
	if !ok || !needsHelper(env, r) {
		return false
	}
	if claimant, _ := r.ClaimedBy(); claimant != waiterID {
		return false
	}
	if err := r.JoinAsHelper(a.ID); err != nil {
		slog.Debug("helper seat taken", "agent", a.ID, "structure", r.ID, "error", err)
		return false
	}
	env.Coord.Withdraw(waiterID)

	w := env.Lookup(waiterID)
	w.Partner = a.ID
	a.Partner = waiterID
	a.Leader = true
	a.Structure = r.ID

	sp, _ := env.Grid.PositionOf(r)
	a.Target = &Target{Pos: sp, ResourceID: r.ID, Reason: coordinator.IntentAssistAgent}
	a.State = StateSeeking
	return true
}

// approach walks a helper to its structure and starts the carry once both
// agents share the cell.
func (a *Agent) approach(env *Env) []string {
	r, ok := env.Grid.Resource(a.Structure)
	partner := a.partner(env)
	if !ok || partner == nil || r.Delivered() {
		a.abandon(env)
		return nil
	}
	sp, _ := env.Grid.PositionOf(r)
	a.Target.Pos = sp
	a.stepToward(env, sp)
	a.observe(env)
	if a.Pos != sp || partner.Pos != sp {
		return nil
	}
	return a.startJointCarry(env, r, partner)
}

func (a *Agent) startJointCarry(env *Env, r *world.Resource, partner *Agent) []string {
	if err := r.BeginTransit(); err != nil {
		slog.Warn("joint carry refused", "structure", r.ID, "leader", a.ID, "partner", partner.ID, "error", err)
		return nil
	}
	a.Carried = r
	a.Target = nil
	a.State = StateTransporting
	partner.State = StateTransporting
	slog.Debug("joint carry started", "structure", r.ID, "leader", a.ID, "partner", partner.ID, "tick", env.Tick)
	return []string{fmt.Sprintf("agents %d and %d lift %s at %s", a.ID, partner.ID, r, a.Pos)}
}

// abandon drops a helper's link when its structure or partner is gone.
func (a *Agent) abandon(env *Env) {
	if p := a.partner(env); p != nil && p.Partner == a.ID {
		p.Partner = 0
	}
	slog.Warn("joint carry abandoned", "agent", a.ID, "structure", a.Structure)
	a.Partner = 0
	a.Leader = false
	a.Structure = 0
	a.Target = nil
	a.State = StateExploring
}

func (a *Agent) partner(env *Env) *Agent {
	if a.Partner == 0 || env.Lookup == nil {
		return nil
	}
	return env.Lookup(a.Partner)
}
