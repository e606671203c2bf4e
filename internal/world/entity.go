package world

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyClaimed   = errors.New("resource already claimed")
	ErrNotHeavy         = errors.New("resource is not heavy")
	ErrNotClaimed       = errors.New("resource not claimed")
	ErrSelfHelp         = errors.New("helper must differ from claimant")
	ErrNoHelper         = errors.New("heavy resource needs a helper")
	ErrNotInTransit     = errors.New("resource not in transit")
	ErrAlreadyDelivered = errors.New("resource already delivered")
)

// ResourceKind enumerates what can be collected.
type ResourceKind uint8

const (
	KindCrystal   ResourceKind = iota // Light
	KindMetal                         // Light
	KindStructure                     // Heavy, carried by two agents
)

// NumKinds is the number of resource kinds.
const NumKinds = 3

var kindNames = [NumKinds]string{"crystal", "metal", "structure"}

func (k ResourceKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Heavy reports whether the kind needs a two-agent carry.
func (k ResourceKind) Heavy() bool {
	return k == KindStructure
}

// DefaultUtility returns the stock utility for a kind.
func (k ResourceKind) DefaultUtility() float64 {
	switch k {
	case KindCrystal:
		return 10
	case KindMetal:
		return 20
	case KindStructure:
		return 50
	}
	return 0
}

// ParseKind maps a kind name back to its value.
func ParseKind(s string) (ResourceKind, bool) {
	for i, n := range kindNames {
		if n == s {
			return ResourceKind(i), true
		}
	}
	return 0, false
}

// Resource is a collectable item. All claim bookkeeping goes through its
// methods so the ownership rules live in one place.
type Resource struct {
	ID      EntityID     `json:"id"`
	Kind    ResourceKind `json:"kind"`
	Utility float64      `json:"utility"`

	claimedBy *AgentID
	helper    *AgentID
	inTransit bool
	delivered bool
}

// NewResource creates an unclaimed resource.
func NewResource(id EntityID, kind ResourceKind, utility float64) *Resource {
	return &Resource{ID: id, Kind: kind, Utility: utility}
}

func (r *Resource) EntityID() EntityID { return r.ID }

// Claim marks r as owned by agent. For a heavy resource the claimant takes the
// waiting role. Claiming an already claimed resource fails, except that a
// repeat claim by the current owner is a no-op.
func (r *Resource) Claim(agent AgentID) error {
	if r.delivered {
		return fmt.Errorf("claim %d: %w", r.ID, ErrAlreadyDelivered)
	}
	if r.claimedBy != nil {
		if *r.claimedBy == agent {
			return nil
		}
		return fmt.Errorf("claim %d by %d (held by %d): %w", r.ID, agent, *r.claimedBy, ErrAlreadyClaimed)
	}
	id := agent
	r.claimedBy = &id
	return nil
}

// JoinAsHelper takes the second seat on a heavy resource. The resource must
// already have a waiting claimant and no other helper.
func (r *Resource) JoinAsHelper(agent AgentID) error {
	if !r.Kind.Heavy() {
		return fmt.Errorf("help %d: %w", r.ID, ErrNotHeavy)
	}
	if r.delivered {
		return fmt.Errorf("help %d: %w", r.ID, ErrAlreadyDelivered)
	}
	if r.claimedBy == nil {
		return fmt.Errorf("help %d: %w", r.ID, ErrNotClaimed)
	}
	if *r.claimedBy == agent {
		return fmt.Errorf("help %d: %w", r.ID, ErrSelfHelp)
	}
	if r.helper != nil {
		if *r.helper == agent {
			return nil
		}
		return fmt.Errorf("help %d by %d (helper %d): %w", r.ID, agent, *r.helper, ErrAlreadyClaimed)
	}
	id := agent
	r.helper = &id
	return nil
}

// Release drops every claim on r. Used when a carry is abandoned.
func (r *Resource) Release() {
	r.claimedBy = nil
	r.helper = nil
	r.inTransit = false
}

// BeginTransit marks r as being carried. Light resources need a claimant;
// heavy ones need a claimant and a helper.
func (r *Resource) BeginTransit() error {
	if r.claimedBy == nil {
		return fmt.Errorf("transit %d: %w", r.ID, ErrNotClaimed)
	}
	if r.Kind.Heavy() && r.helper == nil {
		return fmt.Errorf("transit %d: %w", r.ID, ErrNoHelper)
	}
	r.inTransit = true
	return nil
}

// ClaimedBy returns the claimant (the waiting agent for heavy resources).
func (r *Resource) ClaimedBy() (AgentID, bool) {
	if r.claimedBy == nil {
		return 0, false
	}
	return *r.claimedBy, true
}

// Helper returns the second carrier of a heavy resource.
func (r *Resource) Helper() (AgentID, bool) {
	if r.helper == nil {
		return 0, false
	}
	return *r.helper, true
}

// Claimed reports whether anyone holds r.
func (r *Resource) Claimed() bool { return r.claimedBy != nil }

func (r *Resource) InTransit() bool { return r.inTransit }
func (r *Resource) Delivered() bool { return r.delivered }

// Available reports whether r can still be claimed.
func (r *Resource) Available() bool {
	return r.claimedBy == nil && !r.delivered
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

// Delivery is one entry of the base ledger.
type Delivery struct {
	Tick       uint64       `json:"tick"`
	ResourceID EntityID     `json:"resource_id"`
	Kind       ResourceKind `json:"kind"`
	Utility    float64      `json:"utility"`
	Carriers   []AgentID    `json:"carriers"`
}

// Base is where resources are delivered. It never moves and its ledger is
// append-only.
type Base struct {
	ID EntityID `json:"id"`

	ledger []Delivery
	counts [NumKinds]int
	total  float64
}

// NewBase creates a base with an empty ledger.
func NewBase(id EntityID) *Base {
	return &Base{ID: id}
}

func (b *Base) EntityID() EntityID { return b.ID }

// Deliver converts an in-transit resource into ledger utility. A resource is
// accepted once.
func (b *Base) Deliver(r *Resource, tick uint64, carriers ...AgentID) error {
	if r.delivered {
		return fmt.Errorf("deliver %d: %w", r.ID, ErrAlreadyDelivered)
	}
	if !r.inTransit {
		return fmt.Errorf("deliver %d: %w", r.ID, ErrNotInTransit)
	}
	r.delivered = true
	r.inTransit = false

	c := make([]AgentID, len(carriers))
	copy(c, carriers)
	b.ledger = append(b.ledger, Delivery{
		Tick:       tick,
		ResourceID: r.ID,
		Kind:       r.Kind,
		Utility:    r.Utility,
		Carriers:   c,
	})
	b.counts[r.Kind]++
	b.total += r.Utility
	return nil
}

// Total returns the summed utility of every delivery.
func (b *Base) Total() float64 { return b.total }

// Count returns how many resources of a kind were delivered.
func (b *Base) Count(k ResourceKind) int {
	if int(k) >= NumKinds {
		return 0
	}
	return b.counts[k]
}

// Counts returns per-kind delivery counts.
func (b *Base) Counts() [NumKinds]int { return b.counts }

// Len returns the number of ledger entries.
func (b *Base) Len() int { return len(b.ledger) }

// Ledger returns a copy of the ledger, oldest first.
func (b *Base) Ledger() []Delivery {
	out := make([]Delivery, len(b.ledger))
	copy(out, b.ledger)
	return out
}

// LedgerSince returns the entries appended after the first n.
func (b *Base) LedgerSince(n int) []Delivery {
	if n >= len(b.ledger) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	out := make([]Delivery, len(b.ledger)-n)
	copy(out, b.ledger[n:])
	return out
}
