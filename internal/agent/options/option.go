// Package options defines candidate goals and how they are scored.
//
// An Option is a value. Re-scoring never mutates an Option in place; the
// Builder returns a new value that the scheduler writes back into its queue.
package options

import (
	"fmt"
	"math"
	"strings"

	"parcelbot.ai/internal/agent/planner"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

type Kind string

const (
	KindPickup  Kind = "go_pick_up"
	KindDeliver Kind = "go_deliver"
	KindPatrol  Kind = "patrol"
	KindMove    Kind = "go_to"
)

type Strategy string

const (
	StrategySearch Strategy = "search"
	StrategyPlan   Strategy = "plan"
)

type ID string

const (
	PatrolID  ID = "patrol"
	DeliverID ID = "go_deliver"
)

func PickupID(parcelID string) ID { return ID(string(KindPickup) + "-" + parcelID) }

func MoveID(p grid.Position) ID { return ID(fmt.Sprintf("%s-%d-%d", KindMove, p.X, p.Y)) }

// ParcelOf returns the parcel targeted by a pickup id.
func ParcelOf(id ID) (string, bool) {
	return strings.CutPrefix(string(id), string(KindPickup)+"-")
}

type planState uint8

const (
	planPending planState = iota
	planReady
	planMissing
)

type Option struct {
	ID       ID
	Kind     Kind
	Strategy Strategy
	ParcelID string

	Start   grid.Position
	Final   grid.Position
	Utility float64

	// Path is computed eagerly for the search strategy.
	Path search.Path

	// Plan is fetched on first access for the plan strategy.
	Plan  *planner.Plan
	state planState
}

// MustAct reports the "act now" utility.
func (o Option) MustAct() bool { return math.IsInf(o.Utility, 1) }

// PlanMissing reports that the solver answered with no plan.
func (o Option) PlanMissing() bool { return o.state == planMissing }

// PlanReady reports that Plan was computed from the current Start.
func (o Option) PlanReady() bool {
	return o.state == planReady && o.Plan != nil && o.Plan.Start == o.Start
}

func (o Option) String() string {
	return fmt.Sprintf("%s[%s %v->%v u=%.2f]", o.ID, o.Strategy, o.Start, o.Final, o.Utility)
}

// Raw is the stable wire form of an Option, reconstructable from plain
// coordinates.
type Raw struct {
	ID       ID            `json:"id"`
	Kind     Kind          `json:"kind"`
	Strategy Strategy      `json:"strategy"`
	ParcelID string        `json:"parcel_id,omitempty"`
	Start    grid.Position `json:"start"`
	Final    grid.Position `json:"final"`
	Utility  float64       `json:"utility"`
	MustAct  bool          `json:"must_act,omitempty"`
}

func (o Option) Raw() Raw {
	r := Raw{
		ID:       o.ID,
		Kind:     o.Kind,
		Strategy: o.Strategy,
		ParcelID: o.ParcelID,
		Start:    o.Start,
		Final:    o.Final,
		Utility:  o.Utility,
	}
	// JSON has no infinities.
	switch {
	case math.IsInf(o.Utility, 1):
		r.Utility, r.MustAct = 0, true
	case math.IsInf(o.Utility, -1), math.IsNaN(o.Utility):
		r.Utility = -math.MaxFloat64
	}
	return r
}

// FromRaw rebuilds an Option without path or plan; callers recompute those.
func FromRaw(r Raw) Option {
	o := Option{
		ID:       r.ID,
		Kind:     r.Kind,
		Strategy: r.Strategy,
		ParcelID: r.ParcelID,
		Start:    r.Start,
		Final:    r.Final,
		Utility:  r.Utility,
	}
	if r.MustAct {
		o.Utility = math.Inf(1)
	}
	if r.Utility == -math.MaxFloat64 {
		o.Utility = math.Inf(-1)
	}
	return o
}
