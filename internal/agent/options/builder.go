package options

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/planner"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/agent/utility"
	"parcelbot.ai/internal/grid"
)

// Builder constructs and re-scores Options against the agent's beliefs.
type Builder struct {
	Strategy Strategy

	calc   *utility.Calculator
	eng    *search.Engine
	bel    *beliefs.Beliefs
	solver planner.Solver
	rng    *rand.Rand

	// missing remembers the start from which each Option got no usable plan.
	missing map[ID]grid.Position
}

func NewBuilder(strategy Strategy, calc *utility.Calculator, eng *search.Engine, bel *beliefs.Beliefs, solver planner.Solver, rng *rand.Rand) *Builder {
	if strategy == "" {
		strategy = StrategySearch
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Builder{
		Strategy: strategy,
		calc:     calc,
		eng:      eng,
		bel:      bel,
		solver:   solver,
		rng:      rng,
		missing:  make(map[ID]grid.Position),
	}
}

func (b *Builder) Pickup(start grid.Position, p beliefs.Parcel) Option {
	return b.Recompute(Option{
		ID:       PickupID(p.ID),
		Kind:     KindPickup,
		Strategy: b.Strategy,
		ParcelID: p.ID,
		Final:    p.Pos,
	}, start)
}

func (b *Builder) Deliver(start grid.Position) Option {
	return b.Recompute(Option{ID: DeliverID, Kind: KindDeliver, Strategy: b.Strategy}, start)
}

// Patrol is the fallback Option. Its target is chosen when it executes.
func (b *Builder) Patrol(start grid.Position) Option {
	return Option{ID: PatrolID, Kind: KindPatrol, Strategy: b.Strategy, Start: start, Final: start}
}

// Move is a sub-goal to walk to target. A path already computed by the parent
// Option is carried over.
func (b *Builder) Move(strategy Strategy, start, target grid.Position, path search.Path, plan *planner.Plan) Option {
	o := Option{
		ID:       MoveID(target),
		Kind:     KindMove,
		Strategy: strategy,
		Start:    start,
		Final:    target,
		Path:     path,
		Plan:     plan,
	}
	if plan != nil {
		o.state = planReady
	}
	return o
}

// Recompute re-scores o from start and returns the updated value. It is
// idempotent for unchanged beliefs.
func (b *Builder) Recompute(o Option, start grid.Position) Option {
	moved := o.Start != start
	o.Start = start
	if o.Strategy == StrategyPlan {
		if moved {
			o.Plan, o.state = nil, planPending
		}
		if at, ok := b.missing[o.ID]; ok && at == start {
			o.Plan, o.state = nil, planMissing
		}
	}
	switch o.Kind {
	case KindPickup:
		p, ok := b.bel.Parcel(o.ParcelID)
		if !ok || p.CarriedBy != "" {
			o.Utility = math.Inf(-1)
			o.Path = search.Path{}
			return o
		}
		o.Final = p.Pos
		if o.Strategy == StrategyPlan {
			o.Path = search.Path{}
			o.Utility = b.planUtility(o, func() float64 { return b.calc.PickUpSimplified(start, p) })
			return o
		}
		o.Utility, o.Path = b.calc.PickUp(start, p)
	case KindDeliver:
		if o.Strategy == StrategyPlan {
			o.Final = b.nearestDeliveryManhattan(start)
			o.Path = search.Path{}
			o.Utility = b.planUtility(o, func() float64 { return b.calc.DeliverySimplified(start) })
			return o
		}
		o.Utility, o.Path = b.calc.Delivery(start)
		o.Final = o.Path.Final()
		if !o.Path.Reachable() {
			o.Final = start
		}
	case KindPatrol:
		o.Utility = 0
	}
	return o
}

func (b *Builder) planUtility(o Option, simplified func() float64) float64 {
	if o.state == planMissing {
		return 0
	}
	return simplified()
}

func (b *Builder) nearestDeliveryManhattan(from grid.Position) grid.Position {
	m := b.eng.Map()
	if m == nil {
		return from
	}
	best, bestD := from, -1
	for _, d := range m.DeliveryTiles() {
		if v := grid.Distance(from, d); bestD < 0 || v < bestD {
			best, bestD = d, v
		}
	}
	return best
}

// ResolvePlan fetches the plan for a plan-strategy Option when it is missing
// or was computed from another start. A nil plan, or one that does not walk
// from Start to Final, zeroes the utility so the Option drops out of
// consideration until the agent moves; a nil plan is not an error.
func (b *Builder) ResolvePlan(ctx context.Context, o Option) (Option, error) {
	if o.PlanReady() {
		if !o.Path.Reachable() {
			o.Path = planner.ToPath(o.Plan)
		}
		return o, nil
	}
	if o.PlanMissing() {
		o.Utility = 0
		return o, nil
	}
	if b.solver == nil {
		return b.noPlan(o), nil
	}
	prob := planner.NewProblem(b.eng.Map(), o.Start, o.Final, b.bel.Occupied)
	plan, err := b.solver.RequestPlan(ctx, prob)
	if err != nil {
		o.Plan, o.state, o.Utility = nil, planMissing, 0
		return o, err
	}
	if plan == nil {
		return b.noPlan(o), nil
	}
	if err := plan.Validate(o.Start, o.Final); err != nil {
		return b.noPlan(o), fmt.Errorf("%s: %w", o.ID, err)
	}
	delete(b.missing, o.ID)
	o.Plan, o.state = plan, planReady
	o.Path = planner.ToPath(plan)
	return o, nil
}

func (b *Builder) noPlan(o Option) Option {
	b.missing[o.ID] = o.Start
	o.Plan, o.state, o.Utility = nil, planMissing, 0
	o.Path = search.Path{}
	return o
}

// Generate is the options-generation step: pickups worth doing, a delivery
// while carrying, and the patrol fallback when nothing else qualifies.
func (b *Builder) Generate() []Option {
	start := b.bel.Self.Pos
	var out []Option
	for _, p := range b.bel.Free() {
		if b.calc.PickUpSimplified(start, p) <= 0 {
			continue
		}
		if o := b.Pickup(start, p); o.Utility > 0 {
			out = append(out, o)
		}
	}
	if b.bel.CarriedCount() > 0 {
		if o := b.Deliver(start); o.Utility > 0 {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = append(out, b.Patrol(start))
	}
	return out
}

// PatrolTarget picks a random spawner tile, or any walkable tile when the map
// has no spawners, other than from.
func (b *Builder) PatrolTarget(from grid.Position) (grid.Position, bool) {
	m := b.eng.Map()
	if m == nil {
		return grid.Position{}, false
	}
	candidates := m.SpawnerTiles()
	if len(candidates) == 0 {
		candidates = m.WalkableTiles()
	}
	var pool []grid.Position
	for _, p := range candidates {
		if p != from {
			pool = append(pool, p)
		}
	}
	if len(pool) == 0 {
		return grid.Position{}, false
	}
	return pool[b.rng.Intn(len(pool))], true
}
