package options

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/planner"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/agent/utility"
	"parcelbot.ai/internal/grid"
)

type fixture struct {
	bel *beliefs.Beliefs
	eng *search.Engine
	b   *Builder
}

func newFixture(t *testing.T, strategy Strategy, solver planner.Solver) *fixture {
	t.Helper()
	bel := beliefs.New(nil)
	bel.UpdateSelf("me", "me", 0, 0, 0)
	eng := search.NewEngine(grid.Open(5, 3, grid.Position{X: 4, Y: 0}), bel)
	est := utility.NewEstimator(time.Second, nil)
	est.Seed(100*time.Millisecond, 0)
	calc := utility.NewCalculator(eng, bel, est, utility.Config{})
	return &fixture{bel: bel, eng: eng, b: NewBuilder(strategy, calc, eng, bel, solver, nil)}
}

func TestGenerate_PickupDeliverPatrol(t *testing.T) {
	f := newFixture(t, StrategySearch, nil)
	f.bel.SenseParcels([]beliefs.Parcel{{ID: "p1", Pos: grid.Position{X: 2}, Reward: 10}})

	opts := f.b.Generate()
	if len(opts) != 1 || opts[0].ID != PickupID("p1") {
		t.Fatalf("opts=%v", opts)
	}
	if opts[0].Utility <= 0 || opts[0].Path.Len() != 2 {
		t.Fatalf("pickup utility=%v len=%d", opts[0].Utility, opts[0].Path.Len())
	}

	f.bel.PickedUp([]string{"p1"})
	opts = f.b.Generate()
	if len(opts) != 1 || opts[0].ID != DeliverID {
		t.Fatalf("opts=%v", opts)
	}
	if opts[0].Utility <= 0 || opts[0].Path.Len() != 4 || opts[0].Final != (grid.Position{X: 4}) {
		t.Fatalf("deliver=%v len=%d", opts[0], opts[0].Path.Len())
	}

	f.bel.Delivered([]string{"p1"})
	opts = f.b.Generate()
	if len(opts) != 1 || opts[0].ID != PatrolID {
		t.Fatalf("opts=%v", opts)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	f := newFixture(t, StrategySearch, nil)
	f.bel.SenseParcels([]beliefs.Parcel{{ID: "p1", Pos: grid.Position{X: 3, Y: 2}, Reward: 10}})
	p, _ := f.bel.Parcel("p1")
	o := f.b.Pickup(grid.Position{}, p)
	a := f.b.Recompute(o, grid.Position{X: 1})
	b := f.b.Recompute(a, grid.Position{X: 1})
	if a.Utility != b.Utility || a.Final != b.Final || a.Path.Len() != b.Path.Len() {
		t.Fatalf("recompute not idempotent: %v vs %v", a, b)
	}
	if a.Path.Start() != (grid.Position{X: 1}) || a.Path.Len() != 4 {
		t.Fatalf("path from new start: %+v", a.Path)
	}
	if o.Start != (grid.Position{}) {
		t.Fatalf("recompute must not alias the original value")
	}
}

func TestRecompute_TargetGone(t *testing.T) {
	f := newFixture(t, StrategySearch, nil)
	f.bel.SenseParcels([]beliefs.Parcel{{ID: "p1", Pos: grid.Position{X: 1}, Reward: 10}})
	p, _ := f.bel.Parcel("p1")
	o := f.b.Pickup(grid.Position{}, p)
	f.bel.Delivered([]string{"p1"})
	if u := f.b.Recompute(o, grid.Position{}).Utility; !math.IsInf(u, -1) {
		t.Fatalf("utility=%v want -Inf", u)
	}
}

type nilSolver struct{ calls int }

func (s *nilSolver) RequestPlan(context.Context, planner.Problem) (*planner.Plan, error) {
	s.calls++
	return nil, nil
}

func TestResolvePlan_MissingPlanIsNotFatal(t *testing.T) {
	s := &nilSolver{}
	f := newFixture(t, StrategyPlan, s)
	f.bel.SenseParcels([]beliefs.Parcel{{ID: "p1", Pos: grid.Position{X: 2}, Reward: 10}})
	p, _ := f.bel.Parcel("p1")
	o := f.b.Pickup(grid.Position{}, p)
	if o.Path.Reachable() || o.Plan != nil {
		t.Fatalf("plan strategy must not compute eagerly")
	}
	if o.Utility <= 0 {
		t.Fatalf("simplified utility=%v", o.Utility)
	}
	o, err := f.b.ResolvePlan(context.Background(), o)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !o.PlanMissing() || o.Utility != 0 {
		t.Fatalf("missing plan should zero utility: %v", o)
	}
	if again := f.b.Recompute(o, o.Start); again.Utility != 0 {
		t.Fatalf("recompute from same start should keep zero utility")
	}
	if s.calls != 1 {
		t.Fatalf("solver calls=%d", s.calls)
	}
}

type jumpSolver struct{}

func (jumpSolver) RequestPlan(_ context.Context, prob planner.Problem) (*planner.Plan, error) {
	return &planner.Plan{Start: prob.Start, Goal: prob.Goal, Steps: []planner.Step{{From: prob.Start, To: prob.Goal}}}, nil
}

func TestResolvePlan_InvalidPlanRemembered(t *testing.T) {
	f := newFixture(t, StrategyPlan, jumpSolver{})
	f.bel.SenseParcels([]beliefs.Parcel{{ID: "p1", Pos: grid.Position{X: 2}, Reward: 10}})
	p, _ := f.bel.Parcel("p1")

	o, err := f.b.ResolvePlan(context.Background(), f.b.Pickup(grid.Position{}, p))
	if !errors.Is(err, planner.ErrInvalidPlan) {
		t.Fatalf("err=%v", err)
	}
	if !o.PlanMissing() || o.Utility != 0 || o.Path.Reachable() {
		t.Fatalf("invalid plan kept: %v", o)
	}
	if opts := f.b.Generate(); len(opts) != 1 || opts[0].ID != PatrolID {
		t.Fatalf("pickup re-offered from the same start: %v", opts)
	}

	f.bel.UpdateSelf("me", "me", 0, 1, 0)
	if opts := f.b.Generate(); len(opts) != 1 || opts[0].ID != PickupID("p1") {
		t.Fatalf("pickup not offered after moving: %v", opts)
	}
}

func TestResolvePlan_LocalSolver(t *testing.T) {
	f := newFixture(t, StrategyPlan, nil)
	f.b.solver = planner.NewLocalSolver(f.eng)
	f.bel.SenseParcels([]beliefs.Parcel{{ID: "p1", Pos: grid.Position{X: 2, Y: 1}, Reward: 10}})
	p, _ := f.bel.Parcel("p1")
	o, err := f.b.ResolvePlan(context.Background(), f.b.Pickup(grid.Position{}, p))
	if err != nil || !o.PlanReady() {
		t.Fatalf("resolve: %v ready=%v", err, o.PlanReady())
	}
	if o.Plan.Len() != 3 || o.Path.Len() != 3 {
		t.Fatalf("plan len=%d path len=%d", o.Plan.Len(), o.Path.Len())
	}
	moved := f.b.Recompute(o, grid.Position{X: 1})
	if moved.PlanReady() || moved.Plan != nil {
		t.Fatalf("moving must invalidate the cached plan")
	}
}

func TestRaw_RoundTrip(t *testing.T) {
	o := Option{
		ID:       DeliverID,
		Kind:     KindDeliver,
		Strategy: StrategySearch,
		Start:    grid.Position{X: 1, Y: 2},
		Final:    grid.Position{X: 4},
		Utility:  math.Inf(1),
	}
	b, err := json.Marshal(o.Raw())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var r Raw
	if err := json.Unmarshal(b, &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back := FromRaw(r)
	if !back.MustAct() || back.Start != o.Start || back.Final != o.Final || back.ID != o.ID {
		t.Fatalf("round trip mismatch: %v", back)
	}
}

func TestParcelOf(t *testing.T) {
	if id, ok := ParcelOf(PickupID("p-7")); !ok || id != "p-7" {
		t.Fatalf("ParcelOf=%q %v", id, ok)
	}
	if _, ok := ParcelOf(DeliverID); ok {
		t.Fatalf("deliver id has no parcel")
	}
}

func TestPatrolTarget(t *testing.T) {
	f := newFixture(t, StrategySearch, nil)
	for i := 0; i < 20; i++ {
		p, ok := f.b.PatrolTarget(grid.Position{})
		if !ok || p == (grid.Position{}) || !f.eng.Map().InBounds(p) {
			t.Fatalf("target=%v ok=%v", p, ok)
		}
	}
}
