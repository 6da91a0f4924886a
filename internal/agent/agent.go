// Package agent wires the belief store, search, scoring, scheduling and
// execution into one autonomous player.
//
// The agent has a single flow of control, the scheduler loop. Sensing events
// queue up on a channel and are applied only at check points: between loop
// iterations and around every primitive action.
package agent

import (
	"context"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/executors"
	"parcelbot.ai/internal/agent/intentions"
	"parcelbot.ai/internal/agent/options"
	"parcelbot.ai/internal/agent/planner"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/agent/sensing"
	"parcelbot.ai/internal/agent/utility"
	"parcelbot.ai/internal/grid"
	"parcelbot.ai/internal/observe"
)

type Config struct {
	Strategy      options.Strategy
	ChangingRisk  float64
	Utility       utility.Config
	Executors     executors.Config
	PenaltyWindow time.Duration
	CacheEntries  int
}

// Deps are the optional collaborators. Zero values get working defaults.
type Deps struct {
	Solver    planner.Solver
	Recorder  intentions.Recorder
	Metrics   *observe.Metrics
	Now       func() time.Time
	Rand      *rand.Rand
	LogOutput io.Writer
}

type Agent struct {
	bel   *beliefs.Beliefs
	eng   *search.Engine
	est   *utility.Estimator
	calc  *utility.Calculator
	b     *options.Builder
	sched *intentions.Scheduler

	act     sensing.Actuator
	events  <-chan sensing.Event
	metrics *observe.Metrics
	log     *log.Logger
}

func New(act sensing.Actuator, events <-chan sensing.Event, cfg Config, deps Deps) *Agent {
	out := deps.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := func(prefix string) *log.Logger {
		return log.New(out, prefix, log.LstdFlags|log.Lmicroseconds)
	}

	a := &Agent{
		act:     act,
		events:  events,
		metrics: deps.Metrics,
		log:     logger("[agent] "),
	}
	a.bel = beliefs.New(deps.Now)
	a.eng = search.NewEngine(nil, a.bel)
	if cfg.CacheEntries > 0 {
		a.eng.SetMaxEntries(cfg.CacheEntries)
	}
	a.est = utility.NewEstimator(cfg.PenaltyWindow, logger("[penalty] "))
	a.calc = utility.NewCalculator(a.eng, a.bel, a.est, cfg.Utility)

	solver := deps.Solver
	if solver == nil && cfg.Strategy == options.StrategyPlan {
		solver = planner.NewLocalSolver(a.eng)
	}
	a.b = options.NewBuilder(cfg.Strategy, a.calc, a.eng, a.bel, solver, deps.Rand)

	lib := executors.Library(a, cfg.Executors, logger("[exec] "))
	opts := []intentions.SchedulerOption{intentions.WithMetrics(deps.Metrics)}
	if deps.Recorder != nil {
		opts = append(opts, intentions.WithRecorder(deps.Recorder))
	}
	if deps.Now != nil {
		opts = append(opts, intentions.WithClock(deps.Now))
	}
	a.sched = intentions.NewScheduler(lib, intentions.Config{ChangingRisk: cfg.ChangingRisk}, intentions.Hooks{
		Yield:   a.yield,
		Refresh: a.refresh,
		Prepare: a.prepare,
		Valid:   a.valid,
		Patrol:  func() options.Option { return a.b.Patrol(a.bel.Self.Pos) },
	}, logger("[sched] "), opts...)
	return a
}

func (a *Agent) Scheduler() *intentions.Scheduler { return a.sched }

// Run drives the scheduler loop and the penalty estimator until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.est.Run(ctx) })
	g.Go(func() error { return a.sched.Run(ctx) })
	return g.Wait()
}

// RunOnce applies pending events and runs at most one intention.
func (a *Agent) RunOnce(ctx context.Context) bool {
	if err := a.Sync(ctx); err != nil {
		return false
	}
	return a.sched.Step(ctx)
}

// Sync is the check point: it applies every pending sensing event without
// blocking, then expires decayed parcels.
func (a *Agent) Sync(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.events:
			if !ok {
				a.events = nil
				a.decay()
				return nil
			}
			a.Apply(ev)
		default:
			a.decay()
			return nil
		}
	}
}

// Apply updates beliefs from one event and feeds the scheduler.
func (a *Agent) Apply(ev sensing.Event) {
	switch ev := ev.(type) {
	case sensing.Welcome:
		a.bel.Self.ID, a.bel.Self.Name = ev.AgentID, ev.Name
		a.eng.SetMap(ev.Map)
		a.bel.SetGame(ev.Game)
		a.est.Seed(ev.Game.MovementDuration, ev.Game.DecayInterval)
		a.log.Printf("welcome id=%s map=%dx%d capacity=%d", ev.AgentID, ev.Map.Width, ev.Map.Height, ev.Game.Capacity)
	case sensing.You:
		if a.bel.UpdateSelf(ev.ID, ev.Name, ev.X, ev.Y, ev.Score) {
			a.sched.Recompute(a.refresh)
		}
	case sensing.ParcelsSensed:
		a.forget(a.bel.SenseParcels(ev.Parcels))
		a.generate()
	case sensing.AgentsSensed:
		a.bel.SensePlayers(ev.Agents)
	}
}

func (a *Agent) generate() {
	if !a.bel.Self.Known || a.eng.Map() == nil {
		return
	}
	if a.bel.CarriedCount() == 0 {
		a.sched.Remove(options.DeliverID)
	}
	a.sched.Push(a.b.Generate()...)
}

// forget stops work on deleted parcels before they leave the scheduler.
func (a *Agent) forget(ids []string) {
	for _, id := range ids {
		a.sched.RemoveParcel(id)
	}
}

func (a *Agent) decay() {
	a.forget(a.bel.Decay())
}

func (a *Agent) refresh(o options.Option) options.Option {
	return a.b.Recompute(o, a.bel.Self.Pos)
}

// prepare fetches the plan of a plan-strategy goal before it is validated, so
// goals without a plan are dropped instead of executed.
func (a *Agent) prepare(ctx context.Context, o options.Option) options.Option {
	if o.Strategy != options.StrategyPlan || (o.Kind != options.KindPickup && o.Kind != options.KindDeliver) {
		return o
	}
	if o.Utility <= 0 && !o.PlanReady() {
		return o
	}
	r, err := a.b.ResolvePlan(ctx, o)
	if err != nil && ctx.Err() == nil {
		a.log.Printf("plan %s: %v", o.ID, err)
	}
	return r
}

func (a *Agent) valid(o options.Option) bool {
	switch o.Kind {
	case options.KindPickup:
		return a.bel.IsFree(o.ParcelID) && o.Utility > 0
	case options.KindDeliver:
		return a.bel.CarriedCount() > 0 && o.Utility > 0
	}
	return true
}

// yield applies pending events and, until the agent knows where it is, waits
// for more.
func (a *Agent) yield(ctx context.Context) error {
	if err := a.Sync(ctx); err != nil {
		return err
	}
	for !a.bel.Self.Known || a.eng.Map() == nil {
		if err := a.Idle(ctx, time.Second); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) setPosition(p grid.Position) {
	if a.bel.SetPosition(p) {
		a.sched.Recompute(a.refresh)
	}
}

func (a *Agent) Position() grid.Position { return a.bel.Self.Pos }

func (a *Agent) Beliefs() *beliefs.Beliefs { return a.bel }

func (a *Agent) Engine() *search.Engine { return a.eng }

func (a *Agent) Builder() *options.Builder { return a.b }

func (a *Agent) Capacity() int { return a.calc.Capacity() }

func (a *Agent) Move(ctx context.Context, d grid.Direction) (bool, error) {
	if err := a.Sync(ctx); err != nil {
		return false, err
	}
	a.est.RecordMove()
	pos, ok, err := a.act.Move(ctx, d)
	a.metrics.RecordMove(ctx, ok && err == nil)
	if err != nil {
		return false, err
	}
	if ok {
		a.setPosition(pos)
	}
	return ok, a.Sync(ctx)
}

func (a *Agent) Pickup(ctx context.Context) ([]string, error) {
	if err := a.Sync(ctx); err != nil {
		return nil, err
	}
	here := a.bel.FreeAt(a.bel.Self.Pos)
	ids, err := a.act.Pickup(ctx)
	if err != nil {
		return nil, err
	}
	a.bel.PickedUp(ids)
	picked := make(map[string]bool, len(ids))
	for _, id := range ids {
		picked[id] = true
	}
	var gone []string
	for _, p := range here {
		if !picked[p.ID] {
			gone = append(gone, p.ID)
		}
	}
	if len(gone) > 0 {
		a.bel.Forget(gone)
		a.forget(gone)
	}
	if len(ids) > 0 {
		a.log.Printf("picked up %v at %v", ids, a.bel.Self.Pos)
		a.generate()
	}
	return ids, a.Sync(ctx)
}

func (a *Agent) Putdown(ctx context.Context) ([]string, error) {
	if err := a.Sync(ctx); err != nil {
		return nil, err
	}
	ids, err := a.act.Putdown(ctx)
	if err != nil {
		return nil, err
	}
	a.bel.Delivered(ids)
	if len(ids) > 0 {
		a.log.Printf("delivered %v at %v", ids, a.bel.Self.Pos)
	}
	a.generate()
	return ids, a.Sync(ctx)
}

// Idle blocks until an event arrives or d elapses, then applies what is
// pending.
func (a *Agent) Idle(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev, ok := <-a.events:
		if !ok {
			a.events = nil
			// A closed session delivers nothing more; wait out the timer.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			return nil
		}
		a.Apply(ev)
	case <-t.C:
	}
	return a.Sync(ctx)
}
