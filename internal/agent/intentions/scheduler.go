package intentions

import (
	"context"
	"errors"
	"log"
	"time"

	"parcelbot.ai/internal/agent/options"
	"parcelbot.ai/internal/observe"
)

// DefaultChangingRisk discounts a candidate's utility before comparing it to
// the current intention: the current one is stopped when
// current < candidate*risk.
const DefaultChangingRisk = 0.8

type Config struct {
	ChangingRisk float64
}

// Hooks connect the scheduler to the agent's beliefs. Every hook is called
// from the scheduler loop.
type Hooks struct {
	// Yield is the check point between two iterations.
	Yield func(ctx context.Context) error
	// Refresh re-scores a popped Option from the agent's current state.
	Refresh func(options.Option) options.Option
	// Prepare completes a refreshed Option before validation, for example by
	// fetching its plan.
	Prepare func(ctx context.Context, o options.Option) options.Option
	// Valid reports whether a popped Option is still worth executing.
	Valid func(options.Option) bool
	// Patrol builds the fallback Option.
	Patrol func() options.Option
}

// Outcome describes one finished top-level intention.
type Outcome struct {
	IntentionID string        `json:"intention_id"`
	Option      options.Raw   `json:"option"`
	Executor    string        `json:"executor"`
	Result      string        `json:"result"`
	Error       string        `json:"error,omitempty"`
	Started     time.Time     `json:"started"`
	Ended       time.Time     `json:"ended"`
	Duration    time.Duration `json:"duration_ns"`
}

type Recorder interface {
	RecordIntention(Outcome)
}

// Recorders fans an outcome out to every recorder in order.
type Recorders []Recorder

func (rs Recorders) RecordIntention(o Outcome) {
	for _, r := range rs {
		if r != nil {
			r.RecordIntention(o)
		}
	}
}

type Scheduler struct {
	queue   *Queue
	current *Intention

	lib   Library
	risk  float64
	hooks Hooks

	log     *log.Logger
	rec     Recorder
	metrics *observe.Metrics
	now     func() time.Time
}

type SchedulerOption func(*Scheduler)

func WithRecorder(r Recorder) SchedulerOption { return func(s *Scheduler) { s.rec = r } }

func WithMetrics(m *observe.Metrics) SchedulerOption { return func(s *Scheduler) { s.metrics = m } }

func WithClock(now func() time.Time) SchedulerOption { return func(s *Scheduler) { s.now = now } }

func NewScheduler(lib Library, cfg Config, hooks Hooks, logger *log.Logger, opts ...SchedulerOption) *Scheduler {
	if cfg.ChangingRisk <= 0 {
		cfg.ChangingRisk = DefaultChangingRisk
	}
	s := &Scheduler{
		queue: NewQueue(),
		lib:   lib,
		risk:  cfg.ChangingRisk,
		hooks: hooks,
		log:   logger,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Queue() *Queue { return s.queue }

func (s *Scheduler) Library() Library { return s.lib }

// Current returns the executing Option, if any.
func (s *Scheduler) Current() (options.Option, bool) {
	if s.current == nil {
		return options.Option{}, false
	}
	return s.current.Option, true
}

func (s *Scheduler) CurrentIntention() *Intention { return s.current }

// ShouldPreempt reports whether candidate justifies stopping current.
func (s *Scheduler) ShouldPreempt(current, candidate options.Option) bool {
	if candidate.Kind == options.KindPatrol {
		return false
	}
	if current.Kind == options.KindPatrol {
		return true
	}
	if current.Utility < candidate.Utility*s.risk {
		return true
	}
	return candidate.Kind == options.KindDeliver && candidate.Utility > current.Utility
}

// Push queues candidates, replacing entries with the same id, and stops the
// current intention if one of them is clearly better.
func (s *Scheduler) Push(opts ...options.Option) {
	for _, o := range opts {
		if s.current != nil && s.current.Option.ID == o.ID {
			continue
		}
		s.queue.Push(o)
		if s.current != nil && !s.current.Stopped() && s.ShouldPreempt(s.current.Option, o) {
			s.logf("preempt %s (u=%.2f) for %s (u=%.2f)", s.current.Option.ID, s.current.Option.Utility, o.ID, o.Utility)
			s.metrics.RecordPreemption(context.Background(), string(s.current.Option.Kind), string(o.Kind))
			s.current.Stop()
		}
	}
}

func (s *Scheduler) StopCurrent() {
	if s.current != nil {
		s.current.Stop()
	}
}

func (s *Scheduler) Has(id options.ID) bool { return s.queue.Has(id) }

func (s *Scheduler) Remove(id options.ID) bool { return s.queue.Remove(id) }

// RemoveParcel handles a deleted parcel: its pickup leaves the queue and, if
// it is the current target, the current intention is stopped.
func (s *Scheduler) RemoveParcel(parcelID string) {
	s.queue.Remove(options.PickupID(parcelID))
	if s.current != nil && s.current.Option.Kind == options.KindPickup && s.current.Option.ParcelID == parcelID {
		s.logf("target %s deleted, stopping %s", parcelID, s.current.Option.ID)
		s.current.Stop()
	}
}

// Recompute re-scores every queued Option and the current one's utility.
func (s *Scheduler) Recompute(fn func(options.Option) options.Option) {
	s.queue.Update(fn)
	if s.current != nil {
		s.current.Option.Utility = fn(s.current.Option).Utility
	}
}

// Run is the main loop. It returns when ctx is done; a failing intention never
// ends it.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.hooks.Yield != nil {
			if err := s.hooks.Yield(ctx); err != nil && ctx.Err() == nil {
				s.logf("yield: %v", err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		s.Step(ctx)
	}
}

// Step runs one iteration: pop the best Option and, if still valid, execute
// it. It reports whether an intention ran.
func (s *Scheduler) Step(ctx context.Context) bool {
	if s.queue.Len() == 0 && s.hooks.Patrol != nil {
		s.queue.Push(s.hooks.Patrol())
	}
	o, ok := s.queue.Pop()
	if !ok {
		return false
	}
	if s.hooks.Refresh != nil {
		o = s.hooks.Refresh(o)
	}
	if s.hooks.Prepare != nil {
		o = s.hooks.Prepare(ctx, o)
	}
	if s.hooks.Valid != nil && !s.hooks.Valid(o) {
		s.logf("drop %s: no longer valid", o.ID)
		return false
	}
	s.execute(ctx, o)
	return true
}

func (s *Scheduler) execute(ctx context.Context, o options.Option) {
	in := NewIntention(o, s.lib)
	s.current = in
	started := s.now()
	s.metrics.RecordStart(ctx, string(o.Kind))

	err := in.Achieve(ctx)

	s.current = nil
	ended := s.now()
	out := Outcome{
		IntentionID: in.ID,
		Option:      in.Option.Raw(),
		Executor:    in.Executor,
		Result:      ResultOf(err),
		Started:     started,
		Ended:       ended,
		Duration:    ended.Sub(started),
	}
	if err != nil {
		out.Error = err.Error()
	}
	switch {
	case err == nil:
		s.logf("achieved %s", o.ID)
	case errors.Is(err, ErrStopped), ctx.Err() != nil:
	default:
		s.logf("failed %s: %v", o.ID, err)
	}
	s.metrics.RecordFinish(ctx, string(o.Kind), out.Result, out.Duration.Seconds())
	if s.rec != nil {
		s.rec.RecordIntention(out)
	}
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}
