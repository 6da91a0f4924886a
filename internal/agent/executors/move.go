package executors

import (
	"context"
	"errors"
	"log"
	"math"

	"parcelbot.ai/internal/agent/intentions"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

type walker struct {
	env Env
	cfg Config
	log *log.Logger
}

func (w *walker) logf(format string, args ...any) {
	if w.log != nil {
		w.log.Printf(format, args...)
	}
}

// walk follows path from its start. It checks the remaining suffix for other
// agents before every step.
func (w *walker) walk(ctx context.Context, in *intentions.Intention, path search.Path) error {
	eng := w.env.Engine()
	for i, d := range path.Moves {
		if err := in.Check(); err != nil {
			return err
		}
		if pos := w.env.Position(); pos != path.Positions[i] {
			return intentions.Fail(intentions.CodePathNotFree, "off path at %v, expected %v", pos, path.Positions[i])
		}
		if !eng.IsPathSafe(path.Positions[i+1:]) {
			return intentions.Fail(intentions.CodePathNotFree, "path from %v blocked", path.Positions[i])
		}
		if err := w.step(ctx, in, d); err != nil {
			return err
		}
		if w.cfg.FastPick {
			var next *grid.Position
			if i+2 < len(path.Positions) {
				next = &path.Positions[i+2]
			}
			if err := w.fastPick(ctx, in, next); err != nil {
				return err
			}
		}
	}
	return nil
}

// step performs one primitive move, retrying rejected moves while the
// destination stays free.
func (w *walker) step(ctx context.Context, in *intentions.Intention, d grid.Direction) error {
	from := w.env.Position()
	to := from.Add(d)
	for attempt := 0; ; attempt++ {
		ok, err := w.env.Move(ctx, d)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := in.Check(); err != nil {
			return err
		}
		if !w.env.Engine().IsPathSafe([]grid.Position{to}) {
			return intentions.Fail(intentions.CodePathNotFree, "%v taken", to)
		}
		if attempt >= w.cfg.MaxMoveRetries {
			return intentions.Fail(intentions.CodeMovementFail, "move %s from %v rejected %d times", d, from, attempt+1)
		}
	}
}

// fastPick collects free parcels on the current tile, then steps onto one
// adjacent tile other than next to collect its parcels and steps back.
func (w *walker) fastPick(ctx context.Context, in *intentions.Intention, next *grid.Position) error {
	bel := w.env.Beliefs()
	pos := w.env.Position()
	if len(bel.FreeAt(pos)) > 0 && bel.CarriedCount() < capacity(w.env) {
		if _, err := w.env.Pickup(ctx); err != nil {
			return err
		}
	}
	if bel.CarriedCount() >= capacity(w.env) {
		return nil
	}
	for _, d := range grid.Directions {
		n := pos.Add(d)
		if next != nil && n == *next {
			continue
		}
		if len(bel.FreeAt(n)) == 0 || !w.env.Engine().IsValidPosition(n.X, n.Y, false) {
			continue
		}
		if err := in.Check(); err != nil {
			return err
		}
		if err := w.step(ctx, in, d); err != nil {
			return err
		}
		if _, err := w.env.Pickup(ctx); err != nil {
			return err
		}
		return w.step(ctx, in, d.Opposite())
	}
	return nil
}

func capacity(env Env) int {
	if c := env.Capacity(); c > 0 {
		return c
	}
	return math.MaxInt
}

// replan decides whether a walk failure is recovered by planning again from
// the current position.
func (w *walker) replan(in *intentions.Intention, err error, retries *int) bool {
	if !errors.Is(err, intentions.ErrPathNotFree) {
		return false
	}
	*retries++
	if *retries > w.cfg.MaxPathRetries {
		return false
	}
	w.logf("%s: %v, replanning (%d/%d)", in.Option.ID, err, *retries, w.cfg.MaxPathRetries)
	return true
}

// arrived checks where a completed walk left the agent. Walks that end short
// of target count against the same budget as replans.
func (w *walker) arrived(in *intentions.Intention, target grid.Position, retries *int) error {
	pos := w.env.Position()
	if pos == target {
		return nil
	}
	*retries++
	if *retries > w.cfg.MaxPathRetries {
		return intentions.Fail(intentions.CodeTargetNotReachable, "walks keep ending at %v, short of %v", pos, target)
	}
	w.logf("%s: walk ended at %v, short of %v (%d/%d)", in.Option.ID, pos, target, *retries, w.cfg.MaxPathRetries)
	return nil
}

type searchMove struct{ w *walker }

func (x *searchMove) Execute(ctx context.Context, in *intentions.Intention) error {
	env := x.w.env
	target := in.Option.Final
	path := in.Option.Path
	retries := 0
	for {
		if err := in.Check(); err != nil {
			return err
		}
		pos := env.Position()
		if pos == target {
			return nil
		}
		if !path.Reachable() || path.Len() == 0 || path.Start() != pos || path.Final() != target {
			path = env.Engine().ShortestPath(pos, target)
			if path.Len() == 0 {
				return intentions.Fail(intentions.CodeTargetNotReachable, "no path %v -> %v", pos, target)
			}
		}
		err := x.w.walk(ctx, in, path)
		if err == nil {
			if err := x.w.arrived(in, target, &retries); err != nil {
				return err
			}
			path = search.Path{}
			continue
		}
		if !x.w.replan(in, err, &retries) {
			return err
		}
		path = search.Path{}
	}
}

type planMove struct{ w *walker }

func (x *planMove) Execute(ctx context.Context, in *intentions.Intention) error {
	env := x.w.env
	o := in.Option
	retries := 0
	for {
		if err := in.Check(); err != nil {
			return err
		}
		pos := env.Position()
		if pos == o.Final {
			return nil
		}
		o = env.Builder().Recompute(o, pos)
		var err error
		if o, err = env.Builder().ResolvePlan(ctx, o); err != nil {
			return &intentions.Failure{Code: intentions.CodeTargetNotReachable, Msg: "solver", Err: err}
		}
		if err := in.Check(); err != nil {
			return err
		}
		if o.Plan == nil || !o.Path.Reachable() || o.Path.Len() == 0 || o.Path.Start() != pos {
			return intentions.Fail(intentions.CodeTargetNotReachable, "no plan %v -> %v", pos, o.Final)
		}
		err = x.w.walk(ctx, in, o.Path)
		if err == nil {
			if err := x.w.arrived(in, o.Final, &retries); err != nil {
				return err
			}
			o.Plan = nil
			continue
		}
		if !x.w.replan(in, err, &retries) {
			return err
		}
		o.Plan = nil
	}
}
