package executors

import (
	"context"
	"errors"

	"parcelbot.ai/internal/agent/intentions"
	"parcelbot.ai/internal/agent/search"
)

type pickup struct{ w *walker }

func (x *pickup) Execute(ctx context.Context, in *intentions.Intention) error {
	env := x.w.env
	o := in.Option
	mv := env.Builder().Move(o.Strategy, env.Position(), o.Final, forward(o.Path, env), o.Plan)
	if err := in.Sub(ctx, mv); err != nil {
		return err
	}
	if err := in.Check(); err != nil {
		return err
	}
	if p, ok := env.Beliefs().Parcel(o.ParcelID); ok && p.CarriedBy == env.Beliefs().Self.ID {
		// Already collected on the way.
		return nil
	}
	ids, err := env.Pickup(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return intentions.Fail(intentions.CodeTargetNotReachable, "parcel %s not at %v", o.ParcelID, o.Final)
	}
	return nil
}

type deliver struct{ w *walker }

func (x *deliver) Execute(ctx context.Context, in *intentions.Intention) error {
	env := x.w.env
	o := in.Option
	pos := env.Position()
	target, path := o.Final, forward(o.Path, env)
	if !env.Engine().Map().IsDelivery(target) {
		path = env.Engine().NearestDeliveryTile(pos)
		if !path.Reachable() {
			return intentions.Fail(intentions.CodeTargetNotReachable, "no delivery tile reachable from %v", pos)
		}
		target = path.Final()
	}
	if err := in.Sub(ctx, env.Builder().Move(o.Strategy, pos, target, path, o.Plan)); err != nil {
		return err
	}
	if err := in.Check(); err != nil {
		return err
	}
	_, err := env.Putdown(ctx)
	return err
}

// forward keeps a parent's path only when it still starts where the agent is.
func forward(p search.Path, env Env) search.Path {
	if p.Reachable() && p.Start() == env.Position() {
		return p
	}
	return search.Path{}
}

type patrol struct{ w *walker }

func (x *patrol) Execute(ctx context.Context, in *intentions.Intention) error {
	env := x.w.env
	pos := env.Position()
	target, ok := env.Builder().PatrolTarget(pos)
	if !ok {
		return env.Idle(ctx, x.w.cfg.PatrolIdle)
	}
	err := in.Sub(ctx, env.Builder().Move(env.Builder().Strategy, pos, target, search.Path{}, nil))
	if errors.Is(err, intentions.ErrTargetNotReachable) {
		// Boxed in: wait for the neighbours to move before the next round.
		if ierr := env.Idle(ctx, x.w.cfg.PatrolIdle); ierr != nil {
			return ierr
		}
	}
	return err
}
