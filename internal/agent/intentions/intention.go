package intentions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"parcelbot.ai/internal/agent/options"
)

// Executor drives one Option to completion. A fresh instance is created for
// every Intention.
type Executor interface {
	Execute(ctx context.Context, in *Intention) error
}

// Stopper is implemented by executors that hold work worth abandoning early,
// such as a pending solver request.
type Stopper interface {
	Stop()
}

// Entry pairs an applicability predicate with an executor factory.
type Entry struct {
	Name    string
	Applies func(options.Option) bool
	New     func() Executor
}

// Library is evaluated in registration order; the first applicable entry wins.
type Library []Entry

func (l Library) Select(o options.Option) (Entry, bool) {
	for _, e := range l {
		if e.Applies(o) {
			return e, true
		}
	}
	return Entry{}, false
}

// Intention is an Option committed to, plus the executor advancing it.
type Intention struct {
	ID       string
	Option   options.Option
	Executor string

	parent *Intention
	token  *Token
	lib    Library
	exec   Executor
	subs   []*Intention
}

func NewIntention(o options.Option, lib Library) *Intention {
	return newIntention(o, nil, lib)
}

func newIntention(o options.Option, parent *Intention, lib Library) *Intention {
	var pt *Token
	if parent != nil {
		pt = parent.token
	}
	return &Intention{
		ID:     uuid.NewString(),
		Option: o,
		parent: parent,
		token:  NewToken(pt),
		lib:    lib,
	}
}

func (in *Intention) Parent() *Intention { return in.parent }

func (in *Intention) Stopped() bool { return in.token.Stopped() }

// Stop marks the intention and everything beneath it as stopped. Work already
// in flight is not interrupted.
func (in *Intention) Stop() {
	in.token.Stop()
	if s, ok := in.exec.(Stopper); ok {
		s.Stop()
	}
	for _, sub := range in.subs {
		sub.Stop()
	}
}

// Check returns ErrStopped once the intention has been stopped.
func (in *Intention) Check() error {
	if in.Stopped() {
		return ErrStopped
	}
	return nil
}

// Achieve selects an executor and runs it. Failures stop the intention and are
// returned wrapped with its id.
func (in *Intention) Achieve(ctx context.Context) error {
	if err := in.Check(); err != nil {
		return err
	}
	e, ok := in.lib.Select(in.Option)
	if !ok {
		in.token.Stop()
		return fmt.Errorf("intention %s: %w", in.Option.ID, Fail(CodeTargetNotReachable, "no executor for %s", in.Option.Kind))
	}
	in.Executor = e.Name
	in.exec = e.New()
	if err := in.exec.Execute(ctx, in); err != nil {
		in.token.Stop()
		return fmt.Errorf("intention %s: %w", in.Option.ID, err)
	}
	return nil
}

// Sub runs o as a child intention that inherits this intention's
// cancellation.
func (in *Intention) Sub(ctx context.Context, o options.Option) error {
	if err := in.Check(); err != nil {
		return err
	}
	child := newIntention(o, in, in.lib)
	in.subs = append(in.subs, child)
	return child.Achieve(ctx)
}
