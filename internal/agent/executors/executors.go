// Package executors turns Options into primitive game actions.
package executors

import (
	"context"
	"log"
	"time"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/intentions"
	"parcelbot.ai/internal/agent/options"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

// Env is the agent surface executors drive. Move, Pickup and Putdown apply
// pending sensing events before and after the round trip, so beliefs read
// after them are fresh.
type Env interface {
	Position() grid.Position
	Beliefs() *beliefs.Beliefs
	Engine() *search.Engine
	Builder() *options.Builder
	// Capacity is the carry limit, 0 when unlimited.
	Capacity() int

	// Move reports false when the server rejected the step.
	Move(ctx context.Context, d grid.Direction) (bool, error)
	Pickup(ctx context.Context) ([]string, error)
	Putdown(ctx context.Context) ([]string, error)

	// Idle blocks until a sensing event arrives or d elapses.
	Idle(ctx context.Context, d time.Duration) error
}

const (
	DefaultMaxMoveRetries = 2
	DefaultMaxPathRetries = 5
	DefaultPatrolIdle     = 500 * time.Millisecond
)

// Config bounds recovery. A negative MaxMoveRetries disables move retries;
// zero values take the defaults.
type Config struct {
	MaxMoveRetries int
	MaxPathRetries int
	FastPick       bool
	PatrolIdle     time.Duration
}

func (c Config) withDefaults() Config {
	switch {
	case c.MaxMoveRetries == 0:
		c.MaxMoveRetries = DefaultMaxMoveRetries
	case c.MaxMoveRetries < 0:
		c.MaxMoveRetries = 0
	}
	if c.MaxPathRetries <= 0 {
		c.MaxPathRetries = DefaultMaxPathRetries
	}
	if c.PatrolIdle <= 0 {
		c.PatrolIdle = DefaultPatrolIdle
	}
	return c
}

// Library returns the executors in matching order: terminal goals first, then
// the movement strategies.
func Library(env Env, cfg Config, logger *log.Logger) intentions.Library {
	cfg = cfg.withDefaults()
	w := &walker{env: env, cfg: cfg, log: logger}
	return intentions.Library{
		{
			Name:    "pickup",
			Applies: func(o options.Option) bool { return o.Kind == options.KindPickup },
			New:     func() intentions.Executor { return &pickup{w: w} },
		},
		{
			Name:    "deliver",
			Applies: func(o options.Option) bool { return o.Kind == options.KindDeliver },
			New:     func() intentions.Executor { return &deliver{w: w} },
		},
		{
			Name:    "patrol",
			Applies: func(o options.Option) bool { return o.Kind == options.KindPatrol },
			New:     func() intentions.Executor { return &patrol{w: w} },
		},
		{
			Name: "search_move",
			Applies: func(o options.Option) bool {
				return o.Kind == options.KindMove && o.Strategy != options.StrategyPlan
			},
			New: func() intentions.Executor { return &searchMove{w: w} },
		},
		{
			Name: "plan_move",
			Applies: func(o options.Option) bool {
				return o.Kind == options.KindMove && o.Strategy == options.StrategyPlan
			},
			New: func() intentions.Executor { return &planMove{w: w} },
		},
	}
}
