package utility

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"
)

// Penalty is the reward lost per tile walked. It is written by the estimator
// goroutine and read by the agent loop, so readers must treat it as eventually
// consistent.
type Penalty struct{ bits atomic.Uint64 }

func NewPenalty(v float64) *Penalty {
	p := &Penalty{}
	p.Store(v)
	return p
}

func (p *Penalty) Load() float64   { return math.Float64frombits(p.bits.Load()) }
func (p *Penalty) Store(v float64) { p.bits.Store(math.Float64bits(v)) }

const DefaultWindow = 10 * time.Second

// Estimator re-derives the movement penalty from the move latency actually
// observed over a fixed wall-clock window.
type Estimator struct {
	Penalty *Penalty

	window   time.Duration
	attempts atomic.Int64
	decay    atomic.Int64 // time.Duration; 0 = rewards never decay
	moveTime atomic.Int64 // time.Duration

	log *log.Logger
}

func NewEstimator(window time.Duration, logger *log.Logger) *Estimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Estimator{Penalty: NewPenalty(0), window: window, log: logger}
}

// Seed sets the initial estimate from the server's nominal parameters.
func (e *Estimator) Seed(movement, decay time.Duration) {
	e.decay.Store(int64(decay))
	e.moveTime.Store(int64(movement))
	if decay <= 0 {
		e.Penalty.Store(0)
		return
	}
	e.Penalty.Store(float64(movement) / float64(decay))
}

// RecordMove counts one primitive move attempt, successful or not.
func (e *Estimator) RecordMove() { e.attempts.Add(1) }

// MoveTime is the current estimate of one move's latency.
func (e *Estimator) MoveTime() time.Duration { return time.Duration(e.moveTime.Load()) }

// Tick closes a window of the given length and returns the new penalty. A
// window with no move attempts keeps the previous estimate.
func (e *Estimator) Tick(elapsed time.Duration) float64 {
	n := e.attempts.Swap(0)
	decay := time.Duration(e.decay.Load())
	if n > 0 {
		e.moveTime.Store(int64(elapsed) / n)
	}
	if decay <= 0 {
		e.Penalty.Store(0)
		return 0
	}
	if n == 0 {
		return e.Penalty.Load()
	}
	v := (float64(elapsed) / float64(n)) / float64(decay)
	e.Penalty.Store(v)
	return v
}

func (e *Estimator) Run(ctx context.Context) error {
	t := time.NewTicker(e.window)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			v := e.Tick(now.Sub(last))
			last = now
			if e.log != nil {
				e.log.Printf("movement penalty=%.4f move_time=%s", v, e.MoveTime())
			}
		}
	}
}
