package utility

import (
	"math"
	"testing"
	"time"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

func TestPickUpScore_Monotonic(t *testing.T) {
	for _, penalty := range []float64{0, 0.1, 0.5, 2} {
		for dist := 0; dist < 20; dist += 3 {
			prev := math.Inf(-1)
			for reward := 0.0; reward <= 50; reward += 5 {
				u := PickUpScore(7, 2, reward, dist, penalty)
				if u < prev {
					t.Fatalf("higher reward lowered utility: reward=%v dist=%d penalty=%v", reward, dist, penalty)
				}
				prev = u
			}
			prev = math.Inf(1)
			for carried := 0; carried < 6; carried++ {
				u := PickUpScore(7, carried, 10, dist, penalty)
				if u > prev {
					t.Fatalf("more carried parcels raised utility: carried=%d dist=%d penalty=%v", carried, dist, penalty)
				}
				prev = u
			}
		}
	}
}

func TestDeliveryScore_FlooredAtZero(t *testing.T) {
	if got := DeliveryScore(1, 3, 1, 100, 1); got != 0 {
		t.Fatalf("got=%v want=0", got)
	}
	if got := DeliveryScore(10, 2, 1.5, 2, 0.5); got != 13 {
		t.Fatalf("got=%v want=13", got)
	}
}

func TestEstimator_Tick(t *testing.T) {
	e := NewEstimator(time.Second, nil)
	e.Seed(500*time.Millisecond, time.Second)
	if got := e.Penalty.Load(); got != 0.5 {
		t.Fatalf("seeded penalty=%v", got)
	}
	for i := 0; i < 4; i++ {
		e.RecordMove()
	}
	if got := e.Tick(2 * time.Second); got != 0.5 {
		t.Fatalf("penalty=%v want=0.5", got)
	}
	if e.MoveTime() != 500*time.Millisecond {
		t.Fatalf("move time=%v", e.MoveTime())
	}
	for i := 0; i < 8; i++ {
		e.RecordMove()
	}
	if got := e.Tick(2 * time.Second); got != 0.25 {
		t.Fatalf("penalty=%v want=0.25", got)
	}
	if got := e.Tick(2 * time.Second); got != 0.25 {
		t.Fatalf("idle window should keep estimate, got %v", got)
	}
}

func TestEstimator_InfiniteDecay(t *testing.T) {
	e := NewEstimator(time.Second, nil)
	e.Seed(100*time.Millisecond, 0)
	e.RecordMove()
	if got := e.Tick(time.Second); got != 0 {
		t.Fatalf("penalty=%v want=0", got)
	}
}

func newCalc(t *testing.T, penalty time.Duration) (*Calculator, *beliefs.Beliefs) {
	t.Helper()
	m := grid.Open(5, 3, grid.Position{X: 4, Y: 0})
	bel := beliefs.New(nil)
	bel.UpdateSelf("me", "me", 0, 0, 0)
	eng := search.NewEngine(m, bel)
	est := NewEstimator(time.Second, nil)
	est.Seed(penalty, time.Second)
	return NewCalculator(eng, bel, est, Config{}), bel
}

func TestCalculator_PickUp(t *testing.T) {
	c, _ := newCalc(t, 500*time.Millisecond)
	p := beliefs.Parcel{ID: "p", Pos: grid.Position{X: 2, Y: 0}, Reward: 10}
	u, path := c.PickUp(grid.Position{}, p)
	// 2 tiles to the parcel, 2 more to delivery, 0.5 per tile.
	if u != 8 {
		t.Fatalf("utility=%v want=8", u)
	}
	if path.Len() != 2 {
		t.Fatalf("path len=%d", path.Len())
	}
	if s := c.PickUpSimplified(grid.Position{}, p); s != u {
		t.Fatalf("simplified=%v on open grid should equal %v", s, u)
	}
}

func TestCalculator_PickUpUnreachable(t *testing.T) {
	c, bel := newCalc(t, 0)
	bel.SensePlayers([]beliefs.Player{{ID: "o", X: 2, Y: 0}})
	u, path := c.PickUp(grid.Position{}, beliefs.Parcel{ID: "p", Pos: grid.Position{X: 2, Y: 0}, Reward: 10})
	if !math.IsInf(u, -1) || path.Reachable() {
		t.Fatalf("expected -Inf, got %v", u)
	}
}

func TestCalculator_Delivery(t *testing.T) {
	c, bel := newCalc(t, 500*time.Millisecond)
	if u, _ := c.Delivery(grid.Position{}); u != 0 {
		t.Fatalf("nothing carried: %v", u)
	}
	bel.SenseParcels([]beliefs.Parcel{{ID: "a", Pos: grid.Position{}, Reward: 10}})
	bel.PickedUp([]string{"a"})
	u, path := c.Delivery(grid.Position{})
	if path.Len() != 4 || u != 8 {
		t.Fatalf("utility=%v len=%d", u, path.Len())
	}

	bel.SetGame(beliefs.Game{Capacity: 1})
	if u, _ := c.Delivery(grid.Position{}); !math.IsInf(u, 1) {
		t.Fatalf("full agent should deliver now, got %v", u)
	}
}

func TestCalculator_DeliveryDeadline(t *testing.T) {
	c, bel := newCalc(t, 500*time.Millisecond)
	bel.SenseParcels([]beliefs.Parcel{{ID: "a", Pos: grid.Position{}, Reward: 10}})
	bel.PickedUp([]string{"a"})
	// 4 tiles * 500ms * 1.5 = 3s of margin.
	bel.SetGame(beliefs.Game{MatchDuration: 2 * time.Second})
	if u, _ := c.Delivery(grid.Position{}); !math.IsInf(u, 1) {
		t.Fatalf("deadline should force delivery, got %v", u)
	}
	bel.SetGame(beliefs.Game{MatchDuration: time.Hour})
	if u, _ := c.Delivery(grid.Position{}); math.IsInf(u, 1) {
		t.Fatalf("distant deadline should not force delivery")
	}
}
