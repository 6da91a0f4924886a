// Package utility scores candidate goals. Scores are pure functions of their
// inputs apart from the movement penalty, which drifts as the estimator
// observes real move latency.
package utility

import (
	"math"

	"parcelbot.ai/internal/agent/beliefs"
	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

const (
	DefaultCarriedFactor    = 1.0
	DefaultSafetyMultiplier = 1.5
)

type Config struct {
	CarriedFactor    float64
	SafetyMultiplier float64
	// Capacity overrides the server capacity when positive.
	Capacity int
}

// PickUpScore is (carriedReward + reward) - distance*penalty*(carriedCount+1).
func PickUpScore(carriedReward float64, carriedCount int, reward float64, distance int, penalty float64) float64 {
	cost := float64(distance) * penalty
	return (carriedReward + reward) - cost*float64(carriedCount+1)
}

// DeliveryScore is carriedReward*factor - distance*penalty*carriedCount,
// floored at zero.
func DeliveryScore(carriedReward float64, carriedCount int, factor float64, distance int, penalty float64) float64 {
	u := carriedReward*factor - float64(distance)*penalty*float64(carriedCount)
	return math.Max(0, u)
}

type Calculator struct {
	eng *search.Engine
	bel *beliefs.Beliefs
	est *Estimator
	cfg Config
}

func NewCalculator(eng *search.Engine, bel *beliefs.Beliefs, est *Estimator, cfg Config) *Calculator {
	if cfg.CarriedFactor <= 0 {
		cfg.CarriedFactor = DefaultCarriedFactor
	}
	if cfg.SafetyMultiplier <= 0 {
		cfg.SafetyMultiplier = DefaultSafetyMultiplier
	}
	return &Calculator{eng: eng, bel: bel, est: est, cfg: cfg}
}

func (c *Calculator) Penalty() float64 { return c.est.Penalty.Load() }

// Capacity returns the carry limit, or 0 when unlimited.
func (c *Calculator) Capacity() int {
	if c.cfg.Capacity > 0 {
		return c.cfg.Capacity
	}
	if c.bel.Game.Capacity > 0 {
		return c.bel.Game.Capacity
	}
	return 0
}

// PickUp scores going from start to parcel and then on to the nearest delivery
// tile, using BFS distances. It also returns the walk to the parcel.
func (c *Calculator) PickUp(start grid.Position, p beliefs.Parcel) (float64, search.Path) {
	toParcel := c.eng.ShortestPath(start, p.Pos)
	if !toParcel.Reachable() {
		return math.Inf(-1), search.Path{}
	}
	toDelivery := c.eng.NearestDeliveryTile(p.Pos)
	if !toDelivery.Reachable() {
		return math.Inf(-1), toParcel
	}
	u := PickUpScore(c.bel.CarriedReward(), c.bel.CarriedCount(), p.Reward, toParcel.Len()+toDelivery.Len(), c.Penalty())
	return u, toParcel
}

// PickUpSimplified is PickUp with Manhattan distances, used to filter
// candidates before paying for a search.
func (c *Calculator) PickUpSimplified(start grid.Position, p beliefs.Parcel) float64 {
	d := grid.Distance(start, p.Pos) + c.manhattanToDelivery(p.Pos)
	return PickUpScore(c.bel.CarriedReward(), c.bel.CarriedCount(), p.Reward, d, c.Penalty())
}

func (c *Calculator) manhattanToDelivery(from grid.Position) int {
	m := c.eng.Map()
	if m == nil {
		return 0
	}
	best := -1
	for _, d := range m.DeliveryTiles() {
		if v := grid.Distance(from, d); best < 0 || v < best {
			best = v
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// Delivery scores delivering everything carried from start. It is +Inf when
// the agent is full or the match is about to end.
func (c *Calculator) Delivery(start grid.Position) (float64, search.Path) {
	n := c.bel.CarriedCount()
	if n == 0 {
		return 0, search.Path{}
	}
	path := c.eng.NearestDeliveryTile(start)
	if !path.Reachable() {
		return 0, search.Path{}
	}
	if capacity := c.Capacity(); capacity > 0 && n >= capacity {
		return math.Inf(1), path
	}
	margin := float64(path.Len()) * float64(c.est.MoveTime()) * c.cfg.SafetyMultiplier
	if float64(c.bel.Remaining()) < margin {
		return math.Inf(1), path
	}
	return DeliveryScore(c.bel.CarriedReward(), n, c.cfg.CarriedFactor, path.Len(), c.Penalty()), path
}

// DeliverySimplified is Delivery with the Manhattan distance to the nearest
// delivery tile.
func (c *Calculator) DeliverySimplified(start grid.Position) float64 {
	n := c.bel.CarriedCount()
	if n == 0 {
		return 0
	}
	if capacity := c.Capacity(); capacity > 0 && n >= capacity {
		return math.Inf(1)
	}
	d := c.manhattanToDelivery(start)
	if float64(c.bel.Remaining()) < float64(d)*float64(c.est.MoveTime())*c.cfg.SafetyMultiplier {
		return math.Inf(1)
	}
	return DeliveryScore(c.bel.CarriedReward(), n, c.cfg.CarriedFactor, d, c.Penalty())
}
