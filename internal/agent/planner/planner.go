// Package planner describes the contract with the symbolic solver: a problem
// goes in, an ordered step sequence (or nothing) comes out.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"parcelbot.ai/internal/grid"
)

type Step struct {
	Action string        `json:"action"`
	From   grid.Position `json:"from"`
	To     grid.Position `json:"to"`
}

func (s Step) Direction() (grid.Direction, bool) { return grid.DirectionTo(s.From, s.To) }

type Plan struct {
	Start grid.Position `json:"start"`
	Goal  grid.Position `json:"goal"`
	Steps []Step        `json:"steps"`
}

func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Positions lists the start followed by the destination of every step.
func (p *Plan) Positions() []grid.Position {
	out := []grid.Position{p.Start}
	for _, s := range p.Steps {
		out = append(out, s.To)
	}
	return out
}

// ErrInvalidPlan marks a solver answer that cannot be walked.
var ErrInvalidPlan = errors.New("invalid plan")

// Validate checks that the steps walk from start to goal one adjacent tile at
// a time.
func (p *Plan) Validate(start, goal grid.Position) error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidPlan)
	}
	if p.Start != start {
		return fmt.Errorf("%w: starts at %v, agent is at %v", ErrInvalidPlan, p.Start, start)
	}
	at := start
	for i, s := range p.Steps {
		if s.From != at {
			return fmt.Errorf("%w: step %d leaves %v, expected %v", ErrInvalidPlan, i, s.From, at)
		}
		if _, ok := s.Direction(); !ok {
			return fmt.Errorf("%w: step %d jumps %v -> %v", ErrInvalidPlan, i, s.From, s.To)
		}
		at = s.To
	}
	if at != goal {
		return fmt.Errorf("%w: ends at %v, goal is %v", ErrInvalidPlan, at, goal)
	}
	return nil
}

// Solver is the symbolic planning backend. A nil plan with a nil error means
// the goal is unreachable. Implementations must not retry internally.
type Solver interface {
	RequestPlan(ctx context.Context, prob Problem) (*Plan, error)
}

// Problem is a grid navigation problem: walk from Start to Goal over Tiles.
type Problem struct {
	Name  string          `json:"name"`
	Start grid.Position   `json:"start"`
	Goal  grid.Position   `json:"goal"`
	Tiles []grid.Position `json:"tiles"`
}

// NewProblem collects the passable tiles of m that blocked does not reject.
// The start tile is always included.
func NewProblem(m *grid.Map, start, goal grid.Position, blocked func(grid.Position) bool) Problem {
	prob := Problem{
		Name:  fmt.Sprintf("goto_%d_%d", goal.X, goal.Y),
		Start: start,
		Goal:  goal,
	}
	if m == nil {
		return prob
	}
	for _, p := range m.WalkableTiles() {
		if p != start && blocked != nil && blocked(p) {
			continue
		}
		prob.Tiles = append(prob.Tiles, p)
	}
	return prob
}

func TileName(p grid.Position) string { return fmt.Sprintf("t_%d_%d", p.X, p.Y) }

func ParseTileName(s string) (grid.Position, error) {
	var p grid.Position
	if _, err := fmt.Sscanf(strings.ToLower(s), "t_%d_%d", &p.X, &p.Y); err != nil {
		return grid.Position{}, fmt.Errorf("bad tile name %q: %w", s, err)
	}
	return p, nil
}

// Domain is the PDDL domain the problem text is written against.
const Domain = `(define (domain parcelbot)
  (:requirements :strips)
  (:predicates (tile ?t) (at ?t) (right ?a ?b) (left ?a ?b) (up ?a ?b) (down ?a ?b))
  (:action move_right :parameters (?from ?to)
    :precondition (and (at ?from) (right ?from ?to)) :effect (and (at ?to) (not (at ?from))))
  (:action move_left :parameters (?from ?to)
    :precondition (and (at ?from) (left ?from ?to)) :effect (and (at ?to) (not (at ?from))))
  (:action move_up :parameters (?from ?to)
    :precondition (and (at ?from) (up ?from ?to)) :effect (and (at ?to) (not (at ?from))))
  (:action move_down :parameters (?from ?to)
    :precondition (and (at ?from) (down ?from ?to)) :effect (and (at ?to) (not (at ?from)))))
`

// PDDL renders the problem against Domain.
func (p Problem) PDDL() string {
	tiles := append([]grid.Position(nil), p.Tiles...)
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].X != tiles[j].X {
			return tiles[i].X < tiles[j].X
		}
		return tiles[i].Y < tiles[j].Y
	})
	set := make(map[grid.Position]bool, len(tiles))
	for _, t := range tiles {
		set[t] = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(define (problem %s) (:domain parcelbot)\n  (:objects", p.Name)
	for _, t := range tiles {
		b.WriteString(" ")
		b.WriteString(TileName(t))
	}
	b.WriteString(")\n  (:init")
	fmt.Fprintf(&b, " (at %s)", TileName(p.Start))
	for _, t := range tiles {
		fmt.Fprintf(&b, " (tile %s)", TileName(t))
		for _, d := range grid.Directions {
			n := t.Add(d)
			if set[n] {
				fmt.Fprintf(&b, " (%s %s %s)", d, TileName(t), TileName(n))
			}
		}
	}
	fmt.Fprintf(&b, ")\n  (:goal (at %s)))\n", TileName(p.Goal))
	return b.String()
}
