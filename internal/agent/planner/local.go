package planner

import (
	"context"

	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

// LocalSolver answers problems with the agent's own search engine. It is used
// when no remote solver is configured.
type LocalSolver struct {
	eng *search.Engine
}

func NewLocalSolver(eng *search.Engine) *LocalSolver { return &LocalSolver{eng: eng} }

func (s *LocalSolver) RequestPlan(ctx context.Context, prob Problem) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.eng.ShortestPath(prob.Start, prob.Goal)
	if !path.Reachable() {
		return nil, nil
	}
	return FromPath(path), nil
}

// FromPath converts a search walk into plan steps.
func FromPath(p search.Path) *Plan {
	plan := &Plan{Start: p.Start(), Goal: p.Final()}
	for i, d := range p.Moves {
		plan.Steps = append(plan.Steps, Step{
			Action: "move_" + string(d),
			From:   p.Positions[i],
			To:     p.Positions[i+1],
		})
	}
	return plan
}

// ToPath converts plan steps back into a walk. It returns the zero Path if the
// steps are not a chain of adjacent tiles.
func ToPath(p *Plan) search.Path {
	if p == nil {
		return search.Path{}
	}
	ps := []grid.Position{p.Start}
	for _, s := range p.Steps {
		if s.From != ps[len(ps)-1] {
			return search.Path{}
		}
		ps = append(ps, s.To)
	}
	return search.FromPositions(ps)
}
