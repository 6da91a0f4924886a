package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parcelbot.ai/internal/agent/search"
	"parcelbot.ai/internal/grid"
)

func TestProblemPDDL(t *testing.T) {
	m := grid.Open(2, 1)
	prob := NewProblem(m, grid.Position{}, grid.Position{X: 1}, nil)
	text := prob.PDDL()
	for _, want := range []string{
		"(:objects t_0_0 t_1_0)",
		"(at t_0_0)",
		"(right t_0_0 t_1_0)",
		"(left t_1_0 t_0_0)",
		"(:goal (at t_1_0))",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("PDDL missing %q:\n%s", want, text)
		}
	}
}

func TestNewProblem_SkipsBlockedButKeepsStart(t *testing.T) {
	m := grid.Open(3, 1)
	start := grid.Position{X: 1}
	prob := NewProblem(m, start, grid.Position{X: 2}, func(p grid.Position) bool { return p.X <= 1 })
	if len(prob.Tiles) != 2 {
		t.Fatalf("tiles=%v", prob.Tiles)
	}
}

func TestLocalSolver(t *testing.T) {
	eng := search.NewEngine(grid.Open(4, 1), nil)
	s := NewLocalSolver(eng)
	plan, err := s.RequestPlan(context.Background(), Problem{Start: grid.Position{}, Goal: grid.Position{X: 3}})
	if err != nil || plan == nil {
		t.Fatalf("plan=%v err=%v", plan, err)
	}
	if plan.Len() != 3 || plan.Steps[0].Action != "move_right" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if p := ToPath(plan); p.Len() != 3 || p.Final() != (grid.Position{X: 3}) {
		t.Fatalf("ToPath=%+v", p)
	}

	walled, _ := grid.NewMap([][]grid.Tile{{grid.Walkable}, {grid.Wall}, {grid.Walkable}})
	none, err := NewLocalSolver(search.NewEngine(walled, nil)).RequestPlan(context.Background(), Problem{Goal: grid.Position{X: 2}})
	if err != nil || none != nil {
		t.Fatalf("expected nil plan, got %v %v", none, err)
	}
}

func TestHTTPSolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req solveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Problem, "(:goal (at t_1_0))") {
			_ = json.NewEncoder(w).Encode(solveResponse{})
			return
		}
		_ = json.NewEncoder(w).Encode(solveResponse{Plan: []string{"(MOVE_RIGHT T_0_0 T_1_0)"}})
	}))
	defer srv.Close()

	s := NewHTTPSolver(srv.URL, 0)
	m := grid.Open(3, 1)
	plan, err := s.RequestPlan(context.Background(), NewProblem(m, grid.Position{}, grid.Position{X: 1}, nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if plan.Len() != 1 || plan.Steps[0].To != (grid.Position{X: 1}) || plan.Steps[0].Action != "move_right" {
		t.Fatalf("plan=%+v", plan)
	}
	if d, ok := plan.Steps[0].Direction(); !ok || d != grid.Right {
		t.Fatalf("direction=%v", d)
	}

	none, err := s.RequestPlan(context.Background(), NewProblem(m, grid.Position{}, grid.Position{X: 2}, nil))
	if err != nil || none != nil {
		t.Fatalf("expected nil plan, got %v %v", none, err)
	}
}

func TestParsePlan_Rejects(t *testing.T) {
	if _, err := ParsePlan(Problem{}, []string{"(move_right t_0_0)"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlanValidate(t *testing.T) {
	start, goal := grid.Position{}, grid.Position{X: 2}
	ok := &Plan{Start: start, Goal: goal, Steps: []Step{
		{From: start, To: grid.Position{X: 1}},
		{From: grid.Position{X: 1}, To: goal},
	}}
	if err := ok.Validate(start, goal); err != nil {
		t.Fatalf("valid plan rejected: %v", err)
	}
	if err := (&Plan{Start: start}).Validate(start, start); err != nil {
		t.Fatalf("empty plan at goal rejected: %v", err)
	}

	bad := map[string]*Plan{
		"nil":        nil,
		"jump":       {Start: start, Steps: []Step{{From: start, To: goal}}},
		"broken":     {Start: start, Steps: []Step{{From: start, To: grid.Position{X: 1}}, {From: start, To: grid.Position{Y: 1}}}},
		"short":      {Start: start, Steps: []Step{{From: start, To: grid.Position{X: 1}}}},
		"wrongStart": {Start: grid.Position{Y: 1}, Steps: []Step{{From: grid.Position{Y: 1}, To: grid.Position{X: 1, Y: 1}}}},
	}
	for name, p := range bad {
		if err := p.Validate(start, goal); !errors.Is(err, ErrInvalidPlan) {
			t.Fatalf("%s: err=%v want ErrInvalidPlan", name, err)
		}
	}
}
