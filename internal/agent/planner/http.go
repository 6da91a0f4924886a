package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSolver posts PDDL to a remote planning service. The service answers
// {"plan": ["(move_right t_0_0 t_1_0)", ...]} or {"plan": null} when no plan
// exists.
type HTTPSolver struct {
	URL    string
	Client *http.Client
}

func NewHTTPSolver(url string, timeout time.Duration) *HTTPSolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSolver{URL: url, Client: &http.Client{Timeout: timeout}}
}

type solveRequest struct {
	Domain  string `json:"domain"`
	Problem string `json:"problem"`
}

type solveResponse struct {
	Plan  []string `json:"plan"`
	Error string   `json:"error,omitempty"`
}

func (s *HTTPSolver) RequestPlan(ctx context.Context, prob Problem) (*Plan, error) {
	body, err := json.Marshal(solveRequest{Domain: Domain, Problem: prob.PDDL()})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("solver request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solver status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out solveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("solver response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("solver: %s", out.Error)
	}
	if out.Plan == nil {
		return nil, nil
	}
	return ParsePlan(prob, out.Plan)
}

// ParsePlan reads steps of the form "(move_right t_0_0 t_1_0)".
func ParsePlan(prob Problem, lines []string) (*Plan, error) {
	plan := &Plan{Start: prob.Start, Goal: prob.Goal}
	for _, line := range lines {
		f := strings.Fields(strings.Trim(strings.TrimSpace(line), "()"))
		if len(f) != 3 {
			return nil, fmt.Errorf("bad plan step %q", line)
		}
		from, err := ParseTileName(f[1])
		if err != nil {
			return nil, err
		}
		to, err := ParseTileName(f[2])
		if err != nil {
			return nil, err
		}
		plan.Steps = append(plan.Steps, Step{Action: strings.ToLower(f[0]), From: from, To: to})
	}
	return plan, nil
}
