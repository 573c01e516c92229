// Package solver wraps the external mathematical solver capability: given a
// structured model description it returns a status, an objective value and
// variable assignments. The consensus engine never depends on it; the pipeline
// consumes it downstream of the Solver swarm when configured.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Report is the solver's answer for one model.
type Report struct {
	Status      string             `json:"status"` // optimal, feasible, infeasible, unbounded, error
	Objective   float64            `json:"objective"`
	Assignments map[string]float64 `json:"assignments,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// Solver is the pluggable capability contract.
type Solver interface {
	Solve(ctx context.Context, model map[string]any) (*Report, error)
}

// HTTPSolver posts the model as JSON to a remote solver endpoint.
type HTTPSolver struct {
	url  string
	http *http.Client
}

func NewHTTPSolver(url string, timeout time.Duration) *HTTPSolver {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSolver{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSolver) Solve(ctx context.Context, model map[string]any) (*Report, error) {
	body, err := json.Marshal(map[string]any{"model": model})
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call solver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("solver returned status %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode solver response: %w", err)
	}

	return &report, nil
}
