// Package llm is a thin client for remote inference endpoints. Each configured
// region maps to one endpoint speaking a minimal text-in/text-out JSON protocol,
// so any provider can be substituted behind it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Endpoint describes one regional inference endpoint.
type Endpoint struct {
	Region string
	URL    string
	Model  string
	APIKey string
}

// Completer is the capability the swarm layer depends on: send a prompt to the
// endpoint selected by region, receive the completion text.
type Completer interface {
	Complete(ctx context.Context, region, prompt string) (string, error)
}

// StatusError is returned for non-2xx endpoint responses.
type StatusError struct {
	Region string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint %s returned status %d", e.Region, e.Code)
}

var ErrUnknownRegion = errors.New("no endpoint configured for region")

// IsTimeout reports whether err was caused by a deadline rather than a
// transport fault. Everything else coming out of Complete is transport-level.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

type Client struct {
	endpoints map[string]Endpoint
	http      *http.Client
}

// NewClient builds a client over the given endpoints. The underlying transport
// is shared; it must allow at least one in-flight request per swarm agent.
func NewClient(endpoints []Endpoint) *Client {
	byRegion := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		byRegion[ep.Region] = ep
	}
	return &Client{
		endpoints: byRegion,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type completionRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Completion string `json:"completion"`
}

// Complete sends prompt to the region's endpoint and returns the completion
// text. Deadlines come from ctx; the caller owns retry policy.
func (c *Client) Complete(ctx context.Context, region, prompt string) (string, error) {
	ep, ok := c.endpoints[region]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}

	body, err := json.Marshal(completionRequest{Model: ep.Model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call endpoint %s: %w", region, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Region: region, Code: resp.StatusCode}
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response from %s: %w", region, err)
	}

	return out.Completion, nil
}
