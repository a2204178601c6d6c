package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration // set on 429
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to the scoring API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type submitBody struct {
	Round string  `json:"round"`
	Team  string  `json:"team"`
	Judge string  `json:"judge"`
	Value float64 `json:"value"`
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

// Roster fetches the current roster.
func (c *Client) Roster(ctx context.Context, password string) (model.RosterState, error) {
	var state model.RosterState
	err := c.do(ctx, http.MethodGet, "/roster", password, nil, &state)
	return state, err
}

// Protocol fetches every stored score.
func (c *Client) Protocol(ctx context.Context, password string) ([]model.ProtocolRow, error) {
	var rows []model.ProtocolRow
	err := c.do(ctx, http.MethodGet, "/protocol", password, nil, &rows)
	return rows, err
}

// Submit posts one score.
func (c *Client) Submit(ctx context.Context, password, round, team, judge string, value float64) error {
	body := submitBody{Round: round, Team: team, Judge: judge, Value: value}
	return c.do(ctx, http.MethodPost, "/scores", password, body, nil)
}

// Scoreboard fetches the public scoreboard rows.
func (c *Client) Scoreboard(ctx context.Context) ([]model.ScoreboardRow, error) {
	var board model.Standings
	err := c.do(ctx, http.MethodGet, "/scoreboard", "", nil, &board)
	return board.Rows, err
}

// Clear deletes every score.
func (c *Client) Clear(ctx context.Context, adminPassword string) error {
	return c.do(ctx, http.MethodDelete, "/scores", adminPassword, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, password string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if password != "" {
		req.Header.Set("Authorization", "Bearer "+password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
		if resp.StatusCode == http.StatusTooManyRequests {
			se.RetryAfter = retryAfter(resp.Header.Get("Retry-After"))
		}
		return se
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// retryAfter returns how long a 429 response asks the caller to wait.
func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
