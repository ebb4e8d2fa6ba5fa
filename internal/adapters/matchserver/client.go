package matchserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

const defaultBase = "http://match-server.internal/api/v1"

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("match server status %d: %s", e.Status, e.Body)
}

// Client hands confirmed lineups to the external match server.
type Client struct {
	apiKey  string
	http    *http.Client
	baseURL string
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBase,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createMatchDTO struct {
	MatchID        string            `json:"match_id"`
	Participants   []string          `json:"participants"`
	RoleAssignment map[string]string `json:"role_assignment,omitempty"`
}

// CreateMatch posts a confirmed lineup. The server treats match_id as the
// idempotency key, so a retried call after a timeout is safe.
func (c *Client) CreateMatch(ctx context.Context, m domain.MatchConfirmed) error {
	body, err := json.Marshal(createMatchDTO{
		MatchID:        m.MatchID,
		Participants:   m.Participants,
		RoleAssignment: m.RoleAssignment,
	})
	if err != nil {
		return fmt.Errorf("encode match: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/matches", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("match server http: %w", err)
	}
	defer res.Body.Close()

	// 409 means a previous attempt already landed.
	if res.StatusCode == http.StatusConflict {
		return nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &APIError{Status: res.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return nil
}
