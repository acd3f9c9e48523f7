package paddocksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Paddock HTTP API client.
type Client struct {
	BaseURL     string
	StableID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, stableID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		StableID: stableID,
		Timeout:  10 * time.Second,
	}
}

// Turn represents a process turn.
type Turn struct {
	Order           int     `json:"order"`
	UserID          string  `json:"user_id"`
	Status          string  `json:"status"`
	Quota           *int    `json:"quota,omitempty"`
	SelectionsCount int     `json:"selections_count"`
	Deadline        *string `json:"deadline,omitempty"`
}

// Process represents a selection process (partial).
type Process struct {
	ID             string `json:"id"`
	StableID       string `json:"stable_id"`
	Name           string `json:"name"`
	Algorithm      string `json:"algorithm"`
	Status         string `json:"status"`
	SelectionStart string `json:"selection_start"`
	SelectionEnd   string `json:"selection_end"`
	Turns          []Turn `json:"turns"`
}

// Slot represents a routine instance.
type Slot struct {
	ID            string  `json:"id"`
	StableID      string  `json:"stable_id"`
	Title         string  `json:"title"`
	ScheduledDate string  `json:"scheduled_date"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	Status        string  `json:"status"`
}

// Member represents a roster entry.
type Member struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Role     string `json:"role"`
	Points   int    `json:"points"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	StableID   string         `json:"stable_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateProcess creates a draft selection process.
func (c *Client) CreateProcess(ctx context.Context, name, algorithm, start, end string) (Process, error) {
	body := map[string]any{
		"name":            name,
		"algorithm":       algorithm,
		"selection_start": start,
		"selection_end":   end,
	}
	var resp Process
	err := c.do(ctx, http.MethodPost, c.stablePath("processes"), body, &resp)
	return resp, err
}

// StartProcess activates a draft process.
func (c *Client) StartProcess(ctx context.Context, processID string) (Process, error) {
	var resp Process
	endpoint := fmt.Sprintf("v0/processes/%s/start", url.PathEscape(processID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CompleteTurn closes the active turn.
func (c *Client) CompleteTurn(ctx context.Context, processID string) (Process, error) {
	var resp Process
	endpoint := fmt.Sprintf("v0/processes/%s/complete-turn", url.PathEscape(processID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CancelProcess cancels a draft or active process.
func (c *Client) CancelProcess(ctx context.Context, processID, reason string) (Process, error) {
	body := map[string]any{"reason": reason}
	var resp Process
	endpoint := fmt.Sprintf("v0/processes/%s/cancel", url.PathEscape(processID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ClaimSlot claims a routine instance during the caller's turn.
func (c *Client) ClaimSlot(ctx context.Context, processID, slotID string) (Slot, error) {
	body := map[string]any{"slot_id": slotID}
	var resp Slot
	endpoint := fmt.Sprintf("v0/processes/%s/claims", url.PathEscape(processID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Slots lists routine instances, optionally only unassigned ones.
func (c *Client) Slots(ctx context.Context, onlyAvailable bool) ([]Slot, error) {
	endpoint := c.stablePath("slots")
	if onlyAvailable {
		endpoint += "?available=true"
	}
	var resp []Slot
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Members lists the roster.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var resp []Member
	err := c.do(ctx, http.MethodGet, c.stablePath("members"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.stablePath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) stablePath(p string) string {
	stable := url.PathEscape(c.StableID)
	return fmt.Sprintf("v0/stables/%s/%s", stable, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
