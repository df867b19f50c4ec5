package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tutu-network/tutuledger/internal/domain"
)

// EventsPage is one page of a channel's event log. Cursor is the sequence
// of the last returned event; pass it back to continue.
type EventsPage struct {
	Events []domain.StoredEvent `json:"events"`
	Cursor int64                `json:"cursor"`
}

// Error is a non-2xx answer from a node.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("node answered %d: %s", e.Status, e.Message)
}

// Client talks to a ledger node's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the node at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the node address.
func (c *Client) BaseURL() string { return c.base }

// Submit posts a signed event. A rejection is returned as a result, not an
// error.
func (c *Client) Submit(ctx context.Context, ev domain.Event) (domain.AcceptResult, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return domain.AcceptResult{}, fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/events", bytes.NewReader(body))
	if err != nil {
		return domain.AcceptResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.AcceptResult{}, fmt.Errorf("submit %s: %w", ev.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusUnprocessableEntity:
		var res domain.AcceptResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return domain.AcceptResult{}, fmt.Errorf("decode submit result: %w", err)
		}
		return res, nil
	default:
		return domain.AcceptResult{}, readError(resp)
	}
}

// EventsSince fetches the page of channel events after cursor.
func (c *Client) EventsSince(ctx context.Context, channel string, cursor int64, limit int) (EventsPage, error) {
	q := url.Values{}
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	q.Set("limit", strconv.Itoa(limit))
	var page EventsPage
	err := c.get(ctx, "/api/channels/"+url.PathEscape(channel)+"/events?"+q.Encode(), &page)
	return page, err
}

// Channels lists the node's channels.
func (c *Client) Channels(ctx context.Context) ([]string, error) {
	var out struct {
		Channels []string `json:"channels"`
	}
	err := c.get(ctx, "/api/channels", &out)
	return out.Channels, err
}

// Clock returns the highest logical clock the node has witnessed.
func (c *Client) Clock(ctx context.Context) (uint64, error) {
	var out struct {
		Clock uint64 `json:"clock"`
	}
	err := c.get(ctx, "/api/clock", &out)
	return out.Clock, err
}

// NextClock reserves the clock for an event about to be signed.
func (c *Client) NextClock(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/clock/next", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("POST /api/clock/next: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, readError(resp)
	}
	var out struct {
		Clock uint64 `json:"clock"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode next clock: %w", err)
	}
	return out.Clock, nil
}

// Balance returns an account view.
func (c *Client) Balance(ctx context.Context, account string) (domain.Account, error) {
	var out domain.Account
	err := c.get(ctx, "/api/balances/"+url.PathEscape(account), &out)
	return out, err
}

// Entries returns an account's most recent postings.
func (c *Client) Entries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error) {
	var out struct {
		Entries []domain.LedgerEntry `json:"entries"`
	}
	err := c.get(ctx, "/api/balances/"+url.PathEscape(account)+"/entries?limit="+strconv.Itoa(limit), &out)
	return out.Entries, err
}

// Treasury returns a channel treasury.
func (c *Client) Treasury(ctx context.Context, channel string) (domain.Treasury, error) {
	var out domain.Treasury
	err := c.get(ctx, "/api/treasuries/"+url.PathEscape(channel), &out)
	return out, err
}

// Config returns the active configuration.
func (c *Client) Config(ctx context.Context) (domain.ConfigSnapshot, error) {
	var out domain.ConfigSnapshot
	err := c.get(ctx, "/api/config", &out)
	return out, err
}

// ConfigHistory returns applied config changes, oldest first.
func (c *Client) ConfigHistory(ctx context.Context) ([]domain.ConfigChange, error) {
	var out struct {
		Changes []domain.ConfigChange `json:"changes"`
	}
	err := c.get(ctx, "/api/config/history", &out)
	return out.Changes, err
}

// Schema returns the governable parameter table.
func (c *Client) Schema(ctx context.Context) ([]domain.GovernableParam, error) {
	var out struct {
		Parameters []domain.GovernableParam `json:"parameters"`
	}
	err := c.get(ctx, "/api/config/schema", &out)
	return out.Parameters, err
}

// Proposals lists proposals; an empty status lists all of them.
func (c *Client) Proposals(ctx context.Context, status domain.ProposalStatus) ([]*domain.Proposal, error) {
	path := "/api/proposals"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Proposals []*domain.Proposal `json:"proposals"`
	}
	err := c.get(ctx, path, &out)
	return out.Proposals, err
}

// Proposal returns one proposal.
func (c *Client) Proposal(ctx context.Context, id string) (*domain.Proposal, error) {
	var out domain.Proposal
	if err := c.get(ctx, "/api/proposals/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Tasks lists every task.
func (c *Client) Tasks(ctx context.Context) ([]domain.Task, error) {
	var out struct {
		Tasks []domain.Task `json:"tasks"`
	}
	err := c.get(ctx, "/api/tasks", &out)
	return out.Tasks, err
}

// Task returns one task.
func (c *Client) Task(ctx context.Context, id string) (*domain.Task, error) {
	var out domain.Task
	if err := c.get(ctx, "/api/tasks/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Diagnostics returns the node's derivation diagnostics.
func (c *Client) Diagnostics(ctx context.Context) ([]domain.Diagnostic, error) {
	var out struct {
		Diagnostics []domain.Diagnostic `json:"diagnostics"`
	}
	err := c.get(ctx, "/api/diagnostics", &out)
	return out.Diagnostics, err
}

// Fingerprint returns the node's state and event-set digests.
func (c *Client) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	var out domain.Fingerprint
	err := c.get(ctx, "/api/fingerprint", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readError(resp *http.Response) error {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
