package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/status-engine/internal/config"
	"github.com/spec-kit/status-engine/internal/domain"
)

// ErrNotFound reports a 404 from the authority; callers translate it into
// default values rather than surfacing an error.
var ErrNotFound = errors.New("ticket status not found")

// StatusSnapshot is the authority's view of one ticket.
type StatusSnapshot struct {
	TicketID      string                `json:"ticketId"`
	CurrentStatus domain.Status         `json:"currentStatus"`
	History       []domain.StatusRecord `json:"history"`
}

// BatchEntry is one ticket's entry in a batch status response.
type BatchEntry struct {
	CurrentStatus domain.Status `json:"currentStatus"`
	LastUpdated   *time.Time    `json:"lastUpdated"`
}

// HistoryQuery filters a history request. Zero values are omitted.
type HistoryQuery struct {
	Limit     int
	StartDate *time.Time
	EndDate   *time.Time
}

// Client talks to the remote status authority. Requests carry
// `Authorization: ApiKey <key>` when a key is configured; otherwise a
// short-lived signed service token is sent as a bearer when a JWT secret is
// available.
type Client struct {
	baseURL    string
	apiKey     string
	signer     *tokenSigner
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs the authority client with a bounded request timeout.
func NewClient(cfg config.AuthorityConfig, serviceName string, logger *zap.Logger) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
	}
	if cfg.APIKey == "" && cfg.JWTSecret != "" {
		c.signer = newTokenSigner(cfg.JWTSecret, serviceName)
	}
	return c
}

// GetStatus fetches the current status and history for one ticket.
func (c *Client) GetStatus(ctx context.Context, ticketID string) (*StatusSnapshot, error) {
	var snapshot StatusSnapshot
	if err := c.doJSON(ctx, http.MethodGet, "/status/"+url.PathEscape(ticketID), nil, nil, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.TicketID == "" {
		snapshot.TicketID = ticketID
	}
	return &snapshot, nil
}

// UpdateStatus persists a status change as the write of record.
func (c *Client) UpdateStatus(ctx context.Context, ticketID string, status domain.Status, updatedBy, reason string) (*StatusSnapshot, error) {
	body := map[string]string{
		"status":    string(status),
		"updatedBy": updatedBy,
		"reason":    reason,
	}
	var snapshot StatusSnapshot
	if err := c.doJSON(ctx, http.MethodPost, "/status/"+url.PathEscape(ticketID)+"/update", nil, body, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.TicketID == "" {
		snapshot.TicketID = ticketID
	}
	return &snapshot, nil
}

// History fetches a ticket's status history with optional filters.
func (c *Client) History(ctx context.Context, ticketID string, query HistoryQuery) ([]domain.StatusRecord, error) {
	params := url.Values{}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.StartDate != nil {
		params.Set("startDate", query.StartDate.Format(time.RFC3339))
	}
	if query.EndDate != nil {
		params.Set("endDate", query.EndDate.Format(time.RFC3339))
	}

	var history []domain.StatusRecord
	if err := c.doJSON(ctx, http.MethodGet, "/status/"+url.PathEscape(ticketID)+"/history", params, nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// BatchStatus fetches current status for many tickets in one round trip.
func (c *Client) BatchStatus(ctx context.Context, ticketIDs []string) (map[string]BatchEntry, error) {
	body := map[string][]string{"ticketIds": ticketIDs}
	var entries map[string]BatchEntry
	if err := c.doJSON(ctx, http.MethodPost, "/status/batch", nil, body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// StatusUpdates polls for status records newer than the since watermark.
func (c *Client) StatusUpdates(ctx context.Context, ticketIDs []string, since *time.Time) ([]domain.StatusRecord, error) {
	params := url.Values{}
	if since != nil {
		params.Set("since", since.Format(time.RFC3339))
	}
	body := map[string][]string{"ticketIds": ticketIDs}

	var response struct {
		Updates []domain.StatusRecord `json:"updates"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/status/updates", params, body, &response); err != nil {
		return nil, err
	}
	return response.Updates, nil
}

// Ping probes the authority's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		c.logger.Warn("service token signing failed", zap.Error(err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("status authority returned %d for %s %s", resp.StatusCode, method, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
		return nil
	}
	if c.signer != nil {
		token, err := c.signer.Sign()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}
