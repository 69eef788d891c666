package remote

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

	"github.com/strideapp/stride/internal/model"
)

// Client is the HTTP implementation of Store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds every remote call. Default is 15 seconds; a hung call
// blocks only the record being pushed, not the whole cycle, because the sync
// engine catches failures per record.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client (tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates an HTTP remote store client.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create implements Store.Create via POST /v1/{kind}s.
func (c *Client) Create(ctx context.Context, kind model.Kind, fields any) (Record, error) {
	body, err := c.do(ctx, http.MethodPost, c.collectionPath(kind), nil, fields)
	if err != nil {
		return Record{}, err
	}
	return DecodeRecord(body)
}

// Update implements Store.Update via PUT /v1/{kind}s/{id}. The client's
// update timestamp travels in the request body as the precondition; a 409
// response carries the server's current record.
func (c *Client) Update(ctx context.Context, kind model.Kind, id string, fields any, clientUpdatedAt time.Time) (Record, error) {
	payload := struct {
		Fields          any    `json:"fields"`
		ClientUpdatedAt string `json:"client_updated_at"`
	}{
		Fields:          fields,
		ClientUpdatedAt: clientUpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	body, err := c.do(ctx, http.MethodPut, c.recordPath(kind, id), nil, payload)
	if err != nil {
		return Record{}, err
	}
	return DecodeRecord(body)
}

// Delete implements Store.Delete via DELETE /v1/{kind}s/{id}. 404 and 410
// mean the record is already gone, which is success.
func (c *Client) Delete(ctx context.Context, kind model.Kind, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.recordPath(kind, id), nil, nil)
	return err
}

// ListChanges implements Store.ListChanges via GET /v1/{kind}s/changes.
func (c *Client) ListChanges(ctx context.Context, kind model.Kind, ownerID string, since time.Time) (Changes, error) {
	q := url.Values{"owner": {ownerID}}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}

	body, err := c.do(ctx, http.MethodGet, c.collectionPath(kind)+"/changes", q, nil)
	if err != nil {
		return Changes{}, err
	}

	var wire struct {
		Changed []json.RawMessage `json:"changed"`
		Deleted []string          `json:"deleted"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return Changes{}, fmt.Errorf("failed to decode changes response: %w", err)
	}

	changes := Changes{Deleted: wire.Deleted}
	for _, raw := range wire.Changed {
		rec, err := DecodeRecord(raw)
		if err != nil {
			// A record with no identity cannot be stored; skip it
			// rather than failing the batch.
			continue
		}
		changes.Changed = append(changes.Changed, rec)
	}
	return changes, nil
}

// ListAll implements Store.ListAll via GET /v1/{kind}s.
func (c *Client) ListAll(ctx context.Context, kind model.Kind, ownerID string) ([]Record, error) {
	q := url.Values{"owner": {ownerID}}

	body, err := c.do(ctx, http.MethodGet, c.collectionPath(kind), q, nil)
	if err != nil {
		return nil, err
	}

	var wire []json.RawMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}

	records := make([]Record, 0, len(wire))
	for _, raw := range wire {
		rec, err := DecodeRecord(raw)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) collectionPath(kind model.Kind) string {
	return "/v1/" + string(kind) + "s"
}

func (c *Client) recordPath(kind model.Kind, id string) string {
	return c.collectionPath(kind) + "/" + url.PathEscape(id)
}

// do performs one request and maps status codes to the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil

	case resp.StatusCode == http.StatusConflict:
		rec, decErr := DecodeRecord(body)
		if decErr != nil {
			return nil, fmt.Errorf("conflict response without server record: %w", decErr)
		}
		return nil, &ConflictError{Server: rec}

	case method == http.MethodDelete && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone):
		// Already gone: treated as success.
		return nil, nil

	default:
		return nil, fmt.Errorf("remote returned %s for %s %s", resp.Status, method, path)
	}
}
