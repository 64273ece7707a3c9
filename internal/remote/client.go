// Package remote implements the HTTP client for the remote replication
// endpoint. It translates transport and HTTP failures into the sync
// engine's error taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalambet/doselog/internal/storage"
	"github.com/kalambet/doselog/internal/syncer"
)

// Client pushes outbox batches to the remote service. It implements
// syncer.RemoteApplier.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the given replication endpoint and bearer
// credential. A nil httpClient gets a 15s-timeout default.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}
}

type wireEntry struct {
	ID        int64           `json:"id"`
	TableName string          `json:"table_name"`
	RowID     string          `json:"row_id"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

type applyRequest struct {
	Entries []wireEntry `json:"entries"`
}

type applyResponse struct {
	Results []syncer.EntryResult `json:"results"`
}

// Apply POSTs the ordered batch to /v1/replicate. The remote applies each
// entry idempotently keyed by (table_name, row_id, operation) and answers
// per entry.
func (c *Client) Apply(ctx context.Context, entries []storage.OutboxEntry) ([]syncer.EntryResult, error) {
	wire := make([]wireEntry, len(entries))
	for i, e := range entries {
		wire[i] = wireEntry{
			ID:        e.ID,
			TableName: e.TableName,
			RowID:     e.RowID,
			Operation: e.Operation,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(applyRequest{Entries: wire})
	if err != nil {
		return nil, fmt.Errorf("marshalling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/replicate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &syncer.NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &syncer.AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &syncer.RemoteError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var parsed applyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding replication response: %w", err)
	}
	return parsed.Results, nil
}
