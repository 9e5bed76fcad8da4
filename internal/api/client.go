// Package api is the HTTP client for the download-manager server.
// Every response arrives in the standard `{status, data, error}` envelope;
// a false status means the operation was not applied at all.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/dlboard/internal/otel"
	"github.com/basket/dlboard/internal/record"
)

// ServerError is a rejection reported inside a well-formed envelope
// (status=false). Distinct from transport errors so callers can surface
// the server's own message.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "server rejected the request"
	}
	return e.Message
}

// Client talks to the download-manager HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
}

// New creates a client for the given base URL ("http://host:port").
// An empty token disables the Authorization header.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		tracer:  nooptrace.NewTracerProvider().Tracer(otel.TracerName),
	}
}

// SetTracer enables client spans for outbound requests. The default is a
// noop tracer.
func (c *Client) SetTracer(tr trace.Tracer) {
	if tr != nil {
		c.tracer = tr
	}
}

// envelope is the server's standard response wrapper.
type envelope struct {
	Status bool            `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

// FetchDownloads performs the bulk read of all download records.
// Records come back raw; normalization happens in the store.
func (c *Client) FetchDownloads(ctx context.Context) ([]record.Raw, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/downloads", nil)
	if err != nil {
		return nil, err
	}
	var raws []record.Raw
	if err := json.Unmarshal(env.Data, &raws); err != nil {
		return nil, fmt.Errorf("decode downloads payload: %w", err)
	}
	return raws, nil
}

// BulkDelete asks the server to delete the given ids and returns the ids
// it confirms deleted. The confirmed list may be shorter than the request;
// reconciling that difference is the caller's job. A *ServerError or
// transport error means nothing was deleted.
func (c *Client) BulkDelete(ctx context.Context, ids []int64) ([]int64, error) {
	body := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}

	env, err := c.do(ctx, http.MethodPost, "/api/bulkDelete", body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		IDs *[]int64 `json:"ids"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.IDs == nil {
		// A success envelope without the confirmed-ids list is malformed;
		// treat it as total failure rather than guessing what was deleted.
		return nil, fmt.Errorf("bulk delete response missing confirmed ids")
	}
	return *payload.IDs, nil
}

// EditResult is the per-item outcome of a bulk edit.
type EditResult struct {
	Status bool   `json:"status"`
	ID     int64  `json:"id"`
	Error  string `json:"error,omitempty"`
}

// BulkEdit submits partial updates for the given records and returns the
// per-item results. Items the server rejected carry their own error;
// the batch as a whole still succeeds.
func (c *Client) BulkEdit(ctx context.Context, patches []record.Patch) ([]EditResult, error) {
	env, err := c.do(ctx, http.MethodPatch, "/api/bulkEdit", patches)
	if err != nil {
		return nil, err
	}
	var results []EditResult
	if err := json.Unmarshal(env.Data, &results); err != nil {
		return nil, fmt.Errorf("decode bulk edit results: %w", err)
	}
	return results, nil
}

// Ping checks reachability via the bulk read endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.FetchDownloads(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	ctx, span := otel.StartClientSpan(ctx, c.tracer, method+" "+path,
		otel.AttrServerURL.String(c.baseURL),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: malformed response (HTTP %d): %w", method, path, resp.StatusCode, err)
	}
	if !env.Status {
		err := &ServerError{Message: env.Error}
		span.RecordError(err)
		return nil, err
	}
	return &env, nil
}
