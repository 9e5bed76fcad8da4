// Package stream maintains the websocket subscription to the server's
// change feed. It reconnects with capped exponential backoff and reports
// connection state so the caller can trigger a full resync after a gap.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/basket/dlboard/internal/record"
)

// Event types on the change feed, matching the server's wire protocol.
const (
	TypeCreate   = 1
	TypeUpdate   = 2
	TypeDelete   = 3
	TypeProgress = 4
)

// Event is a single change-feed message. Data stays raw until the
// handler decodes it for the event type at hand.
type Event struct {
	Type int             `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives each decoded event. Errors from the handler are
// logged, not fatal; the feed keeps flowing.
type Handler func(ev Event) error

// StateFunc is called on every connect and disconnect. err is nil on
// connect and carries the disconnect cause otherwise.
type StateFunc func(connected bool, err error)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// Client owns the websocket connection lifecycle.
type Client struct {
	url     string
	token   string
	handler Handler
	onState StateFunc
	logger  *slog.Logger
}

// NewClient builds a stream client for the given ws:// or wss:// URL.
// onState may be nil.
func NewClient(url, token string, handler Handler, onState StateFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if onState == nil {
		onState = func(bool, error) {}
	}
	return &Client{url: url, token: token, handler: handler, onState: onState, logger: logger}
}

// Run connects and consumes events until ctx is canceled, reconnecting
// on any failure. It only returns the context error.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		connected, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			// The previous connection was established, so this drop is
			// fresh; don't carry backoff over from earlier failures.
			backoff = initialBackoff
		}
		c.onState(false, err)
		c.logger.Warn("stream disconnected, retrying", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce dials and consumes events until the connection drops. The
// returned bool reports whether the dial succeeded at all.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = http.Header{
			"Authorization": []string{"Bearer " + strings.TrimSpace(c.token)},
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.url, opts)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	c.onState(true, nil)
	c.logger.Info("stream connected", "url", c.url)

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return true, fmt.Errorf("read event: %w", err)
		}
		if err := c.handler(ev); err != nil {
			c.logger.Error("stream event handler failed", "type", ev.Type, "error", err)
		}
	}
}

// DecodeRecords extracts the raw records from a CREATE or UPDATE event.
// The server sends either a single object or an array of them.
func DecodeRecords(data json.RawMessage) ([]record.Raw, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, errors.New("empty event payload")
	}
	if strings.HasPrefix(trimmed, "[") {
		var raws []record.Raw
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		return raws, nil
	}
	var raw record.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return []record.Raw{raw}, nil
}

// DecodeIDs extracts the id list from a DELETE event. Accepts either a
// bare array of ids or an object with an "ids" field.
func DecodeIDs(data json.RawMessage) ([]int64, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("decode id array: %w", err)
		}
		return ids, nil
	}
	var payload struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode id payload: %w", err)
	}
	return payload.IDs, nil
}
