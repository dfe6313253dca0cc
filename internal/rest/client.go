// Package rest is the room server's HTTP API: account lookup, room
// management and the per-room history feed.
package rest

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
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/fault"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// Client calls the room server on behalf of one username.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger

	mu       sync.RWMutex
	username string
}

// New creates a client for the server at baseURL. A zero timeout uses
// DefaultTimeout.
func New(baseURL, username string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		base:     u,
		username: username,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.Named("rest"),
	}, nil
}

// WithUsername returns a client sharing the same transport that sends
// username instead.
func (c *Client) WithUsername(username string) *Client {
	return &Client{base: c.base, http: c.http, logger: c.logger, username: username}
}

// SetUsername changes the X-Username value for later calls.
func (c *Client) SetUsername(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

// Username returns the X-Username value sent on every call.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Me returns the account for the client's username. A 404 means the user
// does not exist.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, "get user", http.MethodGet, "/users/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateRoom creates a room owned by the client's username.
func (c *Client) CreateRoom(ctx context.Context, name string, participants []string) (*Room, error) {
	req := createRoomRequest{Name: name, ParticipantUsernames: participants}
	var r Room
	if err := c.do(ctx, "create room", http.MethodPost, "/rooms", nil, req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRoom deletes a room on the server.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, "delete room", http.MethodDelete, "/rooms/"+url.PathEscape(roomID), nil, nil, nil)
}

// FetchHistory returns up to limit of the room's most recent messages in
// whatever order the server sends them.
func (c *Client) FetchHistory(ctx context.Context, roomID string, limit int) ([]RemoteMessage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var msgs []RemoteMessage
	if err := c.do(ctx, "fetch history", http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/messages", q, nil, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []RemoteMessage{}
	}
	return msgs, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fault.Wrap(fault.Remote, op, err)
	}
	req.Header.Set("X-Username", c.Username())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("op", op), zap.Error(err))
		return fault.Wrap(fault.Remote, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("request done",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fault.HTTP(op, resp.StatusCode, errorMessage(resp.Status, raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Wrap(fault.Parse, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage picks the most useful text out of an error body. The server
// answers with {"detail": ...} or {"message": ...}; anything else falls back
// to the status line.
func errorMessage(status string, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"detail", "message", "error"} {
			v := gjson.GetBytes(body, key)
			if v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
			if v.Exists() && v.Raw != "" && v.Type != gjson.Null {
				return v.Raw
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 && !strings.ContainsAny(text, "<>") {
		return text
	}
	return status
}
