package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/sadnxai/chatlink/internal/model"
)

// DefaultListLimit is the page size used when ListSessions gets limit <= 0.
const DefaultListLimit = 50

// ErrEmptySessionID is returned by calls that need a session id and got "".
var ErrEmptySessionID = errors.New("session id is empty")

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}

// CreateSession creates an empty session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var resp CreateSessionResponse
	if err := c.post(ctx, "/sessions", nil, &resp); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("create session: %w", ErrEmptySessionID)
	}
	return resp.SessionID, nil
}

// ListSessions returns one page of sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context, limit, offset int) ([]model.SessionSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var resp SessionsResponse
	if err := c.get(ctx, "/sessions", query, &resp); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return resp.Sessions, nil
}

// GetSession returns the full state of one session.
func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}

	var s model.Session
	if err := c.get(ctx, sessionPath(id), nil, &s); err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &s, nil
}

// DeleteSession deletes one session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptySessionID
	}

	var resp DeleteResponse
	if err := c.delete(ctx, sessionPath(id), &resp); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if !resp.Deleted {
		return fmt.Errorf("delete session %s: not deleted", id)
	}
	return nil
}

// Health reports the service's liveness response.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &resp, nil
}
