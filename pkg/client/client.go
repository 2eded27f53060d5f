// Package client is the typed HTTP client for the driftboard API. It
// implements the interfaces the sync engine consumes: board fetch and
// replace, presence announcements, capability lookup, assist and plan
// operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	derrors "github.com/driftboard/driftboard/internal/errors"
	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/requestid"
)

// Client talks to one driftboard server on behalf of one user.
type Client struct {
	baseURL     string
	httpc       *http.Client
	apiKey      string
	userID      string
	displayName string
	logger      zerolog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithIdentity sets the user this client announces presence as.
func WithIdentity(userID, displayName string) Option {
	return func(c *Client) {
		c.userID = userID
		c.displayName = displayName
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger.With().Str("component", "api_client").Logger() }
}

// New creates a client for the given base URL (scheme://host:port).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBoard returns the authoritative snapshot of a board.
func (c *Client) FetchBoard(ctx context.Context, boardID string) (model.Board, error) {
	var out boardResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/boards/"+boardID, nil, &out); err != nil {
		return model.Board{}, err
	}
	return out.Board, nil
}

// ReplaceBoard replaces the whole board document. basis is the stamp the
// edit was built on; the server answers 409 when it no longer matches, which
// surfaces here as ErrVersionConflict.
func (c *Client) ReplaceBoard(ctx context.Context, b model.Board, basis int64) error {
	req := replaceBoardRequest{Board: b, Basis: basis}
	return c.do(ctx, http.MethodPut, "/api/v1/boards/"+b.ID, req, nil)
}

// ListWorkspaces returns every workspace visible to the caller.
func (c *Client) ListWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	var out workspaceListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/workspaces", nil, &out); err != nil {
		return nil, err
	}
	return out.Workspaces, nil
}

// GetWorkspace returns one workspace with its boards and feeds.
func (c *Client) GetWorkspace(ctx context.Context, workspaceID string) (model.Workspace, error) {
	var out workspaceResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/workspaces/"+workspaceID, nil, &out); err != nil {
		return model.Workspace{}, err
	}
	return out.Workspace, nil
}

// CreateBoard creates a board in a workspace and returns the stored form.
func (c *Client) CreateBoard(ctx context.Context, workspaceID, id, projectName string) (model.Board, error) {
	req := createBoardRequest{ID: id, ProjectName: projectName}
	var out boardResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/workspaces/"+workspaceID+"/boards", req, &out); err != nil {
		return model.Board{}, err
	}
	return out.Board, nil
}

// Announce sends a presence heartbeat for the configured identity.
func (c *Client) Announce(ctx context.Context, workspaceID, boardID string) error {
	req := presenceRequest{
		WorkspaceID: workspaceID,
		BoardID:     boardID,
		UserID:      c.userID,
		DisplayName: c.displayName,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/presence", req, nil)
}

// Leave withdraws the configured identity from a workspace.
func (c *Client) Leave(ctx context.Context, workspaceID, boardID string) error {
	req := presenceRequest{
		WorkspaceID: workspaceID,
		BoardID:     boardID,
		UserID:      c.userID,
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/presence", req, nil)
}

// Capabilities returns the capability ids granted to this session.
func (c *Client) Capabilities(ctx context.Context) ([]string, error) {
	var out capabilitiesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/capabilities", nil, &out); err != nil {
		return nil, err
	}
	return out.Capabilities, nil
}

// Assist asks the server to analyze a board.
func (c *Client) Assist(ctx context.Context, workspaceID, boardID string) (json.RawMessage, error) {
	req := assistRequest{BoardID: boardID}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/v1/workspaces/"+workspaceID+"/assist", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchPlan returns the plan attached to a goal.
func (c *Client) FetchPlan(ctx context.Context, goalID string) (model.PlannerPlan, error) {
	var out planResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/plans/"+goalID, nil, &out); err != nil {
		return model.PlannerPlan{}, err
	}
	return out.Plan, nil
}

// SubmitResume replays a resume token verbatim. The token is consumed
// server-side whether or not the workflow continues cleanly.
func (c *Client) SubmitResume(ctx context.Context, goalID string, token []byte) error {
	req := resumeRequest{Token: token}
	return c.do(ctx, http.MethodPost, "/api/v1/plans/"+goalID+"/resume", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", requestid.FromContext(ctx))
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userID != "" {
		req.Header.Set("X-Actor-ID", c.userID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &derrors.APIError{Endpoint: path, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &derrors.APIError{Endpoint: path, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
		}
		return nil
	}

	return c.errorFromResponse(path, resp)
}

// errorFromResponse maps HTTP failures onto the core's error taxonomy so
// callers can branch with errors.Is.
func (c *Client) errorFromResponse(path string, resp *http.Response) error {
	var prob struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &prob)
	msg := prob.Detail
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	apiErr := &derrors.APIError{Endpoint: path, StatusCode: resp.StatusCode, Message: msg}
	switch resp.StatusCode {
	case http.StatusConflict:
		if prob.Type == "version_conflict" {
			apiErr.Err = derrors.ErrVersionConflict
		} else {
			apiErr.Err = derrors.ErrInvalidInput
		}
	case http.StatusUnprocessableEntity:
		apiErr.Err = derrors.ErrInvalidInput
	case http.StatusNotFound:
		apiErr.Err = derrors.ErrNotFound
	case http.StatusUnauthorized:
		apiErr.Err = derrors.ErrAuthFailure
	case http.StatusForbidden:
		apiErr.Err = derrors.ErrDenied
	case http.StatusTooManyRequests:
		apiErr.Err = derrors.ErrRateLimit
	case http.StatusServiceUnavailable:
		apiErr.Err = derrors.ErrUnavailable
	}

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("api error")
	return apiErr
}

type boardResponse struct {
	Board model.Board `json:"board"`
}

type replaceBoardRequest struct {
	Board model.Board `json:"board"`
	Basis int64       `json:"basis"`
}

type createBoardRequest struct {
	ID          string `json:"id,omitempty"`
	ProjectName string `json:"projectName"`
}

type workspaceListResponse struct {
	Workspaces []model.Workspace `json:"workspaces"`
}

type workspaceResponse struct {
	Workspace model.Workspace `json:"workspace"`
}

type presenceRequest struct {
	WorkspaceID string `json:"workspaceId"`
	BoardID     string `json:"boardId,omitempty"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type capabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

type assistRequest struct {
	BoardID string `json:"boardId"`
}

type planResponse struct {
	Plan model.PlannerPlan `json:"plan"`
}

type resumeRequest struct {
	Token []byte `json:"token"`
}
