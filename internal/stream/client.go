package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftboard/driftboard/internal/model"
	"github.com/driftboard/driftboard/internal/retry"
)

// State is the stream client's connection state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "connecting"
	}
}

// Handler receives demultiplexed events. Nil callbacks are skipped.
type Handler struct {
	BoardUpdated func(boardID string, lastUpdated int64)
	Activity     func(ev model.ActivityEvent)
	Notification func(ev model.NotificationEvent)
	Presence     func(users []model.PresenceUser)
	// Degraded fires once per outage when consecutive connect failures
	// reach the threshold.
	Degraded func(failures int)
}

// Conn is the read side of one established stream connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// DialFunc establishes a stream connection for a workspace.
type DialFunc func(ctx context.Context, workspaceID string) (Conn, error)

// Dialer returns a DialFunc speaking websocket to a driftboard server.
// baseURL is e.g. "ws://host:8081".
func Dialer(baseURL string, header http.Header) DialFunc {
	return func(ctx context.Context, workspaceID string) (Conn, error) {
		url := fmt.Sprintf("%s/ws/workspaces/%s", strings.TrimRight(baseURL, "/"), workspaceID)
		c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: status %d: %w", url, resp.StatusCode, err)
			}
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return wsConn{c}, nil
	}
}

type wsConn struct{ *websocket.Conn }

func (w wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.Conn.ReadMessage()
	return data, err
}

// ClientConfig tunes the reconnect loop.
type ClientConfig struct {
	Backoff           retry.Config
	DegradedThreshold int
}

// DefaultClientConfig returns the reference reconnect policy.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Backoff: retry.Config{
			BaseDelay: 500 * time.Millisecond,
			MaxDelay:  30 * time.Second,
			Jitter:    true,
		},
		DegradedThreshold: 5,
	}
}

// Client maintains one persistent push channel per active workspace and
// routes decoded events to its handler.
//
// State machine: connecting → open → closed|error → connecting, with
// exponential backoff between attempts. Disconnects are silent; only a run
// of failures past the threshold surfaces as a degraded callback.
type Client struct {
	dial    DialFunc
	handler Handler
	cfg     ClientConfig
	state   atomic.Int32
	logger  zerolog.Logger
}

// NewClient creates a stream client.
func NewClient(dial DialFunc, handler Handler, cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = DefaultClientConfig().DegradedThreshold
	}
	if cfg.Backoff.BaseDelay <= 0 {
		cfg.Backoff = DefaultClientConfig().Backoff
	}
	return &Client{
		dial:    dial,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With().Str("component", "stream_client").Logger(),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Run connects and keeps the stream alive until ctx is cancelled. It never
// returns an error: every failure feeds the reconnect loop.
func (c *Client) Run(ctx context.Context, workspaceID string) {
	defer c.state.Store(int32(StateClosed))

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.state.Store(int32(StateConnecting))

		conn, err := c.dial(ctx, workspaceID)
		if err != nil {
			failures++
			c.logger.Debug().Err(err).Int("failures", failures).Msg("stream connect failed")
			if failures == c.cfg.DegradedThreshold && c.handler.Degraded != nil {
				c.handler.Degraded(failures)
			}
			if !c.sleep(ctx, failures-1) {
				return
			}
			continue
		}

		c.state.Store(int32(StateOpen))
		failures = 0
		c.logger.Info().Str("workspace_id", workspaceID).Msg("stream open")

		c.readLoop(ctx, conn)
		conn.Close()
		c.state.Store(int32(StateClosed))

		if ctx.Err() != nil {
			return
		}
		c.logger.Debug().Str("workspace_id", workspaceID).Msg("stream closed, reconnecting")
		failures++
		if !c.sleep(ctx, 0) {
			return
		}
	}
}

func (c *Client) sleep(ctx context.Context, attempt int) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.Backoff.Delay(attempt)):
		return true
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) {
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes and routes one raw message. Malformed payloads are
// dropped with a diagnostic log; they never close the connection.
func (c *Client) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("malformed stream message dropped")
		return
	}

	switch env.Type {
	case EventBoardUpdated:
		var p BoardUpdatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("malformed board-updated payload dropped")
			return
		}
		if c.handler.BoardUpdated != nil {
			c.handler.BoardUpdated(p.BoardID, p.LastUpdated)
		}
	case EventActivity:
		var ev model.ActivityEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("malformed activity payload dropped")
			return
		}
		if c.handler.Activity != nil {
			c.handler.Activity(ev)
		}
	case EventNotification:
		var ev model.NotificationEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("malformed notification payload dropped")
			return
		}
		if c.handler.Notification != nil {
			c.handler.Notification(ev)
		}
	case EventPresence:
		var p PresencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("malformed presence payload dropped")
			return
		}
		if c.handler.Presence != nil {
			if p.Users == nil {
				p.Users = []model.PresenceUser{}
			}
			c.handler.Presence(p.Users)
		}
	default:
		c.logger.Debug().Str("type", string(env.Type)).Msg("unknown stream event dropped")
	}
}
