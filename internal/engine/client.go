package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrRejected means the engine answered a submitted move with a non-200
// status, e.g. because it is not that side's turn. The engine is reachable.
var ErrRejected = errors.New("move rejected")

// Client talks to one engine's HTTP control surface.
// Every method issues exactly one request and never retries.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Logger     *slog.Logger // Optional logger for client operations
	HTTPClient *http.Client // Optional; overrides Timeout when set
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 5 * time.Second,
	}
}

// New creates an engine client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  hc,
		logger:  config.Logger.With("engine", config.BaseURL),
	}
}

// BaseURL returns the engine address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// IsRunning probes GET /. Connection failures report false.
func (c *Client) IsRunning(ctx context.Context) bool {
	status, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		c.logger.Debug("Engine unreachable", "error", err)
		return false
	}
	return status == http.StatusOK
}

// SetTimeLimit sets the engine's autoplay time budget.
func (c *Client) SetTimeLimit(ctx context.Context, limit int) bool {
	return c.ack(ctx, http.MethodPatch, "/chess/autoplay/timelimit/"+strconv.Itoa(limit))
}

// StartAutoplay makes the engine play color on its own.
func (c *Client) StartAutoplay(ctx context.Context, color Color) bool {
	return c.ack(ctx, http.MethodPatch, "/chess/autoplay/"+url.PathEscape(string(color)))
}

// ResetBoard puts the engine's board back to the initial position.
func (c *Client) ResetBoard(ctx context.Context) bool {
	return c.ack(ctx, http.MethodPut, "/chess/reset")
}

// LastMove fetches the engine's last move. ok is false when the engine
// answers with anything but 200; err is set only on transport or decode
// failures.
func (c *Client) LastMove(ctx context.Context) (Move, bool, error) {
	var m Move
	status, err := c.do(ctx, http.MethodGet, "/chess/autoplay/lastMove", &m)
	if err != nil {
		return Move{}, false, err
	}
	if status != http.StatusOK {
		return Move{}, false, nil
	}
	return m, true, nil
}

// SubmitMove imposes the opponent's move from -> to on the engine. A non-200
// answer returns an error wrapping ErrRejected; any other error is a
// transport or decode failure.
func (c *Client) SubmitMove(ctx context.Context, from, to string) (MoveAck, error) {
	var ack MoveAck
	path := "/chess/figure/move/" + url.PathEscape(from) + "/" + url.PathEscape(to)
	status, err := c.do(ctx, http.MethodPatch, path, &ack)
	if err != nil {
		return MoveAck{}, err
	}
	if status != http.StatusOK {
		return MoveAck{}, fmt.Errorf("%w: %s%s: HTTP %d", ErrRejected, from, to, status)
	}
	return ack, nil
}

func (c *Client) ack(ctx context.Context, method, path string) bool {
	status, err := c.do(ctx, method, path, nil)
	if err != nil {
		c.logger.Warn("Engine request failed", "method", method, "path", path, "error", err)
		return false
	}
	if status != http.StatusOK {
		c.logger.Warn("Engine rejected request", "method", method, "path", path, "status", status)
		return false
	}
	return true
}

// do performs one request. When out is non-nil and the status is 200 the
// body is decoded into it; an empty body leaves out untouched.
func (c *Client) do(ctx context.Context, method, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if out != nil {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil || resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return resp.StatusCode, nil
}
