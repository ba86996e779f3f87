// Package cdprender drives a chart library hosted in a browser page over the
// Chrome DevTools Protocol and exposes it as a renderer.Renderer.
package cdprender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/jpillora/backoff"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

const (
	CodeCDPUnavailable   = "CDP_UNAVAILABLE"
	CodeEvalFailure      = "EVAL_FAILURE"
	CodeEvalTimeout      = "EVAL_TIMEOUT"
	CodeChartUnavailable = "CHART_UNAVAILABLE"
)

// DefaultChartExpr resolves the chart instance on the page.
const DefaultChartExpr = "window.__overlayChart"

// Config selects the browser and the page to drive.
type Config struct {
	// CDPURL is the DevTools HTTP endpoint, e.g. http://127.0.0.1:9222.
	CDPURL string
	// TabFilter is a substring the page URL must contain. Empty matches the
	// first page.
	TabFilter   string
	EvalTimeout time.Duration
	ChartExpr   string
	// ReconnectAttempts bounds the reconnect loop of a retried eval.
	ReconnectAttempts int
}

// Client implements renderer.Renderer by evaluating JavaScript against the
// chart object of one page.
type Client struct {
	cfg  Config
	wire *wire

	mu        sync.Mutex
	targetID  target.ID
	sessionID string
	templates map[string]renderer.Template
	size      renderer.Size
}

var _ renderer.Renderer = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = 5 * time.Second
	}
	if cfg.ChartExpr == "" {
		cfg.ChartExpr = DefaultChartExpr
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 3
	}
	return &Client{
		cfg:       cfg,
		wire:      newWire(cfg.CDPURL),
		templates: make(map[string]renderer.Template),
	}
}

// Connect dials the browser and attaches to the chart page.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.sessionID != "" && c.wire.connected() {
		return nil
	}
	if err := c.wire.dial(ctx); err != nil {
		return overlay.NewError(CodeCDPUnavailable, "connect to browser", err)
	}
	pages, err := c.wire.pages(ctx)
	if err != nil {
		return overlay.NewError(CodeCDPUnavailable, "list targets", err)
	}
	var picked *target.Info
	for _, p := range pages {
		if c.cfg.TabFilter == "" || strings.Contains(p.URL, c.cfg.TabFilter) {
			picked = p
			break
		}
	}
	if picked == nil {
		return overlay.NewError(CodeCDPUnavailable, fmt.Sprintf("no page matches %q", c.cfg.TabFilter), nil)
	}
	sessionID, err := c.wire.attach(ctx, picked.TargetID)
	if err != nil {
		return overlay.NewError(CodeCDPUnavailable, "attach to target", err)
	}
	c.targetID = picked.TargetID
	c.sessionID = sessionID
	slog.Info("cdp renderer attached", "target_id", picked.TargetID, "url", picked.URL)
	return nil
}

// Close detaches from the page and closes the websocket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" && c.wire.connected() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.wire.detach(ctx, c.sessionID); err != nil {
			slog.Debug("cdp detach failed", "error", err)
		}
		cancel()
	}
	c.sessionID = ""
	c.targetID = ""
	c.wire.close()
	return nil
}

func (c *Client) reset() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
	c.wire.close()
}

func (c *Client) reconnect(ctx context.Context) error {
	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Factor: 2}
	var err error
	for i := 0; i < c.cfg.ReconnectAttempts; i++ {
		if err = c.Connect(ctx); err == nil {
			return nil
		}
		d := b.Duration()
		slog.Debug("cdp reconnect failed", "attempt", i+1, "retry_in", d, "error", err)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

type envelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

// eval runs body inside the chart wrapper and decodes the envelope's data
// into out. A transient transport failure is retried once after reconnecting.
func (c *Client) eval(ctx context.Context, body string, out any) error {
	err := c.evalOnce(ctx, body, out)
	if err == nil || !shouldRetry(err) {
		return err
	}
	slog.Debug("cdp eval retrying after reconnect", "error", err)
	c.reset()
	if rerr := c.reconnect(ctx); rerr != nil {
		return overlay.NewError(CodeCDPUnavailable, "reconnect", rerr)
	}
	return c.evalOnce(ctx, body, out)
}

func (c *Client) evalOnce(ctx context.Context, body string, out any) error {
	c.mu.Lock()
	if err := c.connectLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.EvalTimeout)
	defer cancel()

	raw, err := c.wire.evaluate(ctx, sessionID, wrapChart(c.cfg.ChartExpr, body))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return overlay.NewError(CodeEvalTimeout, "evaluate", err)
		}
		return overlay.NewError(CodeEvalFailure, "evaluate", err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return overlay.NewError(CodeEvalFailure, "decode envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return overlay.NewError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return overlay.NewError(CodeEvalFailure, "decode result", err)
	}
	return nil
}

var transientHints = []string{
	"not connected",
	"connection closed",
	"session with given id not found",
	"no session with given id",
	"target closed",
	"broken pipe",
	"use of closed network connection",
	"execution context was destroyed",
}

func shouldRetry(err error) bool {
	if overlay.HasCode(err, CodeCDPUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, h := range transientHints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// wrapChart builds an async IIFE that resolves the chart, runs body with it in
// scope as `chart` and always resolves to a JSON envelope string. body
// returns the payload.
func wrapChart(chartExpr, body string) string {
	return `(async () => {
  try {
    const chart = (() => { try { return ` + chartExpr + `; } catch (_) { return null; } })();
    if (!chart) {
      return JSON.stringify({ok: false, error_code: "` + CodeChartUnavailable + `", error_message: "chart instance not found"});
    }
    const data = await (async () => {
` + body + `
    })();
    return JSON.stringify({ok: true, data: data === undefined ? null : data});
  } catch (err) {
    return JSON.stringify({ok: false, error_code: "` + CodeEvalFailure + `", error_message: String(err && err.message || err)});
  }
})()`
}

func jsJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
