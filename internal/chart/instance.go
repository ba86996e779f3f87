// Package chart builds the per-chart context: one renderer, one scheduler and
// the managers that operate on them, wired together explicitly so several
// charts never share state.
package chart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tv_overlay/internal/creation"
	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/metrics"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/relay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
	"github.com/dgnsrekt/tv_overlay/internal/template"
	"github.com/dgnsrekt/tv_overlay/internal/undo"
)

// DefaultPendingApplyTimeout bounds how long a theme waits for the renderer.
const DefaultPendingApplyTimeout = 5 * time.Second

// Config wires an Instance. Renderer and Scheduler are required.
type Config struct {
	Name      string
	Renderer  renderer.Renderer
	Scheduler frame.Scheduler
	Watcher   projection.ViewportWatcher
	PaneID    string

	PollInterval        time.Duration
	PendingApplyTimeout time.Duration
	MaxHistory          int
	HitPadding          float64
	Precision           int32
	SnapToBars          bool
	Styles              map[overlay.OverlayType]overlay.OverlayStyle
	DefaultSymbol       overlay.SymbolKey

	Store   savestore.Store
	Journal undo.Journal
	Broker  *relay.Broker
	Metrics *metrics.Metrics
}

// Instance is one chart. Every method must run on the chart's scheduler.
type Instance struct {
	cfg   Config
	r     renderer.Renderer
	sched frame.Scheduler
	queue *frame.Queue

	state     *savestore.State
	proj      *projection.Manager
	drawings  *drawing.Manager
	creation  *creation.Manager
	history   *undo.Manager
	relay     *relay.Relay
	templates []renderer.Template

	ready    bool
	pending  *pendingTheme
	disposed bool
}

// New wires the managers for one chart. The instance is not ready until
// Ready registers the templates with the renderer.
func New(cfg Config) *Instance {
	if cfg.Name == "" {
		cfg.Name = "main"
	}
	if cfg.PendingApplyTimeout <= 0 {
		cfg.PendingApplyTimeout = DefaultPendingApplyTimeout
	}
	i := &Instance{
		cfg:   cfg,
		r:     cfg.Renderer,
		sched: cfg.Scheduler,
		queue: frame.NewQueue(cfg.Scheduler),
		state: savestore.NewState(overlay.NormalizeSymbolString(string(cfg.DefaultSymbol))),
	}

	i.proj = projection.NewManager(projection.Config{
		Renderer:     cfg.Renderer,
		Scheduler:    cfg.Scheduler,
		Watcher:      cfg.Watcher,
		PollInterval: cfg.PollInterval,
		PaneID:       cfg.PaneID,
		Metrics:      cfg.Metrics,
	})
	i.drawings = drawing.NewManager(i.proj, cfg.Metrics)
	i.proj.SetSource(i.drawings)

	i.creation = creation.NewManager(creation.Config{
		Renderer:   cfg.Renderer,
		Drawings:   i.drawings,
		PaneID:     cfg.PaneID,
		Precision:  cfg.Precision,
		SnapToBars: cfg.SnapToBars,
		Styles:     cfg.Styles,
	})
	i.history = undo.NewManager(undo.Config{
		MaxHistory:    cfg.MaxHistory,
		Overlays:      i.drawings,
		Indicators:    i,
		CurrentSymbol: i.state.CurrentSymbol,
		Metrics:       cfg.Metrics,
		Journal:       cfg.Journal,
	})
	i.templates = template.Builtins(template.Options{HitPadding: cfg.HitPadding})

	if cfg.Broker != nil {
		i.relay = relay.NewRelay(cfg.Name, cfg.Broker)
		i.relay.Attach(relay.Sources{Projection: i.proj, Drawings: i.drawings, History: i.history})
	}
	return i
}

func (i *Instance) Name() string                    { return i.cfg.Name }
func (i *Instance) Renderer() renderer.Renderer     { return i.r }
func (i *Instance) Scheduler() frame.Scheduler      { return i.sched }
func (i *Instance) State() *savestore.State         { return i.state }
func (i *Instance) Projection() *projection.Manager { return i.proj }
func (i *Instance) Drawings() *drawing.Manager      { return i.drawings }
func (i *Instance) Creation() *creation.Manager     { return i.creation }
func (i *Instance) History() *undo.Manager          { return i.history }
func (i *Instance) IsReady() bool                   { return i.ready }

// Ready registers the overlay templates, renders the active symbol and
// applies a theme that is still pending.
func (i *Instance) Ready(ctx context.Context) error {
	if i.disposed {
		return fmt.Errorf("chart %s is disposed", i.cfg.Name)
	}
	if i.ready {
		return nil
	}
	for _, t := range i.templates {
		if err := i.r.RegisterTemplate(ctx, t); err != nil {
			return overlay.NewError(overlay.CodeRendererFailure, fmt.Sprintf("register template %s", t.Name), err)
		}
	}
	i.ready = true
	slog.Info("chart ready", "chart", i.cfg.Name, "templates", len(i.templates))
	if sym := i.state.CurrentSymbol(); !sym.IsZero() {
		i.drawings.SetCurrentSymbol(ctx, sym)
	}
	i.applyPending(ctx)
	return nil
}

// SetSymbol switches the active symbol in the save-state and the drawing
// store together.
func (i *Instance) SetSymbol(ctx context.Context, symbol overlay.SymbolKey) overlay.SymbolKey {
	key := overlay.NormalizeSymbolString(string(symbol))
	i.state.SetCurrentSymbol(key)
	i.drawings.SetCurrentSymbol(ctx, key)
	return key
}

// SetTimeframe records the timeframe and re-projects.
func (i *Instance) SetTimeframe(tf string) {
	i.state.SetTimeframe(tf)
	i.proj.OnTimeframeChange()
}

// CreateOverlay creates an overlay and records it for undo when it was
// stored on the active symbol. Overlays filed under another symbol are not
// recorded since undo replays against the active symbol.
func (i *Instance) CreateOverlay(ctx context.Context, t overlay.OverlayType, points []overlay.OverlayPoint, opts creation.Options) (overlay.DataSpaceOverlay, error) {
	o, err := i.creation.CreateOverlay(ctx, t, points, opts)
	if err != nil {
		return o, err
	}
	if d, ok := i.drawings.GetDrawing(o.ID); ok && i.onCurrentSymbol(d.SymbolKey) {
		i.record(undo.AddOverlay, d)
	}
	return o, nil
}

// RemoveOverlay deletes an overlay from the given symbol, or from the
// active symbol when symbol is empty. Only removals from the active symbol
// are recorded for undo.
func (i *Instance) RemoveOverlay(ctx context.Context, symbol overlay.SymbolKey, id string) error {
	if symbol.IsZero() {
		symbol = i.drawings.CurrentSymbol()
	}
	var removed *overlay.Drawing
	for _, d := range i.drawings.GetDrawingsForSymbol(symbol) {
		if d.ID == id {
			removed = &d
			break
		}
	}
	if err := i.creation.RemoveStoredDataSpaceOverlay(ctx, symbol, id); err != nil {
		return err
	}
	if removed != nil && i.onCurrentSymbol(symbol) {
		i.record(undo.RemoveOverlay, *removed)
	}
	return nil
}

func (i *Instance) onCurrentSymbol(symbol overlay.SymbolKey) bool {
	cur := i.drawings.CurrentSymbol()
	return !cur.IsZero() && overlay.NormalizeSymbolString(string(symbol)) == cur
}

func (i *Instance) record(t undo.ActionType, d overlay.Drawing) {
	if _, err := i.history.AddAction(undo.Action{Type: t, Data: undo.Data{Overlay: &d}}); err != nil {
		slog.Warn("history record failed", "type", t, "drawing_id", d.ID, "error", err)
	}
}

// Dispose tears down the viewport watcher, pending frames, relay
// subscriptions and a pending theme. The renderer is left to its owner.
func (i *Instance) Dispose() {
	if i.disposed {
		return
	}
	if i.relay != nil {
		i.relay.Detach()
	}
	i.dropPending()
	i.proj.Dispose()
	i.disposed = true
	slog.Info("chart disposed", "chart", i.cfg.Name)
}

func (i *Instance) Disposed() bool { return i.disposed }
