// Package projection keeps every rendered overlay's screen form in sync with
// its data-space anchors across viewport changes.
package projection

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/dgnsrekt/tv_overlay/internal/coords"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/metrics"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// Projection triggers.
const (
	ReasonResize     = "resize"
	ReasonViewport   = "viewport"
	ReasonTimeframe  = "timeframe"
	ReasonTimezone   = "timezone"
	ReasonPriceScale = "price_scale"
	ReasonSymbol     = "symbol"
	ReasonManual     = "manual"
)

// Event types delivered to listeners.
const (
	EventProjected      = "projected"
	EventOverlayAdded   = "overlay_added"
	EventOverlayUpdated = "overlay_updated"
	EventOverlayRemoved = "overlay_removed"
	EventDisposed       = "disposed"
)

// Source supplies the overlays that should currently be on screen, in a
// deterministic order.
type Source interface {
	ProjectionSet() []overlay.DataSpaceOverlay
}

// Event describes a projection pass or a single overlay change.
type Event struct {
	Type      string        `json:"type"`
	Reason    string        `json:"reason,omitempty"`
	OverlayID string        `json:"overlay_id,omitempty"`
	Projected int           `json:"projected"`
	Unchanged int           `json:"unchanged"`
	Culled    int           `json:"culled"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Listener receives projection events.
type Listener func(Event)

// Config wires a Manager.
type Config struct {
	Renderer     renderer.Renderer
	Scheduler    frame.Scheduler
	Watcher      ViewportWatcher
	PollInterval time.Duration
	PaneID       string
	Metrics      *metrics.Metrics
}

// Manager re-projects overlays onto the renderer. It must only be used from
// the scheduler thread.
type Manager struct {
	r       renderer.Renderer
	sched   frame.Scheduler
	watcher ViewportWatcher
	paneID  string
	metrics *metrics.Metrics

	source        Source
	pendingFrame  frame.ID
	pendingReason string
	isProjecting  bool
	disposed      bool
	cancelResize  func()

	fingerprints map[string]uint64
	listeners    map[int]Listener
	listenerIDs  []int
	nextListener int
}

// NewManager creates a manager and starts watching the viewport. When no
// watcher is configured, renderers that emit viewport events get a native
// watcher and everything else is polled.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		r:            cfg.Renderer,
		sched:        cfg.Scheduler,
		watcher:      cfg.Watcher,
		paneID:       cfg.PaneID,
		metrics:      cfg.Metrics,
		fingerprints: make(map[string]uint64),
		listeners:    make(map[int]Listener),
	}
	if m.watcher == nil {
		if n, ok := cfg.Renderer.(renderer.ViewportNotifier); ok {
			m.watcher = NewNativeWatcher(n, cfg.Scheduler)
		} else {
			m.watcher = NewPollingWatcher(cfg.Renderer, cfg.Scheduler, cfg.PollInterval)
		}
	}
	m.watcher.Start(m.RequestProjection)
	if rn, ok := cfg.Renderer.(renderer.ResizeNotifier); ok {
		m.cancelResize = rn.OnResize(func(renderer.Size) {
			m.sched.RequestFrame(func() { m.RequestProjection(ReasonResize) })
		})
	}
	return m
}

// SetSource sets where the live overlay set comes from.
func (m *Manager) SetSource(s Source) { m.source = s }

func (m *Manager) coordsContext() coords.Context {
	return coords.Context{Renderer: m.r, PaneID: m.paneID}
}

// AddOverlay pushes one overlay to the renderer immediately.
func (m *Manager) AddOverlay(ctx context.Context, o overlay.DataSpaceOverlay) error {
	return m.projectOne(ctx, o, EventOverlayAdded)
}

// UpdateOverlay re-pushes one overlay after its record changed.
func (m *Manager) UpdateOverlay(ctx context.Context, o overlay.DataSpaceOverlay) error {
	return m.projectOne(ctx, o, EventOverlayUpdated)
}

func (m *Manager) projectOne(ctx context.Context, o overlay.DataSpaceOverlay, eventType string) error {
	if m.disposed {
		return overlay.NewError(overlay.CodeRendererFailure, "projection manager disposed", nil)
	}
	proj := coords.ProjectPoints(ctx, m.coordsContext(), o.Points)
	if !proj.IsValid {
		// the renderer still gets the data-space points; screen coordinates
		// are filled in by the next pass that can project them
		proj.ScreenPoints = nil
	}
	if _, err := m.upsert(ctx, o, proj); err != nil {
		return err
	}
	m.emit(Event{Type: eventType, OverlayID: o.ID, Projected: 1})
	return nil
}

// RemoveOverlay deletes the renderer-side overlay.
func (m *Manager) RemoveOverlay(ctx context.Context, id string) error {
	delete(m.fingerprints, id)
	if m.disposed {
		return nil
	}
	if err := m.r.RemoveOverlay(ctx, id); err != nil {
		m.metrics.RendererFailed("remove")
		return overlay.NewError(overlay.CodeRendererFailure, "remove overlay "+id, err)
	}
	m.emit(Event{Type: EventOverlayRemoved, OverlayID: id})
	return nil
}

// Forget drops the cached fingerprint for id so the next push always reaches
// the renderer.
func (m *Manager) Forget(id string) { delete(m.fingerprints, id) }

// upsert creates or updates the renderer-side overlay. It reports false when
// nothing changed since the last push.
func (m *Manager) upsert(ctx context.Context, o overlay.DataSpaceOverlay, proj coords.Projection) (bool, error) {
	desc := m.descriptor(o, proj)
	fp := fingerprint(desc)
	if prev, ok := m.fingerprints[o.ID]; ok && fp != 0 && prev == fp {
		return false, nil
	}

	existing, err := m.r.GetOverlays(ctx, o.ID)
	if err != nil {
		m.metrics.RendererFailed("get")
		return false, overlay.NewError(overlay.CodeRendererFailure, "get overlay "+o.ID, err)
	}
	if len(existing) > 0 {
		if err := m.r.OverrideOverlay(ctx, desc); err != nil {
			m.metrics.RendererFailed("override")
			return false, overlay.NewError(overlay.CodeRendererFailure, "override overlay "+o.ID, err)
		}
	} else {
		if _, err := m.r.CreateOverlay(ctx, desc); err != nil {
			m.metrics.RendererFailed("create")
			return false, overlay.NewError(overlay.CodeRendererFailure, "create overlay "+o.ID, err)
		}
	}
	m.fingerprints[o.ID] = fp
	return true, nil
}

func (m *Manager) descriptor(o overlay.DataSpaceOverlay, proj coords.Projection) renderer.OverlayDescriptor {
	points := make([]renderer.DataPoint, len(o.Points))
	for i, p := range o.Points {
		points[i] = renderer.DataPoint{Timestamp: float64(p.T), Value: p.P.Float()}
	}
	pane := m.paneID
	if pane == "" {
		pane = renderer.CandlePane
	}
	return renderer.OverlayDescriptor{
		ID:          o.ID,
		Name:        string(o.Type),
		GroupID:     o.GroupID,
		PaneID:      pane,
		Points:      points,
		Coordinates: proj.ScreenPoints,
		Styles:      o.Style,
		Visible:     o.Visible,
		Lock:        o.Lock,
		ExtendData:  o,
	}
}

func fingerprint(d renderer.OverlayDescriptor) uint64 {
	raw, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return h.Sum64()
}

// RequestProjection schedules a full pass on the next frame. Repeated
// requests before the frame fires replace each other.
func (m *Manager) RequestProjection(reason string) {
	if m.disposed {
		return
	}
	if m.pendingFrame != 0 {
		m.sched.CancelFrame(m.pendingFrame)
	}
	m.pendingReason = reason
	m.pendingFrame = m.sched.RequestFrame(func() {
		m.pendingFrame = 0
		m.ProjectAllOverlays(context.Background(), m.pendingReason)
	})
}

// HasPendingProjection reports whether a pass is scheduled.
func (m *Manager) HasPendingProjection() bool { return m.pendingFrame != 0 }

func (m *Manager) OnTimeframeChange()  { m.RequestProjection(ReasonTimeframe) }
func (m *Manager) OnTimezoneChange()   { m.RequestProjection(ReasonTimezone) }
func (m *Manager) OnPriceScaleChange() { m.RequestProjection(ReasonPriceScale) }

// ProjectAllOverlays re-derives screen coordinates for every visible overlay
// and pushes the changed ones. A call made while a pass is running is
// deferred to the next frame. One failing overlay never stops the pass.
func (m *Manager) ProjectAllOverlays(ctx context.Context, reason string) Event {
	ev := Event{Type: EventProjected, Reason: reason}
	if m.disposed || m.source == nil {
		return ev
	}
	if m.isProjecting {
		slog.Debug("projection already running, deferring", "reason", reason)
		m.RequestProjection(reason)
		return ev
	}
	m.isProjecting = true
	defer func() { m.isProjecting = false }()

	start := time.Now()
	for _, o := range m.source.ProjectionSet() {
		if !o.Visible {
			ev.Skipped++
			continue
		}
		proj := coords.ProjectPoints(ctx, m.coordsContext(), o.Points)
		if !proj.IsValid {
			// keep the previous render where it is
			ev.Skipped++
			m.metrics.RenderSkipped("unprojectable")
			continue
		}
		if !proj.IsVisible {
			ev.Culled++
		}
		changed, err := m.upsert(ctx, o, proj)
		if err != nil {
			ev.Failed++
			slog.Warn("overlay projection failed", "overlay_id", o.ID, "reason", reason, "error", err)
			continue
		}
		if changed {
			ev.Projected++
		} else {
			ev.Unchanged++
		}
	}
	ev.Duration = time.Since(start)
	m.metrics.ObserveProjection(reason, ev.Duration, ev.Projected)
	slog.Debug("projection pass", "reason", reason, "projected", ev.Projected, "unchanged", ev.Unchanged, "failed", ev.Failed)
	m.emit(ev)
	return ev
}

// AddEventListener registers fn and returns a handle for removal.
func (m *Manager) AddEventListener(fn Listener) int {
	m.nextListener++
	m.listeners[m.nextListener] = fn
	m.listenerIDs = append(m.listenerIDs, m.nextListener)
	return m.nextListener
}

// RemoveEventListener unregisters a listener.
func (m *Manager) RemoveEventListener(id int) {
	delete(m.listeners, id)
	for i, existing := range m.listenerIDs {
		if existing == id {
			m.listenerIDs = append(m.listenerIDs[:i], m.listenerIDs[i+1:]...)
			break
		}
	}
}

func (m *Manager) emit(ev Event) {
	for _, id := range append([]int(nil), m.listenerIDs...) {
		if fn, ok := m.listeners[id]; ok {
			fn(ev)
		}
	}
}

// Dispose cancels the pending frame, stops the viewport watcher and resize
// subscription and drops all cached state. The manager is unusable after.
func (m *Manager) Dispose() {
	if m.disposed {
		return
	}
	if m.pendingFrame != 0 {
		m.sched.CancelFrame(m.pendingFrame)
		m.pendingFrame = 0
	}
	m.watcher.Stop()
	if m.cancelResize != nil {
		m.cancelResize()
		m.cancelResize = nil
	}
	m.emit(Event{Type: EventDisposed})
	m.disposed = true
	m.source = nil
	m.fingerprints = make(map[string]uint64)
	m.listeners = make(map[int]Listener)
	m.listenerIDs = nil
}

// Disposed reports whether Dispose was called.
func (m *Manager) Disposed() bool { return m.disposed }
