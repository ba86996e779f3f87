// Package drawing is the authoritative, symbol-scoped store of drawings and
// the only place that decides what gets painted.
package drawing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/StudioSol/set"
	"github.com/samber/lo"

	"github.com/dgnsrekt/tv_overlay/internal/metrics"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

// Projector pushes overlays to the renderer through its create-or-update
// path.
type Projector interface {
	AddOverlay(ctx context.Context, o overlay.DataSpaceOverlay) error
	UpdateOverlay(ctx context.Context, o overlay.DataSpaceOverlay) error
	RemoveOverlay(ctx context.Context, id string) error
}

// Change types sent to subscribers.
const (
	ChangeSymbol  = "symbol"
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeRemoved = "removed"
	ChangeCleared = "cleared"
	ChangeLoaded  = "loaded"
)

// Change describes one mutation of the store.
type Change struct {
	Type      string            `json:"type"`
	Symbol    overlay.SymbolKey `json:"symbol,omitempty"`
	DrawingID string            `json:"drawing_id,omitempty"`
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	TotalSymbols          int `json:"total_symbols"`
	TotalDrawings         int `json:"total_drawings"`
	CurrentSymbolDrawings int `json:"current_symbol_drawings"`
	RenderedDrawings      int `json:"rendered_drawings"`
}

// Manager owns map[symbol][]Drawing. It is not safe for concurrent use; the
// chart runs it on its scheduler thread.
type Manager struct {
	projector Projector
	metrics   *metrics.Metrics

	drawings map[overlay.SymbolKey][]overlay.Drawing
	current  overlay.SymbolKey
	rendered *set.LinkedHashSetString

	subscribers map[int]func(Change)
	subOrder    []int
	nextSub     int
}

// NewManager creates an empty store that renders through p.
func NewManager(p Projector, m *metrics.Metrics) *Manager {
	return &Manager{
		projector:   p,
		metrics:     m,
		drawings:    make(map[overlay.SymbolKey][]overlay.Drawing),
		rendered:    set.NewLinkedHashSetString(),
		subscribers: make(map[int]func(Change)),
	}
}

func normalize(k overlay.SymbolKey) overlay.SymbolKey {
	return overlay.NormalizeSymbolString(string(k))
}

// CurrentSymbol returns the active symbol key.
func (m *Manager) CurrentSymbol() overlay.SymbolKey { return m.current }

// SetCurrentSymbol switches the active symbol. Rendered overlays are removed
// from the renderer, then the new symbol's visible drawings are rendered.
// Stored data is never touched. Setting the same symbol again is a no-op.
func (m *Manager) SetCurrentSymbol(ctx context.Context, symbol overlay.SymbolKey) {
	next := normalize(symbol)
	if next == m.current {
		return
	}
	m.clearRendered(ctx)
	m.current = next
	m.renderCurrent(ctx)
	slog.Debug("active symbol changed", "symbol", next, "rendered", m.rendered.Length())
	m.notify(Change{Type: ChangeSymbol, Symbol: next})
}

// SetCurrentSymbolInfo is SetCurrentSymbol for unnormalized instrument data.
func (m *Manager) SetCurrentSymbolInfo(ctx context.Context, info overlay.SymbolInfo) {
	m.SetCurrentSymbol(ctx, overlay.NormalizeSymbolKey(info))
}

// AddDrawing stores d under its symbol key and renders it when it belongs
// to the active symbol. A drawing without a symbol key is rejected.
func (m *Manager) AddDrawing(ctx context.Context, d overlay.Drawing) error {
	key := normalize(d.SymbolKey)
	if key.IsZero() {
		return overlay.NewError(overlay.CodeMissingSymbol, fmt.Sprintf("drawing %q has no symbol key", d.ID), nil)
	}
	if d.ID == "" {
		return overlay.NewError(overlay.CodeValidation, "drawing id is required", nil)
	}
	if _, _, ok := m.find(key, d.ID); ok {
		return overlay.NewError(overlay.CodeValidation, fmt.Sprintf("drawing %q already exists for %s", d.ID, key), nil)
	}
	d = d.Clone()
	d.SymbolKey = key
	m.drawings[key] = append(m.drawings[key], d)
	m.updateGauge()

	if key == m.current && d.IsVisible() {
		m.renderDrawing(ctx, d)
	}
	m.notify(Change{Type: ChangeAdded, Symbol: key, DrawingID: d.ID})
	return nil
}

// RemoveDrawing deletes a drawing of the active symbol.
func (m *Manager) RemoveDrawing(ctx context.Context, id string) error {
	return m.RemoveDrawingForSymbol(ctx, m.current, id)
}

// RemoveDrawingForSymbol deletes a drawing from the given symbol's bucket.
func (m *Manager) RemoveDrawingForSymbol(ctx context.Context, symbol overlay.SymbolKey, id string) error {
	key := normalize(symbol)
	_, idx, ok := m.find(key, id)
	if !ok {
		return overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("drawing %q not found for %s", id, key), nil)
	}
	bucket := m.drawings[key]
	m.drawings[key] = append(bucket[:idx:idx], bucket[idx+1:]...)
	if len(m.drawings[key]) == 0 {
		delete(m.drawings, key)
	}
	if key == m.current {
		m.unrender(ctx, id)
	}
	m.updateGauge()
	m.notify(Change{Type: ChangeRemoved, Symbol: key, DrawingID: id})
	return nil
}

// UpdateDrawing replaces a stored drawing, matched by id within its symbol
// bucket. A rendered drawing is updated in place.
func (m *Manager) UpdateDrawing(ctx context.Context, d overlay.Drawing) error {
	key := normalize(d.SymbolKey)
	if key.IsZero() {
		return overlay.NewError(overlay.CodeMissingSymbol, fmt.Sprintf("drawing %q has no symbol key", d.ID), nil)
	}
	_, idx, ok := m.find(key, d.ID)
	if !ok {
		return overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("drawing %q not found for %s", d.ID, key), nil)
	}
	d = d.Clone()
	d.SymbolKey = key
	m.drawings[key][idx] = d

	if key == m.current {
		switch {
		case !d.IsVisible():
			m.unrender(ctx, d.ID)
		case m.rendered.InArray(d.ID):
			if err := m.projector.UpdateOverlay(ctx, overlay.FromDrawing(d)); err != nil {
				m.metrics.RendererFailed("update")
				slog.Warn("drawing update render failed", "drawing_id", d.ID, "symbol", key, "error", err)
			}
		default:
			m.renderDrawing(ctx, d)
		}
	}
	m.notify(Change{Type: ChangeUpdated, Symbol: key, DrawingID: d.ID})
	return nil
}

// SetVisibility shows or hides a drawing of the active symbol.
func (m *Manager) SetVisibility(ctx context.Context, id string, visible bool) error {
	return m.edit(ctx, id, func(d *overlay.Drawing) { d.Visible = &visible })
}

// SetLock toggles edit protection of a drawing of the active symbol.
func (m *Manager) SetLock(ctx context.Context, id string, locked bool) error {
	return m.edit(ctx, id, func(d *overlay.Drawing) { d.Lock = locked })
}

func (m *Manager) edit(ctx context.Context, id string, fn func(*overlay.Drawing)) error {
	d, _, ok := m.find(m.current, id)
	if !ok {
		return overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("drawing %q not found for %s", id, m.current), nil)
	}
	d = d.Clone()
	fn(&d)
	return m.UpdateDrawing(ctx, d)
}

// ClearDrawingsForSymbol deletes every drawing of a symbol.
func (m *Manager) ClearDrawingsForSymbol(ctx context.Context, symbol overlay.SymbolKey) {
	key := normalize(symbol)
	if key == m.current {
		m.clearRendered(ctx)
	}
	delete(m.drawings, key)
	m.updateGauge()
	m.notify(Change{Type: ChangeCleared, Symbol: key})
}

// LoadDrawingsForSymbol replaces one symbol's bucket. Drawings without a
// symbol key are back-filled from the bucket key; drawings that name another
// symbol are filed under that symbol instead.
func (m *Manager) LoadDrawingsForSymbol(ctx context.Context, symbol overlay.SymbolKey, drawings []overlay.Drawing) error {
	key := normalize(symbol)
	if key.IsZero() {
		return overlay.NewError(overlay.CodeMissingSymbol, "bulk load requires a symbol key", nil)
	}
	if key == m.current {
		m.clearRendered(ctx)
	}
	delete(m.drawings, key)
	inserted := m.insertBulk(key, drawings)
	if key == m.current {
		m.renderCurrent(ctx)
	} else {
		for _, d := range inserted {
			if d.SymbolKey == m.current && d.IsVisible() {
				m.renderDrawing(ctx, d)
			}
		}
	}
	m.updateGauge()
	m.notify(Change{Type: ChangeLoaded, Symbol: key})
	return nil
}

// LoadAllDrawings replaces the whole store, as when a saved layout is
// restored. Missing symbol keys are back-filled from the map key; entries
// under an empty map key that also lack one are dropped.
func (m *Manager) LoadAllDrawings(ctx context.Context, all map[overlay.SymbolKey][]overlay.Drawing) {
	m.clearRendered(ctx)
	m.drawings = make(map[overlay.SymbolKey][]overlay.Drawing)
	for _, key := range sortedKeys(all) {
		m.insertBulk(normalize(key), all[key])
	}
	m.renderCurrent(ctx)
	m.updateGauge()
	m.notify(Change{Type: ChangeLoaded})
}

// insertBulk files drawings into the store and returns the ones it kept.
func (m *Manager) insertBulk(bucket overlay.SymbolKey, drawings []overlay.Drawing) []overlay.Drawing {
	var inserted []overlay.Drawing
	for _, d := range drawings {
		d = d.Clone()
		key := normalize(d.SymbolKey)
		if key.IsZero() {
			key = bucket
		}
		if key.IsZero() {
			slog.Warn("bulk load dropped drawing without symbol", "drawing_id", d.ID)
			continue
		}
		if d.ID == "" {
			d.ID = overlay.NewID()
		}
		if _, _, dup := m.find(key, d.ID); dup {
			slog.Warn("bulk load dropped duplicate drawing", "drawing_id", d.ID, "symbol", key)
			continue
		}
		d.SymbolKey = key
		m.drawings[key] = append(m.drawings[key], d)
		inserted = append(inserted, d)
	}
	return inserted
}

// ExportDrawings returns a deep copy of the whole store.
func (m *Manager) ExportDrawings() map[overlay.SymbolKey][]overlay.Drawing {
	out := make(map[overlay.SymbolKey][]overlay.Drawing, len(m.drawings))
	for key, bucket := range m.drawings {
		out[key] = cloneAll(bucket)
	}
	return out
}

// GetCurrentSymbolDrawings returns the active symbol's drawings.
func (m *Manager) GetCurrentSymbolDrawings() []overlay.Drawing {
	return cloneAll(m.drawings[m.current])
}

// GetDrawingsForSymbol returns one symbol's drawings.
func (m *Manager) GetDrawingsForSymbol(symbol overlay.SymbolKey) []overlay.Drawing {
	return cloneAll(m.drawings[normalize(symbol)])
}

// GetDrawing finds a drawing by id across all symbols.
func (m *Manager) GetDrawing(id string) (overlay.Drawing, bool) {
	if d, _, ok := m.find(m.current, id); ok {
		return d.Clone(), true
	}
	for _, key := range sortedKeys(m.drawings) {
		if d, _, ok := m.find(key, id); ok {
			return d.Clone(), true
		}
	}
	return overlay.Drawing{}, false
}

// Symbols lists the symbols that have drawings.
func (m *Manager) Symbols() []overlay.SymbolKey { return sortedKeys(m.drawings) }

// RenderedIDs returns the ids currently painted, in render order.
func (m *Manager) RenderedIDs() []string {
	out := make([]string, 0, m.rendered.Length())
	for id := range m.rendered.Iter() {
		out = append(out, id)
	}
	return out
}

// ProjectionSet returns the rendered drawings of the active symbol in store
// order.
func (m *Manager) ProjectionSet() []overlay.DataSpaceOverlay {
	rendered := lo.Filter(m.drawings[m.current], func(d overlay.Drawing, _ int) bool {
		return m.rendered.InArray(d.ID)
	})
	return lo.Map(rendered, func(d overlay.Drawing, _ int) overlay.DataSpaceOverlay {
		return overlay.FromDrawing(d)
	})
}

// GetStats summarizes the store.
func (m *Manager) GetStats() Stats {
	return Stats{
		TotalSymbols:          len(m.drawings),
		TotalDrawings:         m.total(),
		CurrentSymbolDrawings: len(m.drawings[m.current]),
		RenderedDrawings:      m.rendered.Length(),
	}
}

// Subscribe registers fn for store changes. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Change)) func() {
	m.nextSub++
	id := m.nextSub
	m.subscribers[id] = fn
	m.subOrder = append(m.subOrder, id)
	return func() {
		delete(m.subscribers, id)
		m.subOrder = lo.Without(m.subOrder, id)
	}
}

func (m *Manager) notify(c Change) {
	for _, id := range append([]int(nil), m.subOrder...) {
		if fn, ok := m.subscribers[id]; ok {
			fn(c)
		}
	}
}

// renderDrawing is the only path to the renderer. It refuses drawings that
// do not belong to the active symbol.
func (m *Manager) renderDrawing(ctx context.Context, d overlay.Drawing) bool {
	key := normalize(d.SymbolKey)
	if key != m.current || m.current.IsZero() {
		slog.Warn("drawing render skipped: symbol mismatch", "drawing_id", d.ID, "symbol", key, "current", m.current)
		m.metrics.RenderSkipped("symbol_mismatch")
		return false
	}
	if !d.IsVisible() {
		m.metrics.RenderSkipped("hidden")
		return false
	}
	if err := m.projector.AddOverlay(ctx, overlay.FromDrawing(d)); err != nil {
		slog.Warn("drawing render failed", "drawing_id", d.ID, "symbol", key, "error", err)
		m.metrics.RenderSkipped("renderer_error")
		return false
	}
	m.rendered.Add(d.ID)
	return true
}

func (m *Manager) renderCurrent(ctx context.Context) {
	for _, d := range m.drawings[m.current] {
		if d.IsVisible() {
			m.renderDrawing(ctx, d)
		}
	}
}

func (m *Manager) unrender(ctx context.Context, id string) {
	if !m.rendered.InArray(id) {
		return
	}
	if err := m.projector.RemoveOverlay(ctx, id); err != nil {
		slog.Warn("drawing unrender failed", "drawing_id", id, "error", err)
	}
	m.rendered.Remove(id)
}

func (m *Manager) clearRendered(ctx context.Context) {
	for _, id := range m.RenderedIDs() {
		if err := m.projector.RemoveOverlay(ctx, id); err != nil {
			slog.Warn("drawing unrender failed", "drawing_id", id, "error", err)
		}
	}
	m.rendered = set.NewLinkedHashSetString()
}

func (m *Manager) find(key overlay.SymbolKey, id string) (overlay.Drawing, int, bool) {
	for i, d := range m.drawings[key] {
		if d.ID == id {
			return d, i, true
		}
	}
	return overlay.Drawing{}, -1, false
}

func (m *Manager) total() int {
	n := 0
	for _, bucket := range m.drawings {
		n += len(bucket)
	}
	return n
}

func (m *Manager) updateGauge() { m.metrics.SetStoredDrawings(m.total()) }

func cloneAll(in []overlay.Drawing) []overlay.Drawing {
	out := make([]overlay.Drawing, len(in))
	for i, d := range in {
		out[i] = d.Clone()
	}
	return out
}

func sortedKeys[V any](in map[overlay.SymbolKey]V) []overlay.SymbolKey {
	keys := make([]overlay.SymbolKey, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
