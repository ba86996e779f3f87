// Package creation turns interaction input (mouse pixels, explicit points,
// legacy records) into canonical data-space overlays and files them with the
// drawing store.
package creation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/dgnsrekt/tv_overlay/internal/coords"
	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// Config configures a Manager.
type Config struct {
	Renderer renderer.Renderer
	Drawings *drawing.Manager
	PaneID   string
	// Precision is the number of price decimals kept. Zero keeps prices as
	// converted.
	Precision int32
	// SnapToBars moves every new point's timestamp onto the nearest candle.
	SnapToBars bool
	// Styles overrides the built-in default style per type.
	Styles map[overlay.OverlayType]overlay.OverlayStyle
}

// Options tune a single CreateOverlay call.
type Options struct {
	ID        string
	SymbolKey overlay.SymbolKey
	Style     *overlay.OverlayStyle
	GroupID   string
	Hidden    bool
	Lock      bool
	Extend    map[string]any
}

// Manager holds no overlays of its own. Everything it creates is stored by
// the drawing manager.
type Manager struct {
	cfg Config
}

// NewManager builds a creation manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

func (m *Manager) coordsContext(paneID string) coords.Context {
	if paneID == "" {
		paneID = m.cfg.PaneID
	}
	return coords.Context{Renderer: m.cfg.Renderer, PaneID: paneID}
}

// CurrentSymbolKey returns the symbol new overlays are filed under.
func (m *Manager) CurrentSymbolKey() overlay.SymbolKey { return m.cfg.Drawings.CurrentSymbol() }

// SetCurrentSymbolKey switches the active instrument.
func (m *Manager) SetCurrentSymbolKey(ctx context.Context, key overlay.SymbolKey) {
	m.cfg.Drawings.SetCurrentSymbol(ctx, key)
}

// DefaultStyle returns the style a new overlay of type t gets.
func (m *Manager) DefaultStyle(t overlay.OverlayType) overlay.OverlayStyle {
	base := overlay.DefaultStyle(t)
	if custom, ok := m.cfg.Styles[t]; ok {
		return base.Merge(custom)
	}
	return base
}

// CreatePointFromMouse converts a pointer position into a data-space point.
// Unlike coords.ScreenToData a failed conversion is an error.
func (m *Manager) CreatePointFromMouse(ctx context.Context, x, y float64, paneID string) (overlay.OverlayPoint, error) {
	p, ok := coords.ScreenToData(ctx, m.coordsContext(paneID), renderer.Pixel{X: x, Y: y}, "")
	if !ok {
		return overlay.OverlayPoint{}, overlay.NewError(overlay.CodeConversionFailed,
			fmt.Sprintf("cannot convert (%.1f, %.1f) on pane %q to chart coordinates", x, y, m.coordsContext(paneID).PaneID), nil)
	}
	return m.normalizePoints(ctx, []overlay.OverlayPoint{p})[0], nil
}

// CreateOverlay builds a new overlay and stores it. The symbol comes from
// opts.SymbolKey or the current symbol. Without either the overlay is
// returned but not stored.
func (m *Manager) CreateOverlay(ctx context.Context, t overlay.OverlayType, points []overlay.OverlayPoint, opts Options) (overlay.DataSpaceOverlay, error) {
	if err := overlay.ValidatePointCount(t, len(points)); err != nil {
		return overlay.DataSpaceOverlay{}, err
	}
	points = m.normalizePoints(ctx, points)
	if bad, found := lo.Find(points, func(p overlay.OverlayPoint) bool { return !coords.ValidateDataPoint(p) }); found {
		return overlay.DataSpaceOverlay{}, overlay.NewError(overlay.CodeValidation,
			fmt.Sprintf("point %q (t=%d, p=%v) is not a valid anchor", bad.ID, bad.T, bad.P), nil)
	}

	symbol := overlay.NormalizeSymbolString(string(opts.SymbolKey))
	if symbol.IsZero() {
		symbol = m.CurrentSymbolKey()
	}
	style := m.DefaultStyle(t)
	if opts.Style != nil {
		style = style.Merge(*opts.Style)
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = overlay.NewID()
	}

	o := overlay.DataSpaceOverlay{
		ID:        id,
		SymbolKey: symbol,
		Type:      t,
		Points:    points,
		Style:     style,
		GroupID:   opts.GroupID,
		Visible:   !opts.Hidden,
		Lock:      opts.Lock,
		CreatedAt: overlay.NowMillis(),
		Version:   overlay.Version,
		Extend:    opts.Extend,
	}
	coords.EnsureFutureDomain(ctx, m.coordsContext(""), points)

	if symbol.IsZero() {
		slog.Warn("overlay created without symbol key; it will not be persisted", "overlay_id", id, "type", t)
		return o, nil
	}
	if err := m.cfg.Drawings.AddDrawing(ctx, overlay.ToDrawing(o)); err != nil {
		return overlay.DataSpaceOverlay{}, err
	}
	slog.Debug("overlay created", "overlay_id", id, "type", t, "symbol", symbol)
	return o, nil
}

// UpdateOverlayPoints replaces the anchors of a stored overlay.
func (m *Manager) UpdateOverlayPoints(ctx context.Context, id string, points []overlay.OverlayPoint) (overlay.DataSpaceOverlay, error) {
	d, ok := m.cfg.Drawings.GetDrawing(id)
	if !ok {
		return overlay.DataSpaceOverlay{}, overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("overlay %q not found", id), nil)
	}
	if err := overlay.ValidatePointCount(d.Type, len(points)); err != nil {
		return overlay.DataSpaceOverlay{}, err
	}
	points = m.normalizePoints(ctx, points)
	for _, p := range points {
		if !coords.ValidateDataPoint(p) {
			return overlay.DataSpaceOverlay{}, overlay.NewError(overlay.CodeValidation,
				fmt.Sprintf("point %q (t=%d, p=%v) is not a valid anchor", p.ID, p.T, p.P), nil)
		}
	}
	o := overlay.FromDrawing(d)
	o.Points = points
	if err := m.cfg.Drawings.UpdateDrawing(ctx, overlay.ToDrawing(o)); err != nil {
		return overlay.DataSpaceOverlay{}, err
	}
	return o, nil
}

// GetOverlay looks an overlay up across all symbols.
func (m *Manager) GetOverlay(id string) (overlay.DataSpaceOverlay, bool) {
	d, ok := m.cfg.Drawings.GetDrawing(id)
	if !ok {
		return overlay.DataSpaceOverlay{}, false
	}
	return overlay.FromDrawing(d), true
}

// GetAllOverlays returns the current symbol's overlays.
func (m *Manager) GetAllOverlays() []overlay.DataSpaceOverlay {
	return lo.Map(m.cfg.Drawings.GetCurrentSymbolDrawings(), func(d overlay.Drawing, _ int) overlay.DataSpaceOverlay {
		return overlay.FromDrawing(d)
	})
}

// RemoveOverlay deletes an overlay of the current symbol.
func (m *Manager) RemoveOverlay(ctx context.Context, id string) error {
	return m.cfg.Drawings.RemoveDrawing(ctx, id)
}

// RemoveStoredDataSpaceOverlay deletes an overlay from any symbol's store.
func (m *Manager) RemoveStoredDataSpaceOverlay(ctx context.Context, symbol overlay.SymbolKey, id string) error {
	return m.cfg.Drawings.RemoveDrawingForSymbol(ctx, symbol, id)
}

// ClearAllOverlays deletes every overlay of the current symbol.
func (m *Manager) ClearAllOverlays(ctx context.Context) {
	m.cfg.Drawings.ClearDrawingsForSymbol(ctx, m.CurrentSymbolKey())
}

// ConvertLegacyOverlay normalizes a legacy record to data space. Points
// stored as pixels are converted against paneID. ok is false when the type
// is unknown or no point survives conversion.
func (m *Manager) ConvertLegacyOverlay(ctx context.Context, legacy overlay.LegacyOverlay, paneID string) (overlay.DataSpaceOverlay, bool) {
	kind, ok := legacy.Kind()
	if !ok {
		slog.Warn("legacy overlay has unknown type", "overlay_id", legacy.ID, "type", legacy.Type, "name", legacy.Name)
		return overlay.DataSpaceOverlay{}, false
	}

	c := m.coordsContext(paneID)
	points := make([]overlay.OverlayPoint, 0, len(legacy.Points))
	for _, lp := range legacy.Points {
		id := lp.ID
		if id == "" {
			id = overlay.NewID()
		}
		if ts, price, ok := lp.DataSpace(); ok {
			t, ok := overlay.RoundTimestamp(ts)
			if ok {
				points = append(points, overlay.OverlayPoint{ID: id, T: t, P: overlay.Price(price)})
			}
			continue
		}
		if x, y, ok := lp.Pixel(); ok {
			if p, ok := coords.ScreenToData(ctx, c, renderer.Pixel{X: x, Y: y}, id); ok {
				points = append(points, p)
			}
		}
	}
	points = lo.Filter(points, func(p overlay.OverlayPoint, _ int) bool { return p.Valid() })
	if len(points) == 0 {
		return overlay.DataSpaceOverlay{}, false
	}

	id := legacy.ID
	if id == "" {
		id = overlay.NewID()
	}
	created := legacy.CreatedAt
	if created == 0 {
		created = overlay.NowMillis()
	}
	return overlay.DataSpaceOverlay{
		ID:        id,
		SymbolKey: overlay.NormalizeSymbolString(legacy.SymbolKey),
		Type:      kind,
		Points:    points,
		Style:     legacy.StyleOrDefault(kind),
		GroupID:   legacy.GroupID,
		Visible:   legacy.Visible == nil || *legacy.Visible,
		Lock:      legacy.Lock,
		CreatedAt: created,
		Version:   overlay.Version,
		Extend:    legacy.ExtendData,
	}, true
}

// normalizePoints fills missing ids, rounds prices and optionally snaps
// timestamps to bars.
func (m *Manager) normalizePoints(ctx context.Context, points []overlay.OverlayPoint) []overlay.OverlayPoint {
	out := make([]overlay.OverlayPoint, len(points))
	copy(out, points)

	var candles []renderer.Candle
	if m.cfg.SnapToBars && m.cfg.Renderer != nil {
		var err error
		if candles, err = m.cfg.Renderer.GetDataList(ctx); err != nil {
			slog.Debug("bar snapping skipped", "error", err)
		}
	}
	for i := range out {
		if strings.TrimSpace(out[i].ID) == "" {
			out[i].ID = overlay.NewID()
		}
		if m.cfg.Precision > 0 {
			// A price too small for the precision keeps its exact value.
			if rounded := out[i].P.Round(m.cfg.Precision); rounded.IsValid() || !out[i].P.IsValid() {
				out[i].P = rounded
			}
		}
		if snapped, ok := coords.FindClosestTimestamp(candles, out[i].T); ok {
			out[i].T = snapped
		}
	}
	return out
}
