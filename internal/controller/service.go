package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/tv_overlay/internal/chart"
	"github.com/dgnsrekt/tv_overlay/internal/creation"
	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
	"github.com/dgnsrekt/tv_overlay/internal/undo"
)

// Service is the thread-safe façade over one chart. Every call is run on
// the chart's scheduler, so callers may come from any goroutine.
type Service struct {
	chart *chart.Instance
	sched frame.Scheduler
}

func NewService(c *chart.Instance) *Service {
	return &Service{chart: c, sched: c.Scheduler()}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return overlay.NewError(overlay.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

// do runs fn on the scheduler and returns its error.
func (s *Service) do(ctx context.Context, fn func() error) error {
	var err error
	if derr := s.sched.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}

// Ready marks the renderer usable. See chart.Instance.Ready.
func (s *Service) Ready(ctx context.Context) error {
	return s.do(ctx, func() error { return s.chart.Ready(ctx) })
}

// SymbolState is the active symbol and timeframe.
type SymbolState struct {
	Symbol    overlay.SymbolKey `json:"symbol"`
	Timeframe string            `json:"timeframe,omitempty"`
}

func (s *Service) GetSymbol(ctx context.Context) (SymbolState, error) {
	var out SymbolState
	err := s.do(ctx, func() error {
		out = SymbolState{Symbol: s.chart.Drawings().CurrentSymbol(), Timeframe: s.chart.State().Timeframe()}
		return nil
	})
	return out, err
}

func (s *Service) SetSymbol(ctx context.Context, symbol string) (overlay.SymbolKey, error) {
	if err := s.requireNonEmpty(symbol, "symbol"); err != nil {
		return "", err
	}
	var out overlay.SymbolKey
	err := s.do(ctx, func() error {
		out = s.chart.SetSymbol(ctx, overlay.SymbolKey(symbol))
		return nil
	})
	return out, err
}

func (s *Service) SetTimeframe(ctx context.Context, tf string) error {
	if err := s.requireNonEmpty(tf, "timeframe"); err != nil {
		return err
	}
	return s.do(ctx, func() error {
		s.chart.SetTimeframe(strings.TrimSpace(tf))
		return nil
	})
}

// Shapes lists the overlay types the chart can draw.
func (s *Service) Shapes() []overlay.TypeInfo { return overlay.SortedTypes() }

// ListDrawings returns a symbol's drawings; empty means the active symbol.
func (s *Service) ListDrawings(ctx context.Context, symbol string) ([]overlay.Drawing, error) {
	var out []overlay.Drawing
	err := s.do(ctx, func() error {
		if strings.TrimSpace(symbol) == "" {
			out = s.chart.Drawings().GetCurrentSymbolDrawings()
		} else {
			out = s.chart.Drawings().GetDrawingsForSymbol(overlay.NormalizeSymbolString(symbol))
		}
		return nil
	})
	return out, err
}

func (s *Service) GetDrawing(ctx context.Context, id string) (overlay.Drawing, error) {
	var out overlay.Drawing
	err := s.do(ctx, func() error {
		d, ok := s.chart.Drawings().GetDrawing(id)
		if !ok {
			return overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("drawing %q not found", id), nil)
		}
		out = d
		return nil
	})
	return out, err
}

// CreateRequest describes a new overlay.
type CreateRequest struct {
	Type    overlay.OverlayType
	Points  []overlay.OverlayPoint
	Options creation.Options
}

func (s *Service) CreateDrawing(ctx context.Context, req CreateRequest) (overlay.DataSpaceOverlay, error) {
	if err := s.requireNonEmpty(string(req.Type), "type"); err != nil {
		return overlay.DataSpaceOverlay{}, err
	}
	var out overlay.DataSpaceOverlay
	err := s.do(ctx, func() error {
		o, err := s.chart.CreateOverlay(ctx, req.Type, req.Points, req.Options)
		out = o
		return err
	})
	return out, err
}

// PointFromPixel converts a screen position on paneID into a data point.
func (s *Service) PointFromPixel(ctx context.Context, x, y float64, paneID string) (overlay.OverlayPoint, error) {
	var out overlay.OverlayPoint
	err := s.do(ctx, func() error {
		p, err := s.chart.Creation().CreatePointFromMouse(ctx, x, y, paneID)
		out = p
		return err
	})
	return out, err
}

func (s *Service) UpdateDrawingPoints(ctx context.Context, id string, points []overlay.OverlayPoint) (overlay.DataSpaceOverlay, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return overlay.DataSpaceOverlay{}, err
	}
	var out overlay.DataSpaceOverlay
	err := s.do(ctx, func() error {
		o, err := s.chart.Creation().UpdateOverlayPoints(ctx, id, points)
		out = o
		return err
	})
	return out, err
}

func (s *Service) RemoveDrawing(ctx context.Context, symbol, id string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	return s.do(ctx, func() error {
		return s.chart.RemoveOverlay(ctx, overlay.NormalizeSymbolString(symbol), id)
	})
}

// ClearDrawings deletes every drawing of a symbol (active when empty). It
// is not recorded in history.
func (s *Service) ClearDrawings(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.do(ctx, func() error {
		dm := s.chart.Drawings()
		key := overlay.NormalizeSymbolString(symbol)
		if key.IsZero() {
			key = dm.CurrentSymbol()
		}
		n = len(dm.GetDrawingsForSymbol(key))
		dm.ClearDrawingsForSymbol(ctx, key)
		return nil
	})
	return n, err
}

func (s *Service) SetVisibility(ctx context.Context, id string, visible bool) error {
	return s.do(ctx, func() error { return s.chart.Drawings().SetVisibility(ctx, id, visible) })
}

func (s *Service) SetLock(ctx context.Context, id string, locked bool) error {
	return s.do(ctx, func() error { return s.chart.Drawings().SetLock(ctx, id, locked) })
}

func (s *Service) Stats(ctx context.Context) (drawing.Stats, error) {
	var out drawing.Stats
	err := s.do(ctx, func() error {
		out = s.chart.Drawings().GetStats()
		return nil
	})
	return out, err
}

func (s *Service) ExportDrawings(ctx context.Context) (map[overlay.SymbolKey][]overlay.Drawing, error) {
	var out map[overlay.SymbolKey][]overlay.Drawing
	err := s.do(ctx, func() error {
		out = s.chart.Drawings().ExportDrawings()
		return nil
	})
	return out, err
}

// ImportDrawings replaces the whole drawing store.
func (s *Service) ImportDrawings(ctx context.Context, all map[overlay.SymbolKey][]overlay.Drawing) (drawing.Stats, error) {
	var out drawing.Stats
	err := s.do(ctx, func() error {
		s.chart.Drawings().LoadAllDrawings(ctx, all)
		out = s.chart.Drawings().GetStats()
		return nil
	})
	return out, err
}

// HistoryResult is the outcome of Undo or Redo.
type HistoryResult struct {
	Applied bool       `json:"applied"`
	State   undo.State `json:"state"`
}

func (s *Service) Undo(ctx context.Context) (HistoryResult, error) {
	var out HistoryResult
	err := s.do(ctx, func() error {
		out.Applied = s.chart.History().Undo(ctx)
		out.State = s.chart.History().State()
		return nil
	})
	return out, err
}

func (s *Service) Redo(ctx context.Context) (HistoryResult, error) {
	var out HistoryResult
	err := s.do(ctx, func() error {
		out.Applied = s.chart.History().Redo(ctx)
		out.State = s.chart.History().State()
		return nil
	})
	return out, err
}

// HistoryView is the content of both stacks, oldest first.
type HistoryView struct {
	State undo.State    `json:"state"`
	Undo  []undo.Action `json:"undo"`
	Redo  []undo.Action `json:"redo"`
}

func (s *Service) History(ctx context.Context) (HistoryView, error) {
	var out HistoryView
	err := s.do(ctx, func() error {
		out.Undo, out.Redo = s.chart.History().History()
		out.State = s.chart.History().State()
		return nil
	})
	return out, err
}

// Project runs a projection pass immediately.
func (s *Service) Project(ctx context.Context) (projection.Event, error) {
	var out projection.Event
	err := s.do(ctx, func() error {
		out = s.chart.Projection().ProjectAllOverlays(ctx, projection.ReasonManual)
		return nil
	})
	return out, err
}

func (s *Service) Indicators(ctx context.Context) ([]renderer.IndicatorSpec, error) {
	var out []renderer.IndicatorSpec
	err := s.do(ctx, func() error {
		out = s.chart.State().Indicators()
		return nil
	})
	return out, err
}

type indicatorResult struct {
	pane string
	err  error
}

// AddIndicator queues the indicator transaction and waits for it to finish.
func (s *Service) AddIndicator(ctx context.Context, spec renderer.IndicatorSpec) (string, error) {
	if err := s.requireNonEmpty(spec.Name, "name"); err != nil {
		return "", err
	}
	done := make(chan indicatorResult, 1)
	err := s.sched.Do(ctx, func() {
		s.chart.AddIndicator(ctx, spec, func(pane string, err error) {
			done <- indicatorResult{pane: pane, err: err}
		})
	})
	if err != nil {
		return "", err
	}
	select {
	case r := <-done:
		return r.pane, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Service) RemoveIndicator(ctx context.Context, name, paneID string) error {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return err
	}
	done := make(chan error, 1)
	err := s.sched.Do(ctx, func() {
		s.chart.RemoveIndicator(ctx, name, paneID, func(err error) { done <- err })
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ThemeResult reports whether a theme was applied or is waiting for the
// renderer.
type ThemeResult struct {
	Theme   string `json:"theme"`
	Pending bool   `json:"pending"`
}

func (s *Service) ApplyTheme(ctx context.Context, theme string) (ThemeResult, error) {
	if err := s.requireNonEmpty(theme, "theme"); err != nil {
		return ThemeResult{}, err
	}
	var out ThemeResult
	err := s.do(ctx, func() error {
		if err := s.chart.ApplyTheme(ctx, theme); err != nil {
			return err
		}
		_, pending := s.chart.PendingTheme()
		out = ThemeResult{Theme: theme, Pending: pending}
		return nil
	})
	return out, err
}

func (s *Service) SaveLayout(ctx context.Context, name string) (savestore.LayoutInfo, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return savestore.LayoutInfo{}, err
	}
	var out savestore.LayoutInfo
	err := s.do(ctx, func() error {
		info, err := s.chart.SaveLayout(ctx, strings.TrimSpace(name))
		out = info
		return err
	})
	return out, err
}

func (s *Service) LoadLayout(ctx context.Context, name string) (savestore.LayoutInfo, error) {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return savestore.LayoutInfo{}, err
	}
	var out savestore.LayoutInfo
	err := s.do(ctx, func() error {
		info, err := s.chart.LoadLayout(ctx, strings.TrimSpace(name))
		out = info
		return err
	})
	return out, err
}

func (s *Service) ListLayouts(ctx context.Context) ([]savestore.LayoutInfo, error) {
	var out []savestore.LayoutInfo
	err := s.do(ctx, func() error {
		l, err := s.chart.ListLayouts(ctx)
		out = l
		return err
	})
	return out, err
}

func (s *Service) DeleteLayout(ctx context.Context, name string) error {
	if err := s.requireNonEmpty(name, "name"); err != nil {
		return err
	}
	return s.do(ctx, func() error { return s.chart.DeleteLayout(ctx, strings.TrimSpace(name)) })
}

func (s *Service) Migrate(ctx context.Context, src savestore.LegacySource, force bool) (chart.MigrationResult, error) {
	if src == nil {
		return chart.MigrationResult{}, overlay.NewError(overlay.CodeStorageFailure, "no legacy source configured", nil)
	}
	var out chart.MigrationResult
	err := s.do(ctx, func() error {
		res, err := s.chart.Migrate(ctx, src, force)
		out = res
		return err
	})
	return out, err
}
