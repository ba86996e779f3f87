// Package coords converts between data-space points and screen pixels using
// the renderer's projection. Nothing here keeps state.
package coords

import (
	"context"
	"log/slog"
	"sort"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// Bounds of the cheap visibility heuristic used by ProjectPoints.
const (
	VisibleMin = -100
	VisibleMax = 10000
)

// Context carries the renderer and pane a conversion is done against.
type Context struct {
	Renderer renderer.Renderer
	PaneID   string
}

func (c Context) opts() renderer.PaneOptions {
	pane := c.PaneID
	if pane == "" {
		pane = renderer.CandlePane
	}
	return renderer.PaneOptions{PaneID: pane}
}

// Projection is the result of projecting a whole point list. ScreenPoints is
// index-aligned with the input; failed entries hold a {0,0} placeholder.
type Projection struct {
	ScreenPoints []renderer.Pixel
	IsVisible    bool
	IsValid      bool
}

func toDataPoint(p overlay.OverlayPoint) renderer.DataPoint {
	return renderer.DataPoint{Timestamp: float64(p.T), Value: p.P.Float()}
}

// DataToScreen projects a point onto the pane. ok is false when the renderer
// cannot produce finite coordinates; the result is not clipped to the
// visible range.
func DataToScreen(ctx context.Context, c Context, p overlay.OverlayPoint) (renderer.Pixel, bool) {
	if c.Renderer == nil {
		return renderer.Pixel{}, false
	}
	out, err := c.Renderer.ConvertToPixel(ctx, []renderer.DataPoint{toDataPoint(p)}, c.opts())
	if err != nil {
		slog.Debug("convert to pixel failed", "point_id", p.ID, "error", err)
		return renderer.Pixel{}, false
	}
	if len(out) == 0 || !out[0].Finite() {
		return renderer.Pixel{}, false
	}
	return out[0], true
}

// ScreenToData converts a pixel back into a data-space point. The timestamp
// is rounded to the nearest millisecond. An empty pointID gets a fresh id.
func ScreenToData(ctx context.Context, c Context, px renderer.Pixel, pointID string) (overlay.OverlayPoint, bool) {
	if c.Renderer == nil {
		return overlay.OverlayPoint{}, false
	}
	out, err := c.Renderer.ConvertFromPixel(ctx, []renderer.Pixel{px}, c.opts())
	if err != nil {
		slog.Debug("convert from pixel failed", "x", px.X, "y", px.Y, "error", err)
		return overlay.OverlayPoint{}, false
	}
	if len(out) == 0 {
		return overlay.OverlayPoint{}, false
	}
	ts, ok := overlay.RoundTimestamp(out[0].Timestamp)
	price := overlay.Price(out[0].Value)
	if !ok || !price.IsFinite() {
		return overlay.OverlayPoint{}, false
	}
	if pointID == "" {
		pointID = overlay.NewID()
	}
	return overlay.OverlayPoint{ID: pointID, T: ts, P: price}, true
}

// ProjectPoints projects every point in one renderer round trip.
func ProjectPoints(ctx context.Context, c Context, points []overlay.OverlayPoint) Projection {
	res := Projection{
		ScreenPoints: make([]renderer.Pixel, len(points)),
		IsVisible:    true,
		IsValid:      true,
	}
	if len(points) == 0 {
		return res
	}
	if c.Renderer == nil {
		res.IsValid, res.IsVisible = false, false
		return res
	}

	in := make([]renderer.DataPoint, len(points))
	for i, p := range points {
		in[i] = toDataPoint(p)
	}
	out, err := c.Renderer.ConvertToPixel(ctx, in, c.opts())
	if err != nil {
		slog.Debug("project points failed", "points", len(points), "error", err)
		res.IsValid, res.IsVisible = false, false
		return res
	}

	for i := range points {
		if i >= len(out) || !out[i].Finite() {
			res.IsValid = false
			continue
		}
		px := out[i]
		res.ScreenPoints[i] = px
		if px.X < VisibleMin || px.X > VisibleMax || px.Y < VisibleMin || px.Y > VisibleMax {
			res.IsVisible = false
		}
	}
	return res
}

// FindClosestTimestamp returns the candle timestamp nearest to target. ok is
// false for an empty list. Candles must be sorted by timestamp.
func FindClosestTimestamp(candles []renderer.Candle, target int64) (int64, bool) {
	n := len(candles)
	if n == 0 {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return candles[i].Timestamp >= target })
	if i == 0 {
		return candles[0].Timestamp, true
	}
	if i == n {
		return candles[n-1].Timestamp, true
	}
	before, after := candles[i-1].Timestamp, candles[i].Timestamp
	if target-before <= after-target {
		return before, true
	}
	return after, true
}

// ValidateDataPoint reports whether p is a usable anchor point.
func ValidateDataPoint(p overlay.OverlayPoint) bool { return p.Valid() }

// EnsureFutureDomain is intentionally a no-op: the chart's time axis is never
// extended past the last real candle to make room for overlays.
func EnsureFutureDomain(context.Context, Context, []overlay.OverlayPoint) {}
