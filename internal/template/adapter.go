// Package template adapts shape templates so figure generation runs on
// coordinates projected from data space, and ships the built-in templates
// for every overlay type.
package template

import (
	"context"
	"encoding/json"
	"math"

	"github.com/dgnsrekt/tv_overlay/internal/coords"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// DefaultHitPadding is how much larger, in pixels, the invisible hit region
// is than the visible shape.
const DefaultHitPadding = 36

// HitFigureKey marks the padded hit-test primitive.
const HitFigureKey = "hit-region"

// Options tunes the adapter.
type Options struct {
	HitPadding float64
}

func (o Options) padding() float64 {
	if o.HitPadding <= 0 {
		return DefaultHitPadding
	}
	return o.HitPadding
}

// DataSpaceArgs is what a data-space figure builder receives.
type DataSpaceArgs struct {
	Ctx         context.Context
	Overlay     overlay.DataSpaceOverlay
	Renderer    renderer.Renderer
	Projection  coords.Projection
	Coordinates []renderer.Pixel
	Size        renderer.Size
}

// DataSpaceFigures builds visible primitives from projected coordinates.
type DataSpaceFigures func(args DataSpaceArgs) []renderer.Figure

// Enhance wraps original so that data-space overlay instances are projected
// before build is called. Anything else passes through to original.
func Enhance(original renderer.Template, build DataSpaceFigures, opts Options) renderer.Template {
	legacy := original.CreatePointFigures
	enhanced := original
	enhanced.CreatePointFigures = func(fc renderer.FigureContext) []renderer.Figure {
		dso, ok := AsDataSpace(fc.Overlay.ExtendData)
		if !ok || build == nil {
			if legacy == nil {
				return nil
			}
			return legacy(fc)
		}

		ctx := fc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		proj := coords.ProjectPoints(ctx, coords.Context{Renderer: fc.Renderer, PaneID: fc.Overlay.PaneID}, dso.Points)
		if !proj.IsValid {
			return nil
		}
		figs := build(DataSpaceArgs{
			Ctx:         ctx,
			Overlay:     dso,
			Renderer:    fc.Renderer,
			Projection:  proj,
			Coordinates: proj.ScreenPoints,
			Size:        fc.Size,
		})
		if len(figs) == 0 {
			return nil
		}
		if hit, ok := HitFigure(figs, opts.padding()); ok {
			figs = append(figs, hit)
		}
		return figs
	}
	return enhanced
}

// AsDataSpace detects a data-space overlay in a renderer's extend data. It
// accepts the typed struct or its decoded JSON form; every point must carry
// a numeric t and p and a string id.
func AsDataSpace(extend any) (overlay.DataSpaceOverlay, bool) {
	switch v := extend.(type) {
	case overlay.DataSpaceOverlay:
		return v, len(v.Points) > 0
	case *overlay.DataSpaceOverlay:
		if v == nil {
			return overlay.DataSpaceOverlay{}, false
		}
		return *v, len(v.Points) > 0
	case map[string]any:
		if !looksLikeDataSpace(v) {
			return overlay.DataSpaceOverlay{}, false
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return overlay.DataSpaceOverlay{}, false
		}
		var out overlay.DataSpaceOverlay
		if err := json.Unmarshal(raw, &out); err != nil {
			return overlay.DataSpaceOverlay{}, false
		}
		return out, true
	}
	return overlay.DataSpaceOverlay{}, false
}

func looksLikeDataSpace(m map[string]any) bool {
	points, ok := m["points"].([]any)
	if !ok || len(points) == 0 {
		return false
	}
	for _, raw := range points {
		p, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := p["id"].(string); !ok {
			return false
		}
		if !isNumber(p["t"]) || !isNumber(p["p"]) {
			return false
		}
	}
	return true
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32, int, int32, int64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	}
	return false
}

// HitFigure returns a transparent polygon covering figs, grown by padding
// so the shape stays easy to grab at any zoom level. It reports false when
// no figure carries a coordinate.
func HitFigure(figs []renderer.Figure, padding float64) (renderer.Figure, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	extend := func(x, y float64) {
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	for _, f := range figs {
		for _, c := range f.Coordinates {
			if f.Type == renderer.FigureCircle {
				extend(c.X-f.Radius, c.Y-f.Radius)
				extend(c.X+f.Radius, c.Y+f.Radius)
				continue
			}
			extend(c.X, c.Y)
		}
	}
	if math.IsInf(minX, 0) || math.IsInf(minY, 0) {
		return renderer.Figure{}, false
	}
	half := padding / 2
	return renderer.Figure{
		Key:  HitFigureKey,
		Type: renderer.FigurePolygon,
		Coordinates: []renderer.Pixel{
			{X: minX - half, Y: minY - half},
			{X: maxX + half, Y: minY - half},
			{X: maxX + half, Y: maxY + half},
			{X: minX - half, Y: maxY + half},
		},
		Styles:      renderer.FigureStyle{Style: "fill", Color: "rgba(0, 0, 0, 0)"},
		IgnoreEvent: false,
	}, true
}
