package cdprender

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// figuresKey is the extendData member the page-side template paints from.
const figuresKey = "__figures"

type nullablePixel struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type nullablePoint struct {
	Timestamp *float64 `json:"timestamp"`
	Value     *float64 `json:"value"`
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// finiteOrNil keeps NaN/Inf out of the JSON encoder.
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (c *Client) ConvertToPixel(ctx context.Context, points []renderer.DataPoint, opts renderer.PaneOptions) ([]renderer.Pixel, error) {
	in := make([]nullablePoint, len(points))
	for i, p := range points {
		in[i] = nullablePoint{Timestamp: finiteOrNil(p.Timestamp), Value: finiteOrNil(p.Value)}
	}
	var raw []nullablePixel
	err := c.eval(ctx, fmt.Sprintf(`
      const num = (v) => (typeof v === "number" && isFinite(v)) ? v : null;
      let r = chart.convertToPixel(%s, {paneId: %s});
      if (!Array.isArray(r)) r = [r];
      return r.map((p) => ({x: num(p && p.x), y: num(p && p.y)}));`,
		jsJSON(in), jsString(paneOrDefault(opts.PaneID))), &raw)
	if err != nil {
		return nil, err
	}
	out := make([]renderer.Pixel, len(raw))
	for i, p := range raw {
		out[i] = renderer.Pixel{X: orNaN(p.X), Y: orNaN(p.Y)}
	}
	return out, nil
}

func (c *Client) ConvertFromPixel(ctx context.Context, pixels []renderer.Pixel, opts renderer.PaneOptions) ([]renderer.DataPoint, error) {
	in := make([]nullablePixel, len(pixels))
	for i, p := range pixels {
		in[i] = nullablePixel{X: finiteOrNil(p.X), Y: finiteOrNil(p.Y)}
	}
	var raw []nullablePoint
	err := c.eval(ctx, fmt.Sprintf(`
      const num = (v) => (typeof v === "number" && isFinite(v)) ? v : null;
      let r = chart.convertFromPixel(%s, {paneId: %s});
      if (!Array.isArray(r)) r = [r];
      return r.map((p) => ({timestamp: num(p && p.timestamp), value: num(p && p.value)}));`,
		jsJSON(in), jsString(paneOrDefault(opts.PaneID))), &raw)
	if err != nil {
		return nil, err
	}
	out := make([]renderer.DataPoint, len(raw))
	for i, p := range raw {
		out[i] = renderer.DataPoint{Timestamp: orNaN(p.Timestamp), Value: orNaN(p.Value)}
	}
	return out, nil
}

func paneOrDefault(id string) string {
	if id == "" {
		return renderer.CandlePane
	}
	return id
}

// chartOverlay is the chart library's overlay shape.
type chartOverlay struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	GroupID    string          `json:"groupId,omitempty"`
	PaneID     string          `json:"paneId,omitempty"`
	Points     []nullablePoint `json:"points"`
	Styles     map[string]any  `json:"styles,omitempty"`
	Visible    bool            `json:"visible"`
	Lock       bool            `json:"lock"`
	ExtendData map[string]any  `json:"extendData,omitempty"`
}

func (c *Client) toChartOverlay(ctx context.Context, d renderer.OverlayDescriptor) chartOverlay {
	co := chartOverlay{
		ID:      d.ID,
		Name:    d.Name,
		GroupID: d.GroupID,
		PaneID:  d.PaneID,
		Points:  make([]nullablePoint, len(d.Points)),
		Styles:  chartStyles(d.Styles),
		Visible: d.Visible,
		Lock:    d.Lock,
	}
	for i, p := range d.Points {
		co.Points[i] = nullablePoint{Timestamp: finiteOrNil(p.Timestamp), Value: finiteOrNil(p.Value)}
	}
	co.ExtendData = map[string]any{"payload": d.ExtendData}
	if figs, ok := c.figures(ctx, d); ok {
		co.ExtendData[figuresKey] = chartFigures(figs)
	}
	return co
}

// figures paints d with its registered template for the current size. The
// page only draws what was computed here.
func (c *Client) figures(ctx context.Context, d renderer.OverlayDescriptor) ([]renderer.Figure, bool) {
	c.mu.Lock()
	tmpl, ok := c.templates[d.Name]
	c.mu.Unlock()
	if !ok || tmpl.CreatePointFigures == nil {
		return nil, false
	}
	size, err := c.GetSize(ctx)
	if err != nil {
		slog.Debug("cdp figures skipped", "overlay_id", d.ID, "error", err)
		return nil, false
	}
	coords := d.Coordinates
	if len(coords) == 0 && len(d.Points) > 0 {
		coords, err = c.ConvertToPixel(ctx, d.Points, renderer.PaneOptions{PaneID: d.PaneID})
		if err != nil {
			slog.Debug("cdp figures skipped", "overlay_id", d.ID, "error", err)
			return nil, false
		}
	}
	return tmpl.CreatePointFigures(renderer.FigureContext{
		Ctx:         ctx,
		Renderer:    c,
		Overlay:     d,
		Coordinates: coords,
		Size:        size,
	}), true
}

func (c *Client) CreateOverlay(ctx context.Context, d renderer.OverlayDescriptor) (string, error) {
	var id *string
	err := c.eval(ctx, fmt.Sprintf(`
      const o = %s;
      return chart.createOverlay(o, o.paneId || undefined) || null;`,
		jsJSON(c.toChartOverlay(ctx, d))), &id)
	if err != nil {
		return "", err
	}
	if id == nil {
		return "", overlay.NewError(CodeEvalFailure, fmt.Sprintf("chart refused overlay %q", d.ID), nil)
	}
	return *id, nil
}

func (c *Client) OverrideOverlay(ctx context.Context, d renderer.OverlayDescriptor) error {
	return c.eval(ctx, fmt.Sprintf(`
      chart.overrideOverlay(%s);
      return true;`, jsJSON(c.toChartOverlay(ctx, d))), nil)
}

func (c *Client) RemoveOverlay(ctx context.Context, id string) error {
	return c.eval(ctx, fmt.Sprintf(`
      chart.removeOverlay({id: %s});
      return true;`, jsString(id)), nil)
}

func (c *Client) GetOverlays(ctx context.Context, id string) ([]renderer.OverlayDescriptor, error) {
	var raw []chartOverlay
	err := c.eval(ctx, fmt.Sprintf(`
      const id = %s;
      const num = (v) => (typeof v === "number" && isFinite(v)) ? v : null;
      let list;
      if (typeof chart.getOverlays === "function") {
        list = chart.getOverlays(id ? {id: id} : {});
      } else if (id) {
        list = [chart.getOverlayById(id)].filter(Boolean);
      } else {
        list = [];
      }
      return list.map((o) => ({
        id: o.id, name: o.name, groupId: o.groupId, paneId: o.paneId,
        points: (o.points || []).map((p) => ({timestamp: num(p.timestamp), value: num(p.value)})),
        visible: o.visible !== false, lock: !!o.lock,
        extendData: {payload: o.extendData && o.extendData.payload},
      }));`, jsString(id)), &raw)
	if err != nil {
		return nil, err
	}
	out := make([]renderer.OverlayDescriptor, 0, len(raw))
	for _, co := range raw {
		d := renderer.OverlayDescriptor{
			ID:      co.ID,
			Name:    co.Name,
			GroupID: co.GroupID,
			PaneID:  co.PaneID,
			Points:  make([]renderer.DataPoint, len(co.Points)),
			Visible: co.Visible,
			Lock:    co.Lock,
		}
		for i, p := range co.Points {
			d.Points[i] = renderer.DataPoint{Timestamp: orNaN(p.Timestamp), Value: orNaN(p.Value)}
		}
		if co.ExtendData != nil {
			d.ExtendData = co.ExtendData["payload"]
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *Client) GetVisibleRange(ctx context.Context) (renderer.VisibleRange, error) {
	var vr renderer.VisibleRange
	err := c.eval(ctx, `
      const r = chart.getVisibleRange() || {};
      return {from: r.from | 0, to: r.to | 0, realFrom: +r.realFrom || 0, realTo: +r.realTo || 0};`, &vr)
	return vr, err
}

func (c *Client) GetDataList(ctx context.Context) ([]renderer.Candle, error) {
	var out []renderer.Candle
	err := c.eval(ctx, `
      return (chart.getDataList() || []).map((k) => ({
        timestamp: k.timestamp, open: +k.open || 0, high: +k.high || 0,
        low: +k.low || 0, close: +k.close || 0, volume: +k.volume || 0,
      }));`, &out)
	return out, err
}

// GetSize reports the candle pane size, falling back to the container
// element. The last good value is cached for figure painting.
func (c *Client) GetSize(ctx context.Context) (renderer.Size, error) {
	var s renderer.Size
	err := c.eval(ctx, `
      let s = typeof chart.getSize === "function" ? chart.getSize("candle_pane") : null;
      if (!s || !s.width) {
        const el = typeof chart.getDom === "function" ? chart.getDom() : null;
        s = el ? {width: el.clientWidth, height: el.clientHeight} : {width: 0, height: 0};
      }
      return {width: +s.width || 0, height: +s.height || 0};`, &s)
	if err != nil {
		return renderer.Size{}, err
	}
	c.mu.Lock()
	c.size = s
	c.mu.Unlock()
	return s, nil
}

// LastSize returns the most recent successful GetSize result.
func (c *Client) LastSize() renderer.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *Client) CreateIndicator(ctx context.Context, spec renderer.IndicatorSpec) (string, error) {
	if spec.Name == "" {
		return "", overlay.NewError(overlay.CodeValidation, "indicator name is required", nil)
	}
	var pane *string
	paneOpts := "undefined"
	if spec.PaneID != "" {
		paneOpts = fmt.Sprintf("{id: %s}", jsString(spec.PaneID))
	}
	err := c.eval(ctx, fmt.Sprintf(`
      const spec = %s;
      return chart.createIndicator({name: spec.name, calcParams: spec.calcParams || undefined}, !!spec.isStack, %s) || null;`,
		jsJSON(spec), paneOpts), &pane)
	if err != nil {
		return "", err
	}
	if pane == nil {
		return "", overlay.NewError(CodeEvalFailure, fmt.Sprintf("chart refused indicator %q", spec.Name), nil)
	}
	return *pane, nil
}

func (c *Client) RemoveIndicator(ctx context.Context, name, paneID string) error {
	return c.eval(ctx, fmt.Sprintf(`
      chart.removeIndicator(%s || undefined, %s);
      return true;`, jsString(paneID), jsString(name)), nil)
}

func (c *Client) SetStyles(ctx context.Context, theme string) error {
	return c.eval(ctx, fmt.Sprintf(`
      chart.setStyles(%s);
      return true;`, jsString(theme)), nil)
}

// RegisterTemplate keeps the figure builder on this side and registers a
// page-side overlay that paints whatever figures were attached to the
// instance.
func (c *Client) RegisterTemplate(ctx context.Context, t renderer.Template) error {
	if t.Name == "" {
		return overlay.NewError(overlay.CodeValidation, "template name is required", nil)
	}
	err := c.eval(ctx, fmt.Sprintf(`
      const lib = window.klinecharts;
      if (!lib || typeof lib.registerOverlay !== "function") {
        throw new Error("chart library does not support registerOverlay");
      }
      lib.registerOverlay({
        name: %s,
        totalStep: %d,
        needDefaultPointFigure: true,
        needDefaultXAxisFigure: true,
        needDefaultYAxisFigure: true,
        createPointFigures: ({overlay}) => (overlay.extendData && overlay.extendData[%s]) || [],
      });
      return true;`, jsString(t.Name), t.TotalStep, jsString(figuresKey)), nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.templates[t.Name] = t
	c.mu.Unlock()
	return nil
}

// chartStyles maps an OverlayStyle onto the chart library's style keys.
func chartStyles(s overlay.OverlayStyle) map[string]any {
	out := map[string]any{}
	if s.Line != nil {
		line := map[string]any{"color": s.Line.Color, "size": s.Line.Size}
		if s.Line.Style != "" {
			line["style"] = s.Line.Style
		}
		if len(s.Line.DashedValue) > 0 {
			line["dashedValue"] = s.Line.DashedValue
		}
		out["line"] = line
	}
	if s.Text != nil {
		out["text"] = map[string]any{
			"color":           s.Text.Color,
			"size":            s.Text.Size,
			"backgroundColor": s.Text.BackgroundColor,
		}
	}
	if s.Fill != nil {
		out["polygon"] = map[string]any{"style": "fill", "color": s.Fill.Color}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// chartFigures converts template figures to the chart library's figure
// objects ({type, attrs, styles}).
func chartFigures(figs []renderer.Figure) []map[string]any {
	out := make([]map[string]any, 0, len(figs))
	for _, f := range figs {
		var attrs map[string]any
		switch f.Type {
		case renderer.FigureCircle:
			if len(f.Coordinates) == 0 || !f.Coordinates[0].Finite() {
				continue
			}
			attrs = map[string]any{"x": f.Coordinates[0].X, "y": f.Coordinates[0].Y, "r": f.Radius}
		case renderer.FigureText:
			if len(f.Coordinates) == 0 || !f.Coordinates[0].Finite() {
				continue
			}
			attrs = map[string]any{"x": f.Coordinates[0].X, "y": f.Coordinates[0].Y, "text": f.Text}
		default:
			pts := make([]map[string]float64, 0, len(f.Coordinates))
			for _, p := range f.Coordinates {
				if !p.Finite() {
					continue
				}
				pts = append(pts, map[string]float64{"x": p.X, "y": p.Y})
			}
			if len(pts) < 2 {
				continue
			}
			attrs = map[string]any{"coordinates": pts}
		}
		fig := map[string]any{
			"type":        string(f.Type),
			"attrs":       attrs,
			"styles":      f.Styles,
			"ignoreEvent": f.IgnoreEvent,
		}
		if f.Key != "" {
			fig["key"] = f.Key
		}
		out = append(out, fig)
	}
	return out
}
