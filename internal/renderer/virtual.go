package renderer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Viewport is the data window mapped onto the Virtual renderer's canvas.
type Viewport struct {
	FromTime int64   `json:"fromTime"`
	ToTime   int64   `json:"toTime"`
	MinPrice float64 `json:"minPrice"`
	MaxPrice float64 `json:"maxPrice"`
}

// Virtual is a deterministic, in-process renderer with linear time and
// price scales. It keeps overlays, indicators and templates in memory and
// paints figures on request.
type Virtual struct {
	mu sync.Mutex

	size     Size
	viewport Viewport
	candles  []Candle
	theme    string

	overlays   map[string]OverlayDescriptor
	order      []string
	templates  map[string]Template
	indicators map[string]string // name → paneID
	nextPane   int

	resizeSubs   map[int]func(Size)
	viewportSubs map[int]func()
	nextSub      int
}

// NewVirtual creates a Virtual renderer of the given size showing vp.
func NewVirtual(size Size, vp Viewport) *Virtual {
	return &Virtual{
		size:         size,
		viewport:     vp,
		overlays:     make(map[string]OverlayDescriptor),
		templates:    make(map[string]Template),
		indicators:   make(map[string]string),
		resizeSubs:   make(map[int]func(Size)),
		viewportSubs: make(map[int]func()),
	}
}

// SetCandles replaces the data list. Candles are kept sorted by timestamp.
func (v *Virtual) SetCandles(candles []Candle) {
	v.mu.Lock()
	v.candles = append([]Candle(nil), candles...)
	sort.Slice(v.candles, func(i, j int) bool { return v.candles[i].Timestamp < v.candles[j].Timestamp })
	v.mu.Unlock()
}

// SetViewport pans/zooms the chart and notifies viewport subscribers.
func (v *Virtual) SetViewport(vp Viewport) {
	v.mu.Lock()
	v.viewport = vp
	subs := make([]func(), 0, len(v.viewportSubs))
	for _, fn := range v.viewportSubs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Viewport returns the current data window.
func (v *Virtual) Viewport() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport
}

// Resize changes the canvas size and notifies resize subscribers.
func (v *Virtual) Resize(size Size) {
	v.mu.Lock()
	v.size = size
	subs := make([]func(Size), 0, len(v.resizeSubs))
	for _, fn := range v.resizeSubs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()
	for _, fn := range subs {
		fn(size)
	}
}

// Theme returns the last theme applied with SetStyles.
func (v *Virtual) Theme() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.theme
}

func (v *Virtual) OnResize(fn func(Size)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.resizeSubs[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.resizeSubs, id)
		v.mu.Unlock()
	}
}

func (v *Virtual) OnViewportChange(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextSub
	v.nextSub++
	v.viewportSubs[id] = fn
	return func() {
		v.mu.Lock()
		delete(v.viewportSubs, id)
		v.mu.Unlock()
	}
}

func (v *Virtual) toPixel(p DataPoint) Pixel {
	vp := v.viewport
	span := float64(vp.ToTime - vp.FromTime)
	priceSpan := vp.MaxPrice - vp.MinPrice
	if span <= 0 || priceSpan <= 0 {
		return Pixel{X: math.NaN(), Y: math.NaN()}
	}
	x := (p.Timestamp - float64(vp.FromTime)) / span * v.size.Width
	y := v.size.Height - (p.Value-vp.MinPrice)/priceSpan*v.size.Height
	return Pixel{X: x, Y: y}
}

func (v *Virtual) fromPixel(px Pixel) DataPoint {
	vp := v.viewport
	if v.size.Width <= 0 || v.size.Height <= 0 {
		return DataPoint{Timestamp: math.NaN(), Value: math.NaN()}
	}
	span := float64(vp.ToTime - vp.FromTime)
	priceSpan := vp.MaxPrice - vp.MinPrice
	ts := float64(vp.FromTime) + px.X/v.size.Width*span
	value := vp.MinPrice + (v.size.Height-px.Y)/v.size.Height*priceSpan
	return DataPoint{Timestamp: ts, Value: value}
}

func (v *Virtual) ConvertToPixel(_ context.Context, points []DataPoint, _ PaneOptions) ([]Pixel, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Pixel, len(points))
	for i, p := range points {
		out[i] = v.toPixel(p)
	}
	return out, nil
}

func (v *Virtual) ConvertFromPixel(_ context.Context, pixels []Pixel, _ PaneOptions) ([]DataPoint, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]DataPoint, len(pixels))
	for i, px := range pixels {
		out[i] = v.fromPixel(px)
	}
	return out, nil
}

func (v *Virtual) CreateOverlay(_ context.Context, d OverlayDescriptor) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if d.ID == "" {
		return "", fmt.Errorf("overlay id is required")
	}
	if _, exists := v.overlays[d.ID]; exists {
		return "", fmt.Errorf("overlay %q already exists", d.ID)
	}
	v.overlays[d.ID] = d
	v.order = append(v.order, d.ID)
	return d.ID, nil
}

func (v *Virtual) OverrideOverlay(_ context.Context, d OverlayDescriptor) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.overlays[d.ID]; !exists {
		return fmt.Errorf("overlay %q not found", d.ID)
	}
	v.overlays[d.ID] = d
	return nil
}

func (v *Virtual) RemoveOverlay(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.overlays[id]; !exists {
		return nil
	}
	delete(v.overlays, id)
	for i, existing := range v.order {
		if existing == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetOverlays returns the overlay with the given id, or every overlay in
// creation order when id is empty.
func (v *Virtual) GetOverlays(_ context.Context, id string) ([]OverlayDescriptor, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id != "" {
		d, ok := v.overlays[id]
		if !ok {
			return nil, nil
		}
		return []OverlayDescriptor{d}, nil
	}
	out := make([]OverlayDescriptor, 0, len(v.order))
	for _, oid := range v.order {
		out = append(out, v.overlays[oid])
	}
	return out, nil
}

func (v *Virtual) GetVisibleRange(context.Context) (VisibleRange, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.candles) == 0 {
		return VisibleRange{}, nil
	}
	first := v.candles[0].Timestamp
	interval := int64(1)
	if len(v.candles) > 1 {
		interval = v.candles[1].Timestamp - first
	}
	if interval <= 0 {
		interval = 1
	}
	realFrom := float64(v.viewport.FromTime-first) / float64(interval)
	realTo := float64(v.viewport.ToTime-first) / float64(interval)
	clamp := func(f float64) int {
		i := int(math.Floor(f))
		if i < 0 {
			return 0
		}
		if i > len(v.candles) {
			return len(v.candles)
		}
		return i
	}
	return VisibleRange{From: clamp(realFrom), To: clamp(realTo + 1), RealFrom: realFrom, RealTo: realTo}, nil
}

func (v *Virtual) GetDataList(context.Context) ([]Candle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Candle(nil), v.candles...), nil
}

func (v *Virtual) GetSize(context.Context) (Size, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size, nil
}

func (v *Virtual) CreateIndicator(_ context.Context, spec IndicatorSpec) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if spec.Name == "" {
		return "", fmt.Errorf("indicator name is required")
	}
	pane := spec.PaneID
	if pane == "" {
		v.nextPane++
		pane = fmt.Sprintf("pane_%d", v.nextPane)
	}
	v.indicators[spec.Name] = pane
	return pane, nil
}

func (v *Virtual) RemoveIndicator(_ context.Context, name, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.indicators, name)
	return nil
}

// Indicators returns a copy of the indicator → pane mapping.
func (v *Virtual) Indicators() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.indicators))
	for k, p := range v.indicators {
		out[k] = p
	}
	return out
}

func (v *Virtual) SetStyles(_ context.Context, theme string) error {
	v.mu.Lock()
	v.theme = theme
	v.mu.Unlock()
	return nil
}

func (v *Virtual) RegisterTemplate(_ context.Context, t Template) error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	v.mu.Lock()
	v.templates[t.Name] = t
	v.mu.Unlock()
	return nil
}

// Figures asks the overlay's template for the primitives to paint, the same
// way a canvas renderer does on every repaint.
func (v *Virtual) Figures(ctx context.Context, id string) ([]Figure, error) {
	v.mu.Lock()
	d, ok := v.overlays[id]
	tmpl, hasTemplate := v.templates[d.Name]
	var coords []Pixel
	if ok {
		coords = make([]Pixel, len(d.Points))
		for i, p := range d.Points {
			coords[i] = v.toPixel(p)
		}
	}
	size := v.size
	v.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("overlay %q not found", id)
	}
	if !hasTemplate || tmpl.CreatePointFigures == nil {
		return nil, fmt.Errorf("no template registered for %q", d.Name)
	}
	return tmpl.CreatePointFigures(FigureContext{
		Ctx:         ctx,
		Renderer:    v,
		Overlay:     d,
		Coordinates: coords,
		Size:        size,
	}), nil
}

// HitTest returns the topmost overlay whose event-intercepting figures
// contain the pixel.
func (v *Virtual) HitTest(ctx context.Context, px Pixel) (string, bool) {
	v.mu.Lock()
	ids := append([]string(nil), v.order...)
	v.mu.Unlock()

	for i := len(ids) - 1; i >= 0; i-- {
		figs, err := v.Figures(ctx, ids[i])
		if err != nil {
			continue
		}
		for _, f := range figs {
			if !f.IgnoreEvent && figureContains(f, px) {
				return ids[i], true
			}
		}
	}
	return "", false
}

func figureContains(f Figure, px Pixel) bool {
	if len(f.Coordinates) == 0 {
		return false
	}
	if f.Type == FigureCircle {
		c := f.Coordinates[0]
		return math.Hypot(px.X-c.X, px.Y-c.Y) <= f.Radius
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range f.Coordinates {
		minX, maxX = math.Min(minX, c.X), math.Max(maxX, c.X)
		minY, maxY = math.Min(minY, c.Y), math.Max(maxY, c.Y)
	}
	pad := f.Styles.Size / 2
	return px.X >= minX-pad && px.X <= maxX+pad && px.Y >= minY-pad && px.Y <= maxY+pad
}
