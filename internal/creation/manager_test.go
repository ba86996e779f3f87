package creation

import (
	"context"
	"math"
	"testing"

	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

const t0 = int64(1700000000000)

func newTestManager(t *testing.T, cfg Config) (*Manager, *drawing.Manager, *renderer.Virtual) {
	t.Helper()
	v := renderer.NewVirtual(renderer.Size{Width: 1000, Height: 500}, renderer.Viewport{
		FromTime: t0,
		ToTime:   t0 + 3600000,
		MinPrice: 90,
		MaxPrice: 110,
	})
	proj := projection.NewManager(projection.Config{Renderer: v, Scheduler: frame.NewManual()})
	t.Cleanup(proj.Dispose)
	dm := drawing.NewManager(proj, nil)
	proj.SetSource(dm)
	cfg.Renderer = v
	cfg.Drawings = dm
	return NewManager(cfg), dm, v
}

func pts(values ...float64) []overlay.OverlayPoint {
	out := make([]overlay.OverlayPoint, 0, len(values)/2)
	for i := 0; i+1 < len(values); i += 2 {
		out = append(out, overlay.OverlayPoint{T: int64(values[i]), P: overlay.Price(values[i+1])})
	}
	return out
}

func TestCreatePointFromMouse(t *testing.T) {
	m, _, v := newTestManager(t, Config{})
	ctx := context.Background()

	p, err := m.CreatePointFromMouse(ctx, 500, 250, "")
	if err != nil {
		t.Fatalf("CreatePointFromMouse() error = %v", err)
	}
	if p.T != t0+1800000 || math.Abs(p.P.Float()-100) > 1e-9 || p.ID == "" {
		t.Fatalf("CreatePointFromMouse() = %+v; want t=%d p=100 with id", p, t0+1800000)
	}

	v.Resize(renderer.Size{})
	if _, err := m.CreatePointFromMouse(ctx, 500, 250, ""); !overlay.HasCode(err, overlay.CodeConversionFailed) {
		t.Fatalf("CreatePointFromMouse() on zero-size chart error = %v; want CONVERSION_FAILED", err)
	}
}

func TestCreateOverlayStoresUnderCurrentSymbol(t *testing.T) {
	m, dm, v := newTestManager(t, Config{})
	ctx := context.Background()
	m.SetCurrentSymbolKey(ctx, "dsebd:gp")

	o, err := m.CreateOverlay(ctx, overlay.TypeLine, pts(float64(t0), 100, float64(t0+600000), 105), Options{})
	if err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}
	if o.SymbolKey != "DSEBD:GP" || o.Version != overlay.Version || !o.Visible {
		t.Fatalf("CreateOverlay() = %+v; want visible DSEBD:GP overlay", o)
	}
	if o.Style.Line == nil || o.Style.Fill != nil {
		t.Fatalf("line style = %+v; want line-only default", o.Style)
	}
	for _, p := range o.Points {
		if p.ID == "" {
			t.Fatal("CreateOverlay() left a point without id")
		}
	}

	got := dm.GetCurrentSymbolDrawings()
	if len(got) != 1 || got[0].ID != o.ID {
		t.Fatalf("stored drawings = %+v; want the new overlay", got)
	}
	if overlays, _ := v.GetOverlays(ctx, o.ID); len(overlays) != 1 {
		t.Fatal("new overlay not rendered")
	}
	if all := m.GetAllOverlays(); len(all) != 1 || all[0].ID != o.ID {
		t.Fatalf("GetAllOverlays() = %+v; want one overlay", all)
	}
}

func TestCreateOverlayWithoutSymbolIsNotStored(t *testing.T) {
	m, dm, _ := newTestManager(t, Config{})
	o, err := m.CreateOverlay(context.Background(), overlay.TypeHLine, pts(float64(t0), 100), Options{})
	if err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}
	if o.ID == "" || !o.SymbolKey.IsZero() {
		t.Fatalf("CreateOverlay() = %+v; want an unscoped overlay", o)
	}
	if dm.GetStats().TotalDrawings != 0 {
		t.Fatal("overlay without symbol was stored")
	}
}

func TestCreateOverlaySymbolOverride(t *testing.T) {
	m, dm, _ := newTestManager(t, Config{})
	ctx := context.Background()
	m.SetCurrentSymbolKey(ctx, "DSEBD:GP")

	o, err := m.CreateOverlay(ctx, overlay.TypeHLine, pts(float64(t0), 100), Options{SymbolKey: "nasdaq:aapl"})
	if err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}
	if o.SymbolKey != "NASDAQ:AAPL" {
		t.Fatalf("SymbolKey = %q; want NASDAQ:AAPL", o.SymbolKey)
	}
	if len(dm.GetDrawingsForSymbol("NASDAQ:AAPL")) != 1 || len(dm.RenderedIDs()) != 0 {
		t.Fatal("override symbol drawing must be stored but not rendered")
	}
}

func TestCreateOverlayValidation(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	m.SetCurrentSymbolKey(ctx, "GP")

	tests := []struct {
		name   string
		t      overlay.OverlayType
		points []overlay.OverlayPoint
	}{
		{"unknown type", "spiral", pts(float64(t0), 100)},
		{"too few points", overlay.TypeRectangle, pts(float64(t0), 100)},
		{"too many points", overlay.TypeHLine, pts(float64(t0), 100, float64(t0), 101)},
		{"zero timestamp", overlay.TypeHLine, pts(0, 100)},
		{"negative price", overlay.TypeHLine, pts(float64(t0), -1)},
		{"nan price", overlay.TypeHLine, []overlay.OverlayPoint{{T: t0, P: overlay.Price(math.NaN())}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.CreateOverlay(ctx, tt.t, tt.points, Options{}); !overlay.HasCode(err, overlay.CodeValidation) {
				t.Fatalf("CreateOverlay() error = %v; want VALIDATION", err)
			}
		})
	}
}

func TestCreateOverlayPrecisionAndSnapping(t *testing.T) {
	m, _, v := newTestManager(t, Config{Precision: 2, SnapToBars: true})
	ctx := context.Background()
	v.SetCandles([]renderer.Candle{{Timestamp: t0}, {Timestamp: t0 + 60000}, {Timestamp: t0 + 120000}})
	m.SetCurrentSymbolKey(ctx, "GP")

	o, err := m.CreateOverlay(ctx, overlay.TypeHLine, pts(float64(t0+70000), 100.12345), Options{})
	if err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}
	if o.Points[0].T != t0+60000 {
		t.Fatalf("T = %d; want snapped to %d", o.Points[0].T, t0+60000)
	}
	if o.Points[0].P != 100.12 {
		t.Fatalf("P = %v; want 100.12", o.Points[0].P)
	}
}

func TestCreateOverlayPrecisionKeepsSubUnitPrices(t *testing.T) {
	m, _, _ := newTestManager(t, Config{Precision: 2})
	ctx := context.Background()
	m.SetCurrentSymbolKey(ctx, "GP")

	o, err := m.CreateOverlay(ctx, overlay.TypeLine, pts(float64(t0), 0.0042, float64(t0+600000), 0.0051), Options{})
	if err != nil {
		t.Fatalf("CreateOverlay(p=0.0042) error = %v", err)
	}
	if o.Points[0].P != 0.0042 || o.Points[1].P != 0.0051 {
		t.Fatalf("points = %+v; want prices kept at 0.0042 and 0.0051", o.Points)
	}
}

func TestCreateOverlayWithoutPrecisionKeepsPrices(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	m.SetCurrentSymbolKey(ctx, "GP")

	o, err := m.CreateOverlay(ctx, overlay.TypeLine, pts(float64(t0), 1.23456, float64(t0+600000), 1.23499), Options{})
	if err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}
	if o.Points[0].P == o.Points[1].P {
		t.Fatalf("points = %+v; want distinct prices", o.Points)
	}
}

func TestCustomDefaultStyle(t *testing.T) {
	m, _, _ := newTestManager(t, Config{Styles: map[overlay.OverlayType]overlay.OverlayStyle{
		overlay.TypeRectangle: {Line: &overlay.LineStyle{Size: 4}},
	}})
	s := m.DefaultStyle(overlay.TypeRectangle)
	if s.Line == nil || s.Line.Size != 4 || s.Line.Color == "" || s.Fill == nil {
		t.Fatalf("DefaultStyle() = %+v; want width override on top of rectangle defaults", s)
	}
}

func TestUpdateRemoveAndClear(t *testing.T) {
	m, dm, v := newTestManager(t, Config{})
	ctx := context.Background()
	m.SetCurrentSymbolKey(ctx, "GP")
	a, _ := m.CreateOverlay(ctx, overlay.TypeLine, pts(float64(t0), 100, float64(t0+600000), 105), Options{})
	b, _ := m.CreateOverlay(ctx, overlay.TypeHLine, pts(float64(t0), 101), Options{})

	moved, err := m.UpdateOverlayPoints(ctx, a.ID, pts(float64(t0+60000), 99, float64(t0+660000), 104))
	if err != nil {
		t.Fatalf("UpdateOverlayPoints() error = %v", err)
	}
	got, ok := m.GetOverlay(a.ID)
	if !ok || got.Points[0].T != t0+60000 || got.Points[1].P != 104 || moved.Style.Line == nil {
		t.Fatalf("GetOverlay() = %+v; want moved points", got)
	}
	if _, err := m.UpdateOverlayPoints(ctx, a.ID, pts(float64(t0), 1)); !overlay.HasCode(err, overlay.CodeValidation) {
		t.Fatalf("UpdateOverlayPoints(1 point) error = %v; want VALIDATION", err)
	}
	if _, err := m.UpdateOverlayPoints(ctx, "missing", nil); !overlay.HasCode(err, overlay.CodeNotFound) {
		t.Fatalf("UpdateOverlayPoints(missing) error = %v; want NOT_FOUND", err)
	}

	if err := m.RemoveOverlay(ctx, b.ID); err != nil {
		t.Fatalf("RemoveOverlay() error = %v", err)
	}
	if overlays, _ := v.GetOverlays(ctx, b.ID); len(overlays) != 0 {
		t.Fatal("removed overlay still rendered")
	}
	if err := m.RemoveStoredDataSpaceOverlay(ctx, "OTHER", a.ID); !overlay.HasCode(err, overlay.CodeNotFound) {
		t.Fatalf("RemoveStoredDataSpaceOverlay(wrong symbol) error = %v; want NOT_FOUND", err)
	}

	m.ClearAllOverlays(ctx)
	if dm.GetStats().TotalDrawings != 0 {
		t.Fatal("ClearAllOverlays() left drawings")
	}
}

func TestConvertLegacyOverlay(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()
	ts, val := float64(t0), 100.0
	x, y := 500.0, 250.0
	nan := math.NaN()

	tests := []struct {
		name   string
		legacy overlay.LegacyOverlay
		ok     bool
		kind   overlay.OverlayType
		points int
	}{
		{
			name:   "timestamp value pairs",
			legacy: overlay.LegacyOverlay{ID: "a", Name: "segment", Points: []overlay.LegacyPoint{{Timestamp: &ts, Value: &val}, {Timestamp: &ts, Value: &val}}},
			ok:     true, kind: overlay.TypeLine, points: 2,
		},
		{
			name:   "pixel pairs",
			legacy: overlay.LegacyOverlay{ID: "b", Type: "rectangle", Points: []overlay.LegacyPoint{{X: &x, Y: &y}, {X: &x, Y: &y}}},
			ok:     true, kind: overlay.TypeRectangle, points: 2,
		},
		{
			name:   "non-finite points dropped",
			legacy: overlay.LegacyOverlay{ID: "c", Name: "priceLine", Points: []overlay.LegacyPoint{{Timestamp: &nan, Value: &val}, {T: &ts, P: &val}}},
			ok:     true, kind: overlay.TypeHLine, points: 1,
		},
		{
			name:   "no surviving points",
			legacy: overlay.LegacyOverlay{ID: "d", Name: "segment", Points: []overlay.LegacyPoint{{Timestamp: &nan, Value: &nan}}},
		},
		{
			name:   "unknown kind",
			legacy: overlay.LegacyOverlay{ID: "e", Name: "elliottWave", Points: []overlay.LegacyPoint{{Timestamp: &ts, Value: &val}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, ok := m.ConvertLegacyOverlay(ctx, tt.legacy, renderer.CandlePane)
			if ok != tt.ok {
				t.Fatalf("ConvertLegacyOverlay() ok = %v; want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if o.Type != tt.kind || len(o.Points) != tt.points || o.ID != tt.legacy.ID || !o.Visible {
				t.Fatalf("ConvertLegacyOverlay() = %+v; want %s with %d points", o, tt.kind, tt.points)
			}
			for _, p := range o.Points {
				if !p.Valid() {
					t.Fatalf("point %+v is not valid", p)
				}
			}
		})
	}
}

func TestConvertLegacyOverlaySatisfiesMigration(t *testing.T) {
	m, dm, _ := newTestManager(t, Config{})
	report := dm.MigrateLegacyStorage(context.Background(), []drawing.LegacyEntry{
		{Key: "overlay:GP_1D_px", Value: `{"id":"px","name":"segment","points":[{"x":100,"y":100},{"x":200,"y":200}]}`},
	}, m, "")
	if report.Migrated != 1 {
		t.Fatalf("report = %+v; want 1 migrated", report)
	}
	if d := dm.GetDrawingsForSymbol("GP"); len(d) != 1 || len(d[0].Points) != 2 {
		t.Fatalf("migrated drawings = %+v; want one 2-point drawing", d)
	}
}
