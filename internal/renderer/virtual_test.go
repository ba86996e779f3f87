package renderer

import (
	"context"
	"math"
	"testing"
)

func testViewport() Viewport {
	return Viewport{FromTime: 1700000000000, ToTime: 1700003600000, MinPrice: 90, MaxPrice: 110}
}

func TestVirtualConversionRoundTrip(t *testing.T) {
	v := NewVirtual(Size{Width: 1000, Height: 500}, testViewport())
	ctx := context.Background()

	px, err := v.ConvertToPixel(ctx, []DataPoint{{Timestamp: 1700001800000, Value: 100}}, PaneOptions{})
	if err != nil {
		t.Fatalf("ConvertToPixel() error = %v", err)
	}
	if px[0].X != 500 || px[0].Y != 250 {
		t.Fatalf("ConvertToPixel() = %+v; want {500 250}", px[0])
	}

	back, err := v.ConvertFromPixel(ctx, px, PaneOptions{})
	if err != nil {
		t.Fatalf("ConvertFromPixel() error = %v", err)
	}
	if math.Abs(back[0].Timestamp-1700001800000) > 1 || math.Abs(back[0].Value-100) > 1e-9 {
		t.Fatalf("ConvertFromPixel() = %+v; want {1700001800000 100}", back[0])
	}
}

func TestVirtualDegenerateViewportIsNonFinite(t *testing.T) {
	v := NewVirtual(Size{Width: 1000, Height: 500}, Viewport{FromTime: 5, ToTime: 5, MinPrice: 1, MaxPrice: 2})
	px, _ := v.ConvertToPixel(context.Background(), []DataPoint{{Timestamp: 5, Value: 1}}, PaneOptions{})
	if px[0].Finite() {
		t.Fatalf("ConvertToPixel() = %+v; want non-finite", px[0])
	}
}

func TestVirtualOverlayLifecycle(t *testing.T) {
	v := NewVirtual(Size{Width: 100, Height: 100}, testViewport())
	ctx := context.Background()

	if _, err := v.CreateOverlay(ctx, OverlayDescriptor{ID: "a", Name: "line"}); err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}
	if _, err := v.CreateOverlay(ctx, OverlayDescriptor{ID: "a", Name: "line"}); err == nil {
		t.Fatal("CreateOverlay() duplicate id: want error")
	}
	if err := v.OverrideOverlay(ctx, OverlayDescriptor{ID: "a", Name: "line", Lock: true}); err != nil {
		t.Fatalf("OverrideOverlay() error = %v", err)
	}
	got, _ := v.GetOverlays(ctx, "a")
	if len(got) != 1 || !got[0].Lock {
		t.Fatalf("GetOverlays() = %+v; want locked overlay", got)
	}
	if err := v.RemoveOverlay(ctx, "a"); err != nil {
		t.Fatalf("RemoveOverlay() error = %v", err)
	}
	got, _ = v.GetOverlays(ctx, "")
	if len(got) != 0 {
		t.Fatalf("GetOverlays() after remove = %d; want 0", len(got))
	}
}

func TestVirtualVisibleRange(t *testing.T) {
	v := NewVirtual(Size{Width: 100, Height: 100}, Viewport{FromTime: 120000, ToTime: 300000, MinPrice: 1, MaxPrice: 2})
	candles := make([]Candle, 10)
	for i := range candles {
		candles[i] = Candle{Timestamp: int64(i) * 60000}
	}
	v.SetCandles(candles)

	vr, err := v.GetVisibleRange(context.Background())
	if err != nil {
		t.Fatalf("GetVisibleRange() error = %v", err)
	}
	if vr.From != 2 || vr.To != 6 || vr.RealFrom != 2 || vr.RealTo != 5 {
		t.Fatalf("GetVisibleRange() = %+v; want from=2 to=6 real=2..5", vr)
	}
}

func TestVirtualNotifiers(t *testing.T) {
	v := NewVirtual(Size{Width: 100, Height: 100}, testViewport())
	var resized Size
	var moved int
	cancelResize := v.OnResize(func(s Size) { resized = s })
	cancelViewport := v.OnViewportChange(func() { moved++ })

	v.Resize(Size{Width: 200, Height: 50})
	v.SetViewport(testViewport())
	if resized.Width != 200 || moved != 1 {
		t.Fatalf("notifications = (%+v, %d); want ({200 50}, 1)", resized, moved)
	}

	cancelResize()
	cancelViewport()
	v.Resize(Size{Width: 300, Height: 50})
	v.SetViewport(testViewport())
	if resized.Width != 200 || moved != 1 {
		t.Fatal("notifications delivered after cancel")
	}
}

func TestVirtualFiguresAndHitTest(t *testing.T) {
	v := NewVirtual(Size{Width: 1000, Height: 500}, testViewport())
	ctx := context.Background()
	err := v.RegisterTemplate(ctx, Template{
		Name: "box",
		CreatePointFigures: func(fc FigureContext) []Figure {
			return []Figure{{Type: FigurePolygon, Coordinates: fc.Coordinates, IgnoreEvent: false}}
		},
	})
	if err != nil {
		t.Fatalf("RegisterTemplate() error = %v", err)
	}
	d := OverlayDescriptor{ID: "b", Name: "box", Points: []DataPoint{
		{Timestamp: 1700000000000, Value: 110},
		{Timestamp: 1700001800000, Value: 100},
	}}
	if _, err := v.CreateOverlay(ctx, d); err != nil {
		t.Fatalf("CreateOverlay() error = %v", err)
	}

	if id, ok := v.HitTest(ctx, Pixel{X: 250, Y: 100}); !ok || id != "b" {
		t.Fatalf("HitTest(inside) = (%q, %v); want (b, true)", id, ok)
	}
	if _, ok := v.HitTest(ctx, Pixel{X: 900, Y: 400}); ok {
		t.Fatal("HitTest(outside) = true; want false")
	}
}
