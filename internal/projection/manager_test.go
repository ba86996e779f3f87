package projection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/renderer/renderertest"
)

type sliceSource struct {
	overlays []overlay.DataSpaceOverlay
	onRead   func()
}

func (s *sliceSource) ProjectionSet() []overlay.DataSpaceOverlay {
	if s.onRead != nil {
		s.onRead()
	}
	return s.overlays
}

func viewport() renderer.Viewport {
	return renderer.Viewport{FromTime: 1700000000000, ToTime: 1700003600000, MinPrice: 90, MaxPrice: 110}
}

func line(id string) overlay.DataSpaceOverlay {
	return overlay.DataSpaceOverlay{
		ID:        id,
		SymbolKey: "DSEBD:GP",
		Type:      overlay.TypeLine,
		Points: []overlay.OverlayPoint{
			{ID: id + "-1", T: 1700000000000, P: 100},
			{ID: id + "-2", T: 1700000600000, P: 105},
		},
		Style:   overlay.DefaultStyle(overlay.TypeLine),
		Visible: true,
	}
}

type fixture struct {
	virtual *renderer.Virtual
	rec     *renderertest.Recorder
	sched   *frame.Manual
	source  *sliceSource
	mgr     *Manager
}

// newFixture wraps the Virtual renderer in a Recorder, which hides its
// native notifiers, so the manager falls back to polling.
func newFixture(t *testing.T, overlays ...overlay.DataSpaceOverlay) *fixture {
	t.Helper()
	v := renderer.NewVirtual(renderer.Size{Width: 1000, Height: 500}, viewport())
	rec := renderertest.New(v)
	sched := frame.NewManual()
	src := &sliceSource{overlays: overlays}
	mgr := NewManager(Config{Renderer: rec, Scheduler: sched})
	mgr.SetSource(src)
	return &fixture{virtual: v, rec: rec, sched: sched, source: src, mgr: mgr}
}

func TestProjectAllIsIdempotent(t *testing.T) {
	f := newFixture(t, line("a"), line("b"))
	ctx := context.Background()

	first := f.mgr.ProjectAllOverlays(ctx, ReasonManual)
	second := f.mgr.ProjectAllOverlays(ctx, ReasonManual)

	if first.Projected != 2 || second.Projected != 0 || second.Unchanged != 2 {
		t.Fatalf("passes = %+v / %+v; want 2 projected then 2 unchanged", first, second)
	}
	if n := f.rec.Count("CreateOverlay", "a"); n != 1 {
		t.Fatalf("CreateOverlay(a) calls = %d; want 1", n)
	}
	got, _ := f.virtual.GetOverlays(ctx, "")
	if len(got) != 2 {
		t.Fatalf("renderer overlays = %d; want 2", len(got))
	}
}

func TestViewportChangeUpdatesInPlace(t *testing.T) {
	f := newFixture(t, line("a"))
	ctx := context.Background()
	f.mgr.ProjectAllOverlays(ctx, ReasonManual)

	vp := viewport()
	vp.FromTime += 600000
	vp.ToTime += 600000
	f.virtual.SetViewport(vp)
	ev := f.mgr.ProjectAllOverlays(ctx, ReasonViewport)

	if ev.Projected != 1 {
		t.Fatalf("Projected = %d; want 1", ev.Projected)
	}
	if f.rec.Count("CreateOverlay", "a") != 1 || f.rec.Count("OverrideOverlay", "a") != 1 {
		t.Fatalf("calls = %+v; want one create and one override", f.rec.Calls())
	}
	got, _ := f.virtual.GetOverlays(ctx, "a")
	if math.Abs(got[0].Coordinates[0].X-(-1000.0/6)) > 1e-9 {
		t.Fatalf("first coordinate = %+v; want x shifted left", got[0].Coordinates[0])
	}
}

func TestRequestProjectionCoalesces(t *testing.T) {
	f := newFixture(t, line("a"))
	passes := 0
	var reason string
	f.mgr.AddEventListener(func(ev Event) {
		if ev.Type == EventProjected {
			passes++
			reason = ev.Reason
		}
	})

	f.mgr.RequestProjection(ReasonResize)
	f.mgr.OnTimeframeChange()
	f.mgr.OnPriceScaleChange()
	if f.sched.PendingFrames() != 1 {
		t.Fatalf("PendingFrames() = %d; want 1", f.sched.PendingFrames())
	}
	f.sched.Flush()
	if passes != 1 || reason != ReasonPriceScale {
		t.Fatalf("passes=%d reason=%q; want 1 pass for %q", passes, reason, ReasonPriceScale)
	}
	if f.mgr.HasPendingProjection() {
		t.Fatal("HasPendingProjection() = true after flush")
	}
}

func TestPollingWatcherTriggersProjection(t *testing.T) {
	f := newFixture(t, line("a"))
	candles := make([]renderer.Candle, 60)
	for i := range candles {
		candles[i] = renderer.Candle{Timestamp: viewport().FromTime + int64(i)*60000}
	}
	f.virtual.SetCandles(candles)
	f.sched.Advance(DefaultPollInterval) // primes the last-seen state
	if f.sched.PendingFrames() != 0 {
		t.Fatal("first poll requested a projection")
	}

	vp := viewport()
	vp.FromTime += 600000
	vp.ToTime += 600000
	f.virtual.SetViewport(vp)
	f.sched.Advance(DefaultPollInterval)
	if !f.mgr.HasPendingProjection() {
		t.Fatal("viewport change did not request a projection")
	}
	f.sched.Flush()
	if f.rec.Count("CreateOverlay", "a") != 1 {
		t.Fatal("projection pass did not render the overlay")
	}

	f.virtual.Resize(renderer.Size{Width: 800, Height: 500})
	var reason string
	f.mgr.AddEventListener(func(ev Event) { reason = ev.Reason })
	f.sched.Advance(DefaultPollInterval)
	f.sched.Flush()
	if reason != ReasonResize {
		t.Fatalf("reason = %q; want %q", reason, ReasonResize)
	}
}

func TestNativeWatcher(t *testing.T) {
	v := renderer.NewVirtual(renderer.Size{Width: 1000, Height: 500}, viewport())
	sched := frame.NewManual()
	mgr := NewManager(Config{Renderer: v, Scheduler: sched})
	mgr.SetSource(&sliceSource{overlays: []overlay.DataSpaceOverlay{line("a")}})
	if sched.ActiveIntervals() != 0 {
		t.Fatal("native watcher should not poll")
	}

	v.SetViewport(viewport())
	sched.Flush() // hop onto the scheduler thread
	if !mgr.HasPendingProjection() {
		t.Fatal("viewport event did not request a projection")
	}
	sched.Flush()
	got, _ := v.GetOverlays(context.Background(), "a")
	if len(got) != 1 {
		t.Fatal("overlay not rendered after native viewport event")
	}
}

func TestOneFailingOverlayDoesNotAbortPass(t *testing.T) {
	f := newFixture(t, line("a"), line("b"), line("c"))
	f.rec.FailOnID("CreateOverlay", "b", errors.New("canvas exploded"))

	ev := f.mgr.ProjectAllOverlays(context.Background(), ReasonManual)
	if ev.Projected != 2 || ev.Failed != 1 {
		t.Fatalf("pass = %+v; want 2 projected, 1 failed", ev)
	}

	f.rec.FailOnID("CreateOverlay", "b", nil)
	ev = f.mgr.ProjectAllOverlays(context.Background(), ReasonManual)
	if ev.Projected != 1 || ev.Unchanged != 2 {
		t.Fatalf("retry pass = %+v; want b projected, others unchanged", ev)
	}
}

func TestUnprojectableOverlayKeepsPreviousRender(t *testing.T) {
	f := newFixture(t, line("a"))
	ctx := context.Background()
	f.mgr.ProjectAllOverlays(ctx, ReasonManual)

	f.virtual.SetViewport(renderer.Viewport{})
	ev := f.mgr.ProjectAllOverlays(ctx, ReasonViewport)
	if ev.Skipped != 1 || f.rec.Count("OverrideOverlay", "") != 0 || f.rec.Count("RemoveOverlay", "") != 0 {
		t.Fatalf("pass = %+v calls = %+v; want skip without touching the renderer", ev, f.rec.Calls())
	}
}

func TestHiddenOverlaysAreSkipped(t *testing.T) {
	hidden := line("h")
	hidden.Visible = false
	f := newFixture(t, hidden)
	ev := f.mgr.ProjectAllOverlays(context.Background(), ReasonManual)
	if ev.Skipped != 1 || f.rec.Count("CreateOverlay", "") != 0 {
		t.Fatalf("pass = %+v; want hidden overlay skipped", ev)
	}
}

func TestReentrantProjectionIsDeferred(t *testing.T) {
	f := newFixture(t, line("a"))
	nested := Event{Projected: -1}
	f.source.onRead = func() {
		f.source.onRead = nil
		nested = f.mgr.ProjectAllOverlays(context.Background(), ReasonTimezone)
	}

	f.mgr.ProjectAllOverlays(context.Background(), ReasonManual)
	if nested.Projected != 0 {
		t.Fatalf("nested pass = %+v; want it dropped", nested)
	}
	if !f.mgr.HasPendingProjection() {
		t.Fatal("nested pass was not deferred to the next frame")
	}
}

func TestAddAndRemoveOverlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var events []string
	id := f.mgr.AddEventListener(func(ev Event) { events = append(events, ev.Type) })

	if err := f.mgr.AddOverlay(ctx, line("a")); err != nil {
		t.Fatalf("AddOverlay() error = %v", err)
	}
	if err := f.mgr.AddOverlay(ctx, line("a")); err != nil {
		t.Fatalf("AddOverlay() again error = %v", err)
	}
	if f.rec.Count("CreateOverlay", "a") != 1 {
		t.Fatal("adding the same overlay twice created it twice")
	}
	moved := line("a")
	moved.Points[1].P = 108
	if err := f.mgr.UpdateOverlay(ctx, moved); err != nil {
		t.Fatalf("UpdateOverlay() error = %v", err)
	}
	if f.rec.Count("OverrideOverlay", "a") != 1 {
		t.Fatal("UpdateOverlay() did not override in place")
	}
	if err := f.mgr.RemoveOverlay(ctx, "a"); err != nil {
		t.Fatalf("RemoveOverlay() error = %v", err)
	}
	got, _ := f.virtual.GetOverlays(ctx, "a")
	if len(got) != 0 {
		t.Fatal("overlay still on the renderer")
	}

	f.mgr.RemoveEventListener(id)
	_ = f.mgr.AddOverlay(ctx, line("b"))
	want := []string{EventOverlayAdded, EventOverlayAdded, EventOverlayUpdated, EventOverlayRemoved}
	if len(events) != len(want) {
		t.Fatalf("events = %v; want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v; want %v", events, want)
		}
	}
}

func TestRemoveOverlayFailureIsCoded(t *testing.T) {
	f := newFixture(t)
	f.rec.FailOn("RemoveOverlay", errors.New("gone"))
	err := f.mgr.RemoveOverlay(context.Background(), "x")
	if !overlay.HasCode(err, overlay.CodeRendererFailure) {
		t.Fatalf("RemoveOverlay() error = %v; want RENDERER_FAILURE", err)
	}
}

func TestDisposeReleasesEverything(t *testing.T) {
	f := newFixture(t, line("a"))
	disposedSeen := false
	f.mgr.AddEventListener(func(ev Event) {
		if ev.Type == EventDisposed {
			disposedSeen = true
		}
	})
	f.mgr.RequestProjection(ReasonManual)

	f.mgr.Dispose()
	if !disposedSeen {
		t.Fatal("listeners not told about disposal")
	}
	if f.sched.PendingFrames() != 0 {
		t.Fatalf("PendingFrames() = %d; want 0", f.sched.PendingFrames())
	}
	if f.sched.ActiveIntervals() != 0 {
		t.Fatalf("ActiveIntervals() = %d; want 0", f.sched.ActiveIntervals())
	}

	f.mgr.RequestProjection(ReasonManual)
	f.sched.Advance(time.Second)
	f.sched.Flush()
	if f.rec.Count("CreateOverlay", "") != 0 {
		t.Fatal("disposed manager still rendered")
	}
	if err := f.mgr.AddOverlay(context.Background(), line("z")); err == nil {
		t.Fatal("AddOverlay() after Dispose: want error")
	}
	f.mgr.Dispose()
}

func TestDisposeCancelsResizeSubscription(t *testing.T) {
	v := renderer.NewVirtual(renderer.Size{Width: 100, Height: 100}, viewport())
	sched := frame.NewManual()
	mgr := NewManager(Config{Renderer: v, Scheduler: sched})
	mgr.Dispose()
	v.Resize(renderer.Size{Width: 10, Height: 10})
	v.SetViewport(viewport())
	if sched.PendingFrames() != 0 {
		t.Fatalf("PendingFrames() = %d after dispose; want 0", sched.PendingFrames())
	}
}
