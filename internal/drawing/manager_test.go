package drawing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/renderer/renderertest"
)

type fixture struct {
	virtual *renderer.Virtual
	rec     *renderertest.Recorder
	proj    *projection.Manager
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	v := renderer.NewVirtual(renderer.Size{Width: 1000, Height: 500}, renderer.Viewport{
		FromTime: 1700000000000,
		ToTime:   1700003600000,
		MinPrice: 90,
		MaxPrice: 110,
	})
	rec := renderertest.New(v)
	proj := projection.NewManager(projection.Config{Renderer: rec, Scheduler: frame.NewManual()})
	mgr := NewManager(proj, nil)
	proj.SetSource(mgr)
	t.Cleanup(proj.Dispose)
	return &fixture{virtual: v, rec: rec, proj: proj, mgr: mgr}
}

func gpLine(id string, symbol overlay.SymbolKey) overlay.Drawing {
	return overlay.Drawing{
		ID:        id,
		SymbolKey: symbol,
		Type:      overlay.TypeLine,
		Points: []overlay.DrawingPoint{
			{ID: id + "-1", Time: 1700000000000, Price: 100},
			{ID: id + "-2", Time: 1700000600000, Price: 105},
		},
		Style:   overlay.DefaultStyle(overlay.TypeLine),
		Version: overlay.Version,
	}
}

func (f *fixture) rendererIDs(t *testing.T) []string {
	t.Helper()
	got, err := f.virtual.GetOverlays(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(got))
	for i, d := range got {
		ids[i] = d.ID
	}
	return ids
}

func TestCurrentSymbolDrawingsScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.mgr.AddDrawing(ctx, gpLine("gp-line", "DSEBD:GP")); err != nil {
		t.Fatalf("AddDrawing() error = %v", err)
	}
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")

	got := f.mgr.GetCurrentSymbolDrawings()
	if len(got) != 1 {
		t.Fatalf("GetCurrentSymbolDrawings() = %d drawings; want 1", len(got))
	}
	if got[0].Points[0].Time != 1700000000000 || got[0].Points[0].Price != 100 ||
		got[0].Points[1].Time != 1700000600000 || got[0].Points[1].Price != 105 {
		t.Fatalf("points = %+v; want the two anchors", got[0].Points)
	}
	if ids := f.rendererIDs(t); len(ids) != 1 || ids[0] != "gp-line" {
		t.Fatalf("renderer overlays = %v; want [gp-line]", ids)
	}

	f.mgr.SetCurrentSymbol(ctx, "DSEBD:ROBI")
	if got := f.mgr.GetCurrentSymbolDrawings(); len(got) != 0 {
		t.Fatalf("GetCurrentSymbolDrawings() after switch = %d; want 0", len(got))
	}
	if f.rec.Count("RemoveOverlay", "gp-line") != 1 {
		t.Fatalf("RemoveOverlay(gp-line) calls = %d; want 1", f.rec.Count("RemoveOverlay", "gp-line"))
	}
	if len(f.rendererIDs(t)) != 0 {
		t.Fatal("renderer still shows the previous symbol's drawing")
	}
	if len(f.mgr.GetDrawingsForSymbol("DSEBD:GP")) != 1 {
		t.Fatal("symbol switch touched stored data")
	}
}

func TestAddDrawingWithoutSymbolIsRejected(t *testing.T) {
	f := newFixture(t)
	d := gpLine("orphan", "")
	err := f.mgr.AddDrawing(context.Background(), d)
	if !overlay.HasCode(err, overlay.CodeMissingSymbol) {
		t.Fatalf("AddDrawing() error = %v; want MISSING_SYMBOL", err)
	}
	if stats := f.mgr.GetStats(); stats.TotalDrawings != 0 || stats.TotalSymbols != 0 {
		t.Fatalf("GetStats() = %+v; want empty store", stats)
	}
}

func TestSetCurrentSymbolNormalizesAndIsNoOpWhenUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.AddDrawing(ctx, gpLine("a", "dsebd:gp"))
	changes := 0
	f.mgr.Subscribe(func(c Change) {
		if c.Type == ChangeSymbol {
			changes++
		}
	})

	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	f.mgr.SetCurrentSymbol(ctx, " dsebd:gp ")
	if changes != 1 {
		t.Fatalf("symbol change notifications = %d; want 1", changes)
	}
	if f.rec.Count("CreateOverlay", "a") != 1 || f.rec.Count("RemoveOverlay", "") != 0 {
		t.Fatalf("calls = %+v; want a single render", f.rec.Calls())
	}
}

func TestRenderGuardRejectsOtherSymbols(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")

	if f.mgr.renderDrawing(ctx, gpLine("x", "DSEBD:ROBI")) {
		t.Fatal("renderDrawing() accepted a drawing of another symbol")
	}
	if f.rec.Count("CreateOverlay", "") != 0 {
		t.Fatal("renderer reached despite symbol mismatch")
	}
}

func TestSymbolIsolationAndRenderSubset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	symbols := []overlay.SymbolKey{"DSEBD:GP", "DSEBD:ROBI", "NASDAQ:AAPL"}
	rng := rand.New(rand.NewSource(7))
	var last overlay.SymbolKey

	for step := 0; step < 300; step++ {
		sym := symbols[rng.Intn(len(symbols))]
		switch rng.Intn(5) {
		case 0:
			f.mgr.SetCurrentSymbol(ctx, sym)
			last = sym
		case 1:
			_ = f.mgr.RemoveDrawing(ctx, fmt.Sprintf("d%d", rng.Intn(step+1)))
		case 2:
			_ = f.mgr.SetVisibility(ctx, fmt.Sprintf("d%d", rng.Intn(step+1)), rng.Intn(2) == 0)
		default:
			_ = f.mgr.AddDrawing(ctx, gpLine(fmt.Sprintf("d%d", step), sym))
		}

		stored := map[string]bool{}
		for _, d := range f.mgr.GetCurrentSymbolDrawings() {
			if last != "" && d.SymbolKey != last {
				t.Fatalf("step %d: drawing %s of %s leaked into %s", step, d.ID, d.SymbolKey, last)
			}
			stored[d.ID] = true
		}
		for _, id := range f.mgr.RenderedIDs() {
			if !stored[id] {
				t.Fatalf("step %d: rendered id %s not stored for current symbol", step, id)
			}
		}
		if got := len(f.rendererIDs(t)); got != len(f.mgr.RenderedIDs()) {
			t.Fatalf("step %d: renderer has %d overlays, manager tracks %d", step, got, len(f.mgr.RenderedIDs()))
		}
	}
}

func TestVisibilityAndLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	_ = f.mgr.AddDrawing(ctx, gpLine("a", "DSEBD:GP"))

	if err := f.mgr.SetVisibility(ctx, "a", false); err != nil {
		t.Fatalf("SetVisibility(false) error = %v", err)
	}
	if len(f.mgr.RenderedIDs()) != 0 || len(f.rendererIDs(t)) != 0 {
		t.Fatal("hidden drawing still rendered")
	}
	if len(f.mgr.GetCurrentSymbolDrawings()) != 1 {
		t.Fatal("hiding removed the stored drawing")
	}

	if err := f.mgr.SetVisibility(ctx, "a", true); err != nil {
		t.Fatalf("SetVisibility(true) error = %v", err)
	}
	if ids := f.mgr.RenderedIDs(); len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("RenderedIDs() = %v; want [a]", ids)
	}

	if err := f.mgr.SetLock(ctx, "a", true); err != nil {
		t.Fatalf("SetLock() error = %v", err)
	}
	got, _ := f.virtual.GetOverlays(ctx, "a")
	if len(got) != 1 || !got[0].Lock {
		t.Fatalf("renderer overlay = %+v; want locked", got)
	}
	if err := f.mgr.SetLock(ctx, "missing", true); !overlay.HasCode(err, overlay.CodeNotFound) {
		t.Fatalf("SetLock(missing) error = %v; want NOT_FOUND", err)
	}
}

func TestUpdateDrawingRendersInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	_ = f.mgr.AddDrawing(ctx, gpLine("a", "DSEBD:GP"))

	d := gpLine("a", "DSEBD:GP")
	d.Points[1].Price = 107
	if err := f.mgr.UpdateDrawing(ctx, d); err != nil {
		t.Fatalf("UpdateDrawing() error = %v", err)
	}
	if f.rec.Count("CreateOverlay", "a") != 1 || f.rec.Count("OverrideOverlay", "a") != 1 {
		t.Fatalf("calls = %+v; want create then override", f.rec.Calls())
	}
	if got := f.mgr.GetCurrentSymbolDrawings()[0].Points[1].Price; got != 107 {
		t.Fatalf("stored price = %v; want 107", got)
	}
	if err := f.mgr.UpdateDrawing(ctx, gpLine("nope", "DSEBD:GP")); !overlay.HasCode(err, overlay.CodeNotFound) {
		t.Fatalf("UpdateDrawing(missing) error = %v; want NOT_FOUND", err)
	}
}

func TestRendererFailureKeepsDrawingStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	f.rec.FailOnID("CreateOverlay", "bad", errors.New("boom"))

	if err := f.mgr.AddDrawing(ctx, gpLine("bad", "DSEBD:GP")); err != nil {
		t.Fatalf("AddDrawing() error = %v; want nil", err)
	}
	if err := f.mgr.AddDrawing(ctx, gpLine("good", "DSEBD:GP")); err != nil {
		t.Fatalf("AddDrawing() error = %v", err)
	}
	if ids := f.mgr.RenderedIDs(); len(ids) != 1 || ids[0] != "good" {
		t.Fatalf("RenderedIDs() = %v; want [good]", ids)
	}
	if len(f.mgr.GetCurrentSymbolDrawings()) != 2 {
		t.Fatal("failed render dropped the stored drawing")
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.mgr.AddDrawing(ctx, gpLine("a", "DSEBD:GP"))
	if err := f.mgr.AddDrawing(ctx, gpLine("a", "DSEBD:GP")); !overlay.HasCode(err, overlay.CodeValidation) {
		t.Fatalf("AddDrawing(duplicate) error = %v; want VALIDATION", err)
	}
}

func TestLoadAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	_ = f.mgr.AddDrawing(ctx, gpLine("old", "DSEBD:GP"))

	backfilled := gpLine("legacy", "")
	refiled := gpLine("elsewhere", "NASDAQ:AAPL")
	f.mgr.LoadAllDrawings(ctx, map[overlay.SymbolKey][]overlay.Drawing{
		"dsebd:gp":   {gpLine("a", "DSEBD:GP"), backfilled, refiled},
		"DSEBD:ROBI": {gpLine("r", "DSEBD:ROBI")},
		"":           {gpLine("lost", "")},
	})

	if f.rec.Count("RemoveOverlay", "old") != 1 {
		t.Fatal("LoadAllDrawings() did not clear the previous render")
	}
	exported := f.mgr.ExportDrawings()
	if len(exported["DSEBD:GP"]) != 2 || len(exported["DSEBD:ROBI"]) != 1 || len(exported["NASDAQ:AAPL"]) != 1 {
		t.Fatalf("ExportDrawings() = %+v; want 2/1/1", exported)
	}
	for _, d := range exported["DSEBD:GP"] {
		if d.SymbolKey != "DSEBD:GP" {
			t.Fatalf("drawing %s symbol = %q; want back-filled DSEBD:GP", d.ID, d.SymbolKey)
		}
	}
	if stats := f.mgr.GetStats(); stats.TotalDrawings != 4 || stats.RenderedDrawings != 2 || stats.CurrentSymbolDrawings != 2 || stats.TotalSymbols != 3 {
		t.Fatalf("GetStats() = %+v; want 4 total, 3 symbols, 2 current, 2 rendered", stats)
	}

	exported["DSEBD:GP"][0].Points[0].Price = 1
	if f.mgr.GetCurrentSymbolDrawings()[0].Points[0].Price == 1 {
		t.Fatal("ExportDrawings() shares memory with the store")
	}
}

func TestLoadDrawingsForSymbol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	_ = f.mgr.AddDrawing(ctx, gpLine("old", "DSEBD:GP"))

	if err := f.mgr.LoadDrawingsForSymbol(ctx, "DSEBD:GP", []overlay.Drawing{gpLine("new", "")}); err != nil {
		t.Fatalf("LoadDrawingsForSymbol() error = %v", err)
	}
	if ids := f.mgr.RenderedIDs(); len(ids) != 1 || ids[0] != "new" {
		t.Fatalf("RenderedIDs() = %v; want [new]", ids)
	}
	if err := f.mgr.LoadDrawingsForSymbol(ctx, "", nil); !overlay.HasCode(err, overlay.CodeMissingSymbol) {
		t.Fatalf("LoadDrawingsForSymbol(\"\") error = %v; want MISSING_SYMBOL", err)
	}
}

func TestLoadOtherBucketRendersCrossFiledCurrentDrawings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")

	err := f.mgr.LoadDrawingsForSymbol(ctx, "DSEBD:ROBI", []overlay.Drawing{
		gpLine("robi", ""),
		gpLine("gp", "DSEBD:GP"),
	})
	if err != nil {
		t.Fatalf("LoadDrawingsForSymbol() error = %v", err)
	}
	if got := f.mgr.GetCurrentSymbolDrawings(); len(got) != 1 || got[0].ID != "gp" {
		t.Fatalf("GetCurrentSymbolDrawings() = %+v; want [gp]", got)
	}
	if ids := f.mgr.RenderedIDs(); len(ids) != 1 || ids[0] != "gp" {
		t.Fatalf("RenderedIDs() = %v; want [gp]", ids)
	}
	if ids := f.rendererIDs(t); len(ids) != 1 || ids[0] != "gp" {
		t.Fatalf("renderer overlays = %v; want [gp]", ids)
	}
}

func TestClearDrawingsForSymbol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	_ = f.mgr.AddDrawing(ctx, gpLine("a", "DSEBD:GP"))
	_ = f.mgr.AddDrawing(ctx, gpLine("b", "DSEBD:ROBI"))

	f.mgr.ClearDrawingsForSymbol(ctx, "DSEBD:GP")
	if len(f.mgr.GetCurrentSymbolDrawings()) != 0 || len(f.rendererIDs(t)) != 0 {
		t.Fatal("ClearDrawingsForSymbol() left drawings behind")
	}
	if len(f.mgr.GetDrawingsForSymbol("DSEBD:ROBI")) != 1 {
		t.Fatal("ClearDrawingsForSymbol() touched another symbol")
	}
}

func TestProjectionSetFollowsRenderedDrawings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr.SetCurrentSymbol(ctx, "DSEBD:GP")
	_ = f.mgr.AddDrawing(ctx, gpLine("a", "DSEBD:GP"))
	_ = f.mgr.AddDrawing(ctx, gpLine("b", "DSEBD:GP"))
	_ = f.mgr.SetVisibility(ctx, "a", false)

	set := f.mgr.ProjectionSet()
	if len(set) != 1 || set[0].ID != "b" {
		t.Fatalf("ProjectionSet() = %+v; want only b", set)
	}
}
