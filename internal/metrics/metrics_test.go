package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveProjection("resize", time.Millisecond, 3)
	m.RenderSkipped("symbol_mismatch")
	m.RendererFailed("create")
	m.History("undo", true)
	m.SetStoredDrawings(4)
	m.Migrated("ok", 1)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveProjection("viewport", 2*time.Millisecond, 5)
	m.History("redo", false)
	m.SetStoredDrawings(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`overlay_projection_passes_total{reason="viewport"} 1`,
		`overlay_overlays_projected_total 5`,
		`overlay_history_results_total{op="redo",result="failed"} 1`,
		`overlay_stored_drawings 7`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RenderSkipped("hidden")
	if a.Registry() == b.Registry() {
		t.Fatal("instances share a registry")
	}
}
