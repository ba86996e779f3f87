package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/tv_overlay/internal/cdprender"
	"github.com/dgnsrekt/tv_overlay/internal/chart"
	"github.com/dgnsrekt/tv_overlay/internal/controller"
	"github.com/dgnsrekt/tv_overlay/internal/frame"
	"github.com/dgnsrekt/tv_overlay/internal/metrics"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/relay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
)

const t0 = 1700000000000

func newTestServer(t *testing.T) (http.Handler, *relay.Broker) {
	t.Helper()
	loop := frame.NewLoop(time.Millisecond)
	v := renderer.NewVirtual(renderer.Size{Width: 1000, Height: 500}, renderer.Viewport{
		FromTime: t0, ToTime: t0 + 3600000, MinPrice: 90, MaxPrice: 110,
	})
	store, err := savestore.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	broker := relay.NewBroker()
	m := metrics.New()
	c := chart.New(chart.Config{
		Renderer:      v,
		Scheduler:     loop,
		Store:         store,
		Broker:        broker,
		Metrics:       m,
		DefaultSymbol: "DSEBD:GP",
	})
	svc := controller.NewService(c)
	t.Cleanup(func() {
		_ = loop.Do(context.Background(), c.Dispose)
		loop.Close()
		store.Close()
	})
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	return NewServer(svc, Options{Metrics: m.Handler(), Broker: broker, KeepAlive: time.Second, Legacy: store}), broker
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func linePoints() []map[string]any {
	return []map[string]any{{"t": t0, "p": 100}, {"t": t0 + 600000, "p": 105}}
}

func TestDrawingEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	w := doJSON(t, h, http.MethodPost, "/api/v1/drawings", map[string]any{"type": "line", "points": linePoints()})
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d; body %s", w.Code, w.Body.String())
	}
	created := decode[overlay.DataSpaceOverlay](t, w)
	if created.ID == "" || created.SymbolKey != "DSEBD:GP" || len(created.Points) != 2 {
		t.Fatalf("created = %+v", created)
	}

	w = doJSON(t, h, http.MethodGet, "/api/v1/drawings", nil)
	list := decode[struct {
		Drawings []overlay.Drawing `json:"drawings"`
	}](t, w)
	if len(list.Drawings) != 1 || list.Drawings[0].ID != created.ID {
		t.Fatalf("list = %+v", list.Drawings)
	}

	w = doJSON(t, h, http.MethodPut, "/api/v1/drawings/"+created.ID+"/lock", map[string]any{"locked": true})
	if w.Code != http.StatusOK {
		t.Fatalf("lock status = %d; body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/drawings/"+created.ID, nil)
	if got := decode[overlay.Drawing](t, w); !got.Lock {
		t.Fatalf("drawing lock = false; want true")
	}

	w = doJSON(t, h, http.MethodDelete, "/api/v1/drawings/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d; body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/drawings/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d; want 404", w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/undo", nil)
	res := decode[controller.HistoryResult](t, w)
	if !res.Applied {
		t.Fatalf("undo = %+v; want applied", res)
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/drawings/stats", nil)
	if stats := decode[struct {
		TotalDrawings int `json:"total_drawings"`
	}](t, w); stats.TotalDrawings != 1 {
		t.Fatalf("total_drawings after undo = %d; want 1", stats.TotalDrawings)
	}
}

func TestCreateDrawingWrongPointCount(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/v1/drawings", map[string]any{
		"type":   "line",
		"points": []map[string]any{{"t": t0, "p": 100}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400; body %s", w.Code, w.Body.String())
	}
}

func TestShapesEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodGet, "/api/v1/drawings/shapes", nil)
	out := decode[struct {
		Shapes []overlay.TypeInfo `json:"shapes"`
	}](t, w)
	if len(out.Shapes) != len(overlay.KnownTypes) {
		t.Fatalf("shapes = %d; want %d", len(out.Shapes), len(overlay.KnownTypes))
	}
}

func TestLayoutEndpoints(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/drawings", map[string]any{"type": "line", "points": linePoints()})

	w := doJSON(t, h, http.MethodPut, "/api/v1/layouts/morning", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d; body %s", w.Code, w.Body.String())
	}
	if info := decode[savestore.LayoutInfo](t, w); info.Name != "morning" || info.Drawings != 1 {
		t.Fatalf("saved = %+v", info)
	}

	doJSON(t, h, http.MethodDelete, "/api/v1/drawings", nil)
	w = doJSON(t, h, http.MethodPost, "/api/v1/layouts/morning/load", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d; body %s", w.Code, w.Body.String())
	}
	w = doJSON(t, h, http.MethodGet, "/api/v1/drawings", nil)
	if list := decode[struct {
		Drawings []overlay.Drawing `json:"drawings"`
	}](t, w); len(list.Drawings) != 1 {
		t.Fatalf("drawings after load = %d; want 1", len(list.Drawings))
	}

	w = doJSON(t, h, http.MethodPost, "/api/v1/layouts/missing/load", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("load missing status = %d; want 404", w.Code)
	}
}

func TestMigrateEndpointRunsOnce(t *testing.T) {
	h, _ := newTestServer(t)
	w := doJSON(t, h, http.MethodPost, "/api/v1/migrate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	if res := decode[chart.MigrationResult](t, w); !res.Ran {
		t.Fatalf("first migrate = %+v; want ran", res)
	}
	w = doJSON(t, h, http.MethodPost, "/api/v1/migrate", nil)
	if res := decode[chart.MigrationResult](t, w); res.Ran {
		t.Fatalf("second migrate = %+v; want skipped", res)
	}
}

func TestMetricsRoute(t *testing.T) {
	h, _ := newTestServer(t)
	doJSON(t, h, http.MethodPost, "/api/v1/project", nil)
	w := doJSON(t, h, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "overlay_") {
		t.Fatalf("metrics body missing overlay_ series")
	}
}

func TestEventStreamCarriesUndoState(t *testing.T) {
	h, broker := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?feeds=undo", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for broker.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	doJSON(t, h, http.MethodPost, "/api/v1/drawings", map[string]any{"type": "line", "points": linePoints()})

	sc := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event: undo" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var env struct {
				Chart string `json:"chart"`
				Data  struct {
					Undo int `json:"undo"`
				} `json:"data"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if env.Data.Undo != 1 {
				t.Fatalf("undo = %d; want 1", env.Data.Undo)
			}
			return
		}
	}
	t.Fatalf("stream ended without undo event: %v", sc.Err())
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{overlay.NewError(overlay.CodeValidation, "bad", nil), http.StatusBadRequest},
		{overlay.NewError(overlay.CodeMissingSymbol, "no symbol", nil), http.StatusBadRequest},
		{overlay.NewError(overlay.CodeNotFound, "gone", nil), http.StatusNotFound},
		{overlay.NewError(overlay.CodeSymbolMismatch, "other symbol", nil), http.StatusConflict},
		{overlay.NewError(overlay.CodeRendererFailure, "boom", nil), http.StatusBadGateway},
		{overlay.NewError(cdprender.CodeCDPUnavailable, "down", nil), http.StatusBadGateway},
		{overlay.NewError(cdprender.CodeEvalTimeout, "slow", nil), http.StatusGatewayTimeout},
		{overlay.NewError(overlay.CodeStorageFailure, "disk", nil), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se huma.StatusError
		if !errors.As(mapErr(tt.err), &se) {
			t.Fatalf("mapErr(%v) is not a huma.StatusError", tt.err)
		}
		if se.GetStatus() != tt.want {
			t.Fatalf("mapErr(%v) status = %d; want %d", tt.err, se.GetStatus(), tt.want)
		}
	}
	if mapErr(nil) != nil {
		t.Fatalf("mapErr(nil) != nil")
	}
}
