package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDocsDarkMode(t *testing.T) {
	h, _ := newTestServer(t)
	for _, path := range []string{"/docs", "/docs/events"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
			t.Fatalf("%s missing dark theme marker", path)
		}
	}
}

func TestOpenAPIListsOverlayRoutes(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	for _, path := range []string{"/api/v1/drawings", "/api/v1/undo", "/api/v1/layouts/{name}", "/api/v1/migrate"} {
		if !strings.Contains(w.Body.String(), `"`+path+`"`) {
			t.Fatalf("openapi missing %s", path)
		}
	}
}
