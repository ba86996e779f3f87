// Package api exposes one chart over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/tv_overlay/internal/cdprender"
	"github.com/dgnsrekt/tv_overlay/internal/chart"
	"github.com/dgnsrekt/tv_overlay/internal/controller"
	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/relay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
)

// Service is implemented by *controller.Service.
type Service interface {
	GetSymbol(ctx context.Context) (controller.SymbolState, error)
	SetSymbol(ctx context.Context, symbol string) (overlay.SymbolKey, error)
	SetTimeframe(ctx context.Context, tf string) error

	Shapes() []overlay.TypeInfo
	ListDrawings(ctx context.Context, symbol string) ([]overlay.Drawing, error)
	GetDrawing(ctx context.Context, id string) (overlay.Drawing, error)
	CreateDrawing(ctx context.Context, req controller.CreateRequest) (overlay.DataSpaceOverlay, error)
	PointFromPixel(ctx context.Context, x, y float64, paneID string) (overlay.OverlayPoint, error)
	UpdateDrawingPoints(ctx context.Context, id string, points []overlay.OverlayPoint) (overlay.DataSpaceOverlay, error)
	RemoveDrawing(ctx context.Context, symbol, id string) error
	ClearDrawings(ctx context.Context, symbol string) (int, error)
	SetVisibility(ctx context.Context, id string, visible bool) error
	SetLock(ctx context.Context, id string, locked bool) error
	Stats(ctx context.Context) (drawing.Stats, error)
	ExportDrawings(ctx context.Context) (map[overlay.SymbolKey][]overlay.Drawing, error)
	ImportDrawings(ctx context.Context, all map[overlay.SymbolKey][]overlay.Drawing) (drawing.Stats, error)

	Undo(ctx context.Context) (controller.HistoryResult, error)
	Redo(ctx context.Context) (controller.HistoryResult, error)
	History(ctx context.Context) (controller.HistoryView, error)
	Project(ctx context.Context) (projection.Event, error)

	Indicators(ctx context.Context) ([]renderer.IndicatorSpec, error)
	AddIndicator(ctx context.Context, spec renderer.IndicatorSpec) (string, error)
	RemoveIndicator(ctx context.Context, name, paneID string) error
	ApplyTheme(ctx context.Context, theme string) (controller.ThemeResult, error)

	SaveLayout(ctx context.Context, name string) (savestore.LayoutInfo, error)
	LoadLayout(ctx context.Context, name string) (savestore.LayoutInfo, error)
	ListLayouts(ctx context.Context) ([]savestore.LayoutInfo, error)
	DeleteLayout(ctx context.Context, name string) error
	Migrate(ctx context.Context, src savestore.LegacySource, force bool) (chart.MigrationResult, error)
}

var _ Service = (*controller.Service)(nil)

// Options carries the optional pieces of the server. Zero values disable
// the matching route.
type Options struct {
	Metrics   http.Handler
	Broker    *relay.Broker
	KeepAlive time.Duration
	Legacy    savestore.LegacySource
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func okStatus() *statusOutput {
	out := &statusOutput{}
	out.Body.Status = "ok"
	return out
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Chart Overlay API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("events docs response write failed", "error", err)
		}
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}
	if opts.Broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(opts.Broker, opts.KeepAlive))
	}

	registerChartHandlers(api, svc)
	registerDrawingHandlers(api, svc)
	registerHistoryHandlers(api, svc)
	registerLayoutHandlers(api, svc, opts.Legacy)
	registerMiscHandlers(api)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	var coded *overlay.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case overlay.CodeValidation, overlay.CodeMissingSymbol:
			return huma.Error400BadRequest(coded.Message)
		case overlay.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case overlay.CodeSymbolMismatch:
			return huma.Error409Conflict(coded.Message)
		case cdprender.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case overlay.CodeRendererFailure, cdprender.CodeCDPUnavailable,
			cdprender.CodeChartUnavailable, cdprender.CodeEvalFailure:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
