// Package renderer defines the contract the overlay core needs from a chart
// rendering backend, plus an in-process implementation.
package renderer

import (
	"context"
	"math"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

// DataPoint is a point in data space as the renderer sees it. Values are
// plain floats because a renderer may legitimately hand back NaN or Inf.
type DataPoint struct {
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Pixel is a screen-space coordinate.
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finite reports whether both components are finite numbers.
func (p Pixel) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// PaneOptions selects the pane used for coordinate conversion.
type PaneOptions struct {
	PaneID string `json:"paneId,omitempty"`
}

// CandlePane is the id of the main price pane.
const CandlePane = "candle_pane"

// VisibleRange is the window of bars currently on screen. From/To are
// clamped data indices; RealFrom/RealTo are the unclamped fractional
// positions, which keep changing while panning past the data edges.
type VisibleRange struct {
	From     int     `json:"from"`
	To       int     `json:"to"`
	RealFrom float64 `json:"realFrom"`
	RealTo   float64 `json:"realTo"`
}

// Candle is one bar of the data list. Only Timestamp is required by the
// overlay core.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume,omitempty"`
}

// Size is the chart's drawable area in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// OverlayDescriptor is what gets handed to the renderer for one overlay.
// Points are data space; Coordinates, when set, are the projection computed
// by the caller for the current viewport.
type OverlayDescriptor struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	GroupID     string               `json:"groupId,omitempty"`
	PaneID      string               `json:"paneId,omitempty"`
	Points      []DataPoint          `json:"points"`
	Coordinates []Pixel              `json:"coordinates,omitempty"`
	Styles      overlay.OverlayStyle `json:"styles"`
	Visible     bool                 `json:"visible"`
	Lock        bool                 `json:"lock"`
	ExtendData  any                  `json:"extendData,omitempty"`
}

// IndicatorSpec describes an indicator to place on the chart.
type IndicatorSpec struct {
	Name   string    `json:"name"`
	PaneID string    `json:"paneId,omitempty"`
	Params []float64 `json:"calcParams,omitempty"`
	Stack  bool      `json:"isStack,omitempty"`
}

// Renderer is the chart backend. Every call may fail with a transport or
// backend error; conversion results may contain non-finite values, which
// callers must treat as "cannot be drawn right now".
type Renderer interface {
	ConvertToPixel(ctx context.Context, points []DataPoint, opts PaneOptions) ([]Pixel, error)
	ConvertFromPixel(ctx context.Context, pixels []Pixel, opts PaneOptions) ([]DataPoint, error)

	CreateOverlay(ctx context.Context, d OverlayDescriptor) (string, error)
	OverrideOverlay(ctx context.Context, d OverlayDescriptor) error
	RemoveOverlay(ctx context.Context, id string) error
	GetOverlays(ctx context.Context, id string) ([]OverlayDescriptor, error)

	GetVisibleRange(ctx context.Context) (VisibleRange, error)
	GetDataList(ctx context.Context) ([]Candle, error)
	GetSize(ctx context.Context) (Size, error)

	CreateIndicator(ctx context.Context, spec IndicatorSpec) (string, error)
	RemoveIndicator(ctx context.Context, name, paneID string) error
	SetStyles(ctx context.Context, theme string) error
	RegisterTemplate(ctx context.Context, t Template) error
}

// ResizeNotifier is implemented by renderers that can report container
// resizes. The returned func cancels the subscription.
type ResizeNotifier interface {
	OnResize(fn func(Size)) (cancel func())
}

// ViewportNotifier is implemented by renderers that expose pan/zoom events
// natively, which makes viewport polling unnecessary.
type ViewportNotifier interface {
	OnViewportChange(fn func()) (cancel func())
}
