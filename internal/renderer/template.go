package renderer

import "context"

// FigureType is a drawable primitive kind.
type FigureType string

const (
	FigureLine    FigureType = "line"
	FigurePolygon FigureType = "polygon"
	FigureCircle  FigureType = "circle"
	FigureText    FigureType = "text"
)

// FigureStyle is the paint style of one primitive.
type FigureStyle struct {
	Style       string    `json:"style,omitempty"` // stroke | fill | stroke_fill
	Color       string    `json:"color,omitempty"`
	BorderColor string    `json:"borderColor,omitempty"`
	Size        float64   `json:"size,omitempty"`
	DashedValue []float64 `json:"dashedValue,omitempty"`
}

// Figure is one primitive returned by a template. IgnoreEvent=false means the
// figure intercepts pointer events.
type Figure struct {
	Key         string      `json:"key,omitempty"`
	Type        FigureType  `json:"type"`
	Coordinates []Pixel     `json:"coordinates"`
	Radius      float64     `json:"radius,omitempty"`
	Text        string      `json:"text,omitempty"`
	Styles      FigureStyle `json:"styles"`
	IgnoreEvent bool        `json:"ignoreEvent"`
}

// FigureContext is passed to a template when the renderer needs figures for
// an overlay instance.
type FigureContext struct {
	Ctx         context.Context
	Renderer    Renderer
	Overlay     OverlayDescriptor
	Coordinates []Pixel
	Size        Size
}

// Template is a shape-kind descriptor consumed by the renderer.
type Template struct {
	Name               string
	TotalStep          int
	CreatePointFigures func(fc FigureContext) []Figure
}
