package template

import (
	"fmt"
	"math"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// FibonacciLevels are the retracement ratios drawn by the fibonacci shape.
var FibonacciLevels = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

const arrowHeadLength = 12

// Geometry builds the visible primitives of a shape kind from screen
// coordinates. It returns nil when there are too few coordinates.
func Geometry(t overlay.OverlayType, c []renderer.Pixel, size renderer.Size, style overlay.OverlayStyle) []renderer.Figure {
	need := 1
	if info, ok := overlay.KnownTypes[t]; ok {
		need = info.Points
	}
	if len(c) < need || len(c) == 0 {
		return nil
	}

	line := lineStyle(style)
	switch t {
	case overlay.TypeHLine:
		return []renderer.Figure{
			lineFigure(line, renderer.Pixel{X: 0, Y: c[0].Y}, renderer.Pixel{X: size.Width, Y: c[0].Y}),
		}
	case overlay.TypeVLine:
		return []renderer.Figure{
			lineFigure(line, renderer.Pixel{X: c[0].X, Y: 0}, renderer.Pixel{X: c[0].X, Y: size.Height}),
		}
	case overlay.TypeRay:
		return []renderer.Figure{lineFigure(line, c[0], rayEnd(c[0], c[1], size))}
	case overlay.TypeArrow:
		return append([]renderer.Figure{lineFigure(line, c[0], c[1])}, arrowHead(line, c[0], c[1])...)
	case overlay.TypeFibonacci:
		return fibonacci(line, textStyle(style), c[0], c[1])
	case overlay.TypeCircle:
		return []renderer.Figure{{
			Type:        renderer.FigureCircle,
			Coordinates: []renderer.Pixel{c[0]},
			Radius:      math.Hypot(c[1].X-c[0].X, c[1].Y-c[0].Y),
			Styles:      shapeStyle(style),
			IgnoreEvent: true,
		}}
	case overlay.TypeRectangle:
		return []renderer.Figure{polygon(style, c[0], renderer.Pixel{X: c[1].X, Y: c[0].Y}, c[1], renderer.Pixel{X: c[0].X, Y: c[1].Y})}
	case overlay.TypeTriangle:
		return []renderer.Figure{polygon(style, c[0], c[1], c[2])}
	case overlay.TypeParallelogram:
		fourth := renderer.Pixel{X: c[0].X + c[2].X - c[1].X, Y: c[0].Y + c[2].Y - c[1].Y}
		return []renderer.Figure{polygon(style, c[0], c[1], c[2], fourth)}
	default:
		if len(c) < 2 {
			return nil
		}
		return []renderer.Figure{lineFigure(line, c[0], c[1])}
	}
}

func lineStyle(s overlay.OverlayStyle) renderer.FigureStyle {
	out := renderer.FigureStyle{Style: "stroke", Size: 1}
	if s.Line != nil {
		out.Color = s.Line.Color
		if s.Line.Size > 0 {
			out.Size = s.Line.Size
		}
		if s.Line.Style == "dashed" {
			out.Style = "dashed"
			out.DashedValue = append([]float64(nil), s.Line.DashedValue...)
		}
	}
	return out
}

func textStyle(s overlay.OverlayStyle) renderer.FigureStyle {
	out := renderer.FigureStyle{Size: 12}
	if s.Text != nil {
		out.Color = s.Text.Color
		out.BorderColor = s.Text.BackgroundColor
		if s.Text.Size > 0 {
			out.Size = s.Text.Size
		}
	}
	return out
}

func shapeStyle(s overlay.OverlayStyle) renderer.FigureStyle {
	out := renderer.FigureStyle{Style: "stroke", Size: 1}
	if s.Line != nil {
		out.BorderColor = s.Line.Color
		if s.Line.Size > 0 {
			out.Size = s.Line.Size
		}
	}
	if s.Fill != nil && s.Fill.Color != "" {
		out.Style = "stroke_fill"
		out.Color = s.Fill.Color
	}
	return out
}

func lineFigure(style renderer.FigureStyle, a, b renderer.Pixel) renderer.Figure {
	return renderer.Figure{
		Type:        renderer.FigureLine,
		Coordinates: []renderer.Pixel{a, b},
		Styles:      style,
		IgnoreEvent: true,
	}
}

func polygon(style overlay.OverlayStyle, pts ...renderer.Pixel) renderer.Figure {
	return renderer.Figure{
		Type:        renderer.FigurePolygon,
		Coordinates: pts,
		Styles:      shapeStyle(style),
		IgnoreEvent: true,
	}
}

// rayEnd extends a→b until it leaves the canvas.
func rayEnd(a, b renderer.Pixel, size renderer.Size) renderer.Pixel {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return b
	}
	reach := math.Hypot(size.Width, size.Height) + math.Hypot(a.X, a.Y)
	k := reach / length
	return renderer.Pixel{X: a.X + dx*k, Y: a.Y + dy*k}
}

func arrowHead(style renderer.FigureStyle, from, to renderer.Pixel) []renderer.Figure {
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	wing := func(offset float64) renderer.Pixel {
		a := angle + math.Pi - offset
		return renderer.Pixel{X: to.X + arrowHeadLength*math.Cos(a), Y: to.Y + arrowHeadLength*math.Sin(a)}
	}
	return []renderer.Figure{
		lineFigure(style, to, wing(math.Pi/6)),
		lineFigure(style, to, wing(-math.Pi/6)),
	}
}

func fibonacci(line, text renderer.FigureStyle, start, end renderer.Pixel) []renderer.Figure {
	left, right := math.Min(start.X, end.X), math.Max(start.X, end.X)
	figs := make([]renderer.Figure, 0, len(FibonacciLevels)*2)
	for _, level := range FibonacciLevels {
		y := end.Y + (start.Y-end.Y)*level
		figs = append(figs, lineFigure(line, renderer.Pixel{X: left, Y: y}, renderer.Pixel{X: right, Y: y}))
		figs = append(figs, renderer.Figure{
			Type:        renderer.FigureText,
			Coordinates: []renderer.Pixel{{X: left, Y: y}},
			Text:        fmt.Sprintf("%.3f", level),
			Styles:      text,
			IgnoreEvent: true,
		})
	}
	return figs
}
