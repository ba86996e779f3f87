package template

import (
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// Builtins returns an enhanced template for every known overlay type, named
// after the type. Legacy screen-space instances are painted from the
// coordinates the renderer supplies.
func Builtins(opts Options) []renderer.Template {
	out := make([]renderer.Template, 0, len(overlay.KnownTypes))
	for _, info := range overlay.SortedTypes() {
		t := info.Type
		original := renderer.Template{
			Name:      string(t),
			TotalStep: info.Points + 1,
			CreatePointFigures: func(fc renderer.FigureContext) []renderer.Figure {
				return Geometry(t, fc.Coordinates, fc.Size, fc.Overlay.Styles)
			},
		}
		out = append(out, Enhance(original, func(args DataSpaceArgs) []renderer.Figure {
			return Geometry(t, args.Coordinates, args.Size, args.Overlay.Style)
		}, opts))
	}
	return out
}
