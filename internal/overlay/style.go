package overlay

// LineStyle controls stroke rendering.
type LineStyle struct {
	Color       string    `json:"color,omitempty" yaml:"color,omitempty"`
	Size        float64   `json:"size,omitempty" yaml:"size,omitempty"`
	Style       string    `json:"style,omitempty" yaml:"style,omitempty"` // solid | dashed
	DashedValue []float64 `json:"dashedValue,omitempty" yaml:"dashed_value,omitempty"`
}

// TextStyle controls labels.
type TextStyle struct {
	Color           string  `json:"color,omitempty" yaml:"color,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty" yaml:"background_color,omitempty"`
	Size            float64 `json:"size,omitempty" yaml:"size,omitempty"`
}

// FillStyle controls polygon fills.
type FillStyle struct {
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// OverlayStyle groups style by sub-element. Every group is optional.
type OverlayStyle struct {
	Line *LineStyle `json:"line,omitempty" yaml:"line,omitempty"`
	Text *TextStyle `json:"text,omitempty" yaml:"text,omitempty"`
	Fill *FillStyle `json:"fill,omitempty" yaml:"fill,omitempty"`
}

// IsZero reports whether no group is set.
func (s OverlayStyle) IsZero() bool { return s.Line == nil && s.Text == nil && s.Fill == nil }

// Clone deep-copies the style.
func (s OverlayStyle) Clone() OverlayStyle {
	var out OverlayStyle
	if s.Line != nil {
		l := *s.Line
		l.DashedValue = append([]float64(nil), s.Line.DashedValue...)
		out.Line = &l
	}
	if s.Text != nil {
		t := *s.Text
		out.Text = &t
	}
	if s.Fill != nil {
		f := *s.Fill
		out.Fill = &f
	}
	return out
}

// Merge overlays non-empty fields of override on top of s.
func (s OverlayStyle) Merge(override OverlayStyle) OverlayStyle {
	out := s.Clone()
	if o := override.Line; o != nil {
		if out.Line == nil {
			out.Line = &LineStyle{}
		}
		if o.Color != "" {
			out.Line.Color = o.Color
		}
		if o.Size > 0 {
			out.Line.Size = o.Size
		}
		if o.Style != "" {
			out.Line.Style = o.Style
		}
		if len(o.DashedValue) > 0 {
			out.Line.DashedValue = append([]float64(nil), o.DashedValue...)
		}
	}
	if o := override.Text; o != nil {
		if out.Text == nil {
			out.Text = &TextStyle{}
		}
		if o.Color != "" {
			out.Text.Color = o.Color
		}
		if o.BackgroundColor != "" {
			out.Text.BackgroundColor = o.BackgroundColor
		}
		if o.Size > 0 {
			out.Text.Size = o.Size
		}
	}
	if o := override.Fill; o != nil {
		if out.Fill == nil {
			out.Fill = &FillStyle{}
		}
		if o.Color != "" {
			out.Fill.Color = o.Color
		}
	}
	return out
}

const (
	defaultLineColor = "#1677FF"
	defaultTextColor = "#FFFFFF"
	defaultFillColor = "rgba(22, 119, 255, 0.15)"
)

func lineOnly(color string) OverlayStyle {
	return OverlayStyle{
		Line: &LineStyle{Color: color, Size: 1, Style: "solid"},
		Text: &TextStyle{Color: defaultTextColor, BackgroundColor: color, Size: 12},
	}
}

func lineAndFill(color, fill string) OverlayStyle {
	return OverlayStyle{
		Line: &LineStyle{Color: color, Size: 1, Style: "solid"},
		Fill: &FillStyle{Color: fill},
	}
}

// DefaultStyle returns the built-in style for a shape kind. Filled shapes get
// a line plus a translucent fill; linear shapes get a line plus label text.
func DefaultStyle(t OverlayType) OverlayStyle {
	switch t {
	case TypeCircle, TypeRectangle, TypeTriangle, TypeParallelogram:
		return lineAndFill(defaultLineColor, defaultFillColor)
	case TypeFibonacci:
		s := lineOnly("#F5A623")
		s.Line.Style = "dashed"
		s.Line.DashedValue = []float64{4, 2}
		return s
	case TypeArrow:
		return lineOnly("#E03131")
	default:
		return lineOnly(defaultLineColor)
	}
}
