package overlay

import (
	"fmt"
	"sort"
)

// TypeInfo describes a shape kind.
type TypeInfo struct {
	Type     OverlayType `json:"type"`
	Points   int         `json:"points"`
	Category string      `json:"category"`
	Label    string      `json:"label"`
}

// KnownTypes maps every supported shape kind to its required point count.
var KnownTypes = map[OverlayType]TypeInfo{
	TypeLine:          {Type: TypeLine, Points: 2, Category: "lines", Label: "Line"},
	TypeRay:           {Type: TypeRay, Points: 2, Category: "lines", Label: "Ray"},
	TypeHLine:         {Type: TypeHLine, Points: 1, Category: "lines", Label: "Horizontal Line"},
	TypeVLine:         {Type: TypeVLine, Points: 1, Category: "lines", Label: "Vertical Line"},
	TypeTrendline:     {Type: TypeTrendline, Points: 2, Category: "lines", Label: "Trend Line"},
	TypeArrow:         {Type: TypeArrow, Points: 2, Category: "lines", Label: "Arrow"},
	TypeFibonacci:     {Type: TypeFibonacci, Points: 2, Category: "fibonacci", Label: "Fib Retracement"},
	TypeCircle:        {Type: TypeCircle, Points: 2, Category: "shapes", Label: "Circle"},
	TypeRectangle:     {Type: TypeRectangle, Points: 2, Category: "shapes", Label: "Rectangle"},
	TypeTriangle:      {Type: TypeTriangle, Points: 3, Category: "shapes", Label: "Triangle"},
	TypeParallelogram: {Type: TypeParallelogram, Points: 3, Category: "shapes", Label: "Parallelogram"},
}

// Known reports whether t is a supported shape kind.
func (t OverlayType) Known() bool {
	_, ok := KnownTypes[t]
	return ok
}

// ValidatePointCount checks n against the shape's required point count.
func ValidatePointCount(t OverlayType, n int) error {
	info, ok := KnownTypes[t]
	if !ok {
		return NewError(CodeValidation, fmt.Sprintf("unknown overlay type %q", t), nil)
	}
	if n != info.Points {
		return NewError(CodeValidation, fmt.Sprintf("%s requires %d point(s), got %d", t, info.Points, n), nil)
	}
	return nil
}

// SortedTypes returns the catalog ordered by category then type.
func SortedTypes() []TypeInfo {
	out := make([]TypeInfo, 0, len(KnownTypes))
	for _, info := range KnownTypes {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Type < out[j].Type
	})
	return out
}
