package overlay

import (
	"math"
	"strings"
)

// LegacyPoint accepts every point shape older builds persisted: converted
// {timestamp,value} pairs, {t,p} or {time,price} records, and raw {x,y}
// pixels.
type LegacyPoint struct {
	ID        string   `json:"id,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
	Value     *float64 `json:"value,omitempty"`
	T         *float64 `json:"t,omitempty"`
	P         *float64 `json:"p,omitempty"`
	Time      *float64 `json:"time,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
}

func finitePtr(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// DataSpace returns the point's data-space pair if it carries one.
func (p LegacyPoint) DataSpace() (ts float64, price float64, ok bool) {
	switch {
	case finitePtr(p.Timestamp) && finitePtr(p.Value):
		return *p.Timestamp, *p.Value, true
	case finitePtr(p.T) && finitePtr(p.P):
		return *p.T, *p.P, true
	case finitePtr(p.Time) && finitePtr(p.Price):
		return *p.Time, *p.Price, true
	}
	return 0, 0, false
}

// Pixel returns the point's screen pair if it carries one.
func (p LegacyPoint) Pixel() (x, y float64, ok bool) {
	if finitePtr(p.X) && finitePtr(p.Y) {
		return *p.X, *p.Y, true
	}
	return 0, 0, false
}

// LegacyOverlay is an overlay record in the pre-data-space storage format.
type LegacyOverlay struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Type       string         `json:"type,omitempty"`
	SymbolKey  string         `json:"symbolKey,omitempty"`
	Points     []LegacyPoint  `json:"points"`
	Styles     *OverlayStyle  `json:"styles,omitempty"`
	Style      *OverlayStyle  `json:"style,omitempty"`
	GroupID    string         `json:"groupId,omitempty"`
	Visible    *bool          `json:"visible,omitempty"`
	Lock       bool           `json:"lock,omitempty"`
	CreatedAt  int64          `json:"createdAt,omitempty"`
	ExtendData map[string]any `json:"extendData,omitempty"`
}

var legacyNames = map[string]OverlayType{
	"segment":                TypeLine,
	"straightline":           TypeTrendline,
	"rayline":                TypeRay,
	"horizontalstraightline": TypeHLine,
	"horizontalrayline":      TypeHLine,
	"priceline":              TypeHLine,
	"verticalstraightline":   TypeVLine,
	"fibonacciline":          TypeFibonacci,
	"arrowline":              TypeArrow,
}

// Kind resolves the overlay type from either the type or the renderer
// template name. ok is false for unknown kinds.
func (l LegacyOverlay) Kind() (OverlayType, bool) {
	for _, raw := range []string{l.Type, l.Name} {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" {
			continue
		}
		if t := OverlayType(key); t.Known() {
			return t, true
		}
		if t, ok := legacyNames[strings.ReplaceAll(key, "_", "")]; ok {
			return t, true
		}
	}
	return "", false
}

// StyleOrDefault returns whichever style field was persisted.
func (l LegacyOverlay) StyleOrDefault(t OverlayType) OverlayStyle {
	switch {
	case l.Style != nil && !l.Style.IsZero():
		return DefaultStyle(t).Merge(*l.Style)
	case l.Styles != nil && !l.Styles.IsZero():
		return DefaultStyle(t).Merge(*l.Styles)
	}
	return DefaultStyle(t)
}
