package overlay

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is the schema version stamped on every overlay record.
const Version = 2

// Future-domain margins describe how far past the last candle an anchored
// point may sit and still be considered drawable. The chart's time axis is
// never extended to reach them.
const (
	FutureDomainBars    = 50
	FutureDomainPercent = 0.2
)

// OverlayType is the closed set of drawable shape kinds.
type OverlayType string

const (
	TypeLine          OverlayType = "line"
	TypeRay           OverlayType = "ray"
	TypeHLine         OverlayType = "hline"
	TypeVLine         OverlayType = "vline"
	TypeFibonacci     OverlayType = "fibonacci"
	TypeTrendline     OverlayType = "trendline"
	TypeArrow         OverlayType = "arrow"
	TypeCircle        OverlayType = "circle"
	TypeRectangle     OverlayType = "rectangle"
	TypeTriangle      OverlayType = "triangle"
	TypeParallelogram OverlayType = "parallelogram"
)

// OverlayPoint is a single data-space anchor: T is a UNIX timestamp in
// milliseconds and P the price.
type OverlayPoint struct {
	ID string `json:"id"`
	T  int64  `json:"t"`
	P  Price  `json:"p"`
}

// Valid reports whether the point satisfies the anchor invariant: non-empty
// id, positive timestamp and finite positive price.
func (p OverlayPoint) Valid() bool {
	return strings.TrimSpace(p.ID) != "" && p.T > 0 && p.P.IsValid()
}

// DataSpaceOverlay is a drawing expressed in data-space coordinates.
type DataSpaceOverlay struct {
	ID        string         `json:"id"`
	SymbolKey SymbolKey      `json:"symbolKey,omitempty"`
	Type      OverlayType    `json:"type"`
	Points    []OverlayPoint `json:"points"`
	Style     OverlayStyle   `json:"style"`
	GroupID   string         `json:"groupId,omitempty"`
	Visible   bool           `json:"visible"`
	Lock      bool           `json:"lock"`
	CreatedAt int64          `json:"createdAt"`
	Version   int            `json:"version"`
	Extend    map[string]any `json:"extendData,omitempty"`
}

// DrawingPoint is the persistence form of OverlayPoint.
type DrawingPoint struct {
	ID    string `json:"id,omitempty"`
	Time  int64  `json:"time"`
	Price Price  `json:"price"`
}

// Drawing is the persistence-facing form of DataSpaceOverlay. SymbolKey is
// mandatory.
type Drawing struct {
	ID        string         `json:"id"`
	SymbolKey SymbolKey      `json:"symbolKey"`
	Type      OverlayType    `json:"type"`
	Points    []DrawingPoint `json:"points"`
	Style     OverlayStyle   `json:"style"`
	GroupID   string         `json:"groupId,omitempty"`
	Visible   *bool          `json:"visible,omitempty"`
	Lock      bool           `json:"lock,omitempty"`
	CreatedAt int64          `json:"createdAt"`
	Version   int            `json:"version"`
	Extend    map[string]any `json:"extendData,omitempty"`
}

// IsVisible treats an absent visibility flag as visible.
func (d Drawing) IsVisible() bool { return d.Visible == nil || *d.Visible }

// Clone returns a deep copy so callers can mutate it freely.
func (d Drawing) Clone() Drawing {
	out := d
	out.Points = append([]DrawingPoint(nil), d.Points...)
	out.Style = d.Style.Clone()
	if d.Visible != nil {
		v := *d.Visible
		out.Visible = &v
	}
	out.Extend = cloneExtend(d.Extend)
	return out
}

// NewID returns a fresh random identifier.
func NewID() string { return uuid.NewString() }

// NowMillis returns the current time as UNIX milliseconds.
func NowMillis() int64 { return time.Now().UnixMilli() }

// RoundTimestamp rounds a fractional millisecond timestamp to the nearest
// millisecond. ok is false for non-finite input.
func RoundTimestamp(ts float64) (int64, bool) {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return 0, false
	}
	return int64(math.Round(ts)), true
}

func cloneExtend(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
