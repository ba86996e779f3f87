// Package savestore holds the chart's save-state and persists layouts.
package savestore

import (
	"sync"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// SnapshotVersion is stamped on every saved layout.
const SnapshotVersion = 1

// Snapshot is a complete saved layout.
type Snapshot struct {
	Version       int                                     `json:"version"`
	Name          string                                  `json:"name"`
	SavedAt       int64                                   `json:"savedAt"`
	CurrentSymbol overlay.SymbolKey                       `json:"currentSymbol,omitempty"`
	Timeframe     string                                  `json:"timeframe,omitempty"`
	Theme         string                                  `json:"theme,omitempty"`
	Indicators    []renderer.IndicatorSpec                `json:"indicators,omitempty"`
	Drawings      map[overlay.SymbolKey][]overlay.Drawing `json:"drawings"`
}

// DrawingCount totals the drawings across symbols.
func (s Snapshot) DrawingCount() int {
	n := 0
	for _, bucket := range s.Drawings {
		n += len(bucket)
	}
	return n
}

// LayoutInfo summarizes a stored layout.
type LayoutInfo struct {
	Name          string            `json:"name"`
	SavedAt       int64             `json:"savedAt"`
	CurrentSymbol overlay.SymbolKey `json:"currentSymbol,omitempty"`
	Drawings      int               `json:"drawings"`
}

// Info returns the layout summary of s.
func (s Snapshot) Info() LayoutInfo {
	return LayoutInfo{Name: s.Name, SavedAt: s.SavedAt, CurrentSymbol: s.CurrentSymbol, Drawings: s.DrawingCount()}
}

// State is the live save-state of one chart: the active symbol, timeframe,
// theme and indicator list. Drawings live in the drawing manager.
type State struct {
	mu         sync.RWMutex
	symbol     overlay.SymbolKey
	timeframe  string
	theme      string
	indicators []renderer.IndicatorSpec
}

// NewState returns a save-state for the given symbol.
func NewState(symbol overlay.SymbolKey) *State {
	return &State{symbol: overlay.NormalizeSymbolString(string(symbol))}
}

func (s *State) CurrentSymbol() overlay.SymbolKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbol
}

func (s *State) SetCurrentSymbol(symbol overlay.SymbolKey) {
	s.mu.Lock()
	s.symbol = overlay.NormalizeSymbolString(string(symbol))
	s.mu.Unlock()
}

func (s *State) Timeframe() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeframe
}

func (s *State) SetTimeframe(tf string) {
	s.mu.Lock()
	s.timeframe = tf
	s.mu.Unlock()
}

func (s *State) Theme() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *State) SetTheme(theme string) {
	s.mu.Lock()
	s.theme = theme
	s.mu.Unlock()
}

// Indicators returns a copy of the indicator list.
func (s *State) Indicators() []renderer.IndicatorSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]renderer.IndicatorSpec(nil), s.indicators...)
}

// AddIndicator records an indicator, replacing one with the same name and
// pane.
func (s *State) AddIndicator(spec renderer.IndicatorSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.indicators {
		if cur.Name == spec.Name && cur.PaneID == spec.PaneID {
			s.indicators[i] = spec
			return
		}
	}
	s.indicators = append(s.indicators, spec)
}

// RemoveIndicator drops an indicator. An empty paneID matches any pane.
func (s *State) RemoveIndicator(name, paneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.indicators {
		if cur.Name == name && (paneID == "" || cur.PaneID == paneID) {
			s.indicators = append(s.indicators[:i:i], s.indicators[i+1:]...)
			return true
		}
	}
	return false
}

// ReplaceIndicator swaps the entry matching old's name and pane exactly for
// next. It reports whether old was found.
func (s *State) ReplaceIndicator(old, next renderer.IndicatorSpec) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.indicators {
		if cur.Name == old.Name && cur.PaneID == old.PaneID {
			if next.Name == "" {
				s.indicators = append(s.indicators[:i:i], s.indicators[i+1:]...)
			} else {
				s.indicators[i] = next
			}
			return true
		}
	}
	return false
}

// ReplaceIndicators sets the whole indicator list.
func (s *State) ReplaceIndicators(specs []renderer.IndicatorSpec) {
	s.mu.Lock()
	s.indicators = append([]renderer.IndicatorSpec(nil), specs...)
	s.mu.Unlock()
}

// Restore replaces the save-state from a snapshot.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbol = overlay.NormalizeSymbolString(string(snap.CurrentSymbol))
	s.timeframe = snap.Timeframe
	s.theme = snap.Theme
	s.indicators = append([]renderer.IndicatorSpec(nil), snap.Indicators...)
}

// Snapshot captures the save-state together with the given drawings.
func (s *State) Snapshot(name string, drawings map[overlay.SymbolKey][]overlay.Drawing) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version:       SnapshotVersion,
		Name:          name,
		SavedAt:       overlay.NowMillis(),
		CurrentSymbol: s.symbol,
		Timeframe:     s.timeframe,
		Theme:         s.theme,
		Indicators:    append([]renderer.IndicatorSpec(nil), s.indicators...),
		Drawings:      drawings,
	}
}
