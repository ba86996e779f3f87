// Package undo keeps a bounded linear history of indicator and overlay
// add/remove actions and replays their inverses.
package undo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/dgnsrekt/tv_overlay/internal/metrics"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/renderer"
)

// DefaultMaxHistory bounds each stack when Config.MaxHistory is unset.
const DefaultMaxHistory = 50

// ActionType names a recordable mutation.
type ActionType string

const (
	AddIndicator    ActionType = "add_indicator"
	RemoveIndicator ActionType = "remove_indicator"
	AddOverlay      ActionType = "add_overlay"
	RemoveOverlay   ActionType = "remove_overlay"
)

// Inverse returns the action type that undoes t.
func (t ActionType) Inverse() ActionType {
	switch t {
	case AddIndicator:
		return RemoveIndicator
	case RemoveIndicator:
		return AddIndicator
	case AddOverlay:
		return RemoveOverlay
	case RemoveOverlay:
		return AddOverlay
	}
	return t
}

// Data is the action payload. Overlay actions carry the full drawing so a
// removal can be undone without consulting any other store.
type Data struct {
	Overlay   *overlay.Drawing        `json:"overlay,omitempty"`
	Indicator *renderer.IndicatorSpec `json:"indicator,omitempty"`
}

// Action is one history entry.
type Action struct {
	ID        string     `json:"id"`
	Type      ActionType `json:"type"`
	Data      Data       `json:"data"`
	Timestamp int64      `json:"timestamp"`
}

func (a Action) validate() error {
	switch a.Type {
	case AddIndicator, RemoveIndicator:
		if a.Data.Indicator == nil || a.Data.Indicator.Name == "" {
			return overlay.NewError(overlay.CodeValidation, fmt.Sprintf("%s action needs an indicator payload", a.Type), nil)
		}
	case AddOverlay, RemoveOverlay:
		if a.Data.Overlay == nil || a.Data.Overlay.ID == "" {
			return overlay.NewError(overlay.CodeValidation, fmt.Sprintf("%s action needs an overlay payload", a.Type), nil)
		}
	default:
		return overlay.NewError(overlay.CodeValidation, fmt.Sprintf("unknown action type %q", a.Type), nil)
	}
	return nil
}

// State is the reactive summary used to enable undo/redo controls.
type State struct {
	Undo    int  `json:"undo"`
	Redo    int  `json:"redo"`
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}

// OverlayStore is the symbol-scoped drawing store replays write to.
type OverlayStore interface {
	AddDrawing(ctx context.Context, d overlay.Drawing) error
	RemoveDrawingForSymbol(ctx context.Context, symbol overlay.SymbolKey, id string) error
}

// IndicatorStore applies indicator changes to the renderer and save-state
// without recording history.
type IndicatorStore interface {
	ApplyAddIndicator(ctx context.Context, spec renderer.IndicatorSpec) (string, error)
	ApplyRemoveIndicator(ctx context.Context, spec renderer.IndicatorSpec) error
}

// Journal receives one record per successful history transition.
type Journal interface {
	Write(record any) error
}

// JournalRecord is what the manager writes to its journal.
type JournalRecord struct {
	Op     string `json:"op"`
	Action Action `json:"action"`
	At     int64  `json:"at"`
}

// Config wires a Manager.
type Config struct {
	MaxHistory int
	Overlays   OverlayStore
	Indicators IndicatorStore
	// CurrentSymbol reports the save-state's active symbol at replay time.
	CurrentSymbol func() overlay.SymbolKey
	Metrics       *metrics.Metrics
	Journal       Journal
}

// Manager owns the undo and redo stacks. It is not safe for concurrent use.
type Manager struct {
	cfg   Config
	limit int
	undo  []Action
	redo  []Action

	subscribers map[int]func(State)
	subOrder    []int
	nextSub     int
}

// NewManager builds an empty history.
func NewManager(cfg Config) *Manager {
	limit := cfg.MaxHistory
	if limit <= 0 {
		limit = DefaultMaxHistory
	}
	return &Manager{cfg: cfg, limit: limit, subscribers: make(map[int]func(State))}
}

// AddAction records a completed action and discards the redo branch.
func (m *Manager) AddAction(a Action) (Action, error) {
	if err := a.validate(); err != nil {
		return Action{}, err
	}
	if a.ID == "" {
		a.ID = overlay.NewID()
	}
	if a.Timestamp == 0 {
		a.Timestamp = overlay.NowMillis()
	}
	if a.Data.Overlay != nil {
		d := a.Data.Overlay.Clone()
		a.Data.Overlay = &d
	}
	m.undo = pushBounded(m.undo, a, m.limit)
	m.redo = nil
	m.journal("add", a)
	m.publish()
	return a, nil
}

// Undo applies the inverse of the most recent action. It returns false when
// there is nothing to undo or the inverse failed; in both cases the stacks
// are unchanged.
func (m *Manager) Undo(ctx context.Context) bool {
	if len(m.undo) == 0 {
		return false
	}
	a := m.undo[len(m.undo)-1]
	if err := m.apply(ctx, a.Type.Inverse(), a); err != nil {
		slog.Warn("undo failed", "action_id", a.ID, "type", a.Type, "error", err)
		m.cfg.Metrics.History("undo", false)
		return false
	}
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = pushBounded(m.redo, a, m.limit)
	m.cfg.Metrics.History("undo", true)
	m.journal("undo", a)
	m.publish()
	return true
}

// Redo replays the most recently undone action.
func (m *Manager) Redo(ctx context.Context) bool {
	if len(m.redo) == 0 {
		return false
	}
	a := m.redo[len(m.redo)-1]
	if err := m.apply(ctx, a.Type, a); err != nil {
		slog.Warn("redo failed", "action_id", a.ID, "type", a.Type, "error", err)
		m.cfg.Metrics.History("redo", false)
		return false
	}
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = pushBounded(m.undo, a, m.limit)
	m.cfg.Metrics.History("redo", true)
	m.journal("redo", a)
	m.publish()
	return true
}

func (m *Manager) apply(ctx context.Context, t ActionType, a Action) error {
	switch t {
	case AddIndicator:
		if m.cfg.Indicators == nil {
			return fmt.Errorf("no indicator store")
		}
		_, err := m.cfg.Indicators.ApplyAddIndicator(ctx, *a.Data.Indicator)
		return err
	case RemoveIndicator:
		if m.cfg.Indicators == nil {
			return fmt.Errorf("no indicator store")
		}
		return m.cfg.Indicators.ApplyRemoveIndicator(ctx, *a.Data.Indicator)
	case AddOverlay:
		d := a.Data.Overlay.Clone()
		d.SymbolKey = m.currentSymbol()
		return m.cfg.Overlays.AddDrawing(ctx, d)
	case RemoveOverlay:
		return m.cfg.Overlays.RemoveDrawingForSymbol(ctx, m.currentSymbol(), a.Data.Overlay.ID)
	}
	return fmt.Errorf("unknown action type %q", t)
}

func (m *Manager) currentSymbol() overlay.SymbolKey {
	if m.cfg.CurrentSymbol == nil {
		return ""
	}
	return m.cfg.CurrentSymbol()
}

// CanUndo reports whether Undo has an action to apply.
func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

// CanRedo reports whether Redo has an action to apply.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// State returns the current stack sizes.
func (m *Manager) State() State {
	return State{Undo: len(m.undo), Redo: len(m.redo), CanUndo: m.CanUndo(), CanRedo: m.CanRedo()}
}

// History returns copies of both stacks, oldest first.
func (m *Manager) History() (undo, redo []Action) {
	return append([]Action(nil), m.undo...), append([]Action(nil), m.redo...)
}

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.undo, m.redo = nil, nil
	m.publish()
}

// Subscribe registers fn for state changes and calls it once with the
// current state. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.nextSub++
	id := m.nextSub
	m.subscribers[id] = fn
	m.subOrder = append(m.subOrder, id)
	fn(m.State())
	return func() {
		delete(m.subscribers, id)
		m.subOrder = lo.Without(m.subOrder, id)
	}
}

func (m *Manager) publish() {
	s := m.State()
	for _, id := range append([]int(nil), m.subOrder...) {
		if fn, ok := m.subscribers[id]; ok {
			fn(s)
		}
	}
}

func (m *Manager) journal(op string, a Action) {
	if m.cfg.Journal == nil {
		return
	}
	if err := m.cfg.Journal.Write(JournalRecord{Op: op, Action: a, At: overlay.NowMillis()}); err != nil {
		slog.Debug("history journal write failed", "op", op, "error", err)
	}
}

func pushBounded(stack []Action, a Action, limit int) []Action {
	stack = append(stack, a)
	if over := len(stack) - limit; over > 0 {
		stack = append([]Action(nil), stack[over:]...)
	}
	return stack
}
