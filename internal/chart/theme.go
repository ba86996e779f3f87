package chart

import (
	"context"
	"log/slog"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

type pendingTheme struct {
	theme string
	stop  func()
}

// ApplyTheme sets the chart theme. Before Ready the theme is held for at most
// PendingApplyTimeout; a later theme replaces it.
func (i *Instance) ApplyTheme(ctx context.Context, theme string) error {
	i.state.SetTheme(theme)
	if !i.ready {
		i.dropPending()
		p := &pendingTheme{theme: theme}
		p.stop = i.sched.Every(i.cfg.PendingApplyTimeout, func() {
			if i.pending != p {
				return
			}
			slog.Warn("pending theme discarded, renderer not ready", "chart", i.cfg.Name, "theme", theme,
				"timeout", i.cfg.PendingApplyTimeout)
			i.dropPending()
		})
		i.pending = p
		slog.Debug("theme pending until renderer is ready", "chart", i.cfg.Name, "theme", theme)
		return nil
	}
	return i.setStyles(ctx, theme)
}

// PendingTheme returns the theme waiting for Ready, if any.
func (i *Instance) PendingTheme() (string, bool) {
	if i.pending == nil {
		return "", false
	}
	return i.pending.theme, true
}

func (i *Instance) setStyles(ctx context.Context, theme string) error {
	if err := i.r.SetStyles(ctx, theme); err != nil {
		i.cfg.Metrics.RendererFailed("set_styles")
		return overlay.NewError(overlay.CodeRendererFailure, "apply theme", err)
	}
	return nil
}

func (i *Instance) applyPending(ctx context.Context) {
	p := i.pending
	if p == nil {
		return
	}
	i.dropPending()
	if err := i.setStyles(ctx, p.theme); err != nil {
		slog.Warn("pending theme failed", "chart", i.cfg.Name, "theme", p.theme, "error", err)
	}
}

func (i *Instance) dropPending() {
	if i.pending == nil {
		return
	}
	i.pending.stop()
	i.pending = nil
}
