package chart

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
	"github.com/dgnsrekt/tv_overlay/internal/projection"
	"github.com/dgnsrekt/tv_overlay/internal/savestore"
)

func (i *Instance) store() (savestore.Store, error) {
	if i.cfg.Store == nil {
		return nil, overlay.NewError(overlay.CodeStorageFailure, "no layout store configured", nil)
	}
	return i.cfg.Store, nil
}

// Snapshot captures the save-state and every stored drawing.
func (i *Instance) Snapshot(name string) savestore.Snapshot {
	return i.state.Snapshot(name, i.drawings.ExportDrawings())
}

// SaveLayout persists the current save-state and drawings under name.
func (i *Instance) SaveLayout(ctx context.Context, name string) (savestore.LayoutInfo, error) {
	st, err := i.store()
	if err != nil {
		return savestore.LayoutInfo{}, err
	}
	snap := i.Snapshot(name)
	if err := st.SaveLayout(ctx, snap); err != nil {
		return savestore.LayoutInfo{}, err
	}
	slog.Info("layout saved", "chart", i.cfg.Name, "layout", name, "drawings", snap.DrawingCount())
	return snap.Info(), nil
}

// LoadLayout replaces the chart's state with a saved layout: drawings,
// symbol, timeframe, theme and indicators. History is cleared because its
// actions refer to the replaced state.
func (i *Instance) LoadLayout(ctx context.Context, name string) (savestore.LayoutInfo, error) {
	st, err := i.store()
	if err != nil {
		return savestore.LayoutInfo{}, err
	}
	snap, err := st.LoadLayout(ctx, name)
	if err != nil {
		return savestore.LayoutInfo{}, err
	}
	if snap.Version > savestore.SnapshotVersion {
		return savestore.LayoutInfo{}, overlay.NewError(overlay.CodeValidation,
			fmt.Sprintf("layout %q has version %d, newest supported is %d", name, snap.Version, savestore.SnapshotVersion), nil)
	}
	i.Restore(ctx, snap)
	slog.Info("layout loaded", "chart", i.cfg.Name, "layout", name, "drawings", snap.DrawingCount(),
		"symbol", snap.CurrentSymbol)
	return snap.Info(), nil
}

// Restore applies a snapshot to the chart.
func (i *Instance) Restore(ctx context.Context, snap savestore.Snapshot) {
	for _, spec := range i.state.Indicators() {
		if err := i.r.RemoveIndicator(ctx, spec.Name, spec.PaneID); err != nil {
			slog.Warn("restore: indicator removal failed", "indicator", spec.Name, "pane_id", spec.PaneID, "error", err)
		}
	}
	i.state.Restore(snap)
	i.state.ReplaceIndicators(nil)
	for _, spec := range snap.Indicators {
		if _, err := i.ApplyAddIndicator(ctx, spec); err != nil {
			slog.Warn("restore: indicator failed", "indicator", spec.Name, "error", err)
		}
	}

	i.drawings.LoadAllDrawings(ctx, snap.Drawings)
	i.drawings.SetCurrentSymbol(ctx, i.state.CurrentSymbol())
	i.history.Clear()

	if snap.Theme != "" {
		if err := i.ApplyTheme(ctx, snap.Theme); err != nil {
			slog.Warn("restore: theme failed", "theme", snap.Theme, "error", err)
		}
	}
	i.proj.RequestProjection(projection.ReasonManual)
}

func (i *Instance) ListLayouts(ctx context.Context) ([]savestore.LayoutInfo, error) {
	st, err := i.store()
	if err != nil {
		return nil, err
	}
	return st.ListLayouts(ctx)
}

func (i *Instance) DeleteLayout(ctx context.Context, name string) error {
	st, err := i.store()
	if err != nil {
		return err
	}
	return st.DeleteLayout(ctx, name)
}

// MigrationResult is what Migrate reports.
type MigrationResult struct {
	Ran    bool                    `json:"ran"`
	Report drawing.MigrationReport `json:"report"`
	Layout string                  `json:"layout,omitempty"`
}

// Migrate converts legacy overlay entries from src into the drawing store,
// saves the result as the default layout and marks the source migrated.
// A source that is already marked is left alone unless force is set.
func (i *Instance) Migrate(ctx context.Context, src savestore.LegacySource, force bool) (MigrationResult, error) {
	if !force {
		done, err := src.MigrationDone(ctx)
		if err != nil {
			return MigrationResult{}, err
		}
		if done {
			slog.Info("legacy migration already done", "chart", i.cfg.Name)
			return MigrationResult{}, nil
		}
	}
	entries, err := src.LegacyEntries(ctx)
	if err != nil {
		return MigrationResult{}, err
	}
	report := i.drawings.MigrateLegacyStorage(ctx, entries, i.creation, i.cfg.PaneID)

	res := MigrationResult{Ran: true, Report: report}
	if i.cfg.Store != nil {
		if _, err := i.SaveLayout(ctx, savestore.DefaultLayout); err != nil {
			return res, err
		}
		res.Layout = savestore.DefaultLayout
	}
	if err := src.MarkMigrated(ctx, report); err != nil {
		return res, err
	}
	slog.Info("legacy migration finished", "chart", i.cfg.Name, "migrated", report.Migrated, "skipped", report.Skipped)
	return res, nil
}
