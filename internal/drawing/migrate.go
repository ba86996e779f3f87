package drawing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

// LegacyKeyPrefix is the storage prefix of pre-data-space overlay entries.
const LegacyKeyPrefix = "overlay:"

// LegacyEntry is one raw key/value pair from legacy storage.
type LegacyEntry struct {
	Key   string
	Value string
}

// LegacyConverter turns a legacy record into a data-space overlay.
type LegacyConverter interface {
	ConvertLegacyOverlay(ctx context.Context, legacy overlay.LegacyOverlay, paneID string) (overlay.DataSpaceOverlay, bool)
}

// MigrationReport summarizes a migration run.
type MigrationReport struct {
	Migrated int                 `json:"migrated"`
	Skipped  int                 `json:"skipped"`
	Symbols  []overlay.SymbolKey `json:"symbols"`
	Warnings []string            `json:"warnings,omitempty"`
}

// ParseLegacyKey splits "SYMBOL_TIMEFRAME_overlayId" (optionally prefixed
// with "overlay:") into its parts. The overlay id may itself contain
// underscores.
func ParseLegacyKey(key string) (symbol overlay.SymbolKey, timeframe, id string, ok bool) {
	key = strings.TrimPrefix(strings.TrimSpace(key), LegacyKeyPrefix)
	parts := strings.SplitN(key, "_", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	symbol = overlay.NormalizeSymbolString(parts[0])
	timeframe = strings.TrimSpace(parts[1])
	id = strings.TrimSpace(parts[2])
	if symbol.IsZero() || timeframe == "" || id == "" {
		return "", "", "", false
	}
	return symbol, timeframe, id, true
}

// MigrateLegacyStorage converts legacy entries and files them into the
// store. It is best effort: entries that cannot be parsed or converted are
// skipped with a warning and never abort the run.
func (m *Manager) MigrateLegacyStorage(ctx context.Context, entries []LegacyEntry, conv LegacyConverter, paneID string) MigrationReport {
	var report MigrationReport
	skip := func(key, reason string) {
		report.Skipped++
		report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %s", key, reason))
		slog.Warn("legacy overlay skipped", "key", key, "reason", reason)
	}

	touched := map[overlay.SymbolKey]bool{}
	for _, e := range entries {
		symbol, timeframe, id, ok := ParseLegacyKey(e.Key)
		if !ok {
			skip(e.Key, "unparseable key")
			continue
		}
		var legacy overlay.LegacyOverlay
		if err := json.Unmarshal([]byte(e.Value), &legacy); err != nil {
			skip(e.Key, "malformed json")
			continue
		}
		if legacy.ID == "" {
			legacy.ID = id
		}
		if recorded := overlay.NormalizeSymbolString(legacy.SymbolKey); !recorded.IsZero() {
			symbol = recorded
		}

		o, ok := conv.ConvertLegacyOverlay(ctx, legacy, paneID)
		if !ok {
			skip(e.Key, "no convertible points")
			continue
		}
		o.SymbolKey = symbol
		if _, _, dup := m.find(symbol, o.ID); dup {
			skip(e.Key, "already migrated")
			continue
		}

		d := overlay.ToDrawing(o)
		if d.Extend == nil {
			d.Extend = map[string]any{}
		}
		d.Extend["legacyTimeframe"] = timeframe
		m.drawings[symbol] = append(m.drawings[symbol], d)
		touched[symbol] = true
		report.Migrated++
		if symbol == m.current && d.IsVisible() {
			m.renderDrawing(ctx, d)
		}
	}

	report.Symbols = sortedKeys(touched)
	m.metrics.Migrated("ok", report.Migrated)
	m.metrics.Migrated("skipped", report.Skipped)
	m.updateGauge()
	if report.Migrated > 0 {
		m.notify(Change{Type: ChangeLoaded})
	}
	slog.Info("legacy migration finished", "migrated", report.Migrated, "skipped", report.Skipped,
		"symbols", lo.Map(report.Symbols, func(k overlay.SymbolKey, _ int) string { return string(k) }))
	return report
}
