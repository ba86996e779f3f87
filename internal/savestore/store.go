package savestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgnsrekt/tv_overlay/internal/drawing"
	"github.com/dgnsrekt/tv_overlay/internal/overlay"
)

// DefaultLayout is the layout name migrations and the daemon use when none
// is given.
const DefaultLayout = "default"

// Store persists layouts.
type Store interface {
	SaveLayout(ctx context.Context, snap Snapshot) error
	LoadLayout(ctx context.Context, name string) (Snapshot, error)
	ListLayouts(ctx context.Context) ([]LayoutInfo, error)
	DeleteLayout(ctx context.Context, name string) error
	Close() error
}

// LegacySource exposes pre-data-space overlay entries and the one-shot
// migration marker.
type LegacySource interface {
	LegacyEntries(ctx context.Context) ([]drawing.LegacyEntry, error)
	MigrationDone(ctx context.Context) (bool, error)
	MarkMigrated(ctx context.Context, report drawing.MigrationReport) error
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/*?") {
		return "", overlay.NewError(overlay.CodeValidation, fmt.Sprintf("invalid layout name %q", name), nil)
	}
	return name, nil
}

func notFound(name string) error {
	return overlay.NewError(overlay.CodeNotFound, fmt.Sprintf("layout %q not found", name), nil)
}

func storageErr(op string, err error) error {
	return overlay.NewError(overlay.CodeStorageFailure, op, err)
}
