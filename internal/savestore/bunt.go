package savestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/dgnsrekt/tv_overlay/internal/drawing"
)

const (
	layoutPrefix    = "layout:"
	migrationMarker = "migration:legacy"
	savedAtIndex    = "layouts_saved_at"
)

// BuntStore keeps layouts and legacy overlay entries in a buntdb file.
type BuntStore struct {
	db *buntdb.DB
}

// OpenMemory opens a store that lives only in memory.
func OpenMemory() (*BuntStore, error) {
	return OpenBunt(":memory:")
}

// OpenBunt opens (or creates) a buntdb file at path.
func OpenBunt(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}
	if err := db.CreateIndex(savedAtIndex, layoutPrefix+"*", buntdb.IndexJSON("savedAt")); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return &BuntStore{db: db}, nil
}

func (b *BuntStore) Close() error { return b.db.Close() }

func (b *BuntStore) SaveLayout(_ context.Context, snap Snapshot) error {
	name, err := validName(snap.Name)
	if err != nil {
		return err
	}
	snap.Name = name
	if snap.Version == 0 {
		snap.Version = SnapshotVersion
	}
	content, err := json.Marshal(snap)
	if err != nil {
		return storageErr("marshal layout", err)
	}
	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(layoutPrefix+name, string(content), nil)
		return err
	})
	if err != nil {
		return storageErr("save layout "+name, err)
	}
	return nil
}

func (b *BuntStore) LoadLayout(_ context.Context, name string) (Snapshot, error) {
	name, err := validName(name)
	if err != nil {
		return Snapshot{}, err
	}
	var raw string
	err = b.db.View(func(tx *buntdb.Tx) error {
		raw, err = tx.Get(layoutPrefix + name)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return Snapshot{}, notFound(name)
	}
	if err != nil {
		return Snapshot{}, storageErr("load layout "+name, err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, storageErr("decode layout "+name, err)
	}
	return snap, nil
}

// ListLayouts returns layouts ordered by save time, oldest first.
func (b *BuntStore) ListLayouts(_ context.Context) ([]LayoutInfo, error) {
	out := make([]LayoutInfo, 0)
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(savedAtIndex, func(key, value string) bool {
			var snap Snapshot
			if err := json.Unmarshal([]byte(value), &snap); err != nil {
				return true
			}
			if snap.Name == "" {
				snap.Name = strings.TrimPrefix(key, layoutPrefix)
			}
			out = append(out, snap.Info())
			return true
		})
	})
	if err != nil {
		return nil, storageErr("list layouts", err)
	}
	return out, nil
}

func (b *BuntStore) DeleteLayout(_ context.Context, name string) error {
	name, err := validName(name)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(layoutPrefix + name)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return notFound(name)
	}
	if err != nil {
		return storageErr("delete layout "+name, err)
	}
	return nil
}

// PutLegacy stores a raw legacy entry. The key gets the legacy prefix when
// it is missing.
func (b *BuntStore) PutLegacy(_ context.Context, key, value string) error {
	if !strings.HasPrefix(key, drawing.LegacyKeyPrefix) {
		key = drawing.LegacyKeyPrefix + key
	}
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, nil)
		return err
	})
	if err != nil {
		return storageErr("put legacy entry", err)
	}
	return nil
}

// LegacyEntries returns every legacy overlay entry in key order.
func (b *BuntStore) LegacyEntries(_ context.Context) ([]drawing.LegacyEntry, error) {
	var out []drawing.LegacyEntry
	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(drawing.LegacyKeyPrefix+"*", func(key, value string) bool {
			out = append(out, drawing.LegacyEntry{Key: key, Value: value})
			return true
		})
	})
	if err != nil {
		return nil, storageErr("scan legacy entries", err)
	}
	return out, nil
}

func (b *BuntStore) MigrationDone(_ context.Context) (bool, error) {
	err := b.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(migrationMarker)
		return err
	})
	switch {
	case errors.Is(err, buntdb.ErrNotFound):
		return false, nil
	case err != nil:
		return false, storageErr("read migration marker", err)
	}
	return true, nil
}

func (b *BuntStore) MarkMigrated(_ context.Context, report drawing.MigrationReport) error {
	content, err := json.Marshal(report)
	if err != nil {
		return storageErr("marshal migration report", err)
	}
	err = b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(migrationMarker, string(content), nil)
		return err
	})
	if err != nil {
		return storageErr("write migration marker", err)
	}
	return nil
}

// ClearMigrationMarker lets a forced migration run again.
func (b *BuntStore) ClearMigrationMarker(_ context.Context) error {
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(migrationMarker)
		return err
	})
	if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		return storageErr("clear migration marker", err)
	}
	return nil
}
