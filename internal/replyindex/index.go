// Package replyindex maintains the persisted mapping from normalized phone
// keys to contact IDs. The index is rebuilt by a full roster scan and stored
// as a single JSON snapshot in the record store's key-value slot; webhook
// invocations load the snapshot instead of rescanning the roster per reply.
package replyindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"checkinbot/internal/domain"
	"checkinbot/internal/metrics"
	"checkinbot/internal/phone"
)

// SnapshotKey is the well-known key-value slot holding the serialized index.
const SnapshotKey = "reply_index"

// Index maps normalized phone keys to contact IDs. Read-only between
// rebuilds: a stale index is the caller's responsibility.
type Index struct {
	Entries map[string]int64 `json:"entries"`
	BuiltAt time.Time        `json:"built_at"`
}

// Lookup returns the contact ID for a normalized key.
func (idx *Index) Lookup(key string) (int64, bool) {
	id, ok := idx.Entries[key]
	return id, ok
}

// Build computes the index from a roster snapshot. Contacts whose phone
// normalizes to "" are skipped. On key collisions the later contact wins,
// in roster iteration order.
func Build(contacts []domain.Contact, logger *slog.Logger) *Index {
	idx := &Index{
		Entries: make(map[string]int64, len(contacts)),
		BuiltAt: time.Now(),
	}
	for _, c := range contacts {
		key := phone.Normalize(c.Phone)
		if key == "" {
			continue
		}
		if prev, ok := idx.Entries[key]; ok {
			logger.Debug("reply index key collision, later contact wins",
				"key", key, "replaced", prev, "kept", c.ID)
		}
		idx.Entries[key] = c.ID
	}
	return idx
}

// Rebuild scans the roster, builds a fresh index and commits it to the
// store's snapshot slot in one atomic swap. Concurrent lookups keep reading
// the previous snapshot until the swap lands.
func Rebuild(ctx context.Context, store domain.RecordStore, logger *slog.Logger) (*Index, error) {
	contacts, err := store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}

	idx := Build(contacts, logger)

	data, err := json.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	if err := store.PutKV(ctx, SnapshotKey, data); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}

	metrics.IndexSize.Set(int64(len(idx.Entries)))
	logger.Info("reply index rebuilt", "entries", len(idx.Entries), "scanned", len(contacts))
	return idx, nil
}

// Load reads the persisted snapshot. Returns (nil, nil) when no snapshot has
// been written yet; lookups against a missing snapshot fail closed.
func Load(ctx context.Context, store domain.RecordStore) (*Index, error) {
	data, err := store.GetKV(ctx, SnapshotKey)
	if err != nil {
		return nil, fmt.Errorf("read index snapshot: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decode index snapshot: %w", err)
	}
	return &idx, nil
}
