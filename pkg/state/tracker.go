package state

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/samber/lo"

	"teledrive/pkg/models"
)

// Tracker is the in-memory view of completed transfers backed by a Store.
// Record is the only mutation; entries are never removed.
type Tracker struct {
	store   Store
	log     *slog.Logger
	mu      sync.RWMutex
	records map[string]models.TransferRecord
}

// NewTracker creates a tracker; call Load before use
func NewTracker(store Store, log *slog.Logger) *Tracker {
	return &Tracker{
		store:   store,
		log:     log,
		records: map[string]models.TransferRecord{},
	}
}

// Load replaces the in-memory map with what the store holds. A missing or
// unreadable file yields an empty map and a warning, never an error.
func (t *Tracker) Load() map[string]models.TransferRecord {
	records, skipped, err := t.store.Load()
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			t.log.Warn("Tracker file is corrupt, starting from an empty tracker", "error", err)
		} else {
			t.log.Warn("Tracker file could not be read, starting from an empty tracker", "error", err)
		}
		records = map[string]models.TransferRecord{}
	}
	for _, key := range skipped {
		t.log.Warn("Skipping malformed tracker entry", "key", key)
	}

	t.mu.Lock()
	t.records = records
	t.mu.Unlock()

	t.log.Info("Tracker loaded", "records", len(records))
	return t.Snapshot()
}

// Contains reports whether key has a completed transfer
func (t *Tracker) Contains(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.records[key]
	return ok
}

// ContainsItem matches by identity, then by display name for entries
// written before identities were tracked (those have no source id).
func (t *Tracker) ContainsItem(item models.TransferItem) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.records[item.Identity]; ok {
		return true
	}
	if rec, ok := t.records[item.DisplayName]; ok && rec.SourceID == "" {
		return true
	}
	return false
}

// Get returns the record for key
func (t *Tracker) Get(key string) (models.TransferRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[key]
	return rec, ok
}

// Record adds key and persists the entire map. On a persistence failure
// the entry stays in memory and the error is returned.
func (t *Tracker) Record(key string, rec models.TransferRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records[key] = rec
	if err := t.store.Save(t.records); err != nil {
		return fmt.Errorf("failed to persist tracker after recording %s: %w", key, err)
	}
	return nil
}

// Len returns the number of records
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Snapshot returns a copy of all records
func (t *Tracker) Snapshot() map[string]models.TransferRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.records)
}

// Summary counts records and lists the most recently completed keys
func (t *Tracker) Summary(recent int) models.TrackerSummary {
	t.mu.RLock()
	entries := lo.Entries(t.records)
	t.mu.RUnlock()

	count := len(entries)
	total := lo.SumBy(entries, func(e lo.Entry[string, models.TransferRecord]) int64 {
		return e.Value.SizeBytes
	})

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Value.CompletedAt, entries[j].Value.CompletedAt
		if a.Equal(b) {
			return entries[i].Key < entries[j].Key
		}
		return a.After(b)
	})
	if recent >= 0 && len(entries) > recent {
		entries = entries[:recent]
	}

	return models.TrackerSummary{
		Count:     count,
		TotalSize: total,
		RecentKeys: lo.Map(entries, func(e lo.Entry[string, models.TransferRecord], _ int) string {
			return e.Key
		}),
	}
}
