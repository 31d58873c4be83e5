// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

// RetentionPolicy decides which memory records have aged out.
//
// A record is expired when it is older than MaxAge, was never accessed,
// and its importance is below KeepImportant. Important or referenced
// records survive indefinitely; consolidation, not retention, is what
// shrinks those.
type RetentionPolicy struct {
	MaxAge        time.Duration
	KeepImportant float64
}

// DefaultRetentionPolicy reads MEMORY_RETENTION_DAYS (default 90).
func DefaultRetentionPolicy() RetentionPolicy {
	days := 90
	if val := os.Getenv("MEMORY_RETENTION_DAYS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			days = parsed
		} else {
			slog.Warn("Invalid MEMORY_RETENTION_DAYS, using default", "value", val, "default", days)
		}
	}
	return RetentionPolicy{
		MaxAge:        time.Duration(days) * 24 * time.Hour,
		KeepImportant: 0.8,
	}
}

func (p RetentionPolicy) expired(rec *datatypes.MemoryRecord, now time.Time) bool {
	return now.Sub(rec.CreatedAt) > p.MaxAge &&
		rec.AccessCount == 0 &&
		rec.Importance < p.KeepImportant
}

// Sweeper removes aged-out memory records for one owner/collection scope.
// It is the retention counterpart to the Consolidator: consolidation
// merges near-duplicates, sweeping drops what nobody came back for.
type Sweeper struct {
	store  *PersistentStore
	policy RetentionPolicy

	// now is swappable for tests.
	now func() time.Time
}

func NewSweeper(store *PersistentStore, policy RetentionPolicy) *Sweeper {
	return &Sweeper{store: store, policy: policy, now: time.Now}
}

// Sweep deletes expired records and reports how many it removed.
func (s *Sweeper) Sweep(ctx context.Context, owner, collection string) (int, error) {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	records, err := s.store.List(ctx, owner, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to list records for sweep: %w", err)
	}

	now := s.now().UTC()
	removed := 0
	for i := range records {
		if !s.policy.expired(&records[i], now) {
			continue
		}
		if err := s.store.Delete(ctx, &records[i]); err != nil {
			slog.Warn("Failed to delete expired record", "id", records[i].ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Swept expired memory records",
			"owner", owner, "collection", collection, "removed", removed)
	}
	return removed, nil
}

// Run sweeps on the interval until the context is cancelled. Sweep
// failures are logged and the loop continues; a broken pass must not
// stop future ones.
func (s *Sweeper) Run(ctx context.Context, owner, collection string, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, owner, collection); err != nil {
				slog.Warn("Retention sweep failed", "owner", owner, "error", err)
			}
		}
	}
}
