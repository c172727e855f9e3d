// Package memory holds an in-process implementation of the storage interfaces
// for tests and local runs without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

type readingKey struct {
	channelID int64
	entryID   int64
}

// Store implements storage.ReadingStore, storage.AggregateStore and
// storage.QualityLog. A single mutex serializes window refreshes, which gives
// each refresh the same snapshot guarantee the Postgres transaction does.
type Store struct {
	mu       sync.RWMutex
	readings map[readingKey]telemetry.Reading
	windows  map[telemetry.WindowKey]telemetry.AggregateWindow
	quality  []telemetry.QualityRecord
	nextID   int64
}

var (
	_ storage.ReadingStore   = (*Store)(nil)
	_ storage.AggregateStore = (*Store)(nil)
	_ storage.QualityLog     = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		readings: make(map[readingKey]telemetry.Reading),
		windows:  make(map[telemetry.WindowKey]telemetry.AggregateWindow),
	}
}

func (s *Store) AppendReadings(ctx context.Context, readings []telemetry.Reading) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range readings {
		key := readingKey{r.ChannelID, r.EntryID}
		if _, exists := s.readings[key]; exists {
			continue
		}
		r.ObservedAt = r.ObservedAt.UTC()
		r.ImportedAt = r.ImportedAt.UTC()
		s.readings[key] = r
		inserted++
	}
	return inserted, nil
}

func (s *Store) ReadingsInRange(ctx context.Context, channelID int64, start, end time.Time) ([]telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readingsInRange(channelID, start, end), nil
}

// readingsInRange expects s.mu to be held.
func (s *Store) readingsInRange(channelID int64, start, end time.Time) []telemetry.Reading {
	p := telemetry.Period{Start: start, End: end}
	var out []telemetry.Reading
	for _, r := range s.readings {
		if r.ChannelID == channelID && p.Contains(r.ObservedAt) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out
}

func (s *Store) RefreshWindow(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	window telemetry.Period,
	reduce telemetry.WindowReducer,
) (storage.RefreshOutcome, error) {
	if err := ctx.Err(); err != nil {
		return storage.RefreshSkipped, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := reduce(s.readingsInRange(channelID, window.Start, window.End))
	if !ok {
		return storage.RefreshSkipped, nil
	}

	key := w.Key()
	if existing, found := s.windows[key]; found && existing.SameStatistics(w) {
		return storage.RefreshUnchanged, nil
	}
	s.windows[key] = w
	return storage.RefreshWritten, nil
}

func (s *Store) QueryWindows(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	start time.Time,
	end time.Time,
) ([]telemetry.AggregateWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := telemetry.Period{Start: start, End: end}
	var out []telemetry.AggregateWindow
	for key, w := range s.windows {
		if key.ChannelID == channelID && key.Granularity == granularity && p.Contains(key.WindowStart) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart.Before(out[j].WindowStart) })
	return out, nil
}

func (s *Store) AppendQuality(ctx context.Context, rec *telemetry.QualityRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	s.quality = append(s.quality, *rec)
	return nil
}

func (s *Store) QualityHistory(ctx context.Context, channelID int64, start, end time.Time) ([]telemetry.QualityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := telemetry.Period{Start: start, End: end}
	var out []telemetry.QualityRecord
	for _, rec := range s.quality {
		if rec.ChannelID == channelID && p.Contains(rec.CheckDate) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckDate.Before(out[j].CheckDate) })
	return out, nil
}
