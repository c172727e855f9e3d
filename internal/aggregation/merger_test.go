package aggregation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/storage/memory"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

func reading(entry int64, at time.Time, field1 string) telemetry.Reading {
	r := telemetry.Reading{ChannelID: 7, EntryID: entry, ObservedAt: at, ImportedAt: at}
	r.Fields[0] = decimal.NewNullDecimal(decimal.RequireFromString(field1))
	return r
}

func newTestMerger(t *testing.T, store storage.AggregateStore, workers int) *Merger {
	t.Helper()
	m := NewMerger(store, Options{WorkerCount: workers})
	m.nowFn = func() time.Time { return t0.Add(3 * time.Hour) }
	return m
}

func seededStore(t *testing.T, readings ...telemetry.Reading) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	_, err := store.AppendReadings(context.Background(), readings)
	require.NoError(t, err)
	return store
}

func TestMerger_HourlyEndToEnd(t *testing.T) {
	store := seededStore(t,
		reading(1, t0, "10"),
		reading(2, t0.Add(30*time.Minute), "20"),
		reading(3, t0.Add(90*time.Minute), "1000"),
	)
	m := newTestMerger(t, store, 1)
	ctx := context.Background()

	res, err := m.ProcessAggregation(ctx, Request{
		ChannelID:   7,
		Granularity: telemetry.GranularityHourly,
		Start:       t0,
		End:         t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	require.Equal(t, 2, res.Windows)
	require.Equal(t, 2, res.Written)

	windows, err := m.Windows(ctx, 7, telemetry.GranularityHourly, t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, windows, 2)

	first := windows[0]
	require.Equal(t, t0, first.WindowStart)
	require.Equal(t, t0.Add(time.Hour), first.WindowEnd)
	require.Equal(t, int64(2), first.ReadingCount)
	require.Equal(t, "15", first.Fields[0].Avg.Decimal.String())
	require.Equal(t, "10", first.Fields[0].Min.Decimal.String())
	require.Equal(t, "20", first.Fields[0].Max.Decimal.String())
	require.Equal(t, "7.0710678119", first.Fields[0].StdDev.Decimal.String())
	require.False(t, first.Fields[1].Avg.Valid)

	second := windows[1]
	require.Equal(t, int64(1), second.ReadingCount)
	require.Equal(t, "1000", second.Fields[0].Avg.Decimal.String())
	require.False(t, second.Fields[0].StdDev.Valid)
}

func TestMerger_RerunIsIdempotent(t *testing.T) {
	store := seededStore(t, reading(1, t0, "10"), reading(2, t0.Add(90*time.Minute), "30"))
	m := newTestMerger(t, store, 2)
	ctx := context.Background()
	req := Request{ChannelID: 7, Granularity: telemetry.GranularityHourly, Start: t0, End: t0.Add(3 * time.Hour)}

	_, err := m.ProcessAggregation(ctx, req)
	require.NoError(t, err)
	before, err := m.Windows(ctx, 7, telemetry.GranularityHourly, t0, t0.Add(3*time.Hour))
	require.NoError(t, err)

	m.nowFn = func() time.Time { return t0.Add(5 * time.Hour) }
	res, err := m.ProcessAggregation(ctx, req)
	require.NoError(t, err)
	require.Zero(t, res.Written)
	require.Equal(t, 2, res.Unchanged)
	require.Equal(t, 1, res.Skipped)

	after, err := m.Windows(ctx, 7, telemetry.GranularityHourly, t0, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestMerger_NewReadingUpdatesOneWindow(t *testing.T) {
	store := seededStore(t,
		reading(1, t0.Add(10*time.Minute), "10"),
		reading(2, t0.Add(70*time.Minute), "20"),
		reading(3, t0.Add(130*time.Minute), "30"),
	)
	m := newTestMerger(t, store, 3)
	ctx := context.Background()
	req := Request{ChannelID: 7, Granularity: telemetry.GranularityHourly, Start: t0, End: t0.Add(3 * time.Hour)}

	_, err := m.ProcessAggregation(ctx, req)
	require.NoError(t, err)
	before, err := m.Windows(ctx, 7, telemetry.GranularityHourly, t0, t0.Add(3*time.Hour))
	require.NoError(t, err)

	_, err = store.AppendReadings(ctx, []telemetry.Reading{reading(4, t0.Add(80*time.Minute), "40")})
	require.NoError(t, err)

	m.nowFn = func() time.Time { return t0.Add(4 * time.Hour) }
	res, err := m.ProcessAggregation(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, res.Written)
	require.Equal(t, 2, res.Unchanged)

	after, err := m.Windows(ctx, 7, telemetry.GranularityHourly, t0, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, after, 3)
	require.Equal(t, before[0], after[0])
	require.Equal(t, before[2], after[2])
	require.Equal(t, int64(2), after[1].ReadingCount)
	require.Equal(t, "30", after[1].Fields[0].Avg.Decimal.String())
	require.Equal(t, t0.Add(4*time.Hour), after[1].ComputedAt)
}

func TestMerger_DefaultRange(t *testing.T) {
	store := seededStore(t, reading(1, t0.Add(-6*24*time.Hour), "10"), reading(2, t0.Add(-8*24*time.Hour), "20"))
	m := newTestMerger(t, store, 1)

	res, err := m.ProcessAggregation(context.Background(), Request{ChannelID: 7, Granularity: telemetry.GranularityDaily})
	require.NoError(t, err)

	now := t0.Add(3 * time.Hour)
	require.Equal(t, now, res.End)
	require.Equal(t, telemetry.StartOfDay(now.AddDate(0, 0, -7)), res.Start)
	require.Equal(t, 8, res.Windows)
	require.Equal(t, 1, res.Written)
}

func TestMerger_ValidationBeforeAnyWindow(t *testing.T) {
	store := &recordingStore{AggregateStore: memory.NewStore()}
	m := newTestMerger(t, store, 1)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    Request
		target error
	}{
		{
			name:   "unknown granularity",
			req:    Request{ChannelID: 7, Granularity: "MONTHLY", Start: t0, End: t0.Add(time.Hour)},
			target: telemetry.ErrInvalidGranularity,
		},
		{
			name:   "inverted range",
			req:    Request{ChannelID: 7, Granularity: telemetry.GranularityHourly, Start: t0, End: t0.Add(-time.Hour)},
			target: telemetry.ErrInvalidRange,
		},
		{
			name:   "non-positive channel",
			req:    Request{ChannelID: 0, Granularity: telemetry.GranularityHourly},
			target: telemetry.ErrInvalidArgument,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := m.ProcessAggregation(ctx, tc.req)
			require.Nil(t, res)
			require.ErrorIs(t, err, tc.target)
		})
	}
	require.Zero(t, store.refreshes())
}

func TestMerger_WindowFailureDoesNotStopRun(t *testing.T) {
	store := &recordingStore{
		AggregateStore: seededStore(t,
			reading(1, t0.Add(10*time.Minute), "10"),
			reading(2, t0.Add(70*time.Minute), "20"),
			reading(3, t0.Add(130*time.Minute), "30"),
		),
		failAt: map[time.Time]error{t0.Add(time.Hour): errors.New("serialization failure")},
	}
	m := newTestMerger(t, store, 1)

	res, err := m.ProcessAggregation(context.Background(), Request{
		ChannelID:   7,
		Granularity: telemetry.GranularityHourly,
		Start:       t0,
		End:         t0.Add(3 * time.Hour),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrPersistence)
	require.NotNil(t, res)
	require.Equal(t, 2, res.Written)
	require.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	require.Equal(t, t0.Add(time.Hour), res.Failures[0].Window.Start)
	require.Contains(t, err.Error(), "serialization failure")
	require.Equal(t, 3, store.refreshes())

	windows, err := m.Windows(context.Background(), 7, telemetry.GranularityHourly, t0, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, windows, 2)
}

func TestMerger_CancellationStopsNewWindows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &recordingStore{
		AggregateStore: seededStore(t,
			reading(1, t0.Add(10*time.Minute), "10"),
			reading(2, t0.Add(70*time.Minute), "20"),
			reading(3, t0.Add(130*time.Minute), "30"),
		),
		afterRefresh: cancel,
	}
	m := newTestMerger(t, store, 1)

	res, err := m.ProcessAggregation(ctx, Request{
		ChannelID:   7,
		Granularity: telemetry.GranularityHourly,
		Start:       t0,
		End:         t0.Add(3 * time.Hour),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	require.Equal(t, 1, res.Written)
	require.Equal(t, 2, res.NotStarted)

	windows, err := m.Windows(context.Background(), 7, telemetry.GranularityHourly, t0, t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, windows, 1)
}

func TestMerger_ServerCancelledWindowIsNotStarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &cancellingStore{
		AggregateStore: seededStore(t,
			reading(1, t0.Add(10*time.Minute), "10"),
			reading(2, t0.Add(70*time.Minute), "20"),
			reading(3, t0.Add(130*time.Minute), "30"),
		),
		cancelAt: t0.Add(time.Hour),
		cancel:   cancel,
	}
	m := newTestMerger(t, store, 1)

	res, err := m.ProcessAggregation(ctx, Request{
		ChannelID:   7,
		Granularity: telemetry.GranularityHourly,
		Start:       t0,
		End:         t0.Add(3 * time.Hour),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, storage.ErrPersistence)
	require.Equal(t, 1, res.Written)
	require.Zero(t, res.Failed)
	require.Empty(t, res.Failures)
	require.Equal(t, 2, res.NotStarted)
}

// cancellingStore cancels the run when it reaches cancelAt and fails that
// window the way the database does for a cancelled statement.
type cancellingStore struct {
	storage.AggregateStore
	cancelAt time.Time
	cancel   context.CancelFunc
}

func (s *cancellingStore) RefreshWindow(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	window telemetry.Period,
	reduce telemetry.WindowReducer,
) (storage.RefreshOutcome, error) {
	if !window.Start.Equal(s.cancelAt) {
		return s.AggregateStore.RefreshWindow(ctx, channelID, granularity, window, reduce)
	}
	s.cancel()
	return storage.RefreshSkipped, &storage.PersistenceError{
		Op:          "refresh window: read readings",
		ChannelID:   channelID,
		Granularity: granularity,
		Window:      window,
		Code:        "57014",
		Err:         errors.New("pq: canceling statement due to user request"),
	}
}

// recordingStore wraps a store to count refreshes and inject failures.
type recordingStore struct {
	storage.AggregateStore
	failAt       map[time.Time]error
	afterRefresh func()

	mu    sync.Mutex
	calls int
}

func (s *recordingStore) RefreshWindow(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	window telemetry.Period,
	reduce telemetry.WindowReducer,
) (storage.RefreshOutcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err, ok := s.failAt[window.Start]; ok {
		return storage.RefreshSkipped, err
	}
	outcome, err := s.AggregateStore.RefreshWindow(ctx, channelID, granularity, window, reduce)
	if s.afterRefresh != nil {
		s.afterRefresh()
	}
	return outcome, err
}

func (s *recordingStore) refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
