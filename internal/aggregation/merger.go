package aggregation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/storage"
	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
	"github.com/aevon-lab/sensor-rollup/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkerCount = 1
	defaultRangeDays   = 7
)

// Options controls how a merger run fans out over windows.
type Options struct {
	// WorkerCount bounds concurrent window transactions. 1 is strictly sequential.
	WorkerCount int
	// DefaultRangeDays is the lookback used when a request omits start.
	DefaultRangeDays int
}

func (o Options) normalized() Options {
	n := o
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	if n.DefaultRangeDays <= 0 {
		n.DefaultRangeDays = defaultRangeDays
	}
	return n
}

// Request selects the windows to recompute. A zero Start or End is filled in:
// End defaults to now, Start to DefaultRangeDays before End aligned down to
// the granularity boundary.
type Request struct {
	ChannelID   int64
	Granularity telemetry.Granularity
	Start       time.Time
	End         time.Time
}

// Result summarizes one ProcessAggregation call. NotStarted counts windows
// never attempted because the context ended first.
type Result struct {
	RunID       string                      `json:"run_id"`
	ChannelID   int64                       `json:"channel_id"`
	Granularity telemetry.Granularity       `json:"granularity"`
	Start       time.Time                   `json:"start"`
	End         time.Time                   `json:"end"`
	Windows     int                         `json:"windows"`
	Written     int                         `json:"written"`
	Unchanged   int                         `json:"unchanged"`
	Skipped     int                         `json:"skipped"`
	Failed      int                         `json:"failed"`
	NotStarted  int                         `json:"not_started"`
	Failures    []*storage.PersistenceError `json:"-"`
}

// Merger recomputes aggregate windows and upserts them through an AggregateStore.
type Merger struct {
	store storage.AggregateStore
	opts  Options
	nowFn func() time.Time
}

func NewMerger(store storage.AggregateStore, opts Options) *Merger {
	return &Merger{
		store: store,
		opts:  opts.normalized(),
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ProcessAggregation recomputes every window of the request range.
//
// Each window is its own transaction. A window that fails to persist is
// recorded in Result.Failures and the run moves on; the returned error joins
// all failures (and the context error when the run was cut short). Validation
// errors are returned before any window is touched, with a nil Result.
func (m *Merger) ProcessAggregation(ctx context.Context, req Request) (*Result, error) {
	began := time.Now()

	if err := req.Granularity.Validate(); err != nil {
		return nil, err
	}
	if req.ChannelID <= 0 {
		return nil, telemetry.InvalidArgument("channel_id", req.ChannelID, "must be positive")
	}

	now := m.nowFn().UTC()
	start, end := m.resolveRange(req, now)

	periods, err := telemetry.GeneratePeriods(start, end, req.Granularity)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:       uuid.NewString(),
		ChannelID:   req.ChannelID,
		Granularity: req.Granularity,
		Start:       start,
		End:         end,
		Windows:     len(periods),
	}

	slog.Info("[Merger] Starting aggregation run",
		"run_id", res.RunID,
		"channel_id", req.ChannelID,
		"granularity", req.Granularity,
		"start", start,
		"end", end,
		"windows", len(periods),
		"workers", m.opts.WorkerCount,
	)

	var mu sync.Mutex
	record := func(outcome storage.RefreshOutcome, perr *storage.PersistenceError) {
		mu.Lock()
		defer mu.Unlock()
		if perr != nil {
			res.Failed++
			res.Failures = append(res.Failures, perr)
			metrics.WindowsProcessed.WithLabelValues(string(req.Granularity), "failed").Inc()
			return
		}
		switch outcome {
		case storage.RefreshWritten:
			res.Written++
		case storage.RefreshUnchanged:
			res.Unchanged++
		default:
			res.Skipped++
		}
		metrics.WindowsProcessed.WithLabelValues(string(req.Granularity), outcome.String()).Inc()
	}

	g := new(errgroup.Group)
	g.SetLimit(m.opts.WorkerCount)

	for _, p := range periods {
		// Stop issuing new windows once cancelled; in-flight ones finish.
		if ctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			reduce := telemetry.Reducer(req.ChannelID, req.Granularity, p, now)
			outcome, err := m.store.RefreshWindow(ctx, req.ChannelID, req.Granularity, p, reduce)
			switch {
			case err == nil:
				record(outcome, nil)
			case ctx.Err() != nil && (errors.Is(err, ctx.Err()) || queryCanceled(err)):
				// cancelled mid-window: nothing was committed
			default:
				record(outcome, asPersistenceError(err, req.ChannelID, req.Granularity, p))
			}
			return nil
		})
	}
	_ = g.Wait() // workers report through record, never through the group

	res.NotStarted = res.Windows - (res.Written + res.Unchanged + res.Skipped + res.Failed)
	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].Window.Start.Before(res.Failures[j].Window.Start)
	})

	errs := make([]error, 0, len(res.Failures)+1)
	for _, f := range res.Failures {
		errs = append(errs, f)
	}
	if res.NotStarted > 0 {
		errs = append(errs, ctx.Err())
	}
	runErr := errors.Join(errs...)

	logArgs := []any{
		"run_id", res.RunID,
		"channel_id", req.ChannelID,
		"granularity", req.Granularity,
		"written", res.Written,
		"unchanged", res.Unchanged,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"not_started", res.NotStarted,
		"duration", time.Since(began),
	}
	switch {
	case res.NotStarted > 0:
		slog.Warn("[Merger] Aggregation run interrupted", logArgs...)
	case res.Failed > 0:
		slog.Error("[Merger] Aggregation run finished with failures", append(logArgs, "error", runErr)...)
	default:
		slog.Info("[Merger] Aggregation run complete", logArgs...)
	}

	metrics.ObserveOperation("process_aggregation", began, runErr)
	return res, runErr
}

// Windows returns stored aggregate rows with window_start in [start, end).
func (m *Merger) Windows(
	ctx context.Context,
	channelID int64,
	granularity telemetry.Granularity,
	start time.Time,
	end time.Time,
) ([]telemetry.AggregateWindow, error) {
	if err := granularity.Validate(); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, telemetry.InvalidRange(start, end)
	}
	return m.store.QueryWindows(ctx, channelID, granularity, start, end)
}

func (m *Merger) resolveRange(req Request, now time.Time) (time.Time, time.Time) {
	end := req.End
	if end.IsZero() {
		end = now
	}
	start := req.Start
	if start.IsZero() {
		start = telemetry.BucketFor(end.AddDate(0, 0, -m.opts.DefaultRangeDays), req.Granularity)
	}
	return start.UTC(), end.UTC()
}

// queryCanceled matches a statement the driver aborted on context
// cancellation without wrapping the context error.
func queryCanceled(err error) bool {
	var perr *storage.PersistenceError
	return errors.As(err, &perr) && perr.QueryCanceled()
}

func asPersistenceError(err error, channelID int64, g telemetry.Granularity, p telemetry.Period) *storage.PersistenceError {
	var perr *storage.PersistenceError
	if errors.As(err, &perr) {
		return perr
	}
	return &storage.PersistenceError{
		Op:          "refresh window",
		ChannelID:   channelID,
		Granularity: g,
		Window:      p,
		Err:         err,
	}
}
