package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/sensor-rollup/internal/core/telemetry"
)

// sqlStateQueryCanceled is reported when the server cancels a running statement.
const sqlStateQueryCanceled = "57014"

// ErrPersistence is matched by every *PersistenceError.
var ErrPersistence = errors.New("persistence failure")

// PersistenceError reports a failed write together with the window or date it
// was for. Code is the SQLSTATE when the database supplied one.
type PersistenceError struct {
	Op          string
	ChannelID   int64
	Granularity telemetry.Granularity
	Window      telemetry.Period
	Date        time.Time
	Code        string
	Err         error
}

func (e *PersistenceError) Error() string {
	target := fmt.Sprintf("channel %d", e.ChannelID)
	switch {
	case !e.Window.Start.IsZero():
		target = fmt.Sprintf("%s %s window [%s, %s)", target, e.Granularity,
			e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339))
	case !e.Date.IsZero():
		target = fmt.Sprintf("%s date %s", target, e.Date.Format(time.DateOnly))
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (sqlstate %s): %v", e.Op, target, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, target, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{e.Err, ErrPersistence}
}

// ConstraintViolation reports whether the database rejected the write on an
// integrity constraint (SQLSTATE class 23).
func (e *PersistenceError) ConstraintViolation() bool {
	return len(e.Code) == 5 && e.Code[:2] == "23"
}

// QueryCanceled reports whether the database aborted the statement on a
// cancel request (SQLSTATE 57014).
func (e *PersistenceError) QueryCanceled() bool {
	return e.Code == sqlStateQueryCanceled
}
