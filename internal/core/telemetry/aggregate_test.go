package telemetry

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := Summarize([]decimal.Decimal{dec("10"), dec("20"), dec("30")})
	require.True(t, s.Avg.Valid)
	require.True(t, dec("20").Equal(s.Avg.Decimal))
	require.True(t, dec("10").Equal(s.Min.Decimal))
	require.True(t, dec("30").Equal(s.Max.Decimal))
	require.True(t, s.StdDev.Valid)
	require.True(t, dec("10").Equal(s.StdDev.Decimal))

	single := Summarize([]decimal.Decimal{dec("1000")})
	require.True(t, dec("1000").Equal(single.Avg.Decimal))
	require.False(t, single.StdDev.Valid, "single value must not produce a standard deviation")

	empty := Summarize(nil)
	require.False(t, empty.Avg.Valid)
	require.False(t, empty.Min.Valid)
	require.False(t, empty.Max.Valid)
	require.False(t, empty.StdDev.Valid)
}

func TestSampleStdDev(t *testing.T) {
	sd, ok := SampleStdDev([]decimal.Decimal{dec("10"), dec("20")})
	require.True(t, ok)
	require.True(t, dec("7.0710678119").Equal(sd), "got %s", sd)

	sd, ok = SampleStdDev([]decimal.Decimal{dec("5"), dec("5"), dec("5")})
	require.True(t, ok)
	require.True(t, sd.IsZero())

	_, ok = SampleStdDev([]decimal.Decimal{dec("5")})
	require.False(t, ok)
}

func TestComputeWindow_HourlyScenario(t *testing.T) {
	readings := []Reading{
		newReading(1, 1, t0, f(10)),
		newReading(1, 2, t0.Add(30*time.Minute), f(20)),
		newReading(1, 3, t0.Add(90*time.Minute), f(1000)),
		newReading(2, 1, t0.Add(10*time.Minute), f(99)), // other channel
	}

	periods, err := GeneratePeriods(t0, t0.Add(2*time.Hour), GranularityHourly)
	require.NoError(t, err)
	require.Len(t, periods, 2)

	computedAt := t0.Add(3 * time.Hour)

	w1, ok := ComputeWindow(1, GranularityHourly, periods[0], readings, computedAt)
	require.True(t, ok)
	require.Equal(t, int64(2), w1.ReadingCount)
	require.True(t, dec("15").Equal(w1.Fields[0].Avg.Decimal))
	require.True(t, w1.Fields[0].StdDev.Valid)
	require.False(t, w1.Fields[1].Avg.Valid, "field2 has no values")
	require.Equal(t, t0, w1.WindowStart)
	require.Equal(t, t0.Add(time.Hour), w1.WindowEnd)

	w2, ok := ComputeWindow(1, GranularityHourly, periods[1], readings, computedAt)
	require.True(t, ok)
	require.Equal(t, int64(1), w2.ReadingCount)
	require.True(t, dec("1000").Equal(w2.Fields[0].Avg.Decimal))
	require.False(t, w2.Fields[0].StdDev.Valid)

	_, ok = ComputeWindow(1, GranularityHourly, Period{Start: t0.Add(5 * time.Hour), End: t0.Add(6 * time.Hour)}, readings, computedAt)
	require.False(t, ok, "empty window must be skipped")
}

func TestComputeWindow_CountsReadingsWithAllFieldsNull(t *testing.T) {
	readings := []Reading{
		newReading(1, 1, t0, f(4)),
		newReading(1, 2, t0.Add(time.Minute)),
	}
	w, ok := ComputeWindow(1, GranularityHourly, Period{Start: t0, End: t0.Add(time.Hour)}, readings, t0)
	require.True(t, ok)
	require.Equal(t, int64(2), w.ReadingCount)
	require.True(t, dec("4").Equal(w.Fields[0].Avg.Decimal))
	require.False(t, w.Fields[0].StdDev.Valid)
}

func TestAggregateWindow_SameStatistics(t *testing.T) {
	readings := []Reading{newReading(1, 1, t0, f(1)), newReading(1, 2, t0.Add(time.Minute), f(3))}
	p := Period{Start: t0, End: t0.Add(time.Hour)}

	a, _ := ComputeWindow(1, GranularityHourly, p, readings, t0)
	b, _ := ComputeWindow(1, GranularityHourly, p, readings, t0.Add(time.Hour))
	require.True(t, a.SameStatistics(b), "computed_at must not affect equality")

	c, _ := ComputeWindow(1, GranularityHourly, p, append(readings, newReading(1, 3, t0.Add(2*time.Minute), f(5))), t0)
	require.False(t, a.SameStatistics(c))
}
