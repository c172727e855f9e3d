package telemetry

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTrendDays is the default analysis horizon.
	DefaultTrendDays = 30

	// movingAverageRows is the trailing window: the current day plus up to six
	// preceding days that have data.
	movingAverageRows = 7
)

// BuildTrend groups a field's non-null values by UTC calendar day and returns
// one point per day, newest first. Change compares with the previous day that
// has data and is null for the oldest day.
func BuildTrend(readings []Reading, field FieldNumber) ([]TrendPoint, error) {
	if err := field.Validate(); err != nil {
		return nil, err
	}

	byDay := make(map[time.Time][]decimal.Decimal)
	for _, r := range readings {
		v := r.value(field)
		if !v.Valid {
			continue
		}
		day := StartOfDay(r.ObservedAt)
		byDay[day] = append(byDay[day], v.Decimal)
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	points := make([]TrendPoint, len(days))
	for i, d := range days {
		values := byDay[d]
		avg, _ := Mean(values)
		p := TrendPoint{
			Date:         d,
			Avg:          avg,
			Min:          decimal.Min(values[0], values[1:]...),
			Max:          decimal.Max(values[0], values[1:]...),
			ReadingCount: int64(len(values)),
			Trend:        TrendStable,
		}
		if i > 0 {
			change := avg.Sub(points[i-1].Avg)
			p.Change = decimal.NewNullDecimal(change)
			p.Trend = trendLabel(change)
		}

		from := i - (movingAverageRows - 1)
		if from < 0 {
			from = 0
		}
		window := make([]decimal.Decimal, 0, movingAverageRows)
		for j := from; j < i; j++ {
			window = append(window, points[j].Avg)
		}
		window = append(window, avg)
		p.MovingAverage, _ = Mean(window)

		points[i] = p
	}

	// newest first
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

func trendLabel(change decimal.Decimal) string {
	switch change.Sign() {
	case 1:
		return TrendIncreasing
	case -1:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
