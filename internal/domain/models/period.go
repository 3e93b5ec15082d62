package models

import (
	"fmt"
	"time"
)

// Period is the dashboard time range selector exposed to API consumers.
type Period string

const (
	Period30Days  Period = "30d"
	Period90Days  Period = "90d"
	Period6Months Period = "6m"
	Period1Year   Period = "1y"
	PeriodAll     Period = "all"
)

// DefaultPeriod applies when the caller does not choose one.
const DefaultPeriod = Period30Days

// ResolvePeriod turns a period into an explicit window ending at now.
func ResolvePeriod(period Period, now time.Time) (Window, error) {
	if period == "" {
		period = DefaultPeriod
	}

	var start time.Time
	switch period {
	case Period30Days:
		start = now.AddDate(0, 0, -30)
	case Period90Days:
		start = now.AddDate(0, 0, -90)
	case Period6Months:
		start = now.AddDate(0, -6, 0)
	case Period1Year:
		start = now.AddDate(-1, 0, 0)
	case PeriodAll:
		start = time.Time{}
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	return Window{Start: start, End: now}, nil
}
