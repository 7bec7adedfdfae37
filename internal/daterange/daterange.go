package daterange

import (
	"fmt"
	"time"

	"meetmetrics/internal/models"
)

// DateLayout is the calendar day format accepted from users.
const DateLayout = "2006-01-02"

// Range is an inclusive span of calendar days. Start and End are midnight of
// the first and last day.
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a Range from two instants, truncating both to midnight in their own location.
func New(start, end time.Time) (Range, error) {
	r := Range{Start: midnight(start), End: midnight(end)}
	if r.End.Before(r.Start) {
		return Range{}, fmt.Errorf("%w: end %s is before start %s", models.ErrInvalidRange, r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	return r, nil
}

// Parse builds a Range from two YYYY-MM-DD strings interpreted in loc.
func Parse(start, end string, loc *time.Location) (Range, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := time.ParseInLocation(DateLayout, start, loc)
	if err != nil {
		return Range{}, fmt.Errorf("%w: start date %q: %w", models.ErrInvalidRange, start, err)
	}
	e, err := time.ParseInLocation(DateLayout, end, loc)
	if err != nil {
		return Range{}, fmt.Errorf("%w: end date %q: %w", models.ErrInvalidRange, end, err)
	}
	return New(s, e)
}

// LastWeek returns the most recently completed Monday to Sunday week relative to now.
// On a Monday this is the week that ended the previous day.
func LastWeek(now time.Time) Range {
	today := midnight(now)
	sinceMonday := (int(today.Weekday()) + 6) % 7
	start := today.AddDate(0, 0, -sinceMonday-7)
	return Range{Start: start, End: start.AddDate(0, 0, 6)}
}

// TimeMin is the inclusive lower bound for provider queries.
func (r Range) TimeMin() time.Time {
	return r.Start
}

// TimeMax is the exclusive upper bound for provider queries: midnight after End.
func (r Range) TimeMax() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// Contains reports whether t falls on one of the range's days.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.TimeMin()) && t.Before(r.TimeMax())
}

// Days returns the number of calendar days covered.
func (r Range) Days() int {
	return int(r.TimeMax().Sub(r.TimeMin()).Hours()/24 + 0.5)
}

func (r Range) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
