package trigger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
)

// JobKey identifies the single weekly report job.
const JobKey = "weekly_report"

// TimeOfDay is a wall clock time in the trigger's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay reads "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	ts, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time %q must be HH:MM", models.ErrInvalidSchedule, value)
	}
	return TimeOfDay{Hour: ts.Hour(), Minute: ts.Minute()}, nil
}

// ParseWeekday accepts full or three letter English day names in any case.
func ParseWeekday(value string) (time.Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if len(v) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			name := strings.ToLower(d.String())
			if v == name || v == name[:3] {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", models.ErrInvalidSchedule, value)
}

// Job is a weekly report delivery.
type Job struct {
	Provider  provider.Provider
	Recipient string
	Day       time.Weekday
	At        TimeOfDay
}

// Spec renders the job as a five field cron expression.
func (j Job) Spec() string {
	return strconv.Itoa(j.At.Minute) + " " + strconv.Itoa(j.At.Hour) + " * * " + strconv.Itoa(int(j.Day))
}

func (j Job) validate() error {
	if j.Provider == nil {
		return fmt.Errorf("%w: no calendar provider", models.ErrInvalidSchedule)
	}
	if strings.TrimSpace(j.Recipient) == "" {
		return fmt.Errorf("%w: no recipient", models.ErrInvalidSchedule)
	}
	if j.Day < time.Sunday || j.Day > time.Saturday || j.At.Hour < 0 || j.At.Hour > 23 || j.At.Minute < 0 || j.At.Minute > 59 {
		return fmt.Errorf("%w: %s at %s", models.ErrInvalidSchedule, j.Day, j.At)
	}
	return nil
}
