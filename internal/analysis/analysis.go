// Package analysis turns calendar events into per-meeting records and summary statistics.
package analysis

import (
	"sort"
	"time"

	"meetmetrics/internal/models"
)

// Record is one meeting with its derived values.
type Record struct {
	Title     string
	Start     time.Time
	End       time.Time
	Duration  float64 // hours
	Attendees int
	Category  Category
}

// DayCount is the number of meetings starting on a calendar day.
type DayCount struct {
	Day   time.Time
	Count int
}

// Summary aggregates a set of meetings.
type Summary struct {
	TotalMeetings      int
	TotalDuration      float64
	AvgDuration        float64
	AvgAttendees       float64
	MeetingsByDay      []DayCount
	MeetingsByCategory map[Category]int
	DurationByCategory map[Category]float64
}

// Records derives duration, attendee count and category for each event.
func Records(events []models.Event) []Record {
	records := make([]Record, 0, len(events))
	for _, e := range events {
		records = append(records, Record{
			Title:     e.Title,
			Start:     e.StartTime,
			End:       e.EndTime,
			Duration:  e.Duration(),
			Attendees: e.AttendeeCount(),
			Category:  Categorize(e.Title),
		})
	}
	return records
}

// Summarize computes the summary statistics for events. An empty input yields
// zero values and empty groupings.
func Summarize(events []models.Event) Summary {
	return SummarizeRecords(Records(events))
}

// SummarizeRecords computes the summary statistics from precomputed records.
func SummarizeRecords(records []Record) Summary {
	s := Summary{
		TotalMeetings:      len(records),
		MeetingsByCategory: make(map[Category]int),
		DurationByCategory: make(map[Category]float64),
	}

	byDay := make(map[time.Time]int)
	var attendees int
	for _, r := range records {
		s.TotalDuration += r.Duration
		attendees += r.Attendees
		s.MeetingsByCategory[r.Category]++
		s.DurationByCategory[r.Category] += r.Duration
		byDay[day(r.Start)]++
	}

	if s.TotalMeetings > 0 {
		s.AvgDuration = s.TotalDuration / float64(s.TotalMeetings)
		s.AvgAttendees = float64(attendees) / float64(s.TotalMeetings)
	}

	s.MeetingsByDay = make([]DayCount, 0, len(byDay))
	for d, n := range byDay {
		s.MeetingsByDay = append(s.MeetingsByDay, DayCount{Day: d, Count: n})
	}
	sort.Slice(s.MeetingsByDay, func(i, j int) bool {
		return s.MeetingsByDay[i].Day.Before(s.MeetingsByDay[j].Day)
	})
	return s
}

// CategoriesPresent returns the categories that have at least one meeting, in precedence order.
func (s Summary) CategoriesPresent() []Category {
	var present []Category
	for _, c := range Categories {
		if s.MeetingsByCategory[c] > 0 {
			present = append(present, c)
		}
	}
	return present
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
