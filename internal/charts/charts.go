// Package charts builds the fixed set of report charts from calendar events.
package charts

import (
	"fmt"
	"math"
	"strconv"

	"meetmetrics/internal/analysis"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
)

// Kind is the visual form of a chart.
type Kind string

const (
	Bar       Kind = "bar"
	Histogram Kind = "histogram"
	Scatter   Kind = "scatter"
	Pie       Kind = "pie"
)

// Point is one datum. Bars, bins and pie slices use Label and Y; scatter points use X and Y.
type Point struct {
	Label string  `json:"label,omitempty"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Chart is a renderer independent chart specification.
type Chart struct {
	ID     string  `json:"id"`
	Kind   Kind    `json:"kind"`
	Title  string  `json:"title"`
	XLabel string  `json:"x_label,omitempty"`
	YLabel string  `json:"y_label,omitempty"`
	Points []Point `json:"points"`
}

// Empty reports whether the chart has nothing to draw.
func (c Chart) Empty() bool {
	return len(c.Points) == 0
}

const (
	durationBinWidth  = 0.5
	attendeeBinWidth  = 1
	startHourBinWidth = 1
)

// Build returns the report charts in their fixed order:
// meetings per day, duration distribution, attendee distribution,
// start hour distribution, duration vs attendees, category share and
// duration by category.
func Build(events []models.Event) []Chart {
	records := analysis.Records(events)
	summary := analysis.SummarizeRecords(records)

	durations := make([]float64, 0, len(records))
	attendees := make([]float64, 0, len(records))
	hours := make([]float64, 0, len(records))
	scatter := make([]Point, 0, len(records))
	for _, r := range records {
		durations = append(durations, r.Duration)
		attendees = append(attendees, float64(r.Attendees))
		hours = append(hours, float64(r.Start.Hour()))
		scatter = append(scatter, Point{Label: r.Title, X: r.Duration, Y: float64(r.Attendees)})
	}

	perDay := make([]Point, 0, len(summary.MeetingsByDay))
	for _, d := range summary.MeetingsByDay {
		perDay = append(perDay, Point{Label: d.Day.Format(daterange.DateLayout), Y: float64(d.Count)})
	}

	var share, durationByCategory []Point
	for _, c := range summary.CategoriesPresent() {
		share = append(share, Point{Label: string(c), Y: float64(summary.MeetingsByCategory[c])})
		durationByCategory = append(durationByCategory, Point{Label: string(c), Y: summary.DurationByCategory[c]})
	}

	return []Chart{
		{ID: "meetings-per-day", Kind: Bar, Title: "Meetings per Day", XLabel: "Date", YLabel: "Number of Meetings", Points: perDay},
		{ID: "duration-distribution", Kind: Histogram, Title: "Meeting Duration Distribution", XLabel: "Duration (hours)", YLabel: "Meetings", Points: histogram(durations, durationBinWidth, formatHours)},
		{ID: "attendee-distribution", Kind: Histogram, Title: "Meeting Attendees Distribution", XLabel: "Attendees", YLabel: "Meetings", Points: histogram(attendees, attendeeBinWidth, formatCount)},
		{ID: "start-hour-distribution", Kind: Histogram, Title: "Meeting Time Distribution", XLabel: "Hour of Day", YLabel: "Meetings", Points: histogram(hours, startHourBinWidth, formatCount)},
		{ID: "duration-vs-attendees", Kind: Scatter, Title: "Meeting Duration vs. Number of Attendees", XLabel: "Duration (hours)", YLabel: "Number of Attendees", Points: scatter},
		{ID: "category-share", Kind: Pie, Title: "Distribution of Meetings by Category", Points: share},
		{ID: "duration-by-category", Kind: Bar, Title: "Total Duration of Meetings by Category", XLabel: "Category", YLabel: "Total Duration (hours)", Points: durationByCategory},
	}
}

// histogram counts samples into contiguous bins of the given width, from the
// bin holding the smallest sample to the bin holding the largest. Each point's
// X is the lower edge of its bin.
func histogram(samples []float64, width float64, format func(lo, hi float64) string) []Point {
	if len(samples) == 0 {
		return nil
	}
	lo, hi := samples[0], samples[0]
	for _, s := range samples[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	first := math.Floor(lo / width)
	n := int(math.Floor(hi/width)-first) + 1

	points := make([]Point, n)
	for i := range points {
		edge := (first + float64(i)) * width
		points[i] = Point{Label: format(edge, edge+width), X: edge}
	}
	for _, s := range samples {
		points[int(math.Floor(s/width)-first)].Y++
	}
	return points
}

func formatHours(lo, hi float64) string {
	return fmt.Sprintf("%s-%sh", strconv.FormatFloat(lo, 'f', -1, 64), strconv.FormatFloat(hi, 'f', -1, 64))
}

func formatCount(lo, _ float64) string {
	return strconv.Itoa(int(lo))
}
