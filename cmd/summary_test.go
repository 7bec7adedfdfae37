package main

import (
	"strings"
	"testing"
	"time"

	"meetmetrics/internal/analysis"
	"meetmetrics/internal/charts"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
	"meetmetrics/internal/reporter"
)

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	mon := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	r, err := daterange.New(mon, mon.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("range: %v", err)
	}

	t.Run("empty range", func(t *testing.T) {
		t.Parallel()
		out := renderSummary(reporter.Report{Range: r, Summary: analysis.Summarize(nil)})
		if !strings.Contains(out, noEventsMessage) {
			t.Fatalf("expected empty notice, got %q", out)
		}
	})

	t.Run("tables", func(t *testing.T) {
		t.Parallel()
		events := []models.Event{
			{Title: "Department Sync", StartTime: mon.Add(9 * time.Hour), EndTime: mon.Add(10 * time.Hour), Attendees: []string{"a", "b", "c"}},
			{Title: "Client Call", StartTime: mon.Add(14 * time.Hour), EndTime: mon.Add(14*time.Hour + 30*time.Minute), Attendees: []string{"a", "b"}},
		}
		out := renderSummary(reporter.Report{Range: r, Events: events, Summary: analysis.Summarize(events)})
		for _, want := range []string{"2024-05-06..2024-05-12", "Total meetings", "1.50", "2024-05-06 Mon", "Department", "Client"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		if strings.Contains(out, noEventsMessage) {
			t.Error("unexpected empty notice")
		}
	})
}

func TestChartFileName(t *testing.T) {
	t.Parallel()
	if got := chartFileName(0, charts.Chart{ID: "meetings-per-day"}); got != "01-meetings-per-day.png" {
		t.Fatalf("unexpected name %q", got)
	}
}
