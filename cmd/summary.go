package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	liptable "github.com/charmbracelet/lipgloss/table"

	"meetmetrics/internal/daterange"
	"meetmetrics/internal/reporter"
)

const noEventsMessage = "No events found for the selected date range."

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	headerStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("245"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// renderSummary formats a report for the terminal.
func renderSummary(report reporter.Report) string {
	title := titleStyle.Render("Meetings " + report.Range.String())
	s := report.Summary
	if s.TotalMeetings == 0 {
		return title + "\n" + noEventsMessage
	}

	totals := newTable("Metric", "Value").Rows(
		[]string{"Total meetings", fmt.Sprintf("%d", s.TotalMeetings)},
		[]string{"Total hours", fmt.Sprintf("%.2f", s.TotalDuration)},
		[]string{"Average hours", fmt.Sprintf("%.2f", s.AvgDuration)},
		[]string{"Average attendees", fmt.Sprintf("%.2f", s.AvgAttendees)},
	)

	days := newTable("Day", "Meetings")
	for _, d := range s.MeetingsByDay {
		days.Row(d.Day.Format(daterange.DateLayout+" Mon"), fmt.Sprintf("%d", d.Count))
	}

	categories := newTable("Category", "Meetings", "Hours")
	for _, c := range s.CategoriesPresent() {
		categories.Row(string(c), fmt.Sprintf("%d", s.MeetingsByCategory[c]), fmt.Sprintf("%.2f", s.DurationByCategory[c]))
	}

	return strings.Join([]string{title, totals.String(), days.String(), categories.String()}, "\n")
}

func newTable(headers ...string) *liptable.Table {
	return liptable.New().
		Headers(headers...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("250"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == liptable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
