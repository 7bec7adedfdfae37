package models

import "time"

// Event represents a standard calendar event.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string    // Unique identifier for the event (e.g., from the source calendar)
	Title       string    // Summary or title of the event
	Description string    // Detailed description of the event
	StartTime   time.Time // Start time of the event
	EndTime     time.Time // End time of the event
	AllDay      bool      // True when the provider only supplied dates
	Location    string    // Location of the event
	Organizer   string    // Organizer's email
	Attendees   []string  // List of attendee emails
	Source      string    // The source of the event (e.g., "google-primary")
	UID         string    // The iCalendar UID
}

// Duration returns the length of the event in fractional hours.
// Events whose end precedes their start count as zero.
func (e Event) Duration() float64 {
	d := e.EndTime.Sub(e.StartTime)
	if d < 0 {
		return 0
	}
	return d.Hours()
}

// AttendeeCount returns the number of invited attendees.
func (e Event) AttendeeCount() int {
	return len(e.Attendees)
}
