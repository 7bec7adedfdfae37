// Package icalendar converts between go-ical components and the internal event model.
package icalendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"meetmetrics/internal/models"
)

const productID = "-//meetmetrics//EN"

// FromCalendar extracts every VEVENT of cal. Date-only values are read in loc.
func FromCalendar(cal *ical.Calendar, source string, loc *time.Location) ([]models.Event, error) {
	if cal == nil {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var events []models.Event
	for _, ev := range cal.Events() {
		event, err := fromEvent(ev, source, loc)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Expand returns the events of cal starting in [from, to). A recurring event
// yields one event per occurrence in the window; instances overridden by a
// component with a RECURRENCE-ID replace the generated occurrence.
func Expand(cal *ical.Calendar, source string, loc *time.Location, from, to time.Time) ([]models.Event, error) {
	if cal == nil {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	inWindow := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }

	var events []models.Event
	overridden := make(map[string]bool)
	var masters []ical.Event
	for _, ev := range cal.Events() {
		recurrenceID, err := ev.Props.DateTime(ical.PropRecurrenceID, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid RECURRENCE-ID: %w", err)
		}
		if recurrenceID.IsZero() {
			if ev.Props.Get(ical.PropRecurrenceRule) != nil {
				masters = append(masters, ev)
				continue
			}
		} else {
			uid, _ := ev.Props.Text(ical.PropUID)
			overridden[occurrenceKey(uid, recurrenceID)] = true
		}

		event, err := fromEvent(ev, source, loc)
		if err != nil {
			return nil, err
		}
		if inWindow(event.StartTime) {
			events = append(events, event)
		}
	}

	for _, ev := range masters {
		base, err := fromEvent(ev, source, loc)
		if err != nil {
			return nil, err
		}
		set, err := ev.RecurrenceSet(loc)
		if err != nil {
			return nil, fmt.Errorf("event %q: %w", base.UID, err)
		}
		if set == nil {
			if inWindow(base.StartTime) {
				events = append(events, base)
			}
			continue
		}
		length := base.EndTime.Sub(base.StartTime)
		for _, occurrence := range set.Between(from, to, true) {
			if !inWindow(occurrence) || overridden[occurrenceKey(base.UID, occurrence)] {
				continue
			}
			event := base
			event.ID = base.UID + "_" + occurrence.UTC().Format("20060102T150405Z")
			event.StartTime = occurrence.In(loc)
			event.EndTime = occurrence.Add(length).In(loc)
			events = append(events, event)
		}
	}
	return events, nil
}

func occurrenceKey(uid string, t time.Time) string {
	return uid + "@" + t.UTC().Format(time.RFC3339)
}

func fromEvent(ev ical.Event, source string, loc *time.Location) (models.Event, error) {
	uid, _ := ev.Props.Text(ical.PropUID)
	summary, _ := ev.Props.Text(ical.PropSummary)

	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %q: invalid DTSTART: %w", uid, err)
	}
	end, err := ev.DateTimeEnd(loc)
	if err != nil {
		return models.Event{}, fmt.Errorf("event %q: invalid DTEND: %w", uid, err)
	}
	if end.IsZero() {
		end = start
	}

	allDay := false
	if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
		allDay = prop.ValueType() == ical.ValueDate
	}

	event := models.Event{
		ID:        uid,
		UID:       uid,
		Title:     summary,
		StartTime: start.In(loc),
		EndTime:   end.In(loc),
		AllDay:    allDay,
		Source:    source,
	}
	event.Description, _ = ev.Props.Text(ical.PropDescription)
	event.Location, _ = ev.Props.Text(ical.PropLocation)
	if organizer := ev.Props.Get(ical.PropOrganizer); organizer != nil {
		event.Organizer = mailbox(organizer.Value)
	}
	for _, attendee := range ev.Props.Values(ical.PropAttendee) {
		event.Attendees = append(event.Attendees, mailbox(attendee.Value))
	}
	return event, nil
}

// ToComponent converts an internal Event to a VEVENT.
func ToComponent(event models.Event, stamp time.Time) *ical.Component {
	uid := event.UID
	if uid == "" {
		uid = GenerateUID()
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	if event.AllDay {
		ve.Props.SetDate(ical.PropDateTimeStart, event.StartTime)
		ve.Props.SetDate(ical.PropDateTimeEnd, event.EndTime)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime)
	}

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.Organizer != "" {
		p := ical.NewProp(ical.PropOrganizer)
		p.Value = "mailto:" + event.Organizer
		ve.Props.Set(p)
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + attendee
		ve.Props.Add(p)
	}
	return ve
}

// Encode writes events as a single VCALENDAR.
func Encode(w io.Writer, events []models.Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	for _, event := range events {
		cal.Children = append(cal.Children, ToComponent(event, stamp))
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode events to iCal format: %w", err)
	}
	return nil
}

// Decode reads a VCALENDAR stream into events.
func Decode(r io.Reader, source string, loc *time.Location) ([]models.Event, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode iCal data: %w", err)
	}
	return FromCalendar(cal, source, loc)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}

func mailbox(value string) string {
	if len(value) >= len("mailto:") && strings.EqualFold(value[:len("mailto:")], "mailto:") {
		return value[len("mailto:"):]
	}
	return value
}
