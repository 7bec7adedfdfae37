package google

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
	"meetmetrics/internal/session"
)

const (
	// DefaultCalendarID is the calendar read when none is configured.
	DefaultCalendarID = "primary"
	requestTimeout    = 30 * time.Second
	pageSize          = 250
)

// CredentialSource hands out the session's refreshing token source.
type CredentialSource interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	credentials CredentialSource
	calendarID  string
	location    *time.Location
	opts        []option.ClientOption
	logger      *slog.Logger

	mu      sync.Mutex
	service *calendar.Service
}

// NewClient creates a Google Calendar provider backed by the session credential.
// Extra client options are appended when the service is built; tests use them
// to point the client at a fake endpoint.
func NewClient(logger *slog.Logger, credentials CredentialSource, calendarID string, loc *time.Location, opts ...option.ClientOption) *CalendarClient {
	if logger == nil {
		logger = slog.Default()
	}
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarClient{
		credentials: credentials,
		calendarID:  calendarID,
		location:    loc,
		opts:        opts,
		logger:      logger.With("component", "google"),
	}
}

// Kind implements provider.Provider.
func (c *CalendarClient) Kind() provider.Kind {
	return provider.Google
}

// Authenticate builds the Calendar service from the session credential.
func (c *CalendarClient) Authenticate(ctx context.Context) error {
	if c.credentials == nil {
		return models.ErrNotAuthenticated
	}
	ts, err := c.credentials.TokenSource(ctx)
	if err != nil {
		return err
	}

	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = requestTimeout
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.opts...)

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("%w: failed to create calendar service: %w", models.ErrProvider, err)
	}
	c.mu.Lock()
	c.service = service
	c.mu.Unlock()
	return nil
}

// calendarService returns the built service, authenticating on first use.
func (c *CalendarClient) calendarService(ctx context.Context) (*calendar.Service, error) {
	c.mu.Lock()
	service := c.service
	c.mu.Unlock()
	if service != nil {
		return service, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service, nil
}

// FetchEvents lists the events starting inside r, following result pages.
func (c *CalendarClient) FetchEvents(ctx context.Context, r daterange.Range) ([]models.Event, error) {
	service, err := c.calendarService(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Fetching events", "calendarID", c.calendarID, "range", r.String())

	call := service.Events.List(c.calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(r.TimeMin().Format(time.RFC3339)).
		TimeMax(r.TimeMax().Format(time.RFC3339)).
		OrderBy("startTime").
		MaxResults(pageSize)

	var items []*calendar.Event
	err = call.Pages(ctx, func(page *calendar.Events) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to retrieve events: %w", models.ErrProvider, err)
	}

	events := c.toInternalEvents(items, r)
	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events), "calendarID", c.calendarID)
	return events, nil
}

// toInternalEvents converts Google Calendar events to the internal Event model,
// keeping those that start inside r. The API returns every event overlapping
// the query window. Date-only (all-day) events start at midnight in the
// client's location.
func (c *CalendarClient) toInternalEvents(googleEvents []*calendar.Event, r daterange.Range) []models.Event {
	events := make([]models.Event, 0, len(googleEvents))
	for _, item := range googleEvents {
		if item == nil || item.Start == nil {
			continue
		}
		start, allDay, err := c.parseEventTime(item.Start)
		if err != nil {
			c.logger.Warn("Skipping event with unreadable start", "id", item.Id, "error", err)
			continue
		}
		if !r.Contains(start) {
			continue
		}
		end := start
		if item.End != nil {
			if parsed, _, err := c.parseEventTime(item.End); err == nil {
				end = parsed
			}
		}

		var attendees []string
		for _, a := range item.Attendees {
			if a == nil {
				continue
			}
			attendees = append(attendees, a.Email)
		}

		var organizer string
		if item.Organizer != nil {
			organizer = item.Organizer.Email
		}

		events = append(events, models.Event{
			ID:          item.Id,
			Title:       item.Summary,
			Description: item.Description,
			StartTime:   start,
			EndTime:     end,
			AllDay:      allDay,
			Location:    item.Location,
			Organizer:   organizer,
			Attendees:   attendees,
			UID:         item.ICalUID,
			Source:      fmt.Sprintf("google-%s", c.calendarID),
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events
}

func (c *CalendarClient) parseEventTime(dt *calendar.EventDateTime) (time.Time, bool, error) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(c.location), false, nil
	}
	if dt.Date != "" {
		t, err := time.ParseInLocation(daterange.DateLayout, dt.Date, c.location)
		return t, true, err
	}
	return time.Time{}, false, fmt.Errorf("event time has neither dateTime nor date")
}

// OAuthConfig returns the OAuth2 configuration for the web authorization flow.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarReadonlyScope},
		Endpoint:     google.Endpoint,
	}
}

// ConfigFactory adapts OAuthConfig for the session manager.
func ConfigFactory(redirectURL string) session.ConfigFactory {
	return func(clientID, clientSecret string) session.OAuthConfig {
		return OAuthConfig(clientID, clientSecret, redirectURL)
	}
}

// DiscoverCalendars lists the calendar IDs visible to the authenticated account.
func (c *CalendarClient) DiscoverCalendars(ctx context.Context) ([]string, error) {
	service, err := c.calendarService(ctx)
	if err != nil {
		return nil, err
	}
	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list calendars: %w", models.ErrProvider, err)
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}
