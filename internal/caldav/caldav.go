package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"meetmetrics/internal/daterange"
	"meetmetrics/internal/icalendar"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
)

const requestTimeout = 30 * time.Second

// Settings locate the calendar on a CalDAV server.
type Settings struct {
	URL          string
	Username     string
	Password     string
	CalendarName string
}

// basicAuthTransport handles adding Basic Auth and custom headers to requests.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "meetmetrics/1.0")
	return t.Transport.RoundTrip(req)
}

// Client reads events from a CalDAV calendar.
type Client struct {
	settings   Settings
	location   *time.Location
	httpClient *http.Client
	logger     *slog.Logger

	mu           sync.Mutex
	caldavClient *caldav.Client
	calendarPath string
}

// NewClient creates a CalDAV provider. No request is made until Authenticate.
func NewClient(logger *slog.Logger, settings Settings, loc *time.Location) (*Client, error) {
	if settings.URL == "" || settings.Username == "" || settings.Password == "" || settings.CalendarName == "" {
		return nil, fmt.Errorf("%w: CALDAV_URL, CALDAV_USERNAME, CALDAV_PASSWORD and CALDAV_CALENDAR_NAME must be set", models.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	transport := &basicAuthTransport{
		Username:  settings.Username,
		Password:  settings.Password,
		Transport: http.DefaultTransport,
	}
	return &Client{
		settings:   settings,
		location:   loc,
		httpClient: &http.Client{Transport: transport, Timeout: requestTimeout},
		logger:     logger.With("component", "caldav"),
	}, nil
}

// Kind implements provider.Provider.
func (c *Client) Kind() provider.Kind {
	return provider.CalDAV
}

// Authenticate connects to the server and resolves the configured calendar.
func (c *Client) Authenticate(ctx context.Context) error {
	caldavClient, err := caldav.NewClient(c.httpClient, c.settings.URL)
	if err != nil {
		return fmt.Errorf("%w: failed to create caldav client: %w", models.ErrConfiguration, err)
	}

	c.logger.Info("Finding CalDAV calendar", "calendarName", c.settings.CalendarName)
	calendarPath, err := findCalendar(ctx, caldavClient, c.settings.CalendarName)
	if err != nil {
		return fmt.Errorf("%w: could not find calendar '%s': %w", models.ErrNotAuthenticated, c.settings.CalendarName, err)
	}

	c.mu.Lock()
	c.caldavClient = caldavClient
	c.calendarPath = calendarPath
	c.mu.Unlock()
	c.logger.Info("Successfully found CalDAV calendar", "path", calendarPath)
	return nil
}

func (c *Client) connection(ctx context.Context) (*caldav.Client, string, error) {
	c.mu.Lock()
	caldavClient, calendarPath := c.caldavClient, c.calendarPath
	c.mu.Unlock()
	if caldavClient != nil {
		return caldavClient, calendarPath, nil
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caldavClient, c.calendarPath, nil
}

// FetchEvents runs a calendar-query for VEVENTs overlapping r and keeps those starting inside it.
func (c *Client) FetchEvents(ctx context.Context, r daterange.Range) ([]models.Event, error) {
	caldavClient, calendarPath, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: r.TimeMin().UTC(),
				End:   r.TimeMax().UTC(),
			}},
		},
	}

	objects, err := caldavClient.QueryCalendar(ctx, calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query calendar: %w", models.ErrProvider, err)
	}

	events := c.collect(objects, r)
	c.logger.Info("Successfully fetched events from CalDAV", "count", len(events), "calendar", c.settings.CalendarName)
	return events, nil
}

// collect expands the queried objects into the events starting inside r,
// ordered by start time. Unreadable objects are skipped.
func (c *Client) collect(objects []caldav.CalendarObject, r daterange.Range) []models.Event {
	source := "caldav-" + c.settings.CalendarName
	var events []models.Event
	for _, obj := range objects {
		expanded, err := icalendar.Expand(obj.Data, source, c.location, r.TimeMin(), r.TimeMax())
		if err != nil {
			c.logger.Warn("Skipping unreadable calendar object", "path", obj.Path, "error", err)
			continue
		}
		events = append(events, expanded...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func findCalendar(ctx context.Context, client *caldav.Client, name string) (string, error) {
	principalPath, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if strings.EqualFold(cal.Name, name) {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
