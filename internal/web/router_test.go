package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"meetmetrics/internal/analysis"
	"meetmetrics/internal/charts"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
	"meetmetrics/internal/reporter"
	"meetmetrics/internal/store"
	"meetmetrics/internal/trigger"
)

type providerStub struct {
	kind      provider.Kind
	calendars []string
}

func (p *providerStub) Kind() provider.Kind { return p.kind }

func (p *providerStub) Authenticate(context.Context) error { return nil }

func (p *providerStub) FetchEvents(context.Context, daterange.Range) ([]models.Event, error) {
	return nil, nil
}

func (p *providerStub) DiscoverCalendars(context.Context) ([]string, error) {
	return p.calendars, nil
}

type reporterStub struct {
	authURL     string
	authErr     error
	callbackErr error
	active      provider.Provider
	events      []models.Event
	fetchErr    error
	sendErr     error
	recipient   string
	runs        []store.Run
	panicOnRuns bool

	loggedOut bool
	callbacks []string
	fetched   []daterange.Range
	sent      []string
	scheduled []trigger.Job
	job       *trigger.Job
	next      time.Time
}

func (r *reporterStub) Authenticate(_ context.Context, kind provider.Kind) (reporter.AuthResult, error) {
	if kind != provider.Google && kind != provider.CalDAV {
		return reporter.AuthResult{}, fmt.Errorf("%w: %s", models.ErrNotImplemented, kind)
	}
	if r.authErr != nil {
		return reporter.AuthResult{}, r.authErr
	}
	if r.authURL != "" {
		return reporter.AuthResult{AuthURL: r.authURL}, nil
	}
	return reporter.AuthResult{Provider: &providerStub{kind: kind}}, nil
}

func (r *reporterStub) HandleCallback(_ context.Context, code, state string) (provider.Provider, error) {
	r.callbacks = append(r.callbacks, code+"/"+state)
	if r.callbackErr != nil {
		return nil, r.callbackErr
	}
	return &providerStub{kind: provider.Google}, nil
}

func (r *reporterStub) Logout() { r.loggedOut = true }

func (r *reporterStub) Active() (provider.Provider, error) {
	if r.active == nil {
		return nil, models.ErrNotAuthenticated
	}
	return r.active, nil
}

func (r *reporterStub) Location() *time.Location { return time.UTC }

func (r *reporterStub) LastWeek() daterange.Range {
	return daterange.LastWeek(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
}

func (r *reporterStub) FetchAndSummarize(_ context.Context, _ provider.Provider, dates daterange.Range) (reporter.Report, error) {
	r.fetched = append(r.fetched, dates)
	if r.fetchErr != nil {
		return reporter.Report{}, r.fetchErr
	}
	return reporter.Report{Range: dates, Events: r.events, Summary: analysis.Summarize(r.events)}, nil
}

func (r *reporterStub) Render(events []models.Event) []charts.Chart { return charts.Build(events) }

func (r *reporterStub) Send(_ context.Context, recipient string, _ []charts.Chart) error {
	r.sent = append(r.sent, recipient)
	return r.sendErr
}

func (r *reporterStub) Recipient(context.Context) (string, error) { return r.recipient, nil }

func (r *reporterStub) SaveRecipient(_ context.Context, email string) error {
	r.recipient = email
	return nil
}

func (r *reporterStub) Schedule(_ context.Context, p provider.Provider, recipient, day, at string) (trigger.Job, error) {
	weekday, err := trigger.ParseWeekday(day)
	if err != nil {
		return trigger.Job{}, err
	}
	tod, err := trigger.ParseTimeOfDay(at)
	if err != nil {
		return trigger.Job{}, err
	}
	job := trigger.Job{Provider: p, Recipient: recipient, Day: weekday, At: tod}
	r.scheduled = append(r.scheduled, job)
	r.job = &job
	r.next = time.Date(2024, 5, 17, 17, 30, 0, 0, time.UTC)
	return job, nil
}

func (r *reporterStub) CurrentSchedule() (trigger.Job, time.Time, bool) {
	if r.job == nil {
		return trigger.Job{}, time.Time{}, false
	}
	return *r.job, r.next, true
}

func (r *reporterStub) RecentRuns(_ context.Context, limit int) ([]store.Run, error) {
	if r.panicOnRuns {
		panic("boom")
	}
	if len(r.runs) > limit {
		return r.runs[:limit], nil
	}
	return r.runs, nil
}

func newTestRouter(stub *reporterStub) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterConfig{Logger: logger, Reporter: stub})
}

func serve(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func meetingsFixture() []models.Event {
	mon := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	return []models.Event{
		{Title: "Department Sync", StartTime: mon.Add(9 * time.Hour), EndTime: mon.Add(10 * time.Hour), Attendees: []string{"a", "b", "c"}},
		{Title: "Client Call", StartTime: mon.Add(14 * time.Hour), EndTime: mon.Add(14*time.Hour + 30*time.Minute), Attendees: []string{"a", "b"}},
		{Title: "Lunch", StartTime: mon.Add(36 * time.Hour), EndTime: mon.Add(37 * time.Hour), Attendees: []string{"a", "b"}},
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"configuration":        http.StatusInternalServerError,
		"not_authenticated":    http.StatusUnauthorized,
		"replayed_code":        http.StatusBadRequest,
		"exchange":             http.StatusBadRequest,
		"unsupported_provider": http.StatusBadRequest,
		"not_implemented":      http.StatusNotImplemented,
		"provider":             http.StatusBadGateway,
		"delivery":             http.StatusBadGateway,
		"invalid_range":        http.StatusUnprocessableEntity,
		"invalid_schedule":     http.StatusUnprocessableEntity,
		"unexpected":           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("redirects to the authorization url", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{authURL: "https://accounts.example.com/auth?state=abc"})

		rec := serve(t, h, http.MethodGet, "/login?provider=google", nil)
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "https://accounts.example.com/auth?state=abc" {
			t.Fatalf("unexpected redirect %q", loc)
		}
	})

	t.Run("reports a ready provider", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{})

		rec := serve(t, h, http.MethodGet, "/login?provider=CalDAV", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp authResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Provider != "caldav" || resp.Status != "authenticated" {
			t.Fatalf("unexpected response %+v", resp)
		}
	})

	t.Run("declared but unavailable provider", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{})

		rec := serve(t, h, http.MethodGet, "/login?provider=apple", nil)
		if rec.Code != http.StatusNotImplemented {
			t.Fatalf("expected 501, got %d", rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.ErrorCode != "not_implemented" || resp.Message == "" {
			t.Fatalf("unexpected error body %+v", resp)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{})

		rec := serve(t, h, http.MethodGet, "/login?provider=yahoo", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.ErrorCode != "unsupported_provider" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})
}

func TestCallback(t *testing.T) {
	t.Parallel()

	t.Run("passes code and state through", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/callback?code=abc&state=xyz", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(stub.callbacks) != 1 || stub.callbacks[0] != "abc/xyz" {
			t.Fatalf("unexpected callbacks %v", stub.callbacks)
		}
	})

	t.Run("missing state is rejected before exchange", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/callback?code=abc", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if len(stub.callbacks) != 0 {
			t.Fatalf("expected no exchange, got %v", stub.callbacks)
		}
	})

	t.Run("provider error parameter", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/callback?error=access_denied&state=xyz", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.ErrorCode != "exchange" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("replayed code", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{callbackErr: fmt.Errorf("%w: code already used", models.ErrReplayedCode)}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/callback?code=abc&state=xyz", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.ErrorCode != "replayed_code" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
		if resp.Message != models.UserMessage(models.ErrReplayedCode) {
			t.Fatalf("unexpected message %q", resp.Message)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()
	stub := &reporterStub{}
	h := newTestRouter(stub)

	if rec := serve(t, h, http.MethodGet, "/logout", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
	rec := serve(t, h, http.MethodPost, "/logout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !stub.loggedOut {
		t.Fatal("expected logout to reach the service")
	}
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{})

		rec := serve(t, h, http.MethodGet, "/dashboard", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.ErrorCode != "not_authenticated" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("summarizes last week", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}, events: meetingsFixture()}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/dashboard", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp summaryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Start != "2024-05-06" || resp.End != "2024-05-12" {
			t.Fatalf("unexpected range %s..%s", resp.Start, resp.End)
		}
		if resp.TotalMeetings != 3 || resp.TotalDuration != 2.5 {
			t.Fatalf("unexpected totals %+v", resp)
		}
		if resp.MeetingsByCategory["Department"] != 1 || resp.MeetingsByCategory["Client"] != 1 || resp.MeetingsByCategory["Other"] != 1 {
			t.Fatalf("unexpected categories %v", resp.MeetingsByCategory)
		}
		if len(resp.MeetingsByDay) != 2 || resp.MeetingsByDay[0].Date != "2024-05-06" || resp.MeetingsByDay[0].Count != 2 {
			t.Fatalf("unexpected days %+v", resp.MeetingsByDay)
		}
		if resp.Message != "" {
			t.Fatalf("expected no message, got %q", resp.Message)
		}
	})

	t.Run("empty week carries a notice", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{active: &providerStub{kind: provider.Google}})

		rec := serve(t, h, http.MethodGet, "/dashboard", nil)
		var resp summaryResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.TotalMeetings != 0 || resp.Message != noEventsMessage {
			t.Fatalf("unexpected response %+v", resp)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}, fetchErr: fmt.Errorf("%w: 403", models.ErrProvider)}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/dashboard", nil)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
	})
}

func TestReport(t *testing.T) {
	t.Parallel()

	t.Run("explicit range with charts", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}, events: meetingsFixture()}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/report?start=2024-05-06&end=2024-05-10", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp reportResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Charts) != 7 || resp.Sent {
			t.Fatalf("unexpected report: %d charts, sent=%v", len(resp.Charts), resp.Sent)
		}
		if got := stub.fetched[0].String(); got != "2024-05-06..2024-05-10" {
			t.Fatalf("unexpected fetched range %s", got)
		}
	})

	t.Run("reversed range", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/report?start=2024-05-10&end=2024-05-06", nil)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		if len(stub.fetched) != 0 {
			t.Fatal("expected no fetch for an invalid range")
		}
	})

	t.Run("send without recipient", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/report?send=true", nil)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		if resp := decodeError(t, rec); resp.ErrorCode != "delivery" {
			t.Fatalf("unexpected error code %q", resp.ErrorCode)
		}
	})

	t.Run("send to saved recipient", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}, recipient: "me@example.com", events: meetingsFixture()}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodGet, "/report?send=true", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(stub.sent) != 1 || stub.sent[0] != "me@example.com" {
			t.Fatalf("unexpected deliveries %v", stub.sent)
		}
	})
}

func TestChartImage(t *testing.T) {
	t.Parallel()
	stub := &reporterStub{active: &providerStub{kind: provider.Google}, events: meetingsFixture()}
	h := newTestRouter(stub)

	rec := serve(t, h, http.MethodGet, "/charts/1.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("expected a PNG body")
	}

	for _, target := range []string{"/charts/0.png", "/charts/8.png", "/charts/abc.png"} {
		if rec := serve(t, h, http.MethodGet, target, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rec.Code)
		}
	}
}

func TestSettings(t *testing.T) {
	t.Parallel()

	t.Run("save recipient and schedule", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}}
		h := newTestRouter(stub)

		body := strings.NewReader(`{"email":"me@example.com","day":"Friday","time":"17:30"}`)
		rec := serve(t, h, http.MethodPost, "/settings", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp settingsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Email != "me@example.com" || resp.Schedule == nil {
			t.Fatalf("unexpected response %+v", resp)
		}
		if resp.Schedule.Day != "Friday" || resp.Schedule.Time != "17:30" || resp.Schedule.NextRun != "2024-05-17T17:30:00Z" {
			t.Fatalf("unexpected schedule %+v", resp.Schedule)
		}
		if len(stub.scheduled) != 1 || stub.scheduled[0].Recipient != "me@example.com" {
			t.Fatalf("unexpected scheduled jobs %+v", stub.scheduled)
		}

		rec = serve(t, h, http.MethodGet, "/settings", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("schedule requires authentication", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{recipient: "me@example.com"}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodPost, "/settings", strings.NewReader(`{"day":"Friday","time":"17:30"}`))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("invalid time", func(t *testing.T) {
		t.Parallel()
		stub := &reporterStub{active: &providerStub{kind: provider.Google}, recipient: "me@example.com"}
		h := newTestRouter(stub)

		rec := serve(t, h, http.MethodPost, "/settings", strings.NewReader(`{"day":"Friday","time":"25:00"}`))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		h := newTestRouter(&reporterStub{})

		rec := serve(t, h, http.MethodPost, "/settings", strings.NewReader(`{"email":`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestRuns(t *testing.T) {
	t.Parallel()
	started := time.Date(2024, 5, 17, 17, 30, 0, 0, time.UTC)
	stub := &reporterStub{runs: []store.Run{
		{ID: "2", Recipient: "me@example.com", StartedAt: started, FinishedAt: started.Add(time.Second), Status: store.StatusFailed, Error: "delivery failed"},
		{ID: "1", Recipient: "me@example.com", StartedAt: started.AddDate(0, 0, -7), FinishedAt: started.AddDate(0, 0, -7), Status: store.StatusSucceeded, MeetingCount: 4},
	}}
	h := newTestRouter(stub)

	rec := serve(t, h, http.MethodGet, "/runs?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp []runResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "2" || resp[0].Status != store.StatusFailed || resp[0].StartedAt != "2024-05-17T17:30:00Z" {
		t.Fatalf("unexpected runs %+v", resp)
	}

	if rec := serve(t, h, http.MethodGet, "/runs?limit=-3", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad limit, got %d", rec.Code)
	}
}

func TestCalendars(t *testing.T) {
	t.Parallel()
	stub := &reporterStub{active: &providerStub{kind: provider.Google, calendars: []string{"primary", "team@example.com"}}}
	h := newTestRouter(stub)

	rec := serve(t, h, http.MethodGet, "/calendars", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string][]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp["calendars"]) != 2 {
		t.Fatalf("unexpected calendars %v", resp)
	}
}

func TestRecoverFromPanic(t *testing.T) {
	t.Parallel()
	h := newTestRouter(&reporterStub{panicOnRuns: true})

	rec := serve(t, h, http.MethodGet, "/runs", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.ErrorCode != "unexpected" {
		t.Fatalf("unexpected error code %q", resp.ErrorCode)
	}
}
