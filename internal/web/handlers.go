package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meetmetrics/internal/charts"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
	"meetmetrics/internal/reporter"
	"meetmetrics/internal/store"
)

const (
	noEventsMessage = "No events found for the selected date range."
	defaultRunLimit = 20
	maxSettingsBody = 1 << 16
)

type handlers struct {
	reporter  Reporter
	responder responder
}

type authResponse struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
}

type dayCountResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type summaryResponse struct {
	Start              string             `json:"start"`
	End                string             `json:"end"`
	TotalMeetings      int                `json:"total_meetings"`
	TotalDuration      float64            `json:"total_duration_hours"`
	AvgDuration        float64            `json:"avg_duration_hours"`
	AvgAttendees       float64            `json:"avg_attendees"`
	MeetingsByDay      []dayCountResponse `json:"meetings_by_day"`
	MeetingsByCategory map[string]int     `json:"meetings_by_category"`
	DurationByCategory map[string]float64 `json:"duration_by_category"`
	Message            string             `json:"message,omitempty"`
}

type reportResponse struct {
	Summary summaryResponse `json:"summary"`
	Charts  []charts.Chart  `json:"charts"`
	Sent    bool            `json:"sent"`
}

type scheduleResponse struct {
	Day     string `json:"day"`
	Time    string `json:"time"`
	NextRun string `json:"next_run,omitempty"`
}

type settingsResponse struct {
	Email    string            `json:"email"`
	Schedule *scheduleResponse `json:"schedule,omitempty"`
}

type settingsRequest struct {
	Email string `json:"email"`
	Day   string `json:"day"`
	Time  string `json:"time"`
}

type runResponse struct {
	ID           string `json:"id"`
	Recipient    string `json:"recipient"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	Status       string `json:"status"`
	MeetingCount int    `json:"meeting_count"`
	Error        string `json:"error,omitempty"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.URL.Query().Get("provider")
	if name == "" {
		name = string(provider.Google)
	}
	kind, err := provider.ParseKind(name)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	result, err := h.reporter.Authenticate(ctx, kind)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	if result.AuthURL != "" {
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, authResponse{Provider: string(kind), Status: "authenticated"})
}

func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	if oauthErr := query.Get("error"); oauthErr != "" {
		h.responder.handleServiceError(ctx, w, fmt.Errorf("%w: authorization denied: %s", models.ErrExchange, oauthErr))
		return
	}
	state := query.Get("state")
	if state == "" {
		h.responder.handleServiceError(ctx, w, fmt.Errorf("%w: missing state", models.ErrExchange))
		return
	}

	p, err := h.reporter.HandleCallback(ctx, query.Get("code"), state)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, authResponse{Provider: string(p.Kind()), Status: "authenticated"})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.reporter.Logout()
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.fetch(ctx, h.reporter.LastWeek())
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, newSummaryResponse(report))
}

func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dates, err := h.rangeFromQuery(r)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	report, err := h.fetch(ctx, dates)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}

	resp := reportResponse{
		Summary: newSummaryResponse(report),
		Charts:  h.reporter.Render(report.Events),
	}
	if send, _ := strconv.ParseBool(r.URL.Query().Get("send")); send {
		recipient, err := h.reporter.Recipient(ctx)
		if err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
		if recipient == "" {
			h.responder.handleServiceError(ctx, w, fmt.Errorf("%w: no recipient saved", models.ErrDelivery))
			return
		}
		if err := h.reporter.Send(ctx, recipient, resp.Charts); err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
		resp.Sent = true
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *handlers) chartImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	index, err := strconv.Atoi(strings.TrimSuffix(r.PathValue("name"), ".png"))
	if err != nil || index < 1 {
		h.responder.writeMessage(ctx, w, http.StatusNotFound, "not_found", "Chart not found.")
		return
	}

	dates, err := h.rangeFromQuery(r)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	report, err := h.fetch(ctx, dates)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	reportCharts := h.reporter.Render(report.Events)
	if index > len(reportCharts) {
		h.responder.writeMessage(ctx, w, http.StatusNotFound, "not_found", "Chart not found.")
		return
	}

	var buf bytes.Buffer
	if err := charts.RenderPNG(reportCharts[index-1], &buf); err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *handlers) settings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email, err := h.reporter.Recipient(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, h.settingsResponse(email))
}

func (h *handlers) saveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req settingsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.responder.writeMessage(ctx, w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object with email, day and time.")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email != "" {
		if err := h.reporter.SaveRecipient(ctx, email); err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
	}

	if req.Day != "" || req.Time != "" {
		p, err := h.reporter.Active()
		if err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
		if email == "" {
			if email, err = h.reporter.Recipient(ctx); err != nil {
				h.responder.handleServiceError(ctx, w, err)
				return
			}
		}
		if _, err := h.reporter.Schedule(ctx, p, email, req.Day, req.Time); err != nil {
			h.responder.handleServiceError(ctx, w, err)
			return
		}
	}

	saved, err := h.reporter.Recipient(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, h.settingsResponse(saved))
}

func (h *handlers) runs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.responder.writeMessage(ctx, w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer.")
			return
		}
		limit = n
	}

	runs, err := h.reporter.RecentRuns(ctx, limit)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, newRunResponse(run))
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, resp)
}

// calendarLister is implemented by providers that can enumerate calendars.
type calendarLister interface {
	DiscoverCalendars(ctx context.Context) ([]string, error)
}

func (h *handlers) calendars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.reporter.Active()
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	lister, ok := p.(calendarLister)
	if !ok {
		h.responder.handleServiceError(ctx, w, fmt.Errorf("%w: %s cannot list calendars", models.ErrNotImplemented, p.Kind()))
		return
	}
	ids, err := lister.DiscoverCalendars(ctx)
	if err != nil {
		h.responder.handleServiceError(ctx, w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.responder.writeJSON(ctx, w, http.StatusOK, map[string][]string{"calendars": ids})
}

func (h *handlers) fetch(ctx context.Context, dates daterange.Range) (reporter.Report, error) {
	p, err := h.reporter.Active()
	if err != nil {
		return reporter.Report{}, err
	}
	return h.reporter.FetchAndSummarize(ctx, p, dates)
}

// rangeFromQuery reads start/end, defaulting to last week when both are absent.
func (h *handlers) rangeFromQuery(r *http.Request) (daterange.Range, error) {
	query := r.URL.Query()
	start, end := query.Get("start"), query.Get("end")
	if start == "" && end == "" {
		return h.reporter.LastWeek(), nil
	}
	return daterange.Parse(start, end, h.reporter.Location())
}

func (h *handlers) settingsResponse(email string) settingsResponse {
	resp := settingsResponse{Email: email}
	if job, next, ok := h.reporter.CurrentSchedule(); ok {
		sched := &scheduleResponse{Day: job.Day.String(), Time: job.At.String()}
		if !next.IsZero() {
			sched.NextRun = next.Format(time.RFC3339)
		}
		resp.Schedule = sched
	}
	return resp
}

func newSummaryResponse(report reporter.Report) summaryResponse {
	s := report.Summary
	resp := summaryResponse{
		Start:              report.Range.Start.Format(daterange.DateLayout),
		End:                report.Range.End.Format(daterange.DateLayout),
		TotalMeetings:      s.TotalMeetings,
		TotalDuration:      s.TotalDuration,
		AvgDuration:        s.AvgDuration,
		AvgAttendees:       s.AvgAttendees,
		MeetingsByDay:      make([]dayCountResponse, 0, len(s.MeetingsByDay)),
		MeetingsByCategory: make(map[string]int, len(s.MeetingsByCategory)),
		DurationByCategory: make(map[string]float64, len(s.DurationByCategory)),
	}
	for _, d := range s.MeetingsByDay {
		resp.MeetingsByDay = append(resp.MeetingsByDay, dayCountResponse{Date: d.Day.Format(daterange.DateLayout), Count: d.Count})
	}
	for _, c := range s.CategoriesPresent() {
		resp.MeetingsByCategory[string(c)] = s.MeetingsByCategory[c]
		resp.DurationByCategory[string(c)] = s.DurationByCategory[c]
	}
	if s.TotalMeetings == 0 {
		resp.Message = noEventsMessage
	}
	return resp
}

func newRunResponse(run store.Run) runResponse {
	return runResponse{
		ID:           run.ID,
		Recipient:    run.Recipient,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		FinishedAt:   run.FinishedAt.Format(time.RFC3339),
		Status:       run.Status,
		MeetingCount: run.MeetingCount,
		Error:        run.Error,
	}
}
