// Package reporter ties the session, calendar providers, analysis, charts,
// delivery and the weekly trigger into the operations the user drives.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meetmetrics/internal/analysis"
	"meetmetrics/internal/charts"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/logging"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
	"meetmetrics/internal/session"
	"meetmetrics/internal/store"
	"meetmetrics/internal/trigger"
)

// Session is the subset of *session.Manager the service drives.
type Session interface {
	State() session.State
	Begin() (string, error)
	VerifyState(state string) bool
	Used(code string) bool
	Exchange(ctx context.Context, code string) error
	Logout()
}

// Mailer delivers rendered charts.
type Mailer interface {
	Send(ctx context.Context, recipient string, reportCharts []charts.Chart) error
}

// Store persists settings and run history.
type Store interface {
	SaveRecipient(ctx context.Context, email string) error
	Recipient(ctx context.Context) (string, error)
	SaveSchedule(ctx context.Context, sched store.Schedule) error
	Schedule(ctx context.Context) (store.Schedule, error)
	RecordRun(ctx context.Context, run store.Run) (store.Run, error)
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// AuthResult is the outcome of Authenticate: either a ready provider or a
// URL the user must visit to grant access.
type AuthResult struct {
	Provider provider.Provider
	AuthURL  string
}

// Report is a summarized date range.
type Report struct {
	Range   daterange.Range
	Events  []models.Event
	Summary analysis.Summary
}

// Service is the core facade of the application.
type Service struct {
	logger    *slog.Logger
	session   Session
	providers ProviderFactory
	mailer    Mailer
	store     Store
	trigger   *trigger.Trigger
	location  *time.Location
	now       func() time.Time

	mu     sync.Mutex
	active provider.Provider
}

// Options configure a Service. Store may be nil.
type Options struct {
	Logger    *slog.Logger
	Session   Session
	Providers ProviderFactory
	Mailer    Mailer
	Store     Store
	Location  *time.Location
	Now       func() time.Time
}

// New creates a Service and its (stopped) weekly trigger.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		logger:    logger.With("component", "reporter"),
		session:   opts.Session,
		providers: opts.Providers,
		mailer:    opts.Mailer,
		store:     opts.Store,
		location:  loc,
		now:       now,
	}
	s.trigger = trigger.New(logger, loc, s.runJob)
	return s
}

func (s *Service) loggerFor(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return logging.FromContext(ctx, s.logger).With(append([]any{"operation", operation}, attrs...)...)
}

// Start begins firing the weekly trigger.
func (s *Service) Start() {
	s.trigger.Start()
}

// Stop halts the weekly trigger.
func (s *Service) Stop(ctx context.Context) error {
	return s.trigger.Stop(ctx)
}

// Location is the time zone reports are computed in.
func (s *Service) Location() *time.Location {
	return s.location
}

// Active returns the provider the session is connected to.
func (s *Service) Active() (provider.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, models.ErrNotAuthenticated
	}
	return s.active, nil
}

func (s *Service) setActive(p provider.Provider) {
	s.mu.Lock()
	s.active = p
	s.mu.Unlock()
}

// Authenticate connects to the calendar of the given kind. For Google, an
// unauthenticated session yields an authorization URL instead of a provider.
func (s *Service) Authenticate(ctx context.Context, kind provider.Kind) (AuthResult, error) {
	logger := s.loggerFor(ctx, "Authenticate", "provider", string(kind))

	p, err := s.providers(kind)
	if err != nil {
		logger.Error("Could not create calendar provider", "error", err, "error_kind", models.ErrorKind(err))
		return AuthResult{}, err
	}

	if kind == provider.Google && s.session.State() != session.Authenticated {
		authURL, err := s.session.Begin()
		if err != nil {
			return AuthResult{}, err
		}
		logger.Info("No existing Google credentials found, starting OAuth flow")
		return AuthResult{AuthURL: authURL}, nil
	}

	if err := p.Authenticate(ctx); err != nil {
		logger.Error("Calendar authentication failed", "error", err, "error_kind", models.ErrorKind(err))
		return AuthResult{}, err
	}
	s.setActive(p)
	logger.Info("Calendar connected")
	return AuthResult{Provider: p}, nil
}

// HandleCallback exchanges the authorization code delivered to the redirect
// address and connects the Google provider. state must match the value the
// session issued, unless it is empty (terminal flow where the user pastes the code).
func (s *Service) HandleCallback(ctx context.Context, code, state string) (provider.Provider, error) {
	logger := s.loggerFor(ctx, "HandleCallback")
	logger.Info("Starting Google authentication callback process")

	// A repeated callback carries a state that was consumed by the first one.
	if code != "" && s.session.Used(code) {
		logger.Warn("Authorization code already used")
		return nil, models.ErrReplayedCode
	}
	if state != "" && !s.session.VerifyState(state) {
		logger.Warn("OAuth state mismatch")
		return nil, fmt.Errorf("%w: state mismatch", models.ErrExchange)
	}
	if err := s.session.Exchange(ctx, code); err != nil {
		logger.Error("Google authentication failed", "error", err, "error_kind", models.ErrorKind(err))
		return nil, err
	}

	p, err := s.providers(provider.Google)
	if err != nil {
		return nil, err
	}
	if err := p.Authenticate(ctx); err != nil {
		return nil, err
	}
	s.setActive(p)
	logger.Info("Google authentication successful")

	if err := s.RestoreSchedule(ctx, p); err != nil {
		logger.Warn("Could not restore saved weekly report schedule", "error", err)
	}
	return p, nil
}

// Logout clears the credential and cancels the weekly job, whose provider
// handle no longer has a credential. The saved schedule is kept.
func (s *Service) Logout() {
	s.session.Logout()
	s.trigger.Cancel()
	s.setActive(nil)
}

// FetchAndSummarize fetches the events of r and summarizes them.
func (s *Service) FetchAndSummarize(ctx context.Context, p provider.Provider, r daterange.Range) (Report, error) {
	logger := s.loggerFor(ctx, "FetchAndSummarize", "range", r.String())
	if p == nil {
		return Report{}, models.ErrNotAuthenticated
	}

	events, err := p.FetchEvents(ctx, r)
	if err != nil {
		logger.Error("Failed to fetch events", "error", err, "error_kind", models.ErrorKind(err))
		return Report{}, err
	}
	summary := analysis.Summarize(events)
	logger.Info("Summarized calendar events", "meetings", summary.TotalMeetings, "hours", summary.TotalDuration)
	return Report{Range: r, Events: events, Summary: summary}, nil
}

// LastWeek is the most recently completed week in the service's location.
func (s *Service) LastWeek() daterange.Range {
	return daterange.LastWeek(s.now().In(s.location))
}

// Render builds the report charts for events.
func (s *Service) Render(events []models.Event) []charts.Chart {
	return charts.Build(events)
}

// Send emails reportCharts to recipient.
func (s *Service) Send(ctx context.Context, recipient string, reportCharts []charts.Chart) error {
	if s.mailer == nil {
		return fmt.Errorf("%w: no mail channel configured", models.ErrDelivery)
	}
	return s.mailer.Send(ctx, recipient, reportCharts)
}

// Schedule installs the weekly report, replacing any existing one, and saves
// it so it can be restored after the next login.
func (s *Service) Schedule(ctx context.Context, p provider.Provider, recipient, day, at string) (trigger.Job, error) {
	logger := s.loggerFor(ctx, "Schedule")

	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return trigger.Job{}, fmt.Errorf("%w: save an email address before scheduling reports", models.ErrInvalidSchedule)
	}
	weekday, err := trigger.ParseWeekday(day)
	if err != nil {
		return trigger.Job{}, err
	}
	tod, err := trigger.ParseTimeOfDay(at)
	if err != nil {
		return trigger.Job{}, err
	}

	job := trigger.Job{Provider: p, Recipient: recipient, Day: weekday, At: tod}
	if err := s.trigger.Schedule(job); err != nil {
		return trigger.Job{}, err
	}

	if s.store != nil {
		if err := s.store.SaveSchedule(ctx, store.Schedule{Day: weekday.String(), Time: tod.String()}); err != nil {
			logger.Warn("Failed to save schedule", "error", err)
		}
		if err := s.store.SaveRecipient(ctx, recipient); err != nil {
			logger.Warn("Failed to save recipient", "error", err)
		}
	}
	return job, nil
}

// RestoreSchedule re-installs a saved schedule for p when none is active.
func (s *Service) RestoreSchedule(ctx context.Context, p provider.Provider) error {
	if s.store == nil {
		return nil
	}
	if _, ok := s.trigger.Current(); ok {
		return nil
	}
	sched, err := s.store.Schedule(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	recipient, err := s.store.Recipient(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.Schedule(ctx, p, recipient, sched.Day, sched.Time)
	return err
}

// CurrentSchedule returns the installed job and its next firing.
func (s *Service) CurrentSchedule() (trigger.Job, time.Time, bool) {
	job, ok := s.trigger.Current()
	if !ok {
		return trigger.Job{}, time.Time{}, false
	}
	return job, s.trigger.Next(s.now()), true
}

// SaveRecipient stores the report email address.
func (s *Service) SaveRecipient(ctx context.Context, email string) error {
	if s.store == nil {
		return fmt.Errorf("%w: no settings store", models.ErrConfiguration)
	}
	return s.store.SaveRecipient(ctx, strings.TrimSpace(email))
}

// Recipient returns the saved report email address, or "" if none.
func (s *Service) Recipient(ctx context.Context) (string, error) {
	if s.store == nil {
		return "", nil
	}
	recipient, err := s.store.Recipient(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return recipient, err
}

// RecentRuns lists the latest weekly report runs.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.RecentRuns(ctx, limit)
}

// GenerateAndSend produces last week's report for p and emails it to recipient.
func (s *Service) GenerateAndSend(ctx context.Context, p provider.Provider, recipient string) error {
	logger := s.loggerFor(ctx, "GenerateAndSend", "recipient", recipient)
	started := s.now()
	r := s.LastWeek()

	count, err := s.generateAndSend(ctx, p, recipient, r)
	s.recordRun(ctx, logger, recipient, started, count, err)
	if err != nil {
		return err
	}
	logger.Info("Report sent", "range", r.String(), "meetings", count)
	return nil
}

func (s *Service) generateAndSend(ctx context.Context, p provider.Provider, recipient string, r daterange.Range) (int, error) {
	if p == nil {
		return 0, models.ErrNotAuthenticated
	}
	if err := p.Authenticate(ctx); err != nil {
		return 0, err
	}
	report, err := s.FetchAndSummarize(ctx, p, r)
	if err != nil {
		return 0, err
	}
	if err := s.Send(ctx, recipient, s.Render(report.Events)); err != nil {
		return report.Summary.TotalMeetings, err
	}
	return report.Summary.TotalMeetings, nil
}

func (s *Service) recordRun(ctx context.Context, logger *slog.Logger, recipient string, started time.Time, count int, runErr error) {
	if s.store == nil {
		return
	}
	run := store.Run{
		JobKey:       trigger.JobKey,
		Recipient:    recipient,
		StartedAt:    started,
		FinishedAt:   s.now(),
		Status:       store.StatusSucceeded,
		MeetingCount: count,
	}
	if runErr != nil {
		run.Status = store.StatusFailed
		run.Error = runErr.Error()
	}
	if _, err := s.store.RecordRun(ctx, run); err != nil {
		logger.Error("Failed to record report run", "error", err)
	}
}

func (s *Service) runJob(ctx context.Context, job trigger.Job) error {
	return s.GenerateAndSend(ctx, job.Provider, job.Recipient)
}
