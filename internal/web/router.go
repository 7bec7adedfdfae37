package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"meetmetrics/internal/charts"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
	"meetmetrics/internal/reporter"
	"meetmetrics/internal/store"
	"meetmetrics/internal/trigger"
)

// Reporter is the subset of *reporter.Service the HTTP surface drives.
type Reporter interface {
	Authenticate(ctx context.Context, kind provider.Kind) (reporter.AuthResult, error)
	HandleCallback(ctx context.Context, code, state string) (provider.Provider, error)
	Logout()
	Active() (provider.Provider, error)
	Location() *time.Location
	LastWeek() daterange.Range
	FetchAndSummarize(ctx context.Context, p provider.Provider, r daterange.Range) (reporter.Report, error)
	Render(events []models.Event) []charts.Chart
	Send(ctx context.Context, recipient string, reportCharts []charts.Chart) error
	Recipient(ctx context.Context) (string, error)
	SaveRecipient(ctx context.Context, email string) error
	Schedule(ctx context.Context, p provider.Provider, recipient, day, at string) (trigger.Job, error)
	CurrentSchedule() (trigger.Job, time.Time, bool)
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// RouterConfig bundles the dependencies of the HTTP handlers.
type RouterConfig struct {
	Logger   *slog.Logger
	Reporter Reporter
}

// NewRouter wires every route of the HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	h := &handlers{
		reporter:  cfg.Reporter,
		responder: newResponder(cfg.Logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", h.login)
	mux.HandleFunc("GET /callback", h.callback)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("GET /dashboard", h.dashboard)
	mux.HandleFunc("GET /report", h.report)
	mux.HandleFunc("GET /charts/{name}", h.chartImage)
	mux.HandleFunc("GET /settings", h.settings)
	mux.HandleFunc("POST /settings", h.saveSettings)
	mux.HandleFunc("GET /runs", h.runs)
	mux.HandleFunc("GET /calendars", h.calendars)

	var handler http.Handler = mux
	handler = Recover(cfg.Logger)(handler)
	handler = RequestLogger(cfg.Logger)(handler)
	return handler
}
