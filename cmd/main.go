package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"meetmetrics/internal/charts"
	"meetmetrics/internal/config"
	"meetmetrics/internal/daterange"
	"meetmetrics/internal/delivery"
	"meetmetrics/internal/google"
	"meetmetrics/internal/icalendar"
	"meetmetrics/internal/logging"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
	"meetmetrics/internal/reporter"
	"meetmetrics/internal/session"
	"meetmetrics/internal/store"
	"meetmetrics/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "meetmetrics",
		Usage: "Analyze calendar meetings and email weekly reports.",
		Commands: []*cli.Command{
			serveCommand(),
			reportCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err, "error_kind", models.ErrorKind(err))
		if msg := models.UserMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}
}

// application holds the wired components shared by every command.
type application struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	service *reporter.Service
}

func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel)

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sess := session.NewManager(logger, cfg.Google, google.ConfigFactory(cfg.GoogleRedirect), time.Now)
	service := reporter.New(reporter.Options{
		Logger:    logger,
		Session:   sess,
		Providers: reporter.NewProviderFactory(logger, cfg, sess),
		Mailer:    delivery.NewChannel(logger, cfg.SMTP),
		Store:     db,
		Location:  cfg.Location,
	})

	return &application{cfg: cfg, logger: logger, store: db, service: service}, nil
}

func (a *application) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close database", "error", err)
	}
}

// connect authenticates with kind. For Google without a credential the user is
// sent to the consent page and pastes the authorization code back.
func (a *application) connect(ctx context.Context, kind provider.Kind, in io.Reader, out io.Writer) (provider.Provider, error) {
	result, err := a.service.Authenticate(ctx, kind)
	if err != nil {
		return nil, err
	}
	if result.AuthURL == "" {
		return result.Provider, nil
	}

	fmt.Fprintf(out, "Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", result.AuthURL)
	fmt.Fprint(out, "Enter Authorization Code: ")
	code, _ := bufio.NewReader(in).ReadString('\n')
	return a.service.HandleCallback(ctx, strings.TrimSpace(code), "")
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP dashboard and the weekly report trigger.",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			if !app.cfg.GoogleConfigured() {
				app.logger.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Google sign-in will fail")
			}

			app.service.Start()
			srv := &http.Server{
				Addr:              app.cfg.HTTPAddr,
				Handler:           web.NewRouter(web.RouterConfig{Logger: app.logger, Reporter: app.service}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.logger.Info("Listening", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
			case <-ctx.Done():
				app.logger.Info("Shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				app.logger.Warn("HTTP shutdown incomplete", "error", err)
			}
			return app.service.Stop(shutdownCtx)
		},
	}
}

func providerFlag() cli.Flag {
	return &cli.StringFlag{Name: "provider", Value: string(provider.Google), Usage: "Calendar provider: google, outlook, apple or caldav."}
}

func rangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "start", Usage: "First day (YYYY-MM-DD). Defaults to last Monday."},
		&cli.StringFlag{Name: "end", Usage: "Last day (YYYY-MM-DD). Defaults to last Sunday."},
	}
}

func rangeFromFlags(c *cli.Context, svc *reporter.Service) (daterange.Range, error) {
	start, end := c.String("start"), c.String("end")
	if start == "" && end == "" {
		return svc.LastWeek(), nil
	}
	return daterange.Parse(start, end, svc.Location())
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Summarize meetings for a date range, optionally writing and emailing the charts.",
		Flags: append([]cli.Flag{
			providerFlag(),
			&cli.StringFlag{Name: "out", Usage: "Directory to write chart PNGs into."},
			&cli.BoolFlag{Name: "send", Usage: "Email the charts to the recipient."},
			&cli.StringFlag{Name: "to", Usage: "Recipient address. Defaults to the saved one."},
		}, rangeFlags()...),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			app, err := newApplication(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			kind, err := provider.ParseKind(c.String("provider"))
			if err != nil {
				return err
			}
			dates, err := rangeFromFlags(c, app.service)
			if err != nil {
				return err
			}
			p, err := app.connect(ctx, kind, os.Stdin, os.Stdout)
			if err != nil {
				return err
			}

			report, err := app.service.FetchAndSummarize(ctx, p, dates)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, renderSummary(report))

			reportCharts := app.service.Render(report.Events)
			if dir := c.String("out"); dir != "" {
				if err := writeCharts(dir, reportCharts); err != nil {
					return err
				}
				app.logger.Info("Wrote charts", "dir", dir, "count", len(reportCharts))
			}

			if !c.Bool("send") {
				return nil
			}
			recipient := c.String("to")
			if recipient == "" {
				if recipient, err = app.service.Recipient(ctx); err != nil {
					return err
				}
			} else if err := app.service.SaveRecipient(ctx, recipient); err != nil {
				app.logger.Warn("Failed to save recipient", "error", err)
			}
			if recipient == "" {
				return fmt.Errorf("%w: no recipient, pass --to", models.ErrDelivery)
			}
			if err := app.service.Send(ctx, recipient, reportCharts); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Report sent to %s\n", recipient)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the events of a date range as an iCalendar file.",
		Flags: append([]cli.Flag{
			providerFlag(),
			&cli.StringFlag{Name: "file", Value: "meetings.ics", Usage: "Output file, or - for stdout."},
		}, rangeFlags()...),
		Action: func(c *cli.Context) error {
			ctx := c.Context
			app, err := newApplication(ctx)
			if err != nil {
				return err
			}
			defer app.close()

			kind, err := provider.ParseKind(c.String("provider"))
			if err != nil {
				return err
			}
			dates, err := rangeFromFlags(c, app.service)
			if err != nil {
				return err
			}
			p, err := app.connect(ctx, kind, os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			report, err := app.service.FetchAndSummarize(ctx, p, dates)
			if err != nil {
				return err
			}

			name := c.String("file")
			if name == "-" {
				return icalendar.Encode(os.Stdout, report.Events, time.Now())
			}
			f, err := os.Create(name)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", name, err)
			}
			if err := icalendar.Encode(f, report.Events, time.Now()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			app.logger.Info("Exported events", "file", name, "count", len(report.Events), "range", dates.String())
			return nil
		},
	}
}

func writeCharts(dir string, reportCharts []charts.Chart) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for i, c := range reportCharts {
		name := filepath.Join(dir, chartFileName(i, c))
		f, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		if err := charts.RenderPNG(c, f); err != nil {
			f.Close()
			return fmt.Errorf("failed to render %s: %w", c.ID, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func chartFileName(i int, c charts.Chart) string {
	return fmt.Sprintf("%02d-%s.png", i+1, c.ID)
}
