// Package delivery emails rendered report charts.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"meetmetrics/internal/charts"
	"meetmetrics/internal/models"
)

const (
	defaultSubject = "Weekly Calendar Analysis Report"
	plainBody      = "Here's your weekly calendar analysis report. Please find the visualizations attached below."
)

// SMTPSettings configure the outgoing mail server.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (s SMTPSettings) validate() error {
	var missing []string
	if s.Host == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if s.Port <= 0 {
		missing = append(missing, "SMTP_PORT")
	}
	if s.Username == "" {
		missing = append(missing, "SMTP_USERNAME")
	}
	if s.Password == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	if s.From == "" {
		missing = append(missing, "SMTP_FROM")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing SMTP settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Dialer submits messages to an SMTP server. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// RenderFunc draws a chart as an image.
type RenderFunc func(c charts.Chart, w io.Writer) error

// Channel sends report emails with inline chart images.
type Channel struct {
	settings SMTPSettings
	dialer   Dialer
	render   RenderFunc
	subject  string
	logger   *slog.Logger
}

// NewChannel creates a Channel that dials the configured SMTP server with STARTTLS.
func NewChannel(logger *slog.Logger, settings SMTPSettings) *Channel {
	return NewChannelWithDialer(logger, settings, gomail.NewDialer(settings.Host, settings.Port, settings.Username, settings.Password), nil)
}

// NewChannelWithDialer creates a Channel with explicit collaborators.
func NewChannelWithDialer(logger *slog.Logger, settings SMTPSettings, dialer Dialer, render RenderFunc) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if render == nil {
		render = charts.RenderPNG
	}
	return &Channel{
		settings: settings,
		dialer:   dialer,
		render:   render,
		subject:  defaultSubject,
		logger:   logger.With("component", "delivery"),
	}
}

// Send renders each chart and emails them inline to recipient.
// Every failure is reported as ErrDelivery; nothing is retried.
func (c *Channel) Send(ctx context.Context, recipient string, reportCharts []charts.Chart) error {
	if err := c.settings.validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}
	addr, err := mail.ParseAddress(recipient)
	if err != nil {
		return fmt.Errorf("%w: invalid recipient %q: %w", models.ErrDelivery, recipient, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}

	msg, err := c.compose(addr.Address, reportCharts)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}

	c.logger.Info("Sending report email", "recipient", addr.Address, "charts", len(reportCharts))
	if err := c.dialer.DialAndSend(msg); err != nil {
		c.logger.Error("Error sending email", "recipient", addr.Address, "error", err)
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}
	c.logger.Info("Report email sent", "recipient", addr.Address)
	return nil
}

type inlineImage struct {
	Title string
	CID   string
}

var bodyTemplate = template.Must(template.New("report").Parse(`<html><body>
<p>{{.Intro}}</p>
{{range .Images}}<h3>{{.Title}}</h3>
<img src="cid:{{.CID}}" alt="{{.Title}}"><br><br>
{{end}}</body></html>`))

func (c *Channel) compose(recipient string, reportCharts []charts.Chart) (*gomail.Message, error) {
	m := gomail.NewMessage()
	m.SetHeader("From", c.settings.From)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", c.subject)

	images := make([]inlineImage, 0, len(reportCharts))
	for i, ch := range reportCharts {
		var buf bytes.Buffer
		if err := c.render(ch, &buf); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("chart%d.png", i)
		data := buf.Bytes()
		m.Embed(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
		images = append(images, inlineImage{Title: ch.Title, CID: name})
	}

	var html bytes.Buffer
	if err := bodyTemplate.Execute(&html, struct {
		Intro  string
		Images []inlineImage
	}{Intro: plainBody, Images: images}); err != nil {
		return nil, fmt.Errorf("failed to build email body: %w", err)
	}

	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", html.String())
	return m, nil
}
