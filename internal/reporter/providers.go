package reporter

import (
	"fmt"
	"log/slog"

	"meetmetrics/internal/caldav"
	"meetmetrics/internal/config"
	"meetmetrics/internal/google"
	"meetmetrics/internal/models"
	"meetmetrics/internal/provider"
)

// ProviderFactory returns the provider for a kind.
type ProviderFactory func(kind provider.Kind) (provider.Provider, error)

// NewProviderFactory wires every provider variant from configuration.
// Google providers draw their credential from creds.
func NewProviderFactory(logger *slog.Logger, cfg config.Config, creds google.CredentialSource) ProviderFactory {
	return func(kind provider.Kind) (provider.Provider, error) {
		switch kind {
		case provider.Google:
			return google.NewClient(logger, creds, cfg.GoogleCalendarID, cfg.Location), nil
		case provider.CalDAV:
			return caldav.NewClient(logger, cfg.CalDAV, cfg.Location)
		case provider.Outlook, provider.Apple:
			return provider.NewUnavailable(kind), nil
		default:
			return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedProvider, kind)
		}
	}
}
