// Package session holds the OAuth credential of the current user session and
// drives the authorization code exchange.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"meetmetrics/internal/models"
)

// State is the position of a session in the authentication flow.
type State int

const (
	Unauthenticated State = iota
	AuthorizationRequested
	Authenticated
)

func (s State) String() string {
	switch s {
	case AuthorizationRequested:
		return "authorization_requested"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// OAuthConfig is the subset of *oauth2.Config used by the session.
type OAuthConfig interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	TokenSource(ctx context.Context, t *oauth2.Token) oauth2.TokenSource
}

// ConfigFactory builds an OAuthConfig from the client secrets.
type ConfigFactory func(clientID, clientSecret string) OAuthConfig

// Secrets are the OAuth client credentials read from the environment.
type Secrets struct {
	ClientID     string
	ClientSecret string
}

// Manager owns the credential of one user session.
// It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	secrets    Secrets
	newConfig  ConfigFactory
	config     OAuthConfig
	state      State
	oauthState string
	token      *oauth2.Token
	source     oauth2.TokenSource
	used       *usedCodes
	now        func() time.Time
	logger     *slog.Logger
}

// NewManager creates a session in the Unauthenticated state.
func NewManager(logger *slog.Logger, secrets Secrets, newConfig ConfigFactory, now func() time.Time) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		secrets:   secrets,
		newConfig: newConfig,
		used:      newUsedCodes(),
		now:       now,
		logger:    logger.With("component", "session"),
	}
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin starts the authorization flow and returns the URL the user must visit.
func (m *Manager) Begin() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.configLocked()
	if err != nil {
		m.logger.Error("Authentication failed: missing OAuth client credentials")
		return "", err
	}

	m.oauthState = uuid.NewString()
	authURL := cfg.AuthCodeURL(m.oauthState, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	if m.state != Authenticated {
		m.state = AuthorizationRequested
	}
	m.logger.Info("Generated authorization URL.")
	return authURL, nil
}

// VerifyState reports whether state matches the value issued by the last Begin.
func (m *Manager) VerifyState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oauthState != "" && state == m.oauthState
}

// Used reports whether code was already exchanged in this session.
func (m *Manager) Used(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used.usedAt(code)
	return ok
}

// Exchange trades a one-time authorization code for a credential.
// A code is accepted at most once per session; a repeated code fails with
// ErrReplayedCode and does not reach the token endpoint.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.configLocked()
	if err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", models.ErrExchange)
	}

	if usedAt, ok := m.used.usedAt(code); ok {
		m.logger.Warn("Rejected replayed authorization code.", "first_used", usedAt)
		return models.ErrReplayedCode
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		m.logger.Error("Error fetching token", "error", err)
		return fmt.Errorf("%w: %w", models.ErrExchange, err)
	}

	m.used.add(code, m.now())
	m.token = token
	m.source = cfg.TokenSource(context.Background(), token)
	m.oauthState = ""
	m.state = Authenticated
	m.logger.Info("Authentication successful.")
	return nil
}

// TokenSource returns a refreshing token source for the session credential.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Authenticated || m.source == nil {
		return nil, models.ErrNotAuthenticated
	}
	if !m.token.Valid() && m.token.RefreshToken == "" {
		m.clearLocked()
		return nil, fmt.Errorf("%w: credential expired", models.ErrNotAuthenticated)
	}
	return m.source, nil
}

// Logout drops the credential and every recorded code.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.logger.Info("Logged out.")
}

func (m *Manager) clearLocked() {
	m.token = nil
	m.source = nil
	m.oauthState = ""
	m.used.reset()
	m.state = Unauthenticated
}

func (m *Manager) configLocked() (OAuthConfig, error) {
	if m.secrets.ClientID == "" || m.secrets.ClientSecret == "" {
		return nil, fmt.Errorf("%w: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set", models.ErrConfiguration)
	}
	if m.config == nil {
		if m.newConfig == nil {
			return nil, fmt.Errorf("%w: no OAuth configuration factory", models.ErrConfiguration)
		}
		m.config = m.newConfig(m.secrets.ClientID, m.secrets.ClientSecret)
	}
	return m.config, nil
}
