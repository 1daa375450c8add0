package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"ytbulk/credentials"
)

// ErrNoSession is returned by HTTPClient before a successful Authenticate.
var ErrNoSession = errors.New("auth: not authenticated")

// Result is the outcome of Authenticate. Error is a human-readable message.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Store is the subset of credentials.Store the manager needs.
type Store interface {
	Load() (credentials.Credentials, error)
	LoadToken() (*oauth2.Token, error)
	SaveToken(tok *oauth2.Token) error
}

// Options configures a TokenManager. Zero values select defaults.
type Options struct {
	Server       *LocalAuthServer
	Validator    TokenValidator
	Logger       *slog.Logger
	BasePort     int
	PortAttempts int
	// HTTPClient carries token endpoint traffic (exchange and refresh).
	HTTPClient *http.Client
	Scopes     []string
}

// TokenManager owns the token lifecycle for one user.
//
//	NoToken ──────────────────────────────┐
//	Loaded ── validate ── Valid            ├─> re-authorize ─> Valid ─> persist
//	            └─ Invalid ── refresh ─────┘ (on failure or no refresh token)
type TokenManager struct {
	store     Store
	server    *LocalAuthServer
	validator TokenValidator
	logger    *slog.Logger
	basePort  int
	attempts  int
	client    *http.Client
	scopes    []string

	mu      sync.Mutex
	session *AuthSession
	token   *oauth2.Token
}

// NewTokenManager creates a manager. A nil Validator means every stored token
// goes straight to refresh.
func NewTokenManager(store Store, opts Options) *TokenManager {
	m := &TokenManager{
		store:     store,
		server:    opts.Server,
		validator: opts.Validator,
		logger:    opts.Logger,
		basePort:  opts.BasePort,
		attempts:  opts.PortAttempts,
		client:    opts.HTTPClient,
		scopes:    opts.Scopes,
	}
	if m.server == nil {
		m.server = &LocalAuthServer{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.server.Logger == nil {
		m.server.Logger = m.logger
	}
	if m.basePort == 0 {
		m.basePort = DefaultBasePort
	}
	if m.attempts == 0 {
		m.attempts = DefaultPortAttempts
	}
	return m
}

// Authenticate brings the session to a valid token, re-authorizing in the
// browser if needed. It never returns an error; failures are reported in
// Result.Error.
func (m *TokenManager) Authenticate(ctx context.Context) Result {
	if err := m.authenticate(ctx); err != nil {
		m.logger.Error("authentication failed", "err", err)
		return Result{Error: errorMessage(err)}
	}
	return Result{Success: true}
}

func (m *TokenManager) authenticate(ctx context.Context) error {
	creds, err := m.store.Load()
	if err != nil {
		return err
	}
	session := NewAuthSession(creds, m.scopes...)
	ctx = m.oauthContext(ctx)

	tok, err := m.store.LoadToken()
	switch {
	case err == nil:
	case errors.Is(err, credentials.ErrNoToken):
		m.logger.Info("no stored token")
	case errors.Is(err, credentials.ErrMalformed):
		m.logger.Warn("ignoring unreadable token file", "err", err)
		tok = nil
	default:
		return err
	}

	if tok != nil {
		tok = m.validateOrRefresh(ctx, session, tok)
	}
	if tok == nil {
		session, tok, err = m.reauthorize(ctx, session)
		if err != nil {
			return err
		}
		if err := m.store.SaveToken(tok); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
	}

	m.mu.Lock()
	m.session = session
	m.token = tok
	m.mu.Unlock()
	return nil
}

// validateOrRefresh returns a usable token or nil when re-authorization is required.
func (m *TokenManager) validateOrRefresh(ctx context.Context, session *AuthSession, tok *oauth2.Token) *oauth2.Token {
	if m.validator != nil {
		err := m.validator.Validate(ctx, tok)
		if err == nil {
			m.logger.Debug("stored token is valid")
			return tok
		}
		m.logger.Info("stored token is invalid", "err", err)
	}

	if tok.RefreshToken == "" {
		m.logger.Info("no refresh token; re-authorization required")
		return nil
	}

	refreshed, err := session.Refresh(ctx, tok)
	if err != nil {
		m.logger.Warn("token refresh failed", "err", err)
		return nil
	}
	if err := m.store.SaveToken(refreshed); err != nil {
		m.logger.Warn("failed to persist refreshed token", "err", err)
		return nil
	}
	m.logger.Info("token refreshed", "expiry", refreshed.Expiry)
	return refreshed
}

// reauthorize runs the browser flow on a fresh loopback port. The session
// used for the exchange is the one that produced the authorization URL.
func (m *TokenManager) reauthorize(ctx context.Context, base *AuthSession) (*AuthSession, *oauth2.Token, error) {
	host := m.server.host()
	port, err := FindAvailablePort(host, m.basePort, m.attempts)
	if err != nil {
		return nil, nil, err
	}

	session := base.WithRedirectURL(fmt.Sprintf("http://%s:%d%s", host, port, CallbackPath))
	tok, err := m.server.RunCallback(ctx, port, session.AuthCodeURL(), session.Exchange)
	if err != nil {
		return nil, nil, err
	}
	return session, tok, nil
}

// HTTPClient returns a client authorized with the current token. Refreshed
// tokens are persisted as they are obtained. ctx must outlive the client.
func (m *TokenManager) HTTPClient(ctx context.Context, base http.RoundTripper) (*http.Client, error) {
	m.mu.Lock()
	session, tok := m.session, m.token
	m.mu.Unlock()
	if session == nil {
		return nil, ErrNoSession
	}
	return session.Client(m.oauthContext(ctx), tok, base, m.store.SaveToken, m.logger), nil
}

// Token returns the current token, or nil before Authenticate succeeds.
func (m *TokenManager) Token() *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *TokenManager) oauthContext(ctx context.Context) context.Context {
	if m.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
