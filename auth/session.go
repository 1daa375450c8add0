package auth

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"ytbulk/credentials"
)

// AuthSession is an OAuth client bound to one redirect URI. It is never
// mutated; WithRedirectURL returns a new session.
type AuthSession struct {
	config oauth2.Config
	state  string
}

// NewAuthSession builds a session from installed-app credentials. The first
// redirect URI from the file is used until WithRedirectURL replaces it.
func NewAuthSession(c credentials.Credentials, scopes ...string) *AuthSession {
	if len(scopes) == 0 {
		scopes = []string{youtube.YoutubeScope}
	}
	endpoint := google.Endpoint
	if c.AuthURI != "" {
		endpoint.AuthURL = c.AuthURI
	}
	if c.TokenURI != "" {
		endpoint.TokenURL = c.TokenURI
	}
	var redirect string
	if len(c.RedirectURIs) > 0 {
		redirect = c.RedirectURIs[0]
	}
	return &AuthSession{
		config: oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  redirect,
			Scopes:       scopes,
		},
		state: uuid.NewString(),
	}
}

// WithRedirectURL returns a copy of s using redirect, with a fresh state.
func (s *AuthSession) WithRedirectURL(redirect string) *AuthSession {
	cfg := s.config
	cfg.Scopes = append([]string(nil), s.config.Scopes...)
	cfg.RedirectURL = redirect
	return &AuthSession{config: cfg, state: uuid.NewString()}
}

// RedirectURL returns the redirect URI used for both the auth URL and the exchange.
func (s *AuthSession) RedirectURL() string { return s.config.RedirectURL }

// State returns the anti-forgery nonce embedded in AuthCodeURL.
func (s *AuthSession) State() string { return s.state }

// AuthCodeURL requests offline access with forced consent so a refresh
// token is always issued.
func (s *AuthSession) AuthCodeURL() string {
	return s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token.
func (s *AuthSession) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.config.Exchange(ctx, code)
}

// Refresh obtains a new access token using tok's refresh token. The
// returned token keeps the old refresh token if the server omits one.
func (s *AuthSession) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	stale := &oauth2.Token{RefreshToken: tok.RefreshToken, TokenType: tok.TokenType}
	return s.config.TokenSource(ctx, stale).Token()
}

// Client returns an HTTP client that authorizes requests with tok and
// refreshes it as needed. Each new token is passed to save. ctx is used for
// refresh requests and must outlive the client. base is the transport the
// authorized requests go through; nil means http.DefaultTransport.
func (s *AuthSession) Client(ctx context.Context, tok *oauth2.Token, base http.RoundTripper, save func(*oauth2.Token) error, logger *slog.Logger) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}
	src := &persistingTokenSource{
		src:    s.config.TokenSource(ctx, tok),
		last:   tok.AccessToken,
		save:   save,
		logger: logger,
	}
	return &http.Client{Transport: &oauth2.Transport{Source: src, Base: base}}
}

// persistingTokenSource saves every token that differs from the last one it
// handed out.
type persistingTokenSource struct {
	src    oauth2.TokenSource
	save   func(*oauth2.Token) error
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if p.save != nil {
			if err := p.save(tok); err != nil {
				p.logger.Warn("failed to persist refreshed token", "err", err)
			} else {
				p.logger.Debug("persisted refreshed token", "expiry", tok.Expiry)
			}
		}
	}
	return tok, nil
}
