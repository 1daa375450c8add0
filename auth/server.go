// Package auth completes the OAuth2 installed-app flow for the YouTube Data
// API and keeps the resulting token fresh.
//
// The flow has three pieces. AuthSession holds the immutable client
// configuration for one redirect URI. LocalAuthServer runs a single-shot
// loopback listener that receives the authorization code. TokenManager
// drives load, validate, refresh and re-authorization.
package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

// Defaults for the loopback listener.
const (
	DefaultCallbackHost = "127.0.0.1"
	DefaultBasePort     = 5000
	DefaultPortAttempts = 100
	CallbackPath        = "/callback"
)

var (
	// ErrNoPortAvailable is returned when every probed port is taken.
	ErrNoPortAvailable = errors.New("auth: no available port found")
	// ErrAuthorizationDenied is returned when the provider redirects with an error parameter.
	ErrAuthorizationDenied = errors.New("auth: authorization denied")
	// ErrNoAuthorizationCode is returned when the callback carries neither code nor error.
	ErrNoAuthorizationCode = errors.New("auth: no authorization code received")
	// ErrStateMismatch is returned when the callback state differs from the one sent.
	ErrStateMismatch = errors.New("auth: state parameter mismatch")
)

// FindAvailablePort returns the first port in [start, start+attempts) that
// can be bound on host. Each candidate is bound and released immediately.
func FindAvailablePort(host string, start, attempts int) (int, error) {
	if attempts <= 0 {
		attempts = DefaultPortAttempts
	}
	for port := start; port < start+attempts; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("%w: tried %d ports from %d", ErrNoPortAvailable, attempts, start)
}

// ExchangeFunc trades an authorization code for a token.
type ExchangeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

// LocalAuthServer receives the OAuth redirect on a loopback port.
type LocalAuthServer struct {
	// Host to bind. Defaults to DefaultCallbackHost.
	Host string
	// OpenBrowser opens the authorization URL. Defaults to browser.OpenURL.
	OpenBrowser func(url string) error
	// Timeout bounds the wait for the callback. Zero waits until ctx is done.
	Timeout time.Duration
	Logger  *slog.Logger
}

type callbackResult struct {
	token *oauth2.Token
	err   error
}

// RunCallback listens on port, opens authURL in the browser and waits for
// exactly one request to CallbackPath. Requests to any other path get a 404
// and the listener keeps waiting. The listener is closed before RunCallback
// returns, whatever the outcome.
func (s *LocalAuthServer) RunCallback(ctx context.Context, port int, authURL string, exchange ExchangeFunc) (*oauth2.Token, error) {
	logger := s.logger()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.host(), strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	expectedState := stateOf(authURL)
	results := make(chan callbackResult, 1)
	var once sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != CallbackPath {
			http.NotFound(w, r)
			return
		}
		handled := false
		once.Do(func() {
			handled = true
			res := s.handleCallback(ctx, r.URL.Query(), expectedState, exchange)
			writeCallbackPage(w, res.err)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			results <- res
		})
		if !handled {
			writeCallbackPage(w, errors.New("authorization already completed"))
		}
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
		}
		logger.Debug("oauth callback listener closed", "port", port)
	}()

	logger.Info("waiting for oauth callback", "port", port)
	if err := s.openBrowser(authURL); err != nil {
		logger.Warn("could not open browser; open the URL manually", "url", authURL, "err", err)
	}

	select {
	case res := <-results:
		return res.token, res.err
	case err := <-serveErr:
		return nil, fmt.Errorf("oauth callback server: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *LocalAuthServer) handleCallback(ctx context.Context, q url.Values, expectedState string, exchange ExchangeFunc) callbackResult {
	if expectedState != "" && q.Get("state") != expectedState {
		return callbackResult{err: ErrStateMismatch}
	}
	if e := q.Get("error"); e != "" {
		return callbackResult{err: fmt.Errorf("%w: %s", ErrAuthorizationDenied, e)}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: ErrNoAuthorizationCode}
	}
	tok, err := exchange(ctx, code)
	if err != nil {
		return callbackResult{err: fmt.Errorf("exchange authorization code: %w", err)}
	}
	return callbackResult{token: tok}
}

func writeCallbackPage(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err != nil {
		fmt.Fprintf(w, "<html><body><h1>Authentication failed</h1><p>%s</p><p>You can close this window.</p></body></html>",
			html.EscapeString(err.Error()))
		return
	}
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You can close this window and return to ytbulk.</p></body></html>")
}

func stateOf(authURL string) string {
	u, err := url.Parse(authURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("state")
}

func (s *LocalAuthServer) host() string {
	if s.Host == "" {
		return DefaultCallbackHost
	}
	return s.Host
}

func (s *LocalAuthServer) openBrowser(u string) error {
	if s.OpenBrowser != nil {
		return s.OpenBrowser(u)
	}
	return browser.OpenURL(u)
}

func (s *LocalAuthServer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
