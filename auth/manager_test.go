package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"ytbulk/credentials"
	ythttp "ytbulk/http"
	"ytbulk/internal/retry"
)

// tokenEndpoint fakes Google's token endpoint for both grants.
type tokenEndpoint struct {
	mu           sync.Mutex
	refreshFails bool
	grants       []string
	redirectURIs []string
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	e.mu.Lock()
	grant := r.PostForm.Get("grant_type")
	e.grants = append(e.grants, grant)
	e.redirectURIs = append(e.redirectURIs, r.PostForm.Get("redirect_uri"))
	fail := e.refreshFails
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case grant == "refresh_token" && fail:
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
	case grant == "refresh_token":
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "refreshed", "token_type": "Bearer", "expires_in": 3600,
		})
	case grant == "authorization_code":
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-" + r.PostForm.Get("code"), "refresh_token": "new-refresh",
			"token_type": "Bearer", "expires_in": 3600,
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

type fakeValidator struct{ err error }

func (v fakeValidator) Validate(context.Context, *oauth2.Token) error { return v.err }

type fixture struct {
	store    *credentials.Store
	endpoint *tokenEndpoint
	opened   []string
	server   *LocalAuthServer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: credentials.NewStore(t.TempDir()), endpoint: &tokenEndpoint{}}
	ts := httptest.NewServer(f.endpoint)
	t.Cleanup(ts.Close)

	body, _ := json.Marshal(map[string]any{"installed": map[string]any{
		"client_id":     "client",
		"client_secret": "secret",
		"redirect_uris": []string{"http://localhost"},
		"auth_uri":      ts.URL + "/auth",
		"token_uri":     ts.URL + "/token",
	}})
	src := t.TempDir() + "/client_secret.json"
	if err := writeFile(src, body); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Install(src); err != nil {
		t.Fatal(err)
	}

	// The fake browser follows the authorization URL straight to the
	// loopback callback, echoing the state.
	f.server = &LocalAuthServer{
		Timeout: 5 * time.Second,
		OpenBrowser: func(authURL string) error {
			f.opened = append(f.opened, authURL)
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			cb := q.Get("redirect_uri") + "?code=xyz&state=" + url.QueryEscape(q.Get("state"))
			go get(cb)
			return nil
		},
	}
	return f
}

func (f *fixture) manager(v TokenValidator, basePort int) *TokenManager {
	return NewTokenManager(f.store, Options{Server: f.server, Validator: v, BasePort: basePort})
}

func TestTokenManager_ValidStoredToken(t *testing.T) {
	f := newFixture(t)
	f.store.SaveToken(&oauth2.Token{AccessToken: "stored", RefreshToken: "r"})

	res := f.manager(fakeValidator{}, freePort(t)).Authenticate(context.Background())
	if !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}
	if len(f.opened) != 0 || len(f.endpoint.grants) != 0 {
		t.Errorf("valid token should not hit the network: opened=%v grants=%v", f.opened, f.endpoint.grants)
	}
}

func TestTokenManager_RefreshesInvalidToken(t *testing.T) {
	f := newFixture(t)
	f.store.SaveToken(&oauth2.Token{AccessToken: "stale", RefreshToken: "keep-me"})

	m := f.manager(fakeValidator{err: errors.New("expired")}, freePort(t))
	if res := m.Authenticate(context.Background()); !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}

	saved, err := f.store.LoadToken()
	if err != nil {
		t.Fatal(err)
	}
	if saved.AccessToken != "refreshed" {
		t.Errorf("saved access token = %q, want refreshed", saved.AccessToken)
	}
	if saved.RefreshToken != "keep-me" {
		t.Errorf("saved refresh token = %q, want keep-me", saved.RefreshToken)
	}
	if len(f.opened) != 0 {
		t.Error("refresh should not open the browser")
	}
	if m.Token().AccessToken != "refreshed" {
		t.Errorf("Token() = %q", m.Token().AccessToken)
	}
}

func TestTokenManager_ReauthorizesWhenRefreshFails(t *testing.T) {
	f := newFixture(t)
	f.endpoint.refreshFails = true
	f.store.SaveToken(&oauth2.Token{AccessToken: "stale", RefreshToken: "revoked"})

	base := freePort(t)
	m := f.manager(fakeValidator{err: errors.New("expired")}, base)
	if res := m.Authenticate(context.Background()); !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}

	if len(f.opened) != 1 {
		t.Fatalf("browser opened %d times, want 1", len(f.opened))
	}
	u, _ := url.Parse(f.opened[0])
	redirect := u.Query().Get("redirect_uri")
	if !strings.HasPrefix(redirect, "http://127.0.0.1:") || !strings.HasSuffix(redirect, "/callback") {
		t.Errorf("redirect_uri = %q", redirect)
	}
	if u.Query().Get("access_type") != "offline" {
		t.Error("authorization URL should request offline access")
	}

	// The exchange must use the same redirect URI as the authorization URL.
	last := len(f.endpoint.grants) - 1
	if f.endpoint.grants[last] != "authorization_code" || f.endpoint.redirectURIs[last] != redirect {
		t.Errorf("exchange grant=%q redirect=%q, want authorization_code %q",
			f.endpoint.grants[last], f.endpoint.redirectURIs[last], redirect)
	}

	saved, _ := f.store.LoadToken()
	if saved == nil || saved.AccessToken != "fresh-xyz" {
		t.Errorf("saved token = %+v, want fresh-xyz", saved)
	}
}

func TestTokenManager_NoTokenReauthorizes(t *testing.T) {
	f := newFixture(t)
	m := f.manager(fakeValidator{}, freePort(t))
	if res := m.Authenticate(context.Background()); !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}
	if len(f.opened) != 1 {
		t.Errorf("browser opened %d times, want 1", len(f.opened))
	}
}

func TestTokenManager_NoRefreshTokenReauthorizes(t *testing.T) {
	f := newFixture(t)
	f.store.SaveToken(&oauth2.Token{AccessToken: "stale"})

	m := f.manager(fakeValidator{err: errors.New("expired")}, freePort(t))
	if res := m.Authenticate(context.Background()); !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}
	for _, g := range f.endpoint.grants {
		if g == "refresh_token" {
			t.Error("refresh attempted without a refresh token")
		}
	}
	if len(f.opened) != 1 {
		t.Errorf("browser opened %d times, want 1", len(f.opened))
	}
}

func TestTokenManager_MalformedTokenReauthorizes(t *testing.T) {
	f := newFixture(t)
	if err := writeFile(f.store.TokenPath(), []byte("not json")); err != nil {
		t.Fatal(err)
	}

	m := f.manager(fakeValidator{}, freePort(t))
	if res := m.Authenticate(context.Background()); !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}
	if len(f.opened) != 1 {
		t.Errorf("browser opened %d times, want 1", len(f.opened))
	}
}

func TestTokenManager_MissingCredentials(t *testing.T) {
	m := NewTokenManager(credentials.NewStore(t.TempDir()), Options{})
	res := m.Authenticate(context.Background())
	if res.Success {
		t.Fatal("Authenticate() succeeded without credentials")
	}
	if !strings.Contains(res.Error, "not found") {
		t.Errorf("Error = %q", res.Error)
	}
	if _, err := m.HTTPClient(context.Background(), nil); !errors.Is(err, ErrNoSession) {
		t.Errorf("HTTPClient() error = %v, want ErrNoSession", err)
	}
}

func TestTokenManager_HTTPClientAuthorizes(t *testing.T) {
	f := newFixture(t)
	f.store.SaveToken(&oauth2.Token{AccessToken: "stored", RefreshToken: "r"})

	m := f.manager(fakeValidator{}, freePort(t))
	if res := m.Authenticate(context.Background()); !res.Success {
		t.Fatalf("Authenticate() = %+v", res)
	}

	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer api.Close()

	client, err := m.HTTPClient(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Get(api.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	// The stored token has no expiry, so it is used as-is.
	if gotAuth != "Bearer stored" {
		t.Errorf("Authorization = %q, want Bearer stored", gotAuth)
	}
}

func TestPersistingTokenSource(t *testing.T) {
	var saved []string
	tokens := []*oauth2.Token{{AccessToken: "a"}, {AccessToken: "a"}, {AccessToken: "b"}}
	i := 0
	src := &persistingTokenSource{
		src: tokenSourceFunc(func() (*oauth2.Token, error) {
			tok := tokens[i]
			i++
			return tok, nil
		}),
		last: "a",
		save: func(tok *oauth2.Token) error {
			saved = append(saved, tok.AccessToken)
			return nil
		},
		logger: discardLogger(),
	}
	for range tokens {
		if _, err := src.Token(); err != nil {
			t.Fatal(err)
		}
	}
	if len(saved) != 1 || saved[0] != "b" {
		t.Errorf("saved = %v, want [b]", saved)
	}
}

func TestTokenInfoValidator(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "good" {
			w.Write([]byte(`{"expires_in":"3599","scope":"https://www.googleapis.com/auth/youtube"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer ts.Close()

	cfg := ythttp.DefaultConfig()
	cfg.Retry = retry.None()
	cfg.RateLimiter.DefaultRPS = 0
	v := &TokenInfoValidator{Client: ythttp.New(cfg), URL: ts.URL}

	if err := v.Validate(context.Background(), &oauth2.Token{AccessToken: "good"}); err != nil {
		t.Errorf("Validate(good) error = %v", err)
	}
	if err := v.Validate(context.Background(), &oauth2.Token{AccessToken: "bad"}); err == nil {
		t.Error("Validate(bad) expected error")
	}
	if err := v.Validate(context.Background(), &oauth2.Token{}); err == nil {
		t.Error("Validate(empty) expected error")
	}
}
