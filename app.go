package ytbulk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/browser"

	"ytbulk/auth"
	"ytbulk/config"
	"ytbulk/credentials"
	ythttp "ytbulk/http"
	"ytbulk/storage"
	"ytbulk/thumbnail"
	"ytbulk/youtube"
)

// Result is the outcome of an operation that returns no data.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// VideosResult carries a video list alongside the outcome.
type VideosResult struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
	Message string                `json:"message,omitempty"`
	Videos  []storage.VideoRecord `json:"videos"`
}

// CategoriesResult carries the assignable categories keyed by id.
type CategoriesResult struct {
	Success    bool                        `json:"success"`
	Error      string                      `json:"error,omitempty"`
	Categories map[string]youtube.Category `json:"categories,omitempty"`
}

// ChannelResult carries the authenticated channel.
type ChannelResult struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error,omitempty"`
	Channel *youtube.ChannelInfo `json:"channel,omitempty"`
}

// Authenticator produces an authorized HTTP client.
type Authenticator interface {
	Authenticate(ctx context.Context) auth.Result
	HTTPClient(ctx context.Context, base http.RoundTripper) (*http.Client, error)
}

// Catalog is the video catalog the App drives.
type Catalog interface {
	ListChannelVideos(ctx context.Context, channelID string, maxResults int) ([]storage.VideoRecord, error)
	UpdateVideo(ctx context.Context, videoID, title, description, privacy, categoryID string) error
	UpdateVideosBatch(ctx context.Context, updates []youtube.UpdateRequest) youtube.BatchResult
	VideoCategories(ctx context.Context) (map[string]youtube.Category, error)
	ChannelInfo(ctx context.Context) (*youtube.ChannelInfo, error)
	Videos() []storage.VideoRecord
	Replace(videos []storage.VideoRecord)
}

// CatalogFactory builds a catalog on top of an authorized client.
type CatalogFactory func(ctx context.Context, client *http.Client) (Catalog, error)

// App ties the credential store, token manager, thumbnail cache and video
// catalog together. It is safe for concurrent use.
type App struct {
	cfg        *config.Config
	creds      *credentials.Store
	auth       Authenticator
	thumbs     *thumbnail.Cache
	newCatalog CatalogFactory
	logger     *slog.Logger

	mu            sync.Mutex
	catalog       Catalog
	authenticated bool
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithAuthenticator replaces the OAuth token manager.
func WithAuthenticator(au Authenticator) Option {
	return func(a *App) { a.auth = au }
}

// WithCatalogFactory replaces how a catalog is built after authentication.
func WithCatalogFactory(f CatalogFactory) Option {
	return func(a *App) { a.newCatalog = f }
}

// New wires an App from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		cfg:   cfg,
		creds: credentials.NewStore(cfg.DataDir),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}

	httpCfg := ythttp.DefaultConfig()
	httpCfg.Timeout = time.Duration(cfg.HTTPTimeout)
	httpCfg.Retry = cfg.RetryConfig()
	httpCfg.RateLimiter.HostRates["i.ytimg.com"] = cfg.ThumbnailRPS
	client := ythttp.New(httpCfg)

	a.thumbs = thumbnail.New(cfg.CacheDir, client, thumbnail.WithLogger(a.logger))

	if a.auth == nil {
		a.auth = auth.NewTokenManager(a.creds, auth.Options{
			Server: &auth.LocalAuthServer{
				Host:        cfg.CallbackHost,
				OpenBrowser: browser.OpenURL,
				Timeout:     time.Duration(cfg.AuthTimeout),
				Logger:      a.logger,
			},
			Validator:    &auth.TokenInfoValidator{Client: client},
			Logger:       a.logger,
			BasePort:     cfg.CallbackBasePort,
			PortAttempts: cfg.PortAttempts,
			HTTPClient:   client.HTTPClient(),
		})
	}
	if a.newCatalog == nil {
		a.newCatalog = a.dataAPICatalog
	}
	a.catalog = youtube.NewService(nil, a.thumbs, a.serviceOptions())
	return a, nil
}

func (a *App) serviceOptions() youtube.Options {
	rc := a.cfg.RetryConfig()
	return youtube.Options{
		Retry:      &rc,
		Locale:     a.cfg.Locale,
		DailyQuota: a.cfg.DailyQuota,
		Logger:     a.logger,
	}
}

func (a *App) dataAPICatalog(ctx context.Context, client *http.Client) (Catalog, error) {
	api, err := youtube.NewDataAPI(ctx, client)
	if err != nil {
		return nil, err
	}
	return youtube.NewService(api, a.thumbs, a.serviceOptions()), nil
}

// Authenticate obtains a valid token and connects a catalog to the Data
// API. Videos already in memory carry over to the new catalog.
func (a *App) Authenticate(ctx context.Context) Result {
	r := a.auth.Authenticate(ctx)
	if !r.Success {
		return Result{Error: errorOr(r.Error)}
	}

	// The client outlives this call; token refreshes must not be tied to ctx.
	base := ythttp.NewRateLimitedTransport(http.DefaultTransport, a.cfg.DataAPIRPS)
	client, err := a.auth.HTTPClient(context.WithoutCancel(ctx), base)
	if err != nil {
		return failure(err)
	}
	cat, err := a.newCatalog(context.WithoutCancel(ctx), client)
	if err != nil {
		return failure(err)
	}

	a.mu.Lock()
	cat.Replace(a.catalog.Videos())
	a.catalog = cat
	a.authenticated = true
	a.mu.Unlock()
	return Result{Success: true}
}

// LoadVideos fetches the channel's uploads, authenticating first if needed.
// Nothing is fetched when authentication fails.
func (a *App) LoadVideos(ctx context.Context, channelID string, maxResults int) VideosResult {
	if !a.isAuthenticated() {
		if r := a.Authenticate(ctx); !r.Success {
			return VideosResult{Error: r.Error}
		}
	}
	if maxResults <= 0 {
		maxResults = a.cfg.MaxResults
	}
	videos, err := a.current().ListChannelVideos(ctx, channelID, maxResults)
	if err != nil {
		return VideosResult{Error: errorText(err)}
	}
	return VideosResult{Success: true, Videos: videos}
}

// UpdateVideo edits one video. Empty privacy leaves the status untouched.
func (a *App) UpdateVideo(ctx context.Context, videoID, title, description, privacy, categoryID string) Result {
	if err := a.current().UpdateVideo(ctx, videoID, title, description, privacy, categoryID); err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

// UpdateVideosBatch applies updates in order and reports each outcome.
func (a *App) UpdateVideosBatch(ctx context.Context, updates []youtube.UpdateRequest) youtube.BatchResult {
	return a.current().UpdateVideosBatch(ctx, updates)
}

// SaveBackup writes the in-memory catalog to path, or to the configured
// backup path when path is empty.
func (a *App) SaveBackup(path string) Result {
	path = a.backupPath(path)
	videos := a.current().Videos()
	if err := storage.SaveCatalog(path, videos); err != nil {
		return failure(err)
	}
	a.logger.Info("saved backup", "path", path, "videos", len(videos))
	return Result{Success: true, Message: fmt.Sprintf("Saved %d videos to %s", len(videos), path)}
}

// LoadBackup replaces the in-memory catalog with the contents of path.
// A missing file is reported without an error.
func (a *App) LoadBackup(path string) VideosResult {
	path = a.backupPath(path)
	videos, found, err := storage.LoadCatalog(path)
	if err != nil {
		return VideosResult{Error: errorText(err)}
	}
	if !found {
		return VideosResult{Message: "No backup file found"}
	}
	cat := a.current()
	cat.Replace(videos)
	return VideosResult{Success: true, Videos: cat.Videos()}
}

// Thumbnail resolves a cache:// reference or bare cache filename to a
// local file path.
func (a *App) Thumbnail(ctx context.Context, ref string) (string, bool) {
	name, ok := thumbnail.ParseCacheURL(ref)
	if !ok {
		name = ref
	}
	return a.thumbs.Resolve(ctx, name)
}

// VideoCategories lists the categories assignable in the channel's region.
func (a *App) VideoCategories(ctx context.Context) CategoriesResult {
	cats, err := a.current().VideoCategories(ctx)
	if err != nil {
		return CategoriesResult{Error: errorText(err)}
	}
	return CategoriesResult{Success: true, Categories: cats}
}

// ChannelInfo describes the authenticated channel.
func (a *App) ChannelInfo(ctx context.Context) ChannelResult {
	info, err := a.current().ChannelInfo(ctx)
	if err != nil {
		return ChannelResult{Error: errorText(err)}
	}
	return ChannelResult{Success: true, Channel: info}
}

// CheckCredentials reports whether an installed credentials file is usable.
func (a *App) CheckCredentials() credentials.CheckResult {
	return a.creds.Check()
}

// InstallCredentials copies a downloaded client secret file into place.
func (a *App) InstallCredentials(src string) Result {
	if err := a.creds.Install(src); err != nil {
		return failure(err)
	}
	if r := a.creds.Check(); !r.Valid {
		return Result{Error: "Installed file is not a valid credentials file: " + r.Error}
	}
	return Result{Success: true, Message: "Credentials installed to " + a.creds.Locate()}
}

// RemoveCredentials deletes the credentials file. The next operation that
// needs the API authenticates again.
func (a *App) RemoveCredentials() Result {
	if err := a.creds.Remove(); err != nil {
		return failure(err)
	}
	a.mu.Lock()
	a.authenticated = false
	a.mu.Unlock()
	return Result{Success: true}
}

// ClearCache deletes downloaded thumbnails.
func (a *App) ClearCache() Result {
	if err := a.thumbs.Clear(); err != nil {
		return failure(err)
	}
	return Result{Success: true}
}

// Videos returns a copy of the in-memory catalog.
func (a *App) Videos() []storage.VideoRecord {
	return a.current().Videos()
}

func (a *App) current() Catalog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.catalog
}

func (a *App) isAuthenticated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticated
}

func (a *App) backupPath(path string) string {
	if path != "" {
		return path
	}
	if a.cfg.BackupPath != "" {
		return a.cfg.BackupPath
	}
	return storage.DefaultBackupFile
}

func failure(err error) Result {
	return Result{Error: errorText(err)}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return errorOr(err.Error())
}

func errorOr(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
