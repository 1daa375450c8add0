// Package ytbulk reviews and edits the metadata of the videos on your own
// YouTube channel in bulk.
//
// Overview
//
// The App type is the entry point. Every operation reports its outcome as a
// value (Result, VideosResult, youtube.BatchResult) rather than an error, so
// a UI can show the message as-is:
//
//   - Authenticate: load, validate, refresh or obtain an OAuth token
//   - LoadVideos: fetch the channel's uploads (authenticating first if needed)
//   - UpdateVideo, UpdateVideosBatch: edit title, description, privacy, category
//   - SaveBackup, LoadBackup: snapshot the catalog to JSON and back
//   - Thumbnail: resolve a cache:// reference to a local file
//   - VideoCategories, ChannelInfo
//   - CheckCredentials, InstallCredentials, RemoveCredentials, ClearCache
//
// Quick Start
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	app, err := ytbulk.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	res := app.LoadVideos(ctx, "", 0)
//	if !res.Success {
//		log.Fatal(res.Error)
//	}
//	for _, v := range res.Videos {
//		fmt.Println(v.ID, v.Title)
//	}
//
// Credentials
//
// ytbulk needs an OAuth client of type "Desktop app" from the Google Cloud
// console. Install the downloaded client_secret JSON with InstallCredentials
// (or `ytbulk credentials install <file>`). The first Authenticate opens the
// browser; the token is stored next to the credentials and refreshed as
// needed.
//
// Configuration
//
// ytbulk loads settings from multiple sources:
//
//  1. Environment variables, including a .env file (highest priority)
//  2. Config file (ytbulk.json in the working or data directory)
//  3. Default values (lowest priority)
//
// Commonly set variables:
//
//   - YTBULK_DATA_DIR: Directory for credentials.json and token.json
//   - YTBULK_CACHE_DIR: Thumbnail cache directory
//   - YTBULK_BACKUP_PATH: Default backup file
//   - YTBULK_CALLBACK_BASE_PORT: First port tried for the OAuth callback
//   - YTBULK_MAX_RESULTS: Maximum videos to fetch
//   - YTBULK_LOCALE: Locale for category names and region
//   - YTBULK_LOG_LEVEL: debug, info, warn or error
//
// Error Handling
//
// Sub-packages return ordinary Go errors; the sentinels and error types are
// re-exported here:
//
//	if errors.Is(err, ytbulk.ErrCredentialsNotFound) {
//		fmt.Println("install credentials first")
//	}
//
//	var apiErr *ytbulk.RemoteAPIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s failed: %v\n", apiErr.Op, apiErr.Err)
//	}
package ytbulk
