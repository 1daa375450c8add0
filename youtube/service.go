package youtube

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"ytbulk/internal/retry"
	"ytbulk/storage"
	"ytbulk/thumbnail"
)

const (
	// DefaultMaxResults caps a listing when the caller passes zero.
	DefaultMaxResults = 200
	// pageSize is the API ceiling for playlistItems.list and videos.list ids.
	pageSize = 50
)

// thumbnailSizes in the order they are registered.
var thumbnailSizes = []string{"default", "medium", "high", "standard", "maxres"}

// thumbnailPreference picks the representative thumbnail; first present wins.
var thumbnailPreference = []string{"medium", "high", "default", "standard"}

// ThumbnailRegistry receives remote thumbnail URLs found while normalizing.
// *thumbnail.Cache implements it.
type ThumbnailRegistry interface {
	Register(filename, remoteURL string) string
	Reset()
}

// Options configures a Service.
type Options struct {
	// Retry applies to each remote call. Nil selects retry.DefaultConfig.
	Retry *retry.Config
	// Locale such as "en-US", used for category region and language.
	Locale     string
	DailyQuota int
	Logger     *slog.Logger
}

// Service owns the in-memory video catalog for one login session.
type Service struct {
	api    API
	thumbs ThumbnailRegistry
	retry  retry.Config
	locale string
	logger *slog.Logger
	quota  *quotaTracker

	mu         sync.Mutex
	videos     []storage.VideoRecord
	categories map[string]Category
}

// NewService creates a catalog service. api may be nil, in which case
// remote operations fail with ErrNotAuthenticated.
func NewService(api API, thumbs ThumbnailRegistry, opts Options) *Service {
	s := &Service{
		api:    api,
		thumbs: thumbs,
		retry:  retry.DefaultConfig(),
		locale: opts.Locale,
		logger: opts.Logger,
	}
	if opts.Retry != nil {
		s.retry = *opts.Retry
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.quota = newQuotaTracker(opts.DailyQuota, s.logger)
	return s
}

// QuotaUsed returns the estimated quota units spent today.
func (s *Service) QuotaUsed() int { return s.quota.usage() }

// ListChannelVideos fetches up to maxResults videos from the uploads
// playlist of channelID, or of the caller's channel when channelID is empty.
// A channel without uploads yields an empty list. On success the in-memory
// catalog is replaced.
func (s *Service) ListChannelVideos(ctx context.Context, channelID string, maxResults int) ([]storage.VideoRecord, error) {
	if s.api == nil {
		return nil, ErrNotAuthenticated
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	playlistID, err := s.uploadsPlaylist(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if playlistID == "" {
		s.logger.Info("channel has no uploads playlist", "channel", channelID)
		return []storage.VideoRecord{}, nil
	}

	ids, err := s.playlistVideoIDs(ctx, playlistID, maxResults)
	if err != nil {
		return nil, err
	}

	if s.thumbs != nil {
		s.thumbs.Reset()
	}
	records, err := s.fetchDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	s.Replace(records)
	s.logger.Info("fetched channel videos", "playlist", playlistID, "listed", len(ids), "videos", len(records))
	return cloneRecords(records), nil
}

func (s *Service) uploadsPlaylist(ctx context.Context, channelID string) (string, error) {
	var channels []*youtube.Channel
	err := s.call(ctx, "channels.list", costList, func(ctx context.Context) error {
		var err error
		channels, err = s.api.Channels(ctx, []string{"contentDetails"}, channelID)
		return err
	})
	if err != nil {
		return "", err
	}
	if len(channels) == 0 || channels[0].ContentDetails == nil || channels[0].ContentDetails.RelatedPlaylists == nil {
		return "", nil
	}
	return channels[0].ContentDetails.RelatedPlaylists.Uploads, nil
}

// playlistVideoIDs pages through the playlist one request at a time. A
// failed page ends pagination; the ids gathered so far are kept.
func (s *Service) playlistVideoIDs(ctx context.Context, playlistID string, maxResults int) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	pageToken := ""

	for len(ids) < maxResults {
		want := int64(min(pageSize, maxResults-len(ids)))

		var resp *youtube.PlaylistItemListResponse
		err := s.call(ctx, "playlistItems.list", costList, func(ctx context.Context) error {
			var err error
			resp, err = s.api.PlaylistItems(ctx, playlistID, pageToken, want)
			return err
		})
		if err != nil {
			if len(ids) == 0 {
				return nil, err
			}
			s.logger.Warn("playlist page failed; keeping partial results", "playlist", playlistID, "collected", len(ids), "err", err)
			break
		}

		for _, item := range resp.Items {
			id := playlistItemVideoID(item)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func playlistItemVideoID(item *youtube.PlaylistItem) string {
	if item == nil {
		return ""
	}
	if item.Snippet != nil && item.Snippet.ResourceId != nil && item.Snippet.ResourceId.VideoId != "" {
		return item.Snippet.ResourceId.VideoId
	}
	if item.ContentDetails != nil {
		return item.ContentDetails.VideoId
	}
	return ""
}

// fetchDetails looks up ids in chunks and normalizes the results in
// playlist order. A failed chunk is skipped.
func (s *Service) fetchDetails(ctx context.Context, ids []string) ([]storage.VideoRecord, error) {
	records := make([]storage.VideoRecord, 0, len(ids))
	var lastErr error

	for start := 0; start < len(ids); start += pageSize {
		chunk := ids[start:min(start+pageSize, len(ids))]

		var details []*youtube.Video
		err := s.call(ctx, "videos.list", costList, func(ctx context.Context) error {
			var err error
			details, err = s.api.Videos(ctx, chunk)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("video details chunk failed", "offset", start, "size", len(chunk), "err", err)
			lastErr = err
			continue
		}

		byID := make(map[string]*youtube.Video, len(details))
		for _, v := range details {
			if v != nil {
				byID[v.Id] = v
			}
		}
		for _, id := range chunk {
			v, ok := byID[id]
			if !ok {
				s.logger.Debug("skipping video without details", "video_id", id)
				continue
			}
			records = append(records, s.normalize(v))
		}
	}

	if len(records) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return records, nil
}

// normalize converts an API video to a record, registering thumbnails.
func (s *Service) normalize(v *youtube.Video) storage.VideoRecord {
	rec := storage.VideoRecord{
		ID:            v.Id,
		Thumbnails:    map[string]storage.Thumbnail{},
		PrivacyStatus: "unknown",
		Statistics:    &storage.Statistics{},
	}

	if sn := v.Snippet; sn != nil {
		rec.Title = sn.Title
		rec.Description = sn.Description
		rec.PublishedAt = sn.PublishedAt
		rec.CategoryID = sn.CategoryId
		rec.Thumbnails = s.localThumbnails(v.Id, sn.Thumbnails)
	}
	for _, size := range thumbnailPreference {
		if t, ok := rec.Thumbnails[size]; ok {
			rec.ThumbnailURL = t.URL
			break
		}
	}

	if st := v.Status; st != nil {
		if st.PrivacyStatus != "" {
			rec.PrivacyStatus = st.PrivacyStatus
		}
		rec.UploadStatus = st.UploadStatus
	}
	if cd := v.ContentDetails; cd != nil {
		rec.Duration = cd.Duration
	}
	if pd := v.ProcessingDetails; pd != nil {
		rec.ProcessingStatus = pd.ProcessingStatus
		if pp := pd.ProcessingProgress; pp != nil {
			rec.ProcessingProgress = &storage.ProcessingProgress{
				PartsTotal:     pp.PartsTotal,
				PartsProcessed: pp.PartsProcessed,
				TimeLeftMs:     pp.TimeLeftMs,
			}
		}
	}
	if stats := v.Statistics; stats != nil {
		rec.Statistics = &storage.Statistics{
			ViewCount:    stats.ViewCount,
			LikeCount:    stats.LikeCount,
			DislikeCount: stats.DislikeCount,
			CommentCount: stats.CommentCount,
		}
	}
	return rec
}

func (s *Service) localThumbnails(videoID string, details *youtube.ThumbnailDetails) map[string]storage.Thumbnail {
	out := map[string]storage.Thumbnail{}
	if details == nil {
		return out
	}
	bySize := map[string]*youtube.Thumbnail{
		"default":  details.Default,
		"medium":   details.Medium,
		"high":     details.High,
		"standard": details.Standard,
		"maxres":   details.Maxres,
	}
	for _, size := range thumbnailSizes {
		t := bySize[size]
		if t == nil || t.Url == "" {
			continue
		}
		name := thumbnail.Filename(videoID, size, t.Width, t.Height)
		ref := thumbnail.CacheURL(name)
		if s.thumbs != nil {
			ref = s.thumbs.Register(name, t.Url)
		}
		out[size] = storage.Thumbnail{URL: ref, Width: t.Width, Height: t.Height}
	}
	return out
}

// UpdateVideo writes title, description and category. Privacy is written
// only when privacy is non-empty; otherwise the remote value is untouched.
// On success the matching in-memory record is updated the same way.
func (s *Service) UpdateVideo(ctx context.Context, videoID, title, description, privacy, categoryID string) error {
	if s.api == nil {
		return ErrNotAuthenticated
	}

	parts := []string{"snippet"}
	video := &youtube.Video{
		Id: videoID,
		Snippet: &youtube.VideoSnippet{
			Title:           title,
			Description:     description,
			CategoryId:      categoryID,
			ForceSendFields: []string{"Description"},
		},
	}
	if privacy != "" {
		parts = append(parts, "status")
		video.Status = &youtube.VideoStatus{PrivacyStatus: privacy}
	}

	err := s.call(ctx, "videos.update", costUpdate, func(ctx context.Context) error {
		_, err := s.api.UpdateVideo(ctx, parts, video)
		return err
	})
	if err != nil {
		s.logger.Error("video update failed", "video_id", videoID, "err", err)
		return err
	}

	s.mu.Lock()
	for i := range s.videos {
		if s.videos[i].ID != videoID {
			continue
		}
		s.videos[i].Title = title
		s.videos[i].Description = description
		s.videos[i].CategoryID = categoryID
		if privacy != "" {
			s.videos[i].PrivacyStatus = privacy
		}
		break
	}
	s.mu.Unlock()

	s.logger.Info("video updated", "video_id", videoID)
	return nil
}

// UpdateVideosBatch applies updates one after another. Items without a
// video id, title or description are rejected without a remote call. If ctx
// is cancelled the remaining items are recorded as failed, so the summary
// always accounts for every input.
func (s *Service) UpdateVideosBatch(ctx context.Context, updates []UpdateRequest) BatchResult {
	res := BatchResult{Results: BatchResults{
		Successful: []BatchSuccess{},
		Failed:     []BatchFailure{},
	}}

	for _, u := range updates {
		id := u.VideoID
		if id == "" {
			id = "unknown"
		}
		fail := func(msg string) {
			res.Results.Failed = append(res.Results.Failed, BatchFailure{VideoID: id, Error: msg})
		}

		if err := ctx.Err(); err != nil {
			fail(err.Error())
			continue
		}
		if u.VideoID == "" || u.Title == nil || u.Description == nil {
			fail(MissingFieldsMessage)
			continue
		}

		if err := s.UpdateVideo(ctx, u.VideoID, *u.Title, *u.Description, u.PrivacyStatus, u.CategoryID); err != nil {
			fail(errorText(err))
			continue
		}
		res.Results.Successful = append(res.Results.Successful, BatchSuccess{VideoID: u.VideoID, Title: *u.Title})
	}

	res.Summary = BatchSummary{
		Total:      len(updates),
		Successful: len(res.Results.Successful),
		Failed:     len(res.Results.Failed),
	}
	res.Success = res.Summary.Successful > 0
	return res
}

// VideoCategories returns assignable categories keyed by id. The first
// non-empty result is cached for the life of the service.
func (s *Service) VideoCategories(ctx context.Context) (map[string]Category, error) {
	if s.api == nil {
		return nil, ErrNotAuthenticated
	}

	s.mu.Lock()
	if len(s.categories) > 0 {
		out := cloneCategories(s.categories)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	country := ""
	if info, err := s.ChannelInfo(ctx); err == nil {
		country = info.Country
	} else {
		s.logger.Debug("channel info unavailable for category region", "err", err)
	}
	region := regionCode(country, s.locale)
	hl := languageCode(s.locale)

	var items []*youtube.VideoCategory
	err := s.call(ctx, "videoCategories.list", costList, func(ctx context.Context) error {
		var err error
		items, err = s.api.VideoCategories(ctx, region, hl)
		return err
	})
	if err != nil {
		return nil, err
	}

	categories := make(map[string]Category)
	for _, c := range items {
		if c == nil || c.Snippet == nil || !c.Snippet.Assignable {
			continue
		}
		categories[c.Id] = Category{ID: c.Id, Title: c.Snippet.Title}
	}

	if len(categories) > 0 {
		s.mu.Lock()
		s.categories = categories
		s.mu.Unlock()
	}
	s.logger.Debug("fetched video categories", "region", region, "hl", hl, "count", len(categories))
	return cloneCategories(categories), nil
}

// ChannelInfo describes the caller's own channel.
func (s *Service) ChannelInfo(ctx context.Context) (*ChannelInfo, error) {
	if s.api == nil {
		return nil, ErrNotAuthenticated
	}

	var channels []*youtube.Channel
	err := s.call(ctx, "channels.list", costList, func(ctx context.Context) error {
		var err error
		channels, err = s.api.Channels(ctx, []string{"snippet", "brandingSettings"}, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, ErrNoChannel
	}

	ch := channels[0]
	info := &ChannelInfo{ID: ch.Id}
	if sn := ch.Snippet; sn != nil {
		info.Name = sn.Title
		if th := sn.Thumbnails; th != nil {
			switch {
			case th.Default != nil:
				info.Thumbnail = th.Default.Url
			case th.Medium != nil:
				info.Thumbnail = th.Medium.Url
			}
		}
	}
	if b := ch.BrandingSettings; b != nil && b.Channel != nil {
		info.Country = b.Channel.Country
	}
	return info, nil
}

// Videos returns a copy of the in-memory catalog.
func (s *Service) Videos() []storage.VideoRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.videos)
}

// Replace swaps the in-memory catalog, e.g. after loading a backup.
func (s *Service) Replace(videos []storage.VideoRecord) {
	s.mu.Lock()
	s.videos = cloneRecords(videos)
	s.mu.Unlock()
}

// call runs fn with retries on transient API errors and quota accounting.
func (s *Service) call(ctx context.Context, op string, units int, fn func(context.Context) error) error {
	err := retry.Do(ctx, s.retry, isTransient, func(ctx context.Context) error {
		s.quota.add(op, units)
		return fn(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIError{Op: op, Err: err}
}

// isTransient reports whether a Data API error may succeed on retry.
func isTransient(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
		return true
	}
	for _, item := range gerr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// regionCode prefers the channel country, then the locale's region.
func regionCode(country, locale string) string {
	if country != "" {
		return strings.ToUpper(country)
	}
	lang, _, _ := strings.Cut(locale, ".")
	if _, region, ok := strings.Cut(strings.ReplaceAll(lang, "_", "-"), "-"); ok && region != "" {
		return strings.ToUpper(region)
	}
	return "US"
}

// languageCode turns "en-US" into "en_US".
func languageCode(locale string) string {
	lang, _, _ := strings.Cut(locale, ".")
	if lang == "" || lang == "C" || lang == "POSIX" {
		return "en_US"
	}
	return strings.ReplaceAll(lang, "-", "_")
}

func errorText(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}

func cloneRecords(in []storage.VideoRecord) []storage.VideoRecord {
	if in == nil {
		return nil
	}
	out := make([]storage.VideoRecord, len(in))
	for i, r := range in {
		if r.Thumbnails != nil {
			th := make(map[string]storage.Thumbnail, len(r.Thumbnails))
			for k, v := range r.Thumbnails {
				th[k] = v
			}
			r.Thumbnails = th
		}
		if r.ProcessingProgress != nil {
			pp := *r.ProcessingProgress
			r.ProcessingProgress = &pp
		}
		if r.Statistics != nil {
			st := *r.Statistics
			r.Statistics = &st
		}
		out[i] = r
	}
	return out
}

func cloneCategories(in map[string]Category) map[string]Category {
	out := make(map[string]Category, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
