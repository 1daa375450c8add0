package storage

// VideoRecord is the normalized form of one video on the channel. It is the
// unit of the in-memory catalog and of the backup file.
//
// ThumbnailURL and every Thumbnails[*].URL hold cache:// references, never
// remote URLs.
type VideoRecord struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	ThumbnailURL  string               `json:"thumbnail_url"`
	Thumbnails    map[string]Thumbnail `json:"thumbnails"`
	PublishedAt   string               `json:"published_at"`
	PrivacyStatus string               `json:"privacy_status"`
	CategoryID    string               `json:"category_id"`

	Duration           string              `json:"duration,omitempty"` // ISO 8601, e.g. PT4M13S
	UploadStatus       string              `json:"upload_status,omitempty"`
	ProcessingStatus   string              `json:"processing_status,omitempty"`
	ProcessingProgress *ProcessingProgress `json:"processing_progress,omitempty"`
	Statistics         *Statistics         `json:"statistics,omitempty"`
}

// Thumbnail is one size of a video thumbnail.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int64  `json:"width"`
	Height int64  `json:"height"`
}

// ProcessingProgress mirrors processingDetails.processingProgress.
type ProcessingProgress struct {
	PartsTotal     uint64 `json:"parts_total,omitempty"`
	PartsProcessed uint64 `json:"parts_processed,omitempty"`
	TimeLeftMs     uint64 `json:"time_left_ms,omitempty"`
}

// Statistics holds public counters. They are encoded as JSON strings, the
// form the Data API uses.
type Statistics struct {
	ViewCount    uint64 `json:"view_count,string"`
	LikeCount    uint64 `json:"like_count,string"`
	DislikeCount uint64 `json:"dislike_count,string"`
	CommentCount uint64 `json:"comment_count,string"`
}

// DefaultBackupFile is the backup file name used when none is chosen.
const DefaultBackupFile = "videos_backup.json"
