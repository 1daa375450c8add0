// Package youtube reads and edits the authenticated user's video catalog
// through the YouTube Data API v3.
//
// All remote calls are sequential. Listing favors partial results: a failed
// page stops pagination, a failed detail chunk is skipped, and whatever was
// collected is still returned.
package youtube

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when the service has no API client.
	ErrNotAuthenticated = errors.New("youtube: API not authenticated")
	// ErrNoChannel is returned when the account has no channel.
	ErrNoChannel = errors.New("youtube: no channel found")
)

// MissingFieldsMessage is the failure recorded for batch items rejected
// before any remote call.
const MissingFieldsMessage = "Missing required fields"

// APIError wraps a failed Data API call.
type APIError struct {
	// Op is the API method, e.g. "videos.update".
	Op  string
	Err error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// UpdateRequest is one item of a batch update. Title and Description are
// pointers so an absent field can be told apart from an empty one.
type UpdateRequest struct {
	VideoID       string  `json:"video_id"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	PrivacyStatus string  `json:"privacy_status,omitempty"`
	CategoryID    string  `json:"category_id,omitempty"`
}

// BatchSuccess records an applied update.
type BatchSuccess struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
}

// BatchFailure records a rejected or failed update.
type BatchFailure struct {
	VideoID string `json:"video_id"`
	Error   string `json:"error"`
}

// BatchResults partitions the items of a batch, in processing order.
type BatchResults struct {
	Successful []BatchSuccess `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
}

// BatchSummary counts the items of a batch.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BatchResult is returned by UpdateVideosBatch. Success is true when at
// least one item succeeded; use AllSucceeded or Summary for exact outcomes.
type BatchResult struct {
	Success bool         `json:"success"`
	Results BatchResults `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// AllSucceeded reports whether every item in the batch was applied.
func (r BatchResult) AllSucceeded() bool {
	return r.Summary.Total > 0 && r.Summary.Failed == 0
}

// Category is an assignable video category.
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ChannelInfo describes the authenticated user's channel.
type ChannelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Country   string `json:"country,omitempty"`
}
