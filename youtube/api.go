package youtube

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// API is the subset of the Data API the catalog uses.
type API interface {
	// Channels lists channels by id, or the caller's own channel when id is empty.
	Channels(ctx context.Context, parts []string, id string) ([]*youtube.Channel, error)
	PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int64) (*youtube.PlaylistItemListResponse, error)
	// Videos fetches details for at most 50 ids.
	Videos(ctx context.Context, ids []string) ([]*youtube.Video, error)
	UpdateVideo(ctx context.Context, parts []string, video *youtube.Video) (*youtube.Video, error)
	VideoCategories(ctx context.Context, regionCode, hl string) ([]*youtube.VideoCategory, error)
}

// Parts requested from videos.list.
var videoParts = []string{"snippet", "contentDetails", "status", "statistics", "processingDetails"}

// DataAPI implements API with the generated youtube/v3 client.
type DataAPI struct {
	service *youtube.Service
}

// NewDataAPI creates a client that sends requests through client, which is
// expected to carry OAuth credentials.
func NewDataAPI(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*DataAPI, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &DataAPI{service: service}, nil
}

func (d *DataAPI) Channels(ctx context.Context, parts []string, id string) ([]*youtube.Channel, error) {
	call := d.service.Channels.List(parts).Context(ctx)
	if id == "" {
		call = call.Mine(true)
	} else {
		call = call.Id(id)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (d *DataAPI) PlaylistItems(ctx context.Context, playlistID, pageToken string, maxResults int64) (*youtube.PlaylistItemListResponse, error) {
	call := d.service.PlaylistItems.List([]string{"snippet", "status"}).
		PlaylistId(playlistID).
		MaxResults(maxResults).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (d *DataAPI) Videos(ctx context.Context, ids []string) ([]*youtube.Video, error) {
	resp, err := d.service.Videos.List(videoParts).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (d *DataAPI) UpdateVideo(ctx context.Context, parts []string, video *youtube.Video) (*youtube.Video, error) {
	return d.service.Videos.Update(parts, video).Context(ctx).Do()
}

func (d *DataAPI) VideoCategories(ctx context.Context, regionCode, hl string) ([]*youtube.VideoCategory, error) {
	call := d.service.VideoCategories.List([]string{"snippet"}).
		RegionCode(regionCode).
		Context(ctx)
	if hl != "" {
		call = call.Hl(hl)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}
