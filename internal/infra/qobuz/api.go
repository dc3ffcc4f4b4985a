// Package qobuz exposes Qobuz search results as pager pages and resolves
// Qobuz tracks to stream URLs MPD can play.
package qobuz

import (
	"context"
	"errors"
	"fmt"

	"github.com/markhc/gobuz"
)

// Service is the src prefix of Qobuz items.
const Service = "qobuz"

// ErrNotConfigured is returned when no app credentials are available.
var ErrNotConfigured = errors.New("qobuz is not configured")

// Track is the part of a Qobuz track the sources need.
type Track struct {
	ID       int
	Title    string
	Artist   string
	Album    string
	Image    string
	Duration int
}

// StreamInfo describes a resolved file URL.
type StreamInfo struct {
	URL        string
	MimeType   string
	BitDepth   int
	SampleRate int
	Duration   int
}

// Format is a requested stream quality, best first.
type Format int

const (
	FormatHiRes192 Format = iota
	FormatHiRes96
	FormatFLAC
)

// Formats is the fallback order used when resolving a track.
var Formats = []Format{FormatHiRes192, FormatHiRes96, FormatFLAC}

func (f Format) String() string {
	switch f {
	case FormatHiRes192:
		return "24/192"
	case FormatHiRes96:
		return "24/96"
	case FormatFLAC:
		return "16/44.1"
	}
	return "unknown"
}

// API is the subset of the Qobuz API used here.
type API interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]Track, error)
	TrackFileURL(ctx context.Context, trackID int, format Format) (*StreamInfo, error)
}

// Credentials configure the gobuz client.
type Credentials struct {
	AppID     string
	AppSecret string
	AuthToken string
}

// Client adapts gobuz to API.
type Client struct {
	api *gobuz.QobuzAPI
}

var _ API = (*Client)(nil)

// NewClient creates a client. AuthToken is optional but required for full
// length streams.
func NewClient(creds Credentials) (*Client, error) {
	if creds.AppID == "" || creds.AppSecret == "" {
		return nil, ErrNotConfigured
	}
	if creds.AuthToken == "" {
		return &Client{api: gobuz.NewQobuzAPI(
			gobuz.WithApplicationCredentials(creds.AppID, creds.AppSecret),
		)}, nil
	}
	return &Client{api: gobuz.NewQobuzAPI(
		gobuz.WithApplicationCredentials(creds.AppID, creds.AppSecret),
		gobuz.WithAuthToken(creds.AuthToken),
	)}, nil
}

func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := c.api.SearchTracks(query).WithLimit(limit).Run()
	if err != nil {
		return nil, fmt.Errorf("qobuz track search failed: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	tracks := make([]Track, 0, len(res.Tracks.Items))
	for _, t := range res.Tracks.Items {
		tracks = append(tracks, Track{
			ID:       int(t.ID),
			Title:    t.Title,
			Artist:   t.Performer.Name,
			Album:    t.Album.Title,
			Image:    t.Album.Image.Large,
			Duration: int(t.Duration),
		})
	}
	return tracks, nil
}

func (c *Client) TrackFileURL(ctx context.Context, trackID int, format Format) (*StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	quality := gobuz.TrackFormatFLAC
	switch format {
	case FormatHiRes192:
		quality = gobuz.TrackFormatHiRes24Bit192Khz
	case FormatHiRes96:
		quality = gobuz.TrackFormatHiRes24Bit96Khz
	}
	file, err := c.api.GetTrackFileUrl(trackID, quality)
	if err != nil {
		return nil, err
	}
	return &StreamInfo{
		URL:        file.URL,
		MimeType:   file.MimeType,
		BitDepth:   int(file.BitDepth),
		SampleRate: int(file.SamplingRate),
		Duration:   int(file.Duration),
	}, nil
}
