package qobuz

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
)

// ErrNotTrack is returned when resolving an item that is not a Qobuz track.
var ErrNotTrack = errors.New("not a qobuz track")

// TrackSrc returns the src of a Qobuz track.
func TrackSrc(id int) string {
	return media.NewSrc(Service, "track", strconv.Itoa(id))
}

func toItem(t Track) *media.Item {
	item := &media.Item{
		Base: media.Base{
			Src:         TrackSrc(t.ID),
			Title:       t.Title,
			ExternalURL: fmt.Sprintf("https://play.qobuz.com/track/%d", t.ID),
		},
		MediaType:    media.MediaTypeAudio,
		PlaybackType: media.PlaybackDirect,
		Duration:     float64(t.Duration),
		Album:        t.Album,
	}
	if t.Artist != "" {
		item.Artists = []string{t.Artist}
	}
	if t.Image != "" {
		item.Thumbnails = []media.Thumbnail{{URL: t.Image}}
	}
	return item
}

// SearchSource returns a page function for a track search. The Qobuz search
// is fetched as a growing window and the new part of it returned.
func SearchSource(api API, query string) pager.FetchFunc[*media.Item] {
	query = strings.TrimSpace(query)
	offset := 0
	return func(ctx context.Context, pageSize int) (pager.Page[*media.Item], error) {
		if query == "" {
			return pager.Page[*media.Item]{AtEnd: true}, nil
		}
		limit := offset + pageSize
		tracks, err := api.SearchTracks(ctx, query, limit)
		if err != nil {
			return pager.Page[*media.Item]{}, err
		}

		var items []*media.Item
		if offset < len(tracks) {
			items = make([]*media.Item, 0, len(tracks)-offset)
			for _, t := range tracks[offset:] {
				items = append(items, toItem(t))
			}
		}
		offset = len(tracks)

		log.Debug().Str("query", query).Int("limit", limit).Int("count", len(items)).Msg("Qobuz search page")
		return pager.Page[*media.Item]{Items: items, AtEnd: len(tracks) < limit}, nil
	}
}

// Resolver turns Qobuz track srcs into stream URLs.
type Resolver struct {
	api     API
	formats []Format
}

// NewResolver creates a resolver trying formats in order. Nil formats means
// Formats.
func NewResolver(api API, formats []Format) *Resolver {
	if len(formats) == 0 {
		formats = Formats
	}
	return &Resolver{api: api, formats: formats}
}

// Handles reports whether src is a Qobuz track.
func (r *Resolver) Handles(src string) bool {
	_, err := trackID(src)
	return err == nil
}

// Resolve returns the stream URL of the track behind src and the quality it
// was found in.
func (r *Resolver) Resolve(ctx context.Context, src string) (string, string, error) {
	id, err := trackID(src)
	if err != nil {
		return "", "", err
	}

	var lastErr error
	for _, format := range r.formats {
		info, err := r.api.TrackFileURL(ctx, id, format)
		if err == nil && info != nil && info.URL != "" {
			log.Debug().Int("trackId", id).Str("format", format.String()).Msg("Resolved Qobuz stream")
			return info.URL, quality(info, format), nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		if err == nil {
			err = fmt.Errorf("no file url in %s", format)
		}
		log.Debug().Err(err).Int("trackId", id).Str("format", format.String()).Msg("Qobuz format unavailable")
		lastErr = err
	}
	return "", "", fmt.Errorf("failed to get stream URL for %s: %w", src, lastErr)
}

func trackID(src string) (int, error) {
	s, err := media.ParseSrc(src)
	if err != nil {
		return 0, err
	}
	if s.Service != Service || s.Type != "track" {
		return 0, fmt.Errorf("%w: %s", ErrNotTrack, src)
	}
	id, err := strconv.Atoi(s.ID)
	if err != nil {
		return 0, fmt.Errorf("invalid track ID: %w", err)
	}
	return id, nil
}

func quality(info *StreamInfo, format Format) string {
	if info.BitDepth <= 0 || info.SampleRate <= 0 {
		return format.String()
	}
	rate := info.SampleRate
	if rate >= 1000 {
		rate /= 1000
	}
	return fmt.Sprintf("%d/%d", info.BitDepth, rate)
}
