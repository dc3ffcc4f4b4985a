// Package artwork serves cover art for MPD tracks, scaled to thumbnail
// sizes and cached in the store.
package artwork

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrNoArtwork is returned when neither the folder nor the tags hold a
// picture.
var ErrNoArtwork = errors.New("no artwork found")

// Size is the longest edge of a thumbnail in pixels. Zero is the original.
type Size int

const (
	// SizeSmall is for list views
	SizeSmall Size = 150
	// SizeMedium is for grid views
	SizeMedium Size = 300
	// SizeLarge is for detail views
	SizeLarge Size = 500
)

// Sizes are the thumbnail sizes advertised on items.
var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge}

func validSize(s Size) bool {
	if s == 0 {
		return true
	}
	for _, v := range Sizes {
		if v == s {
			return true
		}
	}
	return false
}

// Provider fetches pictures from MPD.
type Provider interface {
	// AlbumArt returns cover.jpg, folder.jpg and the like.
	AlbumArt(uri string) ([]byte, error)
	// ReadPicture returns artwork embedded in the file's tags.
	ReadPicture(uri string) ([]byte, error)
}

// Cache persists scaled images.
type Cache interface {
	Get(store, key string) ([]byte, bool, error)
	Set(store, key string, value []byte) error
}

const cacheStore = "artwork"

// Service resolves artwork for track uris: cache, then the folder image,
// then the embedded picture.
type Service struct {
	provider Provider
	cache    Cache
}

// NewService creates a service. cache may be nil.
func NewService(provider Provider, cache Cache) *Service {
	return &Service{provider: provider, cache: cache}
}

// Image returns the artwork for uri scaled to size, and its MIME type.
func (s *Service) Image(uri string, size Size) ([]byte, string, error) {
	if !validSize(size) {
		return nil, "", fmt.Errorf("unsupported artwork size %d", size)
	}
	key := fmt.Sprintf("%s\x00%d", uri, size)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(cacheStore, key); err == nil && ok {
			return data, http.DetectContentType(data), nil
		}
	}

	data, source, err := s.fetch(uri)
	if err != nil {
		return nil, "", err
	}
	if size > 0 {
		if data, err = Thumbnail(data, int(size)); err != nil {
			return nil, "", err
		}
	}

	log.Debug().
		Str("uri", uri).
		Str("source", source).
		Int("size", int(size)).
		Int("bytes", len(data)).
		Msg("Resolved artwork")

	if s.cache != nil {
		if err := s.cache.Set(cacheStore, key, data); err != nil {
			log.Warn().Err(err).Str("uri", uri).Msg("Failed to cache artwork")
		}
	}
	return data, http.DetectContentType(data), nil
}

func (s *Service) fetch(uri string) ([]byte, string, error) {
	if s.provider == nil {
		return nil, "", ErrNoArtwork
	}
	if data, err := s.provider.AlbumArt(uri); err == nil && len(data) > 0 {
		return data, "folder", nil
	}
	if data, err := s.provider.ReadPicture(uri); err == nil && len(data) > 0 {
		return data, "embedded", nil
	}
	return nil, "", ErrNoArtwork
}
