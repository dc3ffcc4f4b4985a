package artwork

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/infra/mpd"
)

// Prefix is the path artwork is served under.
const Prefix = "/artwork"

// URL returns the artwork address for a track src.
func URL(src string, size Size) string {
	return fmt.Sprintf("%s?src=%s&size=%d", Prefix, url.QueryEscape(src), size)
}

// ServeHTTP serves GET /artwork?src=mpd:track:<uri>&size=<px>.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	src, err := media.ParseSrc(q.Get("src"))
	if err != nil || src.Service != mpd.Service || src.Type != "track" {
		http.Error(w, "src must be an mpd track", http.StatusBadRequest)
		return
	}
	var size Size
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !validSize(Size(n)) {
			http.Error(w, "unsupported size", http.StatusBadRequest)
			return
		}
		size = Size(n)
	}

	data, mime, err := s.Image(src.ID, size)
	if errors.Is(err, ErrNoArtwork) {
		http.Error(w, "artwork not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Debug().Err(err).Str("uri", src.ID).Msg("Artwork failed")
		http.Error(w, "artwork unavailable", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

// WithThumbnails adds artwork thumbnails to MPD tracks fetched without any.
func WithThumbnails[T media.Object](fetch pager.FetchFunc[T]) pager.FetchFunc[T] {
	return func(ctx context.Context, pageSize int) (pager.Page[T], error) {
		page, err := fetch(ctx, pageSize)
		for _, item := range page.Items {
			info := item.Info()
			if len(info.Thumbnails) > 0 || !isTrack(info.Src) {
				continue
			}
			for _, size := range Sizes {
				info.Thumbnails = append(info.Thumbnails, media.Thumbnail{
					URL:    URL(info.Src, size),
					Width:  int(size),
					Height: int(size),
				})
			}
		}
		return page, err
	}
}

func isTrack(src string) bool {
	s, err := media.ParseSrc(src)
	return err == nil && s.Service == mpd.Service && s.Type == "track" && !strings.Contains(s.ID, "://")
}
