package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/config"
	"github.com/edumarques81/ampcast-core/internal/domain/miniplayer"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/playlist"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

func pagerConfig(c config.PagerConfig) pager.Config {
	return pager.Config{
		PageSize:          c.PageSize,
		MinPageSize:       c.MinPageSize,
		MaxPageSize:       c.MaxPageSize,
		CalculatePageSize: c.CalculatePageSize,
	}
}

// followNavigation moves through the playlist when the mini player asks for
// the previous or next item.
func followNavigation(mini *miniplayer.Controller, queue *playlist.Playlist, pb *player.Playback) *stream.Subscription {
	return mini.ObserveNavigation().Subscribe(func(e miniplayer.Event) {
		var next = queue.Next
		if e == miniplayer.EventPrev {
			next = queue.Prev
		}
		item := next()
		if item == nil {
			return
		}
		if err := pb.Load(item); err != nil {
			return
		}
		pb.Play()
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// playbackHandler reports the playback state.
func playbackHandler(pb *player.Playback) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, pb.State())
	})
}

type miniPlayerStatus struct {
	State      string `json:"state"`
	Visualizer string `json:"visualizer,omitempty"`
}

type miniPlayerController interface {
	State() miniplayer.State
	Open(ctx context.Context) error
	Close() error
	Action(name string) error
	Visualizer() string
}

// miniPlayerHandler reports the hand-off state on GET, opens the mini player
// on POST and closes it on DELETE. A POST with an action query parameter
// sends that action to the open mini player instead.
func miniPlayerHandler(mini miniPlayerController) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			if action := r.URL.Query().Get("action"); action != "" {
				err = mini.Action(action)
			} else {
				err = mini.Open(r.Context())
			}
		case http.MethodDelete:
			err = mini.Close()
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if errors.Is(err, errUnknownAction) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("method", r.Method).Msg("Mini player request failed")
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, miniPlayerStatus{State: mini.State().String(), Visualizer: mini.Visualizer()})
	})
}

// spaHandler serves dir and falls back to index.html for unknown paths.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || (info.IsDir() && r.URL.Path != "/") {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
