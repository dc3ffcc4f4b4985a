package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/domain/playlist"
	"github.com/edumarques81/ampcast-core/internal/infra/httpsource"
	"github.com/edumarques81/ampcast-core/internal/infra/mpd"
	"github.com/edumarques81/ampcast-core/internal/infra/qobuz"
	"github.com/edumarques81/ampcast-core/internal/transport/socketio"
)

type stubQobuz struct{}

func (stubQobuz) SearchTracks(ctx context.Context, query string, limit int) ([]qobuz.Track, error) {
	return []qobuz.Track{{ID: 7, Title: query, Artist: "Artist"}}, nil
}

func (stubQobuz) TrackFileURL(ctx context.Context, id int, format qobuz.Format) (*qobuz.StreamInfo, error) {
	return nil, errors.New("not used")
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *memStore) Get(store, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[store+"/"+key]
	return v, ok, nil
}

func (s *memStore) Set(store, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[store+"/"+key] = value
	return nil
}

func newTestCatalog() *catalog {
	queue, _ := playlist.New(&memStore{data: make(map[string][]byte)})
	return &catalog{
		pager: pager.Config{PageSize: 10},
		mpd:   mpd.NewClient("localhost", 6600, ""),
		qobuz: stubQobuz{},
		web:   httpsource.NewClient(httpsource.DefaultConfig()),
		feeds: map[string]string{"charts": "http://localhost/charts"},
		queue: queue,
	}
}

func TestCatalogFeeds(t *testing.T) {
	c := newTestCatalog()
	for _, src := range []string{
		"mpd:folder:/",
		"mpd:folder:Artist/Album",
		"mpd:albums:all",
		"mpd:queue:current",
		"qobuz:search:miles davis",
		"web:feed:charts",
		"ampcast:recent:played",
	} {
		t.Run(src, func(t *testing.T) {
			feed, err := c.Feed(src)
			if err != nil {
				t.Fatalf("Feed(%q) error = %v", src, err)
			}
			if feed == nil {
				t.Fatal("Feed returned nil")
			}
			feed.Disconnect()
		})
	}
}

func TestCatalogRejects(t *testing.T) {
	c := newTestCatalog()
	tests := []struct {
		src  string
		want error
	}{
		{"not-a-src", media.ErrInvalidSrc},
		{"mpd:track:a.flac", errUnknownSrc},
		{"spotify:search:x", errUnknownSrc},
		{"web:feed:missing", errUnknownSrc},
		{"ampcast:recent:queued", errUnknownSrc},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := c.Feed(tt.src)
			if !errors.Is(err, tt.want) {
				t.Errorf("Feed(%q) error = %v, want %v", tt.src, err, tt.want)
			}
		})
	}

	c.qobuz = nil
	if _, err := c.Feed("qobuz:search:x"); !errors.Is(err, qobuz.ErrNotConfigured) {
		t.Errorf("qobuz without a client: error = %v", err)
	}
	c.mpd = nil
	if _, err := c.Feed("mpd:queue:current"); !errors.Is(err, errUnknownSrc) {
		t.Errorf("mpd without a client: error = %v", err)
	}
}

func TestCatalogSearchFeedFetches(t *testing.T) {
	feed, err := newTestCatalog().Feed("qobuz:search:kind of blue")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Disconnect()

	got := make(chan []socketio.Entry, 4)
	subs := feed.Watch(func(items []socketio.Entry) { got <- items }, func(int) {}, func(err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	defer subs.Unsubscribe()

	feed.FetchAt(0, 10)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case items := <-got:
			if len(items) == 0 {
				continue
			}
			if items[0].Item.Info().Title != "kind of blue" {
				t.Errorf("first item = %+v", items[0].Item.Info())
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for search results")
		}
	}
}

func TestCatalogRecentFeed(t *testing.T) {
	c := newTestCatalog()
	song := func(src string) *media.Item {
		return &media.Item{Base: media.Base{Src: src, Title: src}}
	}
	c.queue.MarkPlayed(song("mpd:track:a.flac"))

	feed, err := c.Feed("ampcast:recent:played")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Disconnect()

	var mu sync.Mutex
	var latest []string
	var size int
	subs := feed.Watch(func(items []socketio.Entry) {
		srcs := make([]string, len(items))
		for i, e := range items {
			srcs[i] = e.Item.Info().Src
		}
		mu.Lock()
		latest = srcs
		mu.Unlock()
	}, func(n int) {
		mu.Lock()
		size = n
		mu.Unlock()
	}, func(err error) {
		t.Errorf("unexpected error: %v", err)
	})
	defer subs.Unsubscribe()
	feed.FetchAt(0, 10)

	wait := func(want ...string) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for {
			mu.Lock()
			got, n := latest, size
			mu.Unlock()
			if n == len(want) && len(got) == len(want) {
				match := true
				for i := range want {
					match = match && got[i] == want[i]
				}
				if match {
					return
				}
			}
			if time.Now().After(deadline) {
				t.Fatalf("items = %v size = %d, want %v", got, n, want)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	wait("mpd:track:a.flac")
	c.queue.MarkPlayed(song("mpd:track:b.flac"))
	wait("mpd:track:b.flac", "mpd:track:a.flac")
}
