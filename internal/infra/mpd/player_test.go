package mpd

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
)

func playerServer(t *testing.T) (*fakeServer, *Player) {
	t.Helper()
	srv := newFakeServer(t, map[string]func([]string) []string{
		"addid": func([]string) []string { return []string{"Id: 7"} },
	})
	return srv, NewPlayer(srv.client(t))
}

func TestPlayerLoad(t *testing.T) {
	tests := []struct {
		name     string
		autoplay bool
		want     []string
	}{
		{"autoplay", true, []string{"clear", `addid "music/a.flac"`, "playid 7"}},
		{"no autoplay", false, []string{"clear", `addid "music/a.flac"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, p := playerServer(t)
			p.SetAutoplay(tt.autoplay)

			item := media.NewPlaylistItem(&media.Item{Base: media.Base{Src: "mpd:track:music/a.flac"}})
			if err := p.Load(item); err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got := srv.Commands(); strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPlayerLoadWithoutURI(t *testing.T) {
	_, p := playerServer(t)
	item := media.NewPlaylistItem(&media.Item{Base: media.Base{Src: "youtube:video:abc"}})

	if err := p.Load(item); !errors.Is(err, ErrNoURI) {
		t.Errorf("expected ErrNoURI, got %v", err)
	}
}

type prefixResolver struct {
	prefix string
	url    string
	err    error
}

func (r prefixResolver) Handles(src string) bool { return strings.HasPrefix(src, r.prefix) }

func (r prefixResolver) Resolve(ctx context.Context, src string) (string, string, error) {
	return r.url, "24/96", r.err
}

func TestPlayerResolvesStreams(t *testing.T) {
	srv, p := playerServer(t)
	p.AddResolver(prefixResolver{prefix: "qobuz:", url: "https://stream/1.flac"})

	item := media.NewPlaylistItem(&media.Item{Base: media.Base{Src: "qobuz:track:1"}})
	if !p.CanPlay(item) {
		t.Fatal("CanPlay() = false for a resolvable item")
	}
	if CanPlay(item) {
		t.Error("package CanPlay should not know about resolvers")
	}
	if err := p.Load(item); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []string{"clear", `addid "https://stream/1.flac"`}
	if got := srv.Commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPlayerResolveFailure(t *testing.T) {
	srv, p := playerServer(t)
	boom := errors.New("boom")
	p.AddResolver(prefixResolver{prefix: "qobuz:", err: boom})

	item := media.NewPlaylistItem(&media.Item{Base: media.Base{Src: "qobuz:track:1"}})
	if err := p.Load(item); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if got := srv.Commands(); len(got) != 0 {
		t.Errorf("expected no commands, got %v", got)
	}
}

func TestPlayerVolumeAndLoop(t *testing.T) {
	srv, p := playerServer(t)

	p.SetVolume(0.5)
	p.SetMuted(true)
	p.SetMuted(false)
	p.SetLoop(true)

	want := []string{"setvol 50", "setvol 0", "setvol 50", "repeat 1", "single 1"}
	if got := srv.Commands(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPlayerObserve(t *testing.T) {
	_, p := playerServer(t)

	var playing, ended atomic.Int32
	var lastTime atomic.Value
	p.ObservePlaying().Subscribe(func(struct{}) { playing.Add(1) })
	p.ObserveEnded().Subscribe(func(struct{}) { ended.Add(1) })
	p.ObserveCurrentTime().Subscribe(func(t float64) { lastTime.Store(t) })

	p.observe(mpd.Attrs{"state": "play", "elapsed": "1.5", "duration": "200"})
	p.observe(mpd.Attrs{"state": "play", "elapsed": "2.5", "duration": "200"})
	if playing.Load() != 1 {
		t.Errorf("expected one playing event, got %d", playing.Load())
	}
	if got := lastTime.Load(); got != 2.5 {
		t.Errorf("expected current time 2.5, got %v", got)
	}

	p.observe(mpd.Attrs{"state": "stop"})
	if ended.Load() != 1 {
		t.Errorf("expected the song running out to end playback, got %d", ended.Load())
	}

	p.observe(mpd.Attrs{"state": "play"})
	p.expectStop()
	p.observe(mpd.Attrs{"state": "stop"})
	if ended.Load() != 1 {
		t.Errorf("expected a requested stop not to end playback, got %d", ended.Load())
	}
	if playing.Load() != 2 {
		t.Errorf("expected a second playing event, got %d", playing.Load())
	}
}

func TestPlayerReportsMPDErrors(t *testing.T) {
	_, p := playerServer(t)

	var errs []error
	p.ObserveError().Subscribe(func(err error) { errs = append(errs, err) })

	p.observe(mpd.Attrs{"state": "play"})
	p.observe(mpd.Attrs{"state": "stop", "error": "failed to decode"})
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "failed to decode") {
		t.Errorf("expected the MPD error, got %v", errs)
	}
}
