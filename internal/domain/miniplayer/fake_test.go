package miniplayer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// fakePlayer records calls. With echo set it reports seeks and plays back
// the way a real engine would.
type fakePlayer struct {
	echo bool

	mu     sync.Mutex
	calls  []string
	loaded []*media.PlaylistItem

	currentTime *stream.Subject[float64]
	duration    *stream.Subject[float64]
	ended       *stream.Subject[struct{}]
	playing     *stream.Subject[struct{}]
	errs        *stream.Subject[error]
}

func newFakePlayer(echo bool) *fakePlayer {
	return &fakePlayer{
		echo:        echo,
		currentTime: stream.NewSubject[float64](),
		duration:    stream.NewSubject[float64](),
		ended:       stream.NewSubject[struct{}](),
		playing:     stream.NewSubject[struct{}](),
		errs:        stream.NewSubject[error](),
	}
}

func (f *fakePlayer) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakePlayer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayer) Called(call string) bool {
	for _, c := range f.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakePlayer) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakePlayer) Loaded() []*media.PlaylistItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*media.PlaylistItem(nil), f.loaded...)
}

func (f *fakePlayer) Load(item *media.PlaylistItem) error {
	f.record("load")
	f.mu.Lock()
	f.loaded = append(f.loaded, item)
	f.mu.Unlock()
	return nil
}

func (f *fakePlayer) Play() {
	f.record("play")
	if f.echo {
		f.playing.Next(struct{}{})
	}
}

func (f *fakePlayer) Seek(seconds float64) {
	f.record("seek=%g", seconds)
	if f.echo {
		f.currentTime.Next(seconds)
	}
}

func (f *fakePlayer) Pause()                   { f.record("pause") }
func (f *fakePlayer) Stop()                    { f.record("stop") }
func (f *fakePlayer) Resize(width, height int) { f.record("resize=%dx%d", width, height) }
func (f *fakePlayer) SetAutoplay(v bool)       { f.record("autoplay=%v", v) }
func (f *fakePlayer) SetMuted(v bool)          { f.record("muted=%v", v) }
func (f *fakePlayer) SetHidden(v bool)         { f.record("hidden=%v", v) }
func (f *fakePlayer) SetLoop(v bool)           { f.record("loop=%v", v) }
func (f *fakePlayer) SetVolume(v float64)      { f.record("volume=%g", v) }

func (f *fakePlayer) ObserveCurrentTime() stream.Observable[float64] { return f.currentTime }
func (f *fakePlayer) ObserveDuration() stream.Observable[float64]    { return f.duration }
func (f *fakePlayer) ObserveEnded() stream.Observable[struct{}]      { return f.ended }
func (f *fakePlayer) ObservePlaying() stream.Observable[struct{}]    { return f.playing }
func (f *fakePlayer) ObserveError() stream.Observable[error]         { return f.errs }

// openerFunc adapts a function to the Opener interface.
type openerFunc func(ctx context.Context, name string) (Window, error)

func (f openerFunc) Open(ctx context.Context, name string) (Window, error) { return f(ctx, name) }

type fakeURLs struct{}

func (fakeURLs) ObjectURL(blob *media.Blob) string {
	return "blob:" + strings.ReplaceAll(blob.Type, "/", "-")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func equalCalls(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
