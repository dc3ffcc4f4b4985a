package player_test

import (
	"fmt"
	"sync"

	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

type fakePlayer[T any] struct {
	mu      sync.Mutex
	calls   []string
	loaded  []T
	loadErr error
	panics  bool

	currentTime *stream.Subject[float64]
	duration    *stream.Subject[float64]
	ended       *stream.Subject[struct{}]
	playing     *stream.Subject[struct{}]
	errs        *stream.Subject[error]
}

func newFakePlayer[T any]() *fakePlayer[T] {
	return &fakePlayer[T]{
		currentTime: stream.NewSubject[float64](),
		duration:    stream.NewSubject[float64](),
		ended:       stream.NewSubject[struct{}](),
		playing:     stream.NewSubject[struct{}](),
		errs:        stream.NewSubject[error](),
	}
}

func (f *fakePlayer[T]) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakePlayer[T]) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayer[T]) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakePlayer[T]) Load(item T) error {
	f.record("load")
	f.mu.Lock()
	f.loaded = append(f.loaded, item)
	f.mu.Unlock()
	if f.panics {
		panic("engine crashed")
	}
	return f.loadErr
}

func (f *fakePlayer[T]) Play()                    { f.record("play") }
func (f *fakePlayer[T]) Pause()                   { f.record("pause") }
func (f *fakePlayer[T]) Stop()                    { f.record("stop") }
func (f *fakePlayer[T]) Seek(seconds float64)     { f.record("seek=%g", seconds) }
func (f *fakePlayer[T]) Resize(width, height int) { f.record("resize=%dx%d", width, height) }
func (f *fakePlayer[T]) SetAutoplay(v bool)       { f.record("autoplay=%v", v) }
func (f *fakePlayer[T]) SetMuted(v bool)          { f.record("muted=%v", v) }
func (f *fakePlayer[T]) SetHidden(v bool)         { f.record("hidden=%v", v) }
func (f *fakePlayer[T]) SetLoop(v bool)           { f.record("loop=%v", v) }
func (f *fakePlayer[T]) SetVolume(v float64)      { f.record("volume=%g", v) }

func (f *fakePlayer[T]) ObserveCurrentTime() stream.Observable[float64] { return f.currentTime }
func (f *fakePlayer[T]) ObserveDuration() stream.Observable[float64]    { return f.duration }
func (f *fakePlayer[T]) ObserveEnded() stream.Observable[struct{}]      { return f.ended }
func (f *fakePlayer[T]) ObservePlaying() stream.Observable[struct{}]    { return f.playing }
func (f *fakePlayer[T]) ObserveError() stream.Observable[error]         { return f.errs }

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
