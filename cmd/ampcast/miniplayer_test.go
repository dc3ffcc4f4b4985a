package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/miniplayer"
	"github.com/edumarques81/ampcast-core/internal/domain/playlist"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

type postedWindow struct {
	mu   sync.Mutex
	msgs []miniplayer.Message
}

func (w *postedWindow) ID() string     { return "window" }
func (w *postedWindow) Origin() string { return "http://localhost:3001" }
func (w *postedWindow) Closed() bool   { return false }
func (w *postedWindow) Close() error   { return nil }

func (w *postedWindow) Post(msg miniplayer.Message) error {
	w.mu.Lock()
	w.msgs = append(w.msgs, msg)
	w.mu.Unlock()
	return nil
}

func (w *postedWindow) named(c miniplayer.Command) []miniplayer.Message {
	want, _ := miniplayer.CommandMessage(c, nil)
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []miniplayer.Message
	for _, msg := range w.msgs {
		if msg.Name == want.Name {
			out = append(out, msg)
		}
	}
	return out
}

type stubHandoff struct {
	state      *stream.Subject[miniplayer.State]
	visualizer *stream.Subject[string]
	remote     *miniplayer.RemotePlayer
}

func newStubHandoff(w miniplayer.Window) *stubHandoff {
	return &stubHandoff{
		state:      stream.NewBehavior(miniplayer.StateClosed),
		visualizer: stream.NewReplay[string](),
		remote:     miniplayer.NewRemotePlayer(w),
	}
}

func (h *stubHandoff) State() miniplayer.State {
	s, _ := h.state.Value()
	return s
}

func (h *stubHandoff) Open(context.Context) error { return nil }
func (h *stubHandoff) Close() error               { return nil }

func (h *stubHandoff) Remote() *miniplayer.RemotePlayer { return h.remote }

func (h *stubHandoff) ObserveState() stream.Observable[miniplayer.State] { return h.state }
func (h *stubHandoff) ObserveVisualizer() stream.Observable[string]      { return h.visualizer }

func loadNextSrcs(t *testing.T, msgs []miniplayer.Message) []string {
	t.Helper()
	out := make([]string, len(msgs))
	for i, msg := range msgs {
		var item media.PlaylistItem
		if err := msg.Decode(&item); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		out[i] = item.Src
	}
	return out
}

func TestMiniPlayerSendsUpcoming(t *testing.T) {
	w := &postedWindow{}
	h := newStubHandoff(w)
	queue, _ := playlist.New(&memStore{data: make(map[string][]byte)})
	song := func(src string) *media.Item { return &media.Item{Base: media.Base{Src: src}} }

	m := newMiniPlayer(h, queue)
	defer m.release()

	queue.Add(song("a"), song("b"), song("c"))
	if n := len(w.named(miniplayer.CommandLoadNext)); n != 0 {
		t.Fatalf("closed mini player received %d loadNext commands", n)
	}

	h.state.Next(miniplayer.StateActive)
	got := loadNextSrcs(t, w.named(miniplayer.CommandLoadNext))
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("after activation loadNext = %v, want [b]", got)
	}

	queue.Next()
	got = loadNextSrcs(t, w.named(miniplayer.CommandLoadNext))
	if len(got) != 2 || got[1] != "c" {
		t.Fatalf("after moving on loadNext = %v, want [b c]", got)
	}

	h.state.Next(miniplayer.StateClosed)
	queue.Prev()
	if n := len(w.named(miniplayer.CommandLoadNext)); n != 2 {
		t.Errorf("closed mini player received loadNext, total %d", n)
	}
}

func TestMiniPlayerActions(t *testing.T) {
	tests := []struct {
		action  string
		active  bool
		want    miniplayer.Command
		wantErr error
	}{
		{actionLock, true, miniplayer.CommandLock, nil},
		{actionUnlock, true, miniplayer.CommandUnlock, nil},
		{actionNextVisualizer, true, miniplayer.CommandNextVisualizer, nil},
		{actionRefreshTheme, true, miniplayer.CommandRefreshTheme, nil},
		{"dance", true, "", errUnknownAction},
		{actionLock, false, "", miniplayer.ErrNotOpen},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			w := &postedWindow{}
			h := newStubHandoff(w)
			if tt.active {
				h.state.Next(miniplayer.StateActive)
			}
			queue, _ := playlist.New(&memStore{data: make(map[string][]byte)})
			m := newMiniPlayer(h, queue)
			defer m.release()

			err := m.Action(tt.action)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Action(%q) error = %v, want %v", tt.action, err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if n := len(w.named(tt.want)); n != 1 {
				t.Errorf("window received %d %s commands, want 1", n, tt.want)
			}
		})
	}
}

func TestMiniPlayerVisualizer(t *testing.T) {
	h := newStubHandoff(&postedWindow{})
	queue, _ := playlist.New(&memStore{data: make(map[string][]byte)})
	m := newMiniPlayer(h, queue)
	defer m.release()

	if v := m.Visualizer(); v != "" {
		t.Errorf("Visualizer() = %q before any report", v)
	}
	h.visualizer.Next("spectrum")
	if v := m.Visualizer(); v != "spectrum" {
		t.Errorf("Visualizer() = %q, want spectrum", v)
	}
}
