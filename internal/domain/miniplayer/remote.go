package miniplayer

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// Hooks are window concerns a Remote cannot handle through playback.
// Any of them may be nil.
type Hooks struct {
	Resize         func(Size)
	NextVisualizer func()
	RefreshTheme   func()
	LoadNext       func(*media.PlaylistItem)
	Close          func()
}

// Remote runs inside the mini player window. It executes commands from the
// opener against its own playback and reports playback back.
type Remote struct {
	opener   Window
	playback *player.Playback
	hooks    Hooks

	mu     sync.Mutex
	locked bool
	next   *media.PlaylistItem

	subs stream.Group
}

// NewRemote reports playback changes to opener.
func NewRemote(opener Window, playback *player.Playback, hooks Hooks) *Remote {
	r := &Remote{opener: opener, playback: playback, hooks: hooks}

	r.subs.Add(playback.ObserveState().Subscribe(func(s media.PlaybackState) {
		r.post(EventPlaybackStateChange, s)
	}))
	r.subs.Add(playback.ObservePlaying().Subscribe(func(*media.PlaylistItem) {
		r.post(EventPlaying, nil)
	}))
	r.subs.Add(playback.ObserveEnded().Subscribe(func(*media.PlaylistItem) {
		r.post(EventEnded, nil)
	}))
	r.subs.Add(playback.ObserveError().Subscribe(func(err error) {
		r.post(EventError, ErrorData{Message: err.Error()})
	}))
	return r
}

func (r *Remote) post(e Event, data any) {
	if r.opener.Closed() {
		return
	}
	msg, err := EventMessage(e, data)
	if err != nil {
		log.Warn().Err(err).Str("event", string(e)).Msg("Failed to encode mini player event")
		return
	}
	if err := r.opener.Post(msg); err != nil {
		log.Debug().Err(err).Str("event", string(e)).Msg("Failed to post mini player event")
	}
}

// Start tells the opener the window has loaded.
func (r *Remote) Start() { r.post(EventLoaded, nil) }

// Unload tells the opener the window is going away, possibly to reload.
func (r *Remote) Unload() { r.post(EventUnloaded, nil) }

// Close stops playback and tells the opener the window has closed.
func (r *Remote) Close() {
	r.playback.Stop()
	r.post(EventClosed, nil)
	r.subs.Unsubscribe()
}

// Locked reports whether playlist navigation is locked by the opener.
func (r *Remote) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// NextItem returns the item announced by loadNext, if any.
func (r *Remote) NextItem() *media.PlaylistItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Prev asks the opener to move to the previous playlist item.
func (r *Remote) Prev() {
	if !r.Locked() {
		r.post(EventPrev, nil)
	}
}

// Next asks the opener to move to the next playlist item.
func (r *Remote) Next() {
	if !r.Locked() {
		r.post(EventNext, nil)
	}
}

// VisualizerChanged reports the visualizer now showing.
func (r *Remote) VisualizerChanged(name string) {
	r.post(EventVisualizerChange, name)
}

// Receive executes a command posted by the opener. Messages from any other
// origin or window are dropped.
func (r *Remote) Receive(env Envelope) {
	if env.Origin != r.opener.Origin() || env.Source != r.opener.ID() {
		log.Warn().Str("origin", env.Origin).Str("source", env.Source).Msg("Rejected mini player command")
		return
	}
	kind, ok := env.Message.Kind()
	if !ok {
		return
	}
	if err := r.execute(Command(kind), env.Message); err != nil {
		log.Warn().Err(err).Str("command", kind).Msg("Mini player command failed")
	}
}

func (r *Remote) execute(c Command, msg Message) error {
	pb := r.playback

	switch c {
	case CommandTransferPlayback:
		var t Transfer
		if err := msg.Decode(&t); err != nil {
			return err
		}
		pb.SetVolume(t.Settings.Volume)
		pb.SetLoop(t.Settings.Loop)
		pb.SetMuted(t.Settings.Muted)
		pb.SetAutoplay(t.Settings.Autoplay)
		if err := pb.Restore(t.State); err != nil {
			return err
		}
		if !t.State.Paused {
			pb.Play()
		}
		log.Info().Str("playbackId", t.State.PlaybackID).Msg("Playback transferred to mini player")

	case CommandLoad:
		var item media.PlaylistItem
		if err := msg.Decode(&item); err != nil {
			return err
		}
		return pb.Load(&item)

	case CommandLoadNext:
		var item *media.PlaylistItem
		if len(msg.Data) > 0 {
			if err := msg.Decode(&item); err != nil {
				return err
			}
		}
		r.mu.Lock()
		r.next = item
		r.mu.Unlock()
		if r.hooks.LoadNext != nil {
			r.hooks.LoadNext(item)
		}

	case CommandLock, CommandUnlock:
		r.mu.Lock()
		r.locked = c == CommandLock
		r.mu.Unlock()

	case CommandPlay:
		pb.Play()
	case CommandPause:
		pb.Pause()
	case CommandStop:
		pb.Stop()

	case CommandSeek:
		var seconds float64
		if err := msg.Decode(&seconds); err != nil {
			return err
		}
		pb.Seek(seconds)

	case CommandSetAutoplay, CommandSetLoop, CommandSetMuted, CommandSetHidden:
		var v bool
		if err := msg.Decode(&v); err != nil {
			return err
		}
		switch c {
		case CommandSetAutoplay:
			pb.SetAutoplay(v)
		case CommandSetLoop:
			pb.SetLoop(v)
		case CommandSetMuted:
			pb.SetMuted(v)
		default:
			// The mini player is always visible.
		}

	case CommandSetVolume:
		var v float64
		if err := msg.Decode(&v); err != nil {
			return err
		}
		pb.SetVolume(v)

	case CommandResize:
		var size Size
		if err := msg.Decode(&size); err != nil {
			return err
		}
		if r.hooks.Resize != nil {
			r.hooks.Resize(size)
		}

	case CommandNextVisualizer:
		if r.hooks.NextVisualizer != nil {
			r.hooks.NextVisualizer()
		}
	case CommandRefreshTheme:
		if r.hooks.RefreshTheme != nil {
			r.hooks.RefreshTheme()
		}

	case CommandClose:
		pb.Stop()
		r.subs.Unsubscribe()
		if r.hooks.Close != nil {
			r.hooks.Close()
		}

	default:
		log.Debug().Str("command", string(c)).Msg("Unknown mini player command")
	}
	return nil
}
