package miniplayer

import (
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// RemotePlayer drives the player in a mini player window by posting
// commands to it. Events reported by the window are fed in by the
// Controller.
type RemotePlayer struct {
	window Window

	currentTime *stream.Subject[float64]
	duration    *stream.Subject[float64]
	ended       *stream.Subject[struct{}]
	playing     *stream.Subject[struct{}]
	errs        *stream.Subject[error]
}

var _ player.Player[*media.PlaylistItem] = (*RemotePlayer)(nil)

// NewRemotePlayer creates a player posting to window.
func NewRemotePlayer(window Window) *RemotePlayer {
	return &RemotePlayer{
		window:      window,
		currentTime: stream.NewSubject[float64](),
		duration:    stream.NewSubject[float64](),
		ended:       stream.NewSubject[struct{}](),
		playing:     stream.NewSubject[struct{}](),
		errs:        stream.NewSubject[error](),
	}
}

func (r *RemotePlayer) send(c Command, data any) error {
	msg, err := CommandMessage(c, data)
	if err != nil {
		return err
	}
	if err := r.window.Post(msg); err != nil {
		log.Warn().Err(err).Str("command", string(c)).Msg("Failed to post mini player command")
		return err
	}
	log.Debug().Str("command", string(c)).Msg("Posted mini player command")
	return nil
}

func (r *RemotePlayer) Load(item *media.PlaylistItem) error {
	return r.send(CommandLoad, item)
}

// LoadNext tells the mini player which item follows the current one.
func (r *RemotePlayer) LoadNext(item *media.PlaylistItem) error {
	return r.send(CommandLoadNext, item)
}

func (r *RemotePlayer) Play()                { r.send(CommandPlay, nil) }
func (r *RemotePlayer) Pause()               { r.send(CommandPause, nil) }
func (r *RemotePlayer) Stop()                { r.send(CommandStop, nil) }
func (r *RemotePlayer) Seek(seconds float64) { r.send(CommandSeek, seconds) }

func (r *RemotePlayer) Resize(width, height int) {
	r.send(CommandResize, Size{Width: width, Height: height})
}

func (r *RemotePlayer) SetAutoplay(autoplay bool) { r.send(CommandSetAutoplay, autoplay) }
func (r *RemotePlayer) SetMuted(muted bool)       { r.send(CommandSetMuted, muted) }
func (r *RemotePlayer) SetHidden(hidden bool)     { r.send(CommandSetHidden, hidden) }
func (r *RemotePlayer) SetLoop(loop bool)         { r.send(CommandSetLoop, loop) }
func (r *RemotePlayer) SetVolume(volume float64)  { r.send(CommandSetVolume, volume) }

// Lock stops the mini player from navigating the playlist on its own.
func (r *RemotePlayer) Lock() error   { return r.send(CommandLock, nil) }
func (r *RemotePlayer) Unlock() error { return r.send(CommandUnlock, nil) }

func (r *RemotePlayer) NextVisualizer() error { return r.send(CommandNextVisualizer, nil) }
func (r *RemotePlayer) RefreshTheme() error   { return r.send(CommandRefreshTheme, nil) }

func (r *RemotePlayer) ObserveCurrentTime() stream.Observable[float64] { return r.currentTime }
func (r *RemotePlayer) ObserveDuration() stream.Observable[float64]    { return r.duration }
func (r *RemotePlayer) ObserveEnded() stream.Observable[struct{}]      { return r.ended }
func (r *RemotePlayer) ObservePlaying() stream.Observable[struct{}]    { return r.playing }
func (r *RemotePlayer) ObserveError() stream.Observable[error]         { return r.errs }

// handle turns an event from the window into player events.
func (r *RemotePlayer) handle(event Event, msg Message) {
	switch event {
	case EventPlaying:
		r.playing.Next(struct{}{})
	case EventEnded:
		r.ended.Next(struct{}{})
	case EventError:
		var data ErrorData
		if err := msg.Decode(&data); err != nil {
			data.Message = "unknown error"
		}
		r.errs.Next(&RemoteError{Message: data.Message})
	case EventPlaybackStateChange:
		var state media.PlaybackState
		if err := msg.Decode(&state); err != nil {
			return
		}
		r.currentTime.Next(state.CurrentTime)
		r.duration.Next(state.Duration)
	}
}
