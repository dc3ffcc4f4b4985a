package player

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// Playback owns the playback state and drives one player with it. The player
// can be swapped for another, such as one living in a mini player window,
// and swapped back.
// It is safe for concurrent access.
type Playback struct {
	mu        sync.RWMutex
	local     Player[*media.PlaylistItem]
	player    Player[*media.PlaylistItem]
	events    *stream.Group
	state     media.PlaybackState
	settings  Settings
	suspended bool

	stateS  *stream.Subject[media.PlaybackState]
	ended   *stream.Subject[*media.PlaylistItem]
	playing *stream.Subject[*media.PlaylistItem]
	errs    *stream.Subject[error]
	now     func() time.Time
}

// NewPlayback creates a coordinator driving p.
func NewPlayback(p Player[*media.PlaylistItem]) *Playback {
	pb := &Playback{
		local:    p,
		player:   p,
		state:    media.NewPlaybackState(),
		settings: DefaultSettings(),
		stateS:   stream.NewBehavior(media.NewPlaybackState()),
		ended:    stream.NewSubject[*media.PlaylistItem](),
		playing:  stream.NewSubject[*media.PlaylistItem](),
		errs:     stream.NewSubject[error](),
		now:      time.Now,
	}
	pb.events = pb.attach(p)
	return pb
}

func (pb *Playback) attach(p Player[*media.PlaylistItem]) *stream.Group {
	g := &stream.Group{}
	g.Add(p.ObserveCurrentTime().Subscribe(func(t float64) {
		pb.modify(p, func(s *media.PlaybackState) { s.CurrentTime = t })
	}))
	g.Add(p.ObserveDuration().Subscribe(func(d float64) {
		pb.modify(p, func(s *media.PlaybackState) { s.Duration = d })
	}))
	g.Add(p.ObservePlaying().Subscribe(func(struct{}) {
		var item *media.PlaylistItem
		ok := pb.modify(p, func(s *media.PlaybackState) {
			item = s.CurrentItem
			s.Paused = false
		})
		if ok {
			pb.playing.Next(item)
		}
	}))
	g.Add(p.ObserveEnded().Subscribe(func(struct{}) {
		var item *media.PlaylistItem
		ok := pb.modify(p, func(s *media.PlaybackState) {
			item = s.CurrentItem
			s.EndedAt = pb.now()
			s.Paused = true
		})
		if ok {
			pb.ended.Next(item)
		}
	}))
	g.Add(p.ObserveError().Subscribe(func(err error) {
		if !pb.isActive(p) {
			return
		}
		log.Error().Err(err).Msg("Playback error")
		pb.errs.Next(err)
		pb.Stop()
	}))
	return g
}

func (pb *Playback) isActive(p Player[*media.PlaylistItem]) bool {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.player == p && !pb.suspended
}

// modify applies fn to the state if p is still the active player.
func (pb *Playback) modify(p Player[*media.PlaylistItem], fn func(*media.PlaybackState)) bool {
	pb.mu.Lock()
	if pb.player != p || pb.suspended {
		pb.mu.Unlock()
		return false
	}
	fn(&pb.state)
	state := pb.state
	pb.mu.Unlock()

	pb.stateS.Next(state)
	return true
}

func (pb *Playback) set(fn func(*media.PlaybackState)) {
	pb.mu.Lock()
	fn(&pb.state)
	state := pb.state
	pb.mu.Unlock()

	pb.stateS.Next(state)
}

func (pb *Playback) target() Player[*media.PlaylistItem] {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	if pb.suspended {
		return nil
	}
	return pb.player
}

// State returns a copy of the current state.
func (pb *Playback) State() media.PlaybackState {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.state
}

// ObserveState emits the state after every change.
func (pb *Playback) ObserveState() stream.Observable[media.PlaybackState] { return pb.stateS }

// ObserveEnded emits the item that finished playing.
func (pb *Playback) ObserveEnded() stream.Observable[*media.PlaylistItem] { return pb.ended }

// ObservePlaying emits the item whenever the active player starts playing.
func (pb *Playback) ObservePlaying() stream.Observable[*media.PlaylistItem] { return pb.playing }

// ObserveError emits errors from the active player. Playback is stopped
// after each one.
func (pb *Playback) ObserveError() stream.Observable[error] { return pb.errs }

// Load starts a new playback of item with a fresh playback id.
func (pb *Playback) Load(item *media.PlaylistItem) error {
	p := pb.target()
	if p == nil {
		return nil
	}
	pb.set(func(s *media.PlaybackState) {
		s.CurrentItem = item
		s.CurrentTime = 0
		s.Duration = item.Duration
		s.StartedAt = pb.now()
		s.EndedAt = time.Time{}
		s.PlaybackID = uuid.NewString()
	})
	return p.Load(item)
}

func (pb *Playback) Play() {
	if p := pb.target(); p != nil {
		pb.set(func(s *media.PlaybackState) { s.Paused = false })
		p.Play()
	}
}

func (pb *Playback) Pause() {
	if p := pb.target(); p != nil {
		pb.set(func(s *media.PlaybackState) { s.Paused = true })
		p.Pause()
	}
}

// Stop stops the player and resets the state.
func (pb *Playback) Stop() {
	if p := pb.target(); p != nil {
		pb.set(func(s *media.PlaybackState) { s.Reset() })
		p.Stop()
	}
}

func (pb *Playback) Seek(seconds float64) {
	if p := pb.target(); p != nil {
		pb.set(func(s *media.PlaybackState) { s.CurrentTime = seconds })
		p.Seek(seconds)
	}
}

// Settings returns the player settings.
func (pb *Playback) Settings() Settings {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.settings
}

// SetVolume sets the volume level (0-1).
func (pb *Playback) SetVolume(volume float64) {
	volume = clampVolume(volume)
	pb.mu.Lock()
	pb.settings.Volume = volume
	pb.mu.Unlock()
	if p := pb.target(); p != nil {
		p.SetVolume(volume)
	}
}

func (pb *Playback) SetMuted(muted bool) {
	pb.mu.Lock()
	pb.settings.Muted = muted
	pb.mu.Unlock()
	if p := pb.target(); p != nil {
		p.SetMuted(muted)
	}
}

func (pb *Playback) SetLoop(loop bool) {
	pb.mu.Lock()
	pb.settings.Loop = loop
	pb.mu.Unlock()
	if p := pb.target(); p != nil {
		p.SetLoop(loop)
	}
}

func (pb *Playback) SetAutoplay(autoplay bool) {
	pb.mu.Lock()
	pb.settings.Autoplay = autoplay
	pb.mu.Unlock()
	if p := pb.target(); p != nil {
		p.SetAutoplay(autoplay)
	}
}

// Suspended reports whether playback has been suspended.
func (pb *Playback) Suspended() bool {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	return pb.suspended
}

// Suspend stops the active player and ignores it until Redirect is called.
// It returns the state at the moment of suspension.
func (pb *Playback) Suspend() media.PlaybackState {
	pb.mu.Lock()
	if pb.suspended {
		state := pb.state
		pb.mu.Unlock()
		return state
	}
	pb.suspended = true
	p := pb.player
	state := pb.state
	pb.mu.Unlock()

	p.SetMuted(true)
	p.Stop()
	log.Debug().Str("playbackId", state.PlaybackID).Msg("Playback suspended")
	return state
}

// Redirect makes p the active player and resumes. A nil p returns to the
// player the coordinator was created with.
func (pb *Playback) Redirect(p Player[*media.PlaylistItem]) {
	if p == nil {
		p = pb.local
	}

	pb.mu.Lock()
	old := pb.events
	pb.player = p
	pb.suspended = false
	settings := pb.settings
	pb.mu.Unlock()

	old.Unsubscribe()
	events := pb.attach(p)
	pb.mu.Lock()
	pb.events = events
	pb.mu.Unlock()

	p.SetVolume(settings.Volume)
	p.SetLoop(settings.Loop)
	p.SetMuted(settings.Muted)
}

// Sync replaces the state with one reported by a remote player. Whether
// playback lives in the mini player is kept.
func (pb *Playback) Sync(state media.PlaybackState) {
	pb.set(func(s *media.PlaybackState) {
		state.MiniPlayer = s.MiniPlayer
		*s = state
	})
}

// SetMiniPlayer records whether playback lives in the mini player.
func (pb *Playback) SetMiniPlayer(active bool) {
	pb.set(func(s *media.PlaybackState) { s.MiniPlayer = active })
}

// Restore takes over a state handed back from elsewhere. Playback is left
// paused at the reported position, except for live items which restart.
// The playback id and start time are kept.
func (pb *Playback) Restore(state media.PlaybackState) error {
	state.Paused = true
	if state.CurrentItem != nil && state.CurrentItem.IsLive() {
		state.CurrentTime = 0
	}
	pb.set(func(s *media.PlaybackState) {
		state.MiniPlayer = s.MiniPlayer
		*s = state
	})

	p := pb.target()
	if p == nil || state.CurrentItem == nil {
		return nil
	}
	p.SetAutoplay(false)
	err := p.Load(state.CurrentItem)
	if state.CurrentTime > 0 {
		p.Seek(state.CurrentTime)
	}
	p.SetAutoplay(pb.Settings().Autoplay)
	return err
}
