package player

import (
	"fmt"
	"sync"

	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

type registration[T any] struct {
	player  Player[T]
	canPlay func(T) bool
	subs    *stream.Group
}

// OmniPlayer presents the registered players as one. Each load selects the
// most recently registered player whose predicate accepts the item, and
// events are forwarded from the selected player only.
type OmniPlayer[T any] struct {
	configMu sync.Mutex
	mu       sync.Mutex
	players  []registration[T]
	current  Player[T]
	settings Settings
	stopped  bool

	currentTime *stream.Subject[float64]
	duration    *stream.Subject[float64]
	ended       *stream.Subject[struct{}]
	playing     *stream.Subject[struct{}]
	errs        *stream.Subject[error]
}

// NewOmniPlayer creates an OmniPlayer with no players.
func NewOmniPlayer[T any]() *OmniPlayer[T] {
	return &OmniPlayer[T]{
		settings:    DefaultSettings(),
		currentTime: stream.NewSubject[float64](),
		duration:    stream.NewSubject[float64](),
		ended:       stream.NewSubject[struct{}](),
		playing:     stream.NewSubject[struct{}](),
		errs:        stream.NewSubject[error](),
	}
}

// Register adds a player. Volume and loop are applied straight away.
func (o *OmniPlayer[T]) Register(p Player[T], canPlay func(T) bool) {
	subs := &stream.Group{}
	subs.Add(p.ObserveCurrentTime().Subscribe(func(t float64) {
		if o.isCurrent(p) {
			o.currentTime.Next(t)
		}
	}))
	subs.Add(p.ObserveDuration().Subscribe(func(d float64) {
		if o.isCurrent(p) {
			o.duration.Next(d)
		}
	}))
	subs.Add(p.ObserveEnded().Subscribe(func(struct{}) {
		if o.isCurrent(p) {
			o.ended.Next(struct{}{})
		}
	}))
	subs.Add(p.ObservePlaying().Subscribe(func(struct{}) {
		if o.isCurrent(p) {
			o.playing.Next(struct{}{})
		}
	}))
	subs.Add(p.ObserveError().Subscribe(func(err error) {
		o.mu.Lock()
		live := o.current == p && !o.stopped
		o.mu.Unlock()
		if live {
			o.errs.Next(err)
		}
	}))

	o.mu.Lock()
	o.players = append(o.players, registration[T]{player: p, canPlay: canPlay, subs: subs})
	settings := o.settings
	o.mu.Unlock()

	p.SetVolume(settings.Volume)
	p.SetLoop(settings.Loop)
}

// Unregister removes a player, stopping it if it is current.
func (o *OmniPlayer[T]) Unregister(p Player[T]) {
	o.mu.Lock()
	var subs *stream.Group
	for i, r := range o.players {
		if r.player == p {
			subs = r.subs
			o.players = append(o.players[:i], o.players[i+1:]...)
			break
		}
	}
	wasCurrent := o.current == p
	if wasCurrent {
		o.current = nil
	}
	o.mu.Unlock()

	if subs != nil {
		subs.Unsubscribe()
	}
	if wasCurrent {
		p.Stop()
	}
}

func (o *OmniPlayer[T]) isCurrent(p Player[T]) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == p
}

// find returns the most recently registered player that can play item.
func (o *OmniPlayer[T]) find(item T) Player[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.players) - 1; i >= 0; i-- {
		if o.players[i].canPlay(item) {
			return o.players[i].player
		}
	}
	return nil
}

// Current returns the active player, or nil.
func (o *OmniPlayer[T]) Current() Player[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Load hands item to the player that can play it. The previous player is
// muted, hidden and stopped first. Failures are published on ObserveError as
// a *LoadError and also returned. Logging them is left to the subscriber.
func (o *OmniPlayer[T]) Load(item T) error {
	next := o.find(item)

	o.mu.Lock()
	prev := o.current
	o.current = nil
	o.stopped = false
	settings := o.settings
	o.mu.Unlock()

	if prev != nil && prev != next {
		prev.SetMuted(true)
		prev.SetHidden(true)
		prev.Stop()
	}

	if next == nil {
		err := &LoadError{Err: ErrNoPlayer}
		o.errs.Next(err)
		return err
	}

	next.SetAutoplay(settings.Autoplay)
	err := loadSafely(next, item)
	next.SetMuted(settings.Muted)
	next.SetHidden(settings.Hidden)

	o.mu.Lock()
	o.current = next
	o.mu.Unlock()

	if err != nil {
		loadErr := &LoadError{Err: err}
		o.errs.Next(loadErr)
		return loadErr
	}
	return nil
}

func loadSafely[T any](p Player[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("player panicked: %v", r)
		}
	}()
	return p.Load(item)
}

// Play resumes the active player.
func (o *OmniPlayer[T]) Play() {
	o.mu.Lock()
	o.stopped = false
	p := o.current
	o.mu.Unlock()
	if p != nil {
		p.Play()
	}
}

func (o *OmniPlayer[T]) Pause() {
	if p := o.Current(); p != nil {
		p.Pause()
	}
}

// Stop stops the active player. Errors it reports afterwards are dropped.
func (o *OmniPlayer[T]) Stop() {
	o.mu.Lock()
	o.stopped = true
	p := o.current
	o.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

func (o *OmniPlayer[T]) Seek(seconds float64) {
	if p := o.Current(); p != nil {
		p.Seek(seconds)
	}
}

func (o *OmniPlayer[T]) Resize(width, height int) {
	if p := o.Current(); p != nil {
		p.Resize(width, height)
	}
}

// Settings returns the applied settings.
func (o *OmniPlayer[T]) Settings() Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// Configure applies a whole set of settings. Volume and loop go to every
// player; autoplay, muted and hidden go to the active player only.
func (o *OmniPlayer[T]) Configure(s Settings) {
	o.configMu.Lock()
	defer o.configMu.Unlock()
	o.configure(s)
}

func (o *OmniPlayer[T]) configure(s Settings) {
	s.Volume = clampVolume(s.Volume)

	o.mu.Lock()
	o.settings = s
	all := make([]Player[T], len(o.players))
	for i, r := range o.players {
		all[i] = r.player
	}
	current := o.current
	o.mu.Unlock()

	for _, p := range all {
		p.SetVolume(s.Volume)
		p.SetLoop(s.Loop)
	}
	if current != nil {
		current.SetAutoplay(s.Autoplay)
		current.SetMuted(s.Muted)
		current.SetHidden(s.Hidden)
	}
}

func (o *OmniPlayer[T]) update(fn func(*Settings)) {
	o.configMu.Lock()
	defer o.configMu.Unlock()
	s := o.Settings()
	fn(&s)
	o.configure(s)
}

func (o *OmniPlayer[T]) SetAutoplay(autoplay bool) {
	o.update(func(s *Settings) { s.Autoplay = autoplay })
}
func (o *OmniPlayer[T]) SetMuted(muted bool)      { o.update(func(s *Settings) { s.Muted = muted }) }
func (o *OmniPlayer[T]) SetHidden(hidden bool)    { o.update(func(s *Settings) { s.Hidden = hidden }) }
func (o *OmniPlayer[T]) SetLoop(loop bool)        { o.update(func(s *Settings) { s.Loop = loop }) }
func (o *OmniPlayer[T]) SetVolume(volume float64) { o.update(func(s *Settings) { s.Volume = volume }) }

func (o *OmniPlayer[T]) ObserveCurrentTime() stream.Observable[float64] { return o.currentTime }
func (o *OmniPlayer[T]) ObserveDuration() stream.Observable[float64]    { return o.duration }
func (o *OmniPlayer[T]) ObserveEnded() stream.Observable[struct{}]      { return o.ended }
func (o *OmniPlayer[T]) ObservePlaying() stream.Observable[struct{}]    { return o.playing }
func (o *OmniPlayer[T]) ObserveError() stream.Observable[error]         { return o.errs }
