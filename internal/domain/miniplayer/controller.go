package miniplayer

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

const (
	DefaultWindowName     = "ampcast-mini-player"
	DefaultReadyTimeout   = 2 * time.Second
	DefaultDriftTolerance = 2 * time.Second
	DefaultHeartbeatDelay = 500 * time.Millisecond
)

// State is the controller's hand-off state.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Opener opens mini player windows.
type Opener interface {
	Open(ctx context.Context, name string) (Window, error)
}

// ObjectURLs turns in-memory content into a URL another window can load.
type ObjectURLs interface {
	ObjectURL(blob *media.Blob) string
}

// Config tunes the hand-off.
type Config struct {
	// Origin is the only origin messages are accepted from.
	Origin         string
	WindowName     string
	ReadyTimeout   time.Duration
	DriftTolerance time.Duration
	HeartbeatDelay time.Duration
}

// DefaultConfig returns the standard timings for origin.
func DefaultConfig(origin string) Config {
	return Config{
		Origin:         origin,
		WindowName:     DefaultWindowName,
		ReadyTimeout:   DefaultReadyTimeout,
		DriftTolerance: DefaultDriftTolerance,
		HeartbeatDelay: DefaultHeartbeatDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.WindowName == "" {
		c.WindowName = DefaultWindowName
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.DriftTolerance <= 0 {
		c.DriftTolerance = DefaultDriftTolerance
	}
	if c.HeartbeatDelay <= 0 {
		c.HeartbeatDelay = DefaultHeartbeatDelay
	}
	return c
}

// Controller runs the opener side of the hand-off.
type Controller struct {
	cfg      Config
	opener   Opener
	playback *player.Playback
	urls     ObjectURLs
	beat     *heartbeat

	// opMu serializes incoming messages with activation and finish.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	window   Window
	remote   *RemotePlayer
	snapshot media.PlaybackState
	reported *media.PlaybackState

	stateS     *stream.Subject[State]
	reports    *stream.Subject[media.PlaybackState]
	navigation *stream.Subject[Event]
	visualizer *stream.Subject[string]
}

// NewController creates a closed controller. urls may be nil when items
// never carry in-memory content.
func NewController(cfg Config, opener Opener, playback *player.Playback, urls ObjectURLs) *Controller {
	c := &Controller{
		cfg:        cfg.withDefaults(),
		opener:     opener,
		playback:   playback,
		urls:       urls,
		stateS:     stream.NewBehavior(StateClosed, stream.Distinct[State]()),
		reports:    stream.NewSubject[media.PlaybackState](),
		navigation: stream.NewSubject[Event](),
		visualizer: stream.NewReplay[string](),
	}
	c.beat = newHeartbeat(c.cfg.HeartbeatDelay, func() {
		log.Info().Msg("Mini player stopped sending heartbeats")
		c.opMu.Lock()
		defer c.opMu.Unlock()
		c.finishLocked(false)
	})
	return c
}

// State returns the current hand-off state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) ObserveState() stream.Observable[State] { return c.stateS }

// ObserveNavigation emits prev and next requests made in the mini player.
func (c *Controller) ObserveNavigation() stream.Observable[Event] { return c.navigation }

// ObserveVisualizer emits the name of the visualizer the mini player shows.
func (c *Controller) ObserveVisualizer() stream.Observable[string] { return c.visualizer }

// Remote returns the player posting to the open window, or nil.
func (c *Controller) Remote() *RemotePlayer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.stateS.Next(s)
}

// Open suspends local playback, opens the mini player and transfers playback
// to it. It waits until the mini player reports the transferred state or
// until the ready timeout passes, whichever comes first.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = StateOpening
	c.mu.Unlock()
	c.stateS.Next(StateOpening)

	snapshot := c.playback.Suspend()
	log.Info().Str("playbackId", snapshot.PlaybackID).Msg("Opening mini player")

	window, err := c.opener.Open(ctx, c.cfg.WindowName)
	if err != nil {
		c.abort(snapshot)
		return fmt.Errorf("failed to open mini player: %w", err)
	}
	remote := NewRemotePlayer(window)

	c.mu.Lock()
	c.window = window
	c.remote = remote
	c.snapshot = snapshot
	c.reported = nil
	c.mu.Unlock()

	ready := make(chan struct{})
	var once sync.Once
	sub := c.reports.Subscribe(func(s media.PlaybackState) {
		if caughtUp(snapshot, s, c.cfg.DriftTolerance) {
			once.Do(func() { close(ready) })
		}
	})
	defer sub.Unsubscribe()

	transfer := Transfer{State: c.portable(snapshot), Settings: c.playback.Settings()}
	if err := remote.send(CommandTransferPlayback, transfer); err != nil {
		c.opMu.Lock()
		c.finishLocked(false)
		c.opMu.Unlock()
		return fmt.Errorf("failed to transfer playback: %w", err)
	}

	timer := time.NewTimer(c.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		log.Debug().Msg("Mini player ready")
	case <-timer.C:
		log.Debug().Dur("timeout", c.cfg.ReadyTimeout).Msg("Mini player did not confirm, continuing")
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateOpening {
		c.mu.Unlock()
		return ErrNotOpen
	}
	c.state = StateActive
	reported := c.reported
	c.mu.Unlock()

	c.playback.Redirect(remote)
	c.playback.SetMiniPlayer(true)
	if reported != nil {
		c.playback.Sync(*reported)
	}
	c.stateS.Next(StateActive)

	log.Info().Str("window", window.ID()).Msg("Mini player active")
	return nil
}

// caughtUp reports whether the mini player state matches the transferred
// one: same item and paused flag, with the position within tolerance when
// paused or at least as far along when playing.
func caughtUp(want, got media.PlaybackState, tolerance time.Duration) bool {
	if got.Paused != want.Paused || srcOf(got) != srcOf(want) {
		return false
	}
	if want.Paused {
		return math.Abs(got.CurrentTime-want.CurrentTime) <= tolerance.Seconds()
	}
	return got.CurrentTime >= want.CurrentTime
}

func srcOf(s media.PlaybackState) string {
	if s.CurrentItem == nil {
		return ""
	}
	return s.CurrentItem.Src
}

// portable replaces in-memory content with an object URL.
func (c *Controller) portable(s media.PlaybackState) media.PlaybackState {
	if s.CurrentItem == nil || s.CurrentItem.Blob == nil {
		return s
	}
	item := *s.CurrentItem
	if c.urls != nil {
		item.StreamURL = c.urls.ObjectURL(item.Blob)
	} else {
		log.Warn().Str("src", item.Src).Msg("No object URL registry for blob item")
	}
	item.Blob = nil
	s.CurrentItem = &item
	return s
}

func (c *Controller) abort(snapshot media.PlaybackState) {
	c.playback.Redirect(nil)
	if err := c.playback.Restore(snapshot); err != nil {
		log.Warn().Err(err).Msg("Failed to restore playback")
	}
	c.setState(StateClosed)
}

// Close tells the mini player to close and takes playback back.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.finishLocked(true) {
		return ErrNotOpen
	}
	return nil
}

// finishLocked takes playback back from the mini player. The item is reloaded
// paused at the last position the mini player reported. The playback id and
// start time are kept when the mini player was still on the transferred
// entry. It must be called with opMu held.
func (c *Controller) finishLocked(sendClose bool) bool {
	c.mu.Lock()
	if c.state != StateOpening && c.state != StateActive {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosing
	window := c.window
	remote := c.remote
	snapshot := c.snapshot
	reported := c.reported
	c.mu.Unlock()
	c.stateS.Next(StateClosing)
	c.beat.Beat()

	if sendClose && remote != nil {
		remote.send(CommandClose, nil)
	}

	restore := snapshot
	if reported != nil {
		restore = *reported
		if sameEntry(reported.CurrentItem, snapshot.CurrentItem) {
			restore.PlaybackID = snapshot.PlaybackID
			restore.StartedAt = snapshot.StartedAt
		}
	}

	c.playback.Redirect(nil)
	c.playback.SetMiniPlayer(false)
	if err := c.playback.Restore(restore); err != nil {
		log.Warn().Err(err).Msg("Failed to restore playback")
	}

	if window != nil && !window.Closed() {
		if err := window.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close mini player window")
		}
	}

	c.mu.Lock()
	c.state = StateClosed
	c.window = nil
	c.remote = nil
	c.reported = nil
	c.mu.Unlock()
	c.stateS.Next(StateClosed)

	log.Info().Msg("Mini player closed")
	return true
}

func sameEntry(a, b *media.PlaylistItem) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID == b.ID && a.Src == b.Src
}

// Receive handles a message posted by the mini player window. Messages from
// any other origin or window are dropped.
func (c *Controller) Receive(env Envelope) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	window, remote, state := c.window, c.remote, c.state
	c.mu.Unlock()

	if window == nil {
		log.Debug().Str("name", env.Message.Name).Msg("Mini player message with no window open")
		return
	}
	if env.Origin != c.cfg.Origin || env.Source != window.ID() {
		log.Warn().Str("origin", env.Origin).Str("source", env.Source).Msg("Rejected mini player message")
		return
	}
	kind, ok := env.Message.Kind()
	if !ok {
		return
	}

	switch event := Event(kind); event {
	case EventLoaded:
		c.beat.Beat()
	case EventUnloaded:
		c.beat.Arm()
	case EventClosed:
		c.finishLocked(false)
	case EventPlaybackStateChange:
		var s media.PlaybackState
		if err := env.Message.Decode(&s); err != nil {
			log.Warn().Err(err).Msg("Invalid mini player state")
			return
		}
		c.mu.Lock()
		if c.state == StateOpening || c.state == StateActive {
			c.reported = &s
		}
		c.mu.Unlock()
		c.reports.Next(s)
		if state == StateActive {
			c.playback.Sync(s)
			remote.handle(event, env.Message)
		}
	case EventPlaying, EventEnded, EventError:
		if state == StateActive {
			remote.handle(event, env.Message)
		}
	case EventPrev, EventNext:
		c.navigation.Next(event)
	case EventVisualizerChange:
		var name string
		if err := env.Message.Decode(&name); err != nil {
			log.Warn().Err(err).Msg("Invalid visualizer name")
			return
		}
		c.visualizer.Next(name)
	default:
		log.Debug().Str("name", env.Message.Name).Msg("Unknown mini player event")
	}
}
