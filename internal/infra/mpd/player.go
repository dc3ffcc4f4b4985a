package mpd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// ErrNoURI is returned by Load for items MPD has no way to reach.
var ErrNoURI = errors.New("item has no MPD uri")

// pollInterval is how often the position is read while playing. MPD does not
// push elapsed time.
const pollInterval = time.Second

// resolveTimeout bounds a stream URL lookup during Load.
const resolveTimeout = 15 * time.Second

// Resolver finds stream URLs for items of other services.
type Resolver interface {
	Handles(src string) bool
	Resolve(ctx context.Context, src string) (url, quality string, err error)
}

// Player plays items through MPD. Only the loaded item is kept in the MPD
// queue.
type Player struct {
	client *Client

	mu         sync.Mutex
	autoplay   bool
	muted      bool
	volume     float64
	state      string
	ignoreStop bool
	resolvers  []Resolver

	currentTime *stream.Subject[float64]
	duration    *stream.Subject[float64]
	ended       *stream.Subject[struct{}]
	playing     *stream.Subject[struct{}]
	errs        *stream.Subject[error]
}

var _ player.Player[*media.PlaylistItem] = (*Player)(nil)

// NewPlayer creates a player on client. Call Run to receive playback events.
func NewPlayer(client *Client) *Player {
	return &Player{
		client:      client,
		volume:      1,
		state:       "stop",
		currentTime: stream.NewSubject[float64](),
		duration:    stream.NewSubject[float64](),
		ended:       stream.NewSubject[struct{}](),
		playing:     stream.NewSubject[struct{}](),
		errs:        stream.NewSubject[error](),
	}
}

// CanPlay reports whether MPD can reach item: MPD library tracks and
// anything with a stream URL.
func CanPlay(item *media.PlaylistItem) bool {
	return itemURI(item) != ""
}

// AddResolver lets the player load items r handles.
func (p *Player) AddResolver(r Resolver) {
	p.mu.Lock()
	p.resolvers = append(p.resolvers, r)
	p.mu.Unlock()
}

// CanPlay is CanPlay extended to items a resolver handles.
func (p *Player) CanPlay(item *media.PlaylistItem) bool {
	return CanPlay(item) || (item != nil && p.resolverFor(item.Src) != nil)
}

func (p *Player) resolverFor(src string) Resolver {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.resolvers {
		if r.Handles(src) {
			return r
		}
	}
	return nil
}

// resolveURI returns the uri to queue for item.
func (p *Player) resolveURI(item *media.PlaylistItem) (string, error) {
	if uri := itemURI(item); uri != "" {
		return uri, nil
	}
	if item == nil {
		return "", ErrNoURI
	}
	r := p.resolverFor(item.Src)
	if r == nil {
		return "", fmt.Errorf("%w: %s", ErrNoURI, item.Src)
	}
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	uri, quality, err := r.Resolve(ctx, item.Src)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", item.Src, err)
	}
	log.Debug().Str("src", item.Src).Str("quality", quality).Msg("Resolved stream URL")
	return uri, nil
}

func itemURI(item *media.PlaylistItem) string {
	if item == nil {
		return ""
	}
	if src, err := media.ParseSrc(item.Src); err == nil && src.Service == Service && src.Type == "track" {
		return src.ID
	}
	return item.StreamURL
}

// Run follows MPD's player and mixer subsystems until ctx is done.
func (p *Player) Run(ctx context.Context) error {
	events, err := p.client.Watch(ctx, "player", "mixer")
	if err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	p.refresh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			p.refresh()
		case <-ticker.C:
			if p.isPlaying() {
				p.refresh()
			}
		}
	}
}

func (p *Player) isPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == "play"
}

func (p *Player) refresh() {
	status, err := p.client.Status()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read MPD status")
		return
	}
	p.observe(status)
}

// observe turns a status snapshot into player events. A song running out
// ends playback, or fails it when MPD reports an error. Stops we caused
// ourselves do not count.
func (p *Player) observe(status mpd.Attrs) {
	state := status["state"]
	if state != "play" && state != "pause" {
		state = "stop"
	}

	p.mu.Lock()
	prev := p.state
	p.state = state
	stopped := prev == "play" && state == "stop" && !p.ignoreStop
	if state == "play" {
		p.ignoreStop = false
	}
	p.mu.Unlock()

	if elapsed, err := strconv.ParseFloat(status["elapsed"], 64); err == nil {
		p.currentTime.Next(elapsed)
	}
	if d, err := strconv.ParseFloat(status["duration"], 64); err == nil && d > 0 {
		p.duration.Next(d)
	}

	switch {
	case state == "play" && prev != "play":
		p.playing.Next(struct{}{})
	case stopped && status["error"] != "":
		p.errs.Next(fmt.Errorf("mpd: %s", status["error"]))
	case stopped:
		log.Debug().Msg("MPD playback ended")
		p.ended.Next(struct{}{})
	}
}

// expectStop marks the next stop as one we asked for.
func (p *Player) expectStop() {
	p.mu.Lock()
	p.ignoreStop = true
	p.mu.Unlock()
}

func (p *Player) Load(item *media.PlaylistItem) error {
	uri, err := p.resolveURI(item)
	if err != nil {
		return err
	}

	p.expectStop()
	if err := p.client.Clear(); err != nil {
		return fmt.Errorf("failed to clear MPD queue: %w", err)
	}
	id, err := p.client.AddID(uri)
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", uri, err)
	}
	log.Info().Str("uri", uri).Int("id", id).Msg("Loaded into MPD")

	p.mu.Lock()
	autoplay := p.autoplay
	p.mu.Unlock()

	if autoplay {
		return p.client.PlayID(id)
	}
	return nil
}

func (p *Player) Play() {
	p.report(p.client.Play(-1))
}

func (p *Player) Pause() {
	p.report(p.client.Pause(true))
}

func (p *Player) Stop() {
	p.expectStop()
	p.report(p.client.Stop())
}

func (p *Player) Seek(seconds float64) {
	p.report(p.client.Seek(seconds))
}

// Resize has nothing to do for an audio-only player.
func (p *Player) Resize(width, height int) {}

// SetHidden has nothing to do for an audio-only player.
func (p *Player) SetHidden(hidden bool) {}

func (p *Player) SetAutoplay(autoplay bool) {
	p.mu.Lock()
	p.autoplay = autoplay
	p.mu.Unlock()
}

func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
	p.applyVolume()
}

func (p *Player) SetVolume(volume float64) {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.applyVolume()
}

// SetLoop repeats the loaded song.
func (p *Player) SetLoop(loop bool) {
	if err := p.client.SetRepeat(loop); err != nil {
		log.Warn().Err(err).Msg("Failed to set MPD repeat")
		return
	}
	if err := p.client.SetSingle(loop); err != nil {
		log.Warn().Err(err).Msg("Failed to set MPD single")
	}
}

// applyVolume maps volume 0..1 to MPD's 0-100; muted is volume 0.
func (p *Player) applyVolume() {
	p.mu.Lock()
	vol := int(math.Round(p.volume * 100))
	if p.muted {
		vol = 0
	}
	p.mu.Unlock()

	if err := p.client.SetVolume(vol); err != nil {
		log.Warn().Err(err).Int("volume", vol).Msg("Failed to set MPD volume")
	}
}

func (p *Player) report(err error) {
	if err != nil {
		p.errs.Next(err)
	}
}

func (p *Player) ObserveCurrentTime() stream.Observable[float64] { return p.currentTime }
func (p *Player) ObserveDuration() stream.Observable[float64]    { return p.duration }
func (p *Player) ObserveEnded() stream.Observable[struct{}]      { return p.ended }
func (p *Player) ObservePlaying() stream.Observable[struct{}]    { return p.playing }
func (p *Player) ObserveError() stream.Observable[error]         { return p.errs }
