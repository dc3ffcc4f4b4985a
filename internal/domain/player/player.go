// Package player provides the playback contract, the OmniPlayer multiplexer
// and the Playback coordinator that owns the playback state.
package player

import (
	"errors"
	"fmt"

	"github.com/edumarques81/ampcast-core/internal/domain/stream"
)

// ErrNoPlayer is reported when no registered player can play an item.
var ErrNoPlayer = errors.New("no player found")

// Player is a playback engine.
type Player[T any] interface {
	Load(item T) error
	Play()
	Pause()
	Stop()
	Seek(seconds float64)
	Resize(width, height int)

	SetAutoplay(autoplay bool)
	SetMuted(muted bool)
	SetHidden(hidden bool)
	SetLoop(loop bool)
	SetVolume(volume float64)

	ObserveCurrentTime() stream.Observable[float64]
	ObserveDuration() stream.Observable[float64]
	ObserveEnded() stream.Observable[struct{}]
	ObservePlaying() stream.Observable[struct{}]
	ObserveError() stream.Observable[error]
}

// Settings are the properties shared by every player.
type Settings struct {
	Autoplay bool    `json:"autoplay"`
	Muted    bool    `json:"muted"`
	Hidden   bool    `json:"hidden"`
	Loop     bool    `json:"loop"`
	Volume   float64 `json:"volume"` // 0..1
}

// DefaultSettings returns settings for a fresh player.
func DefaultSettings() Settings {
	return Settings{Volume: 1}
}

// clampVolume limits volume to 0..1.
func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}

// LoadError wraps a failure to load an item.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
