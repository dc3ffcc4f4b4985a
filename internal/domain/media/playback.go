package media

import (
	"time"

	"github.com/google/uuid"
)

// PlaylistItem is an item placed in the playlist. ID tells apart two entries
// of the same track.
type PlaylistItem struct {
	Item
	ID string `json:"id"`
}

// NewPlaylistItem copies item and gives it a fresh id.
func NewPlaylistItem(item *Item) *PlaylistItem {
	return &PlaylistItem{Item: *item, ID: uuid.NewString()}
}

// PlaybackState is a snapshot of the current playback.
type PlaybackState struct {
	CurrentItem *PlaylistItem `json:"currentItem"`
	CurrentTime float64       `json:"currentTime"`
	StartedAt   time.Time     `json:"startedAt"`
	EndedAt     time.Time     `json:"endedAt"`
	Duration    float64       `json:"duration"`
	Paused      bool          `json:"paused"`
	PlaybackID  string        `json:"playbackId"`
	MiniPlayer  bool          `json:"miniPlayer"`
}

// NewPlaybackState returns the idle state.
func NewPlaybackState() PlaybackState {
	return PlaybackState{Paused: true}
}

// Reset returns the state to idle. Whether playback lives in the mini player
// is kept.
func (s *PlaybackState) Reset() {
	miniPlayer := s.MiniPlayer
	*s = NewPlaybackState()
	s.MiniPlayer = miniPlayer
}
