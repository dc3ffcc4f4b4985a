// Package miniplayer hands playback over to a second window and back.
//
// The opener side runs a Controller. It suspends local playback, opens the
// mini player window and transfers the playback state to it. While the mini
// player is active, commands are posted to it through a RemotePlayer and the
// window reports state changes back. The window side runs a Remote, which
// executes commands against its own playback.
//
// Every message travels as {name: "mini-player-<command|event>", data} and is
// accepted only from the expected origin and window.
package miniplayer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/player"
)

const namePrefix = "mini-player-"

var (
	// ErrAlreadyOpen is returned by Open when the mini player is not closed.
	ErrAlreadyOpen = errors.New("mini player already open")

	// ErrNotOpen is returned when there is no mini player window.
	ErrNotOpen = errors.New("mini player not open")

	// ErrWindowClosed is returned when posting to a closed window.
	ErrWindowClosed = errors.New("window closed")
)

// Command is sent from the opener to the mini player.
type Command string

const (
	CommandClose            Command = "close"
	CommandLoad             Command = "load"
	CommandLoadNext         Command = "loadNext"
	CommandLock             Command = "lock"
	CommandUnlock           Command = "unlock"
	CommandPause            Command = "pause"
	CommandPlay             Command = "play"
	CommandStop             Command = "stop"
	CommandSeek             Command = "seek"
	CommandSetAutoplay      Command = "set-autoplay"
	CommandSetHidden        Command = "set-hidden"
	CommandSetLoop          Command = "set-loop"
	CommandSetMuted         Command = "set-muted"
	CommandSetVolume        Command = "set-volume"
	CommandResize           Command = "resize"
	CommandTransferPlayback Command = "transfer-playback"
	CommandNextVisualizer   Command = "next-visualizer"
	CommandRefreshTheme     Command = "refresh-theme"
)

// Event is sent from the mini player to the opener.
type Event string

const (
	EventLoaded              Event = "loaded"
	EventUnloaded            Event = "unloaded"
	EventClosed              Event = "closed"
	EventPlaying             Event = "playing"
	EventEnded               Event = "ended"
	EventError               Event = "error"
	EventPrev                Event = "prev"
	EventNext                Event = "next"
	EventPlaybackStateChange Event = "playback-state-change"
	EventVisualizerChange    Event = "visualizer-change"
)

// Message is the wire form of a command or event.
type Message struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

func newMessage(name string, data any) (Message, error) {
	msg := Message{Name: namePrefix + name}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	msg.Data = raw
	return msg, nil
}

// CommandMessage builds a command message.
func CommandMessage(c Command, data any) (Message, error) {
	return newMessage(string(c), data)
}

// EventMessage builds an event message.
func EventMessage(e Event, data any) (Message, error) {
	return newMessage(string(e), data)
}

// Kind returns the name without the mini player prefix, or false for
// messages that do not belong to the protocol.
func (m Message) Kind() (string, bool) {
	return strings.CutPrefix(m.Name, namePrefix)
}

// Decode unmarshals the message data into v.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: no data", m.Name)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%s: %w", m.Name, err)
	}
	return nil
}

// Envelope is a message with its sender.
type Envelope struct {
	Origin  string
	Source  string
	Message Message
}

// Window is an opened mini player window.
type Window interface {
	ID() string
	Origin() string
	Post(msg Message) error
	Closed() bool
	Close() error
}

// Transfer is the payload of transfer-playback.
type Transfer struct {
	State    media.PlaybackState `json:"state"`
	Settings player.Settings     `json:"settings"`
}

// Size is the payload of resize.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ErrorData is the payload of the error event.
type ErrorData struct {
	Message string `json:"message"`
}

// RemoteError is an error reported by the mini player.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "mini player: " + e.Message
}
