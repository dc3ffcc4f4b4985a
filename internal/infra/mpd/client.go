// Package mpd connects the player core to a Music Player Daemon: a client
// wrapper with reconnection, an MPD-backed Player and page sources for the
// queue, the music directory and the album list.
package mpd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// ErrNotConnected is returned by Ping before Connect.
var ErrNotConnected = errors.New("not connected")

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu       sync.RWMutex
	client   *mpd.Client
	watcher  *mpd.Watcher
	addr     string
	password string
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		addr:     fmt.Sprintf("%s:%d", host, port),
		password: password,
	}
}

// Addr returns the host:port the client dials.
func (c *Client) Addr() string { return c.addr }

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	log.Info().Str("addr", c.addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks connection and reconnects if needed.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// do runs fn on a live connection.
func (c *Client) do(fn func(*mpd.Client) error) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return ErrNotConnected
	}
	return fn(c.client)
}

// Close closes the MPD connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return ErrNotConnected
	}
	return c.client.Ping()
}

// Status returns the current MPD status.
func (c *Client) Status() (attrs mpd.Attrs, err error) {
	err = c.do(func(m *mpd.Client) error {
		attrs, err = m.Status()
		return err
	})
	return attrs, err
}

// CurrentSong returns the currently playing song.
func (c *Client) CurrentSong() (attrs mpd.Attrs, err error) {
	err = c.do(func(m *mpd.Client) error {
		attrs, err = m.CurrentSong()
		return err
	})
	return attrs, err
}

// Play starts playback. If pos is -1, resumes current track.
func (c *Client) Play(pos int) error {
	if pos < 0 {
		pos = -1
	}
	return c.do(func(m *mpd.Client) error { return m.Play(pos) })
}

// PlayID starts playback of the queue entry with the given id.
func (c *Client) PlayID(id int) error {
	return c.do(func(m *mpd.Client) error { return m.PlayID(id) })
}

// Pause sets the pause state.
func (c *Client) Pause(pause bool) error {
	return c.do(func(m *mpd.Client) error { return m.Pause(pause) })
}

// Stop stops playback.
func (c *Client) Stop() error {
	return c.do(func(m *mpd.Client) error { return m.Stop() })
}

// Seek seeks within the current song.
func (c *Client) Seek(seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	pos := strconv.FormatFloat(seconds, 'f', 3, 64)
	return c.do(func(m *mpd.Client) error {
		return m.Command("seekcur %s", pos).OK()
	})
}

// SetVolume sets the volume (0-100).
func (c *Client) SetVolume(vol int) error {
	if vol < 0 {
		vol = 0
	} else if vol > 100 {
		vol = 100
	}
	return c.do(func(m *mpd.Client) error { return m.SetVolume(vol) })
}

// SetRepeat sets repeat mode.
func (c *Client) SetRepeat(on bool) error {
	return c.do(func(m *mpd.Client) error { return m.Repeat(on) })
}

// SetSingle sets single mode (repeat single song).
func (c *Client) SetSingle(on bool) error {
	return c.do(func(m *mpd.Client) error { return m.Single(on) })
}

// PlaylistInfo returns the queue entries in [start, end).
func (c *Client) PlaylistInfo(start, end int) (songs []mpd.Attrs, err error) {
	err = c.do(func(m *mpd.Client) error {
		songs, err = m.PlaylistInfo(start, end)
		return err
	})
	return songs, err
}

// Clear clears the current queue.
func (c *Client) Clear() error {
	return c.do(func(m *mpd.Client) error { return m.Clear() })
}

// Add adds a URI to the queue.
func (c *Client) Add(uri string) error {
	return c.do(func(m *mpd.Client) error { return m.Add(uri) })
}

// AddID adds a URI to the end of the queue and returns its queue id.
func (c *Client) AddID(uri string) (id int, err error) {
	err = c.do(func(m *mpd.Client) error {
		id, err = m.AddID(uri, -1)
		return err
	})
	return id, err
}

// ListInfo lists contents of a directory.
func (c *Client) ListInfo(uri string) (entries []mpd.Attrs, err error) {
	err = c.do(func(m *mpd.Client) error {
		entries, err = m.ListInfo(uri)
		return err
	})
	return entries, err
}

// PlaylistContents lists the songs of a stored playlist.
func (c *Client) PlaylistContents(name string) (songs []mpd.Attrs, err error) {
	err = c.do(func(m *mpd.Client) error {
		songs, err = m.PlaylistContents(name)
		return err
	})
	return songs, err
}

// AlbumArt returns the cover file stored in the directory of uri.
func (c *Client) AlbumArt(uri string) (data []byte, err error) {
	err = c.do(func(m *mpd.Client) error {
		data, err = m.AlbumArt(uri)
		return err
	})
	return data, err
}

// ReadPicture returns the picture embedded in the tags of uri.
func (c *Client) ReadPicture(uri string) (data []byte, err error) {
	err = c.do(func(m *mpd.Client) error {
		data, err = m.ReadPicture(uri)
		return err
	})
	return data, err
}

// AlbumInfo represents an album with its metadata from MPD database.
type AlbumInfo struct {
	Album       string
	AlbumArtist string
}

// ListAlbums returns all unique albums from the MPD database grouped by album artist.
func (c *Client) ListAlbums() ([]AlbumInfo, error) {
	var attrs []mpd.Attrs
	err := c.do(func(m *mpd.Client) (err error) {
		// Each entry starts with an "Album:" line.
		attrs, err = m.Command("list album group albumartist").AttrsList("Album")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}

	var albums []AlbumInfo
	for _, attr := range attrs {
		if album := attr["Album"]; album != "" {
			albums = append(albums, AlbumInfo{Album: album, AlbumArtist: attr["AlbumArtist"]})
		}
	}
	return albums, nil
}

// FindAlbumTracks finds all tracks for a specific album and optionally album artist.
func (c *Client) FindAlbumTracks(album, albumArtist string) (songs []mpd.Attrs, err error) {
	err = c.do(func(m *mpd.Client) error {
		var cmd *mpd.Command
		if albumArtist != "" {
			cmd = m.Command("find album %s albumartist %s", album, albumArtist)
		} else {
			cmd = m.Command("find album %s", album)
		}
		songs, err = cmd.AttrsList("file")
		return err
	})
	return songs, err
}

// Watch reports MPD subsystem changes until ctx is done.
func (c *Client) Watch(ctx context.Context, subsystems ...string) (<-chan string, error) {
	watcher, err := mpd.NewWatcher("tcp", c.addr, c.password, subsystems...)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	c.mu.Lock()
	c.watcher = watcher
	c.mu.Unlock()

	ch := make(chan string, 10)

	go func() {
		defer close(ch)
		defer c.closeWatcher(watcher)
		for {
			select {
			case <-ctx.Done():
				return
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				select {
				case ch <- subsystem:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("MPD watcher error")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// closeWatcher closes w unless Close already has.
func (c *Client) closeWatcher(w *mpd.Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watcher == w {
		w.Close()
		c.watcher = nil
	}
}
