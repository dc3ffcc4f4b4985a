// Package media defines the media objects held by pagers, players and the playlist.
package media

import (
	"time"

	"github.com/edumarques81/ampcast-core/internal/domain/pager"
)

// ItemType identifies the kind of a media object.
type ItemType string

const (
	ItemTypeMedia    ItemType = "media"
	ItemTypeAlbum    ItemType = "album"
	ItemTypeArtist   ItemType = "artist"
	ItemTypePlaylist ItemType = "playlist"
	ItemTypeFolder   ItemType = "folder"
)

// MediaType distinguishes audio from video content.
type MediaType string

const (
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
)

// PlaybackType tells players how an item is delivered.
type PlaybackType string

const (
	PlaybackDirect PlaybackType = "direct"
	PlaybackHLS    PlaybackType = "hls"
	PlaybackDASH   PlaybackType = "dash"
	PlaybackIFrame PlaybackType = "iframe"
)

// LinearType marks broadcast content. Empty means on demand.
type LinearType string

const (
	LinearNone       LinearType = ""
	LinearStation    LinearType = "station"
	LinearProgramme  LinearType = "programme"
	LinearMusicTrack LinearType = "music-track"
	LinearNonStop    LinearType = "non-stop"
)

// Thumbnail is one size of an artwork image.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Blob is in-memory content, such as a dropped local file. It must be turned
// into an object URL before an item crosses into another window.
type Blob struct {
	Type string `json:"type"`
	Data []byte `json:"-"`
}

// Object is any media object. Equality is by Key.
type Object interface {
	pager.Item
	ItemType() ItemType
	Info() *Base
}

// Base holds the fields shared by every media object.
type Base struct {
	Src         string      `json:"src"`
	Title       string      `json:"title"`
	Thumbnails  []Thumbnail `json:"thumbnails,omitempty"`
	ExternalURL string      `json:"externalUrl,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Key returns the object's src.
func (b *Base) Key() string { return b.Src }

// Info returns the shared fields.
func (b *Base) Info() *Base { return b }

// Item is a playable track, video or stream.
type Item struct {
	Base
	MediaType    MediaType    `json:"mediaType"`
	PlaybackType PlaybackType `json:"playbackType,omitempty"`
	LinearType   LinearType   `json:"linearType,omitempty"`
	Duration     float64      `json:"duration"` // seconds, 0 when unknown or live
	Artists      []string     `json:"artists,omitempty"`
	AlbumArtist  string       `json:"albumArtist,omitempty"`
	Album        string       `json:"album,omitempty"`
	Track        int          `json:"track,omitempty"`
	Disc         int          `json:"disc,omitempty"`
	Year         int          `json:"year,omitempty"`
	Genres       []string     `json:"genres,omitempty"`
	StreamURL    string       `json:"streamUrl,omitempty"`
	Quality      string       `json:"quality,omitempty"` // e.g. "24/192"
	PlayedAt     time.Time    `json:"playedAt,omitempty"`
	Blob         *Blob        `json:"blob,omitempty"`
}

func (*Item) ItemType() ItemType { return ItemTypeMedia }

// IsLive reports whether the item is broadcast content, which has no
// position to resume.
func (i *Item) IsLive() bool { return i.LinearType != LinearNone }

// Clone returns a shallow copy of the item.
func (i *Item) Clone() *Item {
	c := *i
	return &c
}

// Album is a release with a nested track pager.
type Album struct {
	Base
	Artist     string             `json:"artist,omitempty"`
	Year       int                `json:"year,omitempty"`
	TrackCount int                `json:"trackCount,omitempty"`
	Pager      pager.Pager[*Item] `json:"-"`
}

func (*Album) ItemType() ItemType { return ItemTypeAlbum }

// ChildPager exposes the album's tracks.
func (a *Album) ChildPager() pager.Child {
	if a.Pager == nil {
		return nil
	}
	return a.Pager
}

// Artist has a nested album pager.
type Artist struct {
	Base
	Genres []string            `json:"genres,omitempty"`
	Pager  pager.Pager[*Album] `json:"-"`
}

func (*Artist) ItemType() ItemType { return ItemTypeArtist }

func (a *Artist) ChildPager() pager.Child {
	if a.Pager == nil {
		return nil
	}
	return a.Pager
}

// Playlist has a nested track pager. TrackCount is zero until known; a
// parent pager fills it in from the nested pager's size.
type Playlist struct {
	Base
	Owner      string             `json:"owner,omitempty"`
	TrackCount int                `json:"trackCount,omitempty"`
	Pager      pager.Pager[*Item] `json:"-"`
}

func (*Playlist) ItemType() ItemType { return ItemTypePlaylist }

func (p *Playlist) ChildPager() pager.Child {
	if p.Pager == nil {
		return nil
	}
	return p.Pager
}

// NeedsTrackCount reports whether the track count is still unknown.
func (p *Playlist) NeedsTrackCount() bool { return p.TrackCount == 0 }

// WithTrackCount returns a copy of the playlist with the given track count.
func (p *Playlist) WithTrackCount(n int) any {
	c := *p
	c.TrackCount = n
	return &c
}

// Folder is a directory of mixed objects.
type Folder struct {
	Base
	FileName string              `json:"fileName,omitempty"`
	Path     string              `json:"path,omitempty"`
	Pager    pager.Pager[Object] `json:"-"`
}

func (*Folder) ItemType() ItemType { return ItemTypeFolder }

func (f *Folder) ChildPager() pager.Child {
	if f.Pager == nil {
		return nil
	}
	return f.Pager
}
