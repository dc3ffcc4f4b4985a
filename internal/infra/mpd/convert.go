package mpd

import (
	"path"
	"strconv"
	"strings"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
)

// Service is the src prefix of MPD objects.
const Service = "mpd"

// TrackSrc returns the src of the song at uri.
func TrackSrc(uri string) string { return media.NewSrc(Service, "track", uri) }

// FolderSrc returns the src of the directory at uri.
func FolderSrc(uri string) string { return media.NewSrc(Service, "folder", uri) }

// AlbumSrc returns the src of an album.
func AlbumSrc(album, albumArtist string) string {
	return media.NewSrc(Service, "album", albumArtist+"/"+album)
}

// toItem builds a media item from song attributes. The title falls back to
// the file name.
func toItem(song mpd.Attrs) *media.Item {
	file := song["file"]
	title := song["Title"]
	if title == "" {
		title = song["Name"]
	}
	if title == "" {
		title = path.Base(file)
	}

	item := &media.Item{
		Base: media.Base{
			Src:   TrackSrc(file),
			Title: title,
		},
		MediaType:    media.MediaTypeAudio,
		PlaybackType: media.PlaybackDirect,
		AlbumArtist:  song["AlbumArtist"],
		Album:        song["Album"],
		Duration:     songDuration(song),
		Track:        leadingInt(song["Track"]),
		Disc:         leadingInt(song["Disc"]),
		Year:         leadingInt(song["Date"]),
	}
	if artist := song["Artist"]; artist != "" {
		item.Artists = []string{artist}
	}
	if genre := song["Genre"]; genre != "" {
		item.Genres = []string{genre}
	}
	if isStream(file) {
		item.StreamURL = file
		item.LinearType = media.LinearStation
		item.Duration = 0
	}
	item.Quality = parseQuality(song["Format"])
	if item.Quality == "" {
		item.Quality = trackType(file)
	}
	return item
}

// toObject builds a media object from a directory listing entry.
func toObject(entry mpd.Attrs) media.Object {
	if dir, ok := entry["directory"]; ok {
		return &media.Folder{
			Base:     media.Base{Src: FolderSrc(dir), Title: path.Base(dir)},
			FileName: path.Base(dir),
			Path:     dir,
		}
	}
	if name, ok := entry["playlist"]; ok {
		return &media.Playlist{
			Base: media.Base{Src: media.NewSrc(Service, "playlist", name), Title: path.Base(name)},
		}
	}
	if _, ok := entry["file"]; ok {
		return toItem(entry)
	}
	return nil
}

// songDuration prefers the precise "duration" over the rounded "Time".
func songDuration(song mpd.Attrs) float64 {
	if d, err := strconv.ParseFloat(song["duration"], 64); err == nil {
		return d
	}
	if d, err := strconv.Atoi(song["Time"]); err == nil {
		return float64(d)
	}
	return 0
}

// parseQuality turns an MPD audio format ("samplerate:bits:channels", e.g.
// "96000:24:2") into "24/96".
func parseQuality(format string) string {
	parts := strings.Split(format, ":")
	if len(parts) < 2 {
		return ""
	}
	rate, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || rate <= 0 {
		return ""
	}
	bits := parts[1]
	if bits == "f" {
		bits = "32f"
	}
	return bits + "/" + strconv.FormatFloat(rate/1000, 'f', -1, 64)
}

// leadingInt parses values like "3/12" or "2019-05-01".
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

func isStream(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

// trackType returns the lower-case file extension.
func trackType(uri string) string {
	if idx := strings.LastIndex(uri, "."); idx != -1 && !strings.Contains(uri[idx:], "/") {
		return strings.ToLower(uri[idx+1:])
	}
	return ""
}
