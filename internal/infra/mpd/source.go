package mpd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
)

// QueueSource pages through the MPD queue.
func QueueSource(client *Client) pager.FetchFunc[*media.Item] {
	offset := 0
	return func(ctx context.Context, pageSize int) (pager.Page[*media.Item], error) {
		if err := ctx.Err(); err != nil {
			return pager.Page[*media.Item]{}, err
		}

		status, err := client.Status()
		if err != nil {
			return pager.Page[*media.Item]{}, fmt.Errorf("failed to read queue length: %w", err)
		}
		total, _ := strconv.Atoi(status["playlistlength"])
		if offset >= total {
			return pager.Page[*media.Item]{Total: total, AtEnd: true}, nil
		}

		end := offset + pageSize
		if end > total {
			end = total
		}
		songs, err := client.PlaylistInfo(offset, end)
		if err != nil {
			return pager.Page[*media.Item]{}, fmt.Errorf("failed to read queue: %w", err)
		}

		items := make([]*media.Item, 0, len(songs))
		for _, song := range songs {
			items = append(items, toItem(song))
		}
		offset += len(songs)

		log.Debug().Int("offset", offset).Int("total", total).Msg("Fetched MPD queue page")
		return pager.Page[*media.Item]{Items: items, Total: total, AtEnd: offset >= total || len(songs) == 0}, nil
	}
}

// DirectorySource lists a directory of the music database in a single page.
// Sub-directories carry their own lazily connected pagers. Stored playlists
// carry a pager of their songs that starts fetching straight away, so the
// listing learns their track counts.
func DirectorySource(client *Client, uri string, cfg pager.Config) pager.FetchFunc[media.Object] {
	return func(ctx context.Context, _ int) (pager.Page[media.Object], error) {
		if err := ctx.Err(); err != nil {
			return pager.Page[media.Object]{}, err
		}

		entries, err := client.ListInfo(uri)
		if err != nil {
			return pager.Page[media.Object]{}, fmt.Errorf("failed to list %q: %w", uri, err)
		}

		objects := make([]media.Object, 0, len(entries))
		for _, entry := range entries {
			obj := toObject(entry)
			if obj == nil {
				continue
			}
			switch o := obj.(type) {
			case *media.Folder:
				o.Pager = pager.NewSequentialPager(DirectorySource(client, o.Path, cfg), cfg)
			case *media.Playlist:
				songs := pager.NewSequentialPager(PlaylistSource(client, entry["playlist"]), cfg)
				songs.FetchAt(0, 1)
				o.Pager = songs
			}
			objects = append(objects, obj)
		}
		return pager.Page[media.Object]{Items: objects, Total: len(objects), AtEnd: true}, nil
	}
}

// AlbumSource pages through the albums of the music database. Each album
// carries a pager of its tracks.
func AlbumSource(client *Client, cfg pager.Config) pager.FetchFunc[*media.Album] {
	var albums []AlbumInfo
	loaded := false
	offset := 0

	return func(ctx context.Context, pageSize int) (pager.Page[*media.Album], error) {
		if err := ctx.Err(); err != nil {
			return pager.Page[*media.Album]{}, err
		}
		if !loaded {
			list, err := client.ListAlbums()
			if err != nil {
				return pager.Page[*media.Album]{}, err
			}
			albums, loaded = list, true
		}

		end := offset + pageSize
		if end > len(albums) {
			end = len(albums)
		}
		page := make([]*media.Album, 0, end-offset)
		for _, info := range albums[offset:end] {
			page = append(page, &media.Album{
				Base:   media.Base{Src: AlbumSrc(info.Album, info.AlbumArtist), Title: info.Album},
				Artist: info.AlbumArtist,
				Pager:  pager.NewSequentialPager(albumTracks(client, info), cfg),
			})
		}
		offset = end
		return pager.Page[*media.Album]{Items: page, Total: len(albums), AtEnd: offset >= len(albums)}, nil
	}
}

func albumTracks(client *Client, info AlbumInfo) pager.FetchFunc[*media.Item] {
	return func(ctx context.Context, _ int) (pager.Page[*media.Item], error) {
		if err := ctx.Err(); err != nil {
			return pager.Page[*media.Item]{}, err
		}
		songs, err := client.FindAlbumTracks(info.Album, info.AlbumArtist)
		if err != nil {
			return pager.Page[*media.Item]{}, fmt.Errorf("failed to find tracks of %q: %w", info.Album, err)
		}
		items := make([]*media.Item, 0, len(songs))
		for _, song := range songs {
			items = append(items, toItem(song))
		}
		return pager.Page[*media.Item]{Items: items, Total: len(items), AtEnd: true}, nil
	}
}

// PlaylistSource pages through a stored playlist. The playlist is read once;
// every page reports its full length.
func PlaylistSource(client *Client, name string) pager.FetchFunc[*media.Item] {
	var songs []mpd.Attrs
	loaded := false
	offset := 0

	return func(ctx context.Context, pageSize int) (pager.Page[*media.Item], error) {
		if err := ctx.Err(); err != nil {
			return pager.Page[*media.Item]{}, err
		}
		if !loaded {
			list, err := client.PlaylistContents(name)
			if err != nil {
				return pager.Page[*media.Item]{}, fmt.Errorf("failed to read playlist %q: %w", name, err)
			}
			songs, loaded = list, true
		}

		end := offset + pageSize
		if end > len(songs) {
			end = len(songs)
		}
		items := make([]*media.Item, 0, end-offset)
		for _, song := range songs[offset:end] {
			items = append(items, toItem(song))
		}
		offset = end
		return pager.Page[*media.Item]{Items: items, Total: len(songs), AtEnd: offset >= len(songs)}, nil
	}
}
