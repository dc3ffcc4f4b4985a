package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
	"github.com/edumarques81/ampcast-core/internal/domain/playlist"
	"github.com/edumarques81/ampcast-core/internal/infra/artwork"
	"github.com/edumarques81/ampcast-core/internal/infra/httpsource"
	"github.com/edumarques81/ampcast-core/internal/infra/mpd"
	"github.com/edumarques81/ampcast-core/internal/infra/qobuz"
	"github.com/edumarques81/ampcast-core/internal/transport/socketio"
)

var errUnknownSrc = errors.New("unknown src")

// historyFeed names the web feed, if any, that continues the recently
// played list.
const historyFeed = "history"

// catalog maps browsable srcs to feeds:
//
//	mpd:folder:<path>      directory listing, "/" is the root
//	mpd:albums:all         every album in the library
//	mpd:queue:current      the MPD play queue
//	qobuz:search:<q>       Qobuz track search
//	web:feed:<name>        a configured JSON backend
//	ampcast:recent:played  items played this session, then the history feed
//
// MPD tracks get artwork thumbnails.
type catalog struct {
	pager pager.Config
	mpd   *mpd.Client
	qobuz qobuz.API
	web   *httpsource.Client
	feeds map[string]string
	queue *playlist.Playlist
}

func (c *catalog) Feed(src string) (socketio.Feed, error) {
	s, err := media.ParseSrc(src)
	if err != nil {
		return nil, err
	}

	switch s.Service {
	case mpd.Service:
		if c.mpd == nil {
			return nil, fmt.Errorf("%w: mpd is not connected", errUnknownSrc)
		}
		switch s.Type {
		case "folder":
			path := strings.Trim(s.ID, "/")
			return socketio.NewFeed[media.Object](pager.NewSequentialPager(artwork.WithThumbnails(mpd.DirectorySource(c.mpd, path, c.pager)), c.pager)), nil
		case "albums":
			return socketio.NewFeed[*media.Album](pager.NewSequentialPager(mpd.AlbumSource(c.mpd, c.pager), c.pager)), nil
		case "queue":
			return socketio.NewFeed[*media.Item](pager.NewSequentialPager(artwork.WithThumbnails(mpd.QueueSource(c.mpd)), c.pager)), nil
		}

	case qobuz.Service:
		if s.Type == "search" {
			if c.qobuz == nil {
				return nil, qobuz.ErrNotConfigured
			}
			return socketio.NewFeed[*media.Item](pager.NewSequentialPager(qobuz.SearchSource(c.qobuz, s.ID), c.pager)), nil
		}

	case "web":
		if s.Type == "feed" {
			endpoint, ok := c.feeds[s.ID]
			if !ok || c.web == nil {
				return nil, fmt.Errorf("%w: no web feed named %q", errUnknownSrc, s.ID)
			}
			return socketio.NewFeed[*media.Item](pager.NewSequentialPager(c.web.Source(endpoint), c.pager)), nil
		}

	case "ampcast":
		if s.Type == "recent" && s.ID == "played" && c.queue != nil {
			return socketio.NewFeed[*media.Item](c.queue.RecentPager(c.history())), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errUnknownSrc, src)
}

func (c *catalog) history() pager.Pager[*media.Item] {
	if endpoint, ok := c.feeds[historyFeed]; ok && c.web != nil {
		return pager.NewSequentialPager(c.web.Source(endpoint), c.pager)
	}
	var none pager.FetchFunc[*media.Item] = func(context.Context, int) (pager.Page[*media.Item], error) {
		return pager.Page[*media.Item]{AtEnd: true}, nil
	}
	return pager.NewSequentialPager(none, c.pager)
}
