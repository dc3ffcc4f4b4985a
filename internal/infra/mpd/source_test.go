package mpd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/edumarques81/ampcast-core/internal/domain/media"
	"github.com/edumarques81/ampcast-core/internal/domain/pager"
)

func queueHandlers(n int) map[string]func([]string) []string {
	return map[string]func([]string) []string{
		"status": func([]string) []string {
			return []string{"state: stop", "playlistlength: " + strconv.Itoa(n)}
		},
		"playlistinfo": func(args []string) []string {
			start, end := 0, n
			if len(args) == 1 {
				lo, hi, _ := strings.Cut(args[0], ":")
				start, _ = strconv.Atoi(lo)
				end, _ = strconv.Atoi(hi)
			}
			var out []string
			for i := start; i < end && i < n; i++ {
				out = append(out, fmt.Sprintf("file: music/%02d.flac", i), fmt.Sprintf("Title: Song %d", i), "Time: 180")
			}
			return out
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueueSourcePages(t *testing.T) {
	srv := newFakeServer(t, queueHandlers(5))
	client := srv.client(t)

	p := pager.NewSequentialPager(QueueSource(client), pager.Config{PageSize: 2})
	defer p.Disconnect()

	done := make(chan []*media.Item, 1)
	p.ObserveComplete().Subscribe(func(items []*media.Item) { done <- items })
	p.FetchAt(0, 10)

	select {
	case items := <-done:
		if len(items) != 5 {
			t.Fatalf("expected 5 items, got %d", len(items))
		}
		for i, item := range items {
			if want := fmt.Sprintf("mpd:track:music/%02d.flac", i); item.Src != want {
				t.Errorf("item %d src = %q, want %q", i, item.Src, want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the queue")
	}
	if !srv.Received("playlistinfo 4:5") {
		t.Errorf("expected the last page to be clipped, got %v", srv.Commands())
	}
}

func TestQueueSourceEmpty(t *testing.T) {
	srv := newFakeServer(t, queueHandlers(0))
	fetch := QueueSource(srv.client(t))

	page, err := fetch(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !page.AtEnd || len(page.Items) != 0 {
		t.Errorf("expected an empty last page, got %+v", page)
	}
}

func TestDirectorySource(t *testing.T) {
	srv := newFakeServer(t, map[string]func([]string) []string{
		"lsinfo": func(args []string) []string {
			if len(args) == 1 && args[0] == "NAS" {
				return []string{"file: NAS/a.flac", "Title: A"}
			}
			return []string{
				"directory: NAS",
				"Last-Modified: 2024-01-01T00:00:00Z",
				"file: top.flac",
				"Title: Top",
				"playlist: mix.m3u",
			}
		},
	})
	fetch := DirectorySource(srv.client(t), "", pager.Config{})

	page, err := fetch(context.Background(), 50)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !page.AtEnd || len(page.Items) != 3 {
		t.Fatalf("expected 3 objects in one page, got %+v", page)
	}

	folder, ok := page.Items[0].(*media.Folder)
	if !ok || folder.Pager == nil {
		t.Fatalf("expected a folder with a pager, got %+v", page.Items[0])
	}
	defer folder.Pager.Disconnect()

	got := make(chan []media.Object, 1)
	folder.Pager.ObserveComplete().Subscribe(func(items []media.Object) { got <- items })
	folder.Pager.FetchAt(0, 10)
	select {
	case items := <-got:
		if len(items) != 1 || items[0].Key() != "mpd:track:NAS/a.flac" {
			t.Errorf("unexpected folder contents %v", items)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for folder contents")
	}
}

func TestDirectorySourceCountsPlaylistTracks(t *testing.T) {
	tests := []struct {
		name  string
		songs int
	}{
		{"one page", 3},
		{"several pages", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer(t, map[string]func([]string) []string{
				"lsinfo": func([]string) []string {
					return []string{"playlist: mix", "file: top.flac", "Title: Top"}
				},
				"listplaylistinfo": func(args []string) []string {
					var out []string
					for i := 0; i < tt.songs; i++ {
						out = append(out, fmt.Sprintf("file: %s/%02d.flac", args[0], i), fmt.Sprintf("Title: Song %d", i))
					}
					return out
				},
			})
			cfg := pager.Config{PageSize: 5}
			p := pager.NewSequentialPager(DirectorySource(srv.client(t), "", cfg), cfg)
			defer p.Disconnect()
			p.FetchAt(0, 10)

			trackCount := func() int {
				items := p.Items()
				if len(items) == 0 {
					return -1
				}
				pl, ok := items[0].(*media.Playlist)
				if !ok {
					t.Fatalf("expected a playlist first, got %T", items[0])
				}
				return pl.TrackCount
			}
			waitFor(t, "track count", func() bool { return trackCount() == tt.songs })

			pl := p.Items()[0].(*media.Playlist)
			if pl.Src != "mpd:playlist:mix" || pl.Pager == nil {
				t.Errorf("playlist = %+v", pl)
			}
			if !srv.Received(`listplaylistinfo "mix"`) {
				t.Errorf("expected the playlist to be read, got %v", srv.Commands())
			}
		})
	}
}

func TestPlaylistSourcePages(t *testing.T) {
	srv := newFakeServer(t, map[string]func([]string) []string{
		"listplaylistinfo": func([]string) []string {
			return []string{"file: a.flac", "file: b.flac", "file: c.flac"}
		},
	})
	fetch := PlaylistSource(srv.client(t), "mix")

	var srcs []string
	for i := 0; i < 2; i++ {
		page, err := fetch(context.Background(), 2)
		if err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
		if page.Total != 3 {
			t.Errorf("page %d total = %d, want 3", i, page.Total)
		}
		if page.AtEnd != (i == 1) {
			t.Errorf("page %d AtEnd = %v", i, page.AtEnd)
		}
		for _, item := range page.Items {
			srcs = append(srcs, item.Src)
		}
	}
	if got := strings.Join(srcs, ","); got != "mpd:track:a.flac,mpd:track:b.flac,mpd:track:c.flac" {
		t.Errorf("srcs = %s", got)
	}
	if n := len(srv.Commands()); n != 1 {
		t.Errorf("playlist should be read once, got %v", srv.Commands())
	}
}

func TestAlbumSource(t *testing.T) {
	srv := newFakeServer(t, map[string]func([]string) []string{
		"list": func([]string) []string {
			return []string{"Album: Kind of Blue", "AlbumArtist: Miles Davis", "Album: Blue Train", "AlbumArtist: John Coltrane"}
		},
		"find": func(args []string) []string {
			return []string{"file: jazz/" + args[1] + "/01.flac", "Title: One", "file: jazz/" + args[1] + "/02.flac", "Title: Two"}
		},
	})
	fetch := AlbumSource(srv.client(t), pager.Config{})

	first, err := fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(first.Items) != 1 || first.Total != 2 || first.AtEnd {
		t.Fatalf("unexpected first page %+v", first)
	}
	album := first.Items[0]
	if album.Title != "Kind of Blue" || album.Artist != "Miles Davis" {
		t.Errorf("unexpected album %+v", album)
	}

	second, err := fetch(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(second.Items) != 1 || !second.AtEnd {
		t.Fatalf("unexpected second page %+v", second)
	}

	defer album.Pager.Disconnect()
	tracks := album.Pager.(*pager.SequentialPager[*media.Item])
	tracks.FetchAt(0, 10)
	waitFor(t, "album tracks", func() bool { return tracks.Size() == 2 })
	if items := tracks.Items(); len(items) != 2 || items[1].Title != "Two" {
		t.Errorf("unexpected tracks %v", items)
	}
	if !srv.Received(`find album "Kind of Blue" albumartist "Miles Davis"`) {
		t.Errorf("expected a find for the album, got %v", srv.Commands())
	}
}
