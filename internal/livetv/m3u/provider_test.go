package m3u

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/livetv"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="news.one" tvg-logo="http://logo.example/one.png" group-title="News",News One
http://cdn.example/news1/index.m3u8
#EXTINF:-1 group-title="Sports",Sports Channel
http://cdn.example/sports.ts
#EXTGRP:ignored
#EXTINF:-1 tvg-id="film.hd",Film HD
http://cdn.example/film/index.m3u8
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(samplePlaylist))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	first := entries[0]
	if first.TvgID != "news.one" || first.Name != "News One" || first.GroupTitle != "News" {
		t.Errorf("first entry = %+v", first)
	}
	if first.URL != "http://cdn.example/news1/index.m3u8" {
		t.Errorf("first URL = %q", first.URL)
	}
	if first.Ref() != "news.one" {
		t.Errorf("Ref = %q, want the tvg-id", first.Ref())
	}

	// No tvg-id falls back to the display name.
	if entries[1].Ref() != "Sports Channel" {
		t.Errorf("Ref = %q, want the display name", entries[1].Ref())
	}
}

func TestParseRejectsNonPlaylist(t *testing.T) {
	if _, err := Parse(strings.NewReader("<html>not a playlist</html>")); err == nil {
		t.Error("expected an error for non-M3U input")
	}
}

func TestParseIgnoresOrphanURLs(t *testing.T) {
	entries, err := Parse(strings.NewReader("#EXTM3U\nhttp://cdn.example/orphan.ts\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func playlistServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(samplePlaylist))
	}))
	t.Cleanup(srv.Close)
	return srv, &fetches
}

func TestResolveStreamURL(t *testing.T) {
	srv, fetches := playlistServer(t)
	p := NewProvider(zerolog.Nop())
	account := livetv.Account{ID: 1, ProviderType: livetv.ProviderM3U, BaseURL: srv.URL, Enabled: true}
	ctx := context.Background()

	hls, err := p.ResolveStreamURL(ctx, account, livetv.Channel{Ref: "news.one"}, "hls")
	if err != nil {
		t.Fatalf("ResolveStreamURL: %v", err)
	}
	if hls.Kind != livetv.StreamKindHLS {
		t.Errorf("kind = %q, want hls for a .m3u8 URL", hls.Kind)
	}

	direct, err := p.ResolveStreamURL(ctx, account, livetv.Channel{Ref: "Sports Channel"}, "ts")
	if err != nil {
		t.Fatalf("ResolveStreamURL: %v", err)
	}
	if direct.Kind != livetv.StreamKindDirect {
		t.Errorf("kind = %q, want direct for a .ts URL", direct.Kind)
	}

	if _, err := p.ResolveStreamURL(ctx, account, livetv.Channel{Ref: "nope"}, "hls"); err == nil {
		t.Error("expected an error for an unknown channel")
	}

	// The playlist is fetched once and served from cache after.
	if got := fetches.Load(); got != 1 {
		t.Errorf("playlist fetched %d times, want 1", got)
	}
}

func TestSyncChannels(t *testing.T) {
	srv, fetches := playlistServer(t)
	p := NewProvider(zerolog.Nop())
	account := livetv.Account{ID: 1, ProviderType: livetv.ProviderM3U, BaseURL: srv.URL, Enabled: true}
	ctx := context.Background()

	if _, err := p.ResolveStreamURL(ctx, account, livetv.Channel{Ref: "news.one"}, "hls"); err != nil {
		t.Fatalf("ResolveStreamURL: %v", err)
	}

	result, err := p.SyncChannels(ctx, account)
	if err != nil {
		t.Fatalf("SyncChannels: %v", err)
	}
	if result.ChannelsAdded != 3 {
		t.Errorf("ChannelsAdded = %d, want 3", result.ChannelsAdded)
	}
	if result.CategoriesAdded != 2 {
		t.Errorf("CategoriesAdded = %d, want 2", result.CategoriesAdded)
	}
	// Sync always re-fetches.
	if got := fetches.Load(); got != 2 {
		t.Errorf("playlist fetched %d times, want 2", got)
	}
}
