// Package m3u implements the playlist-file provider. Channels carry
// their stream URL directly, so resolution is a lookup plus a kind
// classification.
package m3u

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/livetv"
)

const (
	requestTimeout  = 30 * time.Second
	playlistMaxSize = 64 << 20
	playlistTTL     = 15 * time.Minute
)

// Entry is one channel parsed from an M3U playlist.
type Entry struct {
	Name       string
	TvgID      string
	TvgLogo    string
	GroupTitle string
	URL        string
}

// Provider serves channels from remote M3U playlists. Parsed playlists
// are cached per account for a short interval.
type Provider struct {
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	playlists map[int64]*cachedPlaylist
}

type cachedPlaylist struct {
	entries   map[string]Entry
	fetchedAt time.Time
}

// NewProvider creates an M3U provider.
func NewProvider(logger zerolog.Logger) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: requestTimeout},
		playlists:  make(map[int64]*cachedPlaylist),
		logger:     logger.With().Str("component", "m3u").Logger(),
	}
}

func (p *Provider) Type() string { return livetv.ProviderM3U }

func (p *Provider) Capabilities() livetv.Capabilities {
	return livetv.Capabilities{SupportsSync: true}
}

// Authenticate only verifies that the playlist is reachable.
func (p *Provider) Authenticate(ctx context.Context, account livetv.Account) (*livetv.AuthResult, error) {
	if _, err := p.entries(ctx, account); err != nil {
		return &livetv.AuthResult{Success: false, Error: err.Error()}, nil
	}
	return &livetv.AuthResult{Success: true}, nil
}

// TestConnection fetches the playlist and reports the channel count.
func (p *Provider) TestConnection(ctx context.Context, account livetv.Account) (*livetv.TestResult, error) {
	entries, err := p.entries(ctx, account)
	if err != nil {
		return &livetv.TestResult{Success: false, Error: err.Error()}, nil
	}
	return &livetv.TestResult{
		Success: true,
		Profile: map[string]string{"channels": fmt.Sprint(len(entries))},
	}, nil
}

// ResolveStreamURL looks the channel up in the cached playlist.
func (p *Provider) ResolveStreamURL(ctx context.Context, account livetv.Account, channel livetv.Channel, format string) (*livetv.ResolvedStreamURL, error) {
	entries, err := p.entries(ctx, account)
	if err != nil {
		return nil, err
	}

	entry, ok := entries[channel.Ref]
	if !ok {
		return nil, fmt.Errorf("channel %s not found in playlist", channel.Ref)
	}

	kind := livetv.StreamKindDirect
	ttl := 30 * time.Minute
	if strings.Contains(strings.ToLower(entry.URL), ".m3u8") {
		kind = livetv.StreamKindHLS
		ttl = time.Hour
	}

	return &livetv.ResolvedStreamURL{
		URL:       entry.URL,
		Kind:      kind,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

// SyncChannels re-fetches the playlist and reports what it found.
func (p *Provider) SyncChannels(ctx context.Context, account livetv.Account) (*livetv.SyncResult, error) {
	start := time.Now()

	p.mu.Lock()
	delete(p.playlists, account.ID)
	p.mu.Unlock()

	entries, err := p.entries(ctx, account)
	if err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}

	groups := make(map[string]struct{})
	for _, e := range entries {
		if e.GroupTitle != "" {
			groups[e.GroupTitle] = struct{}{}
		}
	}

	return &livetv.SyncResult{
		CategoriesAdded: len(groups),
		ChannelsAdded:   len(entries),
		Duration:        time.Since(start),
	}, nil
}

// entries returns the parsed playlist, fetching when the cache is cold
// or stale.
func (p *Provider) entries(ctx context.Context, account livetv.Account) (map[string]Entry, error) {
	p.mu.Lock()
	cached, ok := p.playlists[account.ID]
	p.mu.Unlock()
	if ok && time.Since(cached.fetchedAt) < playlistTTL {
		return cached.entries, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, account.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("playlist fetch returned status %d", resp.StatusCode)
	}

	parsed, err := Parse(io.LimitReader(resp.Body, playlistMaxSize))
	if err != nil {
		return nil, err
	}

	entries := make(map[string]Entry, len(parsed))
	for _, e := range parsed {
		entries[e.Ref()] = e
	}

	p.mu.Lock()
	p.playlists[account.ID] = &cachedPlaylist{entries: entries, fetchedAt: time.Now()}
	p.mu.Unlock()

	p.logger.Debug().
		Int64("accountId", account.ID).
		Int("channels", len(entries)).
		Msg("Playlist parsed")

	return entries, nil
}

// Ref returns a stable channel reference: tvg-id when present, else
// the display name.
func (e Entry) Ref() string {
	if e.TvgID != "" {
		return e.TvgID
	}
	return e.Name
}

// Parse reads an extended M3U playlist into its entries. Lines that do
// not follow an #EXTINF directive are ignored.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var entries []Entry
	var pending *Entry
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if first {
			first = false
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, fmt.Errorf("not an M3U playlist")
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXTINF"):
			e := parseExtinf(line)
			pending = &e
		case strings.HasPrefix(line, "#"):
			// Other directives carry no channel data.
		default:
			if pending != nil {
				pending.URL = line
				entries = append(entries, *pending)
				pending = nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// parseExtinf extracts the attributes and display name from an
// #EXTINF line.
func parseExtinf(line string) Entry {
	e := Entry{
		TvgID:      extinfAttr(line, "tvg-id"),
		TvgLogo:    extinfAttr(line, "tvg-logo"),
		GroupTitle: extinfAttr(line, "group-title"),
	}
	if idx := strings.LastIndex(line, ","); idx >= 0 {
		e.Name = strings.TrimSpace(line[idx+1:])
	}
	return e
}

func extinfAttr(line, key string) string {
	marker := key + `="`
	start := strings.Index(line, marker)
	if start < 0 {
		return ""
	}
	rest := line[start+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
