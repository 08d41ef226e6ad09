// Package iptvorg implements the iptv-org community catalogue
// provider. Streams are public and unauthenticated.
package iptvorg

import (
	"context"
	"encoding/json"
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
	defaultAPIBase = "https://iptv-org.github.io/api"
	requestTimeout = 30 * time.Second
	catalogueTTL   = 6 * time.Hour
)

// Provider serves channels from the iptv-org public catalogue.
type Provider struct {
	httpClient *http.Client
	apiBase    string
	logger     zerolog.Logger

	mu        sync.Mutex
	streams   map[string][]catalogueStream
	fetchedAt time.Time
}

type catalogueStream struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
	Quality string `json:"quality"`
}

// NewProvider creates an iptv-org provider.
func NewProvider(logger zerolog.Logger) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiBase:    defaultAPIBase,
		logger:     logger.With().Str("component", "iptvorg").Logger(),
	}
}

// SetAPIBase overrides the catalogue endpoint, mainly for tests.
func (p *Provider) SetAPIBase(base string) {
	p.apiBase = strings.TrimRight(base, "/")
}

func (p *Provider) Type() string { return livetv.ProviderIPTVOrg }

func (p *Provider) Capabilities() livetv.Capabilities {
	return livetv.Capabilities{SupportsSync: true}
}

// Authenticate is a no-op; the catalogue is public.
func (p *Provider) Authenticate(ctx context.Context, account livetv.Account) (*livetv.AuthResult, error) {
	return &livetv.AuthResult{Success: true}, nil
}

// TestConnection fetches the catalogue and reports the stream count.
func (p *Provider) TestConnection(ctx context.Context, account livetv.Account) (*livetv.TestResult, error) {
	streams, err := p.catalogue(ctx)
	if err != nil {
		return &livetv.TestResult{Success: false, Error: err.Error()}, nil
	}
	return &livetv.TestResult{
		Success: true,
		Profile: map[string]string{"channels": fmt.Sprint(len(streams))},
	}, nil
}

// ResolveStreamURL picks the first listed stream for the channel.
// iptv-org streams are almost always HLS.
func (p *Provider) ResolveStreamURL(ctx context.Context, account livetv.Account, channel livetv.Channel, format string) (*livetv.ResolvedStreamURL, error) {
	streams, err := p.catalogue(ctx)
	if err != nil {
		return nil, err
	}

	candidates, ok := streams[channel.Ref]
	if !ok || len(candidates) == 0 {
		return nil, fmt.Errorf("channel %s not found in iptv-org catalogue", channel.Ref)
	}

	chosen := candidates[0]
	kind := livetv.StreamKindHLS
	if !strings.Contains(strings.ToLower(chosen.URL), ".m3u8") {
		kind = livetv.StreamKindUnknown
	}

	return &livetv.ResolvedStreamURL{
		URL:       chosen.URL,
		Kind:      kind,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// SyncChannels refreshes the catalogue and reports what it found.
func (p *Provider) SyncChannels(ctx context.Context, account livetv.Account) (*livetv.SyncResult, error) {
	start := time.Now()

	p.mu.Lock()
	p.fetchedAt = time.Time{}
	p.mu.Unlock()

	streams, err := p.catalogue(ctx)
	if err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}

	return &livetv.SyncResult{
		ChannelsAdded: len(streams),
		Duration:      time.Since(start),
	}, nil
}

// catalogue returns the stream index keyed by channel id, refreshing
// when stale.
func (p *Provider) catalogue(ctx context.Context) (map[string][]catalogueStream, error) {
	p.mu.Lock()
	if p.streams != nil && time.Since(p.fetchedAt) < catalogueTTL {
		streams := p.streams
		p.mu.Unlock()
		return streams, nil
	}
	p.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/streams.json", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalogue fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 128<<20))
	if err != nil {
		return nil, err
	}

	var all []catalogueStream
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, err
	}

	streams := make(map[string][]catalogueStream)
	for _, s := range all {
		if s.Channel == "" || s.URL == "" {
			continue
		}
		streams[s.Channel] = append(streams[s.Channel], s)
	}

	p.mu.Lock()
	p.streams = streams
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	p.logger.Debug().Int("channels", len(streams)).Msg("Catalogue refreshed")
	return streams, nil
}
