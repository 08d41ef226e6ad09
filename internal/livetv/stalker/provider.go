package stalker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/livetv"
)

// Provider resolves Stalker portal channels through a shared client
// pool.
type Provider struct {
	pool   *ClientPool
	logger zerolog.Logger
}

// NewProvider creates a Stalker provider.
func NewProvider(pool *ClientPool, logger zerolog.Logger) *Provider {
	return &Provider{
		pool:   pool,
		logger: logger.With().Str("component", "stalker-provider").Logger(),
	}
}

// Pool exposes the client pool for session invalidation on failover.
func (p *Provider) Pool() *ClientPool { return p.pool }

func (p *Provider) Type() string { return livetv.ProviderStalker }

func (p *Provider) Capabilities() livetv.Capabilities {
	return livetv.Capabilities{SupportsSync: true}
}

// Authenticate performs the portal handshake for an account.
func (p *Provider) Authenticate(ctx context.Context, account livetv.Account) (*livetv.AuthResult, error) {
	client, release, err := p.pool.Acquire(ctx, account)
	if err != nil {
		return &livetv.AuthResult{Success: false, Error: err.Error()}, nil
	}
	defer release()

	return &livetv.AuthResult{
		Success:     true,
		Token:       client.Token(),
		TokenExpiry: client.LastAuthAt().Add(p.pool.config.TokenRefresh),
	}, nil
}

// TestConnection authenticates and fetches the STB profile.
func (p *Provider) TestConnection(ctx context.Context, account livetv.Account) (*livetv.TestResult, error) {
	client, release, err := p.pool.Acquire(ctx, account)
	if err != nil {
		return &livetv.TestResult{Success: false, Error: err.Error()}, nil
	}
	defer release()

	profile, err := client.getProfile(ctx)
	if err != nil {
		return &livetv.TestResult{Success: false, Error: err.Error()}, nil
	}

	flat := make(map[string]string, len(profile))
	for k, v := range profile {
		flat[k] = fmt.Sprint(v)
	}
	return &livetv.TestResult{Success: true, Profile: flat}, nil
}

// ResolveStreamURL mints a playable URL for a channel via create_link.
func (p *Provider) ResolveStreamURL(ctx context.Context, account livetv.Account, channel livetv.Channel, format string) (*livetv.ResolvedStreamURL, error) {
	client, release, err := p.pool.Acquire(ctx, account)
	if err != nil {
		return nil, err
	}
	defer release()

	cmd := channel.Command
	if cmd == "" {
		cmd = fmt.Sprintf("ffmpeg http://localhost/ch/%s", channel.Ref)
	}

	link, err := client.createLink(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("create_link for channel %s: %w", channel.Ref, err)
	}

	kind := classifyStreamURL(link)
	resolved := &livetv.ResolvedStreamURL{
		URL:       link,
		Kind:      kind,
		ExpiresAt: time.Now().Add(expiryFor(kind)),
	}

	p.logger.Debug().
		Int64("accountId", account.ID).
		Str("channelRef", channel.Ref).
		Str("kind", kind).
		Msg("Resolved stream URL")

	return resolved, nil
}

// SyncChannels pulls the portal's genre and channel lists and reports
// the counts. Channel persistence belongs to the storage collaborator;
// this provider only enumerates.
func (p *Provider) SyncChannels(ctx context.Context, account livetv.Account) (*livetv.SyncResult, error) {
	start := time.Now()

	client, release, err := p.pool.Acquire(ctx, account)
	if err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}
	defer release()

	genres, err := client.getGenres(ctx)
	if err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}
	channels, err := client.getAllChannels(ctx)
	if err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}

	result := &livetv.SyncResult{
		CategoriesAdded: len(genres),
		ChannelsAdded:   len(channels),
		Duration:        time.Since(start),
	}

	p.logger.Info().
		Int64("accountId", account.ID).
		Int("categories", len(genres)).
		Int("channels", len(channels)).
		Dur("duration", result.Duration).
		Msg("Channel sync completed")

	return result, nil
}

// classifyStreamURL infers the stream kind from the URL shape.
func classifyStreamURL(link string) string {
	lower := strings.ToLower(link)
	switch {
	case strings.Contains(lower, ".m3u8"):
		return livetv.StreamKindHLS
	case strings.Contains(lower, ".ts") || strings.Contains(lower, "/ch/") || strings.Contains(lower, "extension=ts"):
		return livetv.StreamKindDirect
	default:
		return livetv.StreamKindUnknown
	}
}

func expiryFor(kind string) time.Duration {
	if kind == livetv.StreamKindHLS {
		return time.Hour
	}
	return 30 * time.Minute
}
