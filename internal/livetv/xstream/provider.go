// Package xstream implements the XStream-codes panel provider. Stream
// URLs are deterministic from credentials, so resolution needs no
// per-request token exchange.
package xstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/livetv"
)

const requestTimeout = 20 * time.Second

// Provider resolves XStream panel channels.
type Provider struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewProvider creates an XStream provider.
func NewProvider(logger zerolog.Logger) *Provider {
	return &Provider{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.With().Str("component", "xstream").Logger(),
	}
}

func (p *Provider) Type() string { return livetv.ProviderXStream }

func (p *Provider) Capabilities() livetv.Capabilities {
	return livetv.Capabilities{SupportsSync: true, SupportsEPG: true}
}

type panelUserInfo struct {
	Username  string `json:"username"`
	Status    string `json:"status"`
	ExpDate   string `json:"exp_date"`
	MaxConns  string `json:"max_connections"`
	IsTrial   string `json:"is_trial"`
	CreatedAt string `json:"created_at"`
}

type panelResponse struct {
	UserInfo panelUserInfo `json:"user_info"`
}

// Authenticate verifies credentials against player_api.php.
func (p *Provider) Authenticate(ctx context.Context, account livetv.Account) (*livetv.AuthResult, error) {
	info, err := p.fetchUserInfo(ctx, account)
	if err != nil {
		return &livetv.AuthResult{Success: false, Error: err.Error()}, nil
	}
	if !strings.EqualFold(info.Status, "Active") {
		return &livetv.AuthResult{Success: false, Error: fmt.Sprintf("account status is %q", info.Status)}, nil
	}
	return &livetv.AuthResult{Success: true}, nil
}

// TestConnection probes the panel and reports the account profile.
func (p *Provider) TestConnection(ctx context.Context, account livetv.Account) (*livetv.TestResult, error) {
	info, err := p.fetchUserInfo(ctx, account)
	if err != nil {
		return &livetv.TestResult{Success: false, Error: err.Error()}, nil
	}
	return &livetv.TestResult{
		Success: true,
		Profile: map[string]string{
			"username":       info.Username,
			"status":         info.Status,
			"expDate":        info.ExpDate,
			"maxConnections": info.MaxConns,
			"isTrial":        info.IsTrial,
		},
	}, nil
}

// ResolveStreamURL builds the deterministic stream URL for a channel.
// format=hls selects the m3u8 variant, anything else the raw TS.
func (p *Provider) ResolveStreamURL(ctx context.Context, account livetv.Account, channel livetv.Channel, format string) (*livetv.ResolvedStreamURL, error) {
	base := strings.TrimRight(account.BaseURL, "/")

	ext := "ts"
	kind := livetv.StreamKindDirect
	ttl := 30 * time.Minute
	if format == livetv.StreamKindHLS {
		ext = "m3u8"
		kind = livetv.StreamKindHLS
		ttl = time.Hour
	}

	streamURL := fmt.Sprintf("%s/live/%s/%s/%s.%s",
		base,
		url.PathEscape(account.Username),
		url.PathEscape(account.Password),
		url.PathEscape(channel.Ref),
		ext,
	)

	return &livetv.ResolvedStreamURL{
		URL:       streamURL,
		Kind:      kind,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

type liveStream struct {
	StreamID   json.Number `json:"stream_id"`
	Name       string      `json:"name"`
	CategoryID string      `json:"category_id"`
	StreamIcon string      `json:"stream_icon"`
}

type liveCategory struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
}

// SyncChannels enumerates live categories and streams.
func (p *Provider) SyncChannels(ctx context.Context, account livetv.Account) (*livetv.SyncResult, error) {
	start := time.Now()

	var categories []liveCategory
	if err := p.panelAction(ctx, account, "get_live_categories", &categories); err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}
	var streams []liveStream
	if err := p.panelAction(ctx, account, "get_live_streams", &streams); err != nil {
		return &livetv.SyncResult{Error: err.Error(), Duration: time.Since(start)}, nil
	}

	result := &livetv.SyncResult{
		CategoriesAdded: len(categories),
		ChannelsAdded:   len(streams),
		Duration:        time.Since(start),
	}

	p.logger.Info().
		Int64("accountId", account.ID).
		Int("categories", len(categories)).
		Int("channels", len(streams)).
		Dur("duration", result.Duration).
		Msg("Channel sync completed")

	return result, nil
}

type epgListing struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartTS     json.Number `json:"start_timestamp"`
	StopTS      json.Number `json:"stop_timestamp"`
	EpgID       string      `json:"epg_id"`
}

// FetchEPG pulls short EPG listings per channel is impractical for
// whole lineups; the panel exposes a bulk endpoint keyed by stream.
// Callers pass the interesting window; listings outside it are dropped.
func (p *Provider) FetchEPG(ctx context.Context, account livetv.Account, from, to time.Time) ([]livetv.EpgProgram, error) {
	var listings struct {
		EpgListings []epgListing `json:"epg_listings"`
	}
	if err := p.panelAction(ctx, account, "get_simple_data_table", &listings); err != nil {
		return nil, err
	}

	programs := make([]livetv.EpgProgram, 0, len(listings.EpgListings))
	for _, l := range listings.EpgListings {
		startSec, _ := l.StartTS.Int64()
		stopSec, _ := l.StopTS.Int64()
		startAt := time.Unix(startSec, 0)
		endAt := time.Unix(stopSec, 0)
		if endAt.Before(from) || startAt.After(to) {
			continue
		}
		programs = append(programs, livetv.EpgProgram{
			ChannelRef:  l.EpgID,
			Title:       l.Title,
			Description: l.Description,
			Start:       startAt,
			End:         endAt,
		})
	}
	return programs, nil
}

func (p *Provider) fetchUserInfo(ctx context.Context, account livetv.Account) (*panelUserInfo, error) {
	var resp panelResponse
	if err := p.panelAction(ctx, account, "", &resp); err != nil {
		return nil, err
	}
	if resp.UserInfo.Username == "" {
		return nil, fmt.Errorf("panel rejected credentials")
	}
	return &resp.UserInfo, nil
}

// panelAction calls player_api.php with the account credentials.
func (p *Provider) panelAction(ctx context.Context, account livetv.Account, action string, result interface{}) error {
	params := url.Values{}
	params.Set("username", account.Username)
	params.Set("password", account.Password)
	if action != "" {
		params.Set("action", action)
	}
	reqURL := fmt.Sprintf("%s/player_api.php?%s", strings.TrimRight(account.BaseURL, "/"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("panel returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, result)
}
