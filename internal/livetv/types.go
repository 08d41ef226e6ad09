// Package livetv resolves live television channels to playable stream
// URLs across several provider kinds and adapts them to MPEG-TS or HLS
// delivery.
package livetv

import (
	"context"
	"time"
)

// Provider kinds.
const (
	ProviderStalker = "stalker"
	ProviderXStream = "xstream"
	ProviderM3U     = "m3u"
	ProviderIPTVOrg = "iptvorg"
)

// Stream kinds carried by a resolved URL.
const (
	StreamKindHLS     = "hls"
	StreamKindDirect  = "direct"
	StreamKindUnknown = "unknown"
)

// Account holds provider credentials. Persisted externally; the core
// treats it as read-only.
type Account struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	ProviderType string            `json:"providerType"`
	BaseURL      string            `json:"baseUrl"`
	Username     string            `json:"username"`
	Password     string            `json:"password"`
	MAC          string            `json:"mac,omitempty"`
	Enabled      bool              `json:"enabled"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Channel identifies a channel within a provider account.
type Channel struct {
	Ref     string `json:"ref"`
	Name    string `json:"name"`
	Command string `json:"command,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// Backup is an alternative source for a lineup item.
type Backup struct {
	Priority  int     `json:"priority"`
	AccountID int64   `json:"accountId"`
	Channel   Channel `json:"channel"`
}

// LineupItem is a channel slot with ordered fallback sources.
type LineupItem struct {
	ID           string   `json:"id"`
	AccountID    int64    `json:"accountId"`
	ProviderType string   `json:"providerType"`
	Channel      Channel  `json:"channel"`
	Backups      []Backup `json:"backups,omitempty"`
}

// Sources returns the primary source followed by backups ordered by
// priority ascending. Backups are assumed pre-sorted by the store.
func (l *LineupItem) Sources() []Backup {
	out := make([]Backup, 0, 1+len(l.Backups))
	out = append(out, Backup{Priority: 0, AccountID: l.AccountID, Channel: l.Channel})
	out = append(out, l.Backups...)
	return out
}

// ResolvedStreamURL is the product of provider URL resolution.
type ResolvedStreamURL struct {
	URL       string            `json:"url"`
	Kind      string            `json:"kind"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// AuthResult is the outcome of a provider handshake.
type AuthResult struct {
	Success     bool
	Token       string
	TokenExpiry time.Time
	Error       string
}

// TestResult is the outcome of a connectivity probe.
type TestResult struct {
	Success bool
	Profile map[string]string
	Error   string
}

// SyncResult summarises a channel synchronisation run.
type SyncResult struct {
	CategoriesAdded   int           `json:"categoriesAdded"`
	CategoriesUpdated int           `json:"categoriesUpdated"`
	ChannelsAdded     int           `json:"channelsAdded"`
	ChannelsUpdated   int           `json:"channelsUpdated"`
	ChannelsRemoved   int           `json:"channelsRemoved"`
	Duration          time.Duration `json:"duration"`
	Error             string        `json:"error,omitempty"`
}

// EpgProgram is one guide entry.
type EpgProgram struct {
	ChannelRef  string    `json:"channelRef"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Capabilities advertises which optional provider methods are
// implemented.
type Capabilities struct {
	SupportsEPG     bool
	SupportsArchive bool
	SupportsSync    bool
}

// Provider is the uniform interface each provider kind implements.
type Provider interface {
	Type() string
	Capabilities() Capabilities

	Authenticate(ctx context.Context, account Account) (*AuthResult, error)
	TestConnection(ctx context.Context, account Account) (*TestResult, error)
	ResolveStreamURL(ctx context.Context, account Account, channel Channel, format string) (*ResolvedStreamURL, error)
}

// ChannelSyncer is implemented by providers that can enumerate their
// channel lineup.
type ChannelSyncer interface {
	SyncChannels(ctx context.Context, account Account) (*SyncResult, error)
}

// EpgFetcher is implemented by providers that expose a programme guide.
type EpgFetcher interface {
	FetchEPG(ctx context.Context, account Account, from, to time.Time) ([]EpgProgram, error)
}

// ArchiveResolver is implemented by providers that offer catch-up
// streams.
type ArchiveResolver interface {
	GetArchiveStreamURL(ctx context.Context, account Account, channel Channel, start time.Time, duration time.Duration) (*ResolvedStreamURL, error)
}

// LineupStore supplies persisted lineup items. The storage collaborator
// owns the schema.
type LineupStore interface {
	GetLineupItem(ctx context.Context, id string) (*LineupItem, error)
}

// AccountStore supplies persisted provider accounts.
type AccountStore interface {
	GetAccount(ctx context.Context, id int64) (*Account, error)
}
