package stalker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/keonramses/cinephage/internal/livetv"
)

// PoolConfig controls client lifetime policies.
type PoolConfig struct {
	MaxAuthRetries uint
	AuthRetryDelay time.Duration
	TokenRefresh   time.Duration
}

// DefaultPoolConfig returns the standard policies.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxAuthRetries: 3,
		AuthRetryDelay: time.Second,
		TokenRefresh:   time.Hour,
	}
}

type poolEntry struct {
	client *portalClient
	inUse  int
}

// ClientPool keeps one authenticated portal client per account. A
// single-flight group guarantees at most one concurrent handshake per
// account.
type ClientPool struct {
	mu      sync.Mutex
	entries map[int64]*poolEntry
	auth    singleflight.Group
	config  PoolConfig
	logger  zerolog.Logger
}

// NewClientPool creates a client pool.
func NewClientPool(config PoolConfig, logger zerolog.Logger) *ClientPool {
	if config.MaxAuthRetries == 0 {
		config.MaxAuthRetries = 3
	}
	if config.AuthRetryDelay <= 0 {
		config.AuthRetryDelay = time.Second
	}
	if config.TokenRefresh <= 0 {
		config.TokenRefresh = time.Hour
	}
	return &ClientPool{
		entries: make(map[int64]*poolEntry),
		config:  config,
		logger:  logger.With().Str("component", "stalker-pool").Logger(),
	}
}

// Acquire returns an authenticated client for the account, performing
// or refreshing the handshake when needed. The release func must be
// called when the request completes.
func (p *ClientPool) Acquire(ctx context.Context, account livetv.Account) (*portalClient, func(), error) {
	p.mu.Lock()
	entry, ok := p.entries[account.ID]
	if !ok {
		entry = &poolEntry{client: newPortalClient(account, p.logger)}
		p.entries[account.ID] = entry
	}
	entry.inUse++
	client := entry.client
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		entry.inUse--
		p.mu.Unlock()
	}

	if err := p.ensureAuthenticated(ctx, account.ID, client); err != nil {
		release()
		return nil, nil, err
	}
	return client, release, nil
}

// Invalidate forgets an account's session so the next Acquire performs
// a fresh handshake.
func (p *ClientPool) Invalidate(accountID int64) {
	p.mu.Lock()
	entry, ok := p.entries[accountID]
	p.mu.Unlock()
	if ok {
		entry.client.invalidate()
		p.logger.Debug().Int64("accountId", accountID).Msg("Invalidated portal session")
	}
}

// InUse reports the concurrent request count for an account.
func (p *ClientPool) InUse(accountID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.entries[accountID]; ok {
		return entry.inUse
	}
	return 0
}

// ensureAuthenticated performs the handshake when the token is missing
// or older than the refresh interval, with at most one in flight per
// account.
func (p *ClientPool) ensureAuthenticated(ctx context.Context, accountID int64, client *portalClient) error {
	if client.Token() != "" && time.Since(client.LastAuthAt()) < p.config.TokenRefresh {
		return nil
	}

	key := fmt.Sprintf("auth:%d", accountID)
	_, err, _ := p.auth.Do(key, func() (interface{}, error) {
		// Another caller may have finished the handshake while this one
		// waited on the flight group.
		if client.Token() != "" && time.Since(client.LastAuthAt()) < p.config.TokenRefresh {
			return nil, nil
		}

		err := retry.Do(
			func() error {
				if err := client.handshake(ctx); err != nil {
					return err
				}
				if _, err := client.getProfile(ctx); err != nil {
					client.invalidate()
					return err
				}
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(p.config.MaxAuthRetries),
			retry.Delay(p.config.AuthRetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			p.logger.Warn().Err(err).Int64("accountId", accountID).Msg("Portal authentication failed")
			return nil, err
		}
		return nil, nil
	})
	return err
}
