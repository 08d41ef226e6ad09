package livetv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/ssrf"
)

// ErrLineupItemNotFound marks an unknown lineup item ID.
var ErrLineupItemNotFound = errors.New("lineup item not found")

// SessionInvalidator lets the resolver drop a provider session after an
// auth-shaped failure. The Stalker client pool implements it.
type SessionInvalidator interface {
	Invalidate(accountID int64)
}

// AllSourcesFailedError aggregates the per-source outcomes of a failed
// resolution.
type AllSourcesFailedError struct {
	Count   int
	Details []string
}

func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("All %d sources failed: %s", e.Count, strings.Join(e.Details, "; "))
}

// Resolver turns lineup items into validated, playable stream URLs
// with per-source failover.
type Resolver struct {
	providers    map[string]Provider
	invalidators map[string]SessionInvalidator
	accounts     AccountStore
	lineups      LineupStore
	cache        *URLCache
	guard        *ssrf.Guard
	logger       zerolog.Logger
}

// NewResolver creates a stream URL resolver.
func NewResolver(accounts AccountStore, lineups LineupStore, cache *URLCache, guard *ssrf.Guard, logger zerolog.Logger) *Resolver {
	return &Resolver{
		providers:    make(map[string]Provider),
		invalidators: make(map[string]SessionInvalidator),
		accounts:     accounts,
		lineups:      lineups,
		cache:        cache,
		guard:        guard,
		logger:       logger.With().Str("component", "livetv-resolver").Logger(),
	}
}

// RegisterProvider adds a provider implementation for its kind.
func (r *Resolver) RegisterProvider(p Provider) {
	r.providers[p.Type()] = p
}

// RegisterInvalidator attaches a session invalidator for a provider
// kind.
func (r *Resolver) RegisterInvalidator(providerType string, inv SessionInvalidator) {
	r.invalidators[providerType] = inv
}

// Cache exposes the URL cache for sweeping.
func (r *Resolver) Cache() *URLCache { return r.cache }

// Resolve returns a playable URL for a lineup item, trying the primary
// source and then each backup in priority order.
func (r *Resolver) Resolve(ctx context.Context, lineupItemID, format string) (*ResolvedStreamURL, error) {
	return r.resolve(ctx, lineupItemID, format, false)
}

// ResolveFresh bypasses and invalidates the cache before resolving.
// The HLS converter uses it so single-use playlist tokens are new.
func (r *Resolver) ResolveFresh(ctx context.Context, lineupItemID, format string) (*ResolvedStreamURL, error) {
	return r.resolve(ctx, lineupItemID, format, true)
}

func (r *Resolver) resolve(ctx context.Context, lineupItemID, format string, fresh bool) (*ResolvedStreamURL, error) {
	item, err := r.lineups.GetLineupItem(ctx, lineupItemID)
	if err != nil {
		return nil, fmt.Errorf("lineup item %s: %w", lineupItemID, err)
	}
	if item == nil {
		return nil, fmt.Errorf("lineup item %s: %w", lineupItemID, ErrLineupItemNotFound)
	}

	sources := item.Sources()
	details := make([]string, 0, len(sources))
	for _, source := range sources {
		resolved, err := r.resolveSource(ctx, item, source, format, fresh)
		if err == nil {
			return resolved, nil
		}
		details = append(details, fmt.Sprintf("account %d channel %s: %v", source.AccountID, source.Channel.Ref, err))
		r.logger.Warn().
			Err(err).
			Str("lineupItemId", item.ID).
			Int64("accountId", source.AccountID).
			Str("channelRef", source.Channel.Ref).
			Msg("Source failed, trying next")
	}

	return nil, &AllSourcesFailedError{Count: len(sources), Details: details}
}

// resolveSource resolves one source, retrying once with fresh
// credentials after an auth-shaped failure.
func (r *Resolver) resolveSource(ctx context.Context, item *LineupItem, source Backup, format string, fresh bool) (*ResolvedStreamURL, error) {
	account, err := r.accounts.GetAccount(ctx, source.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d not found", source.AccountID)
	}
	if !account.Enabled {
		return nil, fmt.Errorf("account %d is disabled", account.ID)
	}

	provider, ok := r.providers[account.ProviderType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for type %q", account.ProviderType)
	}

	if fresh {
		r.cache.Invalidate(account.ID, source.Channel.Ref)
	} else if cached, ok := r.cache.Get(account.ID, source.Channel.Ref); ok {
		return cached, nil
	}

	resolved, err := provider.ResolveStreamURL(ctx, *account, source.Channel, format)
	if err != nil && isAuthError(err) {
		r.dropSession(account)
		resolved, err = provider.ResolveStreamURL(ctx, *account, source.Channel, format)
	}
	if err != nil {
		return nil, err
	}

	if err := r.guard.Validate(ctx, resolved.URL); err != nil {
		return nil, fmt.Errorf("resolved URL rejected: %w", err)
	}

	r.cache.Put(account.ID, source.Channel.Ref, *resolved)
	return resolved, nil
}

// dropSession invalidates the provider session and every cached URL for
// the account.
func (r *Resolver) dropSession(account *Account) {
	if inv, ok := r.invalidators[account.ProviderType]; ok {
		inv.Invalidate(account.ID)
	}
	r.cache.InvalidateAccount(account.ID)
	r.logger.Debug().Int64("accountId", account.ID).Msg("Dropped session after auth failure")
}

var authErrorMarkers = []string{"401", "403", "token", "auth", "unauthorized", "forbidden"}

// isAuthError reports whether an error looks authentication-shaped.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range authErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
