// Package ssrf validates outbound URLs before fetching them, blocking
// requests that would reach loopback, private or link-local ranges.
package ssrf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

const maxRedirects = 5

var (
	ErrBlockedAddress  = errors.New("destination address is blocked")
	ErrInvalidScheme   = errors.New("URL scheme must be http or https")
	ErrTooManyRedirect = errors.New("too many redirects")
	ErrRedirectLoop    = errors.New("redirect loop detected")
)

// Guard validates URLs and performs redirect-safe fetches.
type Guard struct {
	resolver *net.Resolver
	logger   zerolog.Logger

	// AllowPrivate disables the address block-list. Only for tests and
	// explicitly trusted deployments.
	AllowPrivate bool
}

// NewGuard creates a guard using the default resolver.
func NewGuard(logger zerolog.Logger) *Guard {
	return &Guard{
		resolver: net.DefaultResolver,
		logger:   logger.With().Str("component", "ssrf").Logger(),
	}
}

// Validate checks that a URL is safe to fetch: http(s) scheme and a
// host that resolves only to public addresses.
func (g *Guard) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	return g.validateURL(ctx, u)
}

func (g *Guard) validateURL(ctx context.Context, u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrInvalidScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return errors.New("URL has no host")
	}

	if g.AllowPrivate {
		return nil
	}

	// Literal IPs skip DNS entirely.
	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
		}
		return nil
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("DNS lookup failed for %s: %w", host, err)
	}
	for _, addr := range addrs {
		if blockedAddr(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, addr)
		}
	}
	return nil
}

// blockedAddr reports whether an address falls in a range that must
// never be reached on behalf of a client.
func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() ||
		addr.IsMulticast()
}

// FetchOptions tunes a guarded fetch.
type FetchOptions struct {
	Method  string
	Headers http.Header
}

// Fetch performs a guarded HTTP request, following redirects manually.
// Every redirect target is validated before it is followed, at most
// maxRedirects hops, with a visited set to break loops. The caller owns
// the response body. The returned URL is the final URL after redirects.
func (g *Guard) Fetch(ctx context.Context, client *http.Client, rawURL string, opts FetchOptions) (*http.Response, *url.URL, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if client == nil {
		client = http.DefaultClient
	}

	// Redirects are handled here, never by the client.
	noRedirect := *client
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid URL: %w", err)
	}

	visited := make(map[string]struct{})
	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			return nil, nil, ErrTooManyRedirect
		}
		key := current.String()
		if _, seen := visited[key]; seen {
			return nil, nil, ErrRedirectLoop
		}
		visited[key] = struct{}{}

		if err := g.validateURL(ctx, current); err != nil {
			return nil, nil, err
		}

		req, err := http.NewRequestWithContext(ctx, opts.Method, current.String(), nil)
		if err != nil {
			return nil, nil, err
		}
		for k, vals := range opts.Headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		resp, err := noRedirect.Do(req)
		if err != nil {
			return nil, nil, err
		}

		if !isRedirect(resp.StatusCode) {
			return resp, current, nil
		}

		loc := resp.Header.Get("Location")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if loc == "" {
			return nil, nil, fmt.Errorf("redirect %d without Location header", resp.StatusCode)
		}

		next, err := current.Parse(loc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redirect target: %w", err)
		}

		g.logger.Debug().
			Str("from", current.String()).
			Str("to", next.String()).
			Int("hop", hop+1).
			Msg("Following redirect")

		current = next
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	}
	return false
}
