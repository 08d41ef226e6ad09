package livetv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/ssrf"
)

const (
	hlsRefreshBackoffBase = time.Second
	hlsRefreshBackoffMax  = 30 * time.Second
	hlsFetchTimeout       = 30 * time.Second
)

// HLSConverter collapses an upstream HLS stream into a continuous
// MPEG-TS byte stream: it keeps refreshing the media playlist and pipes
// each new segment to the output in playlist order.
type HLSConverter struct {
	resolver   *Resolver
	guard      *ssrf.Guard
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHLSConverter creates an HLS to TS converter.
func NewHLSConverter(resolver *Resolver, guard *ssrf.Guard, logger zerolog.Logger) *HLSConverter {
	return &HLSConverter{
		resolver:   resolver,
		guard:      guard,
		httpClient: &http.Client{Timeout: hlsFetchTimeout},
		logger:     logger.With().Str("component", "hls-converter").Logger(),
	}
}

// Run streams converted TS bytes to w until ctx is cancelled or a
// terminal resolution failure occurs. Playlist refresh errors back off
// exponentially and reset on the next successful fetch.
func (c *HLSConverter) Run(ctx context.Context, lineupItemID string, w io.Writer) error {
	emitted := make(map[string]struct{})
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.cycle(ctx, lineupItemID, emitted, w)
		if err == nil {
			failures = 0
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var allFailed *AllSourcesFailedError
		if errors.As(err, &allFailed) {
			return err
		}

		failures++
		delay := backoffDelay(failures)
		c.logger.Warn().
			Err(err).
			Str("lineupItemId", lineupItemID).
			Int("failures", failures).
			Dur("delay", delay).
			Msg("Playlist refresh failed, backing off")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// cycle resolves a fresh playlist URL, fetches the playlist and emits
// every segment not seen before.
func (c *HLSConverter) cycle(ctx context.Context, lineupItemID string, emitted map[string]struct{}, w io.Writer) error {
	// A fresh resolution here matters: Stalker playlist URLs carry
	// single-use tokens, so a cached URL would already be consumed.
	resolved, err := c.resolver.ResolveFresh(ctx, lineupItemID, StreamKindHLS)
	if err != nil {
		return err
	}

	resp, finalURL, err := c.guard.Fetch(ctx, c.httpClient, resolved.URL, ssrf.FetchOptions{
		Headers: headerMap(resolved.Headers),
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("playlist fetch returned status %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	head, _ := reader.Peek(7)
	if string(head) != "#EXTM3U" {
		// Not a playlist at all: pass the body through unchanged.
		_, err := io.Copy(w, reader)
		return err
	}

	segments, err := parseMediaPlaylist(reader, finalURL)
	if err != nil {
		return err
	}

	pruneEmitted(emitted, segments)

	wrote := false
	for _, seg := range segments {
		if _, seen := emitted[seg]; seen {
			continue
		}
		if err := c.emitSegment(ctx, seg, resolved.Headers, w); err != nil {
			return err
		}
		emitted[seg] = struct{}{}
		wrote = true
	}

	if !wrote {
		// Playlist unchanged; give the upstream time to roll forward.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// emitSegment fetches one media segment and pipes it to the output.
func (c *HLSConverter) emitSegment(ctx context.Context, segURL string, headers map[string]string, w io.Writer) error {
	resp, _, err := c.guard.Fetch(ctx, c.httpClient, segURL, ssrf.FetchOptions{
		Headers: headerMap(headers),
	})
	if err != nil {
		return fmt.Errorf("segment fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("segment fetch returned status %d", resp.StatusCode)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

// parseMediaPlaylist extracts segment URLs in order, absolutized
// against the playlist's final URL.
func parseMediaPlaylist(r io.Reader, base *url.URL) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var segments []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := base.Parse(line)
		if err != nil {
			continue
		}
		segments = append(segments, u.String())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

// pruneEmitted drops tracking for segments that left the playlist
// window, keeping the set bounded over long sessions.
func pruneEmitted(emitted map[string]struct{}, current []string) {
	live := make(map[string]struct{}, len(current))
	for _, seg := range current {
		live[seg] = struct{}{}
	}
	for seg := range emitted {
		if _, ok := live[seg]; !ok {
			delete(emitted, seg)
		}
	}
}

func backoffDelay(failures int) time.Duration {
	delay := hlsRefreshBackoffBase << (failures - 1)
	if delay > hlsRefreshBackoffMax || delay <= 0 {
		return hlsRefreshBackoffMax
	}
	return delay
}

func headerMap(headers map[string]string) http.Header {
	if len(headers) == 0 {
		return nil
	}
	h := make(http.Header, len(headers))
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}
