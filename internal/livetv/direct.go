package livetv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/metrics"
	"github.com/keonramses/cinephage/internal/ssrf"
)

const (
	dataTimeout          = 10 * time.Second
	firstByteTimeout     = 15 * time.Second
	healthCheckInterval  = time.Second
	maxReconnects        = 500
	directBackoffBase    = time.Second
	directBackoffMax     = 30 * time.Second
	directCopyBufferSize = 64 * 1024
)

// ErrMaxReconnects is returned when the reconnect safety cap is hit.
var ErrMaxReconnects = errors.New("maximum reconnect attempts reached")

// errStalled marks a health-check triggered teardown.
var errStalled = errors.New("no data received within timeout")

// DirectStream pipes a direct TS upstream to the client, transparently
// reconnecting when the portal closes the socket. Bytes are emitted
// verbatim and never replayed after a reconnect.
type DirectStream struct {
	resolver *Resolver
	guard    *ssrf.Guard
	logger   zerolog.Logger
}

// NewDirectStream creates a resilient direct stream pump.
func NewDirectStream(resolver *Resolver, guard *ssrf.Guard, logger zerolog.Logger) *DirectStream {
	return &DirectStream{
		resolver: resolver,
		guard:    guard,
		logger:   logger.With().Str("component", "direct-stream").Logger(),
	}
}

// Run streams TS bytes to w until the client cancels ctx or a terminal
// failure occurs. Upstream EOF reconnects immediately; errors back off
// exponentially with reset on success.
func (s *DirectStream) Run(ctx context.Context, lineupItemID string, w io.Writer) error {
	reconnects := 0
	errorStreak := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if reconnects > maxReconnects {
			return fmt.Errorf("%w: %d", ErrMaxReconnects, maxReconnects)
		}

		wrote, err := s.pipeOnce(ctx, lineupItemID, reconnects > 0, w)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reconnects++
		switch {
		case err == nil:
			// Clean upstream EOF: reconnect with a fresh URL, no delay.
			errorStreak = 0
			metrics.LiveTVReconnectsTotal.WithLabelValues("eof").Inc()
		case errors.Is(err, errStalled):
			errorStreak = 0
			metrics.LiveTVReconnectsTotal.WithLabelValues("stall").Inc()
			s.logger.Warn().
				Str("lineupItemId", lineupItemID).
				Int("reconnects", reconnects).
				Msg("Stream stalled, reconnecting")
		default:
			var allFailed *AllSourcesFailedError
			if errors.As(err, &allFailed) {
				return err
			}
			if wrote {
				errorStreak = 0
			}
			errorStreak++
			metrics.LiveTVReconnectsTotal.WithLabelValues("error").Inc()
			delay := directBackoff(errorStreak)
			s.logger.Warn().
				Err(err).
				Str("lineupItemId", lineupItemID).
				Int("reconnects", reconnects).
				Dur("delay", delay).
				Msg("Stream error, backing off before reconnect")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// pipeOnce opens one upstream connection and copies until EOF, error,
// or a stall. Returns whether any bytes were written.
func (s *DirectStream) pipeOnce(ctx context.Context, lineupItemID string, fresh bool, w io.Writer) (bool, error) {
	var resolved *ResolvedStreamURL
	var err error
	if fresh {
		resolved, err = s.resolver.ResolveFresh(ctx, lineupItemID, "ts")
	} else {
		resolved, err = s.resolver.Resolve(ctx, lineupItemID, "ts")
	}
	if err != nil {
		return false, err
	}

	connCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The client has no overall timeout: live streams are unbounded.
	client := &http.Client{}
	resp, _, err := s.guard.Fetch(connCtx, client, resolved.URL, ssrf.FetchOptions{
		Headers: headerMap(resolved.Headers),
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var lastData atomic.Int64
	start := time.Now()
	lastData.Store(0)

	// Health check: cancel the connection when bytes stop flowing.
	go func() {
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-connCtx.Done():
				return
			case <-ticker.C:
				last := lastData.Load()
				if last == 0 {
					if time.Since(start) > firstByteTimeout {
						cancel(errStalled)
						return
					}
					continue
				}
				if time.Since(time.Unix(0, last)) > dataTimeout {
					cancel(errStalled)
					return
				}
			}
		}
	}()

	buf := make([]byte, directCopyBufferSize)
	wrote := false
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			lastData.Store(time.Now().UnixNano())
			if _, werr := w.Write(buf[:n]); werr != nil {
				return wrote, werr
			}
			wrote = true
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return wrote, nil
			}
			if cause := context.Cause(connCtx); errors.Is(cause, errStalled) {
				return wrote, errStalled
			}
			return wrote, readErr
		}
	}
}

func directBackoff(streak int) time.Duration {
	delay := directBackoffBase << (streak - 1)
	if delay > directBackoffMax || delay <= 0 {
		return directBackoffMax
	}
	return delay
}
