package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keonramses/cinephage/internal/livetv"
	"github.com/keonramses/cinephage/internal/ssrf"
)

const (
	contentTypeMpegTS = "video/mp2t"
	contentTypeHLS    = "application/vnd.apple.mpegurl"

	hlsCacheControl = "public, max-age=2, stale-while-revalidate=5"
)

// livetvStream serves a lineup item. The default converts upstream HLS
// to a continuous TS stream; format=ts pipes the upstream direct
// stream; format=hls returns a rewritten playlist whose segment URLs
// point back at this server's segment proxy.
func (s *Server) livetvStream(c echo.Context) error {
	lineupID := c.Param("lineupId")
	format := c.QueryParam("format")

	switch format {
	case "hls":
		return s.livetvPlaylist(c, lineupID)
	case "ts":
		return s.livetvPipe(c, lineupID, "ts", s.deps.Direct.Run)
	default:
		return s.livetvPipe(c, lineupID, "hls", s.deps.HLS.Run)
	}
}

// livetvPipe streams TS bytes through run. Resolution is probed first
// so exhausted sources still produce a JSON 502 instead of a broken
// half-written stream.
func (s *Server) livetvPipe(c echo.Context, lineupID, format string, run func(ctx context.Context, lineupItemID string, w io.Writer) error) error {
	ctx := c.Request().Context()

	if _, err := s.deps.Resolver.Resolve(ctx, lineupID, format); err != nil {
		return s.streamError(c, err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, contentTypeMpegTS)
	resp.Header().Set("Cache-Control", "no-store")
	resp.WriteHeader(http.StatusOK)

	err := run(ctx, lineupID, resp)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug().Err(err).Str("lineupId", lineupID).Msg("Live TV stream ended")
	}
	return nil
}

// livetvPlaylist fetches the upstream HLS playlist and rewrites every
// URI line to the local segment proxy.
func (s *Server) livetvPlaylist(c echo.Context, lineupID string) error {
	ctx := c.Request().Context()

	resolved, err := s.deps.Resolver.ResolveFresh(ctx, lineupID, "hls")
	if err != nil {
		return s.streamError(c, err)
	}

	headers := make(http.Header, len(resolved.Headers))
	for k, v := range resolved.Headers {
		headers.Set(k, v)
	}
	resp, finalURL, err := s.deps.Guard.Fetch(ctx, s.segmentClient, resolved.URL, ssrf.FetchOptions{Headers: headers})
	if err != nil {
		return s.streamError(c, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "upstream playlist returned " + resp.Status})
	}

	rewritten, err := rewritePlaylist(resp.Body, finalURL)
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "invalid playlist: " + err.Error()})
	}

	c.Response().Header().Set("Cache-Control", hlsCacheControl)
	return c.Blob(http.StatusOK, contentTypeHLS, rewritten)
}

// livetvSegment proxies one media segment referenced by a rewritten
// playlist. The target URL arrives base64url-encoded and is validated
// before fetching.
func (s *Server) livetvSegment(c echo.Context) error {
	encoded := c.QueryParam("u")
	if encoded == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing u parameter"})
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid u parameter"})
	}

	ctx := c.Request().Context()
	resp, _, err := s.deps.Guard.Fetch(ctx, s.segmentClient, string(raw), ssrf.FetchOptions{})
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = contentTypeMpegTS
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=10")
	return c.Stream(resp.StatusCode, contentType, resp.Body)
}

// livetvStreamHead answers with the content type the matching GET
// would produce.
func (s *Server) livetvStreamHead(c echo.Context) error {
	contentType := contentTypeMpegTS
	if c.QueryParam("format") == "hls" {
		contentType = contentTypeHLS
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	return c.NoContent(http.StatusOK)
}

func (s *Server) livetvStreamOptions(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// streamError maps resolution failures to HTTP responses. Exhausted
// sources are a 502 with the aggregated failure message.
func (s *Server) streamError(c echo.Context, err error) error {
	var allFailed *livetv.AllSourcesFailedError
	if errors.As(err, &allFailed) {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": allFailed.Error()})
	}
	if errors.Is(err, livetv.ErrLineupItemNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "lineup item not found"})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}

// rewritePlaylist replaces every URI line with a proxy URL. Comment
// and tag lines pass through untouched.
func rewritePlaylist(r io.Reader, base *url.URL) ([]byte, error) {
	var out strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if first {
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, errors.New("missing #EXTM3U header")
			}
			first = false
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		abs := trimmed
		if parsed, err := base.Parse(trimmed); err == nil {
			abs = parsed.String()
		}
		out.WriteString("/livetv/segment?u=")
		out.WriteString(base64.RawURLEncoding.EncodeToString([]byte(abs)))
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if first {
		return nil, errors.New("empty playlist")
	}
	return []byte(out.String()), nil
}
