package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/config"
	"github.com/keonramses/cinephage/internal/indexer"
	"github.com/keonramses/cinephage/internal/indexer/search"
	"github.com/keonramses/cinephage/internal/indexer/status"
	"github.com/keonramses/cinephage/internal/usenet"
	"github.com/keonramses/cinephage/internal/usenet/nzb"
	"github.com/keonramses/cinephage/internal/websocket"
)

type mapFetcher map[string][]byte

func (m mapFetcher) GetDecodedArticle(_ context.Context, messageID string) ([]byte, error) {
	body, ok := m[messageID]
	if !ok {
		return nil, fmt.Errorf("no such article %s", messageID)
	}
	return body, nil
}

// testServer wires a server against in-memory collaborators and one
// ready mount of 5000 bytes in 1000-byte segments.
func testServer(t *testing.T) (*Server, []byte) {
	t.Helper()

	mounts := usenet.NewMemoryMounts()
	fetcher := mapFetcher{}

	content := make([]byte, 5000)
	for i := range content {
		content[i] = byte(i % 233)
	}
	file := nzb.File{Filename: "feature.mkv", Size: 5000}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("seg%d@test", i+1)
		fetcher[id] = content[i*1000 : (i+1)*1000]
		file.Segments = append(file.Segments, nzb.Segment{MessageID: id, Number: i + 1, EstimatedBytes: 1000})
	}
	mounts.AddMount(usenet.MountInfo{ID: "m1", Status: usenet.MountReady, MediaFiles: []nzb.File{file}})
	mounts.AddMount(usenet.MountInfo{ID: "rars", Status: usenet.MountRequiresExtraction})
	mounts.AddMount(usenet.MountInfo{ID: "pending", Status: usenet.MountDownloading})

	registry := indexer.NewRegistry()
	tracker := status.NewTracker(zerolog.Nop())

	deps := Deps{
		Hub:          websocket.NewHub(),
		Orchestrator: search.NewOrchestrator(registry, tracker, zerolog.Nop()),
		Tracker:      tracker,
		Usenet:       usenet.NewService(mounts, fetcher, zerolog.Nop()),
	}
	go deps.Hub.Run()

	return NewServer(deps, config.Default(), zerolog.Nop()), content
}

func TestUsenetStreamFull(t *testing.T) {
	srv, content := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/usenet/stream/m1/0", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q", got)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "matroska") && got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if rec.Body.Len() != len(content) {
		t.Errorf("body length = %d, want %d", rec.Body.Len(), len(content))
	}
}

func TestUsenetStreamRange(t *testing.T) {
	srv, content := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/usenet/stream/m1/0", nil)
	req.Header.Set("Range", "bytes=1500-2499")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 1500-2499/5000" {
		t.Errorf("Content-Range = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Errorf("Content-Length = %q", got)
	}
	if string(rec.Body.Bytes()) != string(content[1500:2500]) {
		t.Error("range body mismatch")
	}
}

func TestUsenetStreamHead(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodHead, "/usenet/stream/m1/0", nil)
	req.Header.Set("Range", "bytes=0-999")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD returned %d body bytes", rec.Body.Len())
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 0-999/5000" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestUsenetStreamErrors(t *testing.T) {
	srv, _ := testServer(t)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"unknown mount", "/usenet/stream/ghost/0", "", http.StatusNotFound},
		{"bad file index", "/usenet/stream/m1/9", "", http.StatusNotFound},
		{"non-numeric index", "/usenet/stream/m1/abc", "", http.StatusBadRequest},
		{"rar-only mount", "/usenet/stream/rars/0", "", http.StatusForbidden},
		{"mount not ready", "/usenet/stream/pending/0", "", http.StatusConflict},
		{"unsatisfiable range", "/usenet/stream/m1/0", "bytes=99999-", http.StatusRequestedRangeNotSatisfiable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Range", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.Echo().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}

	// The 416 carries the unsatisfiable Content-Range.
	req := httptest.NewRequest(http.MethodGet, "/usenet/stream/m1/0", nil)
	req.Header.Set("Range", "bytes=99999-")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	if got := rec.Header().Get("Content-Range"); got != "bytes */5000" {
		t.Errorf("Content-Range = %q, want bytes */5000", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("search without type: status = %d, want 400", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"type":"movie","query":"inception"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status = %d body %s", rec.Code, rec.Body)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["totalResults"] != float64(0) {
		t.Errorf("totalResults = %v for an empty registry", result["totalResults"])
	}
}

func TestTaskEndpointsWithoutScheduler(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/tasks", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("list tasks: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/system/tasks/x/run", nil)
	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("run task: status = %d, want 404", rec.Code)
	}
}

func TestRewritePlaylist(t *testing.T) {
	base, _ := url.Parse("http://upstream.example/live/ch1/index.m3u8")
	playlist := "#EXTM3U\n#EXT-X-TARGETDURATION:4\nseg001.ts\nhttp://other.example/seg002.ts\n"

	out, err := rewritePlaylist(strings.NewReader(playlist), base)
	if err != nil {
		t.Fatalf("rewritePlaylist: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines: %q", len(lines), out)
	}
	if lines[0] != "#EXTM3U" || lines[1] != "#EXT-X-TARGETDURATION:4" {
		t.Errorf("tag lines altered: %q %q", lines[0], lines[1])
	}
	for _, line := range lines[2:] {
		if !strings.HasPrefix(line, "/livetv/segment?u=") {
			t.Errorf("URI line not proxied: %q", line)
		}
	}
	// Relative URIs resolve against the playlist URL.
	enc := strings.TrimPrefix(lines[2], "/livetv/segment?u=")
	decoded := decodeSegmentParam(t, enc)
	if decoded != "http://upstream.example/live/ch1/seg001.ts" {
		t.Errorf("relative URI resolved to %q", decoded)
	}

	if _, err := rewritePlaylist(strings.NewReader("<html></html>"), base); err == nil {
		t.Error("accepted a non-HLS document")
	}
}

func decodeSegmentParam(t *testing.T, enc string) string {
	t.Helper()
	data, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("decode %q: %v", enc, err)
	}
	return string(data)
}

func TestIsStreamPath(t *testing.T) {
	for path, want := range map[string]bool{
		"/livetv/stream/:lineupId":           true,
		"/livetv/segment":                    true,
		"/usenet/stream/:mountId/:fileIndex": true,
		"/api/v1/search":                     false,
		"/health":                            false,
	} {
		if got := isStreamPath(path); got != want {
			t.Errorf("isStreamPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestMediaContentType(t *testing.T) {
	if got := mediaContentType("weird.unknownext"); got != "application/octet-stream" {
		t.Errorf("fallback content type = %q", got)
	}
	if got := mediaContentType("movie.mp4"); !strings.HasPrefix(got, "video/") {
		t.Errorf("mp4 content type = %q", got)
	}
}
