package search

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/indexer"
	"github.com/keonramses/cinephage/internal/indexer/status"
	"github.com/keonramses/cinephage/internal/indexer/types"
)

// fakeDriver records every criteria it is called with and replays a
// scripted sequence of responses.
type fakeDriver struct {
	id   int64
	name string
	caps types.Capabilities

	mu        sync.Mutex
	calls     []types.SearchCriteria
	responses []fakeResponse
}

type fakeResponse struct {
	releases []types.ReleaseResult
	err      error
}

func (f *fakeDriver) ID() int64                        { return f.id }
func (f *fakeDriver) Name() string                     { return f.name }
func (f *fakeDriver) BaseURL() string                  { return "https://indexer.example.com" }
func (f *fakeDriver) Priority() int                    { return 25 }
func (f *fakeDriver) Capabilities() types.Capabilities { return f.caps }
func (f *fakeDriver) InteractiveSearchEnabled() bool   { return true }
func (f *fakeDriver) AutomaticSearchEnabled() bool     { return true }

func movieCaps() types.Capabilities {
	return types.Capabilities{SupportsMovieSearch: true, MovieSearchParams: []string{"q"}}
}

func (f *fakeDriver) Search(ctx context.Context, criteria types.SearchCriteria) ([]types.ReleaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, criteria)
	if len(f.responses) == 0 {
		return nil, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp.releases, resp.err
}

func (f *fakeDriver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDriver) call(i int) types.SearchCriteria {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func newTestOrchestrator(t *testing.T, drivers ...indexer.Driver) *Orchestrator {
	t.Helper()
	registry := indexer.NewRegistry()
	for _, d := range drivers {
		registry.Register(d)
	}
	tracker := status.NewTracker(zerolog.Nop())
	return NewOrchestrator(registry, tracker, zerolog.Nop())
}

func TestSearchNoEligibleIndexers(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.Search(context.Background(), types.SearchCriteria{
		Type:  types.SearchTypeMovie,
		Query: "anything",
	}, DefaultOptions())

	if result == nil {
		t.Fatal("expected a result, got nil")
	}
	if len(result.Releases) != 0 {
		t.Errorf("expected no releases, got %d", len(result.Releases))
	}
	if result.TotalResults != 0 {
		t.Errorf("expected totalResults=0, got %d", result.TotalResults)
	}
	if result.FromCache {
		t.Error("empty registry result must not claim cache origin")
	}
}

func TestSearchFanOutDedupAndCache(t *testing.T) {
	d1 := &fakeDriver{id: 1, name: "alpha", caps: movieCaps(), responses: []fakeResponse{
		{releases: []types.ReleaseResult{
			{GUID: "a1", IndexerID: 1, IndexerName: "alpha", Title: "Movie.2024.1080p.BluRay-GRP", Seeders: 10, Size: 4 << 30},
		}},
		// second scripted response only matters if caching fails
		{releases: nil},
	}}
	d2 := &fakeDriver{id: 2, name: "beta", caps: movieCaps(), responses: []fakeResponse{
		{releases: []types.ReleaseResult{
			{GUID: "b1", IndexerID: 2, IndexerName: "beta", Title: "Movie.2024.1080p.BluRay-OTHER", Seeders: 25, Size: 4 << 30},
		}},
		{releases: nil},
	}}

	o := newTestOrchestrator(t, d1, d2)
	criteria := types.SearchCriteria{Type: types.SearchTypeMovie, Query: "Movie"}
	opts := DefaultOptions()
	opts.UseTieredSearch = false

	result := o.Search(context.Background(), criteria, opts)

	if result.IndexersSearched != 2 {
		t.Errorf("expected 2 indexers searched, got %d", result.IndexersSearched)
	}
	if len(result.Releases) != 1 {
		t.Fatalf("expected equivalent titles to collapse, got %d releases", len(result.Releases))
	}
	if result.Releases[0].Seeders != 25 {
		t.Errorf("dedup should prefer the better-seeded duplicate, got %d", result.Releases[0].Seeders)
	}

	// Second identical search is served from the cache without hitting
	// the drivers again.
	cached := o.Search(context.Background(), criteria, opts)
	if !cached.FromCache {
		t.Error("expected second search to come from cache")
	}
	if d1.callCount() != 1 || d2.callCount() != 1 {
		t.Errorf("cached search hit upstream: %d/%d calls", d1.callCount(), d2.callCount())
	}
}

func TestSearchRecordsIndexerErrors(t *testing.T) {
	failing := &fakeDriver{id: 1, name: "broken", caps: movieCaps(), responses: []fakeResponse{
		{err: context.DeadlineExceeded},
	}}
	healthy := &fakeDriver{id: 2, name: "ok", caps: movieCaps(), responses: []fakeResponse{
		{releases: []types.ReleaseResult{
			{GUID: "x", IndexerID: 2, IndexerName: "ok", Title: "Thing.2024.1080p.WEB-DL"},
		}},
	}}

	o := newTestOrchestrator(t, failing, healthy)
	opts := DefaultOptions()
	opts.UseTieredSearch = false
	opts.UseCache = false

	result := o.Search(context.Background(), types.SearchCriteria{
		Type:  types.SearchTypeMovie,
		Query: "thing",
	}, opts)

	if len(result.Releases) != 1 {
		t.Errorf("one indexer failing must not sink the result: got %d releases", len(result.Releases))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 indexer error, got %d", len(result.Errors))
	}
	if result.Errors[0].IndexerName != "broken" {
		t.Errorf("error attributed to %q", result.Errors[0].IndexerName)
	}
	if result.Errors[0].Tag != ErrorTagTimeout {
		t.Errorf("deadline should classify as timeout, got %q", result.Errors[0].Tag)
	}
}

func TestSearchErrorTaxonomy(t *testing.T) {
	blocked := &fakeDriver{id: 1, name: "walled", caps: movieCaps(), responses: []fakeResponse{
		{err: indexer.NewCloudflareError(1, "walled")},
	}}
	flaky := &fakeDriver{id: 2, name: "flaky", caps: movieCaps(), responses: []fakeResponse{
		{err: indexer.NewSearchError(2, "flaky", context.Canceled)},
	}}

	o := newTestOrchestrator(t, blocked, flaky)
	opts := DefaultOptions()
	opts.UseTieredSearch = false
	opts.UseCache = false

	result := o.Search(context.Background(), types.SearchCriteria{
		Type:  types.SearchTypeMovie,
		Query: "thing",
	}, opts)

	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 indexer errors, got %d", len(result.Errors))
	}
	byName := map[string]IndexerSearchError{}
	for _, e := range result.Errors {
		byName[e.IndexerName] = e
	}

	cf := byName["walled"]
	if cf.Tag != ErrorTagCloudflare {
		t.Errorf("cloudflare error tagged %q", cf.Tag)
	}
	if cf.Code != indexer.ErrCodeCloudflare || cf.Retryable {
		t.Errorf("cloudflare error: code %q retryable %v", cf.Code, cf.Retryable)
	}

	se := byName["flaky"]
	if se.Code != indexer.ErrCodeSearch || !se.Retryable {
		t.Errorf("search error: code %q retryable %v", se.Code, se.Retryable)
	}
}

func TestSearchDefaultsCategoriesByType(t *testing.T) {
	d := &fakeDriver{id: 1, name: "alpha", caps: movieCaps()}

	o := newTestOrchestrator(t, d)
	opts := DefaultOptions()
	opts.UseTieredSearch = false
	opts.UseCache = false

	o.Search(context.Background(), types.SearchCriteria{
		Type:  types.SearchTypeMovie,
		Query: "movie",
	}, opts)

	if d.callCount() != 1 {
		t.Fatalf("expected 1 driver call, got %d", d.callCount())
	}
	got := d.call(0).Categories
	want := indexer.MovieCategories()
	if len(got) != len(want) {
		t.Fatalf("categories = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("categories = %v, want %v", got, want)
		}
	}

	// Caller-supplied categories pass through untouched.
	o.Search(context.Background(), types.SearchCriteria{
		Type:       types.SearchTypeMovie,
		Query:      "movie",
		Categories: []int{indexer.CategoryMoviesUHD},
	}, opts)
	got = d.call(1).Categories
	if len(got) != 1 || got[0] != indexer.CategoryMoviesUHD {
		t.Errorf("explicit categories overridden: %v", got)
	}
}

func TestSearchLimitTruncation(t *testing.T) {
	releases := make([]types.ReleaseResult, 7)
	for i := range releases {
		releases[i] = types.ReleaseResult{
			GUID:      string(rune('a' + i)),
			IndexerID: 1, IndexerName: "alpha",
			// Distinct hashes keep dedup out of the way.
			InfoHash: string(rune('a' + i)),
			Title:    "Movie.2024.1080p",
		}
	}
	d := &fakeDriver{id: 1, name: "alpha", caps: movieCaps(), responses: []fakeResponse{{releases: releases}}}

	o := newTestOrchestrator(t, d)
	opts := DefaultOptions()
	opts.UseTieredSearch = false
	opts.UseCache = false

	result := o.Search(context.Background(), types.SearchCriteria{
		Type:  types.SearchTypeMovie,
		Query: "movie",
		Limit: 3,
	}, opts)

	if len(result.Releases) != 3 {
		t.Errorf("expected limit to truncate to 3, got %d", len(result.Releases))
	}
	if result.TotalResults != 3 {
		t.Errorf("totalResults should match the returned releases, got %d", result.TotalResults)
	}
}

func TestTieredSearchFallbackToText(t *testing.T) {
	d := &fakeDriver{
		id: 1, name: "alpha",
		caps: types.Capabilities{
			SupportsTVSearch: true,
			TVSearchParams:   []string{"q", "imdbid", "tvdbid", "season", "ep"},
		},
		responses: []fakeResponse{
			{releases: nil}, // ID tier: empty
			{releases: []types.ReleaseResult{{GUID: "r1", Title: "My.Show.S01E05.1080p"}}},
		},
	}
	o := newTestOrchestrator(t, d)

	criteria := types.SearchCriteria{
		Type:    types.SearchTypeTV,
		Query:   "My Show",
		ImdbID:  "tt1234567",
		TvdbID:  123456,
		Season:  intPtr(1),
		Episode: intPtr(5),
	}

	results, method, err := o.tieredSearch(context.Background(), d, criteria)
	if err != nil {
		t.Fatalf("tieredSearch failed: %v", err)
	}
	if method != SearchMethodText {
		t.Errorf("expected method %q, got %q", SearchMethodText, method)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 release, got %d", len(results))
	}
	if d.callCount() != 2 {
		t.Fatalf("expected exactly 2 upstream calls, got %d", d.callCount())
	}

	second := d.call(1)
	if second.Query != "My Show" {
		t.Errorf("text tier should carry the query, got %q", second.Query)
	}
	if second.ImdbID != "" || second.TvdbID != 0 {
		t.Errorf("text tier must strip external IDs, got imdb=%q tvdb=%d", second.ImdbID, second.TvdbID)
	}
}

func TestTieredSearchMovieIDRetryStrip(t *testing.T) {
	d := &fakeDriver{
		id: 1, name: "alpha",
		caps: types.Capabilities{
			SupportsMovieSearch: true,
			MovieSearchParams:   []string{"q", "imdbid"},
		},
		responses: []fakeResponse{
			{releases: nil}, // ID + query + year: empty
			{releases: []types.ReleaseResult{{GUID: "m1", Title: "Now.You.See.Me.Now.You.Dont.2025.1080p"}}},
		},
	}
	o := newTestOrchestrator(t, d)

	criteria := types.SearchCriteria{
		Type:   types.SearchTypeMovie,
		Source: types.SearchSourceInteractive,
		Query:  "Now You See Me: Now You Don't",
		Year:   2025,
		ImdbID: "tt4712810",
	}

	results, method, err := o.tieredSearch(context.Background(), d, criteria)
	if err != nil {
		t.Fatalf("tieredSearch failed: %v", err)
	}
	if method != SearchMethodID {
		t.Errorf("expected method %q, got %q", SearchMethodID, method)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 release, got %d", len(results))
	}
	if d.callCount() != 2 {
		t.Fatalf("expected exactly 2 upstream calls, got %d", d.callCount())
	}

	second := d.call(1)
	if second.Query != "" || second.Year != 0 {
		t.Errorf("retry must strip query and year, got q=%q year=%d", second.Query, second.Year)
	}
	if second.ImdbID != "tt4712810" {
		t.Errorf("retry must keep the ID, got %q", second.ImdbID)
	}
}

func TestTieredSearchNoIDNoQuerySkipped(t *testing.T) {
	d := &fakeDriver{id: 1, name: "alpha", caps: types.Capabilities{SupportsTVSearch: true, TVSearchParams: []string{"q"}}}
	o := newTestOrchestrator(t, d)

	_, method, err := o.tieredSearch(context.Background(), d, types.SearchCriteria{
		Type:   types.SearchTypeTV,
		TvdbID: 42,
	})
	if err != nil {
		t.Fatalf("tieredSearch failed: %v", err)
	}
	if method != SearchMethodSkipped {
		t.Errorf("expected skip, got %q", method)
	}
	if d.callCount() != 0 {
		t.Errorf("skip must not call upstream, got %d calls", d.callCount())
	}
}
