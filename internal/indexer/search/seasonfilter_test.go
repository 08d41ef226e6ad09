package search

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/indexer/types"
)

func titlesOf(releases []types.ReleaseResult) []string {
	out := make([]string, len(releases))
	for i, r := range releases {
		out[i] = r.Title
	}
	return out
}

func releasesFor(titles ...string) []types.ReleaseResult {
	out := make([]types.ReleaseResult, len(titles))
	for i, title := range titles {
		out[i] = types.ReleaseResult{GUID: title, Title: title}
	}
	return out
}

func TestFilterSeasonEpisodeInteractiveRejectsPacks(t *testing.T) {
	releases := releasesFor(
		"Smallville.S01E01.1080p.WEBRip",
		"Smallville.S01.COMPLETE.1080p.BluRay",
		"Smallville.S01-S05.1080p.BluRay",
	)
	criteria := types.SearchCriteria{
		Type:    types.SearchTypeTV,
		Source:  types.SearchSourceInteractive,
		Season:  intPtr(1),
		Episode: intPtr(1),
	}

	got := FilterSeasonEpisode(releases, criteria, zerolog.Nop())

	if len(got) != 1 || got[0].Title != "Smallville.S01E01.1080p.WEBRip" {
		t.Errorf("expected only the single episode to survive, got %v", titlesOf(got))
	}
}

func TestFilterSeasonEpisodeAutomaticAcceptsPacks(t *testing.T) {
	releases := releasesFor(
		"Smallville.S01E01.1080p.WEBRip",
		"Smallville.S01.COMPLETE.1080p.BluRay",
		"Smallville.S02.COMPLETE.1080p.BluRay",
	)
	criteria := types.SearchCriteria{
		Type:    types.SearchTypeTV,
		Source:  types.SearchSourceAutomatic,
		Season:  intPtr(1),
		Episode: intPtr(1),
	}

	got := FilterSeasonEpisode(releases, criteria, zerolog.Nop())

	want := map[string]bool{
		"Smallville.S01E01.1080p.WEBRip":       true,
		"Smallville.S01.COMPLETE.1080p.BluRay": true,
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %v", titlesOf(got))
	}
	for _, r := range got {
		if !want[r.Title] {
			t.Errorf("unexpected survivor %q", r.Title)
		}
	}
}

func TestFilterSeasonOnlyWantsPacks(t *testing.T) {
	releases := releasesFor(
		"Show.S03.COMPLETE.1080p",
		"Show.S03E04.1080p",
		"Show.S01-S05.COMPLETE.1080p",
	)
	criteria := types.SearchCriteria{
		Type:   types.SearchTypeTV,
		Season: intPtr(3),
	}

	got := FilterSeasonEpisode(releases, criteria, zerolog.Nop())

	for _, r := range got {
		if r.Title == "Show.S03E04.1080p" {
			t.Error("season-only search must not surface individual episodes")
		}
	}
	found := false
	for _, r := range got {
		if r.Title == "Show.S03.COMPLETE.1080p" {
			found = true
		}
	}
	if !found {
		t.Error("season pack covering the target season should survive")
	}
}

func TestFilterSeasonEpisodeWrongSeasonRejected(t *testing.T) {
	releases := releasesFor("Show.S02E01.1080p", "Show.S01E01.1080p")
	criteria := types.SearchCriteria{
		Type:    types.SearchTypeTV,
		Source:  types.SearchSourceInteractive,
		Season:  intPtr(1),
		Episode: intPtr(1),
	}

	got := FilterSeasonEpisode(releases, criteria, zerolog.Nop())

	if len(got) != 1 || got[0].Title != "Show.S01E01.1080p" {
		t.Errorf("expected only the S01E01 release, got %v", titlesOf(got))
	}
}

func TestFilterSeasonEpisodeNonTVPassthrough(t *testing.T) {
	releases := releasesFor("Movie.2024.1080p.BluRay")
	criteria := types.SearchCriteria{Type: types.SearchTypeMovie}

	got := FilterSeasonEpisode(releases, criteria, zerolog.Nop())
	if len(got) != 1 {
		t.Errorf("movie criteria must not filter, got %v", titlesOf(got))
	}
}

func TestFilterSeasonEpisodeUnparseableRejected(t *testing.T) {
	releases := releasesFor("complete garbage title", "Show.S01E01.1080p")
	criteria := types.SearchCriteria{
		Type:    types.SearchTypeTV,
		Source:  types.SearchSourceInteractive,
		Season:  intPtr(1),
		Episode: intPtr(1),
	}

	got := FilterSeasonEpisode(releases, criteria, zerolog.Nop())
	if len(got) != 1 || got[0].Title != "Show.S01E01.1080p" {
		t.Errorf("unparseable titles must be rejected, got %v", titlesOf(got))
	}
}
