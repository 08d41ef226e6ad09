package parser

import (
	"testing"
)

func TestParseSingleEpisode(t *testing.T) {
	info := Parse("Smallville.S01E01.1080p.WEB-DL.x264")
	if !info.Parsed {
		t.Fatal("title not parsed")
	}
	if info.Season != 1 {
		t.Errorf("Season = %d, want 1", info.Season)
	}
	if !info.ContainsEpisode(1) || info.ContainsEpisode(2) {
		t.Errorf("Episodes = %v, want [1]", info.Episodes)
	}
	if info.IsSeasonPack || info.IsCompleteSeries {
		t.Error("single episode flagged as a pack")
	}
}

func TestParseSeasonPacks(t *testing.T) {
	tests := []struct {
		title       string
		season      int
		wantSeasons []int
	}{
		{"Smallville Season 1 Complete 720p", 1, []int{1}},
		{"Smallville.S02.1080p.BluRay", 2, []int{2}},
		{"Show.S01-S05.1080p.Pack", 1, []int{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			info := Parse(tt.title)
			if !info.Parsed || !info.IsSeasonPack {
				t.Fatalf("Parsed=%v IsSeasonPack=%v, want a season pack", info.Parsed, info.IsSeasonPack)
			}
			if info.Season != tt.season {
				t.Errorf("Season = %d, want %d", info.Season, tt.season)
			}
			for _, s := range tt.wantSeasons {
				if !info.CoversSeason(s) {
					t.Errorf("CoversSeason(%d) = false", s)
				}
			}
			if info.CoversSeason(tt.wantSeasons[len(tt.wantSeasons)-1] + 1) {
				t.Error("covers a season beyond the span")
			}
		})
	}
}

func TestParseCompleteSeries(t *testing.T) {
	for _, title := range []string{
		"Smallville.Complete.Series.1080p",
		"Show.Complete.Collection.x265",
		"Show All Seasons 720p",
	} {
		info := Parse(title)
		if !info.IsCompleteSeries || !info.IsSeasonPack {
			t.Errorf("%q: IsCompleteSeries=%v IsSeasonPack=%v", title, info.IsCompleteSeries, info.IsSeasonPack)
		}
		if !info.CoversSeason(1) || !info.CoversSeason(12) {
			t.Errorf("%q: complete series should cover any season", title)
		}
	}
}

func TestParseEpisodeSpan(t *testing.T) {
	info := Parse("Show.S03E01-E04.1080p")
	if !info.Parsed {
		t.Fatal("title not parsed")
	}
	if info.Season != 3 {
		t.Errorf("Season = %d, want 3", info.Season)
	}
	for e := 1; e <= 4; e++ {
		if !info.ContainsEpisode(e) {
			t.Errorf("ContainsEpisode(%d) = false", e)
		}
	}
	if info.ContainsEpisode(5) {
		t.Error("span leaked past its end")
	}
}

func TestParseAlternateEpisodeForm(t *testing.T) {
	info := Parse("Show.3x05.720p.HDTV")
	if !info.Parsed {
		t.Fatal("1x05-style title not parsed")
	}
	if info.Season != 3 || !info.ContainsEpisode(5) {
		t.Errorf("Season=%d Episodes=%v, want season 3 episode 5", info.Season, info.Episodes)
	}
}

func TestParseUnstructuredTitle(t *testing.T) {
	for _, title := range []string{
		"Some.Movie.2023.1080p.BluRay.x264",
		"complete garbage title",
	} {
		info := Parse(title)
		if info.Parsed {
			t.Errorf("%q: Parsed = true, want false", title)
		}
		if info.CoversSeason(1) {
			t.Errorf("%q: covers season 1 without structure", title)
		}
	}
}

func TestQualityTier(t *testing.T) {
	tests := []struct {
		title string
		want  float64
	}{
		{"Movie.2023.2160p.UHD.BluRay", 1.0},
		{"Movie.2023.4K.HDR.WEB-DL", 1.0},
		{"Movie.2023.1080p.BluRay.x264", 0.8},
		{"Show.S01E01.720p.HDTV", 0.6},
		{"Movie.2023.DVDRip.XviD", 0.3},
		{"Movie.2023.HDCAM.x264", 0.3},
		{"Movie.2023.WEB-DL", 0.4},
	}
	for _, tt := range tests {
		if got := QualityTier(tt.title); got != tt.want {
			t.Errorf("QualityTier(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}
