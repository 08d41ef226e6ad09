package search

import (
	"math"
	"sort"
	"time"

	"github.com/keonramses/cinephage/internal/indexer/types"
	"github.com/keonramses/cinephage/internal/parser"
)

// RankWeights are the relative weights of each score component.
type RankWeights struct {
	Seeders   float64
	Freshness float64
	Quality   float64
	Size      float64
}

// DefaultRankWeights returns the default weighting.
func DefaultRankWeights() RankWeights {
	return RankWeights{Seeders: 0.40, Freshness: 0.20, Quality: 0.25, Size: 0.15}
}

// Ranker orders releases by a weighted desirability score.
type Ranker struct {
	weights RankWeights
}

// NewRanker creates a ranker with the given weights.
func NewRanker(weights RankWeights) *Ranker {
	return &Ranker{weights: weights}
}

// NewDefaultRanker creates a ranker with the default weights.
func NewDefaultRanker() *Ranker {
	return NewRanker(DefaultRankWeights())
}

// Rank sorts releases by score descending. The sort is stable so the
// deduplicator's earlier preference survives score ties.
func (r *Ranker) Rank(releases []types.ReleaseResult) {
	now := time.Now()
	scores := make([]float64, len(releases))
	for i := range releases {
		scores[i] = r.Score(releases[i], now)
	}
	// Sort an index view so scores stay attached to their releases
	// while the sort permutes.
	idx := make([]int, len(releases))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return scores[idx[i]] > scores[idx[j]]
	})
	ordered := make([]types.ReleaseResult, len(releases))
	for i, k := range idx {
		ordered[i] = releases[k]
	}
	copy(releases, ordered)
}

// Score computes the weighted desirability of a single release.
func (r *Ranker) Score(release types.ReleaseResult, now time.Time) float64 {
	return r.weights.Seeders*seederScore(release.Seeders) +
		r.weights.Freshness*freshnessScore(release.PublishDate, now) +
		r.weights.Quality*parser.QualityTier(release.Title) +
		r.weights.Size*sizeScore(release.Size)
}

// seederScore is logarithmic and saturates at 1000 seeders.
func seederScore(seeders int) float64 {
	if seeders <= 0 {
		return 0
	}
	return math.Min(math.Log10(float64(seeders)+1)/3, 1)
}

// freshnessScore decays exponentially with 30-day half-life-ish scale.
func freshnessScore(published time.Time, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	ageDays := now.Sub(published).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / 30)
}

// sizeScore prefers the 2-15 GB sweet spot. Unknown sizes are neutral.
func sizeScore(size int64) float64 {
	if size <= 0 {
		return 0.5
	}
	gb := float64(size) / (1024 * 1024 * 1024)
	switch {
	case gb >= 2 && gb <= 15:
		return 0.8 + math.Min(gb, 10)/10*0.2
	case gb < 1:
		return 0.3
	case gb > 30:
		return 0.7
	default:
		return 0.6
	}
}
