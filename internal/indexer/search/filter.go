package search

import (
	"sort"

	"github.com/keonramses/cinephage/internal/indexer"
	"github.com/keonramses/cinephage/internal/indexer/types"
)

// Rejection reasons are stable strings; tests and API consumers match
// on them.
const (
	RejectSearchType    = "searchType"
	RejectSearchSource  = "searchSource"
	RejectDisabled      = "disabled"
	RejectBackoff       = "backoff"
	RejectIndexerFilter = "indexerFilter"
)

// RejectedIndexer pairs an ineligible indexer with the single reason it
// was excluded.
type RejectedIndexer struct {
	IndexerID   int64  `json:"indexerId"`
	IndexerName string `json:"indexerName"`
	Reason      string `json:"reason"`
}

// filterIndexers reduces the candidate set to indexers eligible for the
// criteria and options, producing a parallel rejection list. Checks run
// in a fixed order and the first failing check names the reason.
// Eligible indexers come back sorted by priority ascending with a
// stable indexer-id tie-break.
func (o *Orchestrator) filterIndexers(drivers []indexer.Driver, criteria types.SearchCriteria, opts Options) ([]indexer.Driver, []RejectedIndexer) {
	eligible := make([]indexer.Driver, 0, len(drivers))
	rejected := make([]RejectedIndexer, 0)

	allow := make(map[int64]bool, len(criteria.IndexerIDs))
	for _, id := range criteria.IndexerIDs {
		allow[id] = true
	}

	for _, d := range drivers {
		if reason := o.rejectReason(d, criteria, opts, allow); reason != "" {
			rejected = append(rejected, RejectedIndexer{
				IndexerID:   d.ID(),
				IndexerName: d.Name(),
				Reason:      reason,
			})
			continue
		}
		eligible = append(eligible, d)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority() != eligible[j].Priority() {
			return eligible[i].Priority() < eligible[j].Priority()
		}
		return eligible[i].ID() < eligible[j].ID()
	})

	return eligible, rejected
}

func (o *Orchestrator) rejectReason(d indexer.Driver, criteria types.SearchCriteria, opts Options, allow map[int64]bool) string {
	caps := d.Capabilities()

	switch criteria.Type {
	case types.SearchTypeMovie:
		if !caps.SupportsMovieSearch {
			return RejectSearchType
		}
	case types.SearchTypeTV:
		if !caps.SupportsTVSearch {
			return RejectSearchType
		}
	default:
		if !caps.SupportsSearch {
			return RejectSearchType
		}
	}

	switch opts.SearchSource {
	case types.SearchSourceInteractive:
		if !d.InteractiveSearchEnabled() {
			return RejectSearchSource
		}
	case types.SearchSourceAutomatic:
		if !d.AutomaticSearchEnabled() {
			return RejectSearchSource
		}
	}

	if opts.RespectEnabled && o.status != nil && !o.status.IsEnabled(d.ID()) {
		return RejectDisabled
	}

	if opts.RespectBackoff && o.status != nil && !o.status.CanUse(d.ID()) {
		return RejectBackoff
	}

	if len(allow) > 0 && !allow[d.ID()] {
		return RejectIndexerFilter
	}

	return ""
}
