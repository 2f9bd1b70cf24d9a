package courts

import (
	"context"
	"errors"
	"sort"
	"time"

	"litisdraft-backend/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyTerms    = errors.New("search terms must not be empty")
	ErrNoSources     = errors.New("at least one source is required")
	ErrInvalidLimit  = errors.New("per-source limit must be positive")
	ErrUnknownSource = errors.New("unknown source")
)

// SearchResult is the merged outcome of a fan-out search. FailedSources
// counts endpoints that contributed nothing; it is informational, never
// an error condition.
type SearchResult struct {
	Records       []models.PrecedentRecord `json:"records"`
	FailedSources int                      `json:"failed_sources"`
}

// FanoutSearcher issues the same query to several court indexes
// concurrently and merges the results. A failing source contributes
// zero records; the search as a whole never fails because of them.
type FanoutSearcher struct {
	sources        map[SourceID]Searcher
	order          []SourceID
	globalDeadline time.Duration
	logger         *zap.SugaredLogger
}

// NewFanoutSearcher creates a fan-out searcher over the given sources.
// Source order is preserved and used to break ranking ties.
func NewFanoutSearcher(sources []Searcher, globalDeadline time.Duration, logger *zap.SugaredLogger) *FanoutSearcher {
	if globalDeadline <= 0 {
		globalDeadline = 5 * time.Second
	}
	byID := make(map[SourceID]Searcher, len(sources))
	order := make([]SourceID, 0, len(sources))
	for _, s := range sources {
		byID[s.ID()] = s
		order = append(order, s.ID())
	}
	return &FanoutSearcher{
		sources:        byID,
		order:          order,
		globalDeadline: globalDeadline,
		logger:         logger,
	}
}

// SourceIDs returns the configured sources in ranking-tie order
func (f *FanoutSearcher) SourceIDs() []SourceID {
	ids := make([]SourceID, len(f.order))
	copy(ids, f.order)
	return ids
}

type rankedRecord struct {
	record      models.PrecedentRecord
	sourceOrder int
}

// Search queries every requested source concurrently and returns the
// merged records sorted by last update descending, ties broken by source
// order, truncated to perSourceLimit * len(sources). All sources failing
// yields an empty result, not an error.
func (f *FanoutSearcher) Search(
	ctx context.Context,
	terms string,
	sourceIDs []SourceID,
	perSourceLimit int,
) (*SearchResult, error) {
	if terms == "" {
		return nil, ErrEmptyTerms
	}
	if len(sourceIDs) == 0 {
		return nil, ErrNoSources
	}
	if perSourceLimit <= 0 {
		return nil, ErrInvalidLimit
	}

	queried := make([]Searcher, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		src, ok := f.sources[id]
		if !ok {
			return nil, ErrUnknownSource
		}
		queried = append(queried, src)
	}

	ctx, cancel := context.WithTimeout(ctx, f.globalDeadline)
	defer cancel()

	perSource := make([][]models.PrecedentRecord, len(queried))
	sourceErrs := make([]error, len(queried))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range queried {
		g.Go(func() error {
			records, err := src.Search(gctx, terms, perSourceLimit)
			if err != nil {
				// Recovered locally: a failed source just contributes nothing
				if f.logger != nil {
					f.logger.Warnw("precedent source failed", "source", src.ID(), "error", err)
				}
				sourceErrs[i] = err
				return nil
			}
			perSource[i] = records
			return nil
		})
	}
	// Goroutines always return nil; Wait is just the join point
	_ = g.Wait()

	var ranked []rankedRecord
	failed := 0
	for i, records := range perSource {
		if sourceErrs[i] != nil {
			failed++
			continue
		}
		for _, r := range records {
			ranked = append(ranked, rankedRecord{record: r, sourceOrder: i})
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if !ranked[a].record.LastUpdate.Equal(ranked[b].record.LastUpdate) {
			return ranked[a].record.LastUpdate.After(ranked[b].record.LastUpdate)
		}
		return ranked[a].sourceOrder < ranked[b].sourceOrder
	})

	max := perSourceLimit * len(queried)
	if len(ranked) > max {
		ranked = ranked[:max]
	}

	records := make([]models.PrecedentRecord, 0, len(ranked))
	for _, r := range ranked {
		records = append(records, r.record)
	}

	return &SearchResult{Records: records, FailedSources: failed}, nil
}
