package worker

import (
	"context"
	"fmt"
	"strconv"

	"github.com/JakeFAU/streetview-harvester/internal/dispatcher"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// SearchRecorder persists the outcome of a panorama search.
type SearchRecorder interface {
	RecordSearchOutcome(ctx context.Context, pointID int64, panos []harvest.Panorama) error
}

// SearchConfig controls SearchWorker behaviour.
type SearchConfig struct {
	// CountEmptyAsSearched marks points with no panoramas as searched. When
	// false such points stay unsearched and are retried by later batches.
	CountEmptyAsSearched bool
}

// SearchWorker resolves one sample point into panorama records.
type SearchWorker struct {
	store    SearchRecorder
	searcher harvest.PanoramaSearcher
	cfg      SearchConfig
}

var _ dispatcher.Processor[harvest.SamplePoint] = (*SearchWorker)(nil)

// NewSearchWorker constructs a SearchWorker.
func NewSearchWorker(store SearchRecorder, searcher harvest.PanoramaSearcher, cfg SearchConfig) *SearchWorker {
	return &SearchWorker{store: store, searcher: searcher, cfg: cfg}
}

// UnitID identifies a point in progress events.
func (w *SearchWorker) UnitID(p harvest.SamplePoint) string {
	return strconv.FormatInt(p.ID, 10)
}

// Process searches around p and records what was found. Failures leave the
// point unsearched.
func (w *SearchWorker) Process(ctx context.Context, p harvest.SamplePoint) dispatcher.Result {
	panos, err := w.searcher.Search(ctx, p.Lat, p.Lon)
	if err != nil {
		return dispatcher.Result{Outcome: harvest.OutcomeError, Err: fmt.Errorf("point %d: %w", p.ID, err)}
	}
	if len(panos) == 0 && !w.cfg.CountEmptyAsSearched {
		return dispatcher.Result{Outcome: harvest.OutcomeEmptyRetry}
	}
	if err := w.store.RecordSearchOutcome(ctx, p.ID, panos); err != nil {
		return dispatcher.Result{Outcome: harvest.OutcomeError, Err: fmt.Errorf("record point %d: %w", p.ID, err)}
	}
	if len(panos) == 0 {
		return dispatcher.Result{Outcome: harvest.OutcomeEmpty}
	}
	return dispatcher.Result{Outcome: harvest.OutcomeFound, Found: int64(len(panos))}
}
