package worker

import (
	"context"
	"fmt"

	"github.com/JakeFAU/streetview-harvester/internal/dispatcher"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// MetadataRecorder persists enriched panorama attributes.
type MetadataRecorder interface {
	RecordMetadataOutcome(ctx context.Context, panoID string, md harvest.Metadata) error
}

// MetadataWorker back-fills date and copyright for one panorama.
type MetadataWorker struct {
	store   MetadataRecorder
	fetcher harvest.MetadataFetcher
}

var _ dispatcher.Processor[string] = (*MetadataWorker)(nil)

// NewMetadataWorker constructs a MetadataWorker.
func NewMetadataWorker(store MetadataRecorder, fetcher harvest.MetadataFetcher) *MetadataWorker {
	return &MetadataWorker{store: store, fetcher: fetcher}
}

// UnitID returns the panorama id unchanged.
func (w *MetadataWorker) UnitID(panoID string) string {
	return panoID
}

// Process fetches metadata for panoID and stores whatever is present.
func (w *MetadataWorker) Process(ctx context.Context, panoID string) dispatcher.Result {
	md, err := w.fetcher.Metadata(ctx, panoID)
	if err != nil {
		return dispatcher.Result{Outcome: harvest.OutcomeError, Err: err}
	}
	if md.Empty() {
		return dispatcher.Result{Outcome: harvest.OutcomeNoMetadata}
	}
	if err := w.store.RecordMetadataOutcome(ctx, panoID, md); err != nil {
		return dispatcher.Result{Outcome: harvest.OutcomeError, Err: fmt.Errorf("record metadata %s: %w", panoID, err)}
	}
	outcome := harvest.OutcomeEnriched
	if !md.Complete() {
		outcome = harvest.OutcomePartial
	}
	return dispatcher.Result{
		Outcome:   outcome,
		Date:      deref(md.Date),
		Copyright: deref(md.Copyright),
	}
}

func deref(s *string) string {
	if v := harvest.NonEmpty(s); v != nil {
		return *v
	}
	return ""
}
