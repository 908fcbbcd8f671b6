package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/progress"
)

// PublisherSink forwards event records to a topic. Unit events are skipped
// unless IncludeUnits is set, keeping message volume proportional to batches.
type PublisherSink struct {
	pub          harvest.Publisher
	topic        string
	IncludeUnits bool
	logger       *zap.Logger
}

// NewPublisherSink builds a sink publishing to topic.
func NewPublisherSink(pub harvest.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes every eligible event and returns the joined failures.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if evt.Stage == progress.StageUnitDone && !s.IncludeUnits {
			continue
		}
		id, err := s.pub.Publish(ctx, s.topic, evt.Record())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("progress event published",
			zap.String("topic", s.topic),
			zap.String("message_id", id),
			zap.String("stage", string(evt.Stage)),
		)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Close implements the Sink interface; the publisher is closed by its owner.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
