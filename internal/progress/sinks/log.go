package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/streetview-harvester/internal/progress"
)

// LogSink writes events as structured log lines. Unit events go to Debug so a
// production logger only shows run, batch and checkpoint milestones.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := zapcore.InfoLevel
		switch evt.Stage {
		case progress.StageUnitDone:
			level = zapcore.DebugLevel
		case progress.StageRunError:
			level = zapcore.ErrorLevel
		}
		ce := s.logger.Check(level, "progress event")
		if ce == nil {
			continue
		}
		ce.Write(fields(evt)...)
	}
	return nil
}

func fields(evt progress.Event) []zap.Field {
	out := []zap.Field{
		zap.Stringer("run_id", evt.RunUUID()),
		zap.String("pass", string(evt.Pass)),
		zap.String("stage", string(evt.Stage)),
	}
	switch evt.Stage {
	case progress.StageUnitDone:
		out = append(out,
			zap.String("unit_id", evt.UnitID),
			zap.String("status", evt.Status()),
			zap.Int64("found", evt.Found),
			zap.Duration("dur", evt.Dur),
		)
		if evt.Date != "" {
			out = append(out, zap.String("date", evt.Date))
		}
		if evt.Copyright != "" {
			out = append(out, zap.String("copyright", evt.Copyright))
		}
	case progress.StageSampleCheckpoint:
		out = append(out,
			zap.String("label", evt.Label),
			zap.Int64("checked", evt.Checked),
			zap.Int64("total", evt.Total),
			zap.Int64("found", evt.Found),
		)
	default:
		out = append(out,
			zap.Int64("checked", evt.Checked),
			zap.Int64("total", evt.Total),
			zap.Duration("dur", evt.Dur),
		)
		if rate := evt.Rate(); rate > 0 {
			out = append(out, zap.Float64("units_per_sec", rate))
		}
	}
	if evt.Note != "" {
		out = append(out, zap.String("note", evt.Note))
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
