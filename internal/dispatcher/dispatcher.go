// Package dispatcher drains claimable work from the task store in batches,
// processing each batch with a bounded pool of goroutines.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/metrics"
	"github.com/JakeFAU/streetview-harvester/internal/progress"
)

// Claimer returns up to limit units that still need work.
type Claimer[T any] func(ctx context.Context, limit int) ([]T, error)

// Processor handles one unit. Process must not panic; the dispatcher
// recovers anyway and records the unit as an error.
type Processor[T any] interface {
	Process(ctx context.Context, unit T) Result
	UnitID(unit T) string
}

// Result describes what happened to one unit.
type Result struct {
	Outcome   harvest.Outcome
	Found     int64
	Date      string
	Copyright string
	Err       error
}

// Config controls batching and concurrency.
type Config struct {
	Pass      harvest.Pass
	BatchSize int
	Workers   int
	// IdlePoll is how long to wait before claiming again after an empty or
	// stalled batch.
	IdlePoll time.Duration
	// ExitWhenDrained stops Run instead of polling once no claimable work
	// makes progress.
	ExitWhenDrained bool
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100000
	}
	if c.Workers <= 0 {
		c.Workers = 72
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = 30 * time.Second
	}
	return c
}

// Summary totals a Run.
type Summary struct {
	Batches  int
	Units    int64
	Found    int64
	Outcomes map[harvest.Outcome]int64
	Duration time.Duration
}

// Dispatcher runs the claim/process loop for one pass.
type Dispatcher[T any] struct {
	cfg      Config
	claim    Claimer[T]
	proc     Processor[T]
	reporter *progress.Reporter
	logger   *zap.Logger
}

// New builds a Dispatcher. reporter and logger may be nil.
func New[T any](cfg Config, claim Claimer[T], proc Processor[T], reporter *progress.Reporter, logger *zap.Logger) *Dispatcher[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher[T]{
		cfg:      cfg.withDefaults(),
		claim:    claim,
		proc:     proc,
		reporter: reporter,
		logger:   logger,
	}
}

// Run claims and processes batches until ctx is done or, with
// ExitWhenDrained, until a claim comes back empty or a batch changes nothing.
// Cancellation is not an error; units in flight are simply left for a later
// run.
func (d *Dispatcher[T]) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{Outcomes: make(map[harvest.Outcome]int64)}
	d.reporter.Emit(progress.Event{Stage: progress.StageRunStart})
	d.logger.Info("pass started",
		zap.String("pass", string(d.cfg.Pass)),
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Int("workers", d.cfg.Workers),
		zap.Stringer("run_id", d.reporter.RunID()),
	)

	finish := func(err error) (Summary, error) {
		sum.Duration = time.Since(start)
		evt := progress.Event{Stage: progress.StageRunDone, Checked: sum.Units, Found: sum.Found, Dur: sum.Duration}
		if err != nil {
			evt.Stage = progress.StageRunError
			evt.Note = err.Error()
		}
		d.reporter.Emit(evt)
		d.logger.Info("pass finished",
			zap.String("pass", string(d.cfg.Pass)),
			zap.Int("batches", sum.Batches),
			zap.Int64("units", sum.Units),
			zap.Int64("found", sum.Found),
			zap.Duration("elapsed", sum.Duration),
		)
		return sum, err
	}

	for ctx.Err() == nil {
		units, err := d.claim(ctx, d.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if d.cfg.ExitWhenDrained {
				return finish(fmt.Errorf("claim %s batch: %w", d.cfg.Pass, err))
			}
			d.logger.Error("claim failed", zap.String("pass", string(d.cfg.Pass)), zap.Error(err))
			if !d.idle(ctx) {
				break
			}
			continue
		}
		metrics.ObserveClaim(string(d.cfg.Pass), len(units))
		if len(units) == 0 {
			d.logger.Info("no claimable work", zap.String("pass", string(d.cfg.Pass)))
			if d.cfg.ExitWhenDrained || !d.idle(ctx) {
				break
			}
			continue
		}

		mutated := d.runBatch(ctx, units, &sum)
		sum.Batches++
		if mutated == 0 && ctx.Err() == nil {
			d.logger.Warn("batch made no progress",
				zap.String("pass", string(d.cfg.Pass)),
				zap.Int("units", len(units)),
			)
			if d.cfg.ExitWhenDrained || !d.idle(ctx) {
				break
			}
		}
	}
	return finish(nil)
}

func (d *Dispatcher[T]) idle(ctx context.Context) bool {
	t := time.NewTimer(d.cfg.IdlePoll)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type batchStats struct {
	mu        sync.Mutex
	processed int64
	mutated   int64
	found     int64
	outcomes  map[harvest.Outcome]int64
}

func (b *batchStats) add(res Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed++
	b.found += res.Found
	b.outcomes[res.Outcome]++
	if res.Outcome.Mutates() {
		b.mutated++
	}
}

// runBatch processes units with at most Workers in flight and returns how
// many units changed stored state.
func (d *Dispatcher[T]) runBatch(ctx context.Context, units []T, sum *Summary) int64 {
	start := time.Now()
	total := int64(len(units))
	d.reporter.Emit(progress.Event{Stage: progress.StageBatchStart, Total: total})

	stats := &batchStats{outcomes: make(map[harvest.Outcome]int64)}
	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for _, unit := range units {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			stats.add(d.runUnit(ctx, unit))
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	evt := progress.Event{
		Stage:   progress.StageBatchDone,
		Checked: stats.processed,
		Total:   total,
		Found:   stats.found,
		Dur:     elapsed,
	}
	d.reporter.Emit(evt)
	d.logger.Info("batch complete",
		zap.String("pass", string(d.cfg.Pass)),
		zap.Int64("processed", stats.processed),
		zap.Int64("claimed", total),
		zap.Int64("mutated", stats.mutated),
		zap.Int64("found", stats.found),
		zap.Duration("elapsed", elapsed),
		zap.Float64("units_per_sec", evt.Rate()),
	)

	sum.Units += stats.processed
	sum.Found += stats.found
	for o, n := range stats.outcomes {
		sum.Outcomes[o] += n
	}
	return stats.mutated
}

func (d *Dispatcher[T]) runUnit(ctx context.Context, unit T) (res Result) {
	pass := string(d.cfg.Pass)
	metrics.IncActiveWorkers(pass)
	start := time.Now()
	id := d.proc.UnitID(unit)
	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: harvest.OutcomeError, Err: fmt.Errorf("panic processing unit: %v", r)}
		}
		metrics.DecActiveWorkers(pass)
		d.report(id, res, time.Since(start))
	}()
	res = d.proc.Process(ctx, unit)
	if res.Outcome == "" {
		res.Outcome = harvest.OutcomeError
	}
	return res
}

func (d *Dispatcher[T]) report(id string, res Result, dur time.Duration) {
	evt := progress.Event{
		Stage:     progress.StageUnitDone,
		UnitID:    id,
		Outcome:   res.Outcome,
		Found:     res.Found,
		Dur:       dur,
		Date:      res.Date,
		Copyright: res.Copyright,
	}
	if res.Err != nil {
		evt.Note = res.Err.Error()
		d.logger.Warn("unit failed",
			zap.String("pass", string(d.cfg.Pass)),
			zap.String("unit_id", id),
			zap.Error(res.Err),
		)
	}
	d.reporter.Emit(evt)
}
