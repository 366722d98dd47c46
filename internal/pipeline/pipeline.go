package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/couchcryptid/cyclone-impact-etl/internal/observability"
	"github.com/google/uuid"
)

// Loader reads the impact dataset from the store.
type Loader interface {
	Load(ctx context.Context) (domain.Dataset, error)
}

// ReferenceSource reads the reference records.
type ReferenceSource interface {
	Read(ctx context.Context) ([]domain.ReferenceRecord, error)
}

// Sink receives every completed run.
type Sink interface {
	Publish(ctx context.Context, result domain.RunResult) error
}

// RunParams adjust a single run. A nil MinStartYear keeps Options.MinStartYear.
type RunParams struct {
	MinStartYear *int
}

// Pipeline orchestrates one reconciliation run: load, per-category stages, sinks.
type Pipeline struct {
	loader      Loader
	references  ReferenceSource
	transformer *CategoryTransformer
	sinks       []Sink
	eventClass  string
	minYear     int
	logger      *slog.Logger
	metrics     *observability.Metrics

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.RWMutex
	latest  *domain.RunResult
	lastErr error
}

// New creates a Pipeline with the given collaborators and observability.
func New(l Loader, refs ReferenceSource, opts Options, logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *Pipeline {
	return &Pipeline{
		loader:      l,
		references:  refs,
		transformer: NewTransformer(opts, logger, metrics),
		sinks:       sinks,
		eventClass:  opts.EventClass,
		minYear:     opts.MinStartYear,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run executes one complete run and returns its result. It returns
// ErrRunInProgress when another run is executing. A run either yields the
// full result or a *StageError; partial results are never returned.
func (p *Pipeline) Run(ctx context.Context, params RunParams) (domain.RunResult, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.RunsTotal.WithLabelValues("rejected").Inc()
		return domain.RunResult{}, ErrRunInProgress
	}
	p.wg.Add(1)
	defer p.wg.Done()
	defer p.running.Store(false)

	return p.execute(ctx, params)
}

// Start launches a run in the background and returns once it has been
// admitted. The run outlives cancellation of ctx; use Wait to drain it.
func (p *Pipeline) Start(ctx context.Context, params RunParams) error {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.RunsTotal.WithLabelValues("rejected").Inc()
		return ErrRunInProgress
	}
	p.wg.Add(1)

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.execute(ctx, params) //nolint:errcheck // recorded as the last error
	}()
	return nil
}

// Wait blocks until no run is executing.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if _, ok := p.Latest(); !ok {
		return errors.New("no reconciliation run has completed yet")
	}
	return nil
}

// Running reports whether a run is executing.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Latest returns the most recent successful run.
func (p *Pipeline) Latest() (domain.RunResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest == nil {
		return domain.RunResult{}, false
	}
	return *p.latest, true
}

// LastError returns the error of the most recent run, or nil if it succeeded.
func (p *Pipeline) LastError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *Pipeline) execute(ctx context.Context, params RunParams) (domain.RunResult, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	runID := uuid.NewString()
	started := clock.Now()
	minYear := p.minYear
	if params.MinStartYear != nil {
		minYear = *params.MinStartYear
	}
	logger := p.logger.With("run_id", runID)
	logger.Info("run started", "min_start_year", minYear)

	result, err := p.process(ctx, logger, runID, minYear)
	elapsed := clock.Since(started)
	p.metrics.RunDuration.Observe(elapsed.Seconds())

	p.mu.Lock()
	p.lastErr = err
	if err == nil {
		p.latest = &result
	}
	p.mu.Unlock()

	if err != nil {
		p.metrics.RunsTotal.WithLabelValues("error").Inc()
		logger.Error("run failed", "error", err, "duration", elapsed)
		return domain.RunResult{}, err
	}

	for _, c := range result.Categories {
		for b, n := range c.Comparison.Counts {
			p.metrics.Comparisons.WithLabelValues(string(c.Category), string(b)).Add(float64(n))
		}
	}
	p.metrics.RunsTotal.WithLabelValues("success").Inc()
	p.metrics.LastSuccess.Set(float64(result.FinishedAt.Unix()))
	logger.Info("run finished", "duration", elapsed)
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, runID string, minYear int) (domain.RunResult, error) {
	result := domain.RunResult{RunID: runID, MinStartYear: minYear, StartedAt: clock.Now()}

	ds, err := p.loader.Load(ctx)
	if err != nil {
		return domain.RunResult{}, stageError(StageLoad, "", err)
	}
	p.metrics.RowsLoaded.WithLabelValues(string(domain.Totals), "").Add(float64(len(ds.Events)))
	for _, cat := range domain.Categories {
		p.metrics.RowsLoaded.WithLabelValues(string(domain.SpecificArea), string(cat)).Add(float64(len(ds.Specific[cat])))
		p.metrics.RowsLoaded.WithLabelValues(string(domain.PerInstance), string(cat)).Add(float64(len(ds.Instance[cat])))
	}

	refs, err := p.references.Read(ctx)
	if err != nil {
		return domain.RunResult{}, stageError(StageReference, "", err)
	}

	events := domain.EventsOfClass(ds.Events, p.eventClass)
	logger.Info("dataset loaded",
		"events", len(ds.Events),
		"events_in_class", len(events),
		"event_class", p.eventClass,
		"reference_rows", len(refs),
	)

	allowed := domain.EventIDSet(events)
	dates := domain.IndexEventDates(events)

	for _, cat := range domain.Categories {
		cr, err := p.transformer.Transform(CategoryInput{
			Category:     cat,
			Specific:     ds.Specific[cat],
			Instance:     ds.Instance[cat],
			Events:       allowed,
			Dates:        dates,
			References:   refs,
			MinStartYear: minYear,
		})
		if err != nil {
			return domain.RunResult{}, err
		}
		result.Categories = append(result.Categories, cr)
	}
	result.FinishedAt = clock.Now()

	for _, s := range p.sinks {
		if err := s.Publish(ctx, result); err != nil {
			return domain.RunResult{}, stageError(StagePublish, "", err)
		}
	}
	return result, nil
}
