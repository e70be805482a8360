// Package pipeline runs prediction batches: fetch fixtures, predict,
// build accumulators, store and notify.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
	"github.com/phenomenon0/puntaiq/pkg/history"
	"github.com/phenomenon0/puntaiq/pkg/metrics"
	"github.com/phenomenon0/puntaiq/pkg/predict"
	"github.com/phenomenon0/puntaiq/pkg/sink"
)

// NotificationTitle is the title of the batch notification.
const NotificationTitle = "New Predictions Available"

// Stage represents a stage of a batch.
type Stage string

const (
	StageFetch      Stage = "fetch"
	StagePredict    Stage = "predict"
	StageAccumulate Stage = "accumulate"
	StageStore      Stage = "store"
	StageNotify     Stage = "notify"
)

// StageResult holds the result of a stage execution.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Data      any           `json:"data,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Config configures the runner.
type Config struct {
	Sports      []core.Sport
	DaysAhead   int           // Default: 3
	Interval    time.Duration // Default: 6h
	NotifyUsers []string
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sports:    []core.Sport{core.SportFootball, core.SportBasketball},
		DaysAhead: 3,
		Interval:  6 * time.Hour,
	}
}

// RunOptions overrides the configuration for a single batch.
type RunOptions struct {
	Sports     []core.Sport // Default: configured sports
	DaysAhead  int          // Default: configured days ahead
	SkipStore  bool
	SkipNotify bool
}

// HistorySource supplies the success-rate snapshot taken before each batch.
type HistorySource interface {
	Snapshot() (*history.Rates, error)
}

// Deps are the collaborators of a Runner. Only Source is required.
type Deps struct {
	Source       fixtures.Source
	Registry     *predict.ModelRegistry
	History      HistorySource
	Sink         sink.Sink
	Metrics      *metrics.EngineMetrics
	Engine       *predict.EngineConfig
	Accumulators *accumulator.OrchestratorConfig
	Clock        func() time.Time
	Log          logrus.FieldLogger
}

// Batch is the output of one run.
type Batch struct {
	ID          string                              `json:"id"`
	CreatedAt   time.Time                           `json:"createdAt"`
	Predictions map[core.Sport][]predict.Prediction `json:"predictions"`
	Catalog     *accumulator.Catalog                `json:"accumulators"`
	Stages      []StageResult                       `json:"stages"`
}

// Count returns the number of predictions in the batch.
func (b *Batch) Count() int {
	n := 0
	for _, preds := range b.Predictions {
		n += len(preds)
	}
	return n
}

// Pool returns every prediction in sport order.
func (b *Batch) Pool() []predict.Prediction {
	var pool []predict.Prediction
	for _, sport := range b.sports() {
		pool = append(pool, b.Predictions[sport]...)
	}
	return pool
}

func (b *Batch) sports() []core.Sport {
	sports := make([]core.Sport, 0, len(b.Predictions))
	for s := range b.Predictions {
		sports = append(sports, s)
	}
	sort.Slice(sports, func(i, j int) bool { return sports[i] < sports[j] })
	return sports
}

// Status is a snapshot of the runner state.
type Status struct {
	Running      bool               `json:"running"`
	Runs         int                `json:"runs"`
	LastBatchID  string             `json:"last_batch_id,omitempty"`
	LastRunAt    *time.Time         `json:"last_run_at,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	Predictions  map[core.Sport]int `json:"predictions"`
	Accumulators int                `json:"accumulators"`
}

// Runner executes batches on demand or on an interval.
type Runner struct {
	cfg      Config
	source   fixtures.Source
	registry *predict.ModelRegistry
	history  HistorySource
	sink     sink.Sink
	metrics  *metrics.EngineMetrics
	engine   *predict.EngineConfig
	orch     *accumulator.Orchestrator
	clock    func() time.Time
	log      logrus.FieldLogger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	runMu   sync.Mutex // One batch at a time
	last    *Batch
	runs    int
	lastErr error

	// Callbacks
	onStageComplete func(*StageResult)
	onError         func(error)
	onBatch         func(*Batch)
}

// NewRunner creates a runner.
func NewRunner(config *Config, deps Deps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("pipeline: fixture source is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	cfg := *config
	if len(cfg.Sports) == 0 {
		cfg.Sports = defaults.Sports
	}
	if cfg.DaysAhead <= 0 {
		cfg.DaysAhead = defaults.DaysAhead
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}

	if deps.Sink == nil {
		deps.Sink = sink.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewEngineMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}

	return &Runner{
		cfg:      cfg,
		source:   deps.Source,
		registry: deps.Registry,
		history:  deps.History,
		sink:     deps.Sink,
		metrics:  deps.Metrics,
		engine:   deps.Engine,
		orch:     accumulator.NewOrchestrator(deps.Accumulators, deps.Log),
		clock:    deps.Clock,
		log:      deps.Log.WithField("component", "pipeline"),
		stopCh:   make(chan struct{}),
	}, nil
}

// OnStageComplete sets a callback for stage completions.
func (r *Runner) OnStageComplete(fn func(*StageResult)) {
	r.onStageComplete = fn
}

// OnError sets a callback for non-fatal errors.
func (r *Runner) OnError(fn func(error)) {
	r.onError = fn
}

// OnBatch sets a callback for completed batches.
func (r *Runner) OnBatch(fn func(*Batch)) {
	r.onBatch = fn
}

// Start runs a batch immediately and then on every interval until Stop or
// ctx cancellation.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("pipeline already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	go r.loop(ctx, stopCh)
	return nil
}

// Stop stops the interval loop. A batch in flight completes.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// IsRunning returns true if the interval loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *Runner) loop(ctx context.Context, stopCh chan struct{}) {
	if _, err := r.RunOnce(ctx); err != nil {
		r.handleError(fmt.Errorf("initial batch failed: %w", err))
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.handleError(fmt.Errorf("batch failed: %w", err))
			}
		}
	}
}

// RunOnce executes one batch with the configured sports and window.
func (r *Runner) RunOnce(ctx context.Context) (*Batch, error) {
	return r.Run(ctx, RunOptions{})
}

// Run executes one batch. It fails only when no fixtures could be fetched
// for any sport; sink failures are logged and counted.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Batch, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if len(opts.Sports) == 0 {
		opts.Sports = r.cfg.Sports
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = r.cfg.DaysAhead
	}

	start := time.Now()
	createdAt := r.clock().UTC()
	batch := &Batch{
		ID:          batchID(createdAt),
		CreatedAt:   createdAt,
		Predictions: make(map[core.Sport][]predict.Prediction),
	}

	var matches map[core.Sport][]fixtures.Match
	err := r.runStage(batch, StageFetch, func() (any, error) {
		var err error
		matches, err = r.fetch(ctx, opts)
		return counts(matches), err
	})
	if err != nil {
		r.finish(batch, start, err)
		return nil, err
	}

	_ = r.runStage(batch, StagePredict, func() (any, error) {
		engine := predict.NewEngine(r.engine, r.registry, r.snapshot(), r.log)
		for _, sport := range opts.Sports {
			if len(matches[sport]) == 0 {
				continue
			}
			preds := engine.PredictBatch(matches[sport], createdAt)
			batch.Predictions[sport] = preds
			r.metrics.RecordPredictions(preds)
		}
		return counts(batch.Predictions), nil
	})

	_ = r.runStage(batch, StageAccumulate, func() (any, error) {
		batch.Catalog = r.orch.Run(batch.Pool(), createdAt)
		r.metrics.RecordCatalog(batch.Catalog.Buckets())
		return map[string]int{"accumulators": batch.Catalog.Count()}, nil
	})

	if !opts.SkipStore {
		_ = r.runStage(batch, StageStore, func() (any, error) {
			return nil, r.store(ctx, batch)
		})
	}

	if !opts.SkipNotify && batch.Count() > 0 {
		_ = r.runStage(batch, StageNotify, func() (any, error) {
			return nil, r.notify(ctx, batch)
		})
	}

	r.finish(batch, start, nil)
	return batch, nil
}

func (r *Runner) fetch(ctx context.Context, opts RunOptions) (map[core.Sport][]fixtures.Match, error) {
	out := make(map[core.Sport][]fixtures.Match)
	var failed []string
	for _, sport := range opts.Sports {
		matches, err := r.source.Fetch(ctx, sport, opts.DaysAhead)
		r.metrics.RecordFetch(sport, len(matches), err)
		if err != nil {
			failed = append(failed, string(sport))
			r.handleError(errors.Wrapf(err, "fetch %s", sport))
			continue
		}
		r.log.WithFields(logrus.Fields{"sport": sport, "matches": len(matches)}).Info("fixtures fetched")
		out[sport] = matches
	}
	if len(failed) == len(opts.Sports) {
		return nil, fmt.Errorf("fetch failed for every sport: %s", strings.Join(failed, ", "))
	}
	return out, nil
}

func (r *Runner) snapshot() predict.HistoryProvider {
	if r.history == nil {
		return nil
	}
	rates, err := r.history.Snapshot()
	if err != nil {
		r.handleError(errors.Wrap(err, "history snapshot"))
		return nil
	}
	return rates
}

func (r *Runner) store(ctx context.Context, b *Batch) error {
	var first error
	for _, sport := range b.sports() {
		if err := r.sink.StorePredictions(ctx, sport, b.Predictions[sport]); err != nil {
			r.metrics.RecordSinkFailure("store_predictions")
			r.handleError(errors.Wrapf(err, "store %s predictions", sport))
			if first == nil {
				first = err
			}
		}
	}
	if b.Catalog != nil {
		if err := r.sink.StoreAccumulators(ctx, b.Catalog.Buckets()); err != nil {
			r.metrics.RecordSinkFailure("store_accumulators")
			r.handleError(errors.Wrap(err, "store accumulators"))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (r *Runner) notify(ctx context.Context, b *Batch) error {
	var names []string
	for _, sport := range b.sports() {
		if len(b.Predictions[sport]) > 0 {
			names = append(names, string(sport))
		}
	}
	body := fmt.Sprintf("We've just updated predictions for %s. Check them out now!", strings.Join(names, ", "))
	data := map[string]string{
		"batch_id": b.ID,
		"sports":   strings.Join(names, ","),
	}

	if err := r.sink.Notify(ctx, r.cfg.NotifyUsers, NotificationTitle, body, data); err != nil {
		r.metrics.RecordSinkFailure("notify")
		r.handleError(errors.Wrap(err, "notify"))
		return err
	}
	return nil
}

func (r *Runner) runStage(b *Batch, stage Stage, fn func() (any, error)) error {
	start := time.Now()
	data, err := fn()

	result := StageResult{
		Stage:     stage,
		Success:   err == nil,
		Data:      data,
		Duration:  time.Since(start),
		Timestamp: r.clock().UTC(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	b.Stages = append(b.Stages, result)
	r.metrics.RecordStage(string(stage), result.Duration)

	if r.onStageComplete != nil {
		r.onStageComplete(&result)
	}
	return err
}

func (r *Runner) finish(b *Batch, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	r.metrics.RecordBatch(status, time.Since(start), b.CreatedAt)

	r.mu.Lock()
	r.runs++
	r.lastErr = err
	if err == nil {
		r.last = b
	}
	r.mu.Unlock()

	if err != nil {
		r.log.WithError(err).Error("batch failed")
		return
	}

	accs := 0
	if b.Catalog != nil {
		accs = b.Catalog.Count()
	}
	r.log.WithFields(logrus.Fields{
		"batch":        b.ID,
		"predictions":  b.Count(),
		"accumulators": accs,
		"duration":     time.Since(start).Round(time.Millisecond),
	}).Info("batch complete")

	if r.onBatch != nil {
		r.onBatch(b)
	}
}

func (r *Runner) handleError(err error) {
	r.log.WithError(err).Warn("pipeline error")
	if r.onError != nil {
		r.onError(err)
	}
}

// LastBatch returns the most recent successful batch.
func (r *Runner) LastBatch() (*Batch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.last != nil
}

// GetStatus returns the current status.
func (r *Runner) GetStatus() *Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := &Status{
		Running:     r.running,
		Runs:        r.runs,
		Predictions: make(map[core.Sport]int),
	}
	if r.lastErr != nil {
		status.LastError = r.lastErr.Error()
	}
	if r.last != nil {
		at := r.last.CreatedAt
		status.LastRunAt = &at
		status.LastBatchID = r.last.ID
		for sport, preds := range r.last.Predictions {
			status.Predictions[sport] = len(preds)
		}
		if r.last.Catalog != nil {
			status.Accumulators = r.last.Catalog.Count()
		}
	}
	return status
}

var batchNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("puntaiq/batch"))

func batchID(createdAt time.Time) string {
	return uuid.NewSHA1(batchNamespace, []byte(createdAt.Format(time.RFC3339Nano))).String()
}

func counts[T any](m map[core.Sport][]T) map[core.Sport]int {
	out := make(map[core.Sport]int, len(m))
	for k, v := range m {
		out[k] = len(v)
	}
	return out
}
