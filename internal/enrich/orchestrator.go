// Package enrich derives profiles, taxonomy codes and embeddings for graph
// entities and drives batch enrichment runs.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/relgraph/internal/model"
	"github.com/sells-group/relgraph/internal/resilience"
	"github.com/sells-group/relgraph/internal/store"
)

// State is the orchestrator's run phase.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateDispatching
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateDispatching:
		return "batching_and_dispatching"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Mode selects the candidate set of a run.
type Mode string

const (
	// ModeIncremental processes entities never enriched.
	ModeIncremental Mode = "incremental"
	// ModeTarget processes entities whose name matches Options.Target.
	ModeTarget Mode = "target"
	// ModeFull processes every entity.
	ModeFull Mode = "full"
	// ModeFailed retries entities whose last attempt failed.
	ModeFailed Mode = "failed"
)

// ErrRunInProgress is returned when Run is called while a run is active.
var ErrRunInProgress = eris.New("enrich: run already in progress")

// Options selects what a run processes.
type Options struct {
	Mode   Mode
	Kinds  []model.EntityKind
	Limit  int
	Target string
}

// RunSummary reports the outcome of a run.
type RunSummary struct {
	Fetched   int           `json:"fetched"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Batches   int           `json:"batches"`
	Duration  time.Duration `json:"duration"`
}

// Config sizes a run.
type Config struct {
	BatchSize   int
	Concurrency int
	PageSize    int
	BatchPause  time.Duration
	// Retry wraps the final persistence write.
	Retry resilience.Policy
}

// Analyzer produces a profile; it never fails.
type Analyzer interface {
	Analyze(ctx context.Context, e *model.Entity, ac *AnalysisContext) *model.Analysis
}

// Classifier assigns taxonomy codes; it never fails.
type Classifier interface {
	Classify(ctx context.Context, e *model.Entity, a *model.Analysis) model.Taxonomy
}

// Embedder derives the two entity embeddings.
type Embedder interface {
	Build(ctx context.Context, e *model.Entity, a *model.Analysis, t model.Taxonomy) (rich, taxonomy []float32, err error)
}

// ContentSource returns homepage text for organizations.
type ContentSource interface {
	Acquire(ctx context.Context, e *model.Entity) string
}

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Store      store.Store
	Content    ContentSource
	Analyzer   Analyzer
	Classifier Classifier
	Embedder   Embedder
	Status     *StatusEmitter
}

// Orchestrator runs enrichment over batches of entities with bounded
// concurrency.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	state atomic.Int32
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	return &Orchestrator{deps: deps, cfg: cfg, now: time.Now, sleep: sleepCtx}
}

// State returns the current run phase.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	zap.L().Debug("enrich: state change", zap.String("state", s.String()))
}

// Run fetches candidates and enriches them batch by batch. Per-entity
// failures are counted, not returned; the error is non-nil only when fetching
// fails or ctx is cancelled between batches.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	if !o.state.CompareAndSwap(int32(StateIdle), int32(StateFetching)) {
		return nil, ErrRunInProgress
	}
	defer o.setState(StateIdle)

	start := o.now()
	summary := &RunSummary{}
	log := zap.L().With(zap.String("mode", string(opts.Mode)))

	entities, err := o.fetch(ctx, opts)
	if err != nil {
		return nil, err
	}
	summary.Fetched = len(entities)
	log.Info("enrich: candidates fetched", zap.Int("count", len(entities)))

	if len(entities) > 0 {
		o.setState(StateDispatching)
		err = o.dispatch(ctx, entities, summary)
	}

	summary.Duration = o.now().Sub(start)
	log.Info("enrich: run complete",
		zap.Int("fetched", summary.Fetched),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("batches", summary.Batches),
		zap.Duration("duration", summary.Duration),
	)
	return summary, err
}

func (o *Orchestrator) fetch(ctx context.Context, opts Options) ([]model.Entity, error) {
	filter := store.EntityFilter{Kinds: opts.Kinds}
	switch opts.Mode {
	case ModeIncremental, "":
		filter.OnlyUnenriched = true
	case ModeTarget:
		if strings.TrimSpace(opts.Target) == "" {
			return nil, eris.New("enrich: target mode requires a name")
		}
		filter.NameLike = opts.Target
	case ModeFailed:
		filter.OnlyFailed = true
	case ModeFull:
	default:
		return nil, eris.Errorf("enrich: unknown mode %q", opts.Mode)
	}

	var (
		all   []model.Entity
		after string
	)
	for {
		pageSize := o.cfg.PageSize
		if opts.Limit > 0 {
			pageSize = min(pageSize, opts.Limit-len(all))
		}
		page, err := o.deps.Store.ListEntities(ctx, filter, after, pageSize)
		if err != nil {
			return nil, eris.Wrap(err, "enrich: fetch candidates")
		}
		all = append(all, page...)
		if len(page) < pageSize || (opts.Limit > 0 && len(all) >= opts.Limit) {
			return all, nil
		}
		after = page[len(page)-1].ID
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, entities []model.Entity, summary *RunSummary) error {
	pool, err := ants.NewPool(o.cfg.Concurrency)
	if err != nil {
		return eris.Wrap(err, "enrich: create worker pool")
	}
	defer pool.Release()

	var succeeded, failed atomic.Int64
	total := (len(entities) + o.cfg.BatchSize - 1) / o.cfg.BatchSize

	for i := 0; i < len(entities); i += o.cfg.BatchSize {
		batch := entities[i:min(i+o.cfg.BatchSize, len(entities))]
		summary.Batches++
		batchNum := summary.Batches

		o.setState(StateDispatching)
		var wg sync.WaitGroup
		for idx := range batch {
			e := batch[idx]
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				if o.runTask(ctx, e) {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
			})
			if submitErr != nil {
				wg.Done()
				failed.Add(1)
				o.recordFailure(e.ID, eris.Wrap(submitErr, "enrich: submit task"))
			}
		}

		o.setState(StateDraining)
		wg.Wait()

		zap.L().Info("enrich: batch complete",
			zap.Int("batch", batchNum),
			zap.Int("of", total),
			zap.Int("size", len(batch)),
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()),
		)

		if batchNum < total && o.cfg.BatchPause > 0 {
			if err := o.sleep(ctx, o.cfg.BatchPause); err != nil {
				summary.Succeeded, summary.Failed = int(succeeded.Load()), int(failed.Load())
				return eris.Wrap(err, "enrich: run cancelled")
			}
		}
		if err := ctx.Err(); err != nil && batchNum < total {
			summary.Succeeded, summary.Failed = int(succeeded.Load()), int(failed.Load())
			return eris.Wrap(err, "enrich: run cancelled")
		}
	}

	summary.Succeeded, summary.Failed = int(succeeded.Load()), int(failed.Load())
	return nil
}

// runTask enriches one entity, converting panics into failures.
func (o *Orchestrator) runTask(ctx context.Context, e model.Entity) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			o.recordFailure(e.ID, eris.Errorf("enrich: panic: %v", r))
		}
	}()

	if err := o.process(ctx, &e); err != nil {
		o.recordFailure(e.ID, err)
		return false
	}
	o.emit(e.ID, model.StatusCompleted, "")
	return true
}

// EnrichOne refreshes a single entity regardless of its enriched flag.
func (o *Orchestrator) EnrichOne(ctx context.Context, id string) error {
	e, err := o.deps.Store.GetEntity(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "enrich: load entity %s", id)
	}
	if e == nil {
		return eris.Errorf("enrich: entity %s not found", id)
	}
	if !o.runTask(ctx, *e) {
		return eris.Errorf("enrich: entity %s failed; see enrichment status", id)
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, e *model.Entity) error {
	log := zap.L().With(zap.String("entity", e.ID), zap.String("name", e.Name))
	started := o.now()

	ac := &AnalysisContext{}
	if e.IsOrganization() && o.deps.Content != nil {
		ac.Content = o.deps.Content.Acquire(ctx, e)
	}

	analysis := o.deps.Analyzer.Analyze(ctx, e, ac)
	taxonomy := o.deps.Classifier.Classify(ctx, e, analysis)

	rich, taxVec, err := o.deps.Embedder.Build(ctx, e, analysis, taxonomy)
	if err != nil {
		return err
	}

	update := model.EnrichmentUpdate{
		EntityID:          e.ID,
		Taxonomy:          taxonomy,
		Analysis:          *analysis,
		AISummary:         aiSummary(e, analysis),
		Embedding:         rich,
		TaxonomyEmbedding: taxVec,
		Source:            analysis.Source,
		EnrichedAt:        o.now().UTC(),
	}
	if err := resilience.Retry(ctx, o.cfg.Retry, func(ctx context.Context) error {
		return o.deps.Store.UpdateEnrichment(ctx, update)
	}); err != nil {
		return eris.Wrap(err, "enrich: persist enrichment")
	}

	log.Info("enrich: entity enriched",
		zap.String("source", string(analysis.Source)),
		zap.Bool("placeholder", analysis.Placeholder()),
		zap.String("taxonomy", taxonomy.Primary),
		zap.Duration("elapsed", o.now().Sub(started)),
	)
	return nil
}

// aiSummary picks the stored summary text, composing one for persons whose
// profile came back without it.
func aiSummary(e *model.Entity, a *model.Analysis) string {
	if s := strings.TrimSpace(a.Summary()); s != "" {
		return s
	}
	if a.Person != nil {
		parts := append(append([]string{}, a.Person.FunctionalExpertise...), a.Person.DomainExpertise...)
		if len(parts) > 0 {
			return fmt.Sprintf("%s: %s professional with expertise in %s.", e.Name, a.Person.SeniorityLevel, strings.Join(parts, ", "))
		}
	}
	return ""
}

func (o *Orchestrator) recordFailure(id string, err error) {
	zap.L().Warn("enrich: entity failed", zap.String("entity", id), zap.Error(err))
	o.emit(id, model.StatusFailed, err.Error())
}

func (o *Orchestrator) emit(id string, status model.StatusValue, msg string) {
	if o.deps.Status == nil {
		return
	}
	o.deps.Status.Emit(model.EnrichmentStatus{
		EntityID:     id,
		Status:       status,
		LastAttempt:  o.now().UTC(),
		ErrorMessage: msg,
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
