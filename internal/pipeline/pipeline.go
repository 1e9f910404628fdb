// Package pipeline runs one sync: fetch, dedupe, enrich and persist, reconcile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/NewsSync/internal/article"
	"github.com/TobiSchelling/NewsSync/internal/collect"
	"github.com/TobiSchelling/NewsSync/internal/database"
	"github.com/TobiSchelling/NewsSync/internal/enrich"
	"github.com/TobiSchelling/NewsSync/internal/fetch"
	"github.com/TobiSchelling/NewsSync/internal/lock"
	"github.com/TobiSchelling/NewsSync/internal/logger"
	"github.com/TobiSchelling/NewsSync/internal/metrics"
	"github.com/TobiSchelling/NewsSync/internal/reconcile"
)

// State is a stage of a sync run.
type State string

const (
	StateFetching    State = "fetching"
	StateDeduping    State = "deduping"
	StateEnriching   State = "enriching"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
}

// Result holds the results of a sync run that did not fail.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	State      State
	Steps      []StepResult

	Fetched        int
	UniqueArticles int
	Cached         int
	Generated      int
	Fallback       int
	Persisted      int
	Removed        int64
	Errors         int

	ReconcileErrors []reconcile.BatchError
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Collector gathers the articles of all sources.
type Collector interface {
	Collect(ctx context.Context) (*collect.Result, error)
}

// Backfiller fills in empty article bodies in place.
type Backfiller interface {
	Backfill(ctx context.Context, articles []article.Article) *fetch.Result
}

// Enricher returns the summary and tags for one article. Cached reports
// whether Enrich would reuse a stored result.
type Enricher interface {
	Cached(ctx context.Context, identity string) bool
	Enrich(ctx context.Context, a article.Article) enrich.Result
}

// Store is the write side of the article store.
type Store interface {
	UpsertArticle(ctx context.Context, rec database.ArticleRecord) error
	InsertRunReport(ctx context.Context, r database.RunReport) error
}

// Reconciler deletes stored articles missing from the current run.
type Reconciler interface {
	Reconcile(ctx context.Context, current map[string]struct{}) (*reconcile.Result, error)
}

// Deps are the collaborators of a Pipeline. Backfiller, Locker and Metrics
// are optional.
type Deps struct {
	Collector  Collector
	Backfiller Backfiller
	Enricher   Enricher
	Store      Store
	Reconciler Reconciler
	Locker     lock.Locker
	Metrics    *metrics.Metrics
	Log        logger.Logger
}

// Pipeline sequences one sync run.
type Pipeline struct {
	deps     Deps
	log      logger.Logger
	now      func() time.Time
	newRunID func() string
}

// New creates a new pipeline.
func New(d Deps) *Pipeline {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	return &Pipeline{
		deps:     d,
		log:      log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Run executes one sync. Per-article failures are counted in the result.
// Fatal problems (lock held or lost, cancellation during collection or
// enrichment, listing stored identities, a panic) return an error and no
// result. The run lock is renewed while the run is in progress.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &Result{RunID: p.newRunID(), StartedAt: p.now()}
	log := p.log.With(logger.String("run_id", r.RunID))

	runCtx := ctx
	if l := p.deps.Locker; l != nil {
		if err := l.Acquire(ctx, r.RunID); err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx), r.RunID); err != nil {
				log.Warn("Releasing run lock failed", logger.Error(err))
			}
		}()

		var stop func()
		runCtx, stop = lock.Keep(ctx, l, r.RunID, func(err error) {
			log.Warn("Renewing run lock failed", logger.Error(err))
		})
		defer stop()
	}

	err := p.execute(runCtx, r, log)
	r.FinishedAt = p.now()
	if err != nil {
		r.State = StateFailed
	}
	p.record(ctx, r, log)

	if err != nil {
		log.Error("Sync run failed", logger.Error(err))
		return nil, err
	}
	log.Info("Sync run complete",
		logger.Int("unique", r.UniqueArticles),
		logger.Int("persisted", r.Persisted),
		logger.Int64("removed", r.Removed),
		logger.Int("errors", r.Errors),
		logger.Duration("duration", r.Duration()))
	return r, nil
}

// execute runs the state machine, turning a panic into an error.
func (p *Pipeline) execute(ctx context.Context, r *Result, log logger.Logger) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sync run panicked in %s: %v", r.State, rec)
		}
	}()

	p.transition(r, StateFetching, log)
	collected, err := p.deps.Collector.Collect(ctx)
	if err != nil {
		return fmt.Errorf("fetching: %w", err)
	}
	r.Fetched = collected.Fetched
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Fetched %d articles from %d sources", collected.Fetched, len(collected.BySource)),
	})

	p.transition(r, StateDeduping, log)
	unique := collect.Dedupe(collected.Articles)
	r.UniqueArticles = len(unique)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Dedupe",
		Summary: fmt.Sprintf("%d unique articles, %d duplicates dropped", len(unique), collected.Fetched-len(unique)),
	})

	p.transition(r, StateEnriching, log)
	if p.deps.Backfiller != nil {
		p.backfill(ctx, unique, r)
	}

	current := make(map[string]struct{}, len(unique))
	for _, a := range unique {
		if ctx.Err() != nil {
			return fmt.Errorf("enrichment cancelled: %w", context.Cause(ctx))
		}
		current[a.Identity] = struct{}{}
		p.enrichAndPersist(ctx, a, r, log)
	}
	r.Steps = append(r.Steps, StepResult{
		Name: "Enrich",
		Summary: fmt.Sprintf("Saved %d articles: %d cached, %d generated, %d fallback, %d errors",
			r.Persisted, r.Cached, r.Generated, r.Fallback, r.Errors),
	})

	p.transition(r, StateReconciling, log)
	rec, err := p.deps.Reconciler.Reconcile(ctx, current)
	if err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}
	r.Removed = rec.Removed
	r.ReconcileErrors = rec.Errors
	r.Errors += len(rec.Errors)
	summary := fmt.Sprintf("Removed %d of %d stale articles", rec.Removed, rec.Stale)
	if rec.Skipped {
		summary = "Skipped: no articles in this run"
	}
	r.Steps = append(r.Steps, StepResult{Name: "Reconcile", Summary: summary})

	p.transition(r, StateDone, log)
	return nil
}

// backfill fetches bodies for the articles without one whose enrichment is
// not stored yet. Cache hits never need the body.
func (p *Pipeline) backfill(ctx context.Context, articles []article.Article, r *Result) {
	var misses []article.Article
	var at []int
	for i, a := range articles {
		if strings.TrimSpace(a.Description) != "" || p.deps.Enricher.Cached(ctx, a.Identity) {
			continue
		}
		misses = append(misses, a)
		at = append(at, i)
	}

	b := p.deps.Backfiller.Backfill(ctx, misses)
	for j, i := range at {
		articles[i].Description = misses[j].Description
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Backfill",
		Summary: fmt.Sprintf("Fetched %d article bodies, %d failed, %d skipped", b.Fetched, b.Failed, b.Skipped),
	})
}

func (p *Pipeline) enrichAndPersist(ctx context.Context, a article.Article, r *Result, log logger.Logger) {
	er := p.deps.Enricher.Enrich(ctx, a)
	switch er.Source {
	case enrich.SourceCache:
		r.Cached++
	case enrich.SourceGenerated:
		r.Generated++
	case enrich.SourceFallback:
		r.Fallback++
	}

	enriched, err := a.WithEnrichment(er.Summary, er.Tags)
	if err != nil {
		r.Errors++
		log.Warn("Enrichment result rejected",
			logger.String("identity", a.Identity), logger.Error(err))
		return
	}

	if err := p.deps.Store.UpsertArticle(ctx, database.RecordFromArticle(enriched)); err != nil {
		r.Errors++
		log.Warn("Persisting article failed",
			logger.String("identity", a.Identity), logger.Error(err))
		return
	}
	r.Persisted++
}

func (p *Pipeline) transition(r *Result, s State, log logger.Logger) {
	r.State = s
	log.Debug("Run state", logger.String("state", string(s)))
}

// record stores the run report for completed runs and publishes metrics.
// Neither can fail the run.
func (p *Pipeline) record(ctx context.Context, r *Result, log logger.Logger) {
	ctx = context.WithoutCancel(ctx)

	if r.State == StateDone {
		if err := p.deps.Store.InsertRunReport(ctx, Report(r)); err != nil {
			log.Warn("Storing run report failed", logger.Error(err))
		}
	}

	m := p.deps.Metrics
	if m == nil {
		return
	}
	m.Observe(metrics.Run{
		State:          string(r.State),
		Duration:       r.Duration(),
		Fetched:        r.Fetched,
		UniqueArticles: r.UniqueArticles,
		Cached:         r.Cached,
		Generated:      r.Generated,
		Fallback:       r.Fallback,
		Persisted:      r.Persisted,
		Removed:        r.Removed,
		Errors:         r.Errors,
	}, r.FinishedAt)
	if err := m.Push(ctx); err != nil {
		log.Warn("Metrics push failed", logger.Error(err))
	}
}

// Report converts a result into the stored run report.
func Report(r *Result) database.RunReport {
	return database.RunReport{
		RunID:          r.RunID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		State:          string(r.State),
		Fetched:        r.Fetched,
		UniqueArticles: r.UniqueArticles,
		Cached:         r.Cached,
		Generated:      r.Generated,
		Fallback:       r.Fallback,
		Persisted:      r.Persisted,
		Removed:        r.Removed,
		Errors:         r.Errors,
	}
}

// IsLockHeld reports whether err means another run was in progress.
func IsLockHeld(err error) bool {
	return errors.Is(err, lock.ErrHeld)
}
