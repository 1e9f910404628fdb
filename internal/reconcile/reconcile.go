// Package reconcile removes stored articles that no longer appear upstream.
package reconcile

import (
	"context"
	"fmt"
	"slices"

	"github.com/TobiSchelling/NewsSync/internal/database"
	"github.com/TobiSchelling/NewsSync/internal/logger"
)

// Store is the subset of the article store the reconciler needs.
type Store interface {
	SelectAllIdentities(ctx context.Context) (map[string]struct{}, error)
	DeleteByIdentities(ctx context.Context, identities []string) (int64, error)
}

// BatchError records one failed delete batch.
type BatchError struct {
	Identities []string
	Err        error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("deleting %d articles: %v", len(e.Identities), e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }

// Result holds the outcome of a reconciliation.
type Result struct {
	Stale   int
	Removed int64
	Skipped bool
	Errors  []BatchError
}

// Reconciler deletes stored identities missing from the current run.
type Reconciler struct {
	store         Store
	batchSize     int
	skipWhenEmpty bool
	log           logger.Logger
}

// New creates a Reconciler. With skipWhenEmpty set, a run that produced no
// articles leaves the store untouched.
func New(store Store, skipWhenEmpty bool, log logger.Logger) *Reconciler {
	return &Reconciler{
		store:         store,
		batchSize:     database.MaxDeleteBatch,
		skipWhenEmpty: skipWhenEmpty,
		log:           log,
	}
}

// Reconcile deletes stored − current in sorted batches. Batch failures are
// collected and do not stop later batches; only listing the stored set is
// fatal.
func (r *Reconciler) Reconcile(ctx context.Context, current map[string]struct{}) (*Result, error) {
	if len(current) == 0 && r.skipWhenEmpty {
		r.log.Warn("No current articles; skipping reconciliation")
		return &Result{Skipped: true}, nil
	}

	stored, err := r.store.SelectAllIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored identities: %w", err)
	}

	stale := Stale(stored, current)
	res := &Result{Stale: len(stale)}
	if len(stale) == 0 {
		return res, nil
	}

	for batch := range slices.Chunk(stale, r.batchSize) {
		n, err := r.store.DeleteByIdentities(ctx, batch)
		if err != nil {
			r.log.Error("Delete batch failed",
				logger.Int("size", len(batch)), logger.Error(err))
			res.Errors = append(res.Errors, BatchError{Identities: batch, Err: err})
			continue
		}
		res.Removed += n
	}

	r.log.Info("Reconciliation complete",
		logger.Int("stale", res.Stale),
		logger.Int64("removed", res.Removed),
		logger.Int("failed_batches", len(res.Errors)))
	return res, nil
}

// Stale returns the sorted identities in stored but not in current.
func Stale(stored, current map[string]struct{}) []string {
	var stale []string
	for id := range stored {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	slices.Sort(stale)
	return stale
}
