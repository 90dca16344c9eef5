// Package status resolves whether the student already applied to a set of postings.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// DefaultWorkers caps concurrent checks when no limit is configured.
const DefaultWorkers = 4

// Checker answers one applied-status question.
type Checker interface {
	CheckApplied(ctx context.Context, email string, id models.JobID) (bool, error)
}

// Resolver runs applied-status checks with bounded concurrency.
type Resolver struct {
	checker Checker
	workers int
	log     *logger.Logger
}

// NewResolver creates a resolver running at most workers checks at a time.
func NewResolver(checker Checker, workers int, log *logger.Logger) *Resolver {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Resolver{
		checker: checker,
		workers: workers,
		log:     log.Component("status"),
	}
}

// ResolveBatch returns id -> applied for every id.
// A failed check marks that id false and does not affect the others.
// An empty email marks everything false without any request. When ctx is
// canceled no further checks start; ids left unchecked stay false.
func (r *Resolver) ResolveBatch(ctx context.Context, email string, ids []models.JobID) map[models.JobID]bool {
	result := make(map[models.JobID]bool, len(ids))
	for _, id := range ids {
		result[id] = false
	}

	email = strings.TrimSpace(email)
	if email == "" || len(result) == 0 {
		return result
	}

	var (
		mu     sync.Mutex
		failed int
		g      errgroup.Group
	)
	g.SetLimit(r.workers)

	seen := make(map[models.JobID]bool, len(result))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if ctx.Err() != nil {
			break
		}

		id := id
		g.Go(func() error {
			applied, err := r.checker.CheckApplied(ctx, email, id)
			if err != nil {
				if ctx.Err() == nil {
					r.log.Warn().
						Err(fmt.Errorf("%w: %w", apperr.ErrPartialBatch, err)).
						Str("job_id", id.String()).
						Msg("applied status unknown, treating as not applied")
				}
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			result[id] = applied
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.log.Debug().
		Int("jobs", len(result)).
		Int("failed", failed).
		Msg("applied status batch resolved")

	return result
}
