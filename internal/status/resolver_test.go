package status

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// fakeChecker answers from applied and fails for ids in failing.
type fakeChecker struct {
	applied map[models.JobID]bool
	failing map[models.JobID]bool
	delay   time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu     sync.Mutex
	emails []string
}

func (f *fakeChecker) CheckApplied(ctx context.Context, email string, id models.JobID) (bool, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.emails = append(f.emails, email)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if f.failing[id] {
		return false, apperr.Network("check status", fmt.Errorf("connection reset"))
	}
	return f.applied[id], nil
}

func ids(n int) []models.JobID {
	out := make([]models.JobID, n)
	for i := range out {
		out[i] = models.JobID(fmt.Sprint(i + 1))
	}
	return out
}

func TestResolveBatch_FailedItemIsNotApplied(t *testing.T) {
	checker := &fakeChecker{
		applied: map[models.JobID]bool{"1": true, "3": true, "4": true},
		failing: map[models.JobID]bool{"3": true},
	}
	r := NewResolver(checker, 2, logger.Nop())

	got := r.ResolveBatch(context.Background(), "amine@esprit.tn", ids(4))

	assert.Equal(t, map[models.JobID]bool{"1": true, "2": false, "3": false, "4": true}, got)
	assert.Equal(t, int32(4), checker.calls.Load())
}

func TestResolveBatch_EmptyEmailMakesNoCalls(t *testing.T) {
	checker := &fakeChecker{applied: map[models.JobID]bool{"1": true}}
	r := NewResolver(checker, 0, logger.Nop())

	got := r.ResolveBatch(context.Background(), "   ", ids(3))

	assert.Equal(t, map[models.JobID]bool{"1": false, "2": false, "3": false}, got)
	assert.Zero(t, checker.calls.Load())
}

func TestResolveBatch_EmptyInput(t *testing.T) {
	checker := &fakeChecker{}
	r := NewResolver(checker, 0, logger.Nop())

	got := r.ResolveBatch(context.Background(), "a@b.tn", nil)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, checker.calls.Load())
}

func TestResolveBatch_ConcurrencyCap(t *testing.T) {
	checker := &fakeChecker{delay: 10 * time.Millisecond}
	r := NewResolver(checker, 3, logger.Nop())

	got := r.ResolveBatch(context.Background(), "a@b.tn", ids(12))

	require.Len(t, got, 12)
	assert.LessOrEqual(t, checker.maxSeen.Load(), int32(3))
	assert.Greater(t, checker.maxSeen.Load(), int32(1), "checks run in parallel")
}

func TestResolveBatch_DuplicateIDsCheckedOnce(t *testing.T) {
	checker := &fakeChecker{applied: map[models.JobID]bool{"7": true}}
	r := NewResolver(checker, 0, logger.Nop())

	got := r.ResolveBatch(context.Background(), "a@b.tn", []models.JobID{"7", "7", "8"})

	assert.Equal(t, map[models.JobID]bool{"7": true, "8": false}, got)
	assert.Equal(t, int32(2), checker.calls.Load())
}

func TestResolveBatch_CanceledContext(t *testing.T) {
	checker := &fakeChecker{applied: map[models.JobID]bool{"1": true}}
	r := NewResolver(checker, 0, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := r.ResolveBatch(ctx, "a@b.tn", ids(5))

	assert.Len(t, got, 5)
	for _, applied := range got {
		assert.False(t, applied)
	}
	assert.Zero(t, checker.calls.Load())
}
