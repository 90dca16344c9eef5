package favsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// fakeCatalog knows a fixed set of jobs.
type fakeCatalog struct {
	mu    sync.Mutex
	jobs  map[models.JobID]models.Job
	err   error
	calls atomic.Int32
}

func (f *fakeCatalog) ResolveByIDs(_ context.Context, ids []models.JobID) ([]models.Job, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []models.Job{}
	for _, id := range ids {
		if j, ok := f.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeCatalog) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// fakeStatuses answers from applied. The first batch may be held on gate.
type fakeStatuses struct {
	mu      sync.Mutex
	applied map[models.JobID]bool
	gate    chan struct{}
	calls   atomic.Int32
	emails  []string
}

func (f *fakeStatuses) ResolveBatch(_ context.Context, email string, ids []models.JobID) map[models.JobID]bool {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.emails = append(f.emails, email)
	applied := f.applied
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	out := make(map[models.JobID]bool, len(ids))
	for _, id := range ids {
		out[id] = applied[id] && email != ""
	}
	return out
}

func (f *fakeStatuses) setApplied(applied map[models.JobID]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = applied
}

func (f *fakeStatuses) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

type fakeEmail struct {
	email string
}

func (f fakeEmail) Email(context.Context) (string, error) {
	if f.email == "" {
		return "", apperr.ErrAuth
	}
	return f.email, nil
}

type fixture struct {
	store    *favorites.Store
	catalog  *fakeCatalog
	statuses *fakeStatuses
	sync     *Synchronizer
}

func newFixture(t *testing.T, stored string, email string) *fixture {
	t.Helper()

	kv := &memKV{data: map[string]string{}}
	if stored != "" {
		kv.data[models.KeyFavoriteJobs] = stored
	}
	f := &fixture{
		store: favorites.NewStore(kv, logger.Nop(), favorites.Options{}),
		catalog: &fakeCatalog{jobs: map[models.JobID]models.Job{
			"5": {ID: "5", Title: "Backend", Address: "Sfax", CreatedAt: models.MustTime("2024-01-01")},
			"9": {ID: "9", Title: "Audit", Address: "Tunis", CreatedAt: models.MustTime("2024-03-01")},
			"12": {ID: "12", Title: "Mobile", Address: "Sousse", CreatedAt: models.MustTime("2024-02-01")},
		}},
		statuses: &fakeStatuses{applied: map[models.JobID]bool{"9": true}},
	}
	f.sync = New(f.store, f.catalog, f.statuses, fakeEmail{email: email}, logger.Nop())
	t.Cleanup(f.store.Subscribe(f.sync))
	t.Cleanup(f.sync.Deactivate)
	return f
}

func itemIDs(items []Item) []models.JobID {
	out := make([]models.JobID, len(items))
	for i, it := range items {
		out[i] = it.Job.ID
	}
	return out
}

func TestActivate_Empty(t *testing.T) {
	f := newFixture(t, "", "amine@esprit.tn")

	require.NoError(t, f.sync.Activate(context.Background()))

	snap := f.sync.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Empty(t, snap.Items)
	assert.Zero(t, f.catalog.calls.Load(), "no catalog call for an empty set")
}

func TestActivate_Ready(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")

	require.NoError(t, f.sync.Activate(context.Background()))

	snap := f.sync.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, []models.JobID{"5", "9"}, itemIDs(snap.Items))
	assert.False(t, snap.Items[0].Applied)
	assert.True(t, snap.Items[1].Applied)
	assert.Equal(t, []models.JobID{"9", "5"}, itemIDs(snap.Visible), "newest first")
}

func TestActivate_RemovedPostingsAreDropped(t *testing.T) {
	f := newFixture(t, "[404,12]", "amine@esprit.tn")

	require.NoError(t, f.sync.Activate(context.Background()))

	assert.Equal(t, []models.JobID{"12"}, itemIDs(f.sync.Snapshot().Items))
}

func TestActivate_AllPostingsGone(t *testing.T) {
	f := newFixture(t, "[404]", "amine@esprit.tn")

	require.NoError(t, f.sync.Activate(context.Background()))

	assert.Equal(t, StateEmpty, f.sync.Snapshot().State)
}

func TestActivate_MissingEmail(t *testing.T) {
	f := newFixture(t, "[9]", "")

	require.NoError(t, f.sync.Activate(context.Background()))

	snap := f.sync.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.False(t, snap.Items[0].Applied)
}

func TestActivate_ErrorThenRetry(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	f.catalog.setErr(apperr.Network("resolve by ids", context.DeadlineExceeded))
	ctx := context.Background()

	require.Error(t, f.sync.Activate(ctx))
	snap := f.sync.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, apperr.KindNetwork, snap.Err)
	assert.True(t, snap.Retryable)

	f.catalog.setErr(nil)
	require.NoError(t, f.sync.Retry(ctx))
	snap = f.sync.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, apperr.KindNone, snap.Err)
}

func TestActivate_AuthErrorIsNotRetryable(t *testing.T) {
	f := newFixture(t, "[5]", "amine@esprit.tn")
	f.catalog.setErr(&apperr.HTTPError{Op: "resolve by ids", StatusCode: 401})

	require.Error(t, f.sync.Activate(context.Background()))

	snap := f.sync.Snapshot()
	assert.Equal(t, apperr.KindAuth, snap.Err)
	assert.False(t, snap.Retryable)
}

func TestDelete_Confirm(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	ctx := context.Background()
	require.NoError(t, f.sync.Activate(ctx))

	require.NoError(t, f.sync.RequestDelete("9"))
	snap := f.sync.Snapshot()
	require.NotNil(t, snap.PendingDelete)
	assert.Equal(t, models.JobID("9"), snap.PendingDelete.ID)

	require.NoError(t, f.sync.ConfirmDelete(ctx))

	snap = f.sync.Snapshot()
	assert.Nil(t, snap.PendingDelete)
	assert.Equal(t, []models.JobID{"5"}, itemIDs(snap.Items))
	assert.Equal(t, favorites.Set{"5"}, f.store.Load(ctx))

	assert.ErrorIs(t, f.sync.ConfirmDelete(ctx), ErrNoPendingDelete)
}

func TestDelete_LastItemEmptiesScreen(t *testing.T) {
	f := newFixture(t, "[5]", "amine@esprit.tn")
	ctx := context.Background()
	require.NoError(t, f.sync.Activate(ctx))

	require.NoError(t, f.sync.RequestDelete("5"))
	require.NoError(t, f.sync.ConfirmDelete(ctx))

	assert.Equal(t, StateEmpty, f.sync.Snapshot().State)
}

func TestDelete_Cancel(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	ctx := context.Background()
	require.NoError(t, f.sync.Activate(ctx))

	require.NoError(t, f.sync.RequestDelete("5"))
	f.sync.CancelDelete()

	snap := f.sync.Snapshot()
	assert.Nil(t, snap.PendingDelete)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, favorites.Set{"5", "9"}, f.store.Load(ctx))

	assert.ErrorIs(t, f.sync.RequestDelete("77"), ErrUnknownJob)
}

func TestRefresh_KeepsItemsVisible(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	ctx := context.Background()
	require.NoError(t, f.sync.Activate(ctx))

	var states []Snapshot
	f.sync.Subscribe(func(s Snapshot) { states = append(states, s) })

	require.NoError(t, f.sync.Refresh(ctx))

	require.Len(t, states, 2)
	assert.Equal(t, StateRefreshing, states[0].State)
	assert.Len(t, states[0].Items, 2, "no flicker to empty")
	assert.Equal(t, StateReady, states[1].State)
}

func TestStaleStatusBatchDiscarded(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	ctx := context.Background()

	gate := f.statuses.hold()
	firstDone := make(chan error, 1)
	go func() { firstDone <- f.sync.Activate(ctx) }()
	require.Eventually(t, func() bool { return f.statuses.calls.Load() == 1 }, time.Second, time.Millisecond)

	// a newer load sees different statuses and completes first
	f.statuses.setApplied(map[models.JobID]bool{"5": true})
	require.NoError(t, f.sync.Refresh(ctx))

	f.statuses.setApplied(map[models.JobID]bool{"9": true})
	close(gate)

	assert.ErrorIs(t, <-firstDone, ErrSuperseded)
	snap := f.sync.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.True(t, snap.Items[0].Applied, "job 5 from the newer batch")
	assert.False(t, snap.Items[1].Applied)
}

func TestDeactivate_DiscardsInFlightLoad(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	ctx := context.Background()

	gate := f.statuses.hold()
	done := make(chan error, 1)
	go func() { done <- f.sync.Activate(ctx) }()
	require.Eventually(t, func() bool { return f.statuses.calls.Load() == 1 }, time.Second, time.Millisecond)

	f.sync.Deactivate()
	close(gate)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, StateLoading, f.sync.Snapshot().State)
	assert.ErrorIs(t, f.sync.Refresh(ctx), ErrInactive)
}

func TestSearchAndSort(t *testing.T) {
	f := newFixture(t, "[5,9,12]", "amine@esprit.tn")
	require.NoError(t, f.sync.Activate(context.Background()))
	calls := f.catalog.calls.Load()

	f.sync.SetSort(models.SortOldest)
	assert.Equal(t, []models.JobID{"5", "12", "9"}, itemIDs(f.sync.Snapshot().Visible))

	f.sync.SetSearch("sfax")
	snap := f.sync.Snapshot()
	assert.Equal(t, []models.JobID{"5"}, itemIDs(snap.Visible))
	assert.Len(t, snap.Items, 3, "search only narrows the view")
	assert.Equal(t, calls, f.catalog.calls.Load(), "no I/O")
}

func TestFavoritesChangedElsewhere(t *testing.T) {
	f := newFixture(t, "[5,9]", "amine@esprit.tn")
	ctx := context.Background()
	require.NoError(t, f.sync.Activate(ctx))

	// another screen removes a favorite
	f.store.Toggle(ctx, "5", false)
	assert.Equal(t, []models.JobID{"9"}, itemIDs(f.sync.Snapshot().Items))

	// another screen adds one: the list reloads in the background
	f.store.Toggle(ctx, "12", true)
	require.Eventually(t, func() bool {
		return len(f.sync.Snapshot().Items) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.JobID{"9", "12"}, itemIDs(f.sync.Snapshot().Items))
}
