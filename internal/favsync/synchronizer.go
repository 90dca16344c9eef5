// Package favsync reconciles the local favorite set with the catalog for the
// favorites screen.
//
// A load reads the favorite ids, resolves them to postings and then resolves
// the applied status of each posting. Each load carries a generation; results
// of a load that is no longer current, or that finishes after Deactivate, are
// dropped.
package favsync

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/listing"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// errors
var (
	ErrSuperseded      = errors.New("superseded by a newer load")
	ErrInactive        = errors.New("favorites screen is not active")
	ErrNoPendingDelete = errors.New("no delete awaiting confirmation")
	ErrUnknownJob      = errors.New("job is not in the favorites list")
)

// State of the screen.
type State string

// State constants.
const (
	StateLoading    State = "loading"
	StateEmpty      State = "empty"
	StateError      State = "error"
	StateReady      State = "ready"
	StateRefreshing State = "refreshing"
)

// FavoriteStore is the local favorite set.
type FavoriteStore interface {
	Load(ctx context.Context) favorites.Set
	Toggle(ctx context.Context, id models.JobID, makeFavorite bool) favorites.Set
}

// JobResolver turns ids into postings.
type JobResolver interface {
	ResolveByIDs(ctx context.Context, ids []models.JobID) ([]models.Job, error)
}

// StatusResolver answers applied status for a batch of postings.
type StatusResolver interface {
	ResolveBatch(ctx context.Context, email string, ids []models.JobID) map[models.JobID]bool
}

// EmailSource yields the signed-in student's email.
type EmailSource interface {
	Email(ctx context.Context) (string, error)
}

// Item is one favorite posting with its applied status.
type Item struct {
	Job     models.Job `json:"job"`
	Applied bool       `json:"applied"`
}

// Snapshot is the view model of the screen.
type Snapshot struct {
	State         State            `json:"state"`
	Items         []Item           `json:"items"`
	Visible       []Item           `json:"visible"`
	Term          string           `json:"term"`
	Order         models.SortOrder `json:"order"`
	PendingDelete *models.Job      `json:"pendingDelete,omitempty"`
	Err           apperr.Kind      `json:"error,omitempty"`
	Retryable     bool             `json:"retryable"`
	Generation    uint64           `json:"generation"`
}

// Synchronizer is the favorites screen controller.
type Synchronizer struct {
	store    FavoriteStore
	jobs     JobResolver
	statuses StatusResolver
	emails   EmailSource
	log      *logger.Logger

	mu        sync.Mutex
	active    bool
	gen       uint64
	cancelFn  context.CancelFunc
	state     State
	items     []Item
	term      string
	order     models.SortOrder
	pending   *models.Job
	errKind   apperr.Kind
	listeners map[int]func(Snapshot)
	nextID    int
}

// New creates the synchronizer. It stays inactive until Activate.
func New(store FavoriteStore, jobs JobResolver, statuses StatusResolver, emails EmailSource, log *logger.Logger) *Synchronizer {
	return &Synchronizer{
		store:     store,
		jobs:      jobs,
		statuses:  statuses,
		emails:    emails,
		log:       log.Component("favsync"),
		state:     StateLoading,
		items:     []Item{},
		order:     models.SortNewest,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn for every snapshot change and returns a function
// removing it. fn runs while the synchronizer is locked and must not call
// back into it.
func (s *Synchronizer) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot returns the current view model.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Active reports whether the screen is open.
func (s *Synchronizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate opens the screen and loads it from scratch.
func (s *Synchronizer) Activate(ctx context.Context) error {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	return s.load(ctx, false)
}

// Retry reloads after an error.
func (s *Synchronizer) Retry(ctx context.Context) error {
	return s.load(ctx, false)
}

// Refresh reloads while the current items stay visible.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	return s.load(ctx, true)
}

// Deactivate tears the screen down. In-flight loads are canceled and their
// results discarded.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.gen++
	s.pending = nil
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
}

// SetSearch filters the visible items; no I/O.
func (s *Synchronizer) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
	s.notify()
}

// SetSort orders the visible items; no I/O.
func (s *Synchronizer) SetSort(order models.SortOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = order
	s.notify()
}

// RequestDelete opens the confirmation prompt for id.
func (s *Synchronizer) RequestDelete(id models.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return ErrUnknownJob
	}
	job := s.items[i].Job
	s.pending = &job
	s.notify()
	return nil
}

// CancelDelete closes the prompt without touching the favorites.
func (s *Synchronizer) CancelDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending = nil
		s.notify()
	}
}

// ConfirmDelete removes the pending job from the favorites, drops it from the
// list and closes the prompt.
func (s *Synchronizer) ConfirmDelete(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return ErrNoPendingDelete
	}
	id := s.pending.ID
	s.mu.Unlock()

	// the store notifies FavoritesChanged, which takes mu
	s.store.Toggle(ctx, id, false)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.remove(id)
	s.notify()
	return nil
}

// FavoritesChanged keeps the screen in step with toggles made elsewhere.
// A removal drops the item; an addition triggers a background refresh.
func (s *Synchronizer) FavoritesChanged(c favorites.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	if !c.Favorite {
		if s.remove(c.ID) {
			s.notify()
		}
		return
	}
	if s.indexOf(c.ID) < 0 {
		go func() {
			if err := s.Refresh(context.Background()); err != nil && !errors.Is(err, ErrSuperseded) {
				s.log.Debug().Err(err).Msg("refresh after favorite added")
			}
		}()
	}
}

func (s *Synchronizer) load(ctx context.Context, refresh bool) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrInactive
	}
	s.gen++
	gen := s.gen
	if s.cancelFn != nil {
		s.cancelFn()
	}
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelFn = cancel

	if refresh && (s.state == StateReady || s.state == StateRefreshing) {
		s.state = StateRefreshing
	} else {
		s.state = StateLoading
	}
	s.errKind = apperr.KindNone
	s.notify()
	s.mu.Unlock()

	ids := s.store.Load(loadCtx)
	if len(ids) == 0 {
		return s.finish(gen, []Item{}, nil)
	}

	jobs, err := s.jobs.ResolveByIDs(loadCtx, ids)
	if err != nil {
		return s.finish(gen, nil, err)
	}
	if !s.current(gen) {
		return ErrSuperseded
	}

	email, err := s.emails.Email(loadCtx)
	if err != nil {
		s.log.Warn().Err(err).Msg("no student email, applied status unknown")
		email = ""
	}

	jobIDs := make([]models.JobID, len(jobs))
	for i, j := range jobs {
		jobIDs[i] = j.ID
	}
	applied := s.statuses.ResolveBatch(loadCtx, email, jobIDs)

	items := make([]Item, len(jobs))
	for i, j := range jobs {
		items[i] = Item{Job: j, Applied: applied[j.ID]}
	}
	return s.finish(gen, items, nil)
}

// current reports whether gen is still the live load.
func (s *Synchronizer) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && gen == s.gen
}

// finish applies the outcome of load gen unless it went stale.
func (s *Synchronizer) finish(gen uint64, items []Item, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || gen != s.gen {
		s.log.Debug().Uint64("generation", gen).Msg("stale favorites load discarded")
		return ErrSuperseded
	}
	s.cancelFn = nil

	if err != nil {
		kind := apperr.KindOf(err)
		s.state = StateError
		s.errKind = kind
		s.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to load favorites")
		s.notify()
		return err
	}

	s.items = items
	s.state = StateReady
	if len(items) == 0 {
		s.state = StateEmpty
	}
	if s.pending != nil && s.indexOf(s.pending.ID) < 0 {
		s.pending = nil
	}
	s.notify()
	return nil
}

// indexOf returns the position of id in items or -1; callers hold mu.
func (s *Synchronizer) indexOf(id models.JobID) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.Job.ID == id })
}

// remove drops id from items; callers hold mu.
func (s *Synchronizer) remove(id models.JobID) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(slices.Clone(s.items), i, i+1)
	if len(s.items) == 0 && (s.state == StateReady || s.state == StateRefreshing) {
		s.state = StateEmpty
	}
	return true
}

// snapshot builds the view model; callers hold mu.
func (s *Synchronizer) snapshot() Snapshot {
	items := slices.Clone(s.items)
	if items == nil {
		items = []Item{}
	}

	applied := make(map[models.JobID]bool, len(items))
	jobs := make([]models.Job, len(items))
	for i, it := range items {
		jobs[i] = it.Job
		applied[it.Job.ID] = it.Applied
	}
	sorted := listing.Apply(jobs, s.term, s.order)
	visible := make([]Item, len(sorted))
	for i, j := range sorted {
		visible[i] = Item{Job: j, Applied: applied[j.ID]}
	}

	snap := Snapshot{
		State:      s.state,
		Items:      items,
		Visible:    visible,
		Term:       s.term,
		Order:      s.order,
		Err:        s.errKind,
		Retryable:  s.errKind.Retryable(),
		Generation: s.gen,
	}
	if s.pending != nil {
		job := *s.pending
		snap.PendingDelete = &job
	}
	return snap
}

// notify calls listeners; callers hold mu.
func (s *Synchronizer) notify() {
	snap := s.snapshot()
	for _, fn := range s.listeners {
		fn(snap)
	}
}
