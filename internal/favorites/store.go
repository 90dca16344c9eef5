// Package favorites persists the student's bookmarked job ids.
//
// The Store is the only writer of the favoriteJobs key. Every mutation goes
// through Toggle, which serializes read-modify-write cycles and notifies
// subscribed observers with the new count.
package favorites

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// KV is the persisted key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Set is an ordered collection of unique job ids.
type Set []models.JobID

// Contains reports whether id is in the set.
func (s Set) Contains(id models.JobID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// Change describes one mutation.
type Change struct {
	ID       models.JobID
	Favorite bool
	Count    int
}

// Observer is notified after every mutation. Observers run while the store
// is locked and must not call back into it.
type Observer interface {
	FavoritesChanged(c Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(c Change)

// FavoritesChanged calls f.
func (f ObserverFunc) FavoritesChanged(c Change) {
	f(c)
}

// Options tunes persistence retries.
type Options struct {
	PersistAttempts int
	RetryDelay      time.Duration
}

// Store owns the favorite set.
type Store struct {
	kv   KV
	log  *logger.Logger
	opts Options

	mu        sync.Mutex
	ids       Set
	dirty     bool // in-memory set not yet persisted
	observers map[int]Observer
	nextObs   int
}

// NewStore creates a favorite store over kv.
func NewStore(kv KV, log *logger.Logger, opts Options) *Store {
	if opts.PersistAttempts <= 0 {
		opts.PersistAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &Store{
		kv:        kv,
		log:       log.Component("favorites"),
		opts:      opts,
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns a function removing it.
func (s *Store) Subscribe(o Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = o

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Load returns the persisted set. A missing or unreadable value yields an
// empty set; errors are logged, never returned.
// If an earlier write failed, the pending in-memory set is written first and
// returned, so the displayed state and the persisted state converge.
func (s *Store) Load(ctx context.Context) Set {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.flush(ctx)
		return s.ids.clone()
	}

	s.ids = s.read(ctx)
	return s.ids.clone()
}

// Contains reports whether id is currently a favorite.
func (s *Store) Contains(ctx context.Context, id models.JobID) bool {
	return s.Load(ctx).Contains(id)
}

// Toggle adds (makeFavorite) or removes id, persists the result and returns
// the new set. Adding an existing id or removing a missing one changes
// nothing but still notifies observers with the current count.
func (s *Store) Toggle(ctx context.Context, id models.JobID, makeFavorite bool) Set {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.ids
	if !s.dirty {
		current = s.read(ctx)
	}

	next := make(Set, 0, len(current)+1)
	for _, v := range current {
		if v != id {
			next = append(next, v)
		}
	}
	if makeFavorite {
		if current.Contains(id) {
			next = current.clone()
		} else {
			next = append(next, id)
		}
	}

	s.ids = next
	s.dirty = true
	s.flush(ctx)

	change := Change{ID: id, Favorite: makeFavorite, Count: len(next)}
	for _, o := range s.observers {
		o.FavoritesChanged(change)
	}

	return next.clone()
}

// Dirty reports whether the in-memory set still awaits a successful write.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// read loads the persisted set; callers hold mu.
func (s *Store) read(ctx context.Context) Set {
	raw, ok, err := s.kv.Get(ctx, models.KeyFavoriteJobs)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to read favorites, using empty set")
		return Set{}
	}
	if !ok || raw == "" {
		return Set{}
	}

	var ids []models.JobID
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		s.log.Warn().Err(err).Msg("stored favorites are corrupt, using empty set")
		return Set{}
	}

	// drop duplicates and blanks an older writer may have left behind
	out := make(Set, 0, len(ids))
	for _, id := range ids {
		if id != "" && !out.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// flush writes s.ids with bounded retries; callers hold mu.
func (s *Store) flush(ctx context.Context) {
	payload, err := json.Marshal(s.ids)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to encode favorites")
		return
	}

	for attempt := 1; attempt <= s.opts.PersistAttempts; attempt++ {
		err = s.kv.Set(ctx, models.KeyFavoriteJobs, string(payload))
		if err == nil {
			s.dirty = false
			return
		}
		if attempt == s.opts.PersistAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(s.opts.RetryDelay * time.Duration(attempt)):
		case <-ctx.Done():
		}
	}

	s.log.Error().
		Err(fmt.Errorf("persist favorites: %w", err)).
		Int("count", len(s.ids)).
		Msg("favorites kept in memory, will retry on next load or toggle")
}
