// Package search drives the postings screen: one page of catalog results at
// a time, with search term, filters and pull-to-refresh.
//
// Every trigger starts a new generation and cancels the request of the
// previous one. A response is applied only while its generation is current,
// so a slow answer for an older page or term can never overwrite newer state.
package search

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/catalog"
	"github.com/blockedby/stagesync/internal/listing"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// errors
var (
	ErrSuperseded = errors.New("superseded by a newer request")
	ErrClosed     = errors.New("search screen closed")
)

// Status of the screen.
type Status string

// Status constants.
const (
	StatusLoading   Status = "loading"
	StatusReady     Status = "ready"
	StatusNoResults Status = "no_results"
	StatusError     Status = "error"
)

// Searcher fetches one page of postings.
type Searcher interface {
	Search(ctx context.Context, params catalog.SearchParams) (*catalog.SearchResult, error)
}

// Query is what the screen asks the catalog for.
type Query struct {
	Term    string            `json:"term"`
	Page    int               `json:"page"`
	Filters map[string]string `json:"filters,omitempty"`
}

func (q Query) clone() Query {
	q.Filters = maps.Clone(q.Filters)
	return q
}

func (q Query) equal(o Query) bool {
	return q.Term == o.Term && q.Page == o.Page && maps.Equal(q.Filters, o.Filters)
}

// State is the view model of the screen.
type State struct {
	Status     Status            `json:"status"`
	Refreshing bool              `json:"refreshing"`
	Jobs       []models.Job      `json:"jobs"`
	Pagination models.Pagination `json:"pagination"`
	Query      Query             `json:"query"`
	Err        apperr.Kind       `json:"error,omitempty"`
	Retryable  bool              `json:"retryable"`
	Generation uint64            `json:"generation"`
}

func (s State) clone() State {
	s.Jobs = append([]models.Job(nil), s.Jobs...)
	s.Query = s.Query.clone()
	return s
}

// Controller owns the screen state.
type Controller struct {
	searcher Searcher
	log      *logger.Logger

	mu        sync.Mutex
	state     State
	query     Query // latest requested query
	gen       uint64
	paged     bool // Pagination came from a response
	pending   bool
	cancelFn  context.CancelFunc
	closed    bool
	listeners map[int]func(State)
	nextID    int
}

// NewController creates the screen controller. Nothing is fetched until Load.
func NewController(searcher Searcher, log *logger.Logger) *Controller {
	return &Controller{
		searcher:  searcher,
		log:       log.Component("search"),
		state:     State{Status: StatusLoading, Jobs: []models.Job{}, Pagination: models.Pagination{CurrentPage: 1}},
		query:     Query{Page: 1},
		listeners: make(map[int]func(State)),
	}
}

// Subscribe registers fn for every state change and returns a function removing it.
// fn runs while the controller is locked and must not call back into it.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// State returns a snapshot of the view model.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// View runs the listing aggregator over the current page.
func (c *Controller) View(order models.SortOrder) listing.ViewModel {
	c.mu.Lock()
	jobs := append([]models.Job(nil), c.state.Jobs...)
	term := c.state.Query.Term
	c.mu.Unlock()

	return listing.Build(jobs, term, order)
}

// Load fetches the current query.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	q := c.query.clone()
	c.mu.Unlock()
	return c.fetch(ctx, q, false)
}

// Retry repeats the last query after an error.
func (c *Controller) Retry(ctx context.Context) error {
	return c.Load(ctx)
}

// Refresh re-fetches the current query keeping the displayed page visible.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	q := c.query.clone()
	c.mu.Unlock()
	return c.fetch(ctx, q, true)
}

// SetTerm searches for term starting at page 1.
func (c *Controller) SetTerm(ctx context.Context, term string) error {
	c.mu.Lock()
	q := c.query.clone()
	c.mu.Unlock()

	q.Term = strings.TrimSpace(term)
	q.Page = 1
	return c.fetch(ctx, q, false)
}

// SetFilters replaces the filters starting at page 1.
func (c *Controller) SetFilters(ctx context.Context, filters map[string]string) error {
	c.mu.Lock()
	q := c.query.clone()
	c.mu.Unlock()

	q.Filters = maps.Clone(filters)
	q.Page = 1
	return c.fetch(ctx, q, false)
}

// GoToPage fetches page n. Pages outside 1..TotalPages are ignored; before
// the first response only n < 1 is.
func (c *Controller) GoToPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if n < 1 || (c.paged && !c.state.Pagination.InRange(n)) {
		c.mu.Unlock()
		c.log.Debug().Int("page", n).Msg("page out of range, ignored")
		return nil
	}
	q := c.query.clone()
	c.mu.Unlock()

	q.Page = n
	return c.fetch(ctx, q, false)
}

// Submit brings the screen to q in one step. A changed term or filter set
// restarts at page 1; otherwise a different page is fetched like GoToPage.
// A screen that never loaded fetches q as given, page included.
// A screen already showing q is left alone unless it failed.
func (c *Controller) Submit(ctx context.Context, q Query) error {
	q.Term = strings.TrimSpace(q.Term)
	if len(q.Filters) == 0 {
		q.Filters = nil
	}

	c.mu.Lock()
	cur := c.query.clone()
	status := c.state.Status
	loaded := c.gen > 0
	c.mu.Unlock()

	if len(cur.Filters) == 0 {
		cur.Filters = nil
	}

	switch {
	case !loaded:
		if q.Page < 1 {
			q.Page = 1
		}
		return c.fetch(ctx, q, false)
	case q.Term != cur.Term || !maps.Equal(q.Filters, cur.Filters):
		q.Page = 1
		return c.fetch(ctx, q, false)
	case q.Page > 0 && q.Page != cur.Page:
		return c.GoToPage(ctx, q.Page)
	case status == StatusError:
		return c.fetch(ctx, cur, false)
	default:
		return nil
	}
}

// NextPage moves one page forward from the latest requested page.
func (c *Controller) NextPage(ctx context.Context) error {
	c.mu.Lock()
	n := c.query.Page + 1
	c.mu.Unlock()
	return c.GoToPage(ctx, n)
}

// PrevPage moves one page back from the latest requested page.
func (c *Controller) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	n := c.query.Page - 1
	c.mu.Unlock()
	return c.GoToPage(ctx, n)
}

// Close tears the screen down; in-flight responses are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.gen++
	if c.cancelFn != nil {
		c.cancelFn()
		c.cancelFn = nil
	}
	c.listeners = make(map[int]func(State))
}

// fetch runs one generation. It blocks until the response is applied or
// discarded. Errors that put the screen in the error state are returned.
func (c *Controller) fetch(ctx context.Context, q Query, refresh bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	// the same query is already on its way
	if c.pending && !refresh && q.equal(c.query) {
		c.mu.Unlock()
		return nil
	}

	c.gen++
	gen := c.gen
	if c.cancelFn != nil {
		c.cancelFn()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelFn = cancel
	c.pending = true
	c.query = q

	c.state.Query = q.clone()
	c.state.Generation = gen
	if refresh && c.state.Status == StatusReady {
		c.state.Refreshing = true
	} else {
		c.state.Status = StatusLoading
		c.state.Refreshing = false
	}
	c.notify()
	c.mu.Unlock()

	res, err := c.searcher.Search(reqCtx, catalog.SearchParams{
		Term:    q.Term,
		Page:    q.Page,
		Filters: q.Filters,
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if gen != c.gen {
		c.log.Debug().Uint64("generation", gen).Int("page", q.Page).Msg("stale response discarded")
		return ErrSuperseded
	}
	c.pending = false
	c.cancelFn = nil
	c.state.Refreshing = false
	c.state.Err = apperr.KindNone
	c.state.Retryable = false

	switch {
	case err == nil:
		c.paged = true
		c.state.Jobs = res.Jobs
		c.state.Pagination = res.Pagination
		c.state.Status = StatusReady
		if len(res.Jobs) == 0 {
			c.state.Status = StatusNoResults
		}
	case errors.Is(err, apperr.ErrNotFound):
		c.state.Jobs = []models.Job{}
		c.state.Pagination = models.Pagination{CurrentPage: q.Page, TotalPages: q.Page}
		c.paged = true
		c.state.Status = StatusNoResults
		err = nil
	default:
		kind := apperr.KindOf(err)
		c.state.Status = StatusError
		c.state.Err = kind
		c.state.Retryable = kind.Retryable()
		c.log.Error().Err(err).Str("kind", string(kind)).Int("page", q.Page).Msg("search failed")
	}

	c.notify()
	return err
}

// notify calls listeners; callers hold mu.
func (c *Controller) notify() {
	snapshot := c.state.clone()
	for _, fn := range c.listeners {
		fn(snapshot)
	}
}
