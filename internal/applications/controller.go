// Package applications drives the screen listing the applications the student submitted.
package applications

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/models"
)

// ErrSuperseded is returned by a load overtaken by a newer one.
var ErrSuperseded = errors.New("superseded by a newer load")

// Status of the screen.
type Status string

// Status constants.
const (
	StatusLoading        Status = "loading"
	StatusReady          Status = "ready"
	StatusNoApplications Status = "no_applications"
	StatusError          Status = "error"
)

// Lister fetches the submitted applications.
type Lister interface {
	Applications(ctx context.Context) ([]models.Application, error)
}

// State is the view model of the screen.
type State struct {
	Status       Status                            `json:"status"`
	Refreshing   bool                              `json:"refreshing"`
	Applications []models.Application              `json:"applications"`
	Counts       map[models.ApplicationOutcome]int `json:"counts"`
	Err          apperr.Kind                       `json:"error,omitempty"`
	Retryable    bool                              `json:"retryable"`
}

// Classify normalizes a backend status string.
func Classify(status string) models.ApplicationOutcome {
	return models.Application{Status: status}.Outcome()
}

// Controller owns the applications screen state.
type Controller struct {
	lister Lister
	log    *logger.Logger

	mu       sync.Mutex
	gen      uint64
	cancelFn context.CancelFunc
	state    State
}

// NewController creates the controller.
func NewController(lister Lister, log *logger.Logger) *Controller {
	return &Controller{
		lister: lister,
		log:    log.Component("applications"),
		state: State{
			Status:       StatusLoading,
			Applications: []models.Application{},
			Counts:       map[models.ApplicationOutcome]int{},
		},
	}
}

// State returns a snapshot of the view model.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Applications = slices.Clone(c.state.Applications)
	s.Counts = make(map[models.ApplicationOutcome]int, len(c.state.Counts))
	for k, v := range c.state.Counts {
		s.Counts[k] = v
	}
	return s
}

// Load fetches the list.
func (c *Controller) Load(ctx context.Context) error {
	return c.fetch(ctx, false)
}

// Refresh fetches the list keeping the current one visible.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.fetch(ctx, true)
}

func (c *Controller) fetch(ctx context.Context, refresh bool) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancelFn != nil {
		c.cancelFn()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelFn = cancel

	if refresh && c.state.Status == StatusReady {
		c.state.Refreshing = true
	} else {
		c.state.Status = StatusLoading
	}
	c.mu.Unlock()

	apps, err := c.lister.Applications(reqCtx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return ErrSuperseded
	}
	c.cancelFn = nil
	c.state.Refreshing = false
	c.state.Err = apperr.KindNone
	c.state.Retryable = false

	switch {
	case err == nil && len(apps) > 0:
		c.state.Status = StatusReady
		c.state.Applications = apps
	case err == nil, errors.Is(err, apperr.ErrNotFound):
		c.state.Status = StatusNoApplications
		c.state.Applications = []models.Application{}
		err = nil
	default:
		kind := apperr.KindOf(err)
		c.state.Status = StatusError
		c.state.Err = kind
		c.state.Retryable = kind.Retryable()
		c.log.Error().Err(err).Str("kind", string(kind)).Msg("failed to load applications")
		return err
	}

	counts := make(map[models.ApplicationOutcome]int, 3)
	for _, a := range c.state.Applications {
		counts[a.Outcome()]++
	}
	c.state.Counts = counts
	return nil
}
