package handlers

import (
	"context"

	"github.com/blockedby/stagesync/internal/applications"
	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/favsync"
	"github.com/blockedby/stagesync/internal/listing"
	"github.com/blockedby/stagesync/internal/models"
	"github.com/blockedby/stagesync/internal/search"
)

// StagesController is the postings screen.
type StagesController interface {
	State() search.State
	View(order models.SortOrder) listing.ViewModel
	Submit(ctx context.Context, q search.Query) error
	NextPage(ctx context.Context) error
	PrevPage(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// FavoritesScreen is the favorites screen.
type FavoritesScreen interface {
	Active() bool
	Snapshot() favsync.Snapshot
	Activate(ctx context.Context) error
	Refresh(ctx context.Context) error
	Retry(ctx context.Context) error
	SetSearch(term string)
	SetSort(order models.SortOrder)
	RequestDelete(id models.JobID) error
	ConfirmDelete(ctx context.Context) error
	CancelDelete()
}

// FavoriteToggler mutates the favorite set.
type FavoriteToggler interface {
	Load(ctx context.Context) favorites.Set
	Toggle(ctx context.Context, id models.JobID, makeFavorite bool) favorites.Set
}

// ApplicationsController is the submitted applications screen.
type ApplicationsController interface {
	State() applications.State
	Load(ctx context.Context) error
	Refresh(ctx context.Context) error
}
