package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/blockedby/stagesync/internal/favsync"
	"github.com/blockedby/stagesync/internal/listing"
	"github.com/blockedby/stagesync/internal/models"
)

// FavoritesHandler serves the favorites screen and favorite toggles.
type FavoritesHandler struct {
	screen FavoritesScreen
	store  FavoriteToggler
}

// NewFavoritesHandler creates a new FavoritesHandler.
func NewFavoritesHandler(screen FavoritesScreen, store FavoriteToggler) *FavoritesHandler {
	return &FavoritesHandler{screen: screen, store: store}
}

type toggleResponse struct {
	IDs   []models.JobID `json:"ids"`
	Count int            `json:"count"`
}

// List opens the screen on first use, applies search and sort, and returns it.
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	var err error
	if !h.screen.Active() {
		err = h.screen.Activate(r.Context())
	}

	q := r.URL.Query()
	h.screen.SetSearch(q.Get("search"))
	h.screen.SetSort(listing.ParseSortOrder(q.Get("sort")))

	h.respond(w, err)
}

// Refresh reloads the screen keeping current items visible.
func (h *FavoritesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var err error
	if h.screen.Snapshot().State == favsync.StateError {
		err = h.screen.Retry(r.Context())
	} else {
		err = h.screen.Refresh(r.Context())
	}
	h.respond(w, err)
}

// Add marks a posting as favorite.
func (h *FavoritesHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// Remove unmarks a posting.
func (h *FavoritesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *FavoritesHandler) toggle(w http.ResponseWriter, r *http.Request, makeFavorite bool) {
	id := models.JobID(strings.TrimSpace(chi.URLParam(r, "id")))
	if id == "" {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	set := h.store.Toggle(r.Context(), id, makeFavorite)
	writeJSON(w, http.StatusOK, toggleResponse{IDs: set, Count: len(set)})
}

// RequestDelete opens the delete confirmation for a listed favorite.
func (h *FavoritesHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	id := models.JobID(chi.URLParam(r, "id"))
	if err := h.screen.RequestDelete(id); err != nil {
		if errors.Is(err, favsync.ErrUnknownJob) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, nil)
}

// ConfirmDelete removes the pending favorite.
func (h *FavoritesHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.screen.ConfirmDelete(r.Context()); err != nil {
		if errors.Is(err, favsync.ErrNoPendingDelete) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, nil)
}

// CancelDelete closes the confirmation.
func (h *FavoritesHandler) CancelDelete(w http.ResponseWriter, _ *http.Request) {
	h.screen.CancelDelete()
	h.respond(w, nil)
}

func (h *FavoritesHandler) respond(w http.ResponseWriter, err error) {
	snap := h.screen.Snapshot()
	status := triggerStatus(err)
	if err == nil {
		status = statusFor(snap.Err)
	}
	writeJSON(w, status, snap)
}
