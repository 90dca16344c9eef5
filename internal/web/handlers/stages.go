package handlers

import (
	"net/http"
	"strconv"

	"github.com/blockedby/stagesync/internal/listing"
	"github.com/blockedby/stagesync/internal/search"
)

// query keys that are not catalog filters
var stagesReserved = map[string]bool{"search": true, "page": true, "sort": true, "limit": true}

// StagesHandler serves the postings screen.
type StagesHandler struct {
	ctrl StagesController
}

// NewStagesHandler creates a new StagesHandler.
func NewStagesHandler(ctrl StagesController) *StagesHandler {
	return &StagesHandler{ctrl: ctrl}
}

type stagesResponse struct {
	search.State
	View listing.ViewModel `json:"view"`
}

// List brings the screen to the requested term, filters and page and returns it.
func (h *StagesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))

	filters := make(map[string]string)
	for k, v := range q {
		if !stagesReserved[k] && len(v) > 0 && v[0] != "" {
			filters[k] = v[0]
		}
	}

	err := h.ctrl.Submit(r.Context(), search.Query{
		Term:    q.Get("search"),
		Page:    page,
		Filters: filters,
	})
	h.respond(w, r, err)
}

// Refresh reloads the current page.
func (h *StagesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.Refresh(r.Context()))
}

// Next moves to the next page.
func (h *StagesHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.NextPage(r.Context()))
}

// Prev moves to the previous page.
func (h *StagesHandler) Prev(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ctrl.PrevPage(r.Context()))
}

func (h *StagesHandler) respond(w http.ResponseWriter, r *http.Request, err error) {
	st := h.ctrl.State()
	resp := stagesResponse{
		State: st,
		View:  h.ctrl.View(listing.ParseSortOrder(r.URL.Query().Get("sort"))),
	}

	status := triggerStatus(err)
	if err == nil {
		status = statusFor(st.Err)
	}
	writeJSON(w, status, resp)
}
