package handlers

import (
	"net/http"
)

// ApplicationsHandler serves the submitted applications screen.
type ApplicationsHandler struct {
	ctrl ApplicationsController
}

// NewApplicationsHandler creates a new ApplicationsHandler.
func NewApplicationsHandler(ctrl ApplicationsController) *ApplicationsHandler {
	return &ApplicationsHandler{ctrl: ctrl}
}

// List loads the applications; ?refresh=1 keeps the current list visible meanwhile.
func (h *ApplicationsHandler) List(w http.ResponseWriter, r *http.Request) {
	var err error
	if r.URL.Query().Get("refresh") != "" {
		err = h.ctrl.Refresh(r.Context())
	} else {
		err = h.ctrl.Load(r.Context())
	}

	st := h.ctrl.State()
	status := triggerStatus(err)
	if err == nil {
		status = statusFor(st.Err)
	}
	writeJSON(w, status, st)
}
