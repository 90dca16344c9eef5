package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blockedby/stagesync/internal/apperr"
	"github.com/blockedby/stagesync/internal/favsync"
	"github.com/blockedby/stagesync/internal/logger"
	"github.com/blockedby/stagesync/internal/search"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// usually the client went away
		logger.Get().Component("handlers").Debug().Err(err).Int("status", status).Msg("write response failed")
	}
}

// statusFor maps an error kind carried in a view model to an HTTP status.
// The body always holds the view model.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNone, apperr.KindNotFound:
		return http.StatusOK
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindCanceled:
		return http.StatusConflict
	case apperr.KindPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// triggerStatus maps the error returned by a controller trigger.
func triggerStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, search.ErrSuperseded), errors.Is(err, favsync.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, search.ErrClosed), errors.Is(err, favsync.ErrInactive):
		return http.StatusServiceUnavailable
	default:
		return statusFor(apperr.KindOf(err))
	}
}
