// Package events fans engine state changes out to connected UIs (WebSocket)
// and to other processes (NATS).
package events

import (
	"encoding/json"
	"time"

	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/models"
)

// Event types
const (
	EventFavoritesCount = "favorites.count"
	EventFavoritesState = "favorites.state"
	EventStagesState    = "stages.state"
	EventApplications   = "applications.state"
)

// Event is the envelope of every message.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// FavoritesCountPayload is the payload of EventFavoritesCount.
type FavoritesCountPayload struct {
	JobID    models.JobID `json:"job_id"`
	Favorite bool         `json:"favorite"`
	Count    int          `json:"count"`
}

// Encode marshals an event of the given type.
func Encode(eventType string, payload any) ([]byte, error) {
	return json.Marshal(Event{
		Type:    eventType,
		Payload: payload,
		At:      time.Now().UTC(),
	})
}

// FavoritesCountEvent encodes a favorites mutation.
func FavoritesCountEvent(c favorites.Change) ([]byte, error) {
	return Encode(EventFavoritesCount, FavoritesCountPayload{
		JobID:    c.ID,
		Favorite: c.Favorite,
		Count:    c.Count,
	})
}
