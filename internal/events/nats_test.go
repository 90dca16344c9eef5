package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/logger"
)

// MockNATSClient records published messages.
type MockNATSClient struct {
	PublishedSubject string
	PublishedData    []byte
	PublishError     error
	Calls            int
}

func (m *MockNATSClient) Publish(subject string, data []byte) error {
	m.Calls++
	m.PublishedSubject = subject
	m.PublishedData = data
	return m.PublishError
}

func TestNATSPublisher_PublishFavoritesChange(t *testing.T) {
	mock := &MockNATSClient{}
	pub := NewNATSPublisher(mock, "", logger.Nop())

	require.NoError(t, pub.PublishFavoritesChange(favorites.Change{ID: "abc", Favorite: false, Count: 1}))

	assert.Equal(t, DefaultFavoritesSubject, mock.PublishedSubject)

	var evt Event
	require.NoError(t, json.Unmarshal(mock.PublishedData, &evt))
	assert.Equal(t, EventFavoritesCount, evt.Type)
	assert.False(t, evt.At.IsZero())
}

func TestNATSPublisher_PublishError(t *testing.T) {
	mock := &MockNATSClient{PublishError: errors.New("nats: connection closed")}
	pub := NewNATSPublisher(mock, "custom.subject", logger.Nop())

	err := pub.PublishFavoritesChange(favorites.Change{ID: "1", Favorite: true, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event")

	// as an observer the failure is swallowed
	pub.FavoritesChanged(favorites.Change{ID: "1", Favorite: true, Count: 1})
	assert.Equal(t, 2, mock.Calls)
	assert.Equal(t, "custom.subject", mock.PublishedSubject)
}

func TestNATSPublisher_AsStoreObserver(t *testing.T) {
	mock := &MockNATSClient{}
	pub := NewNATSPublisher(mock, "", logger.Nop())

	var _ favorites.Observer = pub
	var _ favorites.Observer = NewHub(logger.Nop())
}
