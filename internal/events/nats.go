package events

import (
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/blockedby/stagesync/internal/favorites"
	"github.com/blockedby/stagesync/internal/logger"
)

// DefaultFavoritesSubject carries favorites count events.
const DefaultFavoritesSubject = "favorites.count"

// NATSClient allows mocking the connection.
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes favorites events to NATS.
type NATSPublisher struct {
	conn    NATSClient
	subject string
	log     *logger.Logger
}

// Connect dials the NATS server at url.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("stagesync"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// NewNATSPublisher creates a publisher on subject.
func NewNATSPublisher(conn NATSClient, subject string, log *logger.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultFavoritesSubject
	}
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		log:     log.Component("nats"),
	}
}

// PublishFavoritesChange publishes one favorites mutation.
func (p *NATSPublisher) PublishFavoritesChange(c favorites.Change) error {
	data, err := FavoritesCountEvent(c)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// FavoritesChanged implements favorites.Observer. Failures are logged only.
func (p *NATSPublisher) FavoritesChanged(c favorites.Change) {
	if err := p.PublishFavoritesChange(c); err != nil {
		p.log.Warn().Err(err).Str("subject", p.subject).Msg("favorites event not published")
	}
}
