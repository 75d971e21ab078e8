package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edgeee/portfolio/api"
	"github.com/nats-io/nats.go"
)

// Subjects events are published on.
const (
	SubjectContactSubmitted = "contact.submitted"
	SubjectReactionToggled  = "reaction.toggled"
)

// A Conn is the part of a NATS connection the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher publishes application events to NATS.
type Publisher struct {
	conn Conn
}

// NewPublisher returns a Publisher writing to conn.
func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Connect connects to the NATS server at url.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("portfolio"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// ContactSubmittedEvent is published for every stored contact message.
type ContactSubmittedEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ContactSubmitted publishes msg on SubjectContactSubmitted.
func (p *Publisher) ContactSubmitted(_ context.Context, msg api.ContactMessage) error {
	return p.publish(SubjectContactSubmitted, ContactSubmittedEvent{
		ID:        msg.ID,
		Name:      msg.Name,
		Email:     msg.Email,
		Subject:   msg.Subject,
		Message:   msg.Message,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// ReactionToggled publishes event on SubjectReactionToggled.
func (p *Publisher) ReactionToggled(_ context.Context, event api.ReactionEvent) error {
	return p.publish(SubjectReactionToggled, event)
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Discard is a notifier that drops every event. It is used when no NATS server
// is configured.
type Discard struct{}

func (Discard) ContactSubmitted(context.Context, api.ContactMessage) error { return nil }

func (Discard) ReactionToggled(context.Context, api.ReactionEvent) error { return nil }
