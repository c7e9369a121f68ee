package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"venture-advisor/internal/retry"
)

// EventType enumerates document lifecycle events.
type EventType string

const (
	EventDocumentUploaded EventType = "uploaded"
	EventDocumentDeleted  EventType = "deleted"
)

// SubjectPrefix namespaces every document event subject.
const SubjectPrefix = "documents."

// Event notifies the surrounding app that a user's document set changed.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	DocumentID string    `json:"documentId"`
	Name       string    `json:"name,omitempty"`
	Chunks     int       `json:"chunks,omitempty"`
	At         time.Time `json:"at"`
}

// NewEvent stamps a fresh id and time on an event.
func NewEvent(t EventType, userID, documentID string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		UserID:     userID,
		DocumentID: documentID,
		At:         time.Now().UTC(),
	}
}

// Subject is the broker subject an event is published on.
func (e Event) Subject() string {
	return SubjectPrefix + string(e.Type)
}

// Publisher delivers document events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// PublishWithRetry attempts to publish with retries and exponential backoff.
func PublishWithRetry(ctx context.Context, p Publisher, event Event, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		return p.Publish(ctx, event)
	})
}

// NoOpPublisher drops every event. Used when QUEUE_PROVIDER=none.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, Event) error { return nil }

func (NoOpPublisher) Close() error { return nil }
