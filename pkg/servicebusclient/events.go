package servicebusclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/logging"
	"github.com/yourorg/go-blob-kit/pkg/utils"
)

// Blob event types.
const (
	EventBlobWritten     = "blob.written"
	EventBlobSnapshotted = "blob.snapshotted"
	EventBlobDeleted     = "blob.deleted"
)

// BlobEvent announces a committed change to a blob.
type BlobEvent struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Container  string    `json:"container"`
	Blob       string    `json:"blob"`
	ETag       string    `json:"etag,omitempty"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher publishes blob events through a Sender.
type EventPublisher struct {
	sender Sender
	logger logging.Logger
	now    func() time.Time
}

// NewEventPublisher creates a publisher over sender.
func NewEventPublisher(sender Sender, logger logging.Logger) *EventPublisher {
	return &EventPublisher{
		sender: sender,
		logger: logger,
		now:    time.Now,
	}
}

// Publish sends event as a JSON message. ID and OccurredAt are filled in
// when empty; the message ID is the event ID so redeliveries can be
// deduplicated downstream.
func (p *EventPublisher) Publish(ctx context.Context, event BlobEvent) error {
	if event.ID == "" {
		event.ID = utils.GenerateUUID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.NewAppErrorWithErr(errors.ErrorCodeInternal, "failed to encode blob event", err)
	}

	_, err = p.sender.Send(ctx, body,
		WithMessageID(event.ID),
		WithContentType("application/json"),
		WithProperties(map[string]interface{}{
			"event":     event.Event,
			"container": event.Container,
		}),
	)
	if err != nil {
		return err
	}

	p.logger.Debug("Blob event published",
		logging.NewField("event", event.Event),
		logging.NewField("blob", event.Blob),
		logging.NewField("event_id", event.ID),
	)
	return nil
}

// Close closes the underlying sender.
func (p *EventPublisher) Close(ctx context.Context) error {
	return p.sender.Close(ctx)
}
