package servicebusclient

import (
	"context"
)

// Sender sends messages to one Service Bus queue or topic.
type Sender interface {
	// Send sends a message and returns its message ID.
	Send(ctx context.Context, body []byte, opts ...SendOption) (messageID string, err error)

	// Close releases the underlying link.
	Close(ctx context.Context) error
}

// SendOption represents optional parameters for send operations.
type SendOption func(*SendOptions)

// SendOptions contains options for send operations.
type SendOptions struct {
	ContentType string
	Properties  map[string]interface{}
	MessageID   string
}

// WithContentType sets the content type for a message.
func WithContentType(contentType string) SendOption {
	return func(opts *SendOptions) {
		opts.ContentType = contentType
	}
}

// WithProperties sets custom application properties for a message.
func WithProperties(properties map[string]interface{}) SendOption {
	return func(opts *SendOptions) {
		opts.Properties = properties
	}
}

// WithMessageID sets a custom message ID.
func WithMessageID(messageID string) SendOption {
	return func(opts *SendOptions) {
		opts.MessageID = messageID
	}
}

func applySendOptions(opts []SendOption) SendOptions {
	var sendOptions SendOptions
	for _, opt := range opts {
		opt(&sendOptions)
	}
	return sendOptions
}
