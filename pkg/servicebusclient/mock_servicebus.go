package servicebusclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

// Message is a message captured by MockSender.
type Message struct {
	ID          string
	Body        []byte
	ContentType string
	Properties  map[string]interface{}
	EnqueuedAt  time.Time
}

// MockSender is an in-memory Sender for tests and local runs.
type MockSender struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	// Err, when set, is returned by every Send.
	Err error
}

var _ Sender = (*MockSender)(nil)

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send records the message.
func (m *MockSender) Send(ctx context.Context, body []byte, opts ...SendOption) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", errors.NewClosedError()
	}
	if m.Err != nil {
		return "", m.Err
	}

	sendOptions := applySendOptions(opts)
	messageID := sendOptions.MessageID
	if messageID == "" {
		messageID = fmt.Sprintf("mock-msg-%d", len(m.messages)+1)
	}

	m.messages = append(m.messages, Message{
		ID:          messageID,
		Body:        append([]byte(nil), body...),
		ContentType: sendOptions.ContentType,
		Properties:  sendOptions.Properties,
		EnqueuedAt:  time.Now(),
	})
	return messageID, nil
}

// Messages returns a copy of the messages sent so far.
func (m *MockSender) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Close marks the sender closed.
func (m *MockSender) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
