package servicebusclient

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/logging"
)

// AzureSenderConfig configures an AzureSender.
type AzureSenderConfig struct {
	// Namespace is the namespace name, without ".servicebus.windows.net".
	Namespace string
	// KeyName and KeyValue select shared access key auth; when either is
	// empty the environment's managed identity is used.
	KeyName  string
	KeyValue string
	Queue    string
}

// AzureSender implements Sender using Azure Service Bus.
type AzureSender struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
	queue  string
	logger logging.Logger
}

var _ Sender = (*AzureSender)(nil)

// NewAzureSender creates a sender for one queue. Connections are opened
// lazily by the first Send.
func NewAzureSender(cfg AzureSenderConfig, logger logging.Logger) (*AzureSender, error) {
	if cfg.Namespace == "" || cfg.Queue == "" {
		return nil, errors.NewConfigurationError("service bus namespace and queue are required")
	}

	var client *azservicebus.Client
	var err error

	if cfg.KeyName == "" || cfg.KeyValue == "" {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "failed to create Azure credential", credErr)
		}
		client, err = azservicebus.NewClient(fmt.Sprintf("%s.servicebus.windows.net", cfg.Namespace), cred, nil)
	} else {
		connStr := fmt.Sprintf("Endpoint=sb://%s.servicebus.windows.net/;SharedAccessKeyName=%s;SharedAccessKey=%s",
			cfg.Namespace, cfg.KeyName, cfg.KeyValue)
		client, err = azservicebus.NewClientFromConnectionString(connStr, nil)
	}
	if err != nil {
		return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "failed to create Service Bus client", err)
	}

	sender, err := client.NewSender(cfg.Queue, nil)
	if err != nil {
		return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "failed to create Service Bus sender", err)
	}

	return &AzureSender{
		client: client,
		sender: sender,
		queue:  cfg.Queue,
		logger: logger.With(logging.NewField("queue", cfg.Queue)),
	}, nil
}

// Send sends one message to the queue.
func (a *AzureSender) Send(ctx context.Context, body []byte, opts ...SendOption) (string, error) {
	sendOptions := applySendOptions(opts)

	message := &azservicebus.Message{
		Body: body,
	}
	if sendOptions.ContentType != "" {
		message.ContentType = &sendOptions.ContentType
	}
	if sendOptions.MessageID != "" {
		message.MessageID = &sendOptions.MessageID
	}
	if len(sendOptions.Properties) > 0 {
		message.ApplicationProperties = make(map[string]interface{}, len(sendOptions.Properties))
		for k, v := range sendOptions.Properties {
			message.ApplicationProperties[k] = v
		}
	}

	if err := a.sender.SendMessage(ctx, message, nil); err != nil {
		a.logger.Error("Failed to send message", logging.NewField("error", err))
		return "", classifyServiceBusError(err)
	}

	a.logger.Debug("Message sent", logging.NewField("message_id", sendOptions.MessageID))
	return sendOptions.MessageID, nil
}

// Close closes the sender and the client.
func (a *AzureSender) Close(ctx context.Context) error {
	if err := a.sender.Close(ctx); err != nil {
		return fmt.Errorf("failed to close sender: %w", err)
	}
	return a.client.Close(ctx)
}

func classifyServiceBusError(err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewCanceledError(err)
	}

	var sbErr *azservicebus.Error
	if stderrors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeUnauthorizedAccess:
			return errors.NewAppErrorWithErr(errors.ErrorCodeUnauthorized, "service bus access denied", err)
		case azservicebus.CodeConnectionLost:
			return errors.NewTransientError("service bus connection lost", err)
		}
	}
	return errors.NewAppErrorWithErr(errors.ErrorCodeInternal, "failed to send message", err)
}
