package blobclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/logging"
	"github.com/yourorg/go-blob-kit/pkg/utils"
)

// maxBlobNameLength is the service limit on blob names.
const maxBlobNameLength = 1024

var _ BlobClient = (*Client)(nil)

// Client implements BlobClient for one container on top of a Transport.
// It validates arguments, classifies failures and retries transient ones.
// A Client is safe for concurrent use; Close must not race in-flight calls.
type Client struct {
	transport  Transport
	container  string
	policy     utils.Policy
	logger     logging.Logger
	observer   Observer
	tryTimeout time.Duration
	closed     atomic.Bool
	closeOnce  sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy replaces the default exponential backoff policy.
func WithRetryPolicy(policy utils.Policy) Option {
	return func(c *Client) {
		if policy != nil {
			c.policy = policy
		}
	}
}

// WithLogger sets the logger for operation logs.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets an observer notified after every operation.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithTryTimeout bounds each individual attempt. An attempt that times out
// while the caller's context is still live counts as a transient failure.
func WithTryTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.tryTimeout = timeout
	}
}

// New creates a client for containerName over the given transport.
// The client owns the transport and closes it on Close.
func New(transport Transport, containerName string, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.NewConfigurationError("transport is required")
	}
	if err := validateContainerName(containerName); err != nil {
		return nil, err
	}

	c := &Client{
		transport: transport,
		container: containerName,
		policy:    utils.DefaultRetryConfig(),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewFromConnectionString parses an Azure storage connection string and
// creates a client for containerName. No network I/O is performed.
func NewFromConnectionString(connStr, containerName string, opts ...Option) (*Client, error) {
	if err := validateContainerName(containerName); err != nil {
		return nil, err
	}

	params, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	return NewFromParams(params, containerName, opts...)
}

// NewFromParams creates an Azure-backed client for containerName.
func NewFromParams(params ConnectionParams, containerName string, opts ...Option) (*Client, error) {
	if err := validateContainerName(containerName); err != nil {
		return nil, err
	}

	transport, err := NewAzureTransport(params)
	if err != nil {
		return nil, err
	}
	return New(transport, containerName, opts...)
}

// Container returns the name of the container the client is bound to.
func (c *Client) Container() string {
	return c.container
}

// Get downloads the full payload of a blob.
func (c *Client) Get(ctx context.Context, blobName string) ([]byte, error) {
	blob, err := c.Download(ctx, blobName, "")
	return blob.Data, err
}

// GetSnapshot downloads the payload of a snapshot.
func (c *Client) GetSnapshot(ctx context.Context, blobName, snapshotID string) ([]byte, error) {
	if snapshotID == "" {
		if err := validateBlobName(blobName); err != nil {
			return nil, err
		}
		return nil, errors.NewValidationError("snapshot id is required")
	}
	blob, err := c.Download(ctx, blobName, snapshotID)
	return blob.Data, err
}

// Download reads a blob, or the given snapshot of it, with its properties.
func (c *Client) Download(ctx context.Context, blobName, snapshotID string) (Blob, error) {
	if err := validateBlobName(blobName); err != nil {
		return Blob{}, err
	}

	operation := "get"
	if snapshotID != "" {
		operation = "get_snapshot"
	}
	return run(ctx, c, operation, blobName, func(ctx context.Context) (Blob, error) {
		return c.transport.Download(ctx, c.container, blobName, snapshotID)
	})
}

// Put writes payload to blobName. By default an existing blob is replaced
// and no snapshot is taken.
//
// With WithSnapshot the snapshot is conditioned on the ETag of this write, so
// it either captures exactly this payload or fails with a conflict. If the
// write commits but the snapshot fails, the result still carries the write's
// ETag and the error's details hold committed=true.
func (c *Client) Put(ctx context.Context, blobName string, payload []byte, opts ...PutOption) (*PutResult, error) {
	if err := validateBlobName(blobName); err != nil {
		return nil, err
	}

	putOptions := DefaultPutOptions()
	for _, opt := range opts {
		opt(&putOptions)
	}

	etag, err := run(ctx, c, "put", blobName, func(ctx context.Context) (string, error) {
		return c.transport.Upload(ctx, c.container, blobName, payload, UploadOptions{
			Overwrite:   putOptions.Overwrite,
			ContentType: putOptions.ContentType,
		})
	})
	if err != nil {
		return nil, err
	}

	result := &PutResult{ETag: etag}
	if !putOptions.CreateSnapshot {
		return result, nil
	}

	snapshotID, err := run(ctx, c, "snapshot", blobName, func(ctx context.Context) (string, error) {
		return c.transport.CreateSnapshot(ctx, c.container, blobName, etag)
	})
	if err != nil {
		return result, errors.FromError(err).WithDetails(map[string]interface{}{
			"committed": true,
			"etag":      etag,
		})
	}

	result.SnapshotID = snapshotID
	return result, nil
}

// Snapshot creates an immutable copy of the blob's current content.
func (c *Client) Snapshot(ctx context.Context, blobName string) (string, error) {
	if err := validateBlobName(blobName); err != nil {
		return "", err
	}

	return run(ctx, c, "snapshot", blobName, func(ctx context.Context) (string, error) {
		return c.transport.CreateSnapshot(ctx, c.container, blobName, "")
	})
}

// Exists checks if a blob exists.
func (c *Client) Exists(ctx context.Context, blobName string) (bool, error) {
	if err := validateBlobName(blobName); err != nil {
		return false, err
	}

	return run(ctx, c, "exists", blobName, func(ctx context.Context) (bool, error) {
		_, err := c.transport.Properties(ctx, c.container, blobName)
		if errors.IsCode(err, errors.ErrorCodeNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// Properties returns a blob's metadata.
func (c *Client) Properties(ctx context.Context, blobName string) (BlobInfo, error) {
	if err := validateBlobName(blobName); err != nil {
		return BlobInfo{}, err
	}

	return run(ctx, c, "properties", blobName, func(ctx context.Context) (BlobInfo, error) {
		return c.transport.Properties(ctx, c.container, blobName)
	})
}

// Delete deletes a blob together with its snapshots.
func (c *Client) Delete(ctx context.Context, blobName string) error {
	if err := validateBlobName(blobName); err != nil {
		return err
	}

	_, err := run(ctx, c, "delete", blobName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.transport.Delete(ctx, c.container, blobName)
	})
	return err
}

// List lists blobs in the container with optional prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	return run(ctx, c, "list", prefix, func(ctx context.Context) ([]BlobInfo, error) {
		return c.transport.List(ctx, c.container, prefix)
	})
}

// EnsureContainer creates the container if it does not exist.
func (c *Client) EnsureContainer(ctx context.Context) error {
	_, err := run(ctx, c, "create_container", "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.transport.CreateContainer(ctx, c.container)
	})
	return err
}

// Close releases the transport. Only the first call does any work; later
// calls return nil.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.transport.Close()
		c.logger.Info("Blob client closed", logging.NewField("container", c.container))
	})
	return err
}

// run executes one operation under the retry policy, then logs and reports it.
func run[T any](ctx context.Context, c *Client, operation, blobName string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, errors.NewClosedError()
	}

	logger := c.logger.With(
		logging.NewField("operation", "blob."+operation),
		logging.NewField("operation_id", utils.GenerateOperationID()),
		logging.NewField("container", c.container),
		logging.NewField("blob", blobName),
	)
	logger.Debug("Starting blob operation")
	start := time.Now()

	result, attempts, err := utils.RetryWithResult(ctx, c.policy, errors.IsRetryable, func() (T, error) {
		return attempt(ctx, c, fn)
	}, func(err error, n int, delay time.Duration) {
		logger.Warn("Transient blob failure, retrying",
			logging.NewField("attempt", n),
			logging.NewField("delay_ms", delay.Milliseconds()),
			logging.NewField("error", err),
		)
	})
	err = finalize(ctx, err, attempts)
	latency := time.Since(start)

	stats := OperationStats{
		Operation: operation,
		Container: c.container,
		Blob:      blobName,
		Attempts:  attempts,
		Duration:  latency,
		Success:   err == nil,
	}

	if err != nil {
		stats.Code = errors.CodeOf(err)
		fields := []logging.Field{
			logging.NewField("attempts", attempts),
			logging.NewField("latency_ms", latency.Milliseconds()),
			logging.NewField("code", string(stats.Code)),
			logging.NewField("error", err),
		}
		switch stats.Code {
		case errors.ErrorCodeNotFound, errors.ErrorCodeConflict, errors.ErrorCodeCanceled:
			logger.Warn("Blob operation failed", fields...)
		default:
			logger.Error("Blob operation failed", fields...)
		}
		result = zero
	} else {
		logger.Debug("Blob operation completed",
			logging.NewField("attempts", attempts),
			logging.NewField("latency_ms", latency.Milliseconds()),
		)
	}

	if c.observer != nil {
		c.observer.ObserveBlobOperation(stats)
	}
	return result, err
}

// attempt performs a single try. On failure any partial result is dropped.
func attempt[T any](ctx context.Context, c *Client, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, errors.NewCanceledError(err)
	}

	tryCtx := ctx
	if c.tryTimeout > 0 {
		var cancel context.CancelFunc
		tryCtx, cancel = context.WithTimeout(ctx, c.tryTimeout)
		defer cancel()
	}

	result, err := fn(tryCtx)
	if err != nil {
		return zero, classify(ctx, err)
	}
	return result, nil
}

// classify maps a transport failure onto the error taxonomy. ctx is the
// caller's context, not the per-try one.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.NewCanceledError(ctxErr)
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.NewTransientError("request timed out", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.ECONNREFUSED) {
		return errors.NewTransientError("network failure", err)
	}

	return errors.NewAppErrorWithErr(errors.ErrorCodeInternal, "unclassified transport failure", err)
}

// finalize turns the retry loop's outcome into the error the caller sees.
func finalize(ctx context.Context, err error, attempts int) error {
	if err == nil || errors.IsCode(err, errors.ErrorCodeCanceled) {
		return err
	}

	// the context ended while waiting between attempts
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.NewCanceledError(ctxErr)
	}

	if errors.IsRetryable(err) {
		return errors.NewTransientError(fmt.Sprintf("giving up after %d attempts", attempts), err).
			WithDetails(map[string]interface{}{"attempts": attempts})
	}
	return err
}

func validateContainerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewConfigurationError("container name is required")
	}
	return nil
}

func validateBlobName(name string) error {
	if name == "" {
		return errors.NewValidationError("blob name is required")
	}
	if len(name) > maxBlobNameLength {
		return errors.NewValidationError(fmt.Sprintf("blob name exceeds %d characters", maxBlobNameLength))
	}
	return nil
}
