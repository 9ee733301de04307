package blobclient

import (
	"context"
	"time"
)

// BlobClient defines the interface for operations against one container.
type BlobClient interface {
	// Get downloads the full payload of a blob.
	Get(ctx context.Context, blobName string) ([]byte, error)

	// GetSnapshot downloads the payload of a snapshot.
	GetSnapshot(ctx context.Context, blobName, snapshotID string) ([]byte, error)

	// Download reads a blob, or a snapshot when snapshotID is set, together
	// with the properties it was served with.
	Download(ctx context.Context, blobName, snapshotID string) (Blob, error)

	// Put writes a blob and, on request, snapshots exactly that write.
	Put(ctx context.Context, blobName string, payload []byte, opts ...PutOption) (*PutResult, error)

	// Snapshot creates an immutable copy of the blob's current content.
	Snapshot(ctx context.Context, blobName string) (snapshotID string, err error)

	// Exists checks if a blob exists.
	Exists(ctx context.Context, blobName string) (bool, error)

	// Properties returns a blob's metadata without its payload.
	Properties(ctx context.Context, blobName string) (BlobInfo, error)

	// Delete deletes a blob together with its snapshots.
	Delete(ctx context.Context, blobName string) error

	// List lists blobs in the container with optional prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)

	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// Transport performs single request/response exchanges with the storage
// service. It does not retry; errors should be *errors.AppError values
// classified from the service status where one is available.
type Transport interface {
	Download(ctx context.Context, container, blobName, snapshotID string) (Blob, error)
	Upload(ctx context.Context, container, blobName string, data []byte, opts UploadOptions) (etag string, err error)
	// CreateSnapshot snapshots the blob. A non-empty ifMatch makes the call
	// fail with a conflict unless the blob's ETag still equals it.
	CreateSnapshot(ctx context.Context, container, blobName, ifMatch string) (snapshotID string, err error)
	Properties(ctx context.Context, container, blobName string) (BlobInfo, error)
	Delete(ctx context.Context, container, blobName string) error
	List(ctx context.Context, container, prefix string) ([]BlobInfo, error)
	CreateContainer(ctx context.Context, container string) error
	Close() error
}

// BlobInfo contains information about a blob.
type BlobInfo struct {
	Name         string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// Blob is a downloaded payload. Info describes the same version as Data.
type Blob struct {
	Data []byte
	Info BlobInfo
}

// UploadOptions contains the per-request parameters of an upload.
type UploadOptions struct {
	Overwrite   bool
	ContentType string
}

// PutResult describes a committed write.
type PutResult struct {
	ETag string
	// SnapshotID is set when the write was snapshotted.
	SnapshotID string
}

// PutOptions contains optional parameters for Put.
type PutOptions struct {
	Overwrite      bool
	CreateSnapshot bool
	ContentType    string
}

// DefaultPutOptions returns the options Put uses when none are given.
func DefaultPutOptions() PutOptions {
	return PutOptions{
		Overwrite:   true,
		ContentType: "application/octet-stream",
	}
}

// PutOption represents an optional parameter for Put.
type PutOption func(*PutOptions)

// WithOverwrite controls whether an existing blob may be replaced.
func WithOverwrite(overwrite bool) PutOption {
	return func(opts *PutOptions) {
		opts.Overwrite = overwrite
	}
}

// WithSnapshot requests a snapshot of the written content once the write commits.
func WithSnapshot() PutOption {
	return func(opts *PutOptions) {
		opts.CreateSnapshot = true
	}
}

// WithContentType sets the content type stored with the blob.
func WithContentType(contentType string) PutOption {
	return func(opts *PutOptions) {
		if contentType != "" {
			opts.ContentType = contentType
		}
	}
}
