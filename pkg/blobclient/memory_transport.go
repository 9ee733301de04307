package blobclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

// snapshotLayout mirrors the service's snapshot identifiers.
const snapshotLayout = "2006-01-02T15:04:05.0000000Z"

// MemoryTransport is an in-memory implementation of Transport for tests and
// local development. Containers are created on first write.
type MemoryTransport struct {
	containers map[string]map[string]*memoryBlob // container -> blobName -> blob
	seq        uint64
	closed     bool
	now        func() time.Time
	mu         sync.RWMutex
}

type memoryBlob struct {
	data        []byte
	etag        string
	contentType string
	modified    time.Time
	snapshots   map[string]*memoryBlob
}

// NewMemoryTransport creates a new in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		containers: make(map[string]map[string]*memoryBlob),
		now:        time.Now,
	}
}

// Download returns a copy of a blob's or snapshot's payload and properties.
func (m *MemoryTransport) Download(ctx context.Context, container, blobName, snapshotID string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Blob{}, errors.NewClosedError()
	}

	b, ok := m.containers[container][blobName]
	if !ok {
		return Blob{}, errors.NewNotFoundError(fmt.Sprintf("blob not found: %s/%s", container, blobName))
	}

	if snapshotID != "" {
		b, ok = b.snapshots[snapshotID]
		if !ok {
			return Blob{}, errors.NewNotFoundError(fmt.Sprintf("snapshot not found: %s/%s@%s", container, blobName, snapshotID))
		}
	}

	return Blob{Data: cloneBytes(b.data), Info: b.info(blobName)}, nil
}

// Upload stores a copy of data and returns its new ETag.
func (m *MemoryTransport) Upload(ctx context.Context, container, blobName string, data []byte, opts UploadOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", errors.NewClosedError()
	}

	if m.containers[container] == nil {
		m.containers[container] = make(map[string]*memoryBlob)
	}

	existing, exists := m.containers[container][blobName]
	if exists && !opts.Overwrite {
		return "", errors.NewConflictError(fmt.Sprintf("blob already exists: %s/%s", container, blobName))
	}

	m.seq++
	b := &memoryBlob{
		data:        cloneBytes(data),
		etag:        fmt.Sprintf("\"0x%X\"", m.seq),
		contentType: opts.ContentType,
		modified:    m.now().UTC(),
		snapshots:   make(map[string]*memoryBlob),
	}
	if exists {
		b.snapshots = existing.snapshots
	}
	m.containers[container][blobName] = b

	return b.etag, nil
}

// CreateSnapshot records an immutable copy of the blob's current payload.
func (m *MemoryTransport) CreateSnapshot(ctx context.Context, container, blobName, ifMatch string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", errors.NewClosedError()
	}

	b, ok := m.containers[container][blobName]
	if !ok {
		return "", errors.NewNotFoundError(fmt.Sprintf("blob not found: %s/%s", container, blobName))
	}
	if ifMatch != "" && ifMatch != b.etag {
		return "", errors.NewConflictError(fmt.Sprintf("blob %s/%s changed since ETag %s", container, blobName, ifMatch))
	}

	ts := m.now().UTC()
	id := ts.Format(snapshotLayout)
	for {
		if _, taken := b.snapshots[id]; !taken {
			break
		}
		// identifiers have 100ns resolution
		ts = ts.Add(100 * time.Nanosecond)
		id = ts.Format(snapshotLayout)
	}
	b.snapshots[id] = &memoryBlob{
		data:        cloneBytes(b.data),
		etag:        b.etag,
		contentType: b.contentType,
		modified:    b.modified,
	}

	return id, nil
}

// Properties returns a blob's metadata.
func (m *MemoryTransport) Properties(ctx context.Context, container, blobName string) (BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return BlobInfo{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return BlobInfo{}, errors.NewClosedError()
	}

	b, ok := m.containers[container][blobName]
	if !ok {
		return BlobInfo{}, errors.NewNotFoundError(fmt.Sprintf("blob not found: %s/%s", container, blobName))
	}
	return b.info(blobName), nil
}

// Delete removes a blob and its snapshots.
func (m *MemoryTransport) Delete(ctx context.Context, container, blobName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.NewClosedError()
	}

	if _, ok := m.containers[container][blobName]; !ok {
		return errors.NewNotFoundError(fmt.Sprintf("blob not found: %s/%s", container, blobName))
	}
	delete(m.containers[container], blobName)
	return nil
}

// List lists blobs in a container with optional prefix, sorted by name.
func (m *MemoryTransport) List(ctx context.Context, container, prefix string) ([]BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errors.NewClosedError()
	}

	blobs := []BlobInfo{}
	for name, b := range m.containers[container] {
		if strings.HasPrefix(name, prefix) {
			blobs = append(blobs, b.info(name))
		}
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })

	return blobs, nil
}

// CreateContainer creates an empty container if it does not exist.
func (m *MemoryTransport) CreateContainer(ctx context.Context, container string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.NewClosedError()
	}
	if m.containers[container] == nil {
		m.containers[container] = make(map[string]*memoryBlob)
	}
	return nil
}

// Close marks the transport closed; stored data is kept.
func (m *MemoryTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

func (b *memoryBlob) info(name string) BlobInfo {
	return BlobInfo{
		Name:         name,
		Size:         int64(len(b.data)),
		ContentType:  b.contentType,
		ETag:         b.etag,
		LastModified: b.modified,
	}
}

func cloneBytes(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}
