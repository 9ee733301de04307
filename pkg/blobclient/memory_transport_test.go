package blobclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

func TestMemoryTransport_ETagChangesOnEveryWrite(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	first, err := m.Upload(ctx, "c", "b", []byte("1"), UploadOptions{Overwrite: true})
	require.NoError(t, err)
	second, err := m.Upload(ctx, "c", "b", []byte("1"), UploadOptions{Overwrite: true})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	info, err := m.Properties(ctx, "c", "b")
	require.NoError(t, err)
	assert.Equal(t, second, info.ETag)
}

func TestMemoryTransport_SnapshotIDs(t *testing.T) {
	m := NewMemoryTransport()
	fixed := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := m.Upload(ctx, "c", "b", []byte("v1"), UploadOptions{Overwrite: true})
	require.NoError(t, err)

	first, err := m.CreateSnapshot(ctx, "c", "b", "")
	require.NoError(t, err)
	second, err := m.CreateSnapshot(ctx, "c", "b", "")
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01T12:30:00.0000000Z", first)
	assert.Equal(t, "2024-03-01T12:30:00.0000001Z", second)

	parsed, err := time.Parse(snapshotLayout, second)
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(100*time.Nanosecond), parsed)
}

func TestMemoryTransport_SnapshotIfMatch(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	etag, err := m.Upload(ctx, "c", "b", []byte("v1"), UploadOptions{Overwrite: true})
	require.NoError(t, err)
	_, err = m.Upload(ctx, "c", "b", []byte("v2"), UploadOptions{Overwrite: true})
	require.NoError(t, err)

	_, err = m.CreateSnapshot(ctx, "c", "b", etag)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeConflict))
}

func TestMemoryTransport_DeleteDropsSnapshots(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	_, err := m.Upload(ctx, "c", "b", []byte("v1"), UploadOptions{Overwrite: true})
	require.NoError(t, err)
	id, err := m.CreateSnapshot(ctx, "c", "b", "")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, "c", "b"))

	_, err = m.Upload(ctx, "c", "b", []byte("v2"), UploadOptions{Overwrite: true})
	require.NoError(t, err)
	_, err = m.Download(ctx, "c", "b", id)
	assert.True(t, errors.IsCode(err, errors.ErrorCodeNotFound))
}

func TestMemoryTransport_ListEmptyContainer(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	require.NoError(t, m.CreateContainer(ctx, "c"))
	require.NoError(t, m.CreateContainer(ctx, "c"))

	blobs, err := m.List(ctx, "c", "")
	require.NoError(t, err)
	assert.NotNil(t, blobs)
	assert.Empty(t, blobs)
}

func TestMemoryTransport_ClosedAndCanceled(t *testing.T) {
	m := NewMemoryTransport()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Download(ctx, "c", "b", "")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, m.Close())
	_, err = m.Upload(context.Background(), "c", "b", nil, UploadOptions{Overwrite: true})
	assert.True(t, errors.IsCode(err, errors.ErrorCodeClosed))
}

func TestMemoryTransport_SnapshotKeepsProperties(t *testing.T) {
	m := NewMemoryTransport()
	ctx := context.Background()

	etag, err := m.Upload(ctx, "c", "b", []byte("<v1/>"), UploadOptions{Overwrite: true, ContentType: "application/xml"})
	require.NoError(t, err)
	id, err := m.CreateSnapshot(ctx, "c", "b", etag)
	require.NoError(t, err)
	_, err = m.Upload(ctx, "c", "b", []byte(`{"v":2}`), UploadOptions{Overwrite: true, ContentType: "application/json"})
	require.NoError(t, err)

	current, err := m.Download(ctx, "c", "b", "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", current.Info.ContentType)
	assert.Equal(t, int64(7), current.Info.Size)

	snap, err := m.Download(ctx, "c", "b", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("<v1/>"), snap.Data)
	assert.Equal(t, "application/xml", snap.Info.ContentType)
	assert.Equal(t, etag, snap.Info.ETag)
	assert.Equal(t, "b", snap.Info.Name)
}
