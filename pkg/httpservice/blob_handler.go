package httpservice

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/go-blob-kit/pkg/blobclient"
	"github.com/yourorg/go-blob-kit/pkg/csvutil"
	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/logging"
	"github.com/yourorg/go-blob-kit/pkg/middleware"
	"github.com/yourorg/go-blob-kit/pkg/servicebusclient"
)

const (
	blobsPath           = "/api/v1/blobs"
	snapshotsSuffix     = "/snapshots"
	eventPublishTimeout = 5 * time.Second
)

// EventPublisher publishes blob change events.
type EventPublisher interface {
	Publish(ctx context.Context, event servicebusclient.BlobEvent) error
}

// BlobHandler exposes a BlobClient over HTTP. Blob names may contain '/'.
//
//	GET    /api/v1/blobs?prefix=&format=json|csv list
//	GET    /api/v1/blobs/{name}[?snapshot=id]    read blob or snapshot with its stored type
//	HEAD   /api/v1/blobs/{name}                  properties
//	PUT    /api/v1/blobs/{name}[?overwrite=&snapshot=]
//	POST   /api/v1/blobs/{name}/snapshots        snapshot current content
//	DELETE /api/v1/blobs/{name}                  delete with snapshots
type BlobHandler struct {
	client    blobclient.BlobClient
	container string
	events    EventPublisher
}

var _ Handler = (*BlobHandler)(nil)

// NewBlobHandler creates a handler for client. events may be nil, in which
// case no events are published.
func NewBlobHandler(client blobclient.BlobClient, container string, events EventPublisher) *BlobHandler {
	return &BlobHandler{
		client:    client,
		container: container,
		events:    events,
	}
}

// Register registers the blob routes.
func (h *BlobHandler) Register(router gin.IRouter) {
	blobs := router.Group(blobsPath)
	blobs.GET("", Wrap("blobs.list", h.list))
	blobs.GET("/*name", Wrap("blobs.get", h.get))
	blobs.HEAD("/*name", Wrap("blobs.head", h.head))
	blobs.PUT("/*name", Wrap("blobs.put", h.put))
	blobs.POST("/*name", Wrap("blobs.snapshot", h.snapshot))
	blobs.DELETE("/*name", Wrap("blobs.delete", h.delete))
}

type getQuery struct {
	Snapshot string `form:"snapshot" validate:"omitempty,max=64"`
}

type putQuery struct {
	Overwrite *bool `form:"overwrite"`
	Snapshot  bool  `form:"snapshot"`
}

type listQuery struct {
	Prefix string `form:"prefix" validate:"max=1024"`
	Format string `form:"format" validate:"omitempty,oneof=json csv"`
}

type putResponse struct {
	ETag       string `json:"etag"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

type blobResponse struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type listResponse struct {
	Blobs []blobResponse `json:"blobs"`
}

func blobName(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("name"), "/")
}

func (h *BlobHandler) get(c *gin.Context) error {
	var query getQuery
	if err := BindQuery(c, &query); err != nil {
		return err
	}

	blob, err := h.client.Download(c.Request.Context(), blobName(c), query.Snapshot)
	if err != nil {
		return err
	}

	contentType := blob.Info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if blob.Info.ETag != "" {
		c.Header("ETag", blob.Info.ETag)
	}
	c.Data(http.StatusOK, contentType, blob.Data)
	return nil
}

func (h *BlobHandler) head(c *gin.Context) error {
	info, err := h.client.Properties(c.Request.Context(), blobName(c))
	if err != nil {
		return err
	}

	c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	if info.ContentType != "" {
		c.Header("Content-Type", info.ContentType)
	}
	if info.ETag != "" {
		c.Header("ETag", info.ETag)
	}
	if !info.LastModified.IsZero() {
		c.Header("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	c.Status(http.StatusOK)
	return nil
}

func (h *BlobHandler) put(c *gin.Context) error {
	var query putQuery
	if err := BindQuery(c, &query); err != nil {
		return err
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			return errBodyTooLarge()
		}
		return errors.NewAppErrorWithErr(errors.ErrorCodeBadRequest, "failed to read request body", err)
	}

	opts := []blobclient.PutOption{blobclient.WithContentType(c.ContentType())}
	if query.Overwrite != nil {
		opts = append(opts, blobclient.WithOverwrite(*query.Overwrite))
	}
	if query.Snapshot {
		opts = append(opts, blobclient.WithSnapshot())
	}

	name := blobName(c)
	result, err := h.client.Put(c.Request.Context(), name, payload, opts...)
	if result != nil {
		// the write committed even if the snapshot did not
		h.publish(c, servicebusclient.BlobEvent{
			Event:      servicebusclient.EventBlobWritten,
			Blob:       name,
			ETag:       result.ETag,
			SnapshotID: result.SnapshotID,
		})
	}
	if err != nil {
		return err
	}

	if result.ETag != "" {
		c.Header("ETag", result.ETag)
	}
	c.JSON(http.StatusCreated, putResponse{ETag: result.ETag, SnapshotID: result.SnapshotID})
	return nil
}

func (h *BlobHandler) snapshot(c *gin.Context) error {
	name, ok := strings.CutSuffix(blobName(c), snapshotsSuffix)
	if !ok || name == "" {
		return errors.NewNotFoundError("no such route; snapshots are created with POST " + blobsPath + "/{name}" + snapshotsSuffix)
	}

	snapshotID, err := h.client.Snapshot(c.Request.Context(), name)
	if err != nil {
		return err
	}

	h.publish(c, servicebusclient.BlobEvent{
		Event:      servicebusclient.EventBlobSnapshotted,
		Blob:       name,
		SnapshotID: snapshotID,
	})
	c.JSON(http.StatusCreated, snapshotResponse{SnapshotID: snapshotID})
	return nil
}

func (h *BlobHandler) delete(c *gin.Context) error {
	name := blobName(c)
	if err := h.client.Delete(c.Request.Context(), name); err != nil {
		return err
	}

	h.publish(c, servicebusclient.BlobEvent{
		Event: servicebusclient.EventBlobDeleted,
		Blob:  name,
	})
	c.Status(http.StatusNoContent)
	return nil
}

func (h *BlobHandler) list(c *gin.Context) error {
	var query listQuery
	if err := BindQuery(c, &query); err != nil {
		return err
	}

	blobs, err := h.client.List(c.Request.Context(), query.Prefix)
	if err != nil {
		return err
	}

	if query.Format == "csv" {
		var buf bytes.Buffer
		if err := csvutil.WriteInventory(&buf, blobs); err != nil {
			return errors.NewAppErrorWithErr(errors.ErrorCodeInternal, "failed to encode inventory", err)
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return nil
	}

	resp := listResponse{Blobs: make([]blobResponse, 0, len(blobs))}
	for _, info := range blobs {
		resp.Blobs = append(resp.Blobs, blobResponse{
			Name:         info.Name,
			Size:         info.Size,
			ContentType:  info.ContentType,
			ETag:         info.ETag,
			LastModified: info.LastModified,
		})
	}
	c.JSON(http.StatusOK, resp)
	return nil
}

// publish sends a change event. The change has already committed, so a
// failure is logged and the request still succeeds.
func (h *BlobHandler) publish(c *gin.Context, event servicebusclient.BlobEvent) {
	if h.events == nil {
		return
	}

	event.Container = h.container
	event.RequestID = middleware.GetRequestIDFromGin(c)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), eventPublishTimeout)
	defer cancel()

	if err := h.events.Publish(ctx, event); err != nil {
		GetLogger(c).Warn("Failed to publish blob event",
			logging.NewField("event", event.Event),
			logging.NewField("blob", event.Blob),
			logging.NewField("error", err),
		)
	}
}
