package csvutil

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/blobclient"
)

// InventoryHeader is the header row of a blob inventory.
var InventoryHeader = []string{"name", "size", "content_type", "etag", "last_modified"}

// Writer handles CSV writing.
type Writer struct {
	writer *csv.Writer
}

// NewWriter creates a new CSV writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: csv.NewWriter(w),
	}
}

// WriteHeader writes the CSV header row.
func (w *Writer) WriteHeader(headers []string) error {
	return w.writer.Write(headers)
}

// WriteRow writes a single CSV row.
func (w *Writer) WriteRow(row []string) error {
	return w.writer.Write(row)
}

// Flush flushes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.writer.Flush()
	return w.writer.Error()
}

// WriteInventory writes blobs as CSV, one row per blob, preceded by
// InventoryHeader. Timestamps are RFC 3339 in UTC.
func WriteInventory(out io.Writer, blobs []blobclient.BlobInfo) error {
	w := NewWriter(out)
	if err := w.WriteHeader(InventoryHeader); err != nil {
		return err
	}
	for _, info := range blobs {
		if err := w.WriteRow(inventoryRow(info)); err != nil {
			return err
		}
	}
	return w.Flush()
}

func inventoryRow(info blobclient.BlobInfo) []string {
	modified := ""
	if !info.LastModified.IsZero() {
		modified = info.LastModified.UTC().Format(time.RFC3339)
	}
	return []string{
		info.Name,
		strconv.FormatInt(info.Size, 10),
		info.ContentType,
		info.ETag,
		modified,
	}
}
