package blobclient

import (
	"time"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

// OperationStats describes one client operation, including all of its retries.
type OperationStats struct {
	Operation string
	Container string
	Blob      string
	Attempts  int
	Duration  time.Duration
	Success   bool
	// Code is empty on success.
	Code errors.ErrorCode
}

// Observer is notified after every client operation.
type Observer interface {
	ObserveBlobOperation(stats OperationStats)
}

// ObserverFunc is an adapter to allow ordinary functions to be used as Observer.
type ObserverFunc func(stats OperationStats)

// ObserveBlobOperation calls f(stats).
func (f ObserverFunc) ObserveBlobOperation(stats OperationStats) {
	if f != nil {
		f(stats)
	}
}
