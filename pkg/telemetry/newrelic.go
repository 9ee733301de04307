package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/yourorg/go-blob-kit/pkg/blobclient"
	"github.com/yourorg/go-blob-kit/pkg/logging"
)

// BlobOperationEvent is the custom event type recorded per blob operation.
const BlobOperationEvent = "BlobOperation"

// NewRelicClient wraps the New Relic agent.
type NewRelicClient struct {
	app         *newrelic.Application
	logger      logging.Logger
	serviceName string
	enabled     bool
}

var _ blobclient.Observer = (*NewRelicClient)(nil)

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	LicenseKey  string
	AppName     string
	ServiceName string
	Enabled     bool
}

// NewNewRelicClient creates a new New Relic client. A disabled client is
// returned when New Relic is off or has no license key; all of its methods
// are no-ops.
func NewNewRelicClient(cfg NewRelicConfig, logger logging.Logger) (*NewRelicClient, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		logger.Info("New Relic disabled or license key not provided")
		return &NewRelicClient{
			enabled:     false,
			logger:      logger,
			serviceName: cfg.ServiceName,
		}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	logger.Info("New Relic client initialized",
		logging.NewField("app_name", cfg.AppName),
		logging.NewField("service", cfg.ServiceName),
	)

	return &NewRelicClient{
		app:         app,
		logger:      logger,
		serviceName: cfg.ServiceName,
		enabled:     true,
	}, nil
}

// Application returns the agent application, or nil when disabled.
func (n *NewRelicClient) Application() *newrelic.Application {
	return n.app
}

// ObserveBlobOperation records one blob operation as a custom event.
func (n *NewRelicClient) ObserveBlobOperation(stats blobclient.OperationStats) {
	if !n.enabled || n.app == nil {
		return
	}
	n.app.RecordCustomEvent(BlobOperationEvent, blobOperationAttributes(n.serviceName, stats))
}

func blobOperationAttributes(service string, stats blobclient.OperationStats) map[string]interface{} {
	attributes := map[string]interface{}{
		"service":     service,
		"operation":   stats.Operation,
		"container":   stats.Container,
		"blob":        stats.Blob,
		"attempts":    stats.Attempts,
		"duration_ms": stats.Duration.Milliseconds(),
		"success":     stats.Success,
	}
	if !stats.Success {
		attributes["error_code"] = string(stats.Code)
	}
	return attributes
}

// RecordTransaction records a transaction in New Relic.
func (n *NewRelicClient) RecordTransaction(ctx context.Context, name string, durationMs int64, statusCode int, traceID, requestID string) {
	if !n.enabled || n.app == nil {
		return
	}

	txn := newrelic.FromContext(ctx)
	if txn == nil {
		txn = n.app.StartTransaction(name)
		defer txn.End()
	}

	txn.SetName(name)
	txn.AddAttribute("trace_id", traceID)
	txn.AddAttribute("request_id", requestID)
	txn.AddAttribute("status_code", statusCode)
	txn.AddAttribute("duration_ms", durationMs)
	txn.AddAttribute("service", n.serviceName)

	if statusCode >= 500 {
		txn.NoticeError(fmt.Errorf("HTTP %d", statusCode))
	}
}

// RecordSlowRequest records a slow gateway request.
func (n *NewRelicClient) RecordSlowRequest(ctx context.Context, path string, durationMs int64, traceID, requestID string) {
	if !n.enabled || n.app == nil {
		return
	}

	n.app.RecordCustomEvent("SlowRequest", map[string]interface{}{
		"service":     n.serviceName,
		"path":        path,
		"duration_ms": durationMs,
		"trace_id":    traceID,
		"request_id":  requestID,
	})
	n.RecordTransaction(ctx, path, durationMs, 200, traceID, requestID)
}

// RecordError records a failed gateway request.
func (n *NewRelicClient) RecordError(ctx context.Context, path, errorMsg string, statusCode int, traceID, requestID string) {
	if !n.enabled || n.app == nil {
		return
	}

	n.app.RecordCustomEvent("ServiceError", map[string]interface{}{
		"service":     n.serviceName,
		"path":        path,
		"error":       errorMsg,
		"status_code": statusCode,
		"trace_id":    traceID,
		"request_id":  requestID,
	})
	n.RecordTransaction(ctx, path, 0, statusCode, traceID, requestID)
}

// Shutdown flushes pending data and stops the agent.
func (n *NewRelicClient) Shutdown(timeout time.Duration) {
	if n.enabled && n.app != nil {
		n.app.Shutdown(timeout)
	}
}
