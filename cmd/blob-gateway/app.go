package main

import (
	"context"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/blobclient"
	"github.com/yourorg/go-blob-kit/pkg/config"
	"github.com/yourorg/go-blob-kit/pkg/httpservice"
	"github.com/yourorg/go-blob-kit/pkg/logging"
	"github.com/yourorg/go-blob-kit/pkg/servicebusclient"
	"github.com/yourorg/go-blob-kit/pkg/telemetry"
)

type app struct {
	logger     logging.Logger
	blobClient *blobclient.Client
	events     *servicebusclient.EventPublisher
	newRelic   *telemetry.NewRelicClient
	server     *httpservice.Server
}

// newApp wires the gateway from configuration. Without a configured
// storage account blobs are kept in memory.
func newApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	newRelic, err := telemetry.NewNewRelicClient(telemetry.NewRelicConfig{
		LicenseKey:  cfg.NewRelicLicenseKey,
		AppName:     cfg.AppName,
		ServiceName: cfg.AppName,
		Enabled:     cfg.NewRelicEnabled,
	}, logger)
	if err != nil {
		return nil, err
	}

	clientOpts := []blobclient.Option{
		blobclient.WithRetryPolicy(cfg.RetryConfig()),
		blobclient.WithLogger(logger),
		blobclient.WithObserver(newRelic),
		blobclient.WithTryTimeout(cfg.BlobTryTimeout),
	}

	var client *blobclient.Client
	if cfg.HasBlobStorage() {
		params, err := cfg.BlobConnectionParams()
		if err != nil {
			return nil, err
		}
		client, err = blobclient.NewFromParams(params, cfg.BlobContainer, clientOpts...)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Azure Blob Storage", logging.NewField("endpoint", params.ServiceURL()))
	} else {
		logger.Warn("No storage account configured, blobs are kept in memory")
		client, err = blobclient.New(blobclient.NewMemoryTransport(), cfg.BlobContainer, clientOpts...)
		if err != nil {
			return nil, err
		}
	}

	a := &app{
		logger:     logger,
		blobClient: client,
		newRelic:   newRelic,
	}

	var events httpservice.EventPublisher
	if cfg.ServiceBusEnabled() {
		sender, err := servicebusclient.NewAzureSender(servicebusclient.AzureSenderConfig{
			Namespace: cfg.ServiceBusNamespace,
			KeyName:   cfg.ServiceBusKeyName,
			KeyValue:  cfg.ServiceBusKeyValue,
			Queue:     cfg.ServiceBusQueue,
		}, logger)
		if err != nil {
			a.close(context.Background())
			return nil, err
		}
		a.events = servicebusclient.NewEventPublisher(sender, logger)
		events = a.events
	}

	server, err := httpservice.NewServer(httpservice.ServerConfig{
		ServiceName:    cfg.AppName,
		Port:           cfg.HTTPPort,
		ReadTimeout:    time.Duration(cfg.HTTPReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.HTTPWriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.HTTPIdleTimeout) * time.Second,
		Logger:         logger,
		Telemetry:      newRelic,
		SlowRequestMs:  cfg.SlowRequestMs,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxBodySize:    cfg.HTTPMaxBodyBytes,
	}, httpservice.NewBlobHandler(client, cfg.BlobContainer, events))
	if err != nil {
		a.close(context.Background())
		return nil, err
	}
	a.server = server

	return a, nil
}

// close releases the blob client, the event sender and the agent.
func (a *app) close(ctx context.Context) {
	if err := a.blobClient.Close(); err != nil {
		a.logger.Error("Failed to close blob client", logging.NewField("error", err))
	}
	if a.events != nil {
		if err := a.events.Close(ctx); err != nil {
			a.logger.Error("Failed to close event publisher", logging.NewField("error", err))
		}
	}
	a.newRelic.Shutdown(5 * time.Second)
}
