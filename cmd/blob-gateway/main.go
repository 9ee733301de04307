package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourorg/go-blob-kit/pkg/config"
	"github.com/yourorg/go-blob-kit/pkg/logging"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	logger.Info("Starting blob gateway",
		logging.NewField("version", cfg.AppVersion),
		logging.NewField("environment", cfg.Environment),
		logging.NewField("container", cfg.BlobContainer),
	)

	app, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", logging.NewField("error", err))
		os.Exit(1)
	}

	if cfg.BlobCreateContainer {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := app.blobClient.EnsureContainer(ctx)
		cancel()
		if err != nil {
			logger.Error("Failed to create container", logging.NewField("error", err))
			app.close(context.Background())
			os.Exit(1)
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received signal", logging.NewField("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", logging.NewField("error", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTPShutdownTimeout)*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", logging.NewField("error", err))
	}
	app.close(ctx)
}

// loadConfig reads CONFIG_FILE when set, with the environment taking
// precedence, and the environment alone otherwise.
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadConfigFromFile(path)
	}
	return config.LoadConfigFromEnv()
}
