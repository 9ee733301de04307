package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/go-blob-kit/pkg/blobclient"
	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/utils"
)

// ConfigSource defines an interface for loading configuration from various sources.
type ConfigSource interface {
	Get(key string) (string, bool)
	GetWithDefault(key, defaultValue string) string
}

// EnvConfigSource loads configuration from environment variables.
type EnvConfigSource struct{}

// Get retrieves an environment variable.
func (e *EnvConfigSource) Get(key string) (string, bool) {
	val := os.Getenv(key)
	return val, val != ""
}

// GetWithDefault retrieves an environment variable or returns a default value.
func (e *EnvConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := e.Get(key); ok {
		return val
	}
	return defaultValue
}

// MapConfigSource serves configuration from a fixed map. Useful in tests.
type MapConfigSource map[string]string

// Get retrieves a value from the map.
func (m MapConfigSource) Get(key string) (string, bool) {
	val, ok := m[key]
	return val, ok && val != ""
}

// GetWithDefault retrieves a value from the map or returns a default value.
func (m MapConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := m.Get(key); ok {
		return val
	}
	return defaultValue
}

// FileConfigSource loads configuration from a JSON or YAML file.
type FileConfigSource struct {
	data map[string]interface{}
}

// NewFileConfigSource creates a new file-based config source.
// Supports both JSON and YAML files based on file extension.
func NewFileConfigSource(filePath string) (*FileConfigSource, error) {
	data := make(map[string]interface{})

	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(filePath, ".yaml"), strings.HasSuffix(filePath, ".yml"):
		if err := yaml.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case strings.HasSuffix(filePath, ".json"):
		if err := json.Unmarshal(fileData, &data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format, use .json, .yaml, or .yml")
	}

	return &FileConfigSource{data: data}, nil
}

// Get retrieves a value from the config file. Keys are looked up verbatim
// first (BLOB_CONTAINER), then as a dotted path (blob.container).
func (f *FileConfigSource) Get(key string) (string, bool) {
	if val, ok := f.data[key]; ok {
		return stringify(val)
	}

	keys := strings.Split(strings.ToLower(strings.ReplaceAll(key, "_", ".")), ".")
	var current interface{} = f.data

	for _, k := range keys {
		m, ok := current.(map[string]interface{})
		if !ok {
			return "", false
		}
		val, exists := m[k]
		if !exists {
			return "", false
		}
		current = val
	}

	return stringify(current)
}

// GetWithDefault retrieves a value from the config file or returns a default.
func (f *FileConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := f.Get(key); ok {
		return val
	}
	return defaultValue
}

func stringify(val interface{}) (string, bool) {
	switch v := val.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case map[string]interface{}:
		return "", false
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// Config holds application configuration.
type Config struct {
	// Blob Storage configuration
	BlobConnectionString   string
	BlobStorageAccountName string
	BlobStorageAccountKey  string
	BlobEndpoint           string
	BlobContainer          string
	BlobCreateContainer    bool
	BlobTryTimeout         time.Duration

	// Retry configuration
	RetryMaxAttempts  int
	RetryInitialDelay int // milliseconds
	RetryMaxDelay     int // milliseconds
	RetryMultiplier   float64
	RetryJitter       float64

	// Service Bus configuration (write events)
	ServiceBusNamespace string
	ServiceBusKeyName   string
	ServiceBusKeyValue  string
	ServiceBusQueue     string

	// HTTP Server configuration
	HTTPPort            int
	HTTPReadTimeout     int // seconds
	HTTPWriteTimeout    int // seconds
	HTTPIdleTimeout     int // seconds
	HTTPShutdownTimeout int // seconds
	HTTPMaxBodyBytes    int64
	SlowRequestMs       int64

	// Rate limiting; zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging configuration
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	// New Relic
	NewRelicLicenseKey string
	NewRelicEnabled    bool

	// Application configuration
	AppName     string
	AppVersion  string
	Environment string // dev, staging, prod
}

// LoadConfig loads configuration from the provided source and validates it.
func LoadConfig(source ConfigSource) (*Config, error) {
	cfg := &Config{}

	// Absent keys take the default; a present value that does not parse is
	// reported, first one wins.
	var parseErr error
	lookup := func(key string) (string, bool) {
		raw, ok := source.Get(key)
		return strings.TrimSpace(raw), ok
	}
	invalid := func(key, raw string) {
		if parseErr == nil {
			parseErr = errors.NewConfigurationError(fmt.Sprintf("%s: invalid value %q", key, raw))
		}
	}
	getInt := func(key string, defaultValue int) int {
		raw, ok := lookup(key)
		if !ok {
			return defaultValue
		}
		val, err := strconv.Atoi(raw)
		if err != nil {
			invalid(key, raw)
			return defaultValue
		}
		return val
	}
	getFloat := func(key string, defaultValue float64) float64 {
		raw, ok := lookup(key)
		if !ok {
			return defaultValue
		}
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			invalid(key, raw)
			return defaultValue
		}
		return val
	}
	getBool := func(key string, defaultValue bool) bool {
		raw, ok := lookup(key)
		if !ok {
			return defaultValue
		}
		val, err := strconv.ParseBool(raw)
		if err != nil {
			invalid(key, raw)
			return defaultValue
		}
		return val
	}

	cfg.BlobConnectionString = source.GetWithDefault("BLOB_CONNECTION_STRING", "")
	cfg.BlobStorageAccountName = source.GetWithDefault("BLOB_STORAGE_ACCOUNT_NAME", "")
	cfg.BlobStorageAccountKey = source.GetWithDefault("BLOB_STORAGE_ACCOUNT_KEY", "")
	cfg.BlobEndpoint = source.GetWithDefault("BLOB_ENDPOINT", "")
	cfg.BlobContainer = source.GetWithDefault("BLOB_CONTAINER", "default-container")
	cfg.BlobCreateContainer = getBool("BLOB_CREATE_CONTAINER", false)
	cfg.BlobTryTimeout = time.Duration(getInt("BLOB_TRY_TIMEOUT_MS", 0)) * time.Millisecond

	def := utils.DefaultRetryConfig()
	cfg.RetryMaxAttempts = getInt("RETRY_MAX_ATTEMPTS", def.MaxAttempts)
	cfg.RetryInitialDelay = getInt("RETRY_INITIAL_DELAY", int(def.InitialDelay.Milliseconds()))
	cfg.RetryMaxDelay = getInt("RETRY_MAX_DELAY", int(def.MaxDelay.Milliseconds()))
	cfg.RetryMultiplier = getFloat("RETRY_MULTIPLIER", def.Multiplier)
	cfg.RetryJitter = getFloat("RETRY_JITTER", def.Jitter)

	cfg.ServiceBusNamespace = source.GetWithDefault("SERVICE_BUS_NAMESPACE", "")
	cfg.ServiceBusKeyName = source.GetWithDefault("SERVICE_BUS_KEY_NAME", "")
	cfg.ServiceBusKeyValue = source.GetWithDefault("SERVICE_BUS_KEY_VALUE", "")
	cfg.ServiceBusQueue = source.GetWithDefault("SERVICE_BUS_QUEUE", "")

	cfg.HTTPPort = getInt("HTTP_PORT", 8080)
	cfg.HTTPReadTimeout = getInt("HTTP_READ_TIMEOUT", 30)
	cfg.HTTPWriteTimeout = getInt("HTTP_WRITE_TIMEOUT", 30)
	cfg.HTTPIdleTimeout = getInt("HTTP_IDLE_TIMEOUT", 120)
	cfg.HTTPShutdownTimeout = getInt("HTTP_SHUTDOWN_TIMEOUT", 15)
	cfg.HTTPMaxBodyBytes = int64(getInt("HTTP_MAX_BODY_BYTES", 64<<20))
	cfg.SlowRequestMs = int64(getInt("SLOW_REQUEST_MS", 2000))

	cfg.RateLimitRPS = getFloat("RATE_LIMIT_RPS", 0)
	cfg.RateLimitBurst = getInt("RATE_LIMIT_BURST", 20)

	cfg.LogLevel = source.GetWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = source.GetWithDefault("LOG_FORMAT", "json")

	cfg.NewRelicLicenseKey = source.GetWithDefault("NEW_RELIC_LICENSE_KEY", "")
	cfg.NewRelicEnabled = getBool("NEW_RELIC_ENABLED", cfg.NewRelicLicenseKey != "")

	cfg.AppName = source.GetWithDefault("APP_NAME", "blob-gateway")
	cfg.AppVersion = source.GetWithDefault("APP_VERSION", "1.0.0")
	cfg.Environment = source.GetWithDefault("ENVIRONMENT", "dev")

	if parseErr != nil {
		return nil, parseErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BlobContainer) == "" {
		return errors.NewConfigurationError("BLOB_CONTAINER must not be empty")
	}
	if c.RetryMaxAttempts < 1 {
		return errors.NewConfigurationError("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetryInitialDelay < 0 || c.RetryMaxDelay < 0 {
		return errors.NewConfigurationError("retry delays must not be negative")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.NewConfigurationError("RETRY_JITTER must be between 0 and 1")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return errors.NewConfigurationError(fmt.Sprintf("HTTP_PORT %d is out of range", c.HTTPPort))
	}
	if c.ServiceBusQueue != "" && c.ServiceBusNamespace == "" {
		return errors.NewConfigurationError("SERVICE_BUS_QUEUE requires SERVICE_BUS_NAMESPACE")
	}
	return nil
}

// RetryConfig returns the retry policy for blob operations.
func (c *Config) RetryConfig() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: time.Duration(c.RetryInitialDelay) * time.Millisecond,
		MaxDelay:     time.Duration(c.RetryMaxDelay) * time.Millisecond,
		Multiplier:   c.RetryMultiplier,
		Jitter:       c.RetryJitter,
	}
}

// HasBlobStorage reports whether a storage account is configured.
// Without one the gateway serves from memory.
func (c *Config) HasBlobStorage() bool {
	return c.BlobConnectionString != "" || c.BlobStorageAccountName != "" || c.BlobEndpoint != ""
}

// BlobConnectionParams resolves the storage account. A connection string
// wins over the individual settings.
func (c *Config) BlobConnectionParams() (blobclient.ConnectionParams, error) {
	if c.BlobConnectionString != "" {
		return blobclient.ParseConnectionString(c.BlobConnectionString)
	}

	params := blobclient.ConnectionParams{
		AccountName:  c.BlobStorageAccountName,
		AccountKey:   c.BlobStorageAccountKey,
		BlobEndpoint: c.BlobEndpoint,
	}
	if err := params.Validate(); err != nil {
		return blobclient.ConnectionParams{}, err
	}
	return params, nil
}

// ServiceBusEnabled reports whether write events should be published.
func (c *Config) ServiceBusEnabled() bool {
	return c.ServiceBusNamespace != "" && c.ServiceBusQueue != ""
}

// LoadConfigFromEnv loads configuration from environment variables.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(&EnvConfigSource{})
}

// LoadConfigFromFile loads configuration from a JSON or YAML file.
// Environment variables will override file values if both are set.
func LoadConfigFromFile(filePath string) (*Config, error) {
	fileSource, err := NewFileConfigSource(filePath)
	if err != nil {
		return nil, errors.NewAppErrorWithErr(errors.ErrorCodeConfiguration, "failed to load config file", err)
	}

	return LoadConfig(NewCompositeConfigSource(&EnvConfigSource{}, fileSource))
}

// CompositeConfigSource checks multiple config sources in order.
type CompositeConfigSource struct {
	sources []ConfigSource
}

// NewCompositeConfigSource creates a source that consults sources in order.
func NewCompositeConfigSource(sources ...ConfigSource) *CompositeConfigSource {
	return &CompositeConfigSource{sources: sources}
}

// Get retrieves a value from the first source that has it.
func (c *CompositeConfigSource) Get(key string) (string, bool) {
	for _, source := range c.sources {
		if val, ok := source.Get(key); ok {
			return val, true
		}
	}
	return "", false
}

// GetWithDefault retrieves a value from sources or returns default.
func (c *CompositeConfigSource) GetWithDefault(key, defaultValue string) string {
	if val, ok := c.Get(key); ok {
		return val
	}
	return defaultValue
}
