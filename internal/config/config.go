// Package config loads the intake service configuration from environment
// variables, applies defaults and validates everything up front so a bad
// deployment fails at startup rather than on the first request.
package config

import (
	"strconv"
	"time"
)

// Canonical store backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Canonical  CanonicalConfig
	Ingest     IngestConfig
	Review     ReviewConfig
	Classifier ClassifierConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including the wait for
	// in-flight ingests to drain.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is applied by middleware to every API request.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the Postgres connection used for staging, taxonomy,
// audit and (by default) the canonical catalog.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// CanonicalConfig selects where committed products live.
type CanonicalConfig struct {
	// Backend is "postgres" or "mongo".
	Backend string `env:"CANONICAL_BACKEND" default:"postgres"`

	MongoURI        string `env:"MONGO_URI" envAlt:"MONGODB_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE" default:"intake"`
	MongoCollection string `env:"MONGO_COLLECTION" default:"products"`

	// Timeout bounds a single canonical store call.
	Timeout time.Duration `env:"CANONICAL_TIMEOUT" default:"10s"`
}

// IngestConfig holds spreadsheet ingestion settings.
type IngestConfig struct {
	MaxFileSize int64 `env:"INGEST_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the number of ingests processed in parallel.
	MaxConcurrent int           `env:"INGEST_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"10m"`

	// MaxHeaderSearchRows is how far down a sheet the header row may sit.
	MaxHeaderSearchRows int `env:"INGEST_MAX_HEADER_SEARCH_ROWS" default:"20"`
}

// ReviewConfig holds reviewer bulk-operation settings.
type ReviewConfig struct {
	// BulkConcurrency caps per-record suboperations running at once.
	BulkConcurrency int `env:"REVIEW_BULK_CONCURRENCY" default:"8"`

	// MaxBulkIDs caps how many ids a single bulk request may carry.
	MaxBulkIDs int `env:"REVIEW_MAX_BULK_IDS" default:"1000"`

	ReconcileTimeout time.Duration `env:"REVIEW_RECONCILE_TIMEOUT" default:"5m"`
}

// ClassifierConfig points at optional rule and taxonomy files. Empty paths
// use the built-in tables.
type ClassifierConfig struct {
	RulesPath        string `env:"CLASSIFIER_RULES_PATH"`
	TaxonomySeedPath string `env:"TAXONOMY_SEED_PATH"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// IngestLimit is requests per minute for the ingest endpoint.
	IngestLimit int `env:"RATE_LIMIT_INGEST" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
