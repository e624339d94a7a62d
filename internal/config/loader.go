package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves a configuration key. It has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith is Load with a custom key source, used by the CLI to layer
// flags and config files over the environment.
func LoadWith(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup, true); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Defaults returns a configuration populated only from default tags.
// Required values stay empty and nothing is validated; callers that run
// without a database (tests, dry runs) start from here.
func Defaults() *Config {
	cfg := &Config{}
	none := func(string) (string, bool) { return "", false }
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), none, false); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// MustLoad loads configuration and panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// envField is one tagged leaf field of Config.
type envField struct {
	value    reflect.Value
	keys     []string // primary key first, then the alternate
	fallback string
	required bool
}

// envFields walks v depth first and returns every field carrying an env
// tag. Nested structs other than time.Time are descended into.
func envFields(v reflect.Value) []envField {
	var out []envField
	t := v.Type()
	for i, n := 0, t.NumField(); i < n; i++ {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			out = append(out, envFields(fv)...)
			continue
		}
		key := sf.Tag.Get("env")
		if key == "" {
			continue
		}
		f := envField{
			value:    fv,
			keys:     []string{key},
			fallback: sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
		}
		if alt := sf.Tag.Get("envAlt"); alt != "" {
			f.keys = append(f.keys, alt)
		}
		out = append(out, f)
	}
	return out
}

// resolve returns the first non-empty value among the field's keys.
func (f envField) resolve(lookup LookupFunc) string {
	for _, k := range f.keys {
		if v, _ := lookup(k); v != "" {
			return v
		}
	}
	return ""
}

// loadStruct populates v from lookup, falling back to default tags.
func loadStruct(v reflect.Value, lookup LookupFunc, enforceRequired bool) error {
	for _, f := range envFields(v) {
		raw := f.resolve(lookup)
		if raw == "" {
			if f.required && enforceRequired {
				return fmt.Errorf("required environment variable %s is not set", f.keys[0])
			}
			raw = f.fallback
		}
		if raw == "" {
			continue
		}
		if err := setField(f.value, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", f.keys[0], raw, err)
		}
	}
	return nil
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
)

// setField parses raw into field according to its type. String slices are
// comma separated with blanks dropped.
func setField(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Keys lists every configuration key in declaration order, alternates
// included.
func Keys() []string {
	var keys []string
	for _, f := range envFields(reflect.ValueOf(&Config{}).Elem()) {
		keys = append(keys, f.keys...)
	}
	return keys
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	switch c.Canonical.Backend {
	case BackendPostgres:
	case BackendMongo:
		if c.Canonical.MongoURI == "" {
			errs = append(errs, "MONGO_URI is required when CANONICAL_BACKEND is mongo")
		}
		if c.Canonical.MongoDatabase == "" {
			errs = append(errs, "MONGO_DATABASE must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("CANONICAL_BACKEND (%q) must be one of: postgres, mongo", c.Canonical.Backend))
	}
	if c.Canonical.Timeout <= 0 {
		errs = append(errs, "CANONICAL_TIMEOUT must be positive")
	}

	if c.Ingest.MaxFileSize <= 0 {
		errs = append(errs, "INGEST_MAX_FILE_SIZE must be positive")
	}
	if c.Ingest.MaxConcurrent <= 0 {
		errs = append(errs, "INGEST_MAX_CONCURRENT must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		errs = append(errs, "INGEST_MAX_WAIT_TIME must be positive")
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, "INGEST_TIMEOUT must be positive")
	}
	if c.Ingest.MaxHeaderSearchRows <= 0 {
		errs = append(errs, "INGEST_MAX_HEADER_SEARCH_ROWS must be positive")
	}

	if c.Review.BulkConcurrency <= 0 {
		errs = append(errs, "REVIEW_BULK_CONCURRENCY must be positive")
	}
	if c.Review.MaxBulkIDs <= 0 {
		errs = append(errs, "REVIEW_MAX_BULK_IDS must be positive")
	}
	if c.Review.ReconcileTimeout <= 0 {
		errs = append(errs, "REVIEW_RECONCILE_TIMEOUT must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.IngestLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_INGEST must be positive when rate limiting is enabled")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Connection strings and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, AutoMigrate: %v}, ",
		c.Database.MaxConns, c.Database.MinConns, c.Database.AutoMigrate)
	mongoURI := ""
	if c.Canonical.MongoURI != "" {
		mongoURI = "[MASKED]"
	}
	fmt.Fprintf(&b, "Canonical: {Backend: %q, MongoURI: %q, MongoDatabase: %q}, ",
		c.Canonical.Backend, mongoURI, c.Canonical.MongoDatabase)
	fmt.Fprintf(&b, "Ingest: {MaxFileSize: %d, MaxConcurrent: %d}, ",
		c.Ingest.MaxFileSize, c.Ingest.MaxConcurrent)
	fmt.Fprintf(&b, "Review: {BulkConcurrency: %d}, ", c.Review.BulkConcurrency)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
