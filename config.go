package cronsync

import (
	"os"
	"strings"
	"time"
)

// Config holds configuration for the cronsync engine.
type Config struct {
	// DatabaseURI selects the durable index backend. Supported schemes are
	// postgresql:// and sqlite:. Legacy prefixes (postgres://, sqlite3:)
	// are rewritten by NormalizeDatabaseURI before use. When empty, the
	// in-memory store is used and index entries do not survive restarts.
	DatabaseURI string

	// Timezone is the IANA zone name used when computing trigger fire
	// times at schedule creation. The default is "UTC". Cronsync never
	// infers a timezone from the host environment; switching to local
	// time is a deployment decision made here.
	Timezone string

	// RetryAttempts bounds how many times a durable store retries a
	// transaction that failed with a transient error.
	RetryAttempts int

	// AttemptTimeout is the per-attempt deadline for durable store
	// operations. Each retry gets a fresh deadline.
	AttemptTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timezone:       "UTC",
		RetryAttempts:  3,
		AttemptTimeout: 5 * time.Second,
	}
}

// ConfigFromEnv returns DefaultConfig overlaid with the DATABASE_URI
// environment variable, falling back to POSTGRES_URI.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if uri := os.Getenv("DATABASE_URI"); uri != "" {
		cfg.DatabaseURI = uri
	} else if uri := os.Getenv("POSTGRES_URI"); uri != "" {
		cfg.DatabaseURI = uri
	}
	return cfg
}

// NormalizeDatabaseURI rewrites legacy scheme prefixes to their canonical
// forms: postgres:// becomes postgresql:// and sqlite3: becomes sqlite:.
// All other URIs pass through unchanged.
func NormalizeDatabaseURI(uri string) string {
	switch {
	case strings.HasPrefix(uri, "postgres://"):
		return "postgresql://" + strings.TrimPrefix(uri, "postgres://")
	case strings.HasPrefix(uri, "sqlite3:"):
		return "sqlite:" + strings.TrimPrefix(uri, "sqlite3:")
	default:
		return uri
	}
}
