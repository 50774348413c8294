package main

import (
	"flag"
	"os"
	"time"
)

// ServerConfig holds all server configuration
type ServerConfig struct {
	// Server
	Port    string
	Timeout time.Duration

	// Database
	DatabaseConfig *DatabaseConfig

	// Redis
	RedisURL string

	// Privacy
	DisableGDPREnforcement bool

	// Cookie sync / billing callback base
	HostURL string

	// Billing
	BillingPath string
	EventDomain string

	// Supply chain
	SchainASI     string
	SchainName    string
	SchainMaxHops int

	// Floors
	MinFloor        float64
	ForceBidEnabled bool

	// Catalogue source. When a database connection is available the
	// Postgres provider polls it; otherwise the file provider is used if
	// both CatalogBiddersPath and CatalogPublishersPath are set.
	CatalogBiddersPath    string
	CatalogPublishersPath string
	CatalogPollInterval   time.Duration

	// Counter flush cadence for Postgres-backed publisher/demand counters.
	CountersFlushInterval time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ParseConfig parses configuration from flags and environment variables
func ParseConfig() *ServerConfig {
	port := flag.String("port", getEnvOrDefault("PBS_PORT", "8000"), "Server port")
	timeout := flag.Duration("timeout", 1000*time.Millisecond, "Default auction timeout")
	flag.Parse()

	hostURL := getEnvOrDefault("PBS_HOST_URL", "https://catalyst.springwire.ai")

	cfg := &ServerConfig{
		Port:                   *port,
		Timeout:                *timeout,
		RedisURL:               os.Getenv("REDIS_URL"),
		DisableGDPREnforcement: os.Getenv("PBS_DISABLE_GDPR_ENFORCEMENT") == "true",
		HostURL:                hostURL,
		BillingPath:            getEnvOrDefault("PBS_BILLING_PATH", "bill"),
		EventDomain:            getEnvOrDefault("PBS_EVENT_DOMAIN", hostURL),
		SchainASI:              getEnvOrDefault("PBS_SCHAIN_ASI", "springwire.ai"),
		SchainName:             getEnvOrDefault("PBS_SCHAIN_NAME", "catalyst"),
		SchainMaxHops:          getEnvIntOrDefault("PBS_SCHAIN_MAX_HOPS", 10),
		MinFloor:               getEnvFloatOrDefault("PBS_MIN_FLOOR", 0),
		ForceBidEnabled:        getEnvBoolOrDefault("PBS_FORCE_BID_ENABLED", false),
		CatalogBiddersPath:     os.Getenv("CATALOG_BIDDERS_PATH"),
		CatalogPublishersPath:  os.Getenv("CATALOG_PUBLISHERS_PATH"),
		CatalogPollInterval:    getEnvDurationOrDefault("CATALOG_POLL_INTERVAL", 30*time.Second),
		CountersFlushInterval:  getEnvDurationOrDefault("COUNTERS_FLUSH_INTERVAL", 10*time.Second),
	}

	// Parse database config if DB_HOST is set
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		cfg.DatabaseConfig = &DatabaseConfig{
			Host:     dbHost,
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "catalyst"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "catalyst"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		}
	}

	return cfg
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as bool or a default
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvIntOrDefault returns the environment variable as int or a default
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n := 0
	for _, c := range value {
		if c < '0' || c > '9' {
			return defaultValue
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// getEnvFloatOrDefault returns the environment variable as float64 or a default
func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var whole, frac float64
	var fracDiv float64 = 1
	seenDot := false
	for _, c := range value {
		switch {
		case c == '.' && !seenDot:
			seenDot = true
		case c >= '0' && c <= '9':
			if seenDot {
				fracDiv *= 10
				frac = frac*10 + float64(c-'0')
			} else {
				whole = whole*10 + float64(c-'0')
			}
		default:
			return defaultValue
		}
	}
	return whole + frac/fracDiv
}

// getEnvDurationOrDefault returns the environment variable parsed as a
// time.Duration, or a default if unset or unparsable.
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
