package main

import (
	"flag"
	"os"
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	clearEnvVars(t)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	cfg := ParseConfig()

	if cfg.Port != "8000" {
		t.Errorf("Expected default port '8000', got '%s'", cfg.Port)
	}

	if cfg.Timeout != 1000*time.Millisecond {
		t.Errorf("Expected default timeout 1000ms, got %v", cfg.Timeout)
	}

	if cfg.HostURL != "https://catalyst.springwire.ai" {
		t.Errorf("Expected default host URL 'https://catalyst.springwire.ai', got '%s'", cfg.HostURL)
	}

	if cfg.EventDomain != cfg.HostURL {
		t.Errorf("Expected event domain to default to host URL, got '%s'", cfg.EventDomain)
	}

	if cfg.BillingPath != "bill" {
		t.Errorf("Expected default billing path 'bill', got '%s'", cfg.BillingPath)
	}

	if cfg.SchainMaxHops != 10 {
		t.Errorf("Expected default schain max hops 10, got %d", cfg.SchainMaxHops)
	}

	if cfg.DatabaseConfig != nil {
		t.Error("Expected no database config when DB_HOST is not set")
	}

	if cfg.RedisURL != "" {
		t.Error("Expected empty Redis URL when REDIS_URL is not set")
	}
}

func TestParseConfig_EnvironmentOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(*testing.T, *ServerConfig)
	}{
		{
			name: "Custom port",
			envVars: map[string]string{
				"PBS_PORT": "9000",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if cfg.Port != "9000" {
					t.Errorf("Expected port '9000', got '%s'", cfg.Port)
				}
			},
		},
		{
			name: "Redis URL",
			envVars: map[string]string{
				"REDIS_URL": "redis://localhost:6379/0",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if cfg.RedisURL != "redis://localhost:6379/0" {
					t.Errorf("Expected Redis URL 'redis://localhost:6379/0', got '%s'", cfg.RedisURL)
				}
			},
		},
		{
			name: "GDPR enforcement disabled",
			envVars: map[string]string{
				"PBS_DISABLE_GDPR_ENFORCEMENT": "true",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if !cfg.DisableGDPREnforcement {
					t.Error("Expected GDPR enforcement to be disabled")
				}
			},
		},
		{
			name: "Custom host URL",
			envVars: map[string]string{
				"PBS_HOST_URL": "https://custom.example.com",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if cfg.HostURL != "https://custom.example.com" {
					t.Errorf("Expected host URL 'https://custom.example.com', got '%s'", cfg.HostURL)
				}
				if cfg.EventDomain != "https://custom.example.com" {
					t.Errorf("Expected event domain to follow host URL, got '%s'", cfg.EventDomain)
				}
			},
		},
		{
			name: "Custom billing path",
			envVars: map[string]string{
				"PBS_BILLING_PATH": "evt",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if cfg.BillingPath != "evt" {
					t.Errorf("Expected billing path 'evt', got '%s'", cfg.BillingPath)
				}
			},
		},
		{
			name: "Min floor",
			envVars: map[string]string{
				"PBS_MIN_FLOOR": "0.25",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if cfg.MinFloor != 0.25 {
					t.Errorf("Expected min floor 0.25, got %v", cfg.MinFloor)
				}
			},
		},
		{
			name: "Force bid enabled",
			envVars: map[string]string{
				"PBS_FORCE_BID_ENABLED": "true",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if !cfg.ForceBidEnabled {
					t.Error("Expected force bid to be enabled")
				}
			},
		},
		{
			name: "Schain max hops",
			envVars: map[string]string{
				"PBS_SCHAIN_MAX_HOPS": "3",
			},
			validate: func(t *testing.T, cfg *ServerConfig) {
				if cfg.SchainMaxHops != 3 {
					t.Errorf("Expected schain max hops 3, got %d", cfg.SchainMaxHops)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

			cfg := ParseConfig()
			tt.validate(t, cfg)
		})
	}
}

func TestParseConfig_DatabaseConfig(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DB_HOST", "postgres.example.com")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "testuser")
	t.Setenv("DB_PASSWORD", "testpass")
	t.Setenv("DB_NAME", "testdb")
	t.Setenv("DB_SSL_MODE", "require")

	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	cfg := ParseConfig()

	if cfg.DatabaseConfig == nil {
		t.Fatal("Expected database config to be set")
	}

	dbCfg := cfg.DatabaseConfig

	if dbCfg.Host != "postgres.example.com" {
		t.Errorf("Expected DB host 'postgres.example.com', got '%s'", dbCfg.Host)
	}
	if dbCfg.Port != "5433" {
		t.Errorf("Expected DB port '5433', got '%s'", dbCfg.Port)
	}
	if dbCfg.User != "testuser" {
		t.Errorf("Expected DB user 'testuser', got '%s'", dbCfg.User)
	}
	if dbCfg.Password != "testpass" {
		t.Errorf("Expected DB password 'testpass', got '%s'", dbCfg.Password)
	}
	if dbCfg.Name != "testdb" {
		t.Errorf("Expected DB name 'testdb', got '%s'", dbCfg.Name)
	}
	if dbCfg.SSLMode != "require" {
		t.Errorf("Expected DB SSL mode 'require', got '%s'", dbCfg.SSLMode)
	}
}

func TestParseConfig_DatabaseConfig_NotSet(t *testing.T) {
	clearEnvVars(t)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	cfg := ParseConfig()

	if cfg.DatabaseConfig != nil {
		t.Error("Expected no database config when DB_HOST is not set")
	}
}

func TestParseConfig_DatabaseConfig_Defaults(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("DB_HOST", "localhost")
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

	cfg := ParseConfig()

	if cfg.DatabaseConfig == nil {
		t.Fatal("Expected database config to be set")
	}

	dbCfg := cfg.DatabaseConfig

	if dbCfg.Host != "localhost" {
		t.Errorf("Expected DB host 'localhost', got '%s'", dbCfg.Host)
	}
	if dbCfg.Port != "5432" {
		t.Errorf("Expected default DB port '5432', got '%s'", dbCfg.Port)
	}
	if dbCfg.User != "catalyst" {
		t.Errorf("Expected default DB user 'catalyst', got '%s'", dbCfg.User)
	}
	if dbCfg.Password != "" {
		t.Errorf("Expected default DB password '', got '%s'", dbCfg.Password)
	}
	if dbCfg.Name != "catalyst" {
		t.Errorf("Expected default DB name 'catalyst', got '%s'", dbCfg.Name)
	}
	if dbCfg.SSLMode != "disable" {
		t.Errorf("Expected default DB SSL mode 'disable', got '%s'", dbCfg.SSLMode)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		setValue     bool
		defaultValue string
		expected     string
	}{
		{name: "With value", key: "TEST_VAR", value: "test_value", setValue: true, defaultValue: "default", expected: "test_value"},
		{name: "Without value", key: "MISSING_VAR", setValue: false, defaultValue: "default", expected: "default"},
		{name: "Empty string", key: "EMPTY_VAR", value: "", setValue: true, defaultValue: "default", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setValue {
				t.Setenv(tt.key, tt.value)
			} else {
				os.Unsetenv(tt.key)
			}

			result := getEnvOrDefault(tt.key, tt.defaultValue)

			if result != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		setValue     bool
		defaultValue bool
		expected     bool
	}{
		{name: "true", value: "true", setValue: true, defaultValue: false, expected: true},
		{name: "1", value: "1", setValue: true, defaultValue: false, expected: true},
		{name: "yes", value: "yes", setValue: true, defaultValue: false, expected: true},
		{name: "false", value: "false", setValue: true, defaultValue: true, expected: false},
		{name: "0", value: "0", setValue: true, defaultValue: true, expected: false},
		{name: "no", value: "no", setValue: true, defaultValue: true, expected: false},
		{name: "Empty uses default false", value: "", setValue: false, defaultValue: false, expected: false},
		{name: "Empty uses default true", value: "", setValue: false, defaultValue: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.setValue {
				t.Setenv(key, tt.value)
			} else {
				os.Unsetenv(key)
			}

			result := getEnvBoolOrDefault(key, tt.defaultValue)

			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetEnvIntOrDefault(t *testing.T) {
	t.Setenv("TEST_INT_VAR", "42")
	if got := getEnvIntOrDefault("TEST_INT_VAR", 7); got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}

	os.Unsetenv("TEST_INT_VAR")
	if got := getEnvIntOrDefault("TEST_INT_VAR", 7); got != 7 {
		t.Errorf("Expected default 7, got %d", got)
	}

	t.Setenv("TEST_INT_VAR", "not-a-number")
	if got := getEnvIntOrDefault("TEST_INT_VAR", 7); got != 7 {
		t.Errorf("Expected default 7 for unparsable value, got %d", got)
	}
}

func TestGetEnvFloatOrDefault(t *testing.T) {
	t.Setenv("TEST_FLOAT_VAR", "1.5")
	if got := getEnvFloatOrDefault("TEST_FLOAT_VAR", 0); got != 1.5 {
		t.Errorf("Expected 1.5, got %v", got)
	}

	os.Unsetenv("TEST_FLOAT_VAR")
	if got := getEnvFloatOrDefault("TEST_FLOAT_VAR", 2.0); got != 2.0 {
		t.Errorf("Expected default 2.0, got %v", got)
	}
}

func TestGetEnvDurationOrDefault(t *testing.T) {
	t.Setenv("TEST_DURATION_VAR", "5s")
	if got := getEnvDurationOrDefault("TEST_DURATION_VAR", time.Second); got != 5*time.Second {
		t.Errorf("Expected 5s, got %v", got)
	}

	os.Unsetenv("TEST_DURATION_VAR")
	if got := getEnvDurationOrDefault("TEST_DURATION_VAR", 30*time.Second); got != 30*time.Second {
		t.Errorf("Expected default 30s, got %v", got)
	}
}

// Helper function to clear relevant environment variables
func clearEnvVars(t *testing.T) {
	t.Helper()

	envVars := []string{
		"PBS_PORT",
		"DB_HOST",
		"DB_PORT",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"DB_SSL_MODE",
		"REDIS_URL",
		"PBS_DISABLE_GDPR_ENFORCEMENT",
		"PBS_HOST_URL",
		"PBS_BILLING_PATH",
		"PBS_EVENT_DOMAIN",
		"PBS_SCHAIN_ASI",
		"PBS_SCHAIN_NAME",
		"PBS_SCHAIN_MAX_HOPS",
		"PBS_MIN_FLOOR",
		"PBS_FORCE_BID_ENABLED",
		"CATALOG_BIDDERS_PATH",
		"CATALOG_PUBLISHERS_PATH",
		"CATALOG_POLL_INTERVAL",
		"COUNTERS_FLUSH_INTERVAL",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}
}
