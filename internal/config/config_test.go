package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

const testPrefix = "config:config_test"

var allEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME",
	"DISPATCH_SUBJECT", "DISPATCH_QUEUE", "CHANGE_EVENT_SUBJECT", "RESOURCES",
	"REQUEST_TIMEOUT",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT",
	"API_VERSIONS", "DEPRECATED_API_VERSIONS",
	"OTEL_ENDPOINT", "LOG_LEVEL",
}

// clearEnv unsets every variable LoadConfig reads and restores them after
// the test. Empty values cannot be used because envconfig treats a set but
// empty variable as a value.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", testPrefix, err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"COMMSURL", cfg.COMMSURL, "nats://127.0.0.1:4222"},
		{"COMMSName", cfg.COMMSName, "serene"},
		{"DispatchSubject", cfg.DispatchSubject, "serene.dispatch.v1"},
		{"DispatchQueue", cfg.DispatchQueue, "serene"},
		{"ChangeEventSubject", cfg.ChangeEventSubject, "serene.changed"},
		{"RequestTimeout", cfg.RequestTimeout, 25 * time.Second},
		{"DatabaseURL", cfg.DatabaseURL, ""},
		{"RunMigrations", cfg.RunMigrations, false},
		{"MigrationPath", cfg.MigrationPath, "migrations"},
		{"HTTPPort", cfg.HTTPPort, 8080},
		{"HealthCheckTimeout", cfg.HealthCheckTimeout, 5 * time.Second},
		{"APIVersions", cfg.APIVersions, []string{"1.0.0"}},
		{"OTelEndpoint", cfg.OTelEndpoint, ""},
		{"LogLevel", cfg.LogLevel, "info"},
		{"ListenAddr", cfg.ListenAddr(), ":8080"},
		{"UsesDatabase", cfg.UsesDatabase(), false},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s - %s = %v, want %v", testPrefix, c.name, c.got, c.want)
		}
	}
	if len(cfg.Resources) != 0 || len(cfg.DeprecatedAPIVersions) != 0 {
		t.Errorf("%s - expected empty lists, got %v %v", testPrefix, cfg.Resources, cfg.DeprecatedAPIVersions)
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("%s - defaults must be servable: %v", testPrefix, err)
	}
	if err := cfg.ValidateForDB(); err == nil {
		t.Errorf("%s - expected ValidateForDB to require DATABASE_URL", testPrefix)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":               "nats://custom:4222",
		"SERVICE_NAME":            "test-server",
		"DISPATCH_SUBJECT":        "custom.dispatch",
		"CHANGE_EVENT_SUBJECT":    "custom.changed",
		"RESOURCES":               "widgets,gadgets",
		"REQUEST_TIMEOUT":         "10s",
		"DATABASE_URL":            "postgres://test@localhost/test",
		"RUN_MIGRATIONS":          "true",
		"MIGRATION_PATH":          "/tmp/migrations",
		"HTTP_ADDR":               "127.0.0.1:9191",
		"HTTP_PORT":               "9090",
		"API_VERSIONS":            "1.0.0,2.0.0",
		"DEPRECATED_API_VERSIONS": "1.0.0",
		"OTEL_ENDPOINT":           "http://collector:4318",
		"LOG_LEVEL":               "debug",
	}
	for key, val := range overrides {
		os.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", testPrefix, err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"COMMSURL", cfg.COMMSURL, "nats://custom:4222"},
		{"COMMSName", cfg.COMMSName, "test-server"},
		{"DispatchSubject", cfg.DispatchSubject, "custom.dispatch"},
		{"ChangeEventSubject", cfg.ChangeEventSubject, "custom.changed"},
		{"Resources", cfg.Resources, []string{"widgets", "gadgets"}},
		{"RequestTimeout", cfg.RequestTimeout, 10 * time.Second},
		{"DatabaseURL", cfg.DatabaseURL, "postgres://test@localhost/test"},
		{"RunMigrations", cfg.RunMigrations, true},
		{"MigrationPath", cfg.MigrationPath, "/tmp/migrations"},
		{"HTTPPort", cfg.HTTPPort, 9090},
		{"ListenAddr", cfg.ListenAddr(), "127.0.0.1:9191"},
		{"APIVersions", cfg.APIVersions, []string{"1.0.0", "2.0.0"}},
		{"DeprecatedAPIVersions", cfg.DeprecatedAPIVersions, []string{"1.0.0"}},
		{"OTelEndpoint", cfg.OTelEndpoint, "http://collector:4318"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"UsesDatabase", cfg.UsesDatabase(), true},
	}
	for _, c := range checks {
		if !reflect.DeepEqual(c.got, c.want) {
			t.Errorf("%s - %s = %v, want %v", testPrefix, c.name, c.got, c.want)
		}
	}
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("%s - ValidateForDB: %v", testPrefix, err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	os.Setenv("REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Errorf("%s - expected error for invalid REQUEST_TIMEOUT", testPrefix)
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			COMMSURL:           "nats://127.0.0.1:4222",
			DispatchSubject:    "serene.dispatch.v1",
			RequestTimeout:     time.Second,
			HealthCheckTimeout: time.Second,
			APIVersions:        []string{"1.0.0"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no comms url", func(c *Config) { c.COMMSURL = "" }, "COMMS_URL"},
		{"no subject", func(c *Config) { c.DispatchSubject = "" }, "DISPATCH_SUBJECT"},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, "REQUEST_TIMEOUT"},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, "HEALTH_CHECK_TIMEOUT"},
		{"no versions", func(c *Config) { c.APIVersions = nil }, "API_VERSIONS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.ValidateForServe()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("%s - unexpected error: %v", testPrefix, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("%s - err = %v, want mention of %s", testPrefix, err, tt.wantErr)
			}
		})
	}
}
