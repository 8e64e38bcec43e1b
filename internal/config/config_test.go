package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"MANTLE_BROKER_URL": "tcp://localhost:1883",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.DBName != "mantle" {
			t.Errorf("DBName = %q, want mantle", cfg.DBName)
		}
		if cfg.DBAdminName != "postgres" {
			t.Errorf("DBAdminName = %q, want postgres", cfg.DBAdminName)
		}
		if cfg.MQTTClientID != "mantle" {
			t.Errorf("MQTTClientID = %q, want mantle", cfg.MQTTClientID)
		}
		if !cfg.HistorianEnabled {
			t.Error("HistorianEnabled = false, want true")
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:   "nonexistent.env",
			LogLevel:  "debug",
			BrokerURL: "tcp://override:1883",
			DBName:    "override_db",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.MQTTBrokerURL != "tcp://override:1883" {
			t.Errorf("MQTTBrokerURL = %q, want override", cfg.MQTTBrokerURL)
		}
		if cfg.DBName != "override_db" {
			t.Errorf("DBName = %q, want override_db", cfg.DBName)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MQTTBrokerURL != "tcp://localhost:1883" {
			t.Errorf("MQTTBrokerURL = %q, want tcp://localhost:1883", cfg.MQTTBrokerURL)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"MANTLE_BROKER_URL": ""})
	defer cleanup()
	os.Unsetenv("MANTLE_BROKER_URL")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to fail when MANTLE_BROKER_URL is missing")
	}
}

func TestAuthTokenAutoGeneration(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"MANTLE_BROKER_URL": "tcp://localhost:1883",
		"MANTLE_AUTH_TOKEN": "",
	})
	defer cleanup()
	os.Unsetenv("MANTLE_AUTH_TOKEN")

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthToken == "" {
		t.Error("expected an auto-generated auth token")
	}
	if !cfg.AuthTokenGenerated {
		t.Error("expected AuthTokenGenerated=true")
	}
}

func TestAuthDisabledClearsTokens(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"MANTLE_BROKER_URL":  "tcp://localhost:1883",
		"MANTLE_AUTH_ENABLED": "false",
		"MANTLE_AUTH_TOKEN":  "should-be-cleared",
	})
	defer cleanup()

	cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AuthToken != "" {
		t.Errorf("AuthToken = %q, want empty when auth disabled", cfg.AuthToken)
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
