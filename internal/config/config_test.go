package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "log_level: DEBUG\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WSHost != "localhost" {
		t.Errorf("expected default ws_host, got %q", cfg.WSHost)
	}
	if cfg.WSPort != 8081 {
		t.Errorf("expected default ws_port 8081, got %d", cfg.WSPort)
	}
	if cfg.TimeoutSeconds != 30.0 {
		t.Errorf("expected default timeout_seconds 30.0, got %v", cfg.TimeoutSeconds)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("expected explicit log_level to survive defaulting, got %q", cfg.LogLevel)
	}
}

func TestLoad_RejectsPortOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "ws_port: 80\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected a validation error for ws_port out of [1024, 65535]")
	}
}

func TestLoad_RejectsTimeoutOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "timeout_seconds: 0.1\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected a validation error for timeout_seconds out of [1, 300]")
	}
}

func TestLoad_RejectsPortCollision(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "ws_port: 9000\nother_ports: [9000, 9001]\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected a validation error for ws_port colliding with other_ports")
	}
}

func TestLoad_ResolvesIncludeDirective(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "base.yaml", "ws_host: base-host\nlog_level: WARN\n")
	path := writeConfigFile(t, dir, "config.yaml", "$include: base.yaml\nws_port: 9090\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WSHost != "base-host" {
		t.Errorf("expected included ws_host to apply, got %q", cfg.WSHost)
	}
	if cfg.WSPort != 9090 {
		t.Errorf("expected the including file's ws_port to take precedence, got %d", cfg.WSPort)
	}
	if cfg.LogLevel != "WARN" {
		t.Errorf("expected included log_level to apply, got %q", cfg.LogLevel)
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_BRIDGE_HOST", "env-host")
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "ws_host: ${TEST_BRIDGE_HOST}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WSHost != "env-host" {
		t.Errorf("expected env var expansion, got %q", cfg.WSHost)
	}
}

func TestLoad_EnvOverrideTakesPrecedence(t *testing.T) {
	t.Setenv("ILLUSTRATOR_BRIDGE_WS_PORT", "9999")
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "ws_port: 8081\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WSPort != 9999 {
		t.Errorf("expected env override to take precedence, got %d", cfg.WSPort)
	}
}

func TestLoad_JSON5Config(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.json5", "{\n  // trailing commas and comments are fine\n  ws_port: 8888,\n}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WSPort != 8888 {
		t.Errorf("expected ws_port from json5, got %d", cfg.WSPort)
	}
}

func TestLoad_DetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeConfigFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an include cycle to be detected")
	}
}
