package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr default: got %q", cfg.HTTPAddr)
	}
	if cfg.GenerationMaxWorkers != 10 {
		t.Errorf("GenerationMaxWorkers default: got %d", cfg.GenerationMaxWorkers)
	}
	if cfg.GenerationMaxAttempts != 3 {
		t.Errorf("GenerationMaxAttempts default: got %d", cfg.GenerationMaxAttempts)
	}
	if cfg.StreamHeartbeatInterval != 20*time.Second {
		t.Errorf("StreamHeartbeatInterval default: got %v", cfg.StreamHeartbeatInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("STREAM_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Errorf("HTTPAddr override: got %q", cfg.HTTPAddr)
	}
	if cfg.StreamHeartbeatInterval != 5*time.Second {
		t.Errorf("StreamHeartbeatInterval override: got %v", cfg.StreamHeartbeatInterval)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr override: got %q", cfg.RedisAddr)
	}
}
