package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOM_ID", "")
	t.Setenv("DANMU_WS_URL", "")
	t.Setenv("TARGET_COOKIE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DanmuWSURL == "" {
		t.Errorf("expected default danmu endpoint, got empty")
	}
	if cfg.TargetCookie != "DedeUserID" {
		t.Errorf("TargetCookie = %q, want DedeUserID", cfg.TargetCookie)
	}
	if cfg.LoginPollInterval != time.Second || cfg.LoginTimeout != 5*time.Minute {
		t.Errorf("login window defaults wrong: %v / %v", cfg.LoginPollInterval, cfg.LoginTimeout)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
}

func TestLoadRejectsBadRoomID(t *testing.T) {
	for _, v := range []string{"abc", "-3", "0"} {
		t.Setenv("ROOM_ID", v)
		if _, err := Load(); err == nil {
			t.Errorf("ROOM_ID=%q should fail Load", v)
		}
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("LOGIN_POLL_INTERVAL", "250ms")
	t.Setenv("LOGIN_TIMEOUT", "90s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LoginPollInterval != 250*time.Millisecond {
		t.Errorf("LoginPollInterval = %v", cfg.LoginPollInterval)
	}
	if cfg.LoginTimeout != 90*time.Second {
		t.Errorf("LoginTimeout = %v", cfg.LoginTimeout)
	}
}

func TestValidateConnectReady(t *testing.T) {
	t.Setenv("ROOM_ID", "21452505")
	cfg, _ := Load()
	if err := cfg.ValidateConnectReady(); err != nil {
		t.Errorf("expected valid connect config, got %v", err)
	}
	t.Setenv("ROOM_ID", "")
	cfg, _ = Load()
	if err := cfg.ValidateConnectReady(); err == nil {
		t.Errorf("expected error when ROOM_ID missing")
	}
}
