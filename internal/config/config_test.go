package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	v.Set("auth.jwt_secret", "secret")

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d", cfg.Server.Port)
	}
	if cfg.Attachments.MaxSize != 200<<20 {
		t.Errorf("attachments.max_size = %d", cfg.Attachments.MaxSize)
	}
	if cfg.Attachments.Retention != 24*time.Hour || cfg.Attachments.SweepInterval != time.Hour {
		t.Errorf("attachment timings = %v / %v", cfg.Attachments.Retention, cfg.Attachments.SweepInterval)
	}
	if cfg.Message.MaxTextLength != 4000 || cfg.Message.HistoryDefault != 50 || cfg.Message.HistoryMax != 200 {
		t.Errorf("message config = %+v", cfg.Message)
	}
	if cfg.WebSocket.PongWait != 60*time.Second {
		t.Errorf("websocket.pong_wait = %v", cfg.WebSocket.PongWait)
	}
	if cfg.Storage.Driver != "local" || cfg.Storage.Local.BasePath == "" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Attachments.RedirectDownloads || cfg.Attachments.URLTTL != 15*time.Minute {
		t.Errorf("download settings = %v / %v", cfg.Attachments.RedirectDownloads, cfg.Attachments.URLTTL)
	}
	if cfg.Presence.Store != "memory" {
		t.Errorf("presence.store = %s", cfg.Presence.Store)
	}
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	v.Set("auth.jwt_secret", "secret")
	v.Set("attachments.retention", "2h")
	v.Set("attachments.sweep_interval", "0s")

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper: %v", err)
	}
	if cfg.Attachments.Retention != 2*time.Hour {
		t.Errorf("retention = %v, want 2h", cfg.Attachments.Retention)
	}
	if cfg.Attachments.SweepInterval != time.Hour {
		t.Errorf("non-positive sweep interval should fall back to 1h, got %v", cfg.Attachments.SweepInterval)
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := FromViper(viper.New()); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := "JWT_SECRET=from-dotenv\nNATS_ENABLED=true\nNATS_SERVERS=nats://a:4222,nats://b:4222\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, key := range []string{"JWT_SECRET", "NATS_ENABLED", "NATS_SERVERS"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.JWTSecret != "from-dotenv" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if !cfg.Nats.Enabled || cfg.Nats.Servers != "nats://a:4222,nats://b:4222" || cfg.Nats.SubjectPrefix != "chat.events" {
		t.Errorf("nats = %+v", cfg.Nats)
	}
}
