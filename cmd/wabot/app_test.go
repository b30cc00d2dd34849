package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wabot/internal/agent"
	"wabot/internal/config"
	"wabot/internal/knowledge"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Defaults()
	cfg.Database.Path = filepath.Join(t.TempDir(), "wabot.db")
	return cfg
}

func TestNewApp_TemplateRepliesWithoutBackend(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	entries, err := knowledge.DefaultSeed()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := knowledge.Seed(ctx, a.store, entries, false, logger); err != nil {
		t.Fatal(err)
	}

	reply := a.pipeline.Respond(ctx, agent.Request{UserID: "60123", Message: "What are your pricing plans?"})
	if reply.Model != "fallback" || reply.Intent != "pricing" || !reply.KnowledgeUsed {
		t.Errorf("unexpected reply %+v", reply)
	}

	p, err := a.store.GetProfile(ctx, "60123")
	if err != nil || p == nil || p.TotalMessages != 1 {
		t.Fatalf("profile = %+v, %v", p, err)
	}
	if !strings.Contains(a.collector.Render(), "wabot_intents_detected_total") {
		t.Error("collector did not receive exchange metrics")
	}
}

func TestNewApp_CacheDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Knowledge.CacheSize = 0

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if a.cache != nil {
		t.Error("cache should be disabled")
	}
}

func TestNewApp_RedisUnavailableFallsBack(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()
	if a.redis != nil {
		t.Error("redis client should be nil when unreachable")
	}
}

func TestNewLogger(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "wabot.log")
	l, err := newLogger(config.LogConfig{Level: "debug", Format: "json", File: file})
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("hello", "k", "v")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestSeedEntries_Default(t *testing.T) {
	entries, err := seedEntries("")
	if err != nil || len(entries) == 0 {
		t.Fatalf("entries=%d err=%v", len(entries), err)
	}
}
