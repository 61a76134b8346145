package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_Redaction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core), true)

	l.Info("feed generated", "user_id", "u-1", "api_key", "sk-123", "count", 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if got, _ := fields["user_id"].(string); !strings.HasPrefix(got, "hash:") || got == "u-1" {
		t.Errorf("user_id not hashed: %v", fields["user_id"])
	}
	if fields["api_key"] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", fields["api_key"])
	}
	if fields["count"] != int64(3) {
		t.Errorf("count = %v, want 3", fields["count"])
	}
}

func TestLogger_NoRedaction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := FromZap(zap.New(core), false).With("user_id", "u-2")

	l.Warn("cache miss")

	fields := logs.All()[0].ContextMap()
	if fields["user_id"] != "u-2" {
		t.Errorf("user_id = %v, want raw value", fields["user_id"])
	}
}

func TestLogger_HashIsStable(t *testing.T) {
	l := &Logger{redact: true, hashSalt: "salt"}
	a := l.hash("user")
	b := l.hash("user")
	if a != b {
		t.Fatalf("hash not stable: %s vs %s", a, b)
	}
	if a == (&Logger{redact: true}).hash("user") {
		t.Errorf("salt should change hash")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
