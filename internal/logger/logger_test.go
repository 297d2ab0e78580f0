package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Environments(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker"} {
		l, err := NewLogger(env)
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", env, err)
		}
		if l == nil {
			t.Fatalf("NewLogger(%q) returned nil", env)
		}
	}

	if _, err := NewLogger("staging"); err == nil {
		t.Error("expected error for unknown environment")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	l, err := NewLogger("prod", "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info must be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn must be enabled at warn level")
	}

	if _, err := NewLogger("prod", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected nop logger without a context logger")
	}

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := ContextWithLogger(context.Background(), zap.New(core))
	FromContext(ctx).Info("traversal done", zap.String("traversal_id", "t1"))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["traversal_id"]; got != "t1" {
		t.Errorf("traversal_id = %v", got)
	}
}
