package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNewLogger_validLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger(level)
		if err != nil {
			t.Errorf("NewLogger(%q) error = %v", level, err)
			continue
		}
		logger.Sync()
	}
}

func TestNewLogger_invalidLevelFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info should be enabled on fallback")
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Error("debug should not be enabled on fallback")
	}
}

func TestLoggerFrom_roundTrip(t *testing.T) {
	logger := zap.NewNop()
	ctx := WithLogger(context.Background(), logger)
	if got := LoggerFrom(ctx, nil); got != logger {
		t.Error("LoggerFrom should return the stored logger")
	}
}

func TestLoggerFrom_fallback(t *testing.T) {
	fallback := zap.NewNop()
	if got := LoggerFrom(context.Background(), fallback); got != fallback {
		t.Error("LoggerFrom should return the fallback when none stored")
	}
}
