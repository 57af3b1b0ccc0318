package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" info ", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := New("debug")
	ctx := ContextWithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatal("expected the attached logger back")
	}
}

func TestFromContext_MissingLogger(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected a usable logger, got nil")
	}
	// Must be safe to call without panicking.
	logger.Info("discarded")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected the fallback logger to discard everything")
	}
}

func TestContextWithLogger_NilLogger(t *testing.T) {
	ctx := ContextWithLogger(context.Background(), nil)
	if logger := FromContext(ctx); logger == nil {
		t.Fatal("expected a fallback logger for nil attachment")
	}
}
