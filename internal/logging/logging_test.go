package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLoggerIsNoop(t *testing.T) {
	// Must not panic before Init
	Infow("hello", "key", "value")
	Errorf("failed: %d", 1)
	Sync()
}

func TestSet_RoutesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	prev := L()
	Set(zap.New(core))
	t.Cleanup(func() { sugar = prev })

	Infow("search finished", "results", 3)
	Warnw("upload failed", "error", "disk full")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "search finished" {
		t.Errorf("expected message 'search finished', got '%s'", entries[0].Message)
	}
	if got := entries[0].ContextMap()["results"]; got != int64(3) {
		t.Errorf("expected results=3, got %v", got)
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("expected warn level, got %v", entries[1].Level)
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	prev := L()
	t.Cleanup(func() { sugar = prev })

	if err := Init("nonsense", "json"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if L().Desugar().Core().Enabled(zap.DebugLevel) {
		t.Error("expected debug to be disabled at info level")
	}
	if !L().Desugar().Core().Enabled(zap.InfoLevel) {
		t.Error("expected info to be enabled")
	}
}
