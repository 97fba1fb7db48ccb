package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"podium/internal/services"
)

func TestConsoleHandlerFormatsLine(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("books generated", String(FieldComponent, "workflow"), Int("count", 4))

	line := buf.String()
	if !strings.Contains(line, "INFO workflow: books generated") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "count=4") {
		t.Fatalf("missing attribute in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Warn("merge rejected", String("name", "Trumpet 1"))

	if !strings.Contains(buf.String(), `name="Trumpet 1"`) {
		t.Fatalf("value with spaces should be quoted: %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below level, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, levelVar))

	ctx := services.WithEnsembleID(context.Background(), 7)
	ctx = services.WithJobKind(ctx, "audio")

	WithContext(ctx, logger).Info("trigger")

	line := buf.String()
	if !strings.Contains(line, "ensemble_id=7") || !strings.Contains(line, "job_kind=audio") {
		t.Fatalf("context fields missing: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
