package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelWarn))

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below level leaked: %q", out)
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("messages at or above level missing: %q", out)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelDebug))

	logger.WithField("path", "table.sst").Debug("opened")

	out := buf.String()
	if !strings.Contains(out, "path=table.sst") {
		t.Errorf("field missing from output: %q", out)
	}
	if !strings.Contains(out, "[DEBUG]") {
		t.Errorf("level tag missing from output: %q", out)
	}
}

func TestLoggerFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStandardLogger(WithOutput(&buf), WithLevel(LevelDebug))

	logger.Info("wrote %d entries in %d blocks", 1000, 12)
	if !strings.Contains(buf.String(), "wrote 1000 entries in 12 blocks") {
		t.Errorf("formatting failed: %q", buf.String())
	}
}

func TestLoggerSetLevel(t *testing.T) {
	logger := NewStandardLogger()
	if logger.GetLevel() != LevelInfo {
		t.Errorf("default level should be Info")
	}
	logger.SetLevel(LevelError)
	if logger.GetLevel() != LevelError {
		t.Errorf("SetLevel did not take effect")
	}
}
