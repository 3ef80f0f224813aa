package xdump

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		wantLogs []string
		noLogs   []string
	}{
		{
			name:     "debug shows everything",
			level:    LogDebug,
			wantLogs: []string{"[DEBUG] d", "[INFO] i", "[WARN] w", "[ERROR] e"},
		},
		{
			name:     "warn hides debug and info",
			level:    LogWarn,
			wantLogs: []string{"[WARN] w", "[ERROR] e"},
			noLogs:   []string{"[DEBUG]", "[INFO]"},
		},
		{
			name:   "off hides everything",
			level:  LogOff,
			noLogs: []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			out := buf.String()
			for _, want := range tt.wantLogs {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			for _, unwanted := range tt.noLogs {
				if strings.Contains(out, unwanted) {
					t.Errorf("output should not contain %q:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogInfo)

	logger.WithFields(Fields{"object": 7, "field": "Senses"}).Info("patch %s", "vector")
	out := buf.String()
	if !strings.Contains(out, "[INFO] patch vector") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, `"field": "Senses"`) || !strings.Contains(out, `"object": 7`) {
		t.Errorf("output missing fields: %q", out)
	}
	if strings.Index(out, `"field"`) > strings.Index(out, `"object"`) {
		t.Errorf("fields should be sorted by key: %q", out)
	}
}

func TestLoggerSharedLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogInfo)
	child := logger.WithField("format", "xml")

	logger.SetLevel(LogDebug)
	if !child.IsDebugMode() {
		t.Error("derived logger should share the parent level")
	}
	child.Debug("visible")
	if !strings.Contains(buf.String(), "[DEBUG] visible") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogDebug, "DEBUG"},
		{LogInfo, "INFO"},
		{LogWarn, "WARN"},
		{LogError, "ERROR"},
		{LogOff, "OFF"},
		{LogLevel(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
	if ParseLogLevel("bogus") != LogInfo {
		t.Error("unknown level names should map to info")
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LogWarn))
	Info("hidden")
	Warn("shown %d", 1)
	WithField("k", "v").Error("failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 1") || !strings.Contains(out, "[ERROR] failed") {
		t.Errorf("output = %q", out)
	}
}
