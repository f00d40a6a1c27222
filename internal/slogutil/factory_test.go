package slogutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuild_ConsoleFormats(t *testing.T) {
	t.Run("human", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := Build(&buf, Options{Format: FormatHuman, Level: slog.LevelInfo})
		if err != nil {
			t.Fatal(err)
		}
		defer closer.Close()

		logger.Info("Resolved steps", "count", 2)
		if !strings.Contains(buf.String(), "[info] Resolved steps | count=2") {
			t.Errorf("unexpected output: %s", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := Build(&buf, Options{Format: FormatJSON, Level: slog.LevelInfo})
		if err != nil {
			t.Fatal(err)
		}
		defer closer.Close()

		logger.Info("Resolved steps", "count", 2)
		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
		}
		if line["msg"] != "Resolved steps" || line["count"] != float64(2) {
			t.Errorf("line = %v", line)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if _, _, err := Build(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestBuild_FileTee(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "crossbridge.log")

	logger, closer, err := Build(&console, Options{
		Level:     slog.LevelWarn,
		File:      path,
		FileLevel: slog.LevelDebug,
		MaxSizeMB: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("debug detail")
	logger.Warn("warned")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(console.String(), "debug detail") || !strings.Contains(console.String(), "warned") {
		t.Errorf("console = %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "debug detail") || !strings.Contains(string(data), "warned") {
		t.Errorf("log file = %q", data)
	}
}
