package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pterm/pterm"
)

// captureLog redirects the default logger into a buffer for one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	writer, level := pterm.DefaultLogger.Writer, pterm.DefaultLogger.Level
	pterm.DefaultLogger.Writer = &buf
	t.Cleanup(func() {
		pterm.DefaultLogger.Writer = writer
		pterm.DefaultLogger.Level = level
	})
	return &buf
}

func TestLogSuccessCarriesStatus(t *testing.T) {
	buf := captureLog(t)
	SetLevel("info")

	LogSuccess("[%s] streaming", "up")
	out := buf.String()
	if !strings.Contains(out, "[up] streaming") || !strings.Contains(out, "status") {
		t.Fatalf("log line = %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	buf := captureLog(t)

	if !SetLevel("warn") {
		t.Fatal("warn rejected")
	}
	LogInfo("hidden")
	LogWarning("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("warn level output = %q", out)
	}

	if SetLevel("loud") {
		t.Error("unknown level accepted")
	}
	if pterm.DefaultLogger.Level != pterm.LogLevelWarn {
		t.Error("unknown level changed the logger")
	}
}
