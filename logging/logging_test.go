package logging

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"", InfoLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultLoggerRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := NewWriterLogger(&out, &errOut, false)

	logger.Debug("hidden")
	logger.Info("loaded", Fields{"kind": "precise"})
	logger.Error(errors.New("boom"), "load failed")

	if strings.Contains(out.String(), "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(out.String(), "[INFO] loaded kind=precise") {
		t.Errorf("unexpected stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "[ERROR] load failed: boom") {
		t.Errorf("unexpected stderr: %q", errOut.String())
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var out bytes.Buffer
	parent := NewWriterLogger(&out, &out, false)
	child := parent.WithFields(Fields{"component": "detector"})

	parent.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if strings.Contains(lines[0], "component=") {
		t.Errorf("parent picked up child fields: %q", lines[0])
	}
	if !strings.Contains(lines[1], "component=detector") {
		t.Errorf("child missing fields: %q", lines[1])
	}
}

func TestWithContextFields(t *testing.T) {
	var out bytes.Buffer
	logger := NewWriterLogger(&out, &out, false)

	ctx := ContextWithFields(context.Background(), Fields{"mode": "spectral"})
	ctx = ContextWithFields(ctx, Fields{"gen": 2})
	logger.WithContext(ctx).Info("switched")

	if !strings.Contains(out.String(), "gen=2 mode=spectral") {
		t.Errorf("context fields missing: %q", out.String())
	}
}

func TestFatalUsesExitHook(t *testing.T) {
	var out bytes.Buffer
	logger := NewWriterLogger(&out, &out, false)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal(errors.New("invariant"), "frame length")
	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}
