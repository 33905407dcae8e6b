package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewHonoursLevel(t *testing.T) {
	logger, err := New("warn", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info must be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn must be enabled at warn level")
	}

	if _, err := New("debug", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestMaskToken(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"abc":               "****",
		"Bearer abcdefgh":   "Bearer ****efgh",
		"plain-secret-1234": "*************1234",
	}
	for in, expected := range tests {
		if got := MaskToken(in); got != expected {
			t.Fatalf("MaskToken(%q) = %q, expected %q", in, got, expected)
		}
	}
}
