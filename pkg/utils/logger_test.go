package utils

import (
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true, "")
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production console logger", func(t *testing.T) {
		logger, err := NewLogger(false, "console")
		if err != nil {
			t.Fatalf("NewLogger(false, console) error: %v", err)
		}
		if logger == nil {
			t.Fatal("nil logger")
		}
	})

	t.Run("nil falls back to nop", func(t *testing.T) {
		if OrNop(nil) == nil {
			t.Fatal("OrNop(nil) returned nil")
		}
	})
}
