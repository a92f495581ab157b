package logging

import "testing"

func TestNewNamesLogger(t *testing.T) {
	log := New("widget")
	if log == nil {
		t.Fatal("New returned nil logger")
	}

	// Named loggers should not panic when logging at any level.
	log.Info("test message")
	log.Debug("test message")
}

func TestPackageScopedLoggers(t *testing.T) {
	if Pipeline == nil || Fsm == nil || Ingress == nil {
		t.Fatal("package-scoped loggers must be non-nil")
	}
}
