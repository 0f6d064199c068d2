package logger_test

import (
	"testing"

	"github.com/enterstudio/subscription-manager/internal/utils/logger"
)

func TestLoggerReturnsNonNil(t *testing.T) {
	log := logger.Logger()
	if log == nil {
		t.Fatal("expected non-nil sugared logger")
	}
}

func TestLoggerIsSingleton(t *testing.T) {
	first := logger.Logger()
	second := logger.Logger()
	if first != second {
		t.Error("expected Logger() to return the same instance")
	}
}

func TestSetLogLevelDoesNotPanic(t *testing.T) {
	logger.Logger()
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger.SetLogLevel(level)
	}
}

func TestWithReturnsChildLogger(t *testing.T) {
	child := logger.With("repo", "test-repo")
	if child == nil {
		t.Fatal("expected non-nil child logger")
	}
}
