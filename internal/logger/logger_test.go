package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	logger := New("test")
	assert.NotNil(t, logger)
}

func TestLoggerLevels(t *testing.T) {
	logger := New("test")
	assert.NotNil(t, logger)

	logger.Debug("debug message", String("key", "value"))
	logger.Info("info message", Int("count", 42))
	logger.Warn("warning message", Bool("flag", true))
	logger.Error("error message", Float64("value", 3.14))
}

func TestLoggerWithContext(t *testing.T) {
	logger := New("test")

	contextLogger := logger.WithContext(context.Background())
	assert.NotNil(t, contextLogger)

	contextLogger.Info("message with context", String("operation", "test"))
}

func TestLoggerFields(t *testing.T) {
	logger := New("test")

	logger.Info("test fields",
		String("string", "value"),
		Int("int", 42),
		Int64("int64", int64(999)),
		Float64("float", 3.14),
		Bool("bool", true),
		Any("any", map[string]interface{}{"key": "value"}),
	)
}

func TestLoggerWithError(t *testing.T) {
	logger := New("test")

	assert.Same(t, logger, logger.WithError(nil))

	withErr := logger.WithError(assert.AnError)
	assert.NotNil(t, withErr)
	withErr.Error("operation failed")
}

func TestLoggerConcurrency(t *testing.T) {
	logger := New("test")

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(id int) {
			logger.Info("concurrent log", Int("goroutine", id))
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func BenchmarkLogger(b *testing.B) {
	logger := New("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("benchmark message",
			String("key", "value"),
			Int("count", i),
		)
	}
}
