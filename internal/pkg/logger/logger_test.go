package logger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Development(t *testing.T) {
	log := NewLogger("development")
	assert.NotNil(t, log)
}

func TestNewLogger_Production(t *testing.T) {
	log := NewLogger("production")
	assert.NotNil(t, log)
}

func TestNewLogger_WithLogLevel(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	defer os.Unsetenv("LOG_LEVEL")

	log := NewLogger("development")
	assert.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_WithInvalidLogLevel(t *testing.T) {
	os.Setenv("LOG_LEVEL", "ありえない")
	defer os.Unsetenv("LOG_LEVEL")

	// 不正なレベルは無視してビルドされる
	log := NewLogger("development")
	assert.NotNil(t, log)
}

func TestGet(t *testing.T) {
	assert.NotNil(t, Get())
}

func TestSet(t *testing.T) {
	original := Get()
	defer Set(original)

	replacement := NewLogger("production")
	Set(replacement)
	assert.Equal(t, replacement, Get())
}
