package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xhad/minutemate/pkg/logger"
)

func TestRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.FromZap(zap.New(core))

	log.Info("calling openai", "api_key", "sk-123", "model", "gpt-4", "access_token", "abc")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["access_token"])
	assert.Equal(t, "gpt-4", fields["model"])
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := logger.FromZap(zap.New(core)).With("component", "retriever")

	log.Debug("dropped")
	log.Warn("search failed", "mode", "keyword")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "search failed", entry.Message)
	assert.Equal(t, "retriever", entry.ContextMap()["component"])
	assert.Equal(t, "keyword", entry.ContextMap()["mode"])
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		log, err := logger.New(mode, "debug")
		require.NoError(t, err)
		assert.NotNil(t, log)
	}

	log, err := logger.New("dev", "not-a-level")
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.NotNil(t, logger.Nop())
}
