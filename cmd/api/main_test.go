package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "NATS_URL", "GEMINI_API_KEY", "COMPLETION_PROVIDER", "COMPLETION_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "127.0.0.1:0")
	t.Setenv("LOG_LEVEL", "error")
}

func TestRunReturnsConfigurationError(t *testing.T) {
	cleanEnv(t)
	t.Setenv("PORT", "80 80")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestRunReturnsNATSFailureAfterOpeningResources(t *testing.T) {
	cleanEnv(t)
	t.Setenv("NATS_URL", "nats://127.0.0.1:1")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to NATS")
}

func TestRunStopsCleanlyWhenCancelled(t *testing.T) {
	cleanEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, run(ctx))
}
