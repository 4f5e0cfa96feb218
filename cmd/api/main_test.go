package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/config"
	"librarian/internal/storage/storagetest"
)

func memoryConfig() config.App {
	return config.App{
		Env:               "dev",
		HTTPPort:          "0",
		DBDriver:          "memory",
		QueueBackend:      "memory",
		WorkerConcurrency: 1,
		TaskTimeLimit:     time.Minute,
		ReminderSchedule:  "0 9 * * *",
		SchedulerTimezone: "UTC",
		MailTransport:     "log",
		JWTSigningKey:     "test-signing-key",
		JWTIssuer:         "librarian",
		AccessTTL:         time.Hour,
		AuthRatePerMinute: 10,
	}
}

func TestRunReturnsSchedulerError(t *testing.T) {
	cfg := memoryConfig()
	cfg.ReminderSchedule = "every morning"

	err := run(context.Background(), cfg, storagetest.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler setup")
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, memoryConfig(), storagetest.Discard()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("api did not shut down")
	}
}

func TestRunRejectsDevSigningKeyOutsideDev(t *testing.T) {
	cfg := memoryConfig()
	cfg.Env = "production"
	cfg.JWTSigningKey = config.DevSigningKey

	err := run(context.Background(), cfg, storagetest.Discard())
	assert.ErrorIs(t, err, config.ErrDevSigningKey)
}
