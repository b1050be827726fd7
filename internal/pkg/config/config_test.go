package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/SubTrack/internal/pkg/env"
)

func TestLoadReminderConfigDefaults(t *testing.T) {
	env.Env = map[string]string{}
	defer func() { env.Env = nil }()

	cfg := LoadReminderConfig()
	assert.Equal(t, DefaultReminderConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadReminderConfigFromEnv(t *testing.T) {
	env.Env = map[string]string{
		"REMINDER_OFFSETS":      "14,3",
		"REMINDER_BATCH_SIZE":   "25",
		"WHATSAPP_ENABLED":      "true",
		"REMINDER_CALL_TIMEOUT": "2s",
	}
	defer func() { env.Env = nil }()

	cfg := LoadReminderConfig()
	assert.Equal(t, []int{14, 3}, cfg.Offsets)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.True(t, cfg.WhatsAppEnabled)
	assert.Equal(t, 2*time.Second, cfg.CallTimeout)
}

func TestReminderConfigValidate(t *testing.T) {
	cfg := DefaultReminderConfig()
	cfg.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultReminderConfig()
	cfg.Offsets = []int{30, -1}
	assert.Error(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		Reminder:  DefaultReminderConfig(),
		Webhook:   WebhookConfig{SigningSecret: "whsec_test", SignatureTolerance: time.Minute, DedupTTL: 24 * time.Hour, DedupBackend: DedupBackendRedis},
		Scheduler: SchedulerConfig{Spec: "@every 15m", LockTTL: time.Minute, RunTimeout: time.Minute},
		Queue:     QueueConfig{Workers: 3},
		API:       APIConfig{Token: "0123456789abcdef"},
	}
	require.NoError(t, cfg.Validate())

	cfg.Webhook.SigningSecret = ""
	cfg.Webhook.DedupBackend = "memcached"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SigningSecret")
	assert.Contains(t, err.Error(), "DedupBackend")
}
