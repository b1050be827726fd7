package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/SubTrack/internal/pkg/env"
)

const (
	DedupBackendRedis    = "redis"
	DedupBackendDatabase = "database"
)

// ReminderConfig drives the reminder dispatcher.
type ReminderConfig struct {
	// LookaheadDays is used by single-window runs (cmd/remind -lookahead).
	LookaheadDays int `validate:"gte=0,lte=365"`
	// Offsets are the multi-interval windows, applied in the given order.
	Offsets         []int         `validate:"dive,gte=0,lte=365"`
	BatchSize       int           `validate:"gte=1,lte=1000"`
	WhatsAppEnabled bool          `validate:"-"`
	CallTimeout     time.Duration `validate:"gt=0"`
	MaxAttempts     int           `validate:"gte=1,lte=10"`
}

// WebhookConfig drives the billing event reconciler and its HTTP ingress.
type WebhookConfig struct {
	SigningSecret      string        `validate:"required"`
	SignatureTolerance time.Duration `validate:"gt=0"`
	DedupTTL           time.Duration `validate:"gte=1h"`
	DedupBackend       string        `validate:"oneof=redis database"`
}

type SchedulerConfig struct {
	Spec       string        `validate:"required"`
	LockTTL    time.Duration `validate:"gt=0"`
	RunTimeout time.Duration `validate:"gt=0"`
}

type QueueConfig struct {
	Workers int `validate:"gte=1,lte=64"`
}

type APIConfig struct {
	Token string `validate:"required,min=16"`
}

// Config is the complete runtime configuration assembled by the commands.
type Config struct {
	Reminder  ReminderConfig
	Webhook   WebhookConfig
	Scheduler SchedulerConfig
	Queue     QueueConfig
	API       APIConfig
}

func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		LookaheadDays:   7,
		Offsets:         []int{30, 7, 1},
		BatchSize:       100,
		WhatsAppEnabled: false,
		CallTimeout:     10 * time.Second,
		MaxAttempts:     3,
	}
}

// LoadReminderConfig reads the reminder settings from the environment.
func LoadReminderConfig() ReminderConfig {
	def := DefaultReminderConfig()
	return ReminderConfig{
		LookaheadDays:   env.GetEnvInt("REMINDER_LOOKAHEAD_DAYS", def.LookaheadDays),
		Offsets:         env.GetEnvIntList("REMINDER_OFFSETS", def.Offsets),
		BatchSize:       env.GetEnvInt("REMINDER_BATCH_SIZE", def.BatchSize),
		WhatsAppEnabled: env.GetEnvBool("WHATSAPP_ENABLED", def.WhatsAppEnabled),
		CallTimeout:     env.GetEnvDuration("REMINDER_CALL_TIMEOUT", def.CallTimeout),
		MaxAttempts:     env.GetEnvInt("REMINDER_MAX_ATTEMPTS", def.MaxAttempts),
	}
}

func LoadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		SigningSecret:      strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		SignatureTolerance: env.GetEnvDuration("STRIPE_SIGNATURE_TOLERANCE", 5*time.Minute),
		DedupTTL:           env.GetEnvDuration("WEBHOOK_DEDUP_TTL", 24*time.Hour),
		DedupBackend:       strings.ToLower(env.GetEnv("WEBHOOK_DEDUP_BACKEND", DedupBackendRedis)),
	}
}

func LoadSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Spec:       env.GetEnv("SCHEDULER_CRON", "0 */15 * * * *"),
		LockTTL:    env.GetEnvDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
		RunTimeout: env.GetEnvDuration("SCHEDULER_RUN_TIMEOUT", 5*time.Minute),
	}
}

func LoadQueueConfig() QueueConfig {
	return QueueConfig{Workers: env.GetEnvInt("JOBQUEUE_WORKERS", 3)}
}

func LoadAPIConfig() APIConfig {
	return APIConfig{Token: strings.TrimSpace(env.GetEnv("API_TOKEN", ""))}
}

// Load assembles and validates the full configuration.
func Load() (*Config, error) {
	cfg := &Config{
		Reminder:  LoadReminderConfig(),
		Webhook:   LoadWebhookConfig(),
		Scheduler: LoadSchedulerConfig(),
		Queue:     LoadQueueConfig(),
		API:       LoadAPIConfig(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New()
	var problems []string
	for _, section := range []interface{}{c.Reminder, c.Webhook, c.Scheduler, c.Queue, c.API} {
		if err := v.Struct(section); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks only the reminder section; cmd/remind does not need the rest.
func (c ReminderConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid reminder configuration: %w", err)
	}
	return nil
}
