package config

import (
	"os"
	"strconv"
	"time"
)

// Settings carries the tunables the settlement pipeline depends on. The SLA
// window and compensation amount are injected into the services at
// construction so deployments (and tests) can vary them.
type Settings struct {
	// SlaDuration is the service-level window within which a pending
	// withdrawal must be completed before compensation is owed.
	SlaDuration time.Duration
	// CompensationAmount is the flat credit paid when the window is
	// breached, independent of the withdrawal size.
	CompensationAmount float64
	// SchedulerMaxRetry bounds redelivery attempts for the delayed
	// evaluation job.
	SchedulerMaxRetry int
	// EnqueueMaxRetry bounds synchronous retries when scheduling the
	// evaluation job at creation time.
	EnqueueMaxRetry int

	MinimumWithdrawal float64
	MaximumWithdrawal float64

	RedisAddr       string
	NotificationUrl string
}

func Load() Settings {
	return Settings{
		SlaDuration:        time.Duration(envInt("WITHDRAWAL_SLA_MS", 60000)) * time.Millisecond,
		CompensationAmount: envFloat("SLA_COMPENSATION_AMOUNT", 1000.0),
		SchedulerMaxRetry:  envInt("SCHEDULER_MAX_RETRY", 3),
		EnqueueMaxRetry:    envInt("ENQUEUE_MAX_RETRY", 3),
		MinimumWithdrawal:  envFloat("MINIMUM_WITHDRAWAL", 100.0),
		MaximumWithdrawal:  envFloat("MAXIMUM_WITHDRAWAL", 1000000.0),
		RedisAddr:          envString("REDIS_URL", "localhost:6379"),
		NotificationUrl:    os.Getenv("NOTIFICATION_WEBHOOK_URL"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
