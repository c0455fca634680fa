package recordassessment

import (
	"time"

	"malnutrition-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
	// LatestTTL bounds how long the per-patient summary stays in redis. 0 keeps it.
	LatestTTL time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		LatestTTL: 30 * 24 * time.Hour,
	}
}

func ConfigFrom(cfg *config.Config) *Config {
	c := DefaultConfig()
	c.Timeout = config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout)
	return c
}
