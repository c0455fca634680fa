package assessmalnutrition

import (
	"fmt"
	"time"

	"malnutrition-workers/internal/common/config"
	"malnutrition-workers/internal/engine/classify"
)

type Config struct {
	Timeout           time.Duration
	CacheTTL          time.Duration // 0 disables the result cache
	AlertMinRiskLevel classify.RiskLevel
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:           10 * time.Second,
		CacheTTL:          time.Hour,
		AlertMinRiskLevel: classify.RiskHigh,
	}
}

// ConfigFrom builds the worker config from the application config.
func ConfigFrom(cfg *config.Config) (*Config, error) {
	minRisk, err := classify.ParseRiskLevel(cfg.Assessment.AlertMinRiskLevel)
	if err != nil {
		return nil, fmt.Errorf("assessment.alert_min_risk_level: %w", err)
	}
	return &Config{
		Timeout:           config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
		CacheTTL:          cfg.Assessment.CacheDuration(),
		AlertMinRiskLevel: minRisk,
	}, nil
}
