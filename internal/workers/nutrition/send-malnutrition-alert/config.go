package sendmalnutritionalert

import (
	"time"

	"malnutrition-workers/internal/common/config"
)

type Config struct {
	Timeout    time.Duration
	SNSEnabled bool
	TopicARN   string
	SESEnabled bool
	FromEmail  string
}

func ConfigFrom(cfg *config.Config) *Config {
	n := cfg.Notifications
	return &Config{
		Timeout:    config.GetDuration(config.GetWorkerConfig(cfg, TaskType).Timeout),
		SNSEnabled: n.SNS.Enabled,
		TopicARN:   n.SNS.TopicARN,
		SESEnabled: n.SES.Enabled,
		FromEmail:  n.SES.FromEmail,
	}
}
