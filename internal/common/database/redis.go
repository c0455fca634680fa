package database

import (
	"context"
	"fmt"
	"time"

	"malnutrition-workers/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// Key prefixes shared by the workers.
const (
	AssessmentResultPrefix = "assessment:result:"
	LatestAssessmentPrefix = "assessment:latest:"
)

// AssessmentResultKey caches a finished assessment by input fingerprint.
func AssessmentResultKey(fingerprint string) string {
	return AssessmentResultPrefix + fingerprint
}

// LatestAssessmentKey holds the summary of a patient's most recent assessment.
func LatestAssessmentKey(patientID string) string {
	return LatestAssessmentPrefix + patientID
}

type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	return &RedisClient{Client: rdb}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

func (c *RedisClient) GetClient() *redis.Client {
	return c.Client
}
