package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ReadinessPolicyAll = "all"
	ReadinessPolicyAny = "any"
)

type Config struct {
	Region string
	Port   string `validate:"required,numeric"`

	// Desired counts applied on start when the request carries no override.
	ECSDesiredCount int32 `validate:"gte=1"`
	ASGDesiredCount int32 `validate:"gte=1"`

	// FailFast aborts the remaining database instances and autoscaling groups
	// of a kind after an unexpected per-resource failure.
	FailFast      bool
	ParallelKinds bool

	ReadinessPolicy        string        `validate:"oneof=all any"`
	ReadinessCheckInterval time.Duration `validate:"gt=0"`
	ReadinessTimeout       time.Duration `validate:"gtfield=ReadinessCheckInterval"`

	HTTPRetryMax int           `validate:"gte=0"`
	HTTPTimeout  time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// NewConfigFromEnv loads configuration from environment variables
func NewConfigFromEnv() (*Config, error) {
	ecsDesired, err := int32FromEnv("SCHEDULER_ECS_DESIRED_COUNT", 1)
	if err != nil {
		return nil, err
	}
	asgDesired, err := int32FromEnv("SCHEDULER_ASG_DESIRED_COUNT", 1)
	if err != nil {
		return nil, err
	}

	failFast, err := boolFromEnv("SCHEDULER_FAIL_FAST", false)
	if err != nil {
		return nil, err
	}
	parallel, err := boolFromEnv("SCHEDULER_PARALLEL_KINDS", false)
	if err != nil {
		return nil, err
	}

	policy := os.Getenv("SCHEDULER_READINESS_POLICY")
	if policy == "" {
		policy = ReadinessPolicyAll
	}
	interval, err := intFromEnv("SCHEDULER_READINESS_INTERVAL", 30)
	if err != nil {
		return nil, err
	}
	timeout, err := intFromEnv("SCHEDULER_READINESS_TIMEOUT", 1800) // Default 30 minutes
	if err != nil {
		return nil, err
	}

	retryMax, err := intFromEnv("SCHEDULER_HTTP_RETRY_MAX", 3)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := intFromEnv("SCHEDULER_HTTP_TIMEOUT", 60)
	if err != nil {
		return nil, err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	cfg := &Config{
		Region:                 os.Getenv("AWS_REGION"),
		Port:                   port,
		ECSDesiredCount:        ecsDesired,
		ASGDesiredCount:        asgDesired,
		FailFast:               failFast,
		ParallelKinds:          parallel,
		ReadinessPolicy:        policy,
		ReadinessCheckInterval: time.Duration(interval) * time.Second,
		ReadinessTimeout:       time.Duration(timeout) * time.Second,
		HTTPRetryMax:           retryMax,
		HTTPTimeout:            time.Duration(httpTimeout) * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func intFromEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, s)
	}
	return v, nil
}

// int32FromEnv rejects values that do not fit in 32 bits instead of truncating them.
func int32FromEnv(name string, def int32) (int32, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s", name, s)
	}
	return int32(v), nil
}

func boolFromEnv(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s value: %s", name, s)
	}
	return v, nil
}
