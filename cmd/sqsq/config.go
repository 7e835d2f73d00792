package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// config is read from SQSQ_* environment variables. Positional arguments and
// flags take precedence over it.
type config struct {
	Queue           string        `env:"SQSQ_QUEUE"`
	LogLevel        string        `env:"SQSQ_LOG_LEVEL"         envDefault:"info"`
	LogJSON         bool          `env:"SQSQ_LOG_JSON"`
	MetricsAddr     string        `env:"SQSQ_METRICS_ADDR"`
	Workers         int           `env:"SQSQ_WORKERS"           envDefault:"1"`
	MaxMessages     int32         `env:"SQSQ_MAX_MESSAGES"      envDefault:"1"`
	VisibilityTime  int32         `env:"SQSQ_VISIBILITY_TIMEOUT" envDefault:"300"`
	WaitTimeSeconds int32         `env:"SQSQ_WAIT_TIME_SECONDS" envDefault:"20"`
	StopTimeout     time.Duration `env:"SQSQ_STOP_TIMEOUT"      envDefault:"30s"`
	FifoGroupID     string        `env:"SQSQ_FIFO_GROUP_ID"     envDefault:"default"`
}

func loadConfig() (*config, error) {
	var c config

	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *config) validate() error {
	if c.Workers < 1 {
		return errors.New("SQSQ_WORKERS must be at least 1")
	}

	if c.StopTimeout <= 0 {
		return errors.New("SQSQ_STOP_TIMEOUT must be positive")
	}

	return nil
}

// queueName returns the queue named on the command line, falling back to
// SQSQ_QUEUE.
func (c *config) queueName(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}

	if c.Queue == "" {
		return "", errors.New("queue name must be given as an argument or through SQSQ_QUEUE")
	}

	return c.Queue, nil
}
