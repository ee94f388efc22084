package queue

import "time"

// Config holds configuration for one stage worker pool
type Config struct {
	// PollInterval is how often idle workers poll for messages
	PollInterval time.Duration

	// Concurrency is the number of concurrent workers
	Concurrency int
}

// NewDefaultConfig creates a worker pool configuration with sensible defaults
func NewDefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		Concurrency:  2,
	}
}
