package model

import "time"

// RetryConfig defines retry behavior for outbound API requests
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" mapstructure:"max-attempts"`
	InitialDelay      time.Duration `json:"initial_delay" mapstructure:"initial-delay"`
	MaxDelay          time.Duration `json:"max_delay" mapstructure:"max-delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" mapstructure:"backoff-multiplier"`
	Jitter            bool          `json:"jitter" mapstructure:"jitter"`
}

// DefaultRetryConfig is used when no retry settings are configured
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// Pacing holds fixed sleeps between upstream calls to stay under rate limits
type Pacing struct {
	GraphQLPage time.Duration `json:"graphql_page" mapstructure:"graphql-page"` // between GraphQL pages
	Repo        time.Duration `json:"repo" mapstructure:"repo"`                 // between per-repo REST calls
	Package     time.Duration `json:"package" mapstructure:"package"`           // pepy.tech free tier: 10 calls/min
	UserLookup  time.Duration `json:"user_lookup" mapstructure:"user-lookup"`   // 5000/hr GitHub limit
}

// DefaultPacing mirrors the sleeps the collectors have always used
var DefaultPacing = Pacing{
	GraphQLPage: 300 * time.Millisecond,
	Repo:        100 * time.Millisecond,
	Package:     1 * time.Second,
	UserLookup:  1390 * time.Millisecond,
}
