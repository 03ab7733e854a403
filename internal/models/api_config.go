package models

// RateLimitConfig holds token bucket parameters.
type RateLimitConfig struct {
	BucketSize      int `json:"bucket_size" yaml:"bucket_size"`
	TokenRefillRate int `json:"token_refill_rate" yaml:"token_refill_rate"` // tokens per second
}

// RouteRateLimit overrides the default buckets for one route, keyed by
// method and gin full path, e.g. "POST /v1/enquiries".
type RouteRateLimit struct {
	Route         string           `json:"route" yaml:"route"`
	RateLimitSoft *RateLimitConfig `json:"rate_limit_soft,omitempty" yaml:"rate_limit_soft"`
	RateLimitHard *RateLimitConfig `json:"rate_limit_hard,omitempty" yaml:"rate_limit_hard"`
}
