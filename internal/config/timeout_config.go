package config

import "time"

type TimeoutConfig interface {
	GetLoginTimeout() time.Duration
}

type Timeouts struct{}

var _ TimeoutConfig = Timeouts{}

// GetLoginTimeout bounds a whole login (LOGIN_TIMEOUT, e.g. "45s")
func (Timeouts) GetLoginTimeout() time.Duration {
	d, err := time.ParseDuration(GetEnv("LOGIN_TIMEOUT", "30s"))
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
