package config

import "time"

// TokenConfig exposes the token lifecycle policy knobs. The safety buffer and
// failure threshold are deliberately configuration rather than constants:
// the buffer must be short enough to force a refresh before expiry and long
// enough to tolerate one missed heartbeat cycle.
type TokenConfig interface {
	GetRefreshSafetyBuffer() time.Duration
	GetRefreshFailureThreshold() int
	GetHeartbeatInterval() time.Duration
	GetHeartbeatConcurrency() int
	GetRefreshTimeout() time.Duration
	GetDefaultAccessTokenExpiry() time.Duration
	GetDefaultRefreshTokenExpiry() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetRefreshSafetyBuffer() time.Duration {
	return GetEnvDuration("TOKEN_REFRESH_BUFFER", 2*time.Second)
}

func (Tokens) GetRefreshFailureThreshold() int {
	return GetEnvInt("TOKEN_REFRESH_FAILURE_THRESHOLD", 5)
}

func (Tokens) GetHeartbeatInterval() time.Duration {
	return GetEnvDuration("TOKEN_HEARTBEAT_INTERVAL", 8*time.Second)
}

func (Tokens) GetHeartbeatConcurrency() int {
	return GetEnvInt("TOKEN_HEARTBEAT_CONCURRENCY", 4)
}

func (Tokens) GetRefreshTimeout() time.Duration {
	return GetEnvDuration("TOKEN_REFRESH_TIMEOUT", 10*time.Second)
}

func (Tokens) GetDefaultAccessTokenExpiry() time.Duration {
	return GetEnvDuration("TOKEN_DEFAULT_ACCESS_EXPIRY", 10*time.Second)
}

func (Tokens) GetDefaultRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("TOKEN_DEFAULT_REFRESH_EXPIRY", 30*time.Second)
}
