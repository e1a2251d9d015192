package config

import "time"

type PlanningConfig interface {
	GetServicesBaseURL() string
	GetServicesTimeout() time.Duration
}

type Planning struct{}

var _ PlanningConfig = Planning{}

func (Planning) GetServicesBaseURL() string {
	return GetEnv("SERVICES_BASE_URL", "http://localhost:8001")
}

// GetServicesTimeout bounds a single downstream call. Risk analysis and
// investment optimisation are slow endpoints, hence the generous default.
func (Planning) GetServicesTimeout() time.Duration {
	return GetEnvDuration("SERVICES_TIMEOUT", 60*time.Second)
}
