// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the runner service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	RunnerSpec        string        // Runner backend specification, e.g. "local" or "gridengine(-j y)"
	LogDir            string        // Directory for job log files, empty = per-job working directory
	CallbackKey       string        // HMAC key for signing callback events, empty = unsigned
	EventSource       string        // CloudEvent source URI for emitted events
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretEnv("API_KEY"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		RunnerSpec:        GetEnv("RUNNER_SPEC", "local"),
		LogDir:            GetEnv("LOG_DIR", ""),
		CallbackKey:       GetSecretEnv("CALLBACK_KEY"),
		EventSource:       GetEnv("EVENT_SOURCE", "/runner-service"),
	}
}
