package models

import "github.com/cdoweather/cdoweather/internal/etl"

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Readiness reports the result of each dependency check.
type Readiness struct {
	Status HealthStatus      `json:"status"`
	Time   Timestamp         `json:"time"`
	Checks []SubsystemStatus `json:"checks"`
}

// SystemStatus represents the overall pipeline status.
type SystemStatus struct {
	Status     HealthStatus     `json:"status"`
	Time       Timestamp        `json:"time"`
	Running    bool             `json:"running"`
	Providers  []ProviderStatus `json:"providers"`
	LastRun    *etl.RunResult   `json:"lastRun,omitempty"`
	LastRunErr *string          `json:"lastRunError,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus represents the status of an upstream provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
