package domain

import "time"

// HealthStatus summarises a dependency probe outcome.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// HealthCheck is the result of probing one dependency. Required dependencies
// block order intake when they fail; optional ones only degrade the service.
type HealthCheck struct {
	Status    HealthStatus  `json:"status"`
	Required  bool          `json:"required"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checkedAt"`
}

type HealthReport struct {
	Status      HealthStatus           `json:"status"`
	Checks      map[string]HealthCheck `json:"checks"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// OverallHealth folds checks into one status: error when a required check
// fails, degraded when only optional ones do.
func OverallHealth(checks map[string]HealthCheck) HealthStatus {
	status := HealthStatusOK
	for _, check := range checks {
		if check.Status == HealthStatusOK {
			continue
		}
		if check.Required {
			return HealthStatusError
		}
		status = HealthStatusDegraded
	}
	return status
}
