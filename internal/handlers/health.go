package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/services"
)

const defaultReadinessTimeout = 3 * time.Second

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	build   services.BuildInfo
	clock   func() time.Time
	system  services.SystemService
	timeout time.Duration
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers. Without a system service readiness always reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthSystemService wires the dependency report used by /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthTimeout bounds the readiness probe.
func WithHealthTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

type healthzResponse struct {
	Status      domain.HealthStatus `json:"status"`
	Version     string              `json:"version,omitempty"`
	CommitSHA   string              `json:"commitSha,omitempty"`
	Environment string              `json:"environment,omitempty"`
	Uptime      string              `json:"uptime"`
	Timestamp   string              `json:"timestamp"`
}

type readyzCheck struct {
	Status    domain.HealthStatus `json:"status"`
	Required  bool                `json:"required"`
	LatencyMS int64               `json:"latencyMs"`
	CheckedAt string              `json:"checkedAt,omitempty"`
	Detail    string              `json:"detail,omitempty"`
}

type readyzResponse struct {
	Status          domain.HealthStatus    `json:"status"`
	AcceptingOrders bool                   `json:"acceptingOrders"`
	Version         string                 `json:"version,omitempty"`
	CommitSHA       string                 `json:"commitSha,omitempty"`
	Environment     string                 `json:"environment,omitempty"`
	Uptime          string                 `json:"uptime,omitempty"`
	Timestamp       string                 `json:"timestamp"`
	Checks          map[string]readyzCheck `json:"checks"`
	Details         []string               `json:"details,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Truncate(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz answers 503 only when a required dependency fails. Optional
// outages are listed in details with status degraded and a 200.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := readyzResponse{
		Status:          domain.HealthStatusOK,
		AcceptingOrders: true,
		Timestamp:       h.clock().UTC().Format(time.RFC3339),
		Checks:          map[string]readyzCheck{},
	}
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		resp.Status = domain.HealthStatusError
		resp.AcceptingOrders = false
		resp.Details = []string{fmt.Sprintf("system: %v", err)}
		writeJSONResponse(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Version, resp.CommitSHA, resp.Environment = report.Version, report.CommitSHA, report.Environment
	if report.Uptime > 0 {
		resp.Uptime = report.Uptime.Truncate(time.Second).String()
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		entry := readyzCheck{
			Status:    check.Status,
			Required:  check.Required,
			LatencyMS: check.Latency.Milliseconds(),
			Detail:    check.Detail,
		}
		if !check.CheckedAt.IsZero() {
			entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339)
		}
		resp.Checks[name] = entry
		if check.Status == domain.HealthStatusOK {
			continue
		}
		detail := strings.TrimSpace(check.Detail)
		if detail == "" {
			detail = string(check.Status)
		}
		resp.Details = append(resp.Details, name+": "+detail)
	}

	resp.Status = domain.OverallHealth(report.Checks)
	if report.Status == domain.HealthStatusError {
		resp.Status = domain.HealthStatusError
	}
	status := http.StatusOK
	if resp.Status == domain.HealthStatusError {
		resp.AcceptingOrders = false
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
