package services

import (
	"context"
	"errors"
	"time"

	"github.com/tienda-delivery/api/internal/domain"
	"github.com/tienda-delivery/api/internal/repositories"
)

// BuildInfo identifies the running binary on the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemHealthReport is a dependency report stamped with build metadata.
// AcceptingOrders is false once a required dependency is down.
type SystemHealthReport struct {
	domain.HealthReport
	Version         string
	CommitSHA       string
	Environment     string
	Uptime          time.Duration
	AcceptingOrders bool
}

type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	probes repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
}

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		probes: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.probes.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.HealthCheck{}
	}
	if derived := domain.OverallHealth(report.Checks); report.Status == "" || derived == domain.HealthStatusError {
		report.Status = derived
	}
	return SystemHealthReport{
		HealthReport:    report,
		Version:         s.build.Version,
		CommitSHA:       s.build.CommitSHA,
		Environment:     s.build.Environment,
		Uptime:          now.Sub(s.build.StartedAt),
		AcceptingOrders: report.Status != domain.HealthStatusError,
	}, nil
}
