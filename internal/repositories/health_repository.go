package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tienda-delivery/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck probes one backing service. Postgres is Required; Redis and
// the event broker are not, since the API keeps taking orders without them.
type DependencyCheck struct {
	Name     string
	Required bool
	Timeout  time.Duration
	Check    func(context.Context) error
}

// HealthRepository evaluates dependency probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

type DependencyHealthOption func(*probeSet)

// WithDependencyTimeout applies to checks that set no Timeout.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(p *probeSet) {
		if timeout > 0 {
			p.fallbackTimeout = timeout
		}
	}
}

func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(p *probeSet) {
		if clock != nil {
			p.now = clock
		}
	}
}

type probeSet struct {
	checks          []DependencyCheck
	fallbackTimeout time.Duration
	now             func() time.Time
}

// NewDependencyHealthRepository runs checks concurrently on every Collect.
// Names must be unique.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]struct{}, len(checks))
	for _, check := range checks {
		name := strings.TrimSpace(check.Name)
		switch {
		case name == "":
			return nil, errors.New("health repository: dependency check missing name")
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: dependency %s missing check function", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: dependency %s registered twice", name)
		}
		seen[name] = struct{}{}
	}

	p := &probeSet{
		checks:          append([]DependencyCheck(nil), checks...),
		fallbackTimeout: defaultProbeTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *probeSet) Collect(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("health repository: context is required")
	}

	outcomes := make([]domain.HealthCheck, len(p.checks))
	var wg sync.WaitGroup
	for i := range p.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = p.run(ctx, p.checks[i])
		}()
	}
	wg.Wait()

	checks := make(map[string]domain.HealthCheck, len(outcomes))
	for i, outcome := range outcomes {
		checks[strings.TrimSpace(p.checks[i].Name)] = outcome
	}
	return domain.HealthReport{
		Status:      domain.OverallHealth(checks),
		Checks:      checks,
		GeneratedAt: p.now(),
	}, nil
}

func (p *probeSet) run(ctx context.Context, check DependencyCheck) domain.HealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = p.fallbackTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := p.now()
	err := check.Check(probeCtx)
	finished := p.now()

	out := domain.HealthCheck{
		Status:    domain.HealthStatusOK,
		Required:  check.Required,
		Latency:   finished.Sub(started),
		CheckedAt: finished,
	}
	if err == nil {
		err = probeCtx.Err()
	}
	switch {
	case err == nil:
		return out
	case errors.Is(err, context.DeadlineExceeded):
		out.Detail = "timeout after " + timeout.String()
	case errors.Is(err, context.Canceled):
		out.Detail = "cancelled"
	default:
		out.Detail = err.Error()
	}
	out.Status = domain.HealthStatusError
	return out
}
