package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	judge     ProviderChecker
	embedding ProviderChecker
}

// New creates a Service. judge and embedding can be nil when the provider is disabled.
func New(db DBPinger, judge, embedding ProviderChecker) *Service {
	return &Service{db: db, judge: judge, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	checkProvider(ctx, checks, "judge", s.judge)
	checkProvider(ctx, checks, "embedding", s.embedding)

	status := Healthy
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}

func checkProvider(ctx context.Context, checks map[string]CheckResult, name string, c ProviderChecker) {
	if c == nil {
		return
	}
	if err := c.HealthCheck(ctx); err != nil {
		checks[name] = CheckError
		return
	}
	checks[name] = CheckOK
}
