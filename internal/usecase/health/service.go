package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates the job cache is down while searches still work.
	Degraded Status = "degraded"
	// Unhealthy indicates the search backend is down.
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

// Component names in a Report.
const (
	ComponentSearch = "search"
	ComponentJobs   = "jobs"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	search Pinger
	jobs   Pinger
}

// New creates a Service. jobs can be nil when the job cache shares the search backend.
func New(search, jobs Pinger) *Service {
	return &Service{search: search, jobs: jobs}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{ComponentSearch: check(ctx, s.search)}
	if s.jobs != nil {
		checks[ComponentJobs] = check(ctx, s.jobs)
	}

	status := Healthy
	switch {
	case checks[ComponentSearch] == CheckError:
		status = Unhealthy
	case checks[ComponentJobs] == CheckError:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func check(ctx context.Context, p Pinger) CheckResult {
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
