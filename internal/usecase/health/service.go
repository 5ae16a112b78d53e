package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a search backend or the embedder is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the source of truth is unreachable.
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

// Component names in Report.Checks.
const (
	ComponentDatabase  = "database"
	ComponentVector    = "vector"
	ComponentLexical   = "lexical"
	ComponentEmbedding = "embedding"
)

const defaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        Pinger
	vector    Pinger
	lexical   Pinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. vector, lexical and embedding can be nil.
func New(db, vector, lexical Pinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, vector: vector, lexical: lexical, embedding: embedding, timeout: defaultCheckTimeout}
}

// WithTimeout bounds each component check.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs all component checks concurrently.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult)
	)
	probe := func(name string, fn func(context.Context) error) func() error {
		return func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			res := CheckOK
			if err := fn(cctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		}
	}

	var g errgroup.Group
	g.Go(probe(ComponentDatabase, s.db.Ping))
	if s.vector != nil {
		g.Go(probe(ComponentVector, s.vector.Ping))
	}
	if s.lexical != nil {
		g.Go(probe(ComponentLexical, s.lexical.Ping))
	}
	if s.embedding != nil {
		g.Go(probe(ComponentEmbedding, s.embedding.HealthCheck))
	}
	_ = g.Wait()

	status := Healthy
	for name, v := range checks {
		if v != CheckError {
			continue
		}
		if name == ComponentDatabase {
			status = Unhealthy
			break
		}
		status = Degraded
	}

	return Report{Status: status, Checks: checks}
}
