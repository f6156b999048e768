// Package health provides Kubernetes-style liveness and readiness probe
// endpoints. Registered checks run periodically on a background goroutine;
// the HTTP endpoints report the most recent results without running checks
// inline, so a slow dependency cannot stall the probe itself.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc is a health check function. It returns nil when the checked
// component is healthy.
type CheckFunc func(ctx context.Context) error

// check holds one registered check and its latest result.
type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	// lastErr is written by the runner goroutine and read by HTTP handlers.
	lastErr atomic.Pointer[error]
}

func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)
}

func (c *check) err() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Service runs health checks and serves the probe endpoints.
type Service struct {
	mu        sync.Mutex
	liveness  []*check
	readiness []*check

	ready  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty health service. The service starts not-ready; call
// SetReady(true) once startup completes.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a check that gates the /livez endpoint.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, &check{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check that gates the /readyz endpoint.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, &check{name: name, timeout: timeout, fn: fn})
}

// SetReady flips the manual readiness gate. Readiness requires both the gate
// and every readiness check to pass.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start launches the background runner that executes all checks every
// interval. Checks also run once immediately.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.runAll(runCtx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runAll(runCtx)
			}
		}
	}()
}

// Stop terminates the background runner and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) runAll(ctx context.Context) {
	s.mu.Lock()
	checks := make([]*check, 0, len(s.liveness)+len(s.readiness))
	checks = append(checks, s.liveness...)
	checks = append(checks, s.readiness...)
	s.mu.Unlock()

	for _, c := range checks {
		c.run(ctx)
	}
}

// LiveEndpoint serves the liveness probe.
func (s *Service) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.liveness...)
	s.mu.Unlock()

	writeStatus(w, checks, true)
}

// ReadyEndpoint serves the readiness probe. It fails while the manual gate
// is down, regardless of check results.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	checks := append([]*check(nil), s.readiness...)
	s.mu.Unlock()

	writeStatus(w, checks, s.ready.Load())
}

func writeStatus(w http.ResponseWriter, checks []*check, gate bool) {
	healthy := gate
	results := make(map[string]string, len(checks))
	for _, c := range checks {
		if err := c.err(); err != nil {
			healthy = false
			results[c.name] = err.Error()
		} else {
			results[c.name] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": results,
	})
}
