// Package probe polls a liveness endpoint and reports readiness. It is
// a reporter only: transitions are surfaced to the hosting platform (or
// a callback), never acted on by killing the process.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quayside/quayside/internal/deploy"
	"github.com/quayside/quayside/internal/metrics"
)

// Status is the reported container readiness.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Policy bounds probing behavior.
type Policy struct {
	// Interval between probes.
	Interval time.Duration
	// Timeout per probe; a timeout is a failure exactly like a
	// connection error.
	Timeout time.Duration
	// GracePeriod after Run starts during which failures never count
	// toward the threshold. Browser engines and worker pools take
	// longer to come up than an ordinary process.
	GracePeriod time.Duration
	// FailureThreshold is the number of consecutive countable failures
	// that flips the status to unhealthy.
	FailureThreshold int
}

func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = 30 * time.Second
	}
	if p.Timeout <= 0 {
		p.Timeout = 5 * time.Second
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = 3
	}
	return p
}

// Option configures the Prober.
type Option func(*Prober)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Prober) {
		p.client = client
	}
}

// WithTransition registers a callback invoked on every status change.
func WithTransition(fn func(Status)) Option {
	return func(p *Prober) {
		p.onTransition = fn
	}
}

// Prober periodically exercises the health endpoint.
type Prober struct {
	target       string
	policy       Policy
	clock        deploy.Clock
	logger       *zap.Logger
	client       *http.Client
	onTransition func(Status)

	mu          sync.Mutex
	status      Status
	consecutive int
	startedAt   time.Time
}

// New creates a Prober for the given target URL.
func New(target string, policy Policy, clock deploy.Clock, logger *zap.Logger, opts ...Option) (*Prober, error) {
	if target == "" {
		return nil, fmt.Errorf("probe target is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prober{
		target: target,
		policy: policy.withDefaults(),
		clock:  clock,
		logger: logger,
		status: StatusStarting,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return p, nil
}

// Run probes on the policy interval until the context finishes. The
// grace period starts counting from the first call, matching "from
// first startup" in the health-check lifecycle.
func (p *Prober) Run(ctx context.Context) {
	p.mu.Lock()
	p.startedAt = p.clock.Now()
	p.mu.Unlock()

	ticker := time.NewTicker(p.policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check performs one probe and folds the result into the status machine.
func (p *Prober) Check(ctx context.Context) Status {
	err := p.probeOnce(ctx)
	return p.observe(err)
}

func (p *Prober) probeOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.policy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: status %d", p.target, resp.StatusCode)
	}
	return nil
}

// observe applies one probe outcome. Failures inside the grace period
// are logged but never counted.
func (p *Prober) observe(err error) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.startedAt.IsZero() {
		p.startedAt = p.clock.Now()
	}

	if err == nil {
		metrics.ObserveProbe(true)
		p.consecutive = 0
		p.setStatusLocked(StatusHealthy)
		return p.status
	}

	metrics.ObserveProbe(false)
	if p.inGraceLocked() {
		p.logger.Debug("probe failed within grace period", zap.Error(err))
		return p.status
	}

	p.consecutive++
	p.logger.Warn("probe failed",
		zap.Error(err),
		zap.Int("consecutive", p.consecutive),
		zap.Int("threshold", p.policy.FailureThreshold),
	)
	if p.consecutive >= p.policy.FailureThreshold {
		p.setStatusLocked(StatusUnhealthy)
	}
	return p.status
}

func (p *Prober) inGraceLocked() bool {
	if p.startedAt.IsZero() || p.policy.GracePeriod <= 0 {
		return false
	}
	return p.clock.Now().Sub(p.startedAt) < p.policy.GracePeriod
}

func (p *Prober) setStatusLocked(next Status) {
	if p.status == next {
		return
	}
	p.logger.Info("probe status transition",
		zap.String("from", string(p.status)),
		zap.String("to", string(next)),
	)
	p.status = next
	metrics.SetProbeStatus(next == StatusHealthy)
	if p.onTransition != nil {
		p.onTransition(next)
	}
}

// Status returns the current reported status.
func (p *Prober) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
