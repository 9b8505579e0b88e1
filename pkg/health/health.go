// Package health serves liveness and readiness probes backed by checks that
// run periodically in the background.
//
// A check flips to unhealthy only after FailureThreshold consecutive failures
// and recovers on the first success, so a single slow ping does not pull the
// instance out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Kind selects the probe a check contributes to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

// CheckFunc returns nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Check describes a single registered check.
type Check struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Func    CheckFunc
	// FailureThreshold defaults to 3.
	FailureThreshold int
}

type probe struct {
	Check
	fails   int // owned by the probe goroutine
	healthy atomic.Bool
	lastErr atomic.Pointer[string]
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	if err := p.Func(ctx); err != nil {
		msg := err.Error()
		p.lastErr.Store(&msg)
		p.fails++
		if p.fails >= p.FailureThreshold {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.lastErr.Store(nil)
	p.healthy.Store(true)
}

// Registry owns the checks and exposes them over HTTP.
type Registry struct {
	interval time.Duration
	probes   []*probe
	ready    atomic.Bool
}

// New registers checks. Checks start healthy; the registry starts not ready
// until SetReady(true) is called.
func New(interval time.Duration, checks ...Check) *Registry {
	r := &Registry{interval: interval}
	for _, c := range checks {
		if c.FailureThreshold <= 0 {
			c.FailureThreshold = 3
		}
		if c.Timeout <= 0 {
			c.Timeout = time.Second
		}
		p := &probe{Check: c}
		p.healthy.Store(true)
		r.probes = append(r.probes, p)
	}
	return r
}

// SetReady toggles the manual readiness gate. Shutdown clears it so load
// balancers stop routing before the server drains.
func (r *Registry) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Run executes every check immediately and then on each interval until ctx
// is cancelled.
func (r *Registry) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range r.probes {
		g.Go(func() error {
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// Failures returns the unhealthy checks of kind keyed by name.
func (r *Registry) Failures(kind Kind) map[string]string {
	failures := make(map[string]string)
	for _, p := range r.probes {
		if p.Kind != kind || p.healthy.Load() {
			continue
		}
		msg := "check is unhealthy"
		if last := p.lastErr.Load(); last != nil {
			msg = *last
		}
		failures[p.Name] = msg
	}
	if kind == Readiness && !r.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	return failures
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe of kind: 200 {"status":"ok"} or 503 with the
// failing checks.
func (r *Registry) Handler(kind Kind) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := statusResponse{Status: "ok"}
		status := http.StatusOK
		if failures := r.Failures(kind); len(failures) > 0 {
			resp = statusResponse{Status: "unhealthy", Checks: failures}
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	})
}
