package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func lookup(t *testing.T, r *Registry, name string) *probe {
	t.Helper()
	for _, p := range r.probes {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("probe %q not registered", name)
	return nil
}

func serve(t *testing.T, r *Registry, kind Kind) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r.Handler(kind).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestFailureThreshold(t *testing.T) {
	r := New(time.Second, Check{
		Name: "db",
		Kind: Liveness,
		Func: func(context.Context) error { return errors.New("connection refused") },
	})
	p := lookup(t, r, "db")
	ctx := context.Background()

	p.run(ctx)
	p.run(ctx)
	code, _ := serve(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code, "below threshold")

	p.run(ctx)
	code, body := serve(t, r, Liveness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["db"])
}

func TestRecovery(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	r := New(time.Second, Check{
		Name:             "flaky",
		Kind:             Liveness,
		FailureThreshold: 1,
		Func: func(context.Context) error {
			if fail.Load() {
				return errors.New("down")
			}
			return nil
		},
	})
	p := lookup(t, r, "flaky")

	p.run(context.Background())
	assert.Contains(t, r.Failures(Liveness), "flaky")

	fail.Store(false)
	p.run(context.Background())
	assert.Empty(t, r.Failures(Liveness))
}

func TestReadinessGate(t *testing.T) {
	r := New(time.Second, Check{Name: "db", Kind: Readiness, Func: PingCheck(pingerFunc(func(context.Context) error { return nil }))})

	code, body := serve(t, r, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	r.SetReady(true)
	code, body = serve(t, r, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// Liveness ignores the readiness gate.
	r.SetReady(false)
	code, _ = serve(t, r, Liveness)
	assert.Equal(t, http.StatusOK, code)
}

func TestKindsAreSeparate(t *testing.T) {
	r := New(time.Second,
		Check{Name: "db", Kind: Readiness, FailureThreshold: 1, Func: func(context.Context) error { return errors.New("down") }},
		Check{Name: "goroutines", Kind: Liveness, Func: GoroutineCountCheck(1 << 20)},
	)
	r.SetReady(true)
	for _, p := range r.probes {
		p.run(context.Background())
	}

	assert.Empty(t, r.Failures(Liveness))
	assert.Equal(t, map[string]string{"db": "down"}, r.Failures(Readiness))
}

func TestCheckTimeout(t *testing.T) {
	r := New(time.Second, Check{
		Name:             "slow",
		Kind:             Readiness,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	lookup(t, r, "slow").run(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), r.Failures(Readiness)["slow"])
}

func TestRun(t *testing.T) {
	var calls atomic.Int32
	r := New(5*time.Millisecond, Check{
		Name: "count",
		Kind: Liveness,
		Func: func(context.Context) error {
			calls.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1<<20)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestPingCheck(t *testing.T) {
	err := PingCheck(pingerFunc(func(context.Context) error { return errors.New("refused") }))(context.Background())
	require.ErrorContains(t, err, "refused")
}
