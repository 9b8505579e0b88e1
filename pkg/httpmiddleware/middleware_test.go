package httpmiddleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	do(Wrap(okHandler(), mark("outer"), mark("inner")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "client-42")
	w = do(h, r)
	assert.Equal(t, "client-42", seen)
	assert.Equal(t, "client-42", w.Header().Get(RequestIDHeader))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "bad\x01id")
	do(h, r)
	assert.NotEqual(t, "bad\x01id", seen)

	assert.False(t, validRequestID(strings.Repeat("a", 129)))
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		InjectLogger(zap.New(core)),
		Recovery(),
	)

	w := do(h, httptest.NewRequest(http.MethodGet, "/api/product", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.EqualValues(t, http.StatusInternalServerError, body["code"])
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRecoveryAbortHandler(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) }))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("inside")
	}), RequestID(), InjectLogger(zap.New(core)))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-1")
	do(h, r)

	entries := logs.FilterMessage("inside").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestLogRequests(t *testing.T) {
	mux := chi.NewRouter()
	mux.Get("/api/product/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	find := MakeRouteFinder(mux)

	core, logs := observer.New(zapcore.DebugLevel)
	h := Wrap(mux, InjectLogger(zap.New(core)), LogRequests(find))
	do(h, httptest.NewRequest(http.MethodGet, "/api/product/7", nil))

	entries := logs.FilterMessage("Request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /api/product/{id}", fields["route"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
}

func TestMakeRouteFinder(t *testing.T) {
	mux := chi.NewRouter()
	mux.Method(http.MethodPost, "/api/cart/{id}/items", okHandler())
	find := MakeRouteFinder(mux)

	assert.Equal(t, "POST /api/cart/{id}/items", find(httptest.NewRequest(http.MethodPost, "/api/cart/s1/items", nil)))
	assert.Equal(t, "", find(httptest.NewRequest(http.MethodGet, "/api/cart/s1/items", nil)), "method must match")
	assert.Equal(t, "", find(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
	assert.Equal(t, "unknown", routeName(find, httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestInstrumentAndLabeler(t *testing.T) {
	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/api/product", okHandler())
	find := MakeRouteFinder(mux)

	h := Wrap(mux, Instrument("checkout-api", find, noopTelemetry{}), Labeler(find))
	w := do(h, httptest.NewRequest(http.MethodGet, "/api/product", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{Origins: []string{"https://shop.example"}, MaxAge: 600})(okHandler())

	t.Run("Preflight", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
		r.Header.Set("Origin", "https://SHOP.example")
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		w := do(h, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	})
	t.Run("Disallowed", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/product", nil)
		r.Header.Set("Origin", "https://evil.example")
		w := do(h, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Values("Vary"), "Origin")
	})
	t.Run("Actual", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/product", nil)
		r.Header.Set("Origin", "https://shop.example")
		w := do(h, r)
		assert.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), RequestIDHeader)
	})
	t.Run("CredentialsEchoOrigin", func(t *testing.T) {
		h := CORS(CORSConfig{AllowCredentials: true})(okHandler())
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://any.example")
		w := do(h, r)
		assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := RateLimit(ctx, RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	req := func(addr string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		return r
	}

	for range 2 {
		w := do(h, req("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(h, req("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rate limit exceeded", body["message"])

	assert.Equal(t, http.StatusOK, do(h, req("10.0.0.2:1234")).Code, "independent client")

	t.Run("RotatingAPIKey", func(t *testing.T) {
		for i := range 3 {
			r := req("10.0.0.3:1234")
			r.Header.Set(APIKeyHeader, fmt.Sprintf("random-%d", i))
			w := do(h, r)
			if i < 2 {
				require.Equal(t, http.StatusOK, w.Code)
				continue
			}
			assert.Equal(t, http.StatusTooManyRequests, w.Code, "a new api_key must not open a new bucket")
		}
	})
}

func TestClientKey(t *testing.T) {
	for _, tt := range []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"APIKeyIgnored", map[string]string{APIKeyHeader: "k1", "X-Forwarded-For": "1.1.1.1"}, "ip:1.1.1.1"},
		{"APIKeyWithoutProxy", map[string]string{APIKeyHeader: "k1"}, "ip:192.0.2.1"},
		{"ForwardedFor", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, "ip:203.0.113.50"},
		{"RealIP", map[string]string{"X-Real-IP": "198.51.100.7"}, "ip:198.51.100.7"},
		{"RemoteAddr", nil, "ip:192.0.2.1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientKey(r))
		})
	}
}

func TestEvict(t *testing.T) {
	s := newLimiterSet(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()
	s.get("a", now)
	s.get("b", now.Add(50*time.Second))

	s.evict(now.Add(90 * time.Second))
	assert.NotContains(t, s.visitors, "a")
	assert.Contains(t, s.visitors, "b")
}
