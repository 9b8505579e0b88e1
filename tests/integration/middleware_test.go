//go:build integration

package integration

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

func send(t *testing.T, method, path string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestRequestID(t *testing.T) {
	t.Run("Generated", func(t *testing.T) {
		resp := send(t, http.MethodGet, "/livez", nil)
		defer resp.Body.Close()

		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("X-Request-ID header not present")
		}
	})
	t.Run("Echoed", func(t *testing.T) {
		const id = "checkout-req-0001"
		resp := send(t, http.MethodGet, "/api/product", map[string]string{"X-Request-ID": id})
		defer resp.Body.Close()

		if got := resp.Header.Get("X-Request-ID"); got != id {
			t.Errorf("X-Request-ID: got %q, want %q", got, id)
		}
	})
	t.Run("InvalidReplaced", func(t *testing.T) {
		resp := send(t, http.MethodGet, "/livez", map[string]string{"X-Request-ID": strings.Repeat("x", 300)})
		defer resp.Body.Close()

		if got := resp.Header.Get("X-Request-ID"); got == "" || len(got) > 128 {
			t.Errorf("X-Request-ID: got %q, want a generated id", got)
		}
	})
}

func TestCORS(t *testing.T) {
	const origin = "http://shop.example.com"

	t.Run("Preflight", func(t *testing.T) {
		resp := send(t, http.MethodOptions, "/api/cart", map[string]string{
			"Origin":                         origin,
			"Access-Control-Request-Method":  http.MethodPost,
			"Access-Control-Request-Headers": "api_key",
		})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") == "" {
			t.Error("Access-Control-Allow-Origin header not present")
		}
		if methods := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(methods, http.MethodPatch) {
			t.Errorf("Access-Control-Allow-Methods: got %q, want PATCH listed", methods)
		}
		if allowed := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(allowed, "api_key") {
			t.Errorf("Access-Control-Allow-Headers: got %q, want api_key listed", allowed)
		}
	})
	t.Run("Simple", func(t *testing.T) {
		resp := send(t, http.MethodGet, "/api/product", map[string]string{"Origin": origin})
		defer resp.Body.Close()

		if resp.Header.Get("Access-Control-Allow-Origin") == "" {
			t.Error("Access-Control-Allow-Origin header not present")
		}
		if expose := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(expose, "X-Request-ID") {
			t.Errorf("Access-Control-Expose-Headers: got %q, want X-Request-ID listed", expose)
		}
	})
}

func TestRateLimit(t *testing.T) {
	read := func(t *testing.T, headers map[string]string) (limit, remaining int) {
		t.Helper()
		resp := send(t, http.MethodGet, "/api/product", headers)
		defer resp.Body.Close()

		var err error
		if limit, err = strconv.Atoi(resp.Header.Get("X-RateLimit-Limit")); err != nil {
			t.Fatalf("X-RateLimit-Limit: %v", err)
		}
		if remaining, err = strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err != nil {
			t.Fatalf("X-RateLimit-Remaining: %v", err)
		}
		return limit, remaining
	}

	t.Run("Headers", func(t *testing.T) {
		limit, remaining := read(t, nil)
		if limit <= 0 || remaining >= limit {
			t.Errorf("limit %d, remaining %d", limit, remaining)
		}
	})
	// A fresh API key on every request still draws from the client's bucket.
	t.Run("RotatingKeysShareBucket", func(t *testing.T) {
		_, first := read(t, map[string]string{"api_key": "rotating-key-1"})
		_, second := read(t, map[string]string{"api_key": "rotating-key-2"})
		if second >= first {
			t.Errorf("remaining went from %d to %d, want it to drop", first, second)
		}
	})
}
