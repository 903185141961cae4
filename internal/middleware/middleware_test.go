package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Rorqualx/proxydl/internal/config"
	"github.com/Rorqualx/proxydl/internal/types"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/v1", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Error("Expected Content-Type application/json")
	}

	var resp types.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if resp.Status != types.StatusError || resp.Message == "" || resp.Version == "" {
		t.Errorf("error response = %+v", resp)
	}
}

func TestRecoveryMiddlewareNoPanic(t *testing.T) {
	w := httptest.NewRecorder()
	Recovery(okHandler(nil)).ServeHTTP(w, httptest.NewRequest("GET", "/v1", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestLoggingMiddlewareCapturesStatusCode(t *testing.T) {
	var captured int
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		captured = w.(*responseWriter).statusCode
	})

	w := httptest.NewRecorder()
	Logging(inner).ServeHTTP(w, httptest.NewRequest("POST", "/v1?token=abc", nil))

	if w.Code != http.StatusTeapot || captured != http.StatusTeapot {
		t.Errorf("status = %d, captured = %d", w.Code, captured)
	}
}

func TestRequestID(t *testing.T) {
	var logger *zerolog.Logger
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger = zerolog.Ctx(r.Context())
	})
	handler := RequestID(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/v1", nil))
	id := w.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("generated request ID %q is not a UUID", id)
	}
	if logger == nil || logger.GetLevel() == zerolog.Disabled {
		t.Error("request context should carry a logger")
	}

	want := uuid.NewString()
	req := httptest.NewRequest("POST", "/v1", nil)
	req.Header.Set(RequestIDHeader, want)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != want {
		t.Errorf("request ID = %q, want client supplied %q", got, want)
	}

	req = httptest.NewRequest("POST", "/v1", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got == "<script>" {
		t.Error("invalid client request ID should be replaced")
	}
}

func TestDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})

	start := time.Now()
	Deadline(time.Minute)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1", nil))

	if !ok {
		t.Fatal("request context has no deadline")
	}
	if d := deadline.Sub(start); d < 59*time.Second || d > 61*time.Second {
		t.Errorf("deadline in %s, want about 1m", d)
	}
}

func TestDeadlineCancelsContext(t *testing.T) {
	var err error
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		err = r.Context().Err()
	})

	Deadline(20*time.Millisecond)(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1", nil))
	if err != context.DeadlineExceeded {
		t.Errorf("context error = %v, want DeadlineExceeded", err)
	}
}

func TestChainMiddleware(t *testing.T) {
	order := []string{}

	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+"-before")
				next.ServeHTTP(w, r)
				order = append(order, name+"-after")
			})
		}
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	Chain(mw("m1"), mw("m2"))(inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	expected := []string{"m1-before", "m2-before", "handler", "m2-after", "m1-after"}
	if len(order) != len(expected) {
		t.Fatalf("Expected %d calls, got %d", len(expected), len(order))
	}
	for i, exp := range expected {
		if order[i] != exp {
			t.Errorf("At position %d: expected %q, got %q", i, exp, order[i])
		}
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	const key = "test-secret-key-12345"

	tests := []struct {
		name     string
		enabled  bool
		path     string
		header   map[string]string
		query    string
		wantCode int
	}{
		{"disabled", false, "/v1", nil, "", http.StatusOK},
		{"valid header", true, "/v1", map[string]string{"X-API-Key": key}, "", http.StatusOK},
		{"valid bearer", true, "/v1", map[string]string{"Authorization": "Bearer " + key}, "", http.StatusOK},
		{"invalid key", true, "/v1", map[string]string{"X-API-Key": "wrong-key"}, "", http.StatusUnauthorized},
		{"missing key", true, "/v1", nil, "", http.StatusUnauthorized},
		{"query param rejected", true, "/v1", nil, "?api_key=" + key, http.StatusUnauthorized},
		{"basic auth rejected", true, "/v1", map[string]string{"Authorization": "Basic " + key}, "", http.StatusUnauthorized},
		{"health bypass", true, "/health", nil, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{APIKeyEnabled: tt.enabled, APIKey: key}
			called := false
			handler := APIKey(cfg)(okHandler(&called))

			req := httptest.NewRequest("POST", tt.path+tt.query, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if called != (tt.wantCode == http.StatusOK) {
				t.Errorf("inner handler called = %v", called)
			}
		})
	}
}

func TestAPIKeyMiddlewareEmptyConfigKey(t *testing.T) {
	cfg := &config.Config{APIKeyEnabled: true, APIKey: ""}
	called := false
	handler := APIKey(cfg)(okHandler(&called))

	req := httptest.NewRequest("POST", "/v1", nil)
	req.Header.Set("X-API-Key", "")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if called || w.Code != http.StatusUnauthorized {
		t.Errorf("empty configured key must not authorize an empty request key, status = %d", w.Code)
	}
}

func TestMaskIP(t *testing.T) {
	tests := map[string]string{
		"192.168.1.77:5050":    "192.168.1.0/24",
		"10.0.0.9":             "10.0.0.0/24",
		"[2001:db8:1:2::7]:80": "2001:db8:1::/48",
		"not-an-ip":            "[redacted]",
	}
	for in, want := range tests {
		if got := maskIP(in); got != want {
			t.Errorf("maskIP(%q) = %q, want %q", in, got, want)
		}
	}
}
