package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestContext(method, path string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestID_Generated(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/v1/conversations/active", "")

	h := RequestID()(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rid, _ := c.Get("request_id").(string)
	if rid == "" {
		t.Fatal("expected request_id to be set")
	}
	if rec.Header().Get("X-Request-ID") != rid {
		t.Errorf("expected response header to echo request id %q", rid)
	}
}

func TestRequestID_HonorsIncoming(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/health", "")
	c.Request().Header.Set("X-Request-ID", "req-123")

	h := RequestID()(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rid, _ := c.Get("request_id").(string); rid != "req-123" {
		t.Errorf("expected req-123, got %q", rid)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	c, _ := newTestContext(http.MethodGet, "/api/v1/conversations", "")

	h := Recovery(logger)(func(c echo.Context) error {
		panic("boom")
	})

	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := newTestContext(http.MethodGet, "/api/v1/evaluations/today", "")
		if err := h(c); err != nil {
			t.Fatalf("request %d unexpectedly limited: %v", i, err)
		}
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	h := mw(okHandler)

	c, _ := newTestContext(http.MethodGet, "/api/v1/evaluations/today", "")
	if err := h(c); err != nil {
		t.Fatalf("first request unexpectedly limited: %v", err)
	}

	c2, _ := newTestContext(http.MethodGet, "/api/v1/evaluations/today", "")
	err := h(c2)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestBodyLimit_RejectsOversizedContentLength(t *testing.T) {
	mw := BodyLimit("10", "20")
	h := mw(okHandler)

	c, rec := newTestContext(http.MethodPost, "/api/v1/evaluations", strings.Repeat("x", 50))
	c.Request().ContentLength = 50

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestBodyLimit_UploadPathGetsLargerLimit(t *testing.T) {
	mw := BodyLimit("10", "100")
	h := mw(okHandler)

	c, rec := newTestContext(http.MethodPost, "/api/v1/sessions", strings.Repeat("x", 50))
	c.Request().ContentLength = 50

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 under the upload limit, got %d", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]int64{
		"1M":   1 << 20,
		"512K": 512 << 10,
		"2G":   2 << 30,
		"100":  100,
		"":     1 << 20,
		"bad":  1 << 20,
	}
	for in, want := range cases {
		if got := parseLimit(in); got != want {
			t.Errorf("parseLimit(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRequestTimeout_ExpiresSlowHandler(t *testing.T) {
	mw := RequestTimeout(20 * time.Millisecond)
	h := mw(func(c echo.Context) error {
		select {
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		case <-time.After(500 * time.Millisecond):
			return c.String(http.StatusOK, "too late")
		}
	})

	c, rec := newTestContext(http.MethodPost, "/api/v1/conversations", `{"firstMessage":"hello"}`)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", rec.Code)
	}
}

func TestRequestTimeout_FastHandlerPasses(t *testing.T) {
	mw := RequestTimeout(time.Second)
	h := mw(okHandler)

	c, rec := newTestContext(http.MethodGet, "/health", "")
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
