package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRateEngine(cfg RateLimitConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RateLimit(cfg))
	engine.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func doPing(engine *gin.Engine, addr string) int {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.RemoteAddr = addr
	engine.ServeHTTP(w, r)
	return w.Code
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	engine := newRateEngine(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})

	if code := doPing(engine, "10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	if code := doPing(engine, "10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("second request = %d, want 200", code)
	}
	if code := doPing(engine, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
}

func TestRateLimitIsolatesClients(t *testing.T) {
	engine := newRateEngine(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})

	if code := doPing(engine, "10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("first client = %d, want 200", code)
	}
	if code := doPing(engine, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("exhausted client = %d, want 429", code)
	}
	if code := doPing(engine, "10.0.0.2:1234"); code != http.StatusOK {
		t.Fatalf("fresh client = %d, want 200", code)
	}
}

func TestDefaultRateLimitConfigAllowsTraffic(t *testing.T) {
	engine := newRateEngine(DefaultRateLimitConfig())

	for i := 0; i < 10; i++ {
		if code := doPing(engine, "10.0.0.3:1234"); code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, code)
		}
	}
}
