package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"rollcall/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTokenBucketLimitsAndRefills(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60)
	l.now = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("first two requests must pass")
	}
	if l.allow("a") {
		t.Fatal("third request must be limited")
	}
	if !l.allow("b") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(time.Minute)
	if !l.allow("a") || !l.allow("a") {
		t.Fatal("bucket must refill to capacity after a minute")
	}
	if l.allow("a") {
		t.Fatal("refill must be capped at capacity")
	}
}

func TestTokenBucketMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(NewTokenBucket(1, 1).GinMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	r := gin.New()
	r.Use(NewTokenBucket(0, 0).GinMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: code %d", i, w.Code)
		}
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(AccessLog(zap.New(core), m, "/metrics"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/ok", "/boom", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if logs.Len() != 2 {
		t.Fatalf("logged %d entries, want 2", logs.Len())
	}
	if e := logs.All()[1]; e.Level != zap.ErrorLevel {
		t.Fatalf("5xx logged at %s", e.Level)
	}
	if n := testutil.CollectAndCount(m.RequestDuration); n != 2 {
		t.Fatalf("observed %d series, want 2", n)
	}
}
