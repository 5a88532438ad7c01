package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPRateLimiter_Bounded(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1, 2, time.Minute)

	first := l.GetLimiter("a")
	assert.Same(t, first, l.GetLimiter("a"))

	l.GetLimiter("b")
	l.GetLimiter("c")
	assert.Equal(t, 2, l.Len())
}

func TestIPRateLimiter_Expires(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1, 10, 20*time.Millisecond)

	first := l.GetLimiter("a")
	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 10*time.Millisecond)
	assert.NotSame(t, first, l.GetLimiter("a"))
}

func TestCacheAndFlush(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	hits := 0

	r := gin.New()
	r.Use(FlushOnWrite(store))
	r.GET("/items", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/items", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/fail", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}

	assert.JSONEq(t, `{"hits":1}`, do(http.MethodGet, "/items").Body.String())
	cached := do(http.MethodGet, "/items")
	assert.JSONEq(t, `{"hits":1}`, cached.Body.String())
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", cached.Header().Get("Content-Type"))

	do(http.MethodPost, "/fail")
	assert.JSONEq(t, `{"hits":1}`, do(http.MethodGet, "/items").Body.String())

	do(http.MethodPost, "/items")
	assert.JSONEq(t, `{"hits":2}`, do(http.MethodGet, "/items").Body.String())
}

func TestMetrics(t *testing.T) {
	r := gin.New()
	r.Use(Metrics())
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/things/:id", "204"))
	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/"+id, nil))
	}
	assert.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/things/:id", "204")))
}
