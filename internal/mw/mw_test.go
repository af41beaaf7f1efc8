package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCache(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.Use(Cache(store, time.Minute))
	r.GET("/schedule", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})
	r.DELETE("/schedule", Invalidate(store), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule", nil))
		return w
	}

	first := get()
	assert.JSONEq(t, `{"calls":1}`, first.Body.String())
	assert.Empty(t, first.Header().Get("X-Cache"))

	second := get()
	assert.JSONEq(t, `{"calls":1}`, second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/schedule", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.JSONEq(t, `{"calls":2}`, get().Body.String())
}

func TestCacheKey(t *testing.T) {
	testCases := []struct {
		target string
		want   string
	}{
		{"/api/sessions", "/api/sessions"},
		{"/api/sessions?status=queued", "/api/sessions?status=queued"},
		{"/api/sessions?b=2&a=1", "/api/sessions?a=1&b=2"},
	}
	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			assert.Equal(t, tc.want, cacheKey(httptest.NewRequest(http.MethodGet, tc.target, nil)))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2, "X-Forwarded-For"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("2.2.2.2"), "each client has its own bucket")
}
