package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// snapshot is a rendered response kept in the cache.
type snapshot struct {
	status int
	header http.Header
	body   []byte
}

// recorder tees everything the handler writes into buf.
type recorder struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// cacheKey identifies a GET by path and canonical query, so parameter
// order does not split entries.
func cacheKey(req *http.Request) string {
	q := req.URL.Query().Encode()
	if q == "" {
		return req.URL.Path
	}
	return req.URL.Path + "?" + q
}

// Cache serves repeated GET requests from store for ttl. Only 200
// responses are kept.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		if v, ok := store.Get(key); ok {
			snap := v.(snapshot)
			h := c.Writer.Header()
			for k, vals := range snap.header {
				h[k] = vals
			}
			h.Set("X-Cache", "HIT")
			c.Writer.WriteHeader(snap.status)
			_, _ = c.Writer.Write(snap.body)
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		if rec.Status() == http.StatusOK {
			store.Set(key, snapshot{
				status: rec.Status(),
				header: rec.Header().Clone(),
				body:   rec.buf.Bytes(),
			}, ttl)
		}
	}
}

// Invalidate flushes the cache after a write request succeeds.
func Invalidate(store *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() < http.StatusBadRequest {
			store.Flush()
		}
	}
}
