// Package middleware provides Gin middleware for the Synthex AI Gateway:
// tenant extraction, request logging, rate limiting, and admin API key auth.
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// TenantHeader identifies the calling tenant. Body-level tenant_id, when
// present, takes precedence in the route handler.
const TenantHeader = "X-Tenant-ID"

// Tenant resolves the tenant from the request header and stores it in the
// Gin context under "tenant_id". Missing tenants fall back to "default" so
// anonymous traffic still accrues against a ledger.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := c.GetHeader(TenantHeader)
		if tenant == "" {
			tenant = "default"
		}
		c.Set("tenant_id", tenant)
		c.Next()
	}
}

// Logging logs request and response metadata including method, path, status
// code, latency, and client IP.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		bodySize := c.Writer.Size()

		if query != "" {
			path = path + "?" + query
		}

		switch {
		case statusCode >= 500:
			log.Errorf("%s %s | %d | %v | %s | %d bytes | errors: %s",
				method, path, statusCode, latency, clientIP, bodySize, c.Errors.ByType(gin.ErrorTypePrivate).String())
		case statusCode >= 400:
			log.Warnf("%s %s | %d | %v | %s | %d bytes",
				method, path, statusCode, latency, clientIP, bodySize)
		default:
			log.Infof("%s %s | %d | %v | %s | %d bytes",
				method, path, statusCode, latency, clientIP, bodySize)
		}
	}
}

// rateLimitLua atomically increments the counter and sets TTL only on the
// first request in the window, so subsequent requests never extend the window.
var rateLimitLua = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// RateLimit enforces a fixed-window per-tenant request limit backed by Redis.
// A nil client disables limiting; Redis errors let the request through so a
// cache outage cannot take the dispatch path down with it.
func RateLimit(client *redis.Client, maxRequests int64, window time.Duration) gin.HandlerFunc {
	windowSeconds := int(window / time.Second)
	return func(c *gin.Context) {
		if client == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		tenant := c.GetString("tenant_id")
		if tenant == "" {
			tenant = c.ClientIP()
		}

		count, err := rateLimitLua.Run(c.Request.Context(), client,
			[]string{"ratelimit:" + tenant}, windowSeconds).Int64()
		if err != nil {
			log.Warnf("middleware: rate limit check for tenant=%s: %v", tenant, err)
			c.Next()
			return
		}

		if count > maxRequests {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please slow down.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AdminAuth validates the X-API-Key header against the configured admin key.
// An empty configured key disables the management API entirely rather than
// leaving it open.
func AdminAuth(adminKey string) gin.HandlerFunc {
	want := sha256.Sum256([]byte(adminKey))
	return func(c *gin.Context) {
		if adminKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "management_api_disabled",
				"message": "Set SYNTHEX_ADMIN_API_KEY to enable the management API.",
			})
			c.Abort()
			return
		}

		got := sha256.Sum256([]byte(c.GetHeader("X-API-Key")))
		if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid admin API key.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
