package http_api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/stockvn/paygate/internal/models"
)

const (
	ctxUserID    = "user_id"
	ctxRequestID = "request_id"

	rateLimitWindow = time.Minute
)

// requestLog tags every request with an id and hands a summary to the recorder once served.
func (s *HTTPServer) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 26 {
			requestID = ulid.Make().String()
		}
		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		latency := time.Since(start)
		s.logger.Debug("Request served", "request_id", requestID, "method", c.Request.Method,
			"path", path, "status", c.Writer.Status(), "latency", latency)
		if s.opts.Requests == nil {
			return
		}
		s.opts.Requests.Record(&models.RequestLog{
			RequestID: requestID,
			Method:    c.Request.Method,
			Path:      path,
			Status:    c.Writer.Status(),
			LatencyMs: latency.Milliseconds(),
			ClientIP:  c.ClientIP(),
			UserID:    c.GetString(ctxUserID),
		})
	}
}

// authRequired resolves the bearer token to a user id.
func (s *HTTPServer) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "unauthorized",
				"error":   "Missing bearer token",
			})
			return
		}
		userID, err := s.paygate.Authenticate(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug("Rejected bearer token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "unauthorized",
				"error":   "Invalid or expired token",
			})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// webhookAuth checks the gateway's "Authorization: Apikey <key>" header when a key is configured.
func (s *HTTPServer) webhookAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.WebhookAPIKey == "" {
			c.Next()
			return
		}
		scheme, key, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Apikey") || strings.TrimSpace(key) != s.opts.WebhookAPIKey {
			s.logger.Warn("Rejected webhook with bad API key", "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "unauthorized",
				"error":   "Invalid API key",
			})
			return
		}
		c.Next()
	}
}

// rateLimit counts requests per user (or client IP) and route in fixed one-minute windows.
// Redis failures let the request through.
func (s *HTTPServer) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Redis == nil || s.opts.RateLimitPerMinute <= 0 {
			c.Next()
			return
		}
		subject := c.GetString(ctxUserID)
		if subject == "" {
			subject = c.ClientIP()
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := fmt.Sprintf("rate_limit:%s:%s", path, subject)

		ctx := c.Request.Context()
		count, err := s.opts.Redis.Incr(ctx, key).Result()
		if err != nil {
			s.logger.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}
		if count == 1 {
			s.opts.Redis.Expire(ctx, key, rateLimitWindow)
		}
		if count > int64(s.opts.RateLimitPerMinute) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"code":    "rate_limited",
				"error":   "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
