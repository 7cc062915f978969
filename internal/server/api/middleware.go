package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"cove/internal/server/auth"
	"cove/internal/server/metrics"
	"cove/internal/server/ratelimit"
)

// Context keys for values set by middleware.
const (
	ctxUsername  = "cove.username"
	ctxRequestID = "cove.request_id"
)

// RequestLogger returns an echo middleware that logs requests using slog.
// Each request gets a correlation ID carried in the response headers.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			reqID := uuid.NewString()
			c.Set(ctxRequestID, reqID)
			c.Response().Header().Set("X-Request-Id", reqID)

			err := next(c)

			req := c.Request()
			res := c.Response()

			slog.Info("request",
				"request_id", reqID,
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"latency_ms", time.Since(start).Milliseconds(),
				"ip", c.RealIP(),
				"user_agent", req.UserAgent(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}

// RateLimit enforces a per-identity request budget for one route. The
// identity is the authenticated username when a valid key is visible at
// this stage, otherwise the client's network address.
func RateLimit(limiter *ratelimit.Limiter, keys *auth.KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := c.RealIP()
			if key := auth.ExtractKey(c.Request()); key != "" {
				if user, err := keys.Authenticate(key); err == nil {
					identity = user
				}
			}

			d := limiter.Allow(identity)
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Response().Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				metrics.RateLimitedTotal.Inc()
				slog.Warn("rate limit exceeded", "identity", identity, "path", c.Request().URL.Path)
				return respondError(c, http.StatusTooManyRequests, CodeRateLimited,
					"too many requests", "retry after the window resets")
			}
			return next(c)
		}
	}
}

// RequireKey authenticates the request up front and stores the username
// in the context. Routes whose key may ride inside the request body must
// use DeferableKey instead.
func RequireKey(keys *auth.KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := keys.Authenticate(auth.ExtractKey(c.Request()))
			if err != nil {
				return mapError(c, err)
			}
			c.Set(ctxUsername, user)
			return next(c)
		}
	}
}

// DeferableKey tries to authenticate from the sources visible before the
// body is parsed. A key that is present but invalid fails immediately;
// an absent key defers the decision to the handler, which re-checks once
// form fields are available.
func DeferableKey(keys *auth.KeyStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := auth.ExtractKey(c.Request())
			if key == "" {
				return next(c)
			}
			user, err := keys.Authenticate(key)
			if err != nil {
				return mapError(c, err)
			}
			c.Set(ctxUsername, user)
			return next(c)
		}
	}
}

// usernameFromContext returns the authenticated username, if any.
func usernameFromContext(c echo.Context) (string, bool) {
	user, ok := c.Get(ctxUsername).(string)
	return user, ok && user != ""
}
