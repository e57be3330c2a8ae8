package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/pkg/apperrors"
)

// ErrorHandler translates domain errors into the JSON error envelope. Wired
// as the fiber app's ErrorHandler so handlers just return errors.
func ErrorHandler(logger *zap.Logger, metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			err = apperrors.NewDomainError(codeForStatus(fiberErr.Code), fiberErr.Message, fiberErr.Code, nil)
		}

		domainErr := apperrors.ToDomainError(err)
		metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
		if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("code", domainErr.Code),
				zap.Error(err),
			)
		}

		body := fiber.Map{
			"code":    domainErr.Code,
			"message": domainErr.Message,
		}
		if len(domainErr.Details) > 0 {
			body["details"] = domainErr.Details
		}
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": body})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed, fiber.StatusBadRequest:
		return "VALIDATION_ERROR"
	case fiber.StatusRequestTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// RequestTimeout bounds the request context so slow queries are cut off.
func RequestTimeout(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if timeout <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// RateLimiter applies a fixed-window counter in Redis keyed by principal id
// when authenticated, falling back to client IP. Redis failures let traffic
// through rather than blocking it.
type RateLimiter struct {
	client  *redis.Client
	logger  *zap.Logger
	enabled bool
}

// NewRateLimiter builds the limiter. A nil client disables limiting.
func NewRateLimiter(client *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client:  client,
		logger:  logger,
		enabled: cfg.Enabled && client != nil,
	}
}

// Limit returns a middleware allowing at most max requests per window for
// the named scope.
func (rl *RateLimiter) Limit(scope string, max int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.enabled || max <= 0 {
			return c.Next()
		}

		bucket := time.Now().Unix() / int64(window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, limiterIdentity(c), bucket)

		count, err := rl.client.Incr(c.UserContext(), key).Result()
		if err != nil {
			rl.logger.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if count == 1 {
			rl.client.Expire(c.UserContext(), key, window)
		}
		if count > int64(max) {
			return apperrors.NewRateLimited("too many requests, slow down")
		}
		return c.Next()
	}
}

func limiterIdentity(c *fiber.Ctx) string {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		return principal.ID
	}
	return c.IP()
}

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// Idempotency replays cached responses for repeated POSTs carrying the same
// Idempotency-Key header. Only successful responses are cached.
type Idempotency struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewIdempotency builds the middleware helper. A nil client disables replay.
func NewIdempotency(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Idempotency {
	return &Idempotency{client: client, ttl: ttl, logger: logger}
}

// Handle caches the first successful response per key and replays it for
// retries within the TTL.
func (i *Idempotency) Handle() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("Idempotency-Key")
		if key == "" || i.client == nil {
			return c.Next()
		}

		cacheKey := fmt.Sprintf("idempotency:%s:%s", limiterIdentity(c), key)

		raw, err := i.client.Get(c.UserContext(), cacheKey).Bytes()
		if err == nil {
			var cached cachedResponse
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				c.Set("X-Idempotent-Replay", "true")
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(cached.Status).Send(cached.Body)
			}
		} else if !errors.Is(err, redis.Nil) {
			i.logger.Warn("idempotency cache unavailable", zap.Error(err))
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status >= 200 && status < 300 {
			payload, marshalErr := json.Marshal(cachedResponse{
				Status: status,
				Body:   c.Response().Body(),
			})
			if marshalErr == nil {
				if setErr := i.client.Set(c.UserContext(), cacheKey, payload, i.ttl).Err(); setErr != nil {
					i.logger.Warn("idempotency cache write failed", zap.Error(setErr))
				}
			}
		}
		return nil
	}
}
