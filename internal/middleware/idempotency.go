package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// TwilioIdempotencyHeader is set by Twilio on every webhook delivery and
	// kept identical across retries of the same event.
	TwilioIdempotencyHeader = "I-Twilio-Idempotency-Token"

	idempotencyPrefix = "webhook:v1:"
	inProgressMarker  = "__in_progress__"
	cacheOpTimeout    = 2 * time.Second
)

type storedResponse struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency replays the stored response for a redelivered webhook, keyed by
// the value of header. Requests without the header, or with no cache
// configured, pass straight through. Failed handler runs (errors or 5xx) are
// not stored, so the sender's retry is processed again.
func Idempotency(cache *redis.Client, header string, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(header)
		if cache == nil || key == "" || c.Method() != fiber.MethodPost {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer cancel()

		cacheKey := idempotencyPrefix + key

		reserved, err := cache.SetNX(ctx, cacheKey, inProgressMarker, ttl).Result()
		if err != nil {
			logger.Error("webhook dedup reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusServiceUnavailable, "dedup store failure")
		}
		if !reserved {
			return replay(ctx, c, cache, cacheKey, logger)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			release(cache, cacheKey)
			return nil
		}

		stored := storedResponse{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			stored.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(stored)
		if err != nil {
			logger.Error("failed to encode webhook response", slog.String("key", key), slog.Any("error", err))
			release(cache, cacheKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// The response already went out; a retry will be processed again and
			// rejected by the single-use token.
			logger.Warn("failed to persist webhook response", slog.String("key", key), slog.Any("error", err))
			cache.Del(persistCtx, cacheKey)
		}
		return nil
	}
}

func replay(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey string, logger *slog.Logger) error {
	cached, err := cache.Get(ctx, cacheKey).Result()
	if err != nil {
		// Expired or released between SETNX and GET; ask the sender to retry.
		return fiber.NewError(fiber.StatusConflict, "duplicate delivery")
	}
	if cached == inProgressMarker {
		return fiber.NewError(fiber.StatusConflict, "duplicate delivery currently processing")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		logger.Warn("failed to decode stored webhook response", slog.String("key", cacheKey), slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate delivery")
	}

	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
