package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/lawncare-booking/internal/config"
)

// gcra is a generic cell rate limiter: the key holds the theoretical
// arrival time (TAT) in ms.  One request costs one emission interval and a
// burst of capacity requests fits in the window before TAT.  Returns
// {allowed, remaining, retry_after_ms}.
var gcra = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local emission = tonumber(ARGV[2])
	local burst = tonumber(ARGV[3])
	local ttl_ms = tonumber(ARGV[4])

	local tat = tonumber(redis.call('GET', KEYS[1]) or now)
	if tat < now then tat = now end

	local next_tat = tat + emission
	local allow_at = next_tat - emission * burst
	if now < allow_at then
		return { 0, 0, math.ceil(allow_at - now) }
	end

	redis.call('SET', KEYS[1], next_tat, 'PX', math.max(ttl_ms, math.ceil(next_tat - now)))
	return { 1, math.floor((now - allow_at) / emission), 0 }
`)

type bucketResult struct {
	allowed   bool
	remaining int64
	retryMs   int64
}

// NewTokenBucket limits requests per key (see RateLimitConfig.KeyStrategy)
// with GCRA in Redis, which behaves like a token bucket that refills
// continuously.  It is mounted on the sign-in and refresh
// endpoints.  Redis errors let the request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = zap.NewNop()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			res, err := take(c, rdb, cfg, key)
			if err != nil {
				log.Warn("ratelimit: redis error, allowing request", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}

			if !res.allowed {
				secs := int(math.Ceil(float64(res.retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				log.Info("ratelimit: blocked", zap.String("key", key), zap.Int64("retry_ms", res.retryMs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// take charges one request against key.  The emission interval is the
// time one token takes to refill.
func take(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bucketResult, error) {
	emission := float64(cfg.RefillInterval.Milliseconds()) / float64(cfg.RefillTokens)
	vals, err := gcra.Run(c.Request().Context(), rdb, []string{key},
		time.Now().UnixMilli(), emission, cfg.Capacity, cfg.TTL.Milliseconds()).Int64Slice()
	if err != nil {
		return bucketResult{}, err
	}
	if len(vals) != 3 {
		return bucketResult{}, fmt.Errorf("ratelimit script returned %d values", len(vals))
	}
	return bucketResult{allowed: vals[0] == 1, remaining: vals[1], retryMs: vals[2]}, nil
}

// rateSubject is the JWT subject, or "anon" before sign-in.
func rateSubject(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := rateSubject(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	case "ip_user_route":
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}
