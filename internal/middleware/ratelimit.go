package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/config"
	"github.com/healthwise/companion/internal/metrics"
	"github.com/healthwise/companion/pkg/utils"
)

// RateLimit 基于 Redis 的固定窗口限流；超限后封禁 BlockDuration。Redis 出错时放行。
func RateLimit(rdb redis.UniversalClient, cfg config.RateLimitConfig, keyPrefix string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if rdb == nil || cfg.Limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := keyPrefix + ":" + clientKey(r)
			blockKey := key + ":blocked"

			if ttl, err := rdb.TTL(ctx, blockKey).Result(); err == nil && ttl > 0 {
				metrics.RateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
				utils.RespondError(w, r, http.StatusTooManyRequests, "too many requests, try again in "+ttl.Round(time.Second).String())
				return
			}

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				rdb.Expire(ctx, key, cfg.Window)
			}

			if count > int64(cfg.Limit) {
				rdb.Set(ctx, blockKey, "1", cfg.BlockDuration)
				metrics.RateLimited()
				logger.Warn("rate limit exceeded", zap.String("client", clientKey(r)), zap.Int64("count", count))
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.BlockDuration.Seconds())))
				utils.RespondError(w, r, http.StatusTooManyRequests, "too many requests, blocked for "+cfg.BlockDuration.String())
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(cfg.Limit)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey 优先使用已认证用户，否则使用客户端 IP。
func clientKey(r *http.Request) string {
	if id := UserID(r.Context()); id != AnonymousUser {
		return "uid:" + id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
