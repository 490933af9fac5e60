package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parlor/internal/metrics"
)

const (
	loginLimit  = 10
	loginWindow = time.Minute
)

// LoginRateLimiter throttles credential guessing on POST /login using a
// Redis sliding window keyed by client IP. With no Redis client it is a
// pass-through, so single-node development runs unthrottled.
type LoginRateLimiter struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewLoginRateLimiter creates the limiter. client may be nil.
func NewLoginRateLimiter(client *redis.Client, logger zerolog.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{client: client, logger: logger}
}

// Middleware enforces the limit.
func (rl *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := RealIP(r)
		if !rl.allow(r, ip) {
			metrics.RateLimitHits.Inc()
			rl.logger.Warn().Str("ip", ip).Msg("login rate limit hit")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(loginWindow.Seconds())))
			http.Error(w, `{"error":"too many login attempts"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow records the attempt and checks the window. Redis failures fail
// open: an unavailable limiter must not lock everyone out.
func (rl *LoginRateLimiter) allow(r *http.Request, ip string) bool {
	ctx := r.Context()
	now := time.Now()
	key := "ratelimit:login:" + ip

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", now.Add(-loginWindow).UnixMilli()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, loginWindow*2)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Msg("rate limiter unavailable")
		return true
	}

	return countCmd.Val() < loginLimit
}

// RealIP extracts the client IP from forwarding headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
