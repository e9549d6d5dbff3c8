package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/procurement-backend/api/responses"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

// maxCredentialBody caps how much of a login or register body is buffered.
const maxCredentialBody = 64 << 10

type RateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy throttles one credential surface (login, register)
// by client address and by submitted e-mail. A zero limit disables that
// counter; a zero window disables the policy.
type AuthRateLimitPolicy struct {
	Name       string
	Window     time.Duration
	IPLimit    int
	EmailLimit int
}

func (p AuthRateLimitPolicy) scope() string {
	if name := strings.ToLower(strings.TrimSpace(p.Name)); name != "" {
		return name
	}
	return "auth"
}

// AuthRateLimit rejects requests over either counter with
// RATE_LIMIT_EXCEEDED and a Retry-After of one window. The request body is
// restored for the next handler.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if store == nil || policy.Window <= 0 || (policy.IPLimit <= 0 && policy.EmailLimit <= 0) {
		return func(next http.Handler) http.Handler { return next }
	}
	scope := policy.scope()
	retryAfter := strconv.Itoa(int(math.Ceil(policy.Window.Seconds())))

	limits := func(r *http.Request) (map[string]int, error) {
		out := map[string]int{}
		if policy.IPLimit > 0 {
			if ip := clientIP(r); ip != "" {
				out["ip:"+ip] = policy.IPLimit
			}
		}
		if policy.EmailLimit <= 0 {
			return out, nil
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCredentialBody))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		if email := emailFromBody(body); email != "" {
			out["email:"+hashValue(email)] = policy.EmailLimit
		}
		return out, nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			counters, err := limits(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			for counter, limit := range counters {
				attempts, err := store.IncrWithTTL(ctx, store.RateLimitKey(scope+":"+counter), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if attempts <= int64(limit) {
					continue
				}
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"policy":   scope,
					"counter":  strings.SplitN(counter, ":", 2)[0],
					"attempts": attempts,
					"limit":    limit,
				}), "auth.rate_limit.blocked")
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func emailFromBody(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
