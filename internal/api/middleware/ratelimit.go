package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/inductor-io/inductor/internal/config"
)

const (
	burstCapacityMultiplier = 2

	defaultGlobalRPS = 100
	defaultClientRPS = 20

	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = time.Hour

	maxTrackedClients = 1000
)

type (
	// RateLimiter decides whether a request from the given client key should
	// be admitted.
	RateLimiter interface {
		Allow(clientKey string) bool
	}

	// RateLimitConfig holds token-bucket settings for the in-memory limiter.
	RateLimitConfig struct {
		GlobalRPS int
		ClientRPS int
	}

	// InMemoryRateLimiter implements RateLimiter with two tiers of token
	// buckets: one global bucket and one per client key. Idle client buckets
	// are evicted by a background sweep so memory stays bounded on a
	// single-node deployment.
	InMemoryRateLimiter struct {
		global    *rate.Limiter
		clients   map[string]*clientLimiter
		mu        sync.Mutex
		clientRPS int
		done      chan struct{}
		closeOnce sync.Once
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
	}
)

// DefaultRateLimitConfig returns the deployment-default limits.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalRPS: defaultGlobalRPS,
		ClientRPS: defaultClientRPS,
	}
}

// LoadRateLimitConfig reads limiter settings from environment variables with
// fallback to defaults.
func LoadRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalRPS: config.GetEnvInt("INDUCTOR_RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("INDUCTOR_RATE_LIMIT_CLIENT_RPS", defaultClientRPS),
	}
}

// NewInMemoryRateLimiter creates the limiter and starts its cleanup sweep.
// Burst capacity is twice the sustained rate.
func NewInMemoryRateLimiter(config *RateLimitConfig) *InMemoryRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	rl := &InMemoryRateLimiter{
		global:    rate.NewLimiter(rate.Limit(config.GlobalRPS), config.GlobalRPS*burstCapacityMultiplier),
		clients:   make(map[string]*clientLimiter),
		clientRPS: config.ClientRPS,
		done:      make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow implements RateLimiter. Both the global and the per-client bucket
// must admit the request.
func (rl *InMemoryRateLimiter) Allow(clientKey string) bool {
	if !rl.global.Allow() {
		return false
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	client, ok := rl.clients[clientKey]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.evictOldestLocked()
		}

		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientRPS*burstCapacityMultiplier),
		}
		rl.clients[clientKey] = client
	}

	client.lastAccess = time.Now()

	return client.limiter.Allow()
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (rl *InMemoryRateLimiter) Close() error {
	rl.closeOnce.Do(func() {
		close(rl.done)
	})

	return nil
}

func (rl *InMemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rateLimiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *InMemoryRateLimiter) evictIdle() {
	cutoff := time.Now().Add(-rateLimiterIdleTimeout)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, client := range rl.clients {
		if client.lastAccess.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// evictOldestLocked removes the least recently seen client. Caller holds mu.
func (rl *InMemoryRateLimiter) evictOldestLocked() {
	var (
		oldestKey  string
		oldestSeen time.Time
	)

	for key, client := range rl.clients {
		if oldestKey == "" || client.lastAccess.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = client.lastAccess
		}
	}

	if oldestKey != "" {
		delete(rl.clients, oldestKey)
	}
}

// RateLimit creates a middleware that rejects over-limit requests with 429
// before any expensive work happens.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := clientKeyFor(r)

			if !limiter.Allow(clientKey) {
				correlationID := GetCorrelationID(r.Context())

				logger.Warn("Request rate limited",
					slog.String("client", clientKey),
					slog.String("path", r.URL.Path),
					slog.String("correlation_id", correlationID),
				)

				problem := struct {
					Type          string `json:"type"`
					Title         string `json:"title"`
					Status        int    `json:"status"`
					Detail        string `json:"detail"`
					CorrelationID string `json:"correlationId"`
				}{
					Type:          fmt.Sprintf("https://inductor.io/problems/%d", http.StatusTooManyRequests),
					Title:         "Too Many Requests",
					Status:        http.StatusTooManyRequests,
					Detail:        "Request rate limit exceeded; retry later",
					CorrelationID: correlationID,
				}

				w.Header().Set("Content-Type", "application/problem+json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)

				_ = json.NewEncoder(w).Encode(problem)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientKeyFor identifies the caller by remote IP, honoring the first
// X-Forwarded-For hop when present.
func clientKeyFor(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for i := 0; i < len(forwarded); i++ {
			if forwarded[i] == ',' {
				return forwarded[:i]
			}
		}

		return forwarded
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
