// Package middleware carries the HTTP cross-cutting concerns: the Redis
// idempotent-response cache guarding the relay callback and the token
// revocation gate on the transfer routes.
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// IdempotencyCacheTTL defines how long callback responses are cached in
	// Redis. The relay retries well inside this horizon.
	IdempotencyCacheTTL = 24 * time.Hour

	// LockTimeout prevents indefinite locks if a request crashes mid-flight.
	LockTimeout = 10 * time.Second

	// RedisKeyPrefix namespaces cached callback responses.
	RedisKeyPrefix = "incoming:"

	// LockKeyPrefix namespaces the distributed processing locks.
	LockKeyPrefix = "incoming-lock:"
)

// responseWriterWrapper captures HTTP responses for caching.
// It intercepts both the status code and response body to store in Redis.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

// WriteHeader captures the HTTP status code before delegating to the underlying writer.
func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response body while also writing to the client.
func (rw *responseWriterWrapper) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// requestTransactionID peeks the transactionId out of the JSON body and
// restores the body for the downstream handler. Returns "" when the body is
// unreadable or carries no id.
func requestTransactionID(r *http.Request) string {
	raw, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var probe struct {
		TransactionID string `json:"transactionId"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.TransactionID
}

// Idempotency deduplicates relay callbacks at the HTTP layer using Redis.
// The transaction id carried in the payload is the idempotency key: a
// replayed delivery gets the cached response back without touching the
// coordinator, and a concurrent duplicate is held off by a distributed
// lock. The coordinator's own replay check by transaction id remains the
// authoritative guard; this layer only absorbs retry volume.
func Idempotency(rdb *redis.Client, log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "idempotency")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := requestTransactionID(r)
			if key == "" {
				// No transaction id; let the handler reject it.
				next.ServeHTTP(w, r)
				return
			}

			cacheKey := RedisKeyPrefix + key
			lockKey := LockKeyPrefix + key

			cachedResponse, err := rdb.Get(ctx, cacheKey).Result()
			if err == nil {
				log.Info("cache hit", "transaction_id", key)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Hit", "true")
				w.Write([]byte(cachedResponse))
				return
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", LockTimeout).Result()
			if err != nil {
				log.Error("lock acquisition failed", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !acquired {
				// A concurrent delivery of the same transfer is in flight.
				log.Info("concurrent delivery detected", "transaction_id", key)
				errorResponse := map[string]string{
					"error":   "conflict",
					"message": "a transfer with this transactionId is currently being processed",
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(errorResponse)
				return
			}

			defer func() {
				// Release with a fresh context: a client disconnect cancels
				// the request context and would strand the lock until its
				// timeout.
				if err := rdb.Del(context.Background(), lockKey).Err(); err != nil {
					log.Error("failed to release lock", "transaction_id", key, "error", err)
				}
			}()

			wrapper := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapper, r)

			// Cache successful responses only (2xx status codes).
			if wrapper.statusCode >= 200 && wrapper.statusCode < 300 {
				if err := rdb.Set(ctx, cacheKey, wrapper.body.String(), IdempotencyCacheTTL).Err(); err != nil {
					log.Error("failed to cache response", "transaction_id", key, "error", err)
				}
			}
		})
	}
}
