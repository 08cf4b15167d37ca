package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RevocationStore tracks invalidated session tokens until their natural
// expiry. Token issuance and validation live outside this service; this is
// only the shared deny-list a multi-instance deployment needs.
type RevocationStore interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// RevocationKeyPrefix namespaces revoked tokens in Redis.
const RevocationKeyPrefix = "revoked:"

// RedisRevocationStore keeps revoked tokens in Redis, with expiry tied to
// the token's remaining lifetime.
type RedisRevocationStore struct {
	rdb *redis.Client
}

// NewRedisRevocationStore returns a store over the given client.
func NewRedisRevocationStore(rdb *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{rdb: rdb}
}

// Revoke marks the token invalid for ttl.
func (s *RedisRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, RevocationKeyPrefix+token, "1", ttl).Err()
}

// IsRevoked reports whether the token has been invalidated.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := s.rdb.Get(ctx, RevocationKeyPrefix+token).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RejectRevoked blocks requests whose bearer token sits on the revocation
// list. Requests without a token pass through untouched; authentication
// itself is an upstream concern.
func RejectRevoked(store RevocationStore, log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "revocation")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			revoked, err := store.IsRevoked(r.Context(), token)
			if err != nil {
				log.Error("revocation lookup failed", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if revoked {
				http.Error(w, "token revoked", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}
