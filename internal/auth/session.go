package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adrian-cabangis/taskboard/internal/authz"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	sessionTTL       = 24 * time.Hour
)

// Store manages sessions in Redis. A session holds the caller's
// identity (user id + role) so role gates never hit Postgres.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore returns a new session store.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = sessionTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// TTL returns the session lifetime, for the cookie max-age.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create stores a new session for ident and returns its ID.
func (s *Store) Create(ctx context.Context, ident authz.Identity) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(ident)
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, sessionKeyPrefix+id, b, s.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns the identity for a session ID, or ok=false if the session
// does not exist or has expired.
func (s *Store) Get(ctx context.Context, id string) (authz.Identity, bool) {
	b, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		return authz.Identity{}, false
	}
	var ident authz.Identity
	if err := json.Unmarshal(b, &ident); err != nil {
		return authz.Identity{}, false
	}
	return ident, true
}

// Delete removes a session by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}
