package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations is a Redis set of revoked access tokens. Entries expire with
// the token so the set never outgrows the live token population.
type Revocations struct {
	client *redis.Client
}

func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{client: client}
}

func revocationKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "revoked:access:" + hex.EncodeToString(sum[:])
}

// Revoke marks token as revoked for ttl. A non-positive ttl is raised to one
// second so Redis accepts the entry.
func (r *Revocations) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, revocationKey(token), "1", ttl).Err()
}

func (r *Revocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, revocationKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
