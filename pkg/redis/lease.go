package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired-and-reacquired lease is never released by its previous owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a single-holder lock stored under one Redis key with a TTL.
type Lease struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewLease creates a lease on key. The TTL bounds how long a crashed holder blocks others.
func NewLease(client redis.Cmdable, key string, ttl time.Duration) *Lease {
	return &Lease{client: client, key: key, ttl: ttl}
}

// TTL is how long a held lease survives without being released.
func (l *Lease) TTL() time.Duration {
	return l.ttl
}

// TryAcquire attempts to take the lease without waiting. When ok is true the
// caller must invoke release once done.
func (l *Lease) TryAcquire(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
