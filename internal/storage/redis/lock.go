package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"rss_collector/internal/domain"
)

var (
	ErrLocked      = fmt.Errorf("lock is held by another run: %w", domain.ErrRunInProgress)
	ErrLockNotHeld = errors.New("lock is not held by this token")
)

// releaseScript deletes the key only while it still holds the caller's token,
// so an expired lease taken over by another run is never removed.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a single-holder lease on one key.
type RunLock struct {
	client *goredis.Client
	key    string
}

func NewRunLock(client *goredis.Client, key string) *RunLock {
	return &RunLock{client: client, key: key}
}

// Acquire takes the lease for ttl and returns the token needed to release it.
func (l *RunLock) Acquire(ctx context.Context, ttl time.Duration) (string, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return "", ErrLocked
	}
	return token, nil
}

func (l *RunLock) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
