package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a crashed holder can block a key.
const DefaultLockTTL = 60 * time.Second

// Locker provides single-key mutual exclusion over a Store.
type Locker struct {
	Store Store
}

func NewLocker(store Store) *Locker {
	return &Locker{Store: store}
}

// Acquire tries to take key for ttl. A busy lock is (_, false, nil): callers
// decide how to report contention.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	token := uuid.NewString()
	ok, err := l.Store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key unconditionally. Releasing a free key is a no-op.
func (l *Locker) Release(ctx context.Context, key string) error {
	if err := l.Store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
