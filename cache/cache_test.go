package cache_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/cache"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClockedMemory() (*cache.Memory, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)}
	return cache.NewMemory().WithClock(clock.Now), clock
}

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

// failingStore fails every operation whose key or pattern is listed.
type failingStore struct {
	cache.Store
	failKeys map[string]bool
}

func (f *failingStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if f.failKeys[pattern] {
		return nil, errors.New("kv unavailable")
	}
	return f.Store.Keys(ctx, pattern)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedMemory()

	require.NoError(t, m.Set(ctx, "course:c1", "v", time.Minute))
	require.NoError(t, m.Set(ctx, "course:c2", "v", 0))

	_, ok, err := m.Get(ctx, "course:c1")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Minute)

	_, ok, _ = m.Get(ctx, "course:c1")
	assert.False(t, ok, "entry expires at ttl")
	_, ok, _ = m.Get(ctx, "course:c2")
	assert.True(t, ok, "zero ttl never expires")

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemory_KeysGlob(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()
	for _, k := range []string{"enrolled:p1:aa", "enrolled:p1:bb", "enrolled:p2:aa", "course:c1"} {
		require.NoError(t, m.Set(ctx, k, "x", 0))
	}

	keys, err := m.Keys(ctx, "enrolled:p1:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"enrolled:p1:aa", "enrolled:p1:bb"}, keys)
}

func TestMemory_SetNX(t *testing.T) {
	ctx := context.Background()
	m, clock := newClockedMemory()

	ok, err := m.SetNX(ctx, "k", "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX(ctx, "k", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "live key is not overwritten")

	clock.Advance(time.Second)
	ok, err = m.SetNX(ctx, "k", "c", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key can be taken")
}

// =============================================================================
// LOCKER
// =============================================================================

func TestLocker_MutualExclusion(t *testing.T) {
	// GIVEN: 20 goroutines racing for the same enrollment lock
	// WHEN: Each tries to acquire without releasing
	// THEN: Exactly one wins

	ctx := context.Background()
	locks := cache.NewLocker(cache.NewMemory())
	key := cache.EnrollLockKey("p1", "c1")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, ok, err := locks.Acquire(ctx, key, time.Minute)
			assert.NoError(t, err)
			if ok {
				assert.NotEmpty(t, token)
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestLocker_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	locks := cache.NewLocker(cache.NewMemory())
	key := cache.EnrollLockKey("p1", "c1")

	_, ok, err := locks.Acquire(ctx, key, 0)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, locks.Release(ctx, key))
	require.NoError(t, locks.Release(ctx, key))

	_, ok, err = locks.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released lock can be re-acquired")
}

func TestEnrollLockKey(t *testing.T) {
	assert.Equal(t, "lock:enroll:p1:c1", cache.EnrollLockKey("p1", "c1"))
}

// =============================================================================
// INVALIDATOR
// =============================================================================

func seedDerivedKeys(t *testing.T, s cache.Store) {
	t.Helper()
	ctx := context.Background()
	for _, k := range []string{
		cache.CourseKey("c1"),
		cache.CourseKey("c2"),
		cache.CoursesKey("public", "page=1"),
		cache.CoursesKey("teacher", "owner=o1"),
		cache.EnrolledKey("p1", "page=1"),
		cache.EnrolledKey("p2", "page=1"),
		cache.PurchasesKey("p1", "day"),
		cache.EarningsKey("o1", "day"),
		cache.EarningsKey("o2", "day"),
		cache.EarningsKey(cache.PlatformSubject, "week"),
	} {
		require.NoError(t, s.Set(ctx, k, "cached", 0))
	}
}

func TestInvalidator_EnrollmentPatterns(t *testing.T) {
	// GIVEN: Derived keys for several payers, owners and courses
	// WHEN: Invalidating for payer p1 enrolling in c1 owned by o1
	// THEN: Only keys derived from that change are removed

	ctx := context.Background()
	m := cache.NewMemory()
	seedDerivedKeys(t, m)

	inv := cache.NewInvalidator(m, quietLogger())
	require.NoError(t, inv.Invalidate(ctx, cache.EnrollmentPatterns("c1", "p1", "o1")...))

	remaining, err := m.Keys(ctx, "*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		cache.GenerationKey,
		cache.CourseKey("c2"),
		cache.EnrolledKey("p2", "page=1"),
		cache.EarningsKey("o2", "day"),
	}, remaining)
}

func TestInvalidator_ContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()
	seedDerivedKeys(t, m)

	s := &failingStore{Store: m, failKeys: map[string]bool{"courses:*": true}}
	inv := cache.NewInvalidator(s, quietLogger())

	err := inv.Invalidate(ctx, cache.EnrollmentPatterns("c1", "p1", "o1")...)
	assert.Error(t, err)

	// Entries after the failing pattern were still removed.
	_, ok, _ := m.Get(ctx, cache.EarningsKey("o1", "day"))
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, cache.CourseKey("c1"))
	assert.False(t, ok)
}

// =============================================================================
// REMEMBER
// =============================================================================

type payload struct {
	Count int `json:"count"`
}

func TestRemember_CachesAndRecomputesAfterDelete(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()
	r := cache.NewReader(m, time.Minute, quietLogger())

	calls := 0
	compute := func(context.Context) (payload, error) {
		calls++
		return payload{Count: calls}, nil
	}

	first, err := cache.Remember(ctx, r, "course:c1", compute)
	require.NoError(t, err)
	second, err := cache.Remember(ctx, r, "course:c1", compute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	require.NoError(t, m.Del(ctx, "course:c1"))
	third, err := cache.Remember(ctx, r, "course:c1", compute)
	require.NoError(t, err)
	assert.Equal(t, 2, third.Count)
}

func TestRemember_ComputeErrorNotCached(t *testing.T) {
	ctx := context.Background()
	m := cache.NewMemory()
	r := cache.NewReader(m, time.Minute, quietLogger())

	_, err := cache.Remember(ctx, r, "k", func(context.Context) (payload, error) {
		return payload{}, errors.New("boom")
	})
	assert.Error(t, err)

	_, ok, _ := m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRemember_PointerValues(t *testing.T) {
	ctx := context.Background()
	r := cache.NewReader(cache.NewMemory(), time.Minute, quietLogger())

	compute := func(context.Context) (*payload, error) { return &payload{Count: 7}, nil }
	_, err := cache.Remember(ctx, r, "k", compute)
	require.NoError(t, err)

	got, err := cache.Remember(ctx, r, "k", func(context.Context) (*payload, error) {
		t.Fatal("should be served from cache")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got.Count)
}

func TestRemember_InvalidationDuringComputeIsNotStored(t *testing.T) {
	// GIVEN: A read whose compute overlaps an enrollment's invalidation
	ctx := context.Background()
	m := cache.NewMemory()
	r := cache.NewReader(m, time.Minute, quietLogger())
	inv := cache.NewInvalidator(m, quietLogger())

	// WHEN: The invalidation lands after the value was built
	got, err := cache.Remember(ctx, r, cache.CourseKey("c1"), func(ctx context.Context) (payload, error) {
		stale := payload{Count: 1}
		assert.NoError(t, inv.Invalidate(ctx, cache.EnrollmentPatterns("c1", "p1", "o1")...))
		return stale, nil
	})

	// THEN: The caller gets its value but the cache stays empty
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
	_, ok, err := m.Get(ctx, cache.CourseKey("c1"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Without an overlapping invalidation the next read is stored
	_, err = cache.Remember(ctx, r, cache.CourseKey("c1"), func(context.Context) (payload, error) {
		return payload{Count: 2}, nil
	})
	require.NoError(t, err)
	_, ok, _ = m.Get(ctx, cache.CourseKey("c1"))
	assert.True(t, ok)
}

func TestRemember_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	// GIVEN: A slow compute started by a caller that then cancels
	m := cache.NewMemory()
	r := cache.NewReader(m, time.Minute, quietLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(ctx context.Context) (payload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return payload{}, err
		}
		return payload{Count: 9}, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Remember(firstCtx, r, "k", compute)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   payload
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := cache.Remember(context.Background(), r, "k", compute)
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	// WHEN: The first caller cancels before the compute finishes
	cancel()

	// THEN: The first caller returns at once; the waiter still gets the value
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 9, res.v.Count)

	_, ok, _ := m.Get(context.Background(), "k")
	assert.True(t, ok, "shared result is stored despite the cancellation")
}
