/*
Package cache provides the key-value layer used for derived read caches and
the enrollment lock.

PURPOSE:
  Derived reads (course pages, listings, purchase history, earnings reports)
  are cached under namespaced keys. Any write that changes the ledger, an
  enrollment set or a listing must delete every affected key before it
  returns. The same store provides SET-if-not-exists with a TTL, which is
  all the enrollment lock needs.

KEY CONCEPTS:
  - Store: Get/Set/Del/Keys/SetNX over string values with TTL
  - Locker: Single-key mutual exclusion on top of SetNX
  - Invalidator: Deletes exact keys and glob patterns
  - Remember: Cache-or-compute with per-key call collapsing

KEY NAMESPACES:
  course:<id>                 single course page
  courses:<view>:<hash>       course listings
  enrolled:<payer>:<hash>     a payer's enrolled courses
  purchases:<payer>:<hash>    a payer's purchase report
  earnings:<owner>:<hash>     an earner's report
  earnings:platform:<hash>    platform-wide report
  lock:enroll:<payer>:<course>
  cache:generation            bumped by every invalidation

IMPLEMENTATIONS:
  - cache/memory.go: In-process map (tests, single-node dev)
  - store/sqlite/kv.go: SQLite table with GLOB enumeration

SEE ALSO:
  - keys.go: Key builders and the enrollment pattern list
  - enrollment/orchestrator.go: Lock + invalidate around each enrollment
*/
package cache

import (
	"context"
	"time"
)

// Store is the KV access pattern the engine depends on.
// Patterns use glob syntax where '*' matches any run of characters.
type Store interface {
	// Get returns (value, true, nil) on a hit and ("", false, nil) on a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Keys lists live keys matching pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// SetNX stores value only if key is absent or expired.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Sweeper is implemented by stores that can drop expired entries eagerly.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
