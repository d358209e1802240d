package cache

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Invalidator deletes derived cache entries after a write.
type Invalidator struct {
	Store  Store
	Logger *log.Logger
}

func NewInvalidator(store Store, logger *log.Logger) *Invalidator {
	if logger == nil {
		logger = log.Default()
	}
	return &Invalidator{Store: store, Logger: logger}
}

// Invalidate bumps GenerationKey, then deletes exact keys directly and
// expands glob patterns through Keys before deleting. Every entry is
// attempted; failures are joined.
func (inv *Invalidator) Invalidate(ctx context.Context, patterns ...string) error {
	var errs []error
	var exact []string
	deleted := 0

	if err := inv.Store.Set(ctx, GenerationKey, uuid.NewString(), 0); err != nil {
		errs = append(errs, fmt.Errorf("bump generation: %w", err))
	}

	for _, p := range patterns {
		if !IsPattern(p) {
			exact = append(exact, p)
			continue
		}
		keys, err := inv.Store.Keys(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s: %w", p, err))
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if err := inv.Store.Del(ctx, keys...); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", p, err))
			continue
		}
		deleted += len(keys)
	}

	if len(exact) > 0 {
		if err := inv.Store.Del(ctx, exact...); err != nil {
			errs = append(errs, fmt.Errorf("delete keys: %w", err))
		} else {
			deleted += len(exact)
		}
	}

	if len(errs) > 0 {
		inv.Logger.Printf("[Cache] invalidation incomplete: %d entries deleted, %d failures", deleted, len(errs))
	}
	return errors.Join(errs...)
}
