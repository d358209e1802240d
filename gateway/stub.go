package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const ProviderStub = "stub"

// Stub is an in-process gateway honoring idempotency keys.
// Err, when set, is returned by every call.
type Stub struct {
	mu      sync.Mutex
	intents map[string]*ChargeIntent
	Calls   int
	Err     error
}

func NewStub() *Stub {
	return &Stub{intents: make(map[string]*ChargeIntent)}
}

func (s *Stub) CreateChargeIntent(_ context.Context, req ChargeRequest) (*ChargeIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if req.IdempotencyKey != "" {
		if existing, ok := s.intents[req.IdempotencyKey]; ok {
			out := *existing
			return &out, nil
		}
	}

	id := "pi_" + uuid.NewString()
	intent := &ChargeIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       "requires_payment_method",
		Provider:     ProviderStub,
	}
	if req.IdempotencyKey != "" {
		s.intents[req.IdempotencyKey] = intent
	}
	out := *intent
	return &out, nil
}
