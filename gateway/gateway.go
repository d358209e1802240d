/*
Package gateway talks to the payment provider.

PURPOSE:
  Checkout creates a charge intent with the provider before the client
  confirms payment. Creation must be idempotent: retrying checkout for the
  same (payer, course) reuses the provider's first response instead of
  creating a second intent.

IMPLEMENTATIONS:
  - Client: HTTP client for Stripe-style payment-intent APIs (resty)
  - Stub: Deterministic in-process gateway for demos and tests

ERRORS:
  Every failure is returned as *core.GatewayError, which unwraps to
  core.ErrGatewayFailure. Non-2xx responses are failures, never success.

SEE ALSO:
  - enrollment/checkout.go: Only caller
*/
package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

// ChargeRequest describes an intent to charge.
type ChargeRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// ChargeIntent is the provider's answer. ClientSecret goes to the browser.
type ChargeIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Provider     string `json:"provider"`
}

type Gateway interface {
	CreateChargeIntent(ctx context.Context, req ChargeRequest) (*ChargeIntent, error)
}

// IdempotencyKey derives a stable key for a (payer, course) checkout.
func IdempotencyKey(payerID, courseID string) string {
	sum := sha256.Sum256([]byte("checkout:" + payerID + ":" + courseID))
	return hex.EncodeToString(sum[:16])
}

// MinorUnits converts an amount to the provider's integer representation
// (cents for two-decimal currencies).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
