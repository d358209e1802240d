/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Enrollment:
    EnrollRequest, TransactionDTO

  Checkout:
    CheckoutRequest, ChargeIntentDTO

  Reconciliation:
    GapsResponse, ReconcileRunDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

Reports, course listings and enrolled courses are returned as the
analytics and catalog types directly; they already carry JSON tags.

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/gateway"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EnrollRequest is a confirmed payment posted by the payment webhook or
// the checkout success page.
type EnrollRequest struct {
	PayerID  string          `json:"payer_id"`
	CourseID string          `json:"course_id"`
	ChargeID string          `json:"charge_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Provider string          `json:"provider,omitempty"`
}

func (r EnrollRequest) toDomain() enrollment.EnrollRequest {
	return enrollment.EnrollRequest{
		PayerID:          core.UserID(r.PayerID),
		CourseID:         core.CourseID(r.CourseID),
		ExternalChargeID: r.ChargeID,
		Amount:           r.Amount,
		Currency:         r.Currency,
		Provider:         r.Provider,
	}
}

// TransactionDTO represents a ledger row in API responses.
type TransactionDTO struct {
	ID        string          `json:"id"`
	PayerID   string          `json:"payer_id"`
	CourseID  string          `json:"course_id"`
	ChargeID  string          `json:"charge_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Provider  string          `json:"provider"`
	CreatedAt string          `json:"created_at"`
}

type CheckoutRequest struct {
	PayerID  string `json:"payer_id"`
	CourseID string `json:"course_id"`
}

type ChargeIntentDTO struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Provider     string `json:"provider"`
}

type GapsResponse struct {
	Gaps  []core.ReconciliationGap `json:"gaps"`
	Count int                      `json:"count"`
}

// ReconcileRunDTO summarizes one reconciliation pass.
type ReconcileRunDTO struct {
	StartedAt   string `json:"started_at"`
	Scanned     int    `json:"scanned"`
	Gaps        int    `json:"gaps"`
	SweptKeys   int    `json:"swept_keys"`
	Error       string `json:"error,omitempty"`
	CompletedAt string `json:"completed_at"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTransactionDTO(tx core.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:        string(tx.ID),
		PayerID:   string(tx.PayerID),
		CourseID:  string(tx.CourseID),
		ChargeID:  tx.ExternalChargeID,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Provider:  tx.Provider,
		CreatedAt: tx.CreatedAt.Format(time.RFC3339),
	}
}

func toChargeIntentDTO(intent gateway.ChargeIntent) ChargeIntentDTO {
	return ChargeIntentDTO{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
		Provider:     intent.Provider,
	}
}

func toReconcileRunDTO(run ReconcileRun) ReconcileRunDTO {
	dto := ReconcileRunDTO{
		StartedAt:   run.StartedAt.Format(time.RFC3339),
		Scanned:     run.Scanned,
		Gaps:        run.Gaps,
		SweptKeys:   run.Swept,
		CompletedAt: run.CompletedAt.Format(time.RFC3339),
	}
	if run.Err != nil {
		dto.Error = run.Err.Error()
	}
	return dto
}
