package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/gateway"
)

// Checkout creates payment intents for courses a payer does not own yet.
type Checkout struct {
	Store   Store
	Ledger  *core.Ledger
	Gateway gateway.Gateway
	Logger  *log.Logger
}

func NewCheckout(store Store, ledger *core.Ledger, gw gateway.Gateway, logger *log.Logger) *Checkout {
	if logger == nil {
		logger = log.Default()
	}
	return &Checkout{Store: store, Ledger: ledger, Gateway: gw, Logger: logger}
}

// CreateIntent asks the gateway for a charge intent at the course price.
// Retries for the same (payer, course) reuse one idempotency key.
func (c *Checkout) CreateIntent(ctx context.Context, payerID core.UserID, courseID core.CourseID) (*gateway.ChargeIntent, error) {
	if payerID == "" || courseID == "" {
		return nil, fmt.Errorf("%w: payer and course are required", core.ErrInvalidRequest)
	}

	payer, err := c.Store.GetUser(ctx, payerID)
	if err != nil {
		return nil, &core.StorageError{Op: "load payer", Err: err}
	}
	if payer == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrPayerNotFound, payerID)
	}
	course, err := c.Store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, &core.StorageError{Op: "load course", Err: err}
	}
	if course == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrCourseNotFound, courseID)
	}
	existing, err := c.Ledger.FindByPayerCourse(ctx, payerID, courseID)
	if err != nil {
		return nil, &core.StorageError{Op: "lookup purchase", Err: err}
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: payer %s course %s", core.ErrAlreadyEnrolled, payerID, courseID)
	}

	intent, err := c.Gateway.CreateChargeIntent(ctx, gateway.ChargeRequest{
		Amount:   course.Price,
		Currency: course.Currency,
		Metadata: map[string]string{
			"payerId":  string(payerID),
			"courseId": string(courseID),
		},
		IdempotencyKey: gateway.IdempotencyKey(string(payerID), string(courseID)),
	})
	if err != nil {
		c.Logger.Printf("[Checkout] intent for payer %s course %s failed: %v", payerID, courseID, err)
		var gwErr *core.GatewayError
		if errors.As(err, &gwErr) {
			return nil, err
		}
		return nil, &core.GatewayError{Op: "create charge intent", Err: err}
	}
	return intent, nil
}
