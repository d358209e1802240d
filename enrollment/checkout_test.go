package enrollment_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/enrollment"
	"github.com/warp/enrollment-engine/gateway"
)

func newCheckout(t *testing.T) (*enrollment.Checkout, *gateway.Stub, *fixture) {
	f := newFixture(t)
	stub := gateway.NewStub()
	return enrollment.NewCheckout(f.store, core.NewLedger(f.store), stub, log.New(&bytes.Buffer{}, "", 0)), stub, f
}

func TestCheckout_CreateIntent_IdempotentPerPayerCourse(t *testing.T) {
	ctx := context.Background()
	checkout, stub, _ := newCheckout(t)

	first, err := checkout.CreateIntent(ctx, "payer-1", "course-1")
	require.NoError(t, err)
	second, err := checkout.CreateIntent(ctx, "payer-1", "course-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, stub.Calls)
}

func TestCheckout_CreateIntent_Rejections(t *testing.T) {
	ctx := context.Background()
	checkout, stub, f := newCheckout(t)

	_, err := checkout.CreateIntent(ctx, "ghost", "course-1")
	assert.ErrorIs(t, err, core.ErrPayerNotFound)

	_, err = checkout.CreateIntent(ctx, "payer-1", "missing")
	assert.ErrorIs(t, err, core.ErrCourseNotFound)

	_, err = checkout.CreateIntent(ctx, "", "course-1")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = f.orch.Enroll(ctx, request("ch_1"))
	require.NoError(t, err)
	_, err = checkout.CreateIntent(ctx, "payer-1", "course-1")
	assert.ErrorIs(t, err, core.ErrAlreadyEnrolled)

	assert.Equal(t, 0, stub.Calls, "gateway is never called for rejected checkouts")
}

func TestCheckout_GatewayFailureIsNeverSuccess(t *testing.T) {
	checkout, stub, _ := newCheckout(t)
	stub.Err = errors.New("connection reset")

	intent, err := checkout.CreateIntent(context.Background(), "payer-1", "course-1")
	assert.Nil(t, intent)
	assert.ErrorIs(t, err, core.ErrGatewayFailure)

	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "create charge intent", gwErr.Op)
}
