package service

import (
	"testing"

	"github.com/shinyyama/demart-backend/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	order := func(s model.OrderStatus) *model.Order {
		return &model.Order{BuyerUID: "b", SellerUID: "s", Status: s}
	}

	tests := []struct {
		name   string
		actor  string
		status model.OrderStatus
		op     model.Operation
		want   error
	}{
		{"seller edits price", "s", model.OrderStatusAwaitingPayment, model.OpUpdatePrice, nil},
		{"buyer edits price", "b", model.OrderStatusAwaitingPayment, model.OpUpdatePrice, ErrForbidden},
		{"price after payment", "s", model.OrderStatusPendingConfirmation, model.OpUpdatePrice, ErrInvalidTransition},
		{"wrong role wins over wrong status", "b", model.OrderStatusShipped, model.OpUpdatePrice, ErrForbidden},
		{"buyer pays", "b", model.OrderStatusAwaitingPayment, model.OpPay, nil},
		{"seller pays", "s", model.OrderStatusAwaitingPayment, model.OpPay, ErrForbidden},
		{"pay twice", "b", model.OrderStatusPendingConfirmation, model.OpPay, ErrInvalidTransition},
		{"system confirms", SystemActor, model.OrderStatusPendingConfirmation, model.OpConfirmSettlement, nil},
		{"user confirms", "b", model.OrderStatusPendingConfirmation, model.OpConfirmSettlement, ErrForbidden},
		{"seller ships", "s", model.OrderStatusPaymentConfirmed, model.OpShip, nil},
		{"ship unpaid", "s", model.OrderStatusAwaitingPayment, model.OpShip, ErrInvalidTransition},
		{"buyer receives", "b", model.OrderStatusShipped, model.OpConfirmReceipt, nil},
		{"seller receives", "s", model.OrderStatusShipped, model.OpConfirmReceipt, ErrForbidden},
		{"buyer cancels", "b", model.OrderStatusAwaitingPayment, model.OpCancel, nil},
		{"seller cancels pending", "s", model.OrderStatusPendingConfirmation, model.OpCancel, nil},
		{"cancel confirmed", "b", model.OrderStatusPaymentConfirmed, model.OpCancel, ErrInvalidTransition},
		{"stranger cancels", "x", model.OrderStatusAwaitingPayment, model.OpCancel, ErrForbidden},
		{"notes on shipped", "s", model.OrderStatusShipped, model.OpUpdateNotes, nil},
		{"notes on completed", "b", model.OrderStatusCompleted, model.OpUpdateNotes, ErrInvalidTransition},
		{"unknown op", "b", model.OrderStatusAwaitingPayment, "refund", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, order(tt.status), tt.op)
			if tt.want == nil {
				assert.NoError(t, err)
				assert.True(t, CanPerform(tt.actor, order(tt.status), tt.op))
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, CanPerform(tt.actor, order(tt.status), tt.op))
		})
	}
}

func TestValidatePrice(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"80", true},
		{"0.01", true},
		{"19.90", true},
		{"0", false},
		{"-5", false},
		{"1.001", false},
		{"10000000000", false},
	}
	for _, tt := range tests {
		err := ValidatePrice(decimal.RequireFromString(tt.in))
		if tt.ok {
			assert.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, ErrValidation, tt.in)
		}
	}
}
