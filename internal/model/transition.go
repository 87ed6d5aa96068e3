package model

// Operation is a request to act on an order.
type Operation string

const (
	OpUpdatePrice       Operation = "update_price"
	OpUpdateNotes       Operation = "update_notes"
	OpPay               Operation = "pay"
	OpConfirmSettlement Operation = "confirm_settlement"
	OpShip              Operation = "ship"
	OpConfirmReceipt    Operation = "confirm_receipt"
	OpCancel            Operation = "cancel"
)

// Role is the party an operation must be performed by.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleEither Role = "either"
	RoleSystem Role = "system"
)

// Rule describes who may run an operation, from which statuses, and where it leads.
// A Rule with SameStatus set leaves the status untouched.
type Rule struct {
	Role       Role
	From       []OrderStatus
	To         OrderStatus
	SameStatus bool
}

func (r Rule) allows(s OrderStatus) bool {
	for _, f := range r.From {
		if f == s {
			return true
		}
	}
	return false
}

var rules = map[Operation]Rule{
	OpUpdatePrice: {
		Role:       RoleSeller,
		From:       []OrderStatus{OrderStatusAwaitingPayment},
		SameStatus: true,
	},
	OpUpdateNotes: {
		Role: RoleEither,
		From: []OrderStatus{
			OrderStatusAwaitingPayment,
			OrderStatusPendingConfirmation,
			OrderStatusPaymentConfirmed,
			OrderStatusShipped,
		},
		SameStatus: true,
	},
	OpPay: {
		Role: RoleBuyer,
		From: []OrderStatus{OrderStatusAwaitingPayment},
		To:   OrderStatusPendingConfirmation,
	},
	OpConfirmSettlement: {
		Role: RoleSystem,
		From: []OrderStatus{OrderStatusPendingConfirmation},
		To:   OrderStatusPaymentConfirmed,
	},
	OpShip: {
		Role: RoleSeller,
		From: []OrderStatus{OrderStatusPaymentConfirmed},
		To:   OrderStatusShipped,
	},
	OpConfirmReceipt: {
		Role: RoleBuyer,
		From: []OrderStatus{OrderStatusShipped},
		To:   OrderStatusCompleted,
	},
	OpCancel: {
		Role: RoleEither,
		From: []OrderStatus{OrderStatusAwaitingPayment, OrderStatusPendingConfirmation},
		To:   OrderStatusCancelled,
	},
}

// RuleFor returns the rule of op. ok is false for unknown operations.
func RuleFor(op Operation) (Rule, bool) {
	r, ok := rules[op]
	return r, ok
}

// NextStatus returns the status an order in from ends up in after op.
// ok is false when op is not legal in from.
func NextStatus(from OrderStatus, op Operation) (OrderStatus, bool) {
	r, ok := rules[op]
	if !ok || !r.allows(from) {
		return "", false
	}
	if r.SameStatus {
		return from, true
	}
	return r.To, true
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, r := range rules {
		if r.SameStatus || r.To != to {
			continue
		}
		if r.allows(from) {
			return true
		}
	}
	return false
}

// OperationForTarget maps a requested target status to the operation that reaches it
// on behalf of a participant. PAYMENT_CONFIRMED is reachable only by the settlement process
// and PENDING_CONFIRMATION only through payment, so neither is returned here.
func OperationForTarget(to OrderStatus) (Operation, bool) {
	switch to {
	case OrderStatusShipped:
		return OpShip, true
	case OrderStatusCompleted:
		return OpConfirmReceipt, true
	case OrderStatusCancelled:
		return OpCancel, true
	}
	return "", false
}
