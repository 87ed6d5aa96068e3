package service

import (
	"fmt"

	"github.com/shinyyama/demart-backend/internal/model"
)

// SystemActor performs the operations reserved to the platform itself.
const SystemActor = model.SystemSender

// ReservedUID reports whether uid collides with a sentinel id.
func ReservedUID(uid string) bool {
	return uid == model.SystemSender || uid == model.BroadcastReceiver
}

func roleMatches(actor string, o *model.Order, role model.Role) bool {
	switch role {
	case model.RoleBuyer:
		return actor != "" && actor == o.BuyerUID
	case model.RoleSeller:
		return actor != "" && actor == o.SellerUID
	case model.RoleEither:
		return o.IsParticipant(actor)
	case model.RoleSystem:
		return actor == SystemActor
	}
	return false
}

// CanPerform reports whether actor may run op on o in its current status.
func CanPerform(actor string, o *model.Order, op model.Operation) bool {
	return Authorize(actor, o, op) == nil
}

// Authorize explains why CanPerform is false. The role is checked before the
// status so a wrong party always sees ErrForbidden.
func Authorize(actor string, o *model.Order, op model.Operation) error {
	rule, ok := model.RuleFor(op)
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrValidation, op)
	}
	if !roleMatches(actor, o, rule.Role) {
		return fmt.Errorf("%w: only the %s may %s", ErrForbidden, roleName(rule.Role), op)
	}
	if _, ok := model.NextStatus(o.Status, op); !ok {
		return fmt.Errorf("%w: cannot %s an order in %s", ErrInvalidTransition, op, o.Status)
	}
	return nil
}

func roleName(r model.Role) string {
	switch r {
	case model.RoleEither:
		return "buyer or seller"
	case model.RoleSystem:
		return "platform"
	}
	return string(r)
}
