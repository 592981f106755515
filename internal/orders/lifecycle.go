package orders

import (
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

// CanTransition reports whether an order with the given fulfillment option
// may move from one status to another. Terminal statuses never move.
func CanTransition(option enums.FulfillmentOption, from, to enums.OrderStatus) bool {
	if from.IsTerminal() || !to.IsValid() || from == to {
		return false
	}
	switch to {
	case enums.OrderStatusCancelled:
		return true
	case enums.OrderStatusForDelivery:
		return from == enums.OrderStatusPending && option == enums.FulfillmentDelivery
	case enums.OrderStatusForPickup:
		return from == enums.OrderStatusPending && option == enums.FulfillmentPickup
	case enums.OrderStatusCompleted:
		return from == enums.OrderStatusForDelivery || from == enums.OrderStatusForPickup
	default:
		return false
	}
}

func transitionError(option enums.FulfillmentOption, from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{
			"from":         from,
			"to":           to,
			"order_option": option,
		})
}
