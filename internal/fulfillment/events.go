package fulfillment

import (
	"fmt"
	"time"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	orderConfirmationTemplate = "order_confirmation"
	actionDateLayout          = "January 2, 2006"
)

func actorRef(actor Actor) *outbox.ActorRef {
	if actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
}

func newEvent(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, actor Actor, data any, now time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Actor:         actorRef(actor),
		Data:          data,
		OccurredAt:    now,
	}
}

func money(d decimal.Decimal) string {
	return "₱" + d.StringFixed(2)
}

func userNotice(order *models.Order, actor Actor, status, title, message string, now time.Time) outbox.DomainEvent {
	userID := order.UserID
	orderID := order.ID
	return newEvent(enums.EventNotificationRequested, enums.AggregateNotification, order.ID, actor, payloads.NotificationRequestedEvent{
		Audience: enums.AudienceUser,
		UserID:   &userID,
		OrderID:  &orderID,
		Status:   status,
		Title:    title,
		Message:  message,
	}, now)
}

func adminNotice(orderID *uuid.UUID, aggregateID uuid.UUID, actor Actor, kind enums.AdminNotificationType, message string, now time.Time) outbox.DomainEvent {
	return newEvent(enums.EventNotificationRequested, enums.AggregateNotification, aggregateID, actor, payloads.NotificationRequestedEvent{
		Audience:  enums.AudienceAdmin,
		OrderID:   orderID,
		AdminType: kind,
		Message:   message,
	}, now)
}

// placementEvents lists everything a committed order fans out to, in the
// order the dispatcher writes them.
func placementEvents(order *models.Order, spec orders.Spec, method enums.PaymentMethod, proofKey string, deduction *inventory.DeductResult, actor Actor, now time.Time) []outbox.DomainEvent {
	orderID := order.ID
	events := []outbox.DomainEvent{
		newEvent(enums.EventPaymentProofSubmitted, enums.AggregateOrder, order.ID, actor, payloads.PaymentProofSubmittedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			PaymentMethod: method,
			ProofKey:      proofKey,
		}, now),
		userNotice(order, actor, string(enums.OrderStatusPending), "Order received",
			fmt.Sprintf("Your order %s has been received and is pending review.", order.OrderNumber), now),
		adminNotice(&orderID, order.ID, actor, enums.AdminNotificationOrderPlaced,
			fmt.Sprintf("New order %s: %d pcs, %s total, %s.", order.OrderNumber, order.TotalQuantity, money(order.TotalPrice), order.OrderOption), now),
	}

	if deduction != nil && deduction.BelowThreshold {
		events = append(events, adminNotice(nil, deduction.MaterialID, actor, enums.AdminNotificationLowStock,
			fmt.Sprintf("%s is low: %s remaining after order %s.", deduction.MaterialName, deduction.Remaining.String(), order.OrderNumber), now))
	}

	if order.CustomerEmail != nil && *order.CustomerEmail != "" {
		events = append(events, newEvent(enums.EventEmailRequested, enums.AggregateOrder, order.ID, actor, payloads.EmailRequestedEvent{
			To:       *order.CustomerEmail,
			Template: orderConfirmationTemplate,
			Subject:  "Order confirmation " + order.OrderNumber,
			Data: map[string]any{
				"order_number":   order.OrderNumber,
				"total_price":    order.TotalPrice.StringFixed(2),
				"total_quantity": order.TotalQuantity,
				"order_option":   string(order.OrderOption),
				"design_type":    string(order.DesignType),
				"color":          order.Color,
			},
		}, now))
	}

	placed := payloads.OrderPlacedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		ProductID:     order.ProductID,
		DesignType:    order.DesignType,
		OrderOption:   order.OrderOption,
		TotalQuantity: order.TotalQuantity,
		TotalPrice:    order.TotalPrice,
		Sizes:         spec.Sizes,
		PlacedAt:      order.CreatedAt,
	}
	if deduction != nil {
		materialID := deduction.MaterialID
		deducted := deduction.Deducted
		placed.MaterialID = &materialID
		placed.QuantityDeducted = &deducted
	}
	events = append(events, newEvent(enums.EventOrderPlaced, enums.AggregateOrder, order.ID, actor, placed, now))
	return events
}

func statusChangedEvent(change *orders.StatusChange, actor Actor, now time.Time) outbox.DomainEvent {
	order := change.Order
	return newEvent(enums.EventOrderStatusChanged, enums.AggregateOrder, order.ID, actor, payloads.OrderStatusChangedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		OrderOption: order.OrderOption,
		From:        change.From,
		To:          order.Status,
		ActionDate:  order.ActionDate,
		ChangedAt:   now,
	}, now)
}

// statusMessage is the customer-facing text for a transition.
func statusMessage(order *models.Order) (string, string) {
	switch order.Status {
	case enums.OrderStatusForDelivery:
		return "Out for delivery", fmt.Sprintf("Your order %s is being prepared for delivery.", order.OrderNumber)
	case enums.OrderStatusForPickup:
		return "Ready for pickup", fmt.Sprintf("Your order %s is ready for pickup.", order.OrderNumber)
	case enums.OrderStatusCompleted:
		return "Order completed", fmt.Sprintf("Your order %s is complete. Thank you!", order.OrderNumber)
	case enums.OrderStatusCancelled:
		return "Order cancelled", fmt.Sprintf("Your order %s has been cancelled.", order.OrderNumber)
	default:
		return "Order updated", fmt.Sprintf("Your order %s is now %s.", order.OrderNumber, order.Status)
	}
}

// scheduleMessage phrases the action date by fulfillment option.
func scheduleMessage(order *models.Order, date time.Time) (string, string) {
	day := date.Format(actionDateLayout)
	if order.OrderOption == enums.FulfillmentPickup {
		return "Pickup scheduled", fmt.Sprintf("Your order %s can be picked up on %s.", order.OrderNumber, day)
	}
	return "Delivery scheduled", fmt.Sprintf("Your order %s will be delivered on %s.", order.OrderNumber, day)
}

func paymentEvents(result *payments.ApplyResult, amount decimal.Decimal, actor Actor, now time.Time) []outbox.DomainEvent {
	payment := result.Payment
	applied := newEvent(enums.EventPaymentApplied, enums.AggregatePayment, payment.ID, actor, payloads.PaymentAppliedEvent{
		PaymentID:    payment.ID,
		OrderID:      payment.OrderID,
		UserID:       payment.UserID,
		Amount:       amount,
		TotalApplied: result.TotalApplied,
		OrderTotal:   result.OrderTotal,
		Status:       result.Status,
	}, now)

	order := result.Order
	if order == nil {
		order = &models.Order{ID: payment.OrderID, UserID: payment.UserID}
	}
	var message string
	switch result.Status {
	case enums.PaymentStatusFullyPaid:
		message = fmt.Sprintf("Order %s is fully paid (%s).", order.OrderNumber, money(result.TotalApplied))
	case enums.PaymentStatusPartiallyPaid:
		message = fmt.Sprintf("Order %s received %s of %s.", order.OrderNumber, money(result.TotalApplied), money(result.OrderTotal))
	default:
		message = fmt.Sprintf("Payment for order %s is under review.", order.OrderNumber)
	}
	notice := userNotice(order, actor, string(result.Status), "Payment update", message, now)
	return []outbox.DomainEvent{applied, notice}
}
