package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	"github.com/angelmondragon/threadline-backend/internal/fulfillment"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

type fulfillmentActions interface {
	UpdateStatus(ctx context.Context, input fulfillment.StatusInput) (*orders.StatusChange, error)
	SetActionDate(ctx context.Context, input fulfillment.ActionDateInput) (*orders.StatusChange, error)
	ApplyPayment(ctx context.Context, input fulfillment.ApplyPaymentInput) (*fulfillment.ApplyPaymentResult, error)
}

type usageReader interface {
	ListUsage(ctx context.Context, orderID uuid.UUID) ([]models.MaterialUsageLog, error)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type actionDateRequest struct {
	Status     string `json:"status" validate:"required"`
	ActionDate string `json:"action_date" validate:"required"`
}

type applyPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type statusChangeView struct {
	Order      orderView         `json:"order"`
	FromStatus enums.OrderStatus `json:"from_status"`
}

// AdminUpdateStatus moves an order through its lifecycle.
func AdminUpdateStatus(svc fulfillmentActions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		actor, orderID, err := adminOrderTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body statusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]string{"status": "is invalid"}))
			return
		}

		change, err := svc.UpdateStatus(r.Context(), fulfillment.StatusInput{Actor: actor, OrderID: orderID, Status: status})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusChangeView{Order: newOrderView(change.Order), FromStatus: change.From})
	}
}

// AdminSetActionDate schedules delivery or pickup. action_date accepts
// RFC 3339 or YYYY-MM-DD.
func AdminSetActionDate(svc fulfillmentActions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		actor, orderID, err := adminOrderTarget(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body actionDateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
				WithDetails(map[string]string{"status": "is invalid"}))
			return
		}
		date, err := parseActionDate(body.ActionDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		change, err := svc.SetActionDate(r.Context(), fulfillment.ActionDateInput{
			Actor:   actor,
			OrderID: orderID,
			Status:  status,
			Date:    date,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, statusChangeView{Order: newOrderView(change.Order), FromStatus: change.From})
	}
}

// AdminOrderUsage returns the material usage log written for an order.
func AdminOrderUsage(svc usageReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		orderID, err := uuidParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		logs, err := svc.ListUsage(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]usageView, 0, len(logs))
		for _, l := range logs {
			views = append(views, newUsageView(l))
		}
		responses.WriteSuccess(w, views)
	}
}

// AdminApplyPayment records the amount staff verified for a payment and
// returns the recomputed payment status of the order.
func AdminApplyPayment(svc fulfillmentActions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuidParam(r, "paymentId", "payment id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body applyPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ApplyPayment(r.Context(), fulfillment.ApplyPaymentInput{
			Actor:     actor,
			PaymentID: paymentID,
			Amount:    body.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"payment":       newPaymentView(*result.Payment),
			"total_applied": result.TotalApplied,
			"order_total":   result.OrderTotal,
			"status":        result.Status,
		})
	}
}

func adminOrderTarget(r *http.Request) (fulfillment.Actor, uuid.UUID, error) {
	actor, err := actorFrom(r)
	if err != nil {
		return fulfillment.Actor{}, uuid.Nil, err
	}
	orderID, err := uuidParam(r, "orderId", "order id")
	if err != nil {
		return fulfillment.Actor{}, uuid.Nil, err
	}
	return actor, orderID, nil
}

func parseActionDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action date").
			WithDetails(map[string]string{"action_date": "must be RFC 3339 or YYYY-MM-DD"})
	}
	return t, nil
}
