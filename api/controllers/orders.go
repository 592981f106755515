package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
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
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
)

const (
	proofField  = "payment_proof"
	designField = "design_file"
	// multipart parts beyond this stay on disk until the request ends.
	multipartMemory = 8 << 20
)

type orderPlacer interface {
	PlaceOrder(ctx context.Context, input fulfillment.PlaceOrderInput) (*fulfillment.PlaceOrderResult, error)
}

type orderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params orders.ListParams) (*orders.OrderList, error)
}

// PlaceOrder accepts a multipart submission: order fields as form values,
// the proof of payment as "payment_proof" and an optional own-design file as
// "design_file".
func PlaceOrder(svc orderPlacer, maxUploadMB int, logg *logger.Logger) http.HandlerFunc {
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

		if maxUploadMB > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, int64(maxUploadMB)<<20)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "upload too large").
					WithDetails(map[string]string{"limit_mb": strconv.Itoa(maxUploadMB)}))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		input, err := placeOrderInput(r.MultipartForm)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Actor = actor

		proof, closeProof, err := formFile(r.MultipartForm, proofField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer closeProof()
		input.Proof = proof

		design, closeDesign, err := formFile(r.MultipartForm, designField)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer closeDesign()
		input.DesignFile = design

		result, err := svc.PlaceOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"order":     newOrderView(result.Order),
			"deduction": result.Deduction,
		})
	}
}

// ListOrders returns the caller's orders, newest first.
func ListOrders(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.UserID = &userID
		writeOrderList(w, r, svc, params, logg)
	}
}

// AdminListOrders returns every order, optionally filtered by status.
func AdminListOrders(svc orderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrderList(w, r, svc, params, logg)
	}
}

// GetOrder returns one order with its sizes, payments and temporary URLs for
// stored artifacts. Customers only see their own orders.
func GetOrder(svc orderReader, signer urlSigner, urlTTL time.Duration, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := uuidParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.UserID != userID && !isAdmin(r) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		view := newOrderView(order)
		for _, signErr := range signOrderURLs(r.Context(), signer, urlTTL, order, &view) {
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", signErr.Error()), "order.artifact_url_failed")
			}
		}
		responses.WriteSuccess(w, view)
	}
}

func writeOrderList(w http.ResponseWriter, r *http.Request, svc orderReader, params orders.ListParams, logg *logger.Logger) {
	list, err := svc.List(r.Context(), params)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	view := orderListView{Orders: make([]orderView, 0, len(list.Orders)), NextCursor: list.NextCursor}
	for i := range list.Orders {
		view.Orders = append(view.Orders, newOrderView(&list.Orders[i]))
	}
	responses.WriteSuccess(w, view)
}

func listParams(r *http.Request) (orders.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return orders.ListParams{}, err
	}
	params := orders.ListParams{
		Pagination: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		},
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return orders.ListParams{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		params.Status = &status
	}
	return params, nil
}

func placeOrderInput(form *multipart.Form) (fulfillment.PlaceOrderInput, error) {
	value := func(key string) string {
		if form == nil || len(form.Value[key]) == 0 {
			return ""
		}
		return strings.TrimSpace(form.Value[key][0])
	}
	details := map[string]string{}

	spec := orders.Spec{
		Color:       validators.SanitizeString(value("color"), 64),
		PhoneNumber: validators.SanitizeString(value("phone_number"), 32),
		Address:     validators.SanitizeString(value("address"), 500),
		DesignType:  enums.DesignType(value("design_type")),
		OrderOption: enums.FulfillmentOption(value("order_option")),
	}
	if email := value("customer_email"); email != "" {
		spec.CustomerEmail = &email
	}
	if raw := value("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			details["product_id"] = "must be a valid id"
		}
		spec.ProductID = id
	}
	spec.ProductUnitPrice = formDecimal(value("product_unit_price"), "product_unit_price", details)
	spec.TotalPrice = formDecimal(value("total_price"), "total_price", details)
	spec.TotalQuantity = formInt(value("total_quantity"), "total_quantity", details)
	spec.SoloQuantity = formInt(value("solo_quantity"), "solo_quantity", details)
	if raw := value("sizes"); raw != "" {
		sizes := map[string]int{}
		if err := json.Unmarshal([]byte(raw), &sizes); err != nil {
			details["sizes"] = "must be an object of size to quantity"
		}
		spec.Sizes = sizes
	}
	if raw := value("business_design_url"); raw != "" {
		spec.BusinessDesignURL = &raw
	}
	if raw := value("ai_design_ref"); raw != "" {
		spec.AIDesignRef = &raw
	}
	spec.FabricTypeID = formUUID(value("fabric_type_id"), "fabric_type_id", details)
	spec.UploadedAssetID = formUUID(value("uploaded_asset_id"), "uploaded_asset_id", details)

	if len(details) > 0 {
		return fulfillment.PlaceOrderInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order form").WithDetails(details)
	}
	return fulfillment.PlaceOrderInput{
		Spec:          spec,
		PaymentMethod: enums.PaymentMethod(value("payment_method")),
	}, nil
}

func formDecimal(raw, field string, details map[string]string) decimal.Decimal {
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		details[field] = "must be a number"
		return decimal.Zero
	}
	return d
}

func formInt(raw, field string, details map[string]string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		details[field] = "must be an integer"
		return 0
	}
	return n
}

func formUUID(raw, field string, details map[string]string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		details[field] = "must be a valid id"
		return nil
	}
	return &id
}

func formFile(form *multipart.Form, field string) (*fulfillment.File, func(), error) {
	noop := func() {}
	if form == nil || len(form.File[field]) == 0 {
		return nil, noop, nil
	}
	header := form.File[field][0]
	f, err := header.Open()
	if err != nil {
		return nil, noop, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable "+field)
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &fulfillment.File{
		Filename:    header.Filename,
		ContentType: contentType,
		Body:        f,
	}, func() { _ = f.Close() }, nil
}
