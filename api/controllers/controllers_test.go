package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/api/middleware"
	"github.com/angelmondragon/threadline-backend/internal/fulfillment"
	"github.com/angelmondragon/threadline-backend/internal/notifications"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/paymongo"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
)

type stubPlacer struct {
	place func(ctx context.Context, input fulfillment.PlaceOrderInput) (*fulfillment.PlaceOrderResult, error)
}

func (s stubPlacer) PlaceOrder(ctx context.Context, input fulfillment.PlaceOrderInput) (*fulfillment.PlaceOrderResult, error) {
	return s.place(ctx, input)
}

type stubReader struct {
	order *models.Order
}

func (s stubReader) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s stubReader) List(ctx context.Context, params orders.ListParams) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

type stubSigner struct{}

func (stubSigner) TemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

type stubActions struct {
	updateStatus func(ctx context.Context, input fulfillment.StatusInput) (*orders.StatusChange, error)
}

func (s stubActions) UpdateStatus(ctx context.Context, input fulfillment.StatusInput) (*orders.StatusChange, error) {
	return s.updateStatus(ctx, input)
}

func (stubActions) SetActionDate(ctx context.Context, input fulfillment.ActionDateInput) (*orders.StatusChange, error) {
	return nil, errors.New("unexpected call")
}

func (stubActions) ApplyPayment(ctx context.Context, input fulfillment.ApplyPaymentInput) (*fulfillment.ApplyPaymentResult, error) {
	return nil, errors.New("unexpected call")
}

type stubUserNotifications struct {
	markRead func(ctx context.Context, userID, notificationID uuid.UUID) error
}

func (stubUserNotifications) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (s stubUserNotifications) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.markRead(ctx, userID, notificationID)
}

func (stubUserNotifications) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 3, nil
}

type stubWebhook struct {
	handle func(ctx context.Context, body []byte, signature string) (*paymongo.WebhookOutcome, error)
}

func (s stubWebhook) HandleWebhook(ctx context.Context, body []byte, signature string) (*paymongo.WebhookOutcome, error) {
	return s.handle(ctx, body, signature)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func withActor(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestPlaceOrderParsesMultipartSubmission(t *testing.T) {
	userID := uuid.New()
	productID := uuid.New()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"color":              "black",
		"phone_number":       "09171234567",
		"address":            "12 Rizal St",
		"design_type":        string(enums.DesignTypeOwn),
		"order_option":       "delivery",
		"product_id":         productID.String(),
		"product_unit_price": "350.00",
		"total_price":        "700.00",
		"total_quantity":     "2",
		"sizes":              `{"M":1,"L":1}`,
		"payment_method":     "gcash",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := mw.CreateFormFile(proofField, "proof.png")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	_, _ = part.Write([]byte("png-bytes"))
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	var captured fulfillment.PlaceOrderInput
	var proofBody []byte
	handler := PlaceOrder(stubPlacer{place: func(ctx context.Context, input fulfillment.PlaceOrderInput) (*fulfillment.PlaceOrderResult, error) {
		captured = input
		if input.Proof != nil {
			proofBody, _ = io.ReadAll(input.Proof.Body)
		}
		return &fulfillment.PlaceOrderResult{Order: &models.Order{ID: uuid.New(), UserID: userID, Status: enums.OrderStatusPending}}, nil
	}}, 5, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = withActor(req, userID, enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Actor.UserID != userID {
		t.Fatalf("expected actor %s got %s", userID, captured.Actor.UserID)
	}
	if captured.Spec.ProductID != productID {
		t.Fatalf("unexpected product id %s", captured.Spec.ProductID)
	}
	if !captured.Spec.TotalPrice.Equal(decimal.RequireFromString("700")) {
		t.Fatalf("unexpected total price %s", captured.Spec.TotalPrice)
	}
	if captured.Spec.Sizes["M"] != 1 || captured.Spec.Sizes["L"] != 1 {
		t.Fatalf("unexpected sizes %v", captured.Spec.Sizes)
	}
	if captured.PaymentMethod != enums.PaymentMethod("gcash") {
		t.Fatalf("unexpected payment method %q", captured.PaymentMethod)
	}
	if string(proofBody) != "png-bytes" {
		t.Fatalf("unexpected proof body %q", proofBody)
	}
	if captured.DesignFile != nil {
		t.Fatal("expected no design file")
	}
}

func TestPlaceOrderRejectsMalformedFields(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("total_quantity", "two")
	_ = mw.WriteField("sizes", "[1,2]")
	_ = mw.Close()

	called := false
	handler := PlaceOrder(stubPlacer{place: func(ctx context.Context, input fulfillment.PlaceOrderInput) (*fulfillment.PlaceOrderResult, error) {
		called = true
		return nil, nil
	}}, 5, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = withActor(req, uuid.New(), enums.UserRoleCustomer)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if called {
		t.Fatal("service should not run for malformed forms")
	}
}

func TestGetOrderHidesOtherCustomersOrders(t *testing.T) {
	order := &models.Order{ID: uuid.New(), UserID: uuid.New()}
	handler := GetOrder(stubReader{order: order}, stubSigner{}, time.Minute, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	req = withActor(req, uuid.New(), enums.UserRoleCustomer)
	req = addRouteParam(req, "orderId", order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestGetOrderSignsArtifactsForOwner(t *testing.T) {
	key := "designs/abc.png"
	order := &models.Order{ID: uuid.New(), UserID: uuid.New(), OwnDesignKey: &key}
	handler := GetOrder(stubReader{order: order}, stubSigner{}, time.Minute, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+order.ID.String(), nil)
	req = withActor(req, order.UserID, enums.UserRoleCustomer)
	req = addRouteParam(req, "orderId", order.ID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	data := decodeData(t, resp.Body.Bytes())
	if data["design_url"] != "https://signed.example/"+key {
		t.Fatalf("unexpected design url %v", data["design_url"])
	}
}

func TestAdminUpdateStatusRejectsUnknownStatus(t *testing.T) {
	handler := AdminUpdateStatus(stubActions{updateStatus: func(ctx context.Context, input fulfillment.StatusInput) (*orders.StatusChange, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}, nil)

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"shipped"}`))
	req = withActor(req, uuid.New(), enums.UserRoleAdmin)
	req = addRouteParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminUpdateStatusReturnsChange(t *testing.T) {
	orderID := uuid.New()
	adminID := uuid.New()
	handler := AdminUpdateStatus(stubActions{updateStatus: func(ctx context.Context, input fulfillment.StatusInput) (*orders.StatusChange, error) {
		if input.Actor.UserID != adminID || input.Actor.Role != enums.UserRoleAdmin {
			t.Fatalf("unexpected actor %+v", input.Actor)
		}
		return &orders.StatusChange{
			Order: &models.Order{ID: input.OrderID, Status: input.Status},
			From:  enums.OrderStatusPending,
		}, nil
	}}, nil)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"completed"}`))
	req = withActor(req, adminID, enums.UserRoleAdmin)
	req = addRouteParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	data := decodeData(t, resp.Body.Bytes())
	if data["from_status"] != string(enums.OrderStatusPending) {
		t.Fatalf("unexpected from_status %v", data["from_status"])
	}
}

func TestParseActionDateAcceptsDateOnly(t *testing.T) {
	got, err := parseActionDate("2026-03-14")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.March || got.Day() != 14 {
		t.Fatalf("unexpected date %v", got)
	}
	if _, err := parseActionDate("next tuesday"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
}

func TestMarkNotificationReadUsesCaller(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()
	handler := MarkNotificationRead(stubUserNotifications{markRead: func(ctx context.Context, gotUser, gotID uuid.UUID) error {
		if gotUser != userID || gotID != notificationID {
			t.Fatalf("unexpected ids %s %s", gotUser, gotID)
		}
		return nil
	}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withActor(req, userID, enums.UserRoleCustomer)
	req = addRouteParam(req, "notificationId", notificationID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if data := decodeData(t, resp.Body.Bytes()); data["read"] != true {
		t.Fatalf("unexpected body %v", data)
	}
}

func TestNotificationParamsRejectsBadLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=-1", nil)
	if _, err := notificationParams(req); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error got %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/?limit=10&unreadOnly=true&cursor=abc", nil)
	params, err := notificationParams(req)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.Limit != 10 || !params.UnreadOnly || params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestPaymongoWebhookPassesSignature(t *testing.T) {
	var gotSig string
	var gotBody []byte
	handler := PaymongoWebhook(stubWebhook{handle: func(ctx context.Context, body []byte, signature string) (*paymongo.WebhookOutcome, error) {
		gotSig = signature
		gotBody = body
		return &paymongo.WebhookOutcome{Handled: false}, nil
	}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"data":{}}`))
	req.Header.Set(signatureHeader, "t=1,te=abc")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignored events got %d", resp.Code)
	}
	if gotSig != "t=1,te=abc" || string(gotBody) != `{"data":{}}` {
		t.Fatalf("unexpected forwarded values %q %q", gotSig, gotBody)
	}
}

func TestPaymongoWebhookRejectsBadSignature(t *testing.T) {
	handler := PaymongoWebhook(stubWebhook{handle: func(ctx context.Context, body []byte, signature string) (*paymongo.WebhookOutcome, error) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestHealthReadyReportsFailedDependency(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	handler := HealthReady(cfg, nil,
		ReadinessCheck{Name: "db", Pinger: failingPinger{}},
		ReadinessCheck{Name: "redis"},
	)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "connection refused") {
		t.Fatalf("expected failed check in body: %s", resp.Body.String())
	}
}
