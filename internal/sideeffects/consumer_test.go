package sideeffects

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/bigquery"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "tl:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type fakeRecorder struct {
	calls []payments.RecordParams
	err   error
}

func (f *fakeRecorder) RecordPayment(_ context.Context, params payments.RecordParams) (*models.OrderPayment, error) {
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.OrderPayment{ID: uuid.New(), PaymentNumber: "PAY-TEST", OrderID: params.OrderID}, nil
}

type sentMail struct {
	to, template string
	data         map[string]any
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, templateID string, data map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, template: templateID, data: data})
	return nil
}

type fakeSink struct {
	rows []bigquery.OrderEventRow
}

func (f *fakeSink) InsertOrderEvents(_ context.Context, rows ...bigquery.OrderEventRow) error {
	f.rows = append(f.rows, rows...)
	return nil
}

func newTestConsumer(t *testing.T, recorder paymentRecorder, mail mailer, sink analyticsSink) *Consumer {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: "notifications"})
	require.NoError(t, err)
	manager, err := idempotency.NewManager(&memoryStore{keys: map[string]string{}}, time.Hour)
	require.NoError(t, err)
	c := &Consumer{
		payments:    recorder,
		templates:   map[string]string{"order_confirmation": "d-123"},
		decoders:    reg.Decoders(),
		idempotency: manager,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	}
	if mail != nil {
		c.mailer = mail
	}
	if sink != nil {
		c.analytics = sink
	}
	return c
}

func message(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, payload any) *pubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	env, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), OccurredAt: time.Now().UTC(), Data: data})
	require.NoError(t, err)
	return &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       env,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestProofSubmittedRecordsPaymentOnce(t *testing.T) {
	recorder := &fakeRecorder{}
	c := newTestConsumer(t, recorder, nil, nil)
	eventID := uuid.New()
	orderID := uuid.New()
	msg := message(t, enums.EventPaymentProofSubmitted, eventID, payloads.PaymentProofSubmittedEvent{
		OrderID:       orderID,
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodGCash,
		ProofKey:      "payment/u/proof.png",
	})

	assert.True(t, c.process(context.Background(), msg).ack)
	assert.True(t, c.process(context.Background(), msg).ack)

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	assert.Equal(t, orderID, call.OrderID)
	assert.Equal(t, "payment/u/proof.png", call.ProofKey)
	require.NotNil(t, call.EventID)
	assert.Equal(t, eventID, *call.EventID)
}

func TestProofSubmittedRetriesOnTransientFailure(t *testing.T) {
	recorder := &fakeRecorder{err: pkgerrors.New(pkgerrors.CodeConcurrency, "lock timeout")}
	c := newTestConsumer(t, recorder, nil, nil)
	msg := message(t, enums.EventPaymentProofSubmitted, uuid.New(), payloads.PaymentProofSubmittedEvent{
		OrderID:       uuid.New(),
		UserID:        uuid.New(),
		PaymentMethod: enums.PaymentMethodGCash,
		ProofKey:      "payment/u/proof.png",
	})

	assert.True(t, c.process(context.Background(), msg).nack)

	recorder.err = nil
	assert.True(t, c.process(context.Background(), msg).ack)
	assert.Len(t, recorder.calls, 2)
}

func TestProofSubmittedForMissingOrderIsAcked(t *testing.T) {
	recorder := &fakeRecorder{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	c := newTestConsumer(t, recorder, nil, nil)
	msg := message(t, enums.EventPaymentProofSubmitted, uuid.New(), payloads.PaymentProofSubmittedEvent{OrderID: uuid.New()})

	assert.True(t, c.process(context.Background(), msg).ack)
}

func TestEmailRequestedUsesConfiguredTemplate(t *testing.T) {
	mail := &fakeMailer{}
	c := newTestConsumer(t, &fakeRecorder{}, mail, nil)
	msg := message(t, enums.EventEmailRequested, uuid.New(), payloads.EmailRequestedEvent{
		To:       "buyer@example.com",
		Template: "order_confirmation",
		Subject:  "Order confirmation ORD-1",
		Data:     map[string]any{"order_number": "ORD-1"},
	})

	assert.True(t, c.process(context.Background(), msg).ack)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "buyer@example.com", mail.sent[0].to)
	assert.Equal(t, "d-123", mail.sent[0].template)
	assert.Equal(t, "ORD-1", mail.sent[0].data["order_number"])
	assert.Equal(t, "Order confirmation ORD-1", mail.sent[0].data["subject"])
}

func TestEmailRequestedUnknownTemplateIsDropped(t *testing.T) {
	mail := &fakeMailer{}
	c := newTestConsumer(t, &fakeRecorder{}, mail, nil)
	msg := message(t, enums.EventEmailRequested, uuid.New(), payloads.EmailRequestedEvent{To: "a@example.com", Template: "unknown"})

	assert.True(t, c.process(context.Background(), msg).ack)
	assert.Empty(t, mail.sent)
}

func TestEmailProviderFailureIsRedelivered(t *testing.T) {
	mail := &fakeMailer{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("timeout"), "sendgrid send failed")}
	c := newTestConsumer(t, &fakeRecorder{}, mail, nil)
	msg := message(t, enums.EventEmailRequested, uuid.New(), payloads.EmailRequestedEvent{To: "a@example.com", Template: "order_confirmation"})

	assert.True(t, c.process(context.Background(), msg).nack)
}

func TestOrderPlacedWritesAnalyticsRow(t *testing.T) {
	sink := &fakeSink{}
	c := newTestConsumer(t, &fakeRecorder{}, nil, sink)
	eventID := uuid.New()
	orderID := uuid.New()
	msg := message(t, enums.EventOrderPlaced, eventID, payloads.OrderPlacedEvent{
		OrderID:       orderID,
		OrderNumber:   "ORD-20260101-ABCDEFGHIJ",
		UserID:        uuid.New(),
		DesignType:    enums.DesignTypeOwn,
		OrderOption:   enums.FulfillmentPickup,
		TotalQuantity: 12,
		TotalPrice:    decimal.NewFromInt(3000),
		PlacedAt:      time.Now().UTC(),
	})

	assert.True(t, c.process(context.Background(), msg).ack)
	require.Len(t, sink.rows, 1)
	row := sink.rows[0]
	assert.Equal(t, eventID.String(), row.EventID)
	assert.Equal(t, orderID.String(), row.OrderID)
	assert.Equal(t, "pending", row.Status)
	assert.Equal(t, int64(12), row.Quantity)
	assert.Equal(t, "3000.00", row.TotalPrice)
}

func TestAnalyticsEventsSkippedWithoutSink(t *testing.T) {
	c := newTestConsumer(t, &fakeRecorder{}, nil, nil)
	msg := message(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{OrderID: uuid.New()})

	assert.True(t, c.process(context.Background(), msg).ack)
}

func TestUnhandledEventsAreAcked(t *testing.T) {
	recorder := &fakeRecorder{}
	c := newTestConsumer(t, recorder, nil, &fakeSink{})
	msg := message(t, enums.EventNotificationRequested, uuid.New(), payloads.NotificationRequestedEvent{Message: "x"})

	assert.True(t, c.process(context.Background(), msg).ack)
	assert.Empty(t, recorder.calls)
}
