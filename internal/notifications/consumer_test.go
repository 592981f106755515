package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/registry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
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

func newTestConsumer(t *testing.T, svc Service) *Consumer {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders", NotificationTopic: "notifications"})
	require.NoError(t, err)
	manager, err := idempotency.NewManager(&memoryStore{keys: map[string]string{}}, time.Hour)
	require.NoError(t, err)
	return &Consumer{
		svc:         svc,
		decoders:    reg.Decoders(),
		idempotency: manager,
		logg:        logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
	}
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

func TestConsumerDeliversUserNotificationOnce(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	svc, _ := newTestService(t, broadcaster, nil)
	consumer := newTestConsumer(t, svc)
	userID := uuid.New()
	orderID := uuid.New()
	msg := message(t, enums.EventNotificationRequested, uuid.New(), payloads.NotificationRequestedEvent{
		Audience: enums.AudienceUser,
		UserID:   &userID,
		OrderID:  &orderID,
		Status:   string(enums.OrderStatusPending),
		Title:    "Order received",
		Message:  "Your order is pending review.",
	})

	assert.True(t, consumer.process(context.Background(), msg).ack)
	assert.True(t, consumer.process(context.Background(), msg).ack)

	list, err := svc.List(context.Background(), ListParams{UserID: userID})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.NotNil(t, list.Items[0].EventID)
	assert.Len(t, broadcaster.messages, 1)
}

func TestConsumerDeliversAdminNotification(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	consumer := newTestConsumer(t, svc)
	msg := message(t, enums.EventNotificationRequested, uuid.New(), payloads.NotificationRequestedEvent{
		Audience:  enums.AudienceAdmin,
		AdminType: enums.AdminNotificationPaymentConfirmed,
		Message:   "QR payment confirmed",
	})

	assert.True(t, consumer.process(context.Background(), msg).ack)

	list, err := svc.ListAdmin(context.Background(), ListParams{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, enums.AdminNotificationPaymentConfirmed, list.Items[0].Type)
}

func TestConsumerSkipsOtherEventsAndBadPayloads(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	consumer := newTestConsumer(t, svc)

	other := message(t, enums.EventOrderPlaced, uuid.New(), map[string]any{"order_id": uuid.NewString()})
	assert.True(t, consumer.process(context.Background(), other).ack)

	garbage := &pubsub.Message{ID: "1", Data: []byte("{"), Attributes: map[string]string{"event_type": string(enums.EventNotificationRequested)}}
	assert.True(t, consumer.process(context.Background(), garbage).ack)

	missingUser := message(t, enums.EventNotificationRequested, uuid.New(), payloads.NotificationRequestedEvent{
		Audience: enums.AudienceUser,
		Message:  "orphan",
	})
	assert.True(t, consumer.process(context.Background(), missingUser).ack)

	list, err := svc.ListAdmin(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}
