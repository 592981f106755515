package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db/dbtest"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type fakeBroadcaster struct {
	publish  func(ctx context.Context, channel string, payload []byte) error
	messages []published
}

func (f *fakeBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	f.messages = append(f.messages, published{channel: channel, payload: payload})
	if f.publish != nil {
		return f.publish(ctx, channel, payload)
	}
	return nil
}

func (f *fakeBroadcaster) UserChannel(userID string) string {
	return "user." + userID + ".notifications"
}
func (f *fakeBroadcaster) AdminChannel() string { return "admin.notifications" }

type fakeMetrics struct {
	failures map[string]int
}

func (f *fakeMetrics) IncBroadcastFailure(audience string) {
	if f.failures == nil {
		f.failures = map[string]int{}
	}
	f.failures[audience]++
}

func newTestService(t *testing.T, broadcaster *fakeBroadcaster, metrics *fakeMetrics) (*service, *bytes.Buffer) {
	t.Helper()
	conn := dbtest.Open(t, "notifications")
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &logs})
	svc, err := NewService(NewRepository(conn), broadcaster, metrics, logg)
	require.NoError(t, err)
	return svc.(*service), &logs
}

func TestNotifyUserPersistsAndBroadcasts(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	svc, _ := newTestService(t, broadcaster, nil)
	userID := uuid.New()
	orderID := uuid.New()

	row, err := svc.NotifyUser(context.Background(), UserNotification{
		UserID:  userID,
		OrderID: &orderID,
		Status:  string(enums.OrderStatusPending),
		Title:   "Order received",
		Message: "We received your order.",
	})
	require.NoError(t, err)
	assert.Equal(t, userID, row.UserID)

	require.Len(t, broadcaster.messages, 1)
	assert.Equal(t, "user."+userID.String()+".notifications", broadcaster.messages[0].channel)

	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(broadcaster.messages[0].payload, &msg))
	assert.Equal(t, eventUserNotification, msg.Event)

	list, err := svc.List(context.Background(), ListParams{UserID: userID})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Order received", list.Items[0].Title)
}

func TestNotifyUserIsIdempotentPerEvent(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	svc, _ := newTestService(t, broadcaster, nil)
	userID := uuid.New()
	eventID := uuid.New()
	input := UserNotification{UserID: userID, Title: "Paid", Message: "Payment verified.", EventID: &eventID}

	first, err := svc.NotifyUser(context.Background(), input)
	require.NoError(t, err)
	second, err := svc.NotifyUser(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, broadcaster.messages, 1)

	list, err := svc.List(context.Background(), ListParams{UserID: userID})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestBroadcastFailureIsSwallowed(t *testing.T) {
	broadcaster := &fakeBroadcaster{publish: func(context.Context, string, []byte) error {
		return errors.New("redis down")
	}}
	metrics := &fakeMetrics{}
	svc, logs := newTestService(t, broadcaster, metrics)

	_, err := svc.NotifyUser(context.Background(), UserNotification{UserID: uuid.New(), Message: "hello"})
	require.NoError(t, err)
	_, err = svc.NotifyAdmin(context.Background(), AdminNotification{Type: enums.AdminNotificationOrderPlaced, Message: "new order"})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.failures["user"])
	assert.Equal(t, 1, metrics.failures["admin"])
	assert.Contains(t, logs.String(), "notification broadcast failed")

	admin, err := svc.ListAdmin(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Len(t, admin.Items, 1)
}

func TestNotifyValidation(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	_, err := svc.NotifyUser(context.Background(), UserNotification{Message: "x"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.NotifyUser(context.Background(), UserNotification{UserID: uuid.New(), Message: "  "})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.NotifyAdmin(context.Background(), AdminNotification{Type: "weekly_digest", Message: "x"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestUserMarkReadScopesToOwner(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	owner := uuid.New()

	first, err := svc.NotifyUser(context.Background(), UserNotification{UserID: owner, Message: "one"})
	require.NoError(t, err)
	_, err = svc.NotifyUser(context.Background(), UserNotification{UserID: owner, Message: "two"})
	require.NoError(t, err)

	err = svc.MarkRead(context.Background(), uuid.New(), first.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	require.NoError(t, svc.MarkRead(context.Background(), owner, first.ID))
	require.NoError(t, svc.MarkRead(context.Background(), owner, first.ID))

	unread, err := svc.List(context.Background(), ListParams{UserID: owner, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	assert.Equal(t, "two", unread.Items[0].Message)

	count, err := svc.MarkAllRead(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserListPaginates(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	userID := uuid.New()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		_, err := svc.NotifyUser(context.Background(), UserNotification{UserID: userID, Message: at.Format(time.Kitchen)})
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)

	rest, err := svc.List(context.Background(), ListParams{UserID: userID, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Empty(t, rest.Cursor)
	assert.Equal(t, base.Format(time.Kitchen), rest.Items[0].Message)

	_, err = svc.List(context.Background(), ListParams{UserID: userID, Cursor: "###"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestAdminReadStateIsShared(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	svc, _ := newTestService(t, broadcaster, nil)

	first, err := svc.NotifyAdmin(context.Background(), AdminNotification{Type: enums.AdminNotificationOrderPlaced, Message: "ORD-1 placed"})
	require.NoError(t, err)
	_, err = svc.NotifyAdmin(context.Background(), AdminNotification{Type: enums.AdminNotificationLowStock, Message: "Cotton low"})
	require.NoError(t, err)
	require.Len(t, broadcaster.messages, 2)
	assert.Equal(t, "admin.notifications", broadcaster.messages[0].channel)

	require.NoError(t, svc.MarkAdminRead(context.Background(), first.ID))
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(svc.MarkAdminRead(context.Background(), uuid.New())))

	unread, err := svc.ListAdmin(context.Background(), ListParams{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread.Items, 1)
	assert.Equal(t, enums.AdminNotificationLowStock, unread.Items[0].Type)

	count, err := svc.MarkAllAdminRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	all, err := svc.ListAdmin(context.Background(), ListParams{})
	require.NoError(t, err)
	for _, row := range all.Items {
		assert.NotNil(t, row.ReadAt)
	}
}

func TestDeleteReadBeforeKeepsUnread(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)
	ctx := context.Background()
	userID := uuid.New()
	past := time.Now().UTC().Add(-60 * 24 * time.Hour)
	svc.now = func() time.Time { return past }

	read, err := svc.NotifyUser(ctx, UserNotification{UserID: userID, Status: "placed", Title: "Placed", Message: "ORD-1"})
	require.NoError(t, err)
	_, err = svc.NotifyUser(ctx, UserNotification{UserID: userID, Status: "placed", Title: "Placed", Message: "ORD-2"})
	require.NoError(t, err)
	_, err = svc.NotifyAdmin(ctx, AdminNotification{Type: enums.AdminNotificationOrderPlaced, Message: "ORD-1 placed"})
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, userID, read.ID))
	_, err = svc.MarkAllAdminRead(ctx)
	require.NoError(t, err)

	deleted, err := svc.repo.DeleteReadBefore(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	left, err := svc.List(ctx, ListParams{UserID: userID})
	require.NoError(t, err)
	require.Len(t, left.Items, 1)
	assert.Nil(t, left.Items[0].ReadAt)
}
