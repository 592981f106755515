package notifications

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
	"github.com/google/uuid"
)

const (
	eventUserNotification  = "user.notification"
	eventAdminNotification = "admin.notification"
)

// Broadcaster pushes realtime messages to connected clients.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	UserChannel(userID string) string
	AdminChannel() string
}

type broadcastMetrics interface {
	IncBroadcastFailure(audience string)
}

// Service defines notification write, list and read operations.
type Service interface {
	NotifyUser(ctx context.Context, input UserNotification) (*models.Notification, error)
	NotifyAdmin(ctx context.Context, input AdminNotification) (*models.AdminNotification, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	ListAdmin(ctx context.Context, params ListParams) (*AdminListResult, error)
	MarkAdminRead(ctx context.Context, notificationID uuid.UUID) error
	MarkAllAdminRead(ctx context.Context) (int64, error)
}

type service struct {
	repo        Repository
	broadcaster Broadcaster
	metrics     broadcastMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// UserNotification is a message for one customer. EventID deduplicates replays.
type UserNotification struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Status  string
	Title   string
	Message string
	EventID *uuid.UUID
}

// AdminNotification is a message for all staff. EventID deduplicates replays.
type AdminNotification struct {
	Type    enums.AdminNotificationType
	OrderID *uuid.UUID
	Message string
	EventID *uuid.UUID
}

// ListParams configures pagination for notifications. UserID is ignored for
// the admin list.
type ListParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// AdminListResult wraps returned admin notifications and the next cursor.
type AdminListResult struct {
	Items  []models.AdminNotification `json:"items"`
	Cursor string                     `json:"cursor"`
}

type broadcastMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewService wires notifications dependencies. broadcaster and metrics may be
// nil; rows are still persisted and readable.
func NewService(repo Repository, broadcaster Broadcaster, metrics broadcastMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     metrics,
		logg:        logg,
		now:         time.Now,
	}, nil
}

func (s *service) NotifyUser(ctx context.Context, input UserNotification) (*models.Notification, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}

	row := &models.Notification{
		ID:        uuid.New(),
		UserID:    input.UserID,
		OrderID:   input.OrderID,
		Status:    input.Status,
		Title:     strings.TrimSpace(input.Title),
		Message:   strings.TrimSpace(input.Message),
		EventID:   input.EventID,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.repo.CreateUser(ctx, row)
	if err != nil {
		return nil, db.Classify(err, "create notification")
	}
	if created && s.broadcaster != nil {
		s.broadcast(ctx, enums.AudienceUser, s.broadcaster.UserChannel(row.UserID.String()), eventUserNotification, row)
	}
	return row, nil
}

func (s *service) NotifyAdmin(ctx context.Context, input AdminNotification) (*models.AdminNotification, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid admin notification type")
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}

	row := &models.AdminNotification{
		ID:        uuid.New(),
		Type:      input.Type,
		OrderID:   input.OrderID,
		Message:   strings.TrimSpace(input.Message),
		EventID:   input.EventID,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.repo.CreateAdmin(ctx, row)
	if err != nil {
		return nil, db.Classify(err, "create admin notification")
	}
	if created && s.broadcaster != nil {
		s.broadcast(ctx, enums.AudienceAdmin, s.broadcaster.AdminChannel(), eventAdminNotification, row)
	}
	return row, nil
}

// broadcast failures are logged and counted, never returned.
func (s *service) broadcast(ctx context.Context, audience enums.NotificationAudience, channel, event string, data any) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"audience": string(audience),
		"channel":  channel,
	})
	payload, err := json.Marshal(broadcastMessage{Event: event, Data: data})
	if err == nil {
		err = s.broadcaster.Publish(ctx, channel, payload)
	}
	if err != nil {
		s.logg.Warn(logCtx, "notification broadcast failed: "+err.Error())
		if s.metrics != nil {
			s.metrics.IncBroadcastFailure(string(audience))
		}
	}
}

func parseCursor(raw string) (*pagination.Cursor, error) {
	if raw == "" {
		return nil, nil
	}
	cursor, err := pagination.ParseCursor(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return cursor, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	cursor, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListUser(ctx, listParams{
		UserID:     params.UserID,
		Limit:      params.Limit,
		Cursor:     cursor,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	items, next := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkUserRead(ctx, userID, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	count, err := s.repo.MarkAllUserRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) ListAdmin(ctx context.Context, params ListParams) (*AdminListResult, error) {
	cursor, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListAdmin(ctx, listParams{
		Limit:      params.Limit,
		Cursor:     cursor,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list admin notifications")
	}
	items, next := pagination.Trim(rows, params.Limit, func(n models.AdminNotification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &AdminListResult{Items: items, Cursor: next}, nil
}

func (s *service) MarkAdminRead(ctx context.Context, notificationID uuid.UUID) error {
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkAdminRead(ctx, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark admin notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllAdminRead(ctx context.Context) (int64, error) {
	count, err := s.repo.MarkAllAdminRead(ctx, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark admin notifications read")
	}
	return count, nil
}
