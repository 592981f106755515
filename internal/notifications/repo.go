package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for user and admin notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateUser(ctx context.Context, notification *models.Notification) (bool, error)
	ListUser(ctx context.Context, params listParams) ([]models.Notification, error)
	MarkUserRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (markResult, error)
	MarkAllUserRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	CreateAdmin(ctx context.Context, notification *models.AdminNotification) (bool, error)
	ListAdmin(ctx context.Context, params listParams) ([]models.AdminNotification, error)
	MarkAdminRead(ctx context.Context, notificationID uuid.UUID, now time.Time) (markResult, error)
	MarkAllAdminRead(ctx context.Context, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listParams struct {
	UserID     uuid.UUID
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

type markResult struct {
	Updated bool
	Found   bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// CreateUser inserts the row unless one already exists for its event id.
// The boolean reports whether a new row was written; on a replay the
// notification is reloaded from the existing row.
func (r *repositoryImpl) CreateUser(ctx context.Context, notification *models.Notification) (bool, error) {
	if notification.EventID != nil {
		var existing models.Notification
		err := r.db.WithContext(ctx).Where("event_id = ?", *notification.EventID).First(&existing).Error
		if err == nil {
			*notification = existing
			return false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
	}
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		if notification.EventID != nil && db.IsUniqueViolation(err, "event_id") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repositoryImpl) ListUser(ctx context.Context, params listParams) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", params.UserID)
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) MarkUserRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (markResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", notificationID, userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return markResult{}, result.Error
	}

	mark := markResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&count).Error; err != nil {
		return markResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllUserRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repositoryImpl) CreateAdmin(ctx context.Context, notification *models.AdminNotification) (bool, error) {
	if notification.EventID != nil {
		var existing models.AdminNotification
		err := r.db.WithContext(ctx).Where("event_id = ?", *notification.EventID).First(&existing).Error
		if err == nil {
			*notification = existing
			return false, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
	}
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		if notification.EventID != nil && db.IsUniqueViolation(err, "event_id") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repositoryImpl) ListAdmin(ctx context.Context, params listParams) ([]models.AdminNotification, error) {
	query := r.db.WithContext(ctx).Model(&models.AdminNotification{})
	if params.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var notifications []models.AdminNotification
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) MarkAdminRead(ctx context.Context, notificationID uuid.UUID, now time.Time) (markResult, error) {
	result := r.db.WithContext(ctx).
		Model(&models.AdminNotification{}).
		Where("id = ? AND read_at IS NULL", notificationID).
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return markResult{}, result.Error
	}

	mark := markResult{Updated: result.RowsAffected > 0}
	if result.RowsAffected > 0 {
		mark.Found = true
		return mark, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.AdminNotification{}).
		Where("id = ?", notificationID).
		Count(&count).Error; err != nil {
		return markResult{}, err
	}
	mark.Found = count > 0
	return mark, nil
}

func (r *repositoryImpl) MarkAllAdminRead(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.AdminNotification{}).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteReadBefore removes user and admin notifications read before cutoff.
// Unread rows are kept regardless of age.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := tx.Where("read_at IS NOT NULL AND read_at < ?", cutoff).Delete(&models.Notification{})
		if users.Error != nil {
			return users.Error
		}
		admins := tx.Where("read_at IS NOT NULL AND read_at < ?", cutoff).Delete(&models.AdminNotification{})
		if admins.Error != nil {
			return admins.Error
		}
		deleted = users.RowsAffected + admins.RowsAffected
		return nil
	})
	return deleted, err
}
