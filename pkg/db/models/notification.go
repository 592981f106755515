package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

// Notification is an in-app message addressed to one customer.
type Notification struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	OrderID   *uuid.UUID `gorm:"column:order_id;type:uuid"`
	Status    string     `gorm:"column:status;not null"`
	Title     string     `gorm:"column:title;not null"`
	Message   string     `gorm:"column:message;not null"`
	EventID   *uuid.UUID `gorm:"column:event_id;type:uuid;uniqueIndex"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// AdminNotification is a staff-wide message; read state is shared across staff.
type AdminNotification struct {
	ID        uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type      enums.AdminNotificationType `gorm:"column:type;type:text;not null"`
	OrderID   *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	Message   string                      `gorm:"column:message;not null"`
	EventID   *uuid.UUID                  `gorm:"column:event_id;type:uuid;uniqueIndex"`
	ReadAt    *time.Time                  `gorm:"column:read_at"`
	CreatedAt time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
