package enums

import "fmt"

// AdminNotificationType classifies rows in admin_notifications.
type AdminNotificationType string

const (
	AdminNotificationOrderPlaced      AdminNotificationType = "order_placed"
	AdminNotificationPaymentConfirmed AdminNotificationType = "payment_confirmed"
	AdminNotificationLowStock         AdminNotificationType = "low_stock"
)

var validAdminNotificationTypes = []AdminNotificationType{
	AdminNotificationOrderPlaced,
	AdminNotificationPaymentConfirmed,
	AdminNotificationLowStock,
}

// IsValid checks whether the given type matches the canonical enum.
func (n AdminNotificationType) IsValid() bool {
	for _, candidate := range validAdminNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseAdminNotificationType converts raw strings into AdminNotificationType.
func ParseAdminNotificationType(value string) (AdminNotificationType, error) {
	for _, candidate := range validAdminNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid admin notification type %q", value)
}

// NotificationAudience selects which notification kind a request targets.
type NotificationAudience string

const (
	AudienceUser  NotificationAudience = "user"
	AudienceAdmin NotificationAudience = "admin"
)
