package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/threadline-backend/internal/notifications"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

const (
	defaultRetentionDays = 30
	maxDigestEntries     = 10
)

// lowStockNamespace seeds the per-day event id so a digest is written once per day.
var lowStockNamespace = uuid.MustParse("8f7d2a8e-3c1b-4b8e-9a55-6f2f1d7c0e41")

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

// NewOutboxRetentionJob prunes outbox rows that were published, or parked in
// the DLQ, more than retentionDays ago.
func NewOutboxRetentionJob(tx txRunner, repo outboxPruner, retentionDays, terminalAttempts int) (Job, error) {
	if tx == nil {
		return nil, errors.New("db runner required")
	}
	if repo == nil {
		return nil, errors.New("outbox repository required")
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &outboxRetentionJob{tx: tx, repo: repo, days: retentionDays, terminal: terminalAttempts, now: time.Now}, nil
}

type outboxRetentionJob struct {
	tx       txRunner
	repo     outboxPruner
	days     int
	terminal int
	now      func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := retentionCutoff(j.now(), j.days)
	var deleted int64
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.terminal)
		deleted = rows
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("outbox retention: %w", err)
	}
	return deleted, nil
}

type readNotificationPruner interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob deletes notifications read more than
// retentionDays ago. Unread rows are never removed.
func NewNotificationCleanupJob(repo readNotificationPruner, retentionDays int) (Job, error) {
	if repo == nil {
		return nil, errors.New("notifications repository required")
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	return &notificationCleanupJob{repo: repo, days: retentionDays, now: time.Now}, nil
}

type notificationCleanupJob struct {
	repo readNotificationPruner
	days int
	now  func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) (int64, error) {
	deleted, err := j.repo.DeleteReadBefore(ctx, retentionCutoff(j.now(), j.days))
	if err != nil {
		return 0, fmt.Errorf("notification cleanup: %w", err)
	}
	return deleted, nil
}

type materialLister interface {
	ListMaterials(ctx context.Context) ([]models.Material, error)
}

type adminNotifier interface {
	NotifyAdmin(ctx context.Context, input notifications.AdminNotification) (*models.AdminNotification, error)
}

// NewLowStockDigestJob posts one admin notification listing every material
// at or below its reorder threshold.
func NewLowStockDigestJob(materials materialLister, notifier adminNotifier) (Job, error) {
	if materials == nil {
		return nil, errors.New("material lister required")
	}
	if notifier == nil {
		return nil, errors.New("admin notifier required")
	}
	return &lowStockDigestJob{materials: materials, notifier: notifier, now: time.Now}, nil
}

type lowStockDigestJob struct {
	materials materialLister
	notifier  adminNotifier
	now       func() time.Time
}

func (j *lowStockDigestJob) Name() string { return "low-stock-digest" }

func (j *lowStockDigestJob) Run(ctx context.Context) (int64, error) {
	all, err := j.materials.ListMaterials(ctx)
	if err != nil {
		return 0, fmt.Errorf("list materials: %w", err)
	}
	var low []models.Material
	for _, m := range all {
		if m.BelowThreshold() {
			low = append(low, m)
		}
	}
	if len(low) == 0 {
		return 0, nil
	}
	sort.Slice(low, func(a, b int) bool {
		return low[a].Quantity.Sub(low[a].ReorderThreshold).LessThan(low[b].Quantity.Sub(low[b].ReorderThreshold))
	})

	day := j.now().UTC().Format(time.DateOnly)
	eventID := uuid.NewSHA1(lowStockNamespace, []byte("low-stock:"+day))
	if _, err := j.notifier.NotifyAdmin(ctx, notifications.AdminNotification{
		Type:    enums.AdminNotificationLowStock,
		Message: digestMessage(low),
		EventID: &eventID,
	}); err != nil {
		return 0, fmt.Errorf("notify admins: %w", err)
	}
	return int64(len(low)), nil
}

func digestMessage(low []models.Material) string {
	shown := low
	if len(shown) > maxDigestEntries {
		shown = shown[:maxDigestEntries]
	}
	parts := make([]string, 0, len(shown))
	for _, m := range shown {
		parts = append(parts, fmt.Sprintf("%s (%s %s)", m.Name, m.Quantity.StringFixed(2), m.Unit))
	}
	msg := fmt.Sprintf("%d material(s) at or below reorder threshold: %s", len(low), strings.Join(parts, ", "))
	if extra := len(low) - len(shown); extra > 0 {
		msg += fmt.Sprintf(" and %d more", extra)
	}
	return msg
}
