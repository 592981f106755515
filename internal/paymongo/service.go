// Package paymongo connects the storefront to PayMongo QR Ph: it opens QR
// sources for checkout and records paid confirmations from the webhook.
package paymongo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/threadline-backend/pkg/db"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/angelmondragon/threadline-backend/pkg/outbox/payloads"
	provider "github.com/angelmondragon/threadline-backend/pkg/paymongo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type gateway interface {
	CreatePaymentIntent(ctx context.Context, params provider.PaymentIntentParams) (string, error)
	CreatePaymentMethod(ctx context.Context) (string, error)
	AttachPaymentIntent(ctx context.Context, intentID, methodID string) (*provider.QRCode, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventDispatcher interface {
	Enqueue(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error
}

// QRSourceRequest describes the order the customer is about to pay for.
type QRSourceRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"omitempty,max=255"`
	DesignID    string          `json:"design_id" validate:"omitempty,max=64"`
	OrderOption string          `json:"order_option" validate:"omitempty,oneof=delivery pickup"`
	OrderType   string          `json:"order_type" validate:"omitempty,max=64"`
	Quantity    int             `json:"quantity" validate:"min=0"`
	Color       string          `json:"color" validate:"omitempty,max=64"`
	Size        string          `json:"size" validate:"omitempty,max=32"`
}

// WebhookOutcome reports what the webhook did with an event.
type WebhookOutcome struct {
	Handled      bool                        `json:"handled"`
	Duplicate    bool                        `json:"duplicate,omitempty"`
	Confirmation *models.PaymentConfirmation `json:"confirmation,omitempty"`
}

type Service interface {
	CreateQRSource(ctx context.Context, req QRSourceRequest) (*provider.QRCode, error)
	// HandleWebhook verifies and applies one provider event. Events other than
	// a paid QR Ph payment are reported as not handled.
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error)
}

type service struct {
	gateway       gateway
	repo          Repository
	tx            txRunner
	dispatcher    eventDispatcher
	webhookSecret string
	logg          *logger.Logger
	now           func() time.Time
}

// NewService builds the provider service. A nil gateway disables QR source
// creation; an empty secret disables signature checks.
func NewService(gw gateway, repo Repository, tx txRunner, dispatcher eventDispatcher, webhookSecret string, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment confirmation repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		gateway:       gw,
		repo:          repo,
		tx:            tx,
		dispatcher:    dispatcher,
		webhookSecret: strings.TrimSpace(webhookSecret),
		logg:          logg,
		now:           time.Now,
	}, nil
}

func (s *service) CreateQRSource(ctx context.Context, req QRSourceRequest) (*provider.QRCode, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive").
			WithDetails(map[string]string{"amount": "must be greater than zero"})
	}
	centavos := req.Amount.Shift(2).Round(0).IntPart()

	intentID, err := s.gateway.CreatePaymentIntent(ctx, provider.PaymentIntentParams{
		AmountCentavos: centavos,
		Description:    req.Description,
		Metadata: provider.OrderMetadata{
			DesignID:    req.DesignID,
			TotalPrice:  req.Amount.StringFixed(2),
			OrderOption: req.OrderOption,
			OrderType:   req.OrderType,
			Quantity:    req.Quantity,
			Color:       req.Color,
			Size:        req.Size,
		},
	})
	if err != nil {
		return nil, err
	}
	methodID, err := s.gateway.CreatePaymentMethod(ctx)
	if err != nil {
		return nil, err
	}
	code, err := s.gateway.AttachPaymentIntent(ctx, intentID, methodID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", intentID), "qr source created")
	return code, nil
}

func (s *service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error) {
	event, err := provider.ParseWebhookEvent(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if s.webhookSecret != "" {
		if err := provider.VerifySignature(signature, body, s.webhookSecret, event.Data.Attributes.Livemode, s.now()); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature")
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"provider_event_id": event.Data.ID,
		"provider_event":    event.EventType(),
	})
	if !event.IsQRPaid() {
		s.logg.Info(logCtx, "webhook event ignored")
		return &WebhookOutcome{}, nil
	}

	payment := event.Payment()
	if strings.TrimSpace(payment.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing from event")
	}
	metadata, err := json.Marshal(payment.Attributes.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode payment metadata")
	}
	currency := strings.ToUpper(strings.TrimSpace(payment.Attributes.Currency))
	if currency == "" {
		currency = "PHP"
	}
	row := &models.PaymentConfirmation{
		ID:                uuid.New(),
		ProviderPaymentID: payment.ID,
		ProviderEventID:   event.Data.ID,
		Amount:            payment.Amount(),
		Currency:          currency,
		Status:            payment.Attributes.Status,
		Metadata:          metadata,
	}
	now := s.now().UTC()
	var created bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.repo.WithTx(tx).InsertConfirmation(ctx, row)
		if err != nil {
			return db.Classify(err, "store payment confirmation")
		}
		if !created {
			return nil
		}
		return s.dispatcher.Enqueue(ctx, tx, confirmationEvents(row, payment.Attributes.Metadata, now))
	})
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.repo.FindByProviderPaymentID(ctx, payment.ID)
		if err != nil {
			return nil, db.Classify(err, "load payment confirmation")
		}
		s.logg.Info(logCtx, "duplicate payment confirmation")
		return &WebhookOutcome{Handled: true, Duplicate: true, Confirmation: existing}, nil
	}

	s.logg.Info(s.logg.WithField(logCtx, "provider_payment_id", payment.ID), "qr payment confirmed")
	return &WebhookOutcome{Handled: true, Confirmation: row}, nil
}

func confirmationEvents(row *models.PaymentConfirmation, metadata map[string]string, now time.Time) []outbox.DomainEvent {
	amount := "₱" + row.Amount.StringFixed(2)
	message := fmt.Sprintf("QR Ph payment of %s received (ref %s).", amount, row.ProviderPaymentID)
	if design := metadata["design_id"]; design != "" {
		message = fmt.Sprintf("QR Ph payment of %s received for design %s (ref %s).", amount, design, row.ProviderPaymentID)
	}
	return []outbox.DomainEvent{
		{
			EventID:       uuid.New(),
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   row.ID,
			Data: payloads.NotificationRequestedEvent{
				Audience:  enums.AudienceAdmin,
				AdminType: enums.AdminNotificationPaymentConfirmed,
				Message:   message,
			},
			OccurredAt: now,
		},
		{
			EventID:       uuid.New(),
			EventType:     enums.EventQRPaymentConfirmed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   row.ID,
			Data: payloads.QRPaymentConfirmedEvent{
				ConfirmationID:    row.ID,
				ProviderPaymentID: row.ProviderPaymentID,
				Amount:            row.Amount,
				Currency:          row.Currency,
				Metadata:          metadata,
			},
			OccurredAt: now,
		},
	}
}
