package fulfillment

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/angelmondragon/threadline-backend/internal/inventory"
	"github.com/angelmondragon/threadline-backend/internal/orders"
	"github.com/angelmondragon/threadline-backend/internal/payments"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/outbox"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	proofRoot  = "payment"
	designRoot = "orders/designs"
)

// ArtifactStore holds uploaded proofs and design files.
type ArtifactStore interface {
	Upload(ctx context.Context, root, subPath, filename, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

type eventDispatcher interface {
	Enqueue(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error
}

type placementMetrics interface {
	IncOrderPlaced()
	IncPlacementFailure(code string)
	IncClassification(status string)
}

// Service coordinates order placement and staff actions across the order,
// inventory, and payment aggregates.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	SetActionDate(ctx context.Context, input ActionDateInput) (*orders.StatusChange, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*orders.StatusChange, error)
	ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*ApplyPaymentResult, error)
}

// Deps groups the collaborators of the orchestrator.
type Deps struct {
	Tx            txRunner
	Orders        orders.Service
	Inventory     inventory.Service
	Payments      payments.Service
	Storage       ArtifactStore
	Dispatcher    eventDispatcher
	Metrics       placementMetrics
	Logger        *logger.Logger
	DefaultMethod enums.PaymentMethod
}

type service struct {
	tx            txRunner
	orders        orders.Service
	inventory     inventory.Service
	payments      payments.Service
	storage       ArtifactStore
	dispatcher    eventDispatcher
	metrics       placementMetrics
	logg          *logger.Logger
	defaultMethod enums.PaymentMethod
	now           func() time.Time
}

// NewService builds the orchestrator. Metrics may be nil.
func NewService(deps Deps) (Service, error) {
	if deps.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("artifact storage required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	method := deps.DefaultMethod
	if !method.IsValid() {
		method = enums.PaymentMethodGCash
	}
	return &service{
		tx:            deps.Tx,
		orders:        deps.Orders,
		inventory:     deps.Inventory,
		payments:      deps.Payments,
		storage:       deps.Storage,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logg:          deps.Logger,
		defaultMethod: method,
		now:           time.Now,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	spec := input.Spec
	spec.UserID = input.Actor.UserID
	if spec.CustomerEmail == nil && strings.TrimSpace(input.Actor.Email) != "" {
		email := strings.TrimSpace(input.Actor.Email)
		spec.CustomerEmail = &email
	}
	method := input.PaymentMethod
	if method == "" {
		method = s.defaultMethod
	}

	if err := validatePlacement(spec, method, input); err != nil {
		s.countFailure(err)
		return nil, err
	}

	ctx = s.logg.WithUserID(ctx, spec.UserID.String())
	uploaded, err := s.uploadArtifacts(ctx, spec.UserID, input)
	if err != nil {
		s.countFailure(err)
		return nil, err
	}
	if uploaded.design != "" {
		key := uploaded.design
		spec.OwnDesignKey = &key
	}

	var result *PlaceOrderResult
	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		plan, err := s.planDeduction(ctx, tx, spec)
		if err != nil {
			return err
		}

		order, err := s.orders.Create(ctx, tx, spec)
		if err != nil {
			return err
		}

		deduction, err := s.deduct(ctx, tx, order.ID, spec, plan)
		if err != nil {
			return err
		}

		result = &PlaceOrderResult{
			Order:     order,
			Deduction: deduction,
			ProofKey:  uploaded.proof,
			DesignKey: uploaded.design,
		}
		return s.dispatcher.Enqueue(ctx, tx, placementEvents(order, spec, method, uploaded.proof, deduction, input.Actor, now))
	})
	if err != nil {
		s.cleanup(ctx, uploaded)
		s.countFailure(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncOrderPlaced()
	}
	logCtx := s.logg.WithOrderID(ctx, result.Order.ID.String())
	s.logg.Info(logCtx, "order placed")
	return result, nil
}

func validatePlacement(spec orders.Spec, method enums.PaymentMethod, input PlaceOrderInput) error {
	if err := orders.Validate(spec); err != nil {
		return err
	}
	details := map[string]string{}
	if !method.IsValid() {
		details["payment_method"] = "unsupported payment method"
	}
	if input.Proof == nil || input.Proof.Body == nil || strings.TrimSpace(input.Proof.Filename) == "" {
		details["payment_proof"] = "payment proof is required"
	}
	if input.DesignFile != nil && spec.DesignType != enums.DesignTypeOwn {
		details["design_file"] = "design file is only accepted for own designs"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(details)
	}
	return nil
}

type artifacts struct {
	proof  string
	design string
}

func (a artifacts) keys() []string {
	keys := make([]string, 0, 2)
	if a.proof != "" {
		keys = append(keys, a.proof)
	}
	if a.design != "" {
		keys = append(keys, a.design)
	}
	return keys
}

func (s *service) uploadArtifacts(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (artifacts, error) {
	var out artifacts
	key, err := s.storage.Upload(ctx, proofRoot, userID.String(), input.Proof.Filename, input.Proof.ContentType, input.Proof.Body)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload payment proof")
	}
	out.proof = key

	if input.DesignFile != nil && input.DesignFile.Body != nil {
		key, err := s.storage.Upload(ctx, designRoot, userID.String(), input.DesignFile.Filename, input.DesignFile.ContentType, input.DesignFile.Body)
		if err != nil {
			s.cleanup(ctx, out)
			return artifacts{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload design file")
		}
		out.design = key
	}
	return out, nil
}

// cleanup removes artifacts of a placement that did not commit.
func (s *service) cleanup(ctx context.Context, uploaded artifacts) {
	var errs error
	for _, key := range uploaded.keys() {
		errs = multierr.Append(errs, s.storage.Delete(ctx, key))
	}
	if errs != nil {
		s.logg.Error(s.logg.WithField(ctx, "artifacts", uploaded.keys()), "artifact cleanup failed", errs)
	}
}

// deductionPlan is the material a placement will draw from, resolved before
// the order row exists so unknown references fail without side effects.
type deductionPlan struct {
	subject    inventory.Subject
	materialID uuid.UUID
	rate       decimal.Decimal
}

// planDeduction resolves the ordered garment's consumption. The fabric the
// customer picked takes precedence over the material named on the product.
func (s *service) planDeduction(ctx context.Context, tx *gorm.DB, spec orders.Spec) (*deductionPlan, error) {
	subject := inventory.ProductSubject(spec.ProductID)
	if spec.UploadedAssetID != nil && *spec.UploadedAssetID != uuid.Nil {
		if _, err := s.inventory.FindProduct(ctx, tx, spec.ProductID); err != nil {
			return nil, err
		}
		subject = inventory.UploadedAssetSubject(*spec.UploadedAssetID)
	}
	consumption, err := s.inventory.RateFor(ctx, tx, subject)
	if err != nil {
		return nil, err
	}

	var fabricID uuid.UUID
	if spec.FabricTypeID != nil && *spec.FabricTypeID != uuid.Nil {
		if _, err := s.inventory.FindMaterial(ctx, tx, *spec.FabricTypeID); err != nil {
			return nil, err
		}
		fabricID = *spec.FabricTypeID
	}

	if consumption == nil {
		return nil, nil
	}
	materialID := consumption.MaterialID
	if fabricID != uuid.Nil {
		materialID = fabricID
	}
	if materialID == uuid.Nil {
		return nil, nil
	}
	return &deductionPlan{subject: subject, materialID: materialID, rate: consumption.Rate}, nil
}

func (s *service) deduct(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, spec orders.Spec, plan *deductionPlan) (*inventory.DeductResult, error) {
	if plan == nil {
		return nil, nil
	}
	return s.inventory.Deduct(ctx, tx, inventory.DeductRequest{
		MaterialID: plan.materialID,
		Quantity:   spec.TotalQuantity,
		Rate:       plan.rate,
		Subject:    plan.subject,
		OrderID:    orderID,
		ActorID:    spec.UserID,
	})
}

func (s *service) countFailure(err error) {
	if s.metrics != nil {
		s.metrics.IncPlacementFailure(string(pkgerrors.CodeOf(err)))
	}
}

func (s *service) SetActionDate(ctx context.Context, input ActionDateInput) (*orders.StatusChange, error) {
	if input.Date.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action date is required").
			WithDetails(map[string]string{"action_date": "required"})
	}
	date := input.Date.UTC()
	return s.transition(ctx, orders.StatusUpdate{OrderID: input.OrderID, Status: input.Status, ActionDate: &date}, input.Actor,
		func(order *models.Order) (string, string) { return scheduleMessage(order, date) })
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*orders.StatusChange, error) {
	return s.transition(ctx, orders.StatusUpdate{OrderID: input.OrderID, Status: input.Status}, input.Actor, statusMessage)
}

// transition applies the status change and queues the customer notice with it.
func (s *service) transition(ctx context.Context, update orders.StatusUpdate, actor Actor, notice func(*models.Order) (string, string)) (*orders.StatusChange, error) {
	var change *orders.StatusChange
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		change, err = s.orders.UpdateStatus(ctx, tx, update)
		if err != nil {
			return err
		}
		title, message := notice(change.Order)
		return s.dispatcher.Enqueue(ctx, tx, []outbox.DomainEvent{
			userNotice(change.Order, actor, string(change.Order.Status), title, message, now),
			statusChangedEvent(change, actor, now),
		})
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s *service) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (*ApplyPaymentResult, error) {
	var result *ApplyPaymentResult
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.payments.ApplyAmountTx(ctx, tx, input.PaymentID, input.Amount)
		if err != nil {
			return err
		}
		return s.dispatcher.Enqueue(ctx, tx, paymentEvents(result, input.Amount, input.Actor, now))
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncClassification(string(result.Status))
	}
	return result, nil
}
