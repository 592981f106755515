package controllers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	"github.com/angelmondragon/threadline-backend/pkg/enums"
)

type urlSigner interface {
	TemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type orderView struct {
	ID                uuid.UUID               `json:"id"`
	OrderNumber       string                  `json:"order_number"`
	UserID            uuid.UUID               `json:"user_id"`
	CustomerEmail     *string                 `json:"customer_email,omitempty"`
	Color             string                  `json:"color"`
	PhoneNumber       string                  `json:"phone_number"`
	Address           string                  `json:"address"`
	ProductID         uuid.UUID               `json:"product_id"`
	ProductUnitPrice  decimal.Decimal         `json:"product_unit_price"`
	DesignType        enums.DesignType        `json:"design_type"`
	OrderOption       enums.FulfillmentOption `json:"order_option"`
	TotalQuantity     int                     `json:"total_quantity"`
	TotalPrice        decimal.Decimal         `json:"total_price"`
	SoloQuantity      int                     `json:"solo_quantity"`
	BusinessDesignURL *string                 `json:"business_design_url,omitempty"`
	AIDesignRef       *string                 `json:"ai_design_ref,omitempty"`
	FabricTypeID      *uuid.UUID              `json:"fabric_type_id,omitempty"`
	UploadedAssetID   *uuid.UUID              `json:"uploaded_asset_id,omitempty"`
	DesignURL         string                  `json:"design_url,omitempty"`
	Status            enums.OrderStatus       `json:"status"`
	ActionDate        *time.Time              `json:"action_date,omitempty"`
	Sizes             []sizeView              `json:"sizes,omitempty"`
	Payments          []paymentView           `json:"payments,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

type sizeView struct {
	Size     string `json:"size"`
	Quantity int    `json:"quantity"`
}

type paymentView struct {
	ID            uuid.UUID           `json:"id"`
	PaymentNumber string              `json:"payment_number"`
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	AmountApplied decimal.Decimal     `json:"amount_applied"`
	Status        enums.PaymentStatus `json:"status"`
	Attachments   []attachmentView    `json:"attachments,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

type attachmentView struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url,omitempty"`
}

type orderListView struct {
	Orders     []orderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type materialView struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	Category         *string         `json:"category,omitempty"`
	Quantity         decimal.Decimal `json:"quantity"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	BelowThreshold   bool            `json:"below_threshold"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type usageView struct {
	ID                uuid.UUID         `json:"id"`
	OrderID           uuid.UUID         `json:"order_id"`
	MaterialID        uuid.UUID         `json:"material_id"`
	MaterialName      string            `json:"material_name"`
	Unit              string            `json:"unit"`
	SubjectKind       enums.SubjectKind `json:"subject_kind"`
	SubjectID         uuid.UUID         `json:"subject_id"`
	TotalQuantityUsed decimal.Decimal   `json:"total_quantity_used"`
	UserID            uuid.UUID         `json:"user_id"`
	CreatedAt         time.Time         `json:"created_at"`
}

type notificationView struct {
	ID        uuid.UUID  `json:"id"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`
	Status    string     `json:"status"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type adminNotificationView struct {
	ID        uuid.UUID                   `json:"id"`
	Type      enums.AdminNotificationType `json:"type"`
	OrderID   *uuid.UUID                  `json:"order_id,omitempty"`
	Message   string                      `json:"message"`
	Read      bool                        `json:"read"`
	ReadAt    *time.Time                  `json:"read_at,omitempty"`
	CreatedAt time.Time                   `json:"created_at"`
}

type notificationPage[T any] struct {
	Items  []T    `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

func newOrderView(o *models.Order) orderView {
	view := orderView{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		UserID:            o.UserID,
		CustomerEmail:     o.CustomerEmail,
		Color:             o.Color,
		PhoneNumber:       o.PhoneNumber,
		Address:           o.Address,
		ProductID:         o.ProductID,
		ProductUnitPrice:  o.ProductUnitPrice,
		DesignType:        o.DesignType,
		OrderOption:       o.OrderOption,
		TotalQuantity:     o.TotalQuantity,
		TotalPrice:        o.TotalPrice,
		SoloQuantity:      o.SoloQuantity,
		BusinessDesignURL: o.BusinessDesignURL,
		AIDesignRef:       o.AIDesignRef,
		FabricTypeID:      o.FabricTypeID,
		UploadedAssetID:   o.UploadedAssetID,
		Status:            o.Status,
		ActionDate:        o.ActionDate,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for _, size := range o.Sizes {
		view.Sizes = append(view.Sizes, sizeView{Size: size.Size, Quantity: size.Quantity})
	}
	for _, p := range o.Payments {
		view.Payments = append(view.Payments, newPaymentView(p))
	}
	return view
}

func newPaymentView(p models.OrderPayment) paymentView {
	view := paymentView{
		ID:            p.ID,
		PaymentNumber: p.PaymentNumber,
		OrderID:       p.OrderID,
		PaymentMethod: p.PaymentMethod,
		AmountApplied: p.AmountApplied,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
	}
	for _, a := range p.Attachments {
		view.Attachments = append(view.Attachments, attachmentView{ID: a.ID})
	}
	return view
}

// signOrderURLs swaps stored artifact keys for temporary URLs. Keys that fail
// to sign are left without a URL.
func signOrderURLs(ctx context.Context, signer urlSigner, ttl time.Duration, o *models.Order, view *orderView) []error {
	if signer == nil {
		return nil
	}
	var errs []error
	if o.OwnDesignKey != nil && *o.OwnDesignKey != "" {
		url, err := signer.TemporaryURL(ctx, *o.OwnDesignKey, ttl)
		if err != nil {
			errs = append(errs, err)
		} else {
			view.DesignURL = url
		}
	}
	for i, p := range o.Payments {
		for j, a := range p.Attachments {
			url, err := signer.TemporaryURL(ctx, a.StorageKey, ttl)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			view.Payments[i].Attachments[j].URL = url
		}
	}
	return errs
}

func newMaterialView(m models.Material) materialView {
	return materialView{
		ID:               m.ID,
		Name:             m.Name,
		Unit:             m.Unit,
		Category:         m.Category,
		Quantity:         m.Quantity,
		ReorderThreshold: m.ReorderThreshold,
		BelowThreshold:   m.BelowThreshold(),
		UpdatedAt:        m.UpdatedAt,
	}
}

func newUsageView(l models.MaterialUsageLog) usageView {
	return usageView{
		ID:                l.ID,
		OrderID:           l.OrderID,
		MaterialID:        l.MaterialID,
		MaterialName:      l.MaterialName,
		Unit:              l.Unit,
		SubjectKind:       l.SubjectKind,
		SubjectID:         l.SubjectID,
		TotalQuantityUsed: l.TotalQuantityUsed,
		UserID:            l.UserID,
		CreatedAt:         l.CreatedAt,
	}
}

func newNotificationView(n models.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		OrderID:   n.OrderID,
		Status:    n.Status,
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.ReadAt != nil,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func newAdminNotificationView(n models.AdminNotification) adminNotificationView {
	return adminNotificationView{
		ID:        n.ID,
		Type:      n.Type,
		OrderID:   n.OrderID,
		Message:   n.Message,
		Read:      n.ReadAt != nil,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
