package paymongo

import (
	"strconv"
	"strings"
)

// OrderMetadata is attached to the payment intent so a paid webhook can be
// correlated with the order the customer was building.
type OrderMetadata struct {
	DesignID    string
	TotalPrice  string
	OrderOption string
	OrderType   string
	Quantity    int
	Color       string
	Size        string
}

func (m OrderMetadata) values() map[string]string {
	out := map[string]string{}
	add := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	add("design_id", m.DesignID)
	add("total_price", m.TotalPrice)
	add("order_option", m.OrderOption)
	add("order_type", m.OrderType)
	if m.Quantity > 0 {
		out["quantity"] = strconv.Itoa(m.Quantity)
	}
	add("color", m.Color)
	add("size", m.Size)
	return out
}

type PaymentIntentParams struct {
	AmountCentavos int64
	Description    string
	Metadata       OrderMetadata
}

// QRCode is what the storefront renders for the customer to scan.
type QRCode struct {
	CodeID       string `json:"code_id"`
	Amount       int64  `json:"amount"`
	BusinessName string `json:"business_name"`
	ImageURL     string `json:"qrcode_img_src"`
}

type request[T any] struct {
	Data requestData[T] `json:"data"`
}

type requestData[T any] struct {
	Attributes T `json:"attributes"`
}

type paymentIntentAttributes struct {
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	PaymentMethodAllowed []string          `json:"payment_method_allowed"`
	CaptureType          string            `json:"capture_type"`
	Description          string            `json:"description,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type paymentMethodAttributes struct {
	Type string `json:"type"`
}

type attachAttributes struct {
	PaymentMethod string `json:"payment_method"`
}

type response[T any] struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes T      `json:"attributes"`
	} `json:"data"`
}

type resourceAttributes struct {
	Status     string      `json:"status"`
	NextAction *nextAction `json:"next_action"`
}

type nextAction struct {
	Type string      `json:"type"`
	Code *actionCode `json:"code"`
}

type actionCode struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Label    string `json:"label"`
	ImageURL string `json:"image_url"`
}

type apiErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *apiErrorResponse) String() string {
	if e == nil || len(e.Errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		parts = append(parts, strings.TrimSpace(item.Code+": "+item.Detail))
	}
	return strings.Join(parts, "; ")
}
