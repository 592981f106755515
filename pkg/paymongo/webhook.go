package paymongo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SignatureHeader = "Paymongo-Signature"

	EventPaymentPaid = "payment.paid"

	// signatureTolerance bounds how old a signed timestamp may be.
	signatureTolerance = 5 * time.Minute
)

// WebhookEvent is the envelope PayMongo posts to the webhook endpoint.
type WebhookEvent struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			Type      string          `json:"type"`
			Livemode  bool            `json:"livemode"`
			Data      PaymentResource `json:"data"`
			CreatedAt int64           `json:"created_at"`
		} `json:"attributes"`
	} `json:"data"`
}

type PaymentResource struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes PaymentAttributes `json:"attributes"`
}

type PaymentAttributes struct {
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Status            string            `json:"status"`
	PaymentMethod     string            `json:"payment_method,omitempty"`
	PaymentIntentID   string            `json:"payment_intent_id,omitempty"`
	Source            *PaymentSource    `json:"source,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Description       string            `json:"description,omitempty"`
	ExternalReference string            `json:"external_reference_number,omitempty"`
}

type PaymentSource struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ParseWebhookEvent decodes the raw webhook body.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode paymongo event: %w", err)
	}
	return &event, nil
}

// EventType is the webhook event name, e.g. payment.paid.
func (e *WebhookEvent) EventType() string {
	if e == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(e.Data.Attributes.Type))
}

// Payment returns the payment resource carried by the event.
func (e *WebhookEvent) Payment() PaymentResource {
	if e == nil {
		return PaymentResource{}
	}
	return e.Data.Attributes.Data
}

// MethodType reports which payment method settled the payment.
func (p PaymentResource) MethodType() string {
	if m := strings.TrimSpace(p.Attributes.PaymentMethod); m != "" {
		return strings.ToLower(m)
	}
	if p.Attributes.Source != nil {
		return strings.ToLower(strings.TrimSpace(p.Attributes.Source.Type))
	}
	return ""
}

// Amount converts centavos into a peso amount.
func (p PaymentResource) Amount() decimal.Decimal {
	return decimal.New(p.Attributes.Amount, -2)
}

// IsQRPaid reports whether the event is the only kind the storefront acts on:
// a paid payment settled through QR Ph.
func (e *WebhookEvent) IsQRPaid() bool {
	return e.EventType() == EventPaymentPaid && e.Payment().MethodType() == MethodQRPh
}

// VerifySignature checks a Paymongo-Signature header of the form t=<unix>,te=<hex>,li=<hex>.
// The live signature is compared when livemode is true, the test signature otherwise.
func VerifySignature(header string, body []byte, secret string, livemode bool, now time.Time) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("webhook secret not configured")
	}
	parts := map[string]string{}
	for _, item := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(item), "=")
		if ok {
			parts[k] = v
		}
	}
	ts := parts["t"]
	if ts == "" {
		return fmt.Errorf("signature timestamp missing")
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid signature timestamp: %w", err)
	}
	if age := now.Sub(time.Unix(unix, 0)); age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("signature timestamp outside tolerance")
	}

	provided := parts["te"]
	if livemode {
		provided = parts["li"]
	}
	if provided == "" {
		return fmt.Errorf("signature missing")
	}

	if !hmac.Equal([]byte(Sign(secret, ts, body)), []byte(provided)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of "<timestamp>.<body>".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
