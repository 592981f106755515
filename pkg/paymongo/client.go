package paymongo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/angelmondragon/threadline-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

const (
	defaultBaseURL = "https://api.paymongo.com/v1"
	defaultTimeout = 15 * time.Second

	MethodQRPh = "qr_ph"
)

var (
	errSecretKeyRequired = errors.New("paymongo secret key is required")
	errLoggerRequired    = errors.New("paymongo logger is required")
)

// Client wraps the PayMongo REST API with basic auth, logging, and error mapping.
type Client struct {
	http          *resty.Client
	webhookSecret string
	logger        *logger.Logger
}

// NewClient builds a resty client against the configured PayMongo base URL.
func NewClient(ctx context.Context, cfg config.PayMongoConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetBasicAuth(secret, "").
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	c := &Client{
		http:          rc,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		logger:        logg,
	}
	logg.Info(ctx, "paymongo client initialized")
	return c, nil
}

// WebhookSecret returns the secret used to verify Paymongo-Signature headers.
func (c *Client) WebhookSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// CreatePaymentIntent opens an intent restricted to QR Ph and tags it with order metadata.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (string, error) {
	if params.AmountCentavos <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	body := request[paymentIntentAttributes]{Data: requestData[paymentIntentAttributes]{Attributes: paymentIntentAttributes{
		Amount:               params.AmountCentavos,
		Currency:             "PHP",
		PaymentMethodAllowed: []string{MethodQRPh},
		CaptureType:          "automatic",
		Description:          params.Description,
		Metadata:             params.Metadata.values(),
	}}}

	var out response[resourceAttributes]
	if err := c.post(ctx, "create_payment_intent", "/payment_intents", body, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// CreatePaymentMethod creates a QR Ph payment method.
func (c *Client) CreatePaymentMethod(ctx context.Context) (string, error) {
	body := request[paymentMethodAttributes]{Data: requestData[paymentMethodAttributes]{Attributes: paymentMethodAttributes{Type: MethodQRPh}}}

	var out response[resourceAttributes]
	if err := c.post(ctx, "create_payment_method", "/payment_methods", body, &out); err != nil {
		return "", err
	}
	return out.Data.ID, nil
}

// AttachPaymentIntent binds the method to the intent and returns the QR code to display.
func (c *Client) AttachPaymentIntent(ctx context.Context, intentID, methodID string) (*QRCode, error) {
	if strings.TrimSpace(intentID) == "" || strings.TrimSpace(methodID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent and method ids are required")
	}
	body := request[attachAttributes]{Data: requestData[attachAttributes]{Attributes: attachAttributes{PaymentMethod: methodID}}}

	var out response[resourceAttributes]
	if err := c.post(ctx, "attach_payment_intent", "/payment_intents/"+intentID+"/attach", body, &out); err != nil {
		return nil, err
	}
	action := out.Data.Attributes.NextAction
	if action == nil || action.Code == nil || action.Code.ImageURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paymongo attach response missing qr code")
	}
	return &QRCode{
		CodeID:       action.Code.ID,
		Amount:       action.Code.Amount,
		BusinessName: action.Code.Label,
		ImageURL:     action.Code.ImageURL,
	}, nil
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	c.log(ctx, "request", op, map[string]any{"path": path})

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErrorResponse{}).
		Post(path)
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("paymongo %s failed", op))
	}
	if resp.IsError() {
		detail := ""
		if apiErr, ok := resp.Error().(*apiErrorResponse); ok {
			detail = apiErr.String()
		}
		c.log(ctx, "error", op, map[string]any{"status": resp.StatusCode(), "error": detail})
		return pkgerrors.New(domainCodeForStatus(resp.StatusCode()), fmt.Sprintf("paymongo %s failed", op)).
			WithDetails(map[string]any{"status": resp.StatusCode(), "detail": detail})
	}

	c.log(ctx, "response", op, map[string]any{"status": resp.StatusCode()})
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("paymongo %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("paymongo %s", phase))
	}
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}
