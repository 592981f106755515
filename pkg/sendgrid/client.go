package sendgrid

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
	defaultBaseURL = "https://api.sendgrid.com"
	sendPath       = "/v3/mail/send"
	defaultTimeout = 10 * time.Second
)

var (
	errAPIKeyRequired = errors.New("sendgrid api key is required")
	errFromRequired   = errors.New("sendgrid from address is required")
)

// Sender delivers a dynamic-template email.
type Sender interface {
	Send(ctx context.Context, to, templateID string, data map[string]any) error
}

type Client struct {
	http *resty.Client
	from string
	logg *logger.Logger
}

func NewClient(cfg config.SendgridConfig, logg *logger.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")

	return &Client{http: rc, from: from, logg: logg}, nil
}

type mailRequest struct {
	From             address           `json:"from"`
	Personalizations []personalization `json:"personalizations"`
	TemplateID       string            `json:"template_id"`
}

type address struct {
	Email string `json:"email"`
}

type personalization struct {
	To                  []address      `json:"to"`
	DynamicTemplateData map[string]any `json:"dynamic_template_data,omitempty"`
}

// Send posts a dynamic-template message. SendGrid answers 202 on acceptance.
func (c *Client) Send(ctx context.Context, to, templateID string, data map[string]any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient is required")
	}
	if strings.TrimSpace(templateID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "template id is required")
	}

	body := mailRequest{
		From:       address{Email: c.from},
		TemplateID: templateID,
		Personalizations: []personalization{{
			To:                  []address{{Email: to}},
			DynamicTemplateData: data,
		}},
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post(sendPath)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sendgrid send failed")
	}
	if resp.StatusCode() != http.StatusAccepted && resp.StatusCode() != http.StatusOK {
		code := pkgerrors.CodeDependency
		if resp.StatusCode() == http.StatusBadRequest {
			code = pkgerrors.CodeValidation
		}
		return pkgerrors.New(code, fmt.Sprintf("sendgrid send failed with status %d", resp.StatusCode())).
			WithDetails(map[string]any{"body": truncate(resp.String(), 512)})
	}

	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "template_id", templateID), "sendgrid email accepted")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
