package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	"github.com/angelmondragon/threadline-backend/internal/paymongo"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
	provider "github.com/angelmondragon/threadline-backend/pkg/paymongo"
)

const (
	signatureHeader = "Paymongo-Signature"
	maxWebhookBytes = 1 << 20
)

type qrSourceCreator interface {
	CreateQRSource(ctx context.Context, req paymongo.QRSourceRequest) (*provider.QRCode, error)
}

type webhookHandler interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*paymongo.WebhookOutcome, error)
}

// CreateQRSource opens a QR Ph payment for the amount the customer is about
// to pay and returns the code image.
func CreateQRSource(svc qrSourceCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured"))
			return
		}
		if _, err := callerID(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body paymongo.QRSourceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qr, err := svc.CreateQRSource(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, qr)
	}
}

// PaymongoWebhook verifies the signed event body. Events the service ignores
// still answer 200 so the provider stops retrying them.
func PaymongoWebhook(svc webhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured"))
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
			return
		}

		outcome, err := svc.HandleWebhook(r.Context(), body, r.Header.Get(signatureHeader))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := map[string]any{
			"handled":   outcome.Handled,
			"duplicate": outcome.Duplicate,
		}
		if outcome.Confirmation != nil {
			resp["confirmation_id"] = outcome.Confirmation.ID
		}
		responses.WriteSuccess(w, resp)
	}
}
