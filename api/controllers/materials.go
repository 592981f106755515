package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/threadline-backend/api/responses"
	"github.com/angelmondragon/threadline-backend/api/validators"
	"github.com/angelmondragon/threadline-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

type materialStock interface {
	ListMaterials(ctx context.Context) ([]models.Material, error)
	Restock(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal) (*models.Material, error)
}

type restockRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

func AdminListMaterials(svc materialStock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		materials, err := svc.ListMaterials(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]materialView, 0, len(materials))
		for _, m := range materials {
			views = append(views, newMaterialView(m))
		}
		responses.WriteSuccess(w, views)
	}
}

// AdminRestockMaterial adds stock to a material.
func AdminRestockMaterial(svc materialStock, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		materialID, err := uuidParam(r, "materialId", "material id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body restockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		material, err := svc.Restock(r.Context(), materialID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newMaterialView(*material))
	}
}
