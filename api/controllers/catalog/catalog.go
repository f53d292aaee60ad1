// Package catalog exposes towns, products, and town listings over HTTP.
package catalog

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/towndrop-backend/api/responses"
	"github.com/angelmondragon/towndrop-backend/api/validators"
	internalcatalog "github.com/angelmondragon/towndrop-backend/internal/catalog"
	"github.com/angelmondragon/towndrop-backend/pkg/db/models"
	"github.com/angelmondragon/towndrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

const townProductParam = "townProductId"

type createTownRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

type createProductRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type createTownProductRequest struct {
	TownID           uuid.UUID          `json:"townId" validate:"required"`
	ProductID        uuid.UUID          `json:"productId" validate:"required"`
	PricingModel     string             `json:"pricingModel" validate:"required"`
	PricePerUnit     *validators.Amount `json:"pricePerUnit"`
	PricePerKg       *validators.Amount `json:"pricePerKg"`
	StockQty         *int               `json:"stockQty" validate:"omitempty,gte=0"`
	StockWeightGrams *int               `json:"stockWeightGrams" validate:"omitempty,gte=0"`
	IsActive         *bool              `json:"isActive"`
}

type updateTownProductRequest struct {
	PricingModel     *string            `json:"pricingModel"`
	PricePerUnit     *validators.Amount `json:"pricePerUnit"`
	PricePerKg       *validators.Amount `json:"pricePerKg"`
	StockQty         *int               `json:"stockQty" validate:"omitempty,gte=0"`
	StockWeightGrams *int               `json:"stockWeightGrams" validate:"omitempty,gte=0"`
	IsActive         *bool              `json:"isActive"`
}

func ListTowns(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		towns, err := svc.ListTowns(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]internalcatalog.TownView, 0, len(towns))
		for _, town := range towns {
			views = append(views, internalcatalog.NewTownView(town))
		}
		responses.WriteSuccess(w, views)
	}
}

func CreateTown(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		var req createTownRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		town, err := svc.CreateTown(r.Context(), internalcatalog.CreateTownInput{Name: req.Name})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalcatalog.NewTownView(*town))
	}
}

func ListProducts(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		products, err := svc.ListProducts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]internalcatalog.ProductView, 0, len(products))
		for _, product := range products {
			views = append(views, internalcatalog.NewProductView(product))
		}
		responses.WriteSuccess(w, views)
	}
}

func CreateProduct(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		var req createProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), internalcatalog.CreateProductInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalcatalog.NewProductView(*product))
	}
}

// ListTownProducts accepts the optional townId, productId, and isActive filters.
func ListTownProducts(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		townID, err := validators.ParseQueryUUID(r, "townId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseQueryUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isActive, err := validators.ParseQueryBool(r, "isActive")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listings, err := svc.ListTownProducts(r.Context(), internalcatalog.TownProductFilters{
			TownID:    townID,
			ProductID: productID,
			IsActive:  isActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listingViews(listings))
	}
}

func CreateTownProduct(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		var req createTownProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.CreateTownProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalcatalog.NewTownProductView(*listing))
	}
}

func GetTownProduct(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, townProductParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.GetTownProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalcatalog.NewTownProductView(*listing))
	}
}

func UpdateTownProduct(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, townProductParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateTownProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.UpdateTownProduct(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalcatalog.NewTownProductView(*listing))
	}
}

func DeleteTownProduct(svc internalcatalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, townProductParam)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteTownProduct(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}

func (req createTownProductRequest) toInput() (internalcatalog.CreateTownProductInput, error) {
	unit, err := validators.ParseMoney("pricePerUnit", req.PricePerUnit)
	if err != nil {
		return internalcatalog.CreateTownProductInput{}, err
	}
	kg, err := validators.ParseMoney("pricePerKg", req.PricePerKg)
	if err != nil {
		return internalcatalog.CreateTownProductInput{}, err
	}
	return internalcatalog.CreateTownProductInput{
		TownID:           req.TownID,
		ProductID:        req.ProductID,
		PricingModel:     enums.PricingModel(req.PricingModel),
		PricePerUnit:     unit,
		PricePerKg:       kg,
		StockQty:         req.StockQty,
		StockWeightGrams: req.StockWeightGrams,
		IsActive:         req.IsActive,
	}, nil
}

func (req updateTownProductRequest) toInput() (internalcatalog.UpdateTownProductInput, error) {
	unit, err := validators.ParseMoney("pricePerUnit", req.PricePerUnit)
	if err != nil {
		return internalcatalog.UpdateTownProductInput{}, err
	}
	kg, err := validators.ParseMoney("pricePerKg", req.PricePerKg)
	if err != nil {
		return internalcatalog.UpdateTownProductInput{}, err
	}
	input := internalcatalog.UpdateTownProductInput{
		PricePerUnit:     unit,
		PricePerKg:       kg,
		StockQty:         req.StockQty,
		StockWeightGrams: req.StockWeightGrams,
		IsActive:         req.IsActive,
	}
	if req.PricingModel != nil {
		model := enums.PricingModel(*req.PricingModel)
		input.PricingModel = &model
	}
	return input, nil
}

func listingViews(listings []models.TownProduct) []internalcatalog.TownProductView {
	views := make([]internalcatalog.TownProductView, 0, len(listings))
	for _, listing := range listings {
		views = append(views, internalcatalog.NewTownProductView(listing))
	}
	return views
}
