package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
	"github.com/datingdna/datingdna_backend/utils"
)

// PartnerController manages affiliate partner records and referral codes.
type PartnerController struct {
	partners repositories.PartnerRepository
}

func NewPartnerController(partners repositories.PartnerRepository) *PartnerController {
	return &PartnerController{partners: partners}
}

// CreatePartner registers a new affiliate partner. When no referral code is
// supplied one is generated.
func (pc *PartnerController) CreatePartner(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var req models.CreatePartnerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request format",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Name and email are required",
		})
	}

	code := req.Code
	if code == "" {
		code = utils.GeneratePartnerCode()
	}

	partner := &models.Partner{
		Code:         code,
		Name:         req.Name,
		Email:        req.Email,
		PayoutMethod: req.PayoutMethod,
		Rate:         req.Rate,
		Active:       true,
		CreatedAt:    time.Now(),
	}

	if err := pc.partners.Insert(ctx, partner); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Referral code already in use",
			})
		}
		log.Printf("failed to create partner: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create partner",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Partner created successfully",
		Data:    partner,
	})
}

// GetPartner returns a single partner by id.
func (pc *PartnerController) GetPartner(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid partner ID",
		})
	}

	partner, err := pc.partners.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Partner not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch partner",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Partner retrieved successfully",
		Data:    partner,
	})
}

// UpdatePartner applies a partial update. Only fields present in the payload
// change; setting active to false stops new commissions without touching
// existing ledger entries.
func (pc *PartnerController) UpdatePartner(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid partner ID",
		})
	}

	var req models.UpdatePartnerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request format",
		})
	}

	set := map[string]interface{}{}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Email != nil {
		set["email"] = *req.Email
	}
	if req.PayoutMethod != nil {
		set["payoutMethod"] = *req.PayoutMethod
	}
	if req.Rate != nil {
		set["rate"] = *req.Rate
	}
	if req.Active != nil {
		set["active"] = *req.Active
	}
	if len(set) == 0 {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "No fields to update",
		})
	}

	matched, err := pc.partners.Update(ctx, id, set)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to update partner",
		})
	}
	if !matched {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Partner not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Partner updated successfully",
	})
}

// ListPartners returns partners newest first, paginated.
func (pc *PartnerController) ListPartners(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, limit := parsePagination(c)
	partners, total, err := pc.partners.List(ctx, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch partners",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Partners retrieved successfully",
		Data: models.PaginatedData{
			Items:      partners,
			Page:       page,
			Limit:      limit,
			TotalCount: total,
		},
	})
}
