package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
)

// CommissionController exposes the commission ledger to the back office.
type CommissionController struct {
	commissions repositories.CommissionRepository
}

func NewCommissionController(commissions repositories.CommissionRepository) *CommissionController {
	return &CommissionController{commissions: commissions}
}

// ListCommissions returns commissions newest first, paginated.
func (cc *CommissionController) ListCommissions(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, limit := parsePagination(c)
	commissions, total, err := cc.commissions.List(ctx, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch commissions",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commissions retrieved successfully",
		Data: models.PaginatedData{
			Items:      commissions,
			Page:       page,
			Limit:      limit,
			TotalCount: total,
		},
	})
}

// GetCommission returns a single commission by id.
func (cc *CommissionController) GetCommission(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid commission ID",
		})
	}

	commission, err := cc.commissions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Commission not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch commission",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission retrieved successfully",
		Data:    commission,
	})
}

// GetSummary aggregates commission totals per partner and status.
func (cc *CommissionController) GetSummary(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	summary, err := cc.commissions.SummarizeByPartner(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to build commission summary",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission summary retrieved successfully",
		Data:    summary,
	})
}
