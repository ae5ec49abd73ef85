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
	"github.com/datingdna/datingdna_backend/services"
)

// PayoutController exposes payout batching, export and settlement.
type PayoutController struct {
	payoutService *services.PayoutService
	payouts       repositories.PayoutRepository
}

func NewPayoutController(payoutService *services.PayoutService, payouts repositories.PayoutRepository) *PayoutController {
	return &PayoutController{payoutService: payoutService, payouts: payouts}
}

// CreatePayout batches all locked commissions in the given period into a
// draft payout.
func (pc *PayoutController) CreatePayout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var req models.CreatePayoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request format",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "periodStart and periodEnd are required",
		})
	}
	if !req.PeriodEnd.After(req.PeriodStart) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "periodEnd must be after periodStart",
		})
	}

	bundle, err := pc.payoutService.CreatePayout(ctx, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		if errors.Is(err, services.ErrNoEligibleCommissions) {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "No locked commissions in the given period",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create payout",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Payout created successfully",
		Data:    bundle,
	})
}

// ExportPayout returns the payment instructions for a payout and marks it
// exported the first time. Re-exporting returns the same rows.
func (pc *PayoutController) ExportPayout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid payout ID",
		})
	}

	payout, instructions, err := pc.payoutService.ExportPayout(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Payout not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to export payout",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payout exported successfully",
		Data: map[string]interface{}{
			"payout":       payout,
			"instructions": instructions,
		},
	})
}

// MarkPaid records a payout as settled and marks its commissions paid.
func (pc *PayoutController) MarkPaid(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid payout ID",
		})
	}

	payout, err := pc.payoutService.MarkPaid(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Payout not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to mark payout paid",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payout marked as paid",
		Data:    payout,
	})
}

// ListPayouts returns payouts newest first, paginated.
func (pc *PayoutController) ListPayouts(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, limit := parsePagination(c)
	payouts, total, err := pc.payouts.ListPayouts(ctx, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch payouts",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payouts retrieved successfully",
		Data: models.PaginatedData{
			Items:      payouts,
			Page:       page,
			Limit:      limit,
			TotalCount: total,
		},
	})
}

// GetPayout returns a payout with its per-partner items.
func (pc *PayoutController) GetPayout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid payout ID",
		})
	}

	payout, err := pc.payouts.FindPayoutByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Payout not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch payout",
		})
	}

	items, err := pc.payouts.FindItemsByPayoutID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch payout items",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Payout retrieved successfully",
		Data: models.PayoutBundle{
			Payout: *payout,
			Items:  items,
		},
	})
}
