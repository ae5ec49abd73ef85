package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
	"github.com/datingdna/datingdna_backend/services"
)

// OrderController exposes the order ledger to the back office.
type OrderController struct {
	orders repositories.OrderRepository
	ledger *services.LedgerService
}

func NewOrderController(orders repositories.OrderRepository, ledger *services.LedgerService) *OrderController {
	return &OrderController{orders: orders, ledger: ledger}
}

// ListOrders returns orders newest first, paginated.
func (oc *OrderController) ListOrders(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	page, limit := parsePagination(c)
	orders, total, err := oc.orders.List(ctx, page, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch orders",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Orders retrieved successfully",
		Data: models.PaginatedData{
			Items:      orders,
			Page:       page,
			Limit:      limit,
			TotalCount: total,
		},
	})
}

// GetOrder returns a single order by id.
func (oc *OrderController) GetOrder(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid order ID",
		})
	}

	order, err := oc.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Order not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch order",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Order retrieved successfully",
		Data:    order,
	})
}

// RefundOrder issues a refund through the payment processor and applies the
// result to the ledger. Amount zero means a full refund of the remaining total.
func (oc *OrderController) RefundOrder(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid order ID",
		})
	}

	var req models.ManualRefundRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request format",
		})
	}

	order, err := oc.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Order not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to fetch order",
		})
	}

	updated, err := oc.ledger.RefundOrder(ctx, order, req.Amount, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyRefunded):
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "Order is already refunded",
			})
		case errors.Is(err, services.ErrInvalidRefundAmount):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Refund amount exceeds order total",
			})
		case errors.Is(err, services.ErrUpstreamProcessor):
			return c.JSON(http.StatusBadGateway, models.Response{
				Status:  http.StatusBadGateway,
				Message: "Payment processor rejected the refund",
			})
		default:
			return c.JSON(http.StatusInternalServerError, models.Response{
				Status:  http.StatusInternalServerError,
				Message: "Failed to process refund",
			})
		}
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Refund processed successfully",
		Data:    updated,
	})
}

func parsePagination(c echo.Context) (int64, int64) {
	page, err := strconv.ParseInt(c.QueryParam("page"), 10, 64)
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
