package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/services"
)

// SweepController lets the back office trigger a lock sweep outside the
// scheduled interval.
type SweepController struct {
	sweep *services.SweepService
}

func NewSweepController(sweep *services.SweepService) *SweepController {
	return &SweepController{sweep: sweep}
}

// TriggerSweep runs a lock sweep immediately and reports what changed.
func (sc *SweepController) TriggerSweep(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := sc.sweep.Sweep(ctx, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Sweep failed",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Sweep completed",
		Data:    result,
	})
}
