package controllers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/services"
)

// processedEventTTL is how long a handled event id stays in the dedup cache.
// The processor retries for up to three days.
const processedEventTTL = 72 * time.Hour

// WebhookController ingests payment-processor events. Signature verification
// happens before anything else; malformed payloads are rejected with 400 and
// transient store errors with 503 (retryable). Business-level oddities are
// logged and acknowledged so they don't turn into retry storms.
type WebhookController struct {
	ledger    *services.LedgerService
	processor *services.StripeService
	redis     *redis.Client
}

// NewWebhookController creates the webhook controller. The Redis client may
// be nil; dedup then relies on the ledger's conditional writes alone.
func NewWebhookController(ledger *services.LedgerService, processor *services.StripeService, redisClient *redis.Client) *WebhookController {
	return &WebhookController{
		ledger:    ledger,
		processor: processor,
		redis:     redisClient,
	}
}

// HandleProcessorEvent is the single webhook endpoint for all event types.
func (wc *WebhookController) HandleProcessorEvent(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if err := wc.processor.VerifySignature(body, signature); err != nil {
		log.Printf("webhook signature rejected: %v", err)
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid signature",
		})
	}

	event, err := models.ParseWebhookEvent(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Malformed event payload",
		})
	}

	if wc.alreadyProcessed(ctx, event.ID) {
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Event already processed",
		})
	}

	switch event.Type {
	case models.EventCheckoutSessionCompleted:
		session, parseErr := event.CheckoutSession()
		if parseErr != nil {
			return wc.rejectMalformed(c, event.ID, parseErr)
		}
		err = wc.ledger.HandlePaymentCompleted(ctx, session)
	case models.EventChargeRefunded:
		charge, parseErr := event.Charge()
		if parseErr != nil {
			return wc.rejectMalformed(c, event.ID, parseErr)
		}
		err = wc.ledger.HandleChargeRefunded(ctx, charge)
	case models.EventDisputeCreated:
		dispute, parseErr := event.Dispute()
		if parseErr != nil {
			return wc.rejectMalformed(c, event.ID, parseErr)
		}
		err = wc.ledger.HandleDisputeCreated(ctx, dispute)
	default:
		// Unrecognized event types are acknowledged and ignored.
		return wc.acknowledge(ctx, c, event.ID)
	}

	if err != nil {
		if errors.Is(err, services.ErrUpstreamProcessor) {
			log.Printf("event %s: processor lookup failed: %v", event.ID, err)
			return c.JSON(http.StatusBadGateway, models.Response{
				Status:  http.StatusBadGateway,
				Message: "Processor lookup failed, retry later",
			})
		}
		// Datastore trouble. Let the processor retry.
		log.Printf("event %s: transient failure: %v", event.ID, err)
		return c.JSON(http.StatusServiceUnavailable, models.Response{
			Status:  http.StatusServiceUnavailable,
			Message: "Temporary failure, retry later",
		})
	}

	return wc.acknowledge(ctx, c, event.ID)
}

// rejectMalformed answers a known event type whose inner object does not
// decode. Malformed payloads are a 400 like signature failures; the event id
// is not recorded as processed, so a corrected replay can still land.
func (wc *WebhookController) rejectMalformed(c echo.Context, eventID string, err error) error {
	log.Printf("event %s: %v", eventID, err)
	return c.JSON(http.StatusBadRequest, models.Response{
		Status:  http.StatusBadRequest,
		Message: "Malformed event payload",
	})
}

func (wc *WebhookController) alreadyProcessed(ctx context.Context, eventID string) bool {
	if wc.redis == nil || eventID == "" {
		return false
	}
	exists, err := wc.redis.Exists(ctx, "webhook:processed:"+eventID).Result()
	if err != nil {
		// Cache miss on error; the conditional ledger writes still hold.
		return false
	}
	return exists > 0
}

func (wc *WebhookController) acknowledge(ctx context.Context, c echo.Context, eventID string) error {
	if wc.redis != nil && eventID != "" {
		if err := wc.redis.Set(ctx, "webhook:processed:"+eventID, 1, processedEventTTL).Err(); err != nil {
			log.Printf("failed to record processed event %s: %v", eventID, err)
		}
	}
	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Event processed",
	})
}
