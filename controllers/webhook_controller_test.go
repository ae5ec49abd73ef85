package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
	"github.com/datingdna/datingdna_backend/services"
)

type webhookFixture struct {
	controller  *WebhookController
	processor   *services.StripeService
	orders      *repositories.MemoryOrderRepository
	commissions *repositories.MemoryCommissionRepository
	partners    *repositories.MemoryPartnerRepository
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		processor:   services.NewStripeServiceWithConfig("https://api.stripe.com", "sk_test", "whsec_test"),
		orders:      repositories.NewMemoryOrderRepository(),
		commissions: repositories.NewMemoryCommissionRepository(),
		partners:    repositories.NewMemoryPartnerRepository(),
	}
	ledger := services.NewLedgerService(f.orders, f.commissions, f.partners, nil, nil)
	f.controller = NewWebhookController(ledger, f.processor, nil)

	if err := f.partners.Insert(context.Background(), &models.Partner{
		Code:   "DNA40",
		Name:   "Match Makers LLC",
		Email:  "payouts@matchmakers.example",
		Active: true,
	}); err != nil {
		t.Fatalf("seed partner: %v", err)
	}
	return f
}

func (f *webhookFixture) deliver(t *testing.T, body string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sign {
		req.Header.Set("Stripe-Signature", f.processor.SignPayload([]byte(body), time.Now()))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := f.controller.HandleProcessorEvent(c); err != nil {
		t.Fatalf("HandleProcessorEvent: %v", err)
	}
	return rec
}

func checkoutEventBody(eventID, paymentIntent string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": {
			"id": "cs_%s",
			"payment_intent": %q,
			"amount_subtotal": 10000,
			"amount_total": 11800,
			"currency": "usd",
			"customer_details": {"email": "buyer@example.com", "name": "Test Buyer"},
			"metadata": {"ref": "DNA40"}
		}}
	}`, eventID, time.Now().Unix(), paymentIntent, paymentIntent)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, checkoutEventBody("evt_1", "pi_1"), false)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	if _, total, _ := f.orders.List(context.Background(), 1, 10); total != 0 {
		t.Errorf("unsigned event reached the ledger: %d orders", total)
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, `{"id": "evt_bad"`, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookCheckoutCreatesOrderAndCommission(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	rec := f.deliver(t, checkoutEventBody("evt_co", "pi_co"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	order, err := f.orders.FindByPaymentIntentID(ctx, "pi_co")
	if err != nil {
		t.Fatalf("order not created: %v", err)
	}
	commissions, _ := f.commissions.FindByOrderID(ctx, order.ID)
	if len(commissions) != 1 || commissions[0].CommissionCents != 4000 {
		t.Errorf("commissions = %+v, want one at 4000 cents", commissions)
	}

	// At-least-once delivery: same event again, still one of each.
	f.deliver(t, checkoutEventBody("evt_co", "pi_co"), true)
	commissions, _ = f.commissions.FindByOrderID(ctx, order.ID)
	if len(commissions) != 1 {
		t.Errorf("redelivery created %d commissions", len(commissions))
	}
}

func TestWebhookRefundEventAfterCheckout(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	f.deliver(t, checkoutEventBody("evt_co2", "pi_rf"), true)

	refundBody := fmt.Sprintf(`{
		"id": "evt_rf",
		"type": "charge.refunded",
		"created": %d,
		"data": {"object": {
			"id": "ch_rf",
			"payment_intent": "pi_rf",
			"amount": 11800,
			"amount_refunded": 11800,
			"refunds": {"data": [{"id": "re_rf", "amount": 11800, "reason": "requested_by_customer", "status": "succeeded"}]}
		}}
	}`, time.Now().Unix())

	rec := f.deliver(t, refundBody, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	order, _ := f.orders.FindByPaymentIntentID(ctx, "pi_rf")
	if order.RefundedAt == nil || !order.FullRefund {
		t.Errorf("order not fully refunded: %+v", order)
	}
	commissions, _ := f.commissions.FindByOrderID(ctx, order.ID)
	if commissions[0].Status != models.CommissionStatusVoid {
		t.Errorf("commission status = %q, want void", commissions[0].Status)
	}
}

func TestWebhookMalformedInnerObjectRejected(t *testing.T) {
	f := newWebhookFixture(t)

	// Known event type, signature valid, but data.object is not the expected shape.
	body := fmt.Sprintf(`{
		"id": "evt_badobj",
		"type": "checkout.session.completed",
		"created": %d,
		"data": {"object": []}
	}`, time.Now().Unix())

	rec := f.deliver(t, body, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for undecodable inner object", rec.Code)
	}

	if _, total, _ := f.orders.List(context.Background(), 1, 10); total != 0 {
		t.Errorf("malformed event reached the ledger: %d orders", total)
	}
}

func TestWebhookUnknownEventTypeAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	body := fmt.Sprintf(`{"id": "evt_odd", "type": "invoice.created", "created": %d, "data": {"object": {}}}`, time.Now().Unix())
	rec := f.deliver(t, body, true)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for unknown event type", rec.Code)
	}

	var resp models.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("response status = %d", resp.Status)
	}
}

func TestWebhookRefundForUnknownOrderAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	body := fmt.Sprintf(`{
		"id": "evt_stray",
		"type": "charge.refunded",
		"created": %d,
		"data": {"object": {"id": "ch_stray", "payment_intent": "pi_never_seen", "amount_refunded": 500}}
	}`, time.Now().Unix())

	rec := f.deliver(t, body, true)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for refund outside the program", rec.Code)
	}
}
