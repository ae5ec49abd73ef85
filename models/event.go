package models

import (
	"encoding/json"
	"fmt"
)

// Webhook event types consumed from the payment processor. Anything else is
// acknowledged and ignored.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventChargeRefunded           = "charge.refunded"
	EventDisputeCreated           = "charge.dispute.created"
)

// WebhookEvent is the processor's event envelope. Data.Object stays raw until
// the event type is known; the typed accessors below validate the payload
// before any business logic touches it.
type WebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSessionCompleted is the payload of a checkout.session.completed
// event. The referral partner code travels in the session metadata under the
// "ref" key, set by the storefront when the visitor arrived via a tracked link.
type CheckoutSessionCompleted struct {
	ID              string `json:"id"`
	PaymentIntent   string `json:"payment_intent"`
	AmountSubtotal  int64  `json:"amount_subtotal"`
	AmountTotal     int64  `json:"amount_total"`
	Currency        string `json:"currency"`
	CustomerDetails struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// ReferralCode returns the partner code attached to the session, if any.
func (s *CheckoutSessionCompleted) ReferralCode() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata["ref"]
}

// ChargeRefunded is the payload of a charge.refunded event. AmountRefunded is
// cumulative across all refunds on the charge.
type ChargeRefunded struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Refunds        struct {
		Data []RefundObject `json:"data"`
	} `json:"refunds"`
}

// RefundObject is one refund on a charge.
type RefundObject struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
	Status string `json:"status"`
}

// LatestRefund returns the most recent refund on the charge. The processor
// lists refunds newest first.
func (c *ChargeRefunded) LatestRefund() *RefundObject {
	if len(c.Refunds.Data) == 0 {
		return nil
	}
	return &c.Refunds.Data[0]
}

// DisputeCreated is the payload of a charge.dispute.created event.
type DisputeCreated struct {
	ID            string `json:"id"`
	Charge        string `json:"charge"`
	PaymentIntent string `json:"payment_intent"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	Created       int64  `json:"created"`
}

// ParseWebhookEvent decodes the raw webhook body into the event envelope.
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event payload missing type")
	}
	return &event, nil
}

// CheckoutSession decodes the inner object of a checkout.session.completed event.
func (e *WebhookEvent) CheckoutSession() (*CheckoutSessionCompleted, error) {
	var session CheckoutSessionCompleted
	if err := json.Unmarshal(e.Data.Object, &session); err != nil {
		return nil, fmt.Errorf("malformed checkout session object: %w", err)
	}
	return &session, nil
}

// Charge decodes the inner object of a charge.refunded event.
func (e *WebhookEvent) Charge() (*ChargeRefunded, error) {
	var charge ChargeRefunded
	if err := json.Unmarshal(e.Data.Object, &charge); err != nil {
		return nil, fmt.Errorf("malformed charge object: %w", err)
	}
	return &charge, nil
}

// Dispute decodes the inner object of a charge.dispute.created event.
func (e *WebhookEvent) Dispute() (*DisputeCreated, error) {
	var dispute DisputeCreated
	if err := json.Unmarshal(e.Data.Object, &dispute); err != nil {
		return nil, fmt.Errorf("malformed dispute object: %w", err)
	}
	return &dispute, nil
}
