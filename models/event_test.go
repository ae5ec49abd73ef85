package models

import "testing"

func TestParseWebhookEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1756500000,
		"data": {"object": {
			"id": "cs_1",
			"payment_intent": "pi_1",
			"amount_subtotal": 10000,
			"amount_total": 11800,
			"currency": "usd",
			"metadata": {"ref": "DNA40"}
		}}
	}`)

	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("ParseWebhookEvent: %v", err)
	}
	if event.ID != "evt_1" || event.Type != EventCheckoutSessionCompleted {
		t.Errorf("envelope = %s/%s", event.ID, event.Type)
	}

	session, err := event.CheckoutSession()
	if err != nil {
		t.Fatalf("CheckoutSession: %v", err)
	}
	if session.PaymentIntent != "pi_1" || session.AmountSubtotal != 10000 {
		t.Errorf("session = %+v", session)
	}
	if session.ReferralCode() != "DNA40" {
		t.Errorf("referral code = %q, want DNA40", session.ReferralCode())
	}
}

func TestParseWebhookEventMissingType(t *testing.T) {
	if _, err := ParseWebhookEvent([]byte(`{"id": "evt_1"}`)); err == nil {
		t.Error("event without type should be rejected")
	}
	if _, err := ParseWebhookEvent([]byte(`{`)); err == nil {
		t.Error("truncated body should be rejected")
	}
}

func TestReferralCodeAbsent(t *testing.T) {
	session := &CheckoutSessionCompleted{}
	if session.ReferralCode() != "" {
		t.Errorf("referral code = %q, want empty", session.ReferralCode())
	}
}

func TestLatestRefund(t *testing.T) {
	charge := &ChargeRefunded{}
	if charge.LatestRefund() != nil {
		t.Error("no refunds should yield nil")
	}

	charge.Refunds.Data = []RefundObject{
		{ID: "re_new", Amount: 500},
		{ID: "re_old", Amount: 300},
	}
	latest := charge.LatestRefund()
	if latest == nil || latest.ID != "re_new" {
		t.Errorf("latest = %+v, want re_new first", latest)
	}
}
