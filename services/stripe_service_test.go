package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	s := NewStripeServiceWithConfig("https://api.stripe.com", "sk_test", "whsec_test")
	payload := []byte(`{"id":"evt_1","type":"charge.refunded"}`)

	header := s.SignPayload(payload, time.Now())
	if err := s.VerifySignature(payload, header); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
}

func TestVerifySignatureRejections(t *testing.T) {
	s := NewStripeServiceWithConfig("https://api.stripe.com", "sk_test", "whsec_test")
	payload := []byte(`{"id":"evt_1"}`)
	valid := s.SignPayload(payload, time.Now())

	other := NewStripeServiceWithConfig("https://api.stripe.com", "sk_test", "whsec_other")

	tests := []struct {
		name    string
		payload []byte
		header  string
	}{
		{"missing header", payload, ""},
		{"garbage header", payload, "not-a-signature"},
		{"wrong secret", payload, other.SignPayload(payload, time.Now())},
		{"tampered payload", []byte(`{"id":"evt_2"}`), valid},
		{"stale timestamp", payload, s.SignPayload(payload, time.Now().Add(-10*time.Minute))},
		{"future timestamp", payload, s.SignPayload(payload, time.Now().Add(10*time.Minute))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.VerifySignature(tt.payload, tt.header); !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("error = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestCreateRefund(t *testing.T) {
	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/refunds" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Errorf("authorization = %q", auth)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("missing idempotency key on refund creation")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"payment_intent": r.PostFormValue("payment_intent"),
			"amount":         r.PostFormValue("amount"),
			"reason":         r.PostFormValue("reason"),
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":             "re_123",
			"payment_intent": "pi_123",
			"amount":         5900,
			"status":         "succeeded",
		})
	}))
	defer server.Close()

	s := NewStripeServiceWithConfig(server.URL, "sk_test", "whsec_test")
	refund, err := s.CreateRefund(context.Background(), "pi_123", 5900, "requested_by_customer")
	if err != nil {
		t.Fatalf("CreateRefund: %v", err)
	}
	if refund.ID != "re_123" || refund.Status != "succeeded" {
		t.Errorf("refund = %+v", refund)
	}
	if gotForm["payment_intent"] != "pi_123" || gotForm["amount"] != "5900" || gotForm["reason"] != "requested_by_customer" {
		t.Errorf("form = %v", gotForm)
	}
}

func TestCreateRefundProcessorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"type":    "invalid_request_error",
				"code":    "charge_already_refunded",
				"message": "Charge has already been refunded.",
			},
		})
	}))
	defer server.Close()

	s := NewStripeServiceWithConfig(server.URL, "sk_test", "whsec_test")
	if _, err := s.CreateRefund(context.Background(), "pi_123", 0, ""); !errors.Is(err, ErrUpstreamProcessor) {
		t.Errorf("error = %v, want ErrUpstreamProcessor", err)
	}
}

func TestGetCharge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/charges/ch_known":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":             "ch_known",
				"payment_intent": "pi_known",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := NewStripeServiceWithConfig(server.URL, "sk_test", "whsec_test")

	charge, err := s.GetCharge(context.Background(), "ch_known")
	if err != nil {
		t.Fatalf("GetCharge: %v", err)
	}
	if charge.PaymentIntent != "pi_known" {
		t.Errorf("payment intent = %q, want pi_known", charge.PaymentIntent)
	}

	if _, err := s.GetCharge(context.Background(), "ch_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
