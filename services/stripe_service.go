package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datingdna/datingdna_backend/models"
)

// signatureTolerance bounds how old a webhook timestamp may be before the
// signature is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

// StripeService handles interactions with the payment processor's REST API
// and verifies inbound webhook signatures.
type StripeService struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	client        *http.Client
}

// NewStripeService creates a new processor client from environment config.
func NewStripeService() *StripeService {
	baseURL := os.Getenv("STRIPE_API_BASE")
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}

	secretKey := os.Getenv("STRIPE_SECRET_KEY")
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")

	if secretKey == "" || webhookSecret == "" {
		log.Printf("WARNING: Stripe credentials not fully configured:")
		if secretKey == "" {
			log.Printf("  - STRIPE_SECRET_KEY is missing")
		}
		if webhookSecret == "" {
			log.Printf("  - STRIPE_WEBHOOK_SECRET is missing")
		}
		log.Printf("Please set these environment variables for payment processing to work")
	}

	return &StripeService{
		baseURL:       strings.TrimRight(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// NewStripeServiceWithConfig builds a client with explicit settings. Used by
// tests pointed at a stub server.
func NewStripeServiceWithConfig(baseURL, secretKey, webhookSecret string) *StripeService {
	return &StripeService{
		baseURL:       strings.TrimRight(baseURL, "/"),
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

// VerifySignature checks the processor's signature header against the raw
// webhook body. The header carries a unix timestamp and one or more HMAC
// signatures: "t=1700000000,v1=abcdef...". The signed message is
// "<timestamp>.<body>". Verification failure must happen before any ledger
// read or write.
func (s *StripeService) VerifySignature(payload []byte, header string) error {
	if s.webhookSecret == "" {
		return fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if header == "" {
		return fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
	}

	age := time.Since(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: no matching signature", ErrInvalidSignature)
}

// SignPayload produces a signature header for the given body and timestamp.
// Exists for tests and for replaying events against a local instance.
func (s *StripeService) SignPayload(payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// makeRequest performs a form-encoded request against the processor API.
func (s *StripeService) makeRequest(ctx context.Context, method, endpoint string, form url.Values, out interface{}) error {
	if s.secretKey == "" {
		return fmt.Errorf("%w: missing STRIPE_SECRET_KEY", ErrUpstreamProcessor)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		// Retried refund creations must not double-refund on the processor side.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamProcessor, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUpstreamProcessor, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var procErr models.ProcessorError
		if err := json.Unmarshal(respBody, &procErr); err == nil && procErr.Error.Message != "" {
			log.Printf("Processor API error: %s (%s)", procErr.Error.Message, procErr.Error.Code)
			return fmt.Errorf("%w: %s", ErrUpstreamProcessor, procErr.Error.Message)
		}
		return fmt.Errorf("%w: status %d", ErrUpstreamProcessor, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: failed to parse response: %v", ErrUpstreamProcessor, err)
		}
	}
	return nil
}

// CreateRefund refunds a payment intent. Amount zero refunds the remaining
// balance in full.
func (s *StripeService) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*models.ProcessorRefund, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	if amountCents > 0 {
		form.Set("amount", strconv.FormatInt(amountCents, 10))
	}
	if reason != "" {
		form.Set("reason", reason)
	}

	var refund models.ProcessorRefund
	if err := s.makeRequest(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetCharge looks up a charge, used to resolve the payment intent when a
// refund or dispute event omits it.
func (s *StripeService) GetCharge(ctx context.Context, chargeID string) (*models.ProcessorCharge, error) {
	var charge models.ProcessorCharge
	if err := s.makeRequest(ctx, http.MethodGet, "/v1/charges/"+chargeID, nil, &charge); err != nil {
		return nil, err
	}
	return &charge, nil
}
