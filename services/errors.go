package services

import "errors"

// Error taxonomy for the commission core. Handlers map these onto HTTP
// statuses; the webhook path additionally distinguishes retryable store
// failures (anything not listed here) from acknowledged no-ops.
var (
	// ErrInvalidSignature rejects an event before any state change.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrNotFound is a missing order/payout/commission on an admin call.
	ErrNotFound = errors.New("not found")

	// ErrNoEligibleCommissions means payout creation found nothing to batch.
	ErrNoEligibleCommissions = errors.New("no eligible commissions for period")

	// ErrUpstreamProcessor wraps a failed payment-processor API call.
	ErrUpstreamProcessor = errors.New("payment processor request failed")

	// ErrAlreadyRefunded rejects a second manual refund on an order.
	ErrAlreadyRefunded = errors.New("order already refunded")

	// ErrInvalidRefundAmount rejects a refund exceeding the order total.
	ErrInvalidRefundAmount = errors.New("refund amount exceeds order total")
)
