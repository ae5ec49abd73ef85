package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order represents one completed payment captured from the processor.
// There is exactly one order per payment intent; the unique index on
// paymentIntentId is what makes duplicate webhook deliveries a no-op.
type Order struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PaymentIntentID   string             `bson:"paymentIntentId" json:"paymentIntentId"`
	CheckoutSessionID string             `bson:"checkoutSessionId,omitempty" json:"checkoutSessionId,omitempty"`
	CustomerEmail     string             `bson:"customerEmail,omitempty" json:"customerEmail,omitempty"`
	CustomerName      string             `bson:"customerName,omitempty" json:"customerName,omitempty"`
	AmountSubtotal    int64              `bson:"amountSubtotal" json:"amountSubtotal"`
	AmountTotal       int64              `bson:"amountTotal" json:"amountTotal"`
	Currency          string             `bson:"currency" json:"currency"`
	ReferralCode      string             `bson:"referralCode,omitempty" json:"referralCode,omitempty"`
	PaidAt            time.Time          `bson:"paidAt" json:"paidAt"`

	// Refund state. An order is refunded at most once; RefundID records the
	// processor's refund reference so redelivered refund events can be matched.
	RefundedAt   *time.Time `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	RefundAmount int64      `bson:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	FullRefund   bool       `bson:"fullRefund,omitempty" json:"fullRefund,omitempty"`
	RefundID     string     `bson:"refundId,omitempty" json:"refundId,omitempty"`
	RefundReason string     `bson:"refundReason,omitempty" json:"refundReason,omitempty"`
	RefundStatus string     `bson:"refundStatus,omitempty" json:"refundStatus,omitempty"`

	// Dispute state
	Disputed      bool       `bson:"disputed,omitempty" json:"disputed,omitempty"`
	DisputeID     string     `bson:"disputeId,omitempty" json:"disputeId,omitempty"`
	DisputeStatus string     `bson:"disputeStatus,omitempty" json:"disputeStatus,omitempty"`
	DisputedAt    *time.Time `bson:"disputedAt,omitempty" json:"disputedAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// RefundUpdate carries the refund fields applied to an order in a single
// conditional write.
type RefundUpdate struct {
	RefundID     string
	Amount       int64
	FullRefund   bool
	Reason       string
	Status       string
	RefundedAt   time.Time
}

// DisputeUpdate carries the dispute fields applied to an order.
type DisputeUpdate struct {
	DisputeID  string
	Status     string
	DisputedAt time.Time
}

// ManualRefundRequest is the admin-initiated refund payload. Amount zero
// means refund the full order total.
type ManualRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}
