package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Commission lifecycle. Transitions only move forward:
// pending -> locked -> queued_for_payout -> paid, with void reachable from
// every non-paid status.
const (
	CommissionStatusPending         = "pending"
	CommissionStatusLocked          = "locked"
	CommissionStatusQueuedForPayout = "queued_for_payout"
	CommissionStatusPaid            = "paid"
	CommissionStatusVoid            = "void"
)

// Void reasons recorded when a commission is cancelled before payout.
const (
	VoidReasonFullRefund           = "full_refund"
	VoidReasonPartialRefund        = "partial_refund"
	VoidReasonDispute              = "dispute"
	VoidReasonExpiredWhileDisputed = "expired_while_disputed"
)

// Commission is the amount owed to a referral partner for one order.
// Amounts are integer minor currency units; CommissionCents is always
// floor(BaseAmountCents * Rate), re-floored after partial-refund scaling.
type Commission struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID         primitive.ObjectID `bson:"orderId" json:"orderId"`
	PaymentIntentID string             `bson:"paymentIntentId" json:"paymentIntentId"`
	PartnerCode     string             `bson:"partnerCode" json:"partnerCode"`
	BaseAmountCents int64              `bson:"baseAmountCents" json:"baseAmountCents"`
	Rate            float64            `bson:"rate" json:"rate"`
	CommissionCents int64              `bson:"commissionCents" json:"commissionCents"`
	Status          string             `bson:"status" json:"status"`
	LockEligibleAt  time.Time          `bson:"lockEligibleAt" json:"lockEligibleAt"`

	// Void metadata
	VoidReason   string     `bson:"voidReason,omitempty" json:"voidReason,omitempty"`
	VoidedAt     *time.Time `bson:"voidedAt,omitempty" json:"voidedAt,omitempty"`
	VoidRefundID string     `bson:"voidRefundId,omitempty" json:"voidRefundId,omitempty"`

	// Partial-refund adjustment metadata. AdjustedRefundID keeps the
	// adjustment idempotent: a redelivered refund event with the same
	// refund reference never scales the amounts twice.
	AdjustedForRefund       bool    `bson:"adjustedForRefund,omitempty" json:"adjustedForRefund,omitempty"`
	OriginalCommissionCents int64   `bson:"originalCommissionCents,omitempty" json:"originalCommissionCents,omitempty"`
	OriginalBaseAmountCents int64   `bson:"originalBaseAmountCents,omitempty" json:"originalBaseAmountCents,omitempty"`
	AppliedRefundPercent    float64 `bson:"appliedRefundPercent,omitempty" json:"appliedRefundPercent,omitempty"`
	AdjustedRefundID        string  `bson:"adjustedRefundId,omitempty" json:"adjustedRefundId,omitempty"`

	PaidPayoutID *primitive.ObjectID `bson:"paidPayoutId,omitempty" json:"paidPayoutId,omitempty"`
	PaidAt       *time.Time          `bson:"paidAt,omitempty" json:"paidAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CommissionSummary aggregates commission totals for one partner by status.
type CommissionSummary struct {
	PartnerCode string `bson:"_id" json:"partnerCode"`
	PendingCents int64 `bson:"pendingCents" json:"pendingCents"`
	LockedCents  int64 `bson:"lockedCents" json:"lockedCents"`
	QueuedCents  int64 `bson:"queuedCents" json:"queuedCents"`
	PaidCents    int64 `bson:"paidCents" json:"paidCents"`
	VoidCents    int64 `bson:"voidCents" json:"voidCents"`
	Count        int64 `bson:"count" json:"count"`
}
