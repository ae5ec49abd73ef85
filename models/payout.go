package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payout status moves forward only: draft -> exported -> paid. Export is not
// a precondition for marking paid.
const (
	PayoutStatusDraft    = "draft"
	PayoutStatusExported = "exported"
	PayoutStatusPaid     = "paid"
)

// Payout is one settlement batch covering all commissions locked within a
// period. Items are immutable after creation; only status advances.
type Payout struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PeriodStart time.Time          `bson:"periodStart" json:"periodStart"`
	PeriodEnd   time.Time          `bson:"periodEnd" json:"periodEnd"`
	TotalCents  int64              `bson:"totalCents" json:"totalCents"`
	Status      string             `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	ExportedAt  *time.Time         `bson:"exportedAt,omitempty" json:"exportedAt,omitempty"`
	PaidAt      *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
}

// PayoutItem groups one partner's commissions inside a payout.
type PayoutItem struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	PayoutID      primitive.ObjectID   `bson:"payoutId" json:"payoutId"`
	PartnerCode   string               `bson:"partnerCode" json:"partnerCode"`
	CommissionIDs []primitive.ObjectID `bson:"commissionIds" json:"commissionIds"`
	AmountCents   int64                `bson:"amountCents" json:"amountCents"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
}

// PayoutBundle is the create-payout response: the batch plus its items.
type PayoutBundle struct {
	Payout Payout       `json:"payout"`
	Items  []PayoutItem `json:"items"`
}

// CreatePayoutRequest is the admin payload for batching a period.
type CreatePayoutRequest struct {
	PeriodStart time.Time `json:"periodStart" validate:"required"`
	PeriodEnd   time.Time `json:"periodEnd" validate:"required"`
}

// PaymentInstruction is one row of the exported payout: everything finance
// needs to pay a partner.
type PaymentInstruction struct {
	PartnerCode  string `json:"partnerCode"`
	PartnerName  string `json:"partnerName,omitempty"`
	Email        string `json:"email,omitempty"`
	PayoutMethod string `json:"payoutMethod,omitempty"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
	Note         string `json:"note,omitempty"`
}
