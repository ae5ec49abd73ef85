package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Partner is a referral partner (affiliate). Orders carry the partner's code
// in the checkout metadata; only active partners earn commissions.
type Partner struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code         string             `bson:"code" json:"code"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PayoutMethod string             `bson:"payoutMethod,omitempty" json:"payoutMethod,omitempty"`
	// Rate overrides the program-wide commission rate when set (> 0).
	Rate      float64   `bson:"rate,omitempty" json:"rate,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// CreatePartnerRequest is the admin payload for registering a partner.
// Code is optional; one is generated when absent.
type CreatePartnerRequest struct {
	Code         string  `json:"code"`
	Name         string  `json:"name" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	PayoutMethod string  `json:"payoutMethod"`
	Rate         float64 `json:"rate" validate:"gte=0,lte=1"`
}

// UpdatePartnerRequest carries partial partner updates.
type UpdatePartnerRequest struct {
	Name         *string  `json:"name,omitempty"`
	Email        *string  `json:"email,omitempty" validate:"omitempty,email"`
	PayoutMethod *string  `json:"payoutMethod,omitempty"`
	Rate         *float64 `json:"rate,omitempty" validate:"omitempty,gte=0,lte=1"`
	Active       *bool    `json:"active,omitempty"`
}
