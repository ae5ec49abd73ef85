package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
	"github.com/datingdna/datingdna_backend/utils"
)

// DefaultCommissionRate is the program-wide partner share of the order
// subtotal, unless the partner carries an override.
const DefaultCommissionRate = 0.40

// DefaultHoldPeriod is how long a commission stays pending before it becomes
// eligible for locking. It covers the refund/dispute window.
const DefaultHoldPeriod = 30 * 24 * time.Hour

// ProcessorClient is the slice of the payment processor API the ledger needs.
// *StripeService implements it.
type ProcessorClient interface {
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*models.ProcessorRefund, error)
	GetCharge(ctx context.Context, chargeID string) (*models.ProcessorCharge, error)
}

// ActivityNotifier receives ledger transitions for the live admin feed.
type ActivityNotifier interface {
	Broadcast(eventType, message string, data interface{})
}

// LedgerService applies payment-processor events and manual refunds to the
// order and commission ledgers. Every effect is idempotent under at-least-once,
// out-of-order delivery: order creation is gated by the unique payment
// reference, refund and dispute marks are conditional on current state, and
// commission adjustments are keyed on the refund reference.
type LedgerService struct {
	orders      repositories.OrderRepository
	commissions repositories.CommissionRepository
	partners    repositories.PartnerRepository
	processor   ProcessorClient
	notifier    ActivityNotifier
	rate        float64
	holdPeriod  time.Duration
}

// NewLedgerService wires the ledger over its repositories. The processor and
// notifier may be nil; charge lookups and activity broadcasts are then skipped.
func NewLedgerService(orders repositories.OrderRepository, commissions repositories.CommissionRepository, partners repositories.PartnerRepository, processor ProcessorClient, notifier ActivityNotifier) *LedgerService {
	rate := DefaultCommissionRate
	if rateStr := os.Getenv("COMMISSION_RATE"); rateStr != "" {
		if parsed, err := utils.ParseFloat(rateStr); err == nil && parsed > 0 && parsed < 1 {
			rate = parsed
		}
	}
	return &LedgerService{
		orders:      orders,
		commissions: commissions,
		partners:    partners,
		processor:   processor,
		notifier:    notifier,
		rate:        rate,
		holdPeriod:  DefaultHoldPeriod,
	}
}

// SetHoldPeriod overrides the pending hold window. Used by tests.
func (s *LedgerService) SetHoldPeriod(d time.Duration) {
	s.holdPeriod = d
}

// floorShare computes floor(amount * rate) in minor currency units.
func floorShare(amountCents int64, rate float64) int64 {
	return int64(math.Floor(float64(amountCents) * rate))
}

// HandlePaymentCompleted records a completed checkout as an order and, when
// the session carries an active partner's referral code, creates one pending
// commission. Duplicate deliveries are no-ops.
func (s *LedgerService) HandlePaymentCompleted(ctx context.Context, session *models.CheckoutSessionCompleted) error {
	if session.PaymentIntent == "" {
		log.Printf("checkout session %s has no payment intent, ignoring", session.ID)
		return nil
	}

	if _, err := s.orders.FindByPaymentIntentID(ctx, session.PaymentIntent); err == nil {
		// Duplicate delivery.
		return nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	now := time.Now()
	order := &models.Order{
		PaymentIntentID:   session.PaymentIntent,
		CheckoutSessionID: session.ID,
		CustomerEmail:     session.CustomerDetails.Email,
		CustomerName:      session.CustomerDetails.Name,
		AmountSubtotal:    session.AmountSubtotal,
		AmountTotal:       session.AmountTotal,
		Currency:          session.Currency,
		ReferralCode:      session.ReferralCode(),
		PaidAt:            now,
	}

	err := s.orders.Insert(ctx, order)
	if errors.Is(err, repositories.ErrDuplicate) {
		// Lost the race against a concurrent delivery of the same event;
		// the winner owns the commission too.
		return nil
	}
	if err != nil {
		return err
	}

	s.broadcast("order_created", fmt.Sprintf("Order %s for %d %s", order.PaymentIntentID, order.AmountTotal, order.Currency), order)

	code := session.ReferralCode()
	if code == "" {
		return nil
	}

	partner, err := s.partners.FindByCode(ctx, code)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Printf("order %s references unknown referral code %q, no commission created", order.PaymentIntentID, code)
		return nil
	}
	if err != nil {
		return err
	}
	if !partner.Active {
		log.Printf("partner %s is inactive, no commission for order %s", code, order.PaymentIntentID)
		return nil
	}

	rate := s.rate
	if partner.Rate > 0 {
		rate = partner.Rate
	}

	commission := &models.Commission{
		OrderID:         order.ID,
		PaymentIntentID: order.PaymentIntentID,
		PartnerCode:     partner.Code,
		BaseAmountCents: order.AmountSubtotal,
		Rate:            rate,
		CommissionCents: floorShare(order.AmountSubtotal, rate),
		Status:          models.CommissionStatusPending,
		LockEligibleAt:  order.PaidAt.Add(s.holdPeriod),
	}
	if err := s.commissions.Insert(ctx, commission); err != nil {
		return err
	}

	s.broadcast("commission_created", fmt.Sprintf("Commission %d cents for partner %s", commission.CommissionCents, partner.Code), commission)
	return nil
}

// HandleChargeRefunded marks the order refunded and voids or scales its
// commissions. Events referencing unknown orders are acknowledged silently;
// the refund may belong to a payment outside the partner program.
func (s *LedgerService) HandleChargeRefunded(ctx context.Context, charge *models.ChargeRefunded) error {
	paymentIntent := charge.PaymentIntent
	if paymentIntent == "" && s.processor != nil {
		fetched, err := s.processor.GetCharge(ctx, charge.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				log.Printf("charge %s not found at processor, ignoring refund event", charge.ID)
				return nil
			}
			return err
		}
		paymentIntent = fetched.PaymentIntent
	}
	if paymentIntent == "" {
		log.Printf("refund event for charge %s has no payment intent, ignoring", charge.ID)
		return nil
	}

	order, err := s.orders.FindByPaymentIntentID(ctx, paymentIntent)
	if errors.Is(err, repositories.ErrNotFound) {
		// Possibly delivered before the checkout event, or outside the
		// program. Acknowledge; the order path will not retry forever.
		log.Printf("refund event for unknown order %s, ignoring", paymentIntent)
		return nil
	}
	if err != nil {
		return err
	}

	refundID := charge.ID
	reason := ""
	status := ""
	if latest := charge.LatestRefund(); latest != nil {
		refundID = latest.ID
		reason = latest.Reason
		status = latest.Status
	}

	if order.RefundedAt != nil {
		if order.RefundID == refundID {
			return nil
		}
		// An order is refunded at most once in this model. A different
		// refund reference on an already-refunded order is logged and
		// acknowledged rather than re-applied.
		log.Printf("order %s already refunded (refund %s), ignoring refund %s", order.PaymentIntentID, order.RefundID, refundID)
		return nil
	}

	amount := charge.AmountRefunded
	if amount > order.AmountTotal {
		amount = order.AmountTotal
	}
	fullRefund := charge.AmountRefunded >= order.AmountTotal

	applied, err := s.orders.MarkRefunded(ctx, order.ID, models.RefundUpdate{
		RefundID:   refundID,
		Amount:     amount,
		FullRefund: fullRefund,
		Reason:     reason,
		Status:     status,
		RefundedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent delivery won the conditional write.
		return nil
	}

	s.broadcast("order_refunded", fmt.Sprintf("Order %s refunded %d cents", order.PaymentIntentID, amount), order)

	return s.applyRefundToCommissions(ctx, order, refundID, amount, fullRefund)
}

// applyRefundToCommissions adjusts the order's commissions after a refund.
// Full refund: void everything not yet paid. Partial refund: void pending
// commissions outright, scale locked/queued ones by the surviving fraction.
// Paid commissions are never touched.
func (s *LedgerService) applyRefundToCommissions(ctx context.Context, order *models.Order, refundID string, refundAmount int64, fullRefund bool) error {
	commissions, err := s.commissions.FindByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, commission := range commissions {
		if fullRefund {
			voided, err := s.commissions.Void(ctx, commission.ID, []string{
				models.CommissionStatusPending,
				models.CommissionStatusLocked,
				models.CommissionStatusQueuedForPayout,
			}, models.VoidReasonFullRefund, refundID, now)
			if err != nil {
				return err
			}
			if voided {
				s.broadcast("commission_voided", fmt.Sprintf("Commission for partner %s voided (full refund)", commission.PartnerCode), commission.ID)
			}
			continue
		}

		switch commission.Status {
		case models.CommissionStatusPending:
			if _, err := s.commissions.Void(ctx, commission.ID, []string{models.CommissionStatusPending},
				models.VoidReasonPartialRefund, refundID, now); err != nil {
				return err
			}
		case models.CommissionStatusLocked, models.CommissionStatusQueuedForPayout:
			fraction := float64(refundAmount) / float64(order.AmountTotal)
			newCommission := floorShare(commission.CommissionCents, 1-fraction)
			newBase := floorShare(commission.BaseAmountCents, 1-fraction)
			adjusted, err := s.commissions.AdjustForRefund(ctx, commission.ID, refundID, newCommission, newBase, fraction)
			if err != nil {
				return err
			}
			if adjusted {
				s.broadcast("commission_adjusted", fmt.Sprintf("Commission for partner %s scaled to %d cents", commission.PartnerCode, newCommission), commission.ID)
			}
		}
	}
	return nil
}

// HandleDisputeCreated flags the order disputed and voids its pending
// commissions. Locked and paid commissions stay for manual resolution; a
// dispute does not claw back funds already past the hold window.
func (s *LedgerService) HandleDisputeCreated(ctx context.Context, dispute *models.DisputeCreated) error {
	paymentIntent := dispute.PaymentIntent
	if paymentIntent == "" && dispute.Charge != "" && s.processor != nil {
		fetched, err := s.processor.GetCharge(ctx, dispute.Charge)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		paymentIntent = fetched.PaymentIntent
	}
	if paymentIntent == "" {
		log.Printf("dispute %s has no payment intent, ignoring", dispute.ID)
		return nil
	}

	order, err := s.orders.FindByPaymentIntentID(ctx, paymentIntent)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Printf("dispute %s for unknown order %s, ignoring", dispute.ID, paymentIntent)
		return nil
	}
	if err != nil {
		return err
	}

	disputedAt := time.Now()
	if dispute.Created > 0 {
		disputedAt = time.Unix(dispute.Created, 0)
	}
	applied, err := s.orders.MarkDisputed(ctx, order.ID, models.DisputeUpdate{
		DisputeID:  dispute.ID,
		Status:     dispute.Status,
		DisputedAt: disputedAt,
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	s.broadcast("order_disputed", fmt.Sprintf("Order %s disputed", order.PaymentIntentID), order)

	commissions, err := s.commissions.FindByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, commission := range commissions {
		if _, err := s.commissions.Void(ctx, commission.ID, []string{models.CommissionStatusPending},
			models.VoidReasonDispute, "", now); err != nil {
			return err
		}
	}
	return nil
}

// RefundOrder is the admin-initiated refund: it calls the processor first,
// then applies the same commission adjustments as the webhook path. No ledger
// write happens until the processor accepts the refund.
func (s *LedgerService) RefundOrder(ctx context.Context, order *models.Order, amountCents int64, reason string) (*models.Order, error) {
	if order.RefundedAt != nil {
		return nil, ErrAlreadyRefunded
	}
	if amountCents == 0 {
		amountCents = order.AmountTotal
	}
	if amountCents > order.AmountTotal || amountCents < 0 {
		return nil, ErrInvalidRefundAmount
	}
	if s.processor == nil {
		return nil, fmt.Errorf("%w: processor not configured", ErrUpstreamProcessor)
	}

	refund, err := s.processor.CreateRefund(ctx, order.PaymentIntentID, amountCents, reason)
	if err != nil {
		return nil, err
	}

	fullRefund := amountCents >= order.AmountTotal
	applied, err := s.orders.MarkRefunded(ctx, order.ID, models.RefundUpdate{
		RefundID:   refund.ID,
		Amount:     amountCents,
		FullRefund: fullRefund,
		Reason:     reason,
		Status:     refund.Status,
		RefundedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// A webhook delivery for the same refund raced us.
		return nil, ErrAlreadyRefunded
	}

	s.broadcast("order_refunded", fmt.Sprintf("Order %s manually refunded %d cents", order.PaymentIntentID, amountCents), order)

	if err := s.applyRefundToCommissions(ctx, order, refund.ID, amountCents, fullRefund); err != nil {
		return nil, err
	}

	return s.orders.FindByID(ctx, order.ID)
}

func (s *LedgerService) broadcast(eventType, message string, data interface{}) {
	if s.notifier != nil {
		s.notifier.Broadcast(eventType, message, data)
	}
}
