package services

import (
	"context"
	"testing"
	"time"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
)

type sweepFixture struct {
	sweep       *SweepService
	orders      *repositories.MemoryOrderRepository
	commissions *repositories.MemoryCommissionRepository
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	f := &sweepFixture{
		orders:      repositories.NewMemoryOrderRepository(),
		commissions: repositories.NewMemoryCommissionRepository(),
	}
	f.sweep = NewSweepService(f.orders, f.commissions, nil)
	return f
}

func (f *sweepFixture) addPendingCommission(t *testing.T, paymentIntent string, eligibleAt time.Time) *models.Commission {
	t.Helper()
	ctx := context.Background()

	order := &models.Order{
		PaymentIntentID: paymentIntent,
		AmountSubtotal:  10000,
		AmountTotal:     11800,
		Currency:        "usd",
		PaidAt:          eligibleAt.Add(-DefaultHoldPeriod),
	}
	if err := f.orders.Insert(ctx, order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	commission := &models.Commission{
		OrderID:         order.ID,
		PaymentIntentID: paymentIntent,
		PartnerCode:     "DNA40",
		BaseAmountCents: 10000,
		Rate:            0.40,
		CommissionCents: 4000,
		Status:          models.CommissionStatusPending,
		LockEligibleAt:  eligibleAt,
	}
	if err := f.commissions.Insert(ctx, commission); err != nil {
		t.Fatalf("seed commission: %v", err)
	}
	return commission
}

func TestSweepLocksEligibleCommissions(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	now := time.Now()

	due := f.addPendingCommission(t, "pi_due", now.Add(-time.Hour))
	early := f.addPendingCommission(t, "pi_early", now.Add(time.Hour))

	result, err := f.sweep.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Locked != 1 || result.Voided != 0 {
		t.Errorf("result = %+v, want 1 locked", result)
	}

	c, _ := f.commissions.FindByID(ctx, due.ID)
	if c.Status != models.CommissionStatusLocked {
		t.Errorf("due commission status = %q, want locked", c.Status)
	}
	c, _ = f.commissions.FindByID(ctx, early.ID)
	if c.Status != models.CommissionStatusPending {
		t.Errorf("early commission status = %q, want still pending", c.Status)
	}
}

func TestSweepVoidsWhenOrderRefundedOrDisputed(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	now := time.Now()

	refunded := f.addPendingCommission(t, "pi_ref", now.Add(-time.Hour))
	disputed := f.addPendingCommission(t, "pi_disp", now.Add(-time.Hour))

	order, _ := f.orders.FindByPaymentIntentID(ctx, "pi_ref")
	if _, err := f.orders.MarkRefunded(ctx, order.ID, models.RefundUpdate{
		RefundID:   "re_sweep",
		Amount:     11800,
		FullRefund: true,
		RefundedAt: now,
	}); err != nil {
		t.Fatalf("mark refunded: %v", err)
	}

	order, _ = f.orders.FindByPaymentIntentID(ctx, "pi_disp")
	if _, err := f.orders.MarkDisputed(ctx, order.ID, models.DisputeUpdate{
		DisputeID:  "dp_sweep",
		Status:     "needs_response",
		DisputedAt: now,
	}); err != nil {
		t.Fatalf("mark disputed: %v", err)
	}

	result, err := f.sweep.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if result.Voided != 2 || result.Locked != 0 {
		t.Errorf("result = %+v, want 2 voided", result)
	}

	c, _ := f.commissions.FindByID(ctx, refunded.ID)
	if c.Status != models.CommissionStatusVoid || c.VoidReason != models.VoidReasonExpiredWhileDisputed {
		t.Errorf("refunded-order commission = %q/%q, want void/expired_while_disputed", c.Status, c.VoidReason)
	}
	c, _ = f.commissions.FindByID(ctx, disputed.ID)
	if c.Status != models.CommissionStatusVoid {
		t.Errorf("disputed-order commission status = %q, want void", c.Status)
	}
}

func TestSweepSecondRunIsNoOp(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	now := time.Now()

	f.addPendingCommission(t, "pi_once", now.Add(-time.Hour))

	if _, err := f.sweep.Sweep(ctx, now); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	result, err := f.sweep.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if result.Locked != 0 || result.Voided != 0 {
		t.Errorf("second sweep result = %+v, want all zero", result)
	}
}
