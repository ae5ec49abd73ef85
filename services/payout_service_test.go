package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
)

type recordingMailer struct {
	mu    sync.Mutex
	sends int
}

func (m *recordingMailer) SendPayoutExport(payout *models.Payout, rows []models.PaymentInstruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	return nil
}

type payoutFixture struct {
	service     *PayoutService
	commissions *repositories.MemoryCommissionRepository
	payouts     *repositories.MemoryPayoutRepository
	partners    *repositories.MemoryPartnerRepository
	mailer      *recordingMailer
	start       time.Time
	end         time.Time
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()
	f := &payoutFixture{
		commissions: repositories.NewMemoryCommissionRepository(),
		payouts:     repositories.NewMemoryPayoutRepository(),
		partners:    repositories.NewMemoryPartnerRepository(),
		mailer:      &recordingMailer{},
		start:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		end:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	f.service = NewPayoutService(f.commissions, f.payouts, f.partners, f.mailer, nil)

	ctx := context.Background()
	for _, p := range []models.Partner{
		{Code: "P1", Name: "Partner One", Email: "one@example.com", PayoutMethod: "bank_transfer", Active: true},
		{Code: "P2", Name: "Partner Two", Email: "two@example.com", PayoutMethod: "paypal", Active: true},
	} {
		partner := p
		if err := f.partners.Insert(ctx, &partner); err != nil {
			t.Fatalf("seed partner %s: %v", p.Code, err)
		}
	}
	return f
}

func (f *payoutFixture) addLockedCommission(t *testing.T, partnerCode string, cents int64) primitive.ObjectID {
	t.Helper()
	commission := &models.Commission{
		OrderID:         primitive.NewObjectID(),
		PaymentIntentID: "pi_" + primitive.NewObjectID().Hex(),
		PartnerCode:     partnerCode,
		BaseAmountCents: cents * 2,
		Rate:            0.5,
		CommissionCents: cents,
		Status:          models.CommissionStatusLocked,
		LockEligibleAt:  f.start.Add(24 * time.Hour),
	}
	if err := f.commissions.Insert(context.Background(), commission); err != nil {
		t.Fatalf("seed commission: %v", err)
	}
	return commission.ID
}

func TestCreatePayoutGroupsByPartner(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addLockedCommission(t, "P1", 2000)
	f.addLockedCommission(t, "P1", 3000)
	f.addLockedCommission(t, "P2", 1000)

	bundle, err := f.service.CreatePayout(ctx, f.start, f.end)
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}

	if bundle.Payout.TotalCents != 6000 {
		t.Errorf("total = %d cents, want 6000", bundle.Payout.TotalCents)
	}
	if bundle.Payout.Status != models.PayoutStatusDraft {
		t.Errorf("status = %q, want draft", bundle.Payout.Status)
	}
	if len(bundle.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(bundle.Items))
	}

	// Items come back sorted by partner code.
	if bundle.Items[0].PartnerCode != "P1" || bundle.Items[0].AmountCents != 5000 {
		t.Errorf("item[0] = %s/%d, want P1/5000", bundle.Items[0].PartnerCode, bundle.Items[0].AmountCents)
	}
	if bundle.Items[1].PartnerCode != "P2" || bundle.Items[1].AmountCents != 1000 {
		t.Errorf("item[1] = %s/%d, want P2/1000", bundle.Items[1].PartnerCode, bundle.Items[1].AmountCents)
	}
	if len(bundle.Items[0].CommissionIDs) != 2 {
		t.Errorf("P1 item covers %d commissions, want 2", len(bundle.Items[0].CommissionIDs))
	}

	// Every claimed commission is queued.
	for _, item := range bundle.Items {
		for _, id := range item.CommissionIDs {
			c, err := f.commissions.FindByID(ctx, id)
			if err != nil {
				t.Fatalf("find commission: %v", err)
			}
			if c.Status != models.CommissionStatusQueuedForPayout {
				t.Errorf("commission %s status = %q, want queued_for_payout", id.Hex(), c.Status)
			}
		}
	}
}

func TestCreatePayoutNoEligibleCommissions(t *testing.T) {
	f := newPayoutFixture(t)

	if _, err := f.service.CreatePayout(context.Background(), f.start, f.end); !errors.Is(err, ErrNoEligibleCommissions) {
		t.Errorf("error = %v, want ErrNoEligibleCommissions", err)
	}
}

func TestCreatePayoutExcludesAlreadyQueued(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addLockedCommission(t, "P1", 2000)
	if _, err := f.service.CreatePayout(ctx, f.start, f.end); err != nil {
		t.Fatalf("first CreatePayout: %v", err)
	}

	// Everything is claimed already; the second run finds nothing.
	if _, err := f.service.CreatePayout(ctx, f.start, f.end); !errors.Is(err, ErrNoEligibleCommissions) {
		t.Errorf("second run error = %v, want ErrNoEligibleCommissions", err)
	}
}

func TestCreatePayoutConcurrentRunsNeverShareCommissions(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f.addLockedCommission(t, "P1", 100)
	}

	var wg sync.WaitGroup
	bundles := make([]*models.PayoutBundle, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			bundle, err := f.service.CreatePayout(ctx, f.start, f.end)
			if err != nil && !errors.Is(err, ErrNoEligibleCommissions) {
				t.Errorf("concurrent CreatePayout: %v", err)
				return
			}
			bundles[slot] = bundle
		}(i)
	}
	wg.Wait()

	seen := map[primitive.ObjectID]int{}
	var total int64
	for _, bundle := range bundles {
		if bundle == nil {
			continue
		}
		total += bundle.Payout.TotalCents
		for _, item := range bundle.Items {
			for _, id := range item.CommissionIDs {
				seen[id]++
			}
		}
	}

	if len(seen) != 20 {
		t.Errorf("claimed %d distinct commissions, want all 20", len(seen))
	}
	for id, count := range seen {
		if count > 1 {
			t.Errorf("commission %s claimed by %d payouts", id.Hex(), count)
		}
	}
	if total != 2000 {
		t.Errorf("combined totals = %d cents, want 2000", total)
	}
}

func TestExportPayoutTransitionsOnceAndMailsOnce(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addLockedCommission(t, "P1", 2000)
	f.addLockedCommission(t, "P2", 1000)
	bundle, err := f.service.CreatePayout(ctx, f.start, f.end)
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}

	payout, rows, err := f.service.ExportPayout(ctx, bundle.Payout.ID)
	if err != nil {
		t.Fatalf("ExportPayout: %v", err)
	}
	if payout.Status != models.PayoutStatusExported || payout.ExportedAt == nil {
		t.Errorf("payout status = %q exportedAt=%v, want exported with timestamp", payout.Status, payout.ExportedAt)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d instruction rows, want 2", len(rows))
	}
	if rows[0].PartnerName != "Partner One" || rows[0].PayoutMethod != "bank_transfer" {
		t.Errorf("row[0] missing partner details: %+v", rows[0])
	}

	// Re-export returns the same rows without another email.
	_, rows2, err := f.service.ExportPayout(ctx, bundle.Payout.ID)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if len(rows2) != 2 {
		t.Errorf("re-export returned %d rows, want 2", len(rows2))
	}
	if f.mailer.sends != 1 {
		t.Errorf("mailer called %d times, want 1", f.mailer.sends)
	}
}

func TestExportPayoutMissingPartnerDegradesRow(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addLockedCommission(t, "GHOST", 1500)
	bundle, err := f.service.CreatePayout(ctx, f.start, f.end)
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}

	_, rows, err := f.service.ExportPayout(ctx, bundle.Payout.ID)
	if err != nil {
		t.Fatalf("ExportPayout: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Note == "" {
		t.Error("row for missing partner should carry a note")
	}
	if rows[0].AmountCents != 1500 {
		t.Errorf("row amount = %d, want 1500", rows[0].AmountCents)
	}
}

func TestMarkPaidFinalizesCommissions(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addLockedCommission(t, "P1", 2000)
	f.addLockedCommission(t, "P2", 1000)
	bundle, err := f.service.CreatePayout(ctx, f.start, f.end)
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}

	// Draft payouts may be marked paid without an export step.
	payout, err := f.service.MarkPaid(ctx, bundle.Payout.ID)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if payout.Status != models.PayoutStatusPaid || payout.PaidAt == nil {
		t.Errorf("payout status = %q paidAt=%v, want paid with timestamp", payout.Status, payout.PaidAt)
	}

	for _, item := range bundle.Items {
		for _, id := range item.CommissionIDs {
			c, err := f.commissions.FindByID(ctx, id)
			if err != nil {
				t.Fatalf("find commission: %v", err)
			}
			if c.Status != models.CommissionStatusPaid {
				t.Errorf("commission %s status = %q, want paid", id.Hex(), c.Status)
			}
			if c.PaidPayoutID == nil || *c.PaidPayoutID != bundle.Payout.ID {
				t.Errorf("commission %s not linked to payout", id.Hex())
			}
		}
	}

	// Marking again is a no-op.
	again, err := f.service.MarkPaid(ctx, bundle.Payout.ID)
	if err != nil {
		t.Fatalf("second MarkPaid: %v", err)
	}
	if again.Status != models.PayoutStatusPaid {
		t.Errorf("second MarkPaid status = %q", again.Status)
	}
}

func TestMarkPaidSkipsVoidedCommission(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	id := f.addLockedCommission(t, "P1", 2000)
	bundle, err := f.service.CreatePayout(ctx, f.start, f.end)
	if err != nil {
		t.Fatalf("CreatePayout: %v", err)
	}

	// A refund landed while the commission sat in the batch.
	if _, err := f.commissions.Void(ctx, id,
		[]string{models.CommissionStatusQueuedForPayout}, models.VoidReasonFullRefund, "re_late", time.Now()); err != nil {
		t.Fatalf("void commission: %v", err)
	}

	if _, err := f.service.MarkPaid(ctx, bundle.Payout.ID); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	c, err := f.commissions.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find commission: %v", err)
	}
	if c.Status != models.CommissionStatusVoid {
		t.Errorf("voided commission flipped to %q at payment time", c.Status)
	}
}

func TestMarkPaidUnknownPayout(t *testing.T) {
	f := newPayoutFixture(t)

	if _, err := f.service.MarkPaid(context.Background(), primitive.NewObjectID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
