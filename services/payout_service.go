package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/datingdna/datingdna_backend/models"
	"github.com/datingdna/datingdna_backend/repositories"
)

// PayoutMailer delivers the exported payment instructions to finance.
// Implemented by utils.SMTPMailer; nil disables export emails.
type PayoutMailer interface {
	SendPayoutExport(payout *models.Payout, rows []models.PaymentInstruction) error
}

// PayoutService batches locked commissions into payouts and advances payout
// settlement status.
type PayoutService struct {
	commissions repositories.CommissionRepository
	payouts     repositories.PayoutRepository
	partners    repositories.PartnerRepository
	mailer      PayoutMailer
	notifier    ActivityNotifier
}

// NewPayoutService wires the batcher over its repositories. Mailer and
// notifier may be nil.
func NewPayoutService(commissions repositories.CommissionRepository, payouts repositories.PayoutRepository, partners repositories.PartnerRepository, mailer PayoutMailer, notifier ActivityNotifier) *PayoutService {
	return &PayoutService{
		commissions: commissions,
		payouts:     payouts,
		partners:    partners,
		mailer:      mailer,
		notifier:    notifier,
	}
}

// CreatePayout claims every commission locked within the period into a new
// draft payout, one item per partner. The claim is a per-commission
// compare-and-swap from locked to queued_for_payout, so two concurrent calls
// can never both take the same commission; one of them simply sees it skip.
func (s *PayoutService) CreatePayout(ctx context.Context, periodStart, periodEnd time.Time) (*models.PayoutBundle, error) {
	candidates, err := s.commissions.FindLockedInPeriod(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	claimed := make([]models.Commission, 0, len(candidates))
	for _, commission := range candidates {
		ok, err := s.commissions.Transition(ctx, commission.ID,
			[]string{models.CommissionStatusLocked}, models.CommissionStatusQueuedForPayout)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Claimed by a concurrent payout, or voided by a refund that
			// landed between selection and claim. Exclude and move on.
			log.Printf("commission %s lost to a concurrent claim, excluding", commission.ID.Hex())
			continue
		}
		claimed = append(claimed, commission)
	}

	if len(claimed) == 0 {
		return nil, ErrNoEligibleCommissions
	}

	payout := &models.Payout{
		ID:          primitive.NewObjectID(),
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		Status:      models.PayoutStatusDraft,
	}

	byPartner := map[string][]models.Commission{}
	for _, commission := range claimed {
		byPartner[commission.PartnerCode] = append(byPartner[commission.PartnerCode], commission)
		payout.TotalCents += commission.CommissionCents
	}

	codes := make([]string, 0, len(byPartner))
	for code := range byPartner {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	items := make([]models.PayoutItem, 0, len(codes))
	for _, code := range codes {
		item := models.PayoutItem{
			PayoutID:    payout.ID,
			PartnerCode: code,
		}
		for _, commission := range byPartner[code] {
			item.CommissionIDs = append(item.CommissionIDs, commission.ID)
			item.AmountCents += commission.CommissionCents
		}
		items = append(items, item)
	}

	if err := s.payouts.InsertPayout(ctx, payout); err != nil {
		return nil, fmt.Errorf("claimed %d commissions but failed to persist payout: %w", len(claimed), err)
	}
	if err := s.payouts.InsertItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to persist payout items: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Broadcast("payout_created", fmt.Sprintf("Payout of %d cents across %d partners", payout.TotalCents, len(items)), payout)
	}

	return &models.PayoutBundle{Payout: *payout, Items: items}, nil
}

// ExportPayout produces the per-partner payment instructions and moves the
// payout to exported. Re-exporting is permitted and never re-mutates
// commission state; a failed partner lookup degrades that row rather than
// aborting the batch.
func (s *PayoutService) ExportPayout(ctx context.Context, payoutID primitive.ObjectID) (*models.Payout, []models.PaymentInstruction, error) {
	payout, err := s.payouts.FindPayoutByID(ctx, payoutID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := s.payouts.FindItemsByPayoutID(ctx, payoutID)
	if err != nil {
		return nil, nil, err
	}

	rows := make([]models.PaymentInstruction, 0, len(items))
	for _, item := range items {
		row := models.PaymentInstruction{
			PartnerCode: item.PartnerCode,
			AmountCents: item.AmountCents,
			Currency:    "usd",
		}
		partner, err := s.partners.FindByCode(ctx, item.PartnerCode)
		if err != nil {
			log.Printf("partner lookup failed for %s during export: %v", item.PartnerCode, err)
			row.Note = "partner record unavailable"
		} else {
			row.PartnerName = partner.Name
			row.Email = partner.Email
			row.PayoutMethod = partner.PayoutMethod
		}
		rows = append(rows, row)
	}

	if payout.Status == models.PayoutStatusDraft {
		now := time.Now()
		if _, err := s.payouts.TransitionStatus(ctx, payoutID,
			[]string{models.PayoutStatusDraft}, models.PayoutStatusExported, now); err != nil {
			return nil, nil, err
		}
		payout.Status = models.PayoutStatusExported
		payout.ExportedAt = &now

		if s.mailer != nil {
			if err := s.mailer.SendPayoutExport(payout, rows); err != nil {
				log.Printf("Failed to send payout export email: %v", err)
			}
		}
		if s.notifier != nil {
			s.notifier.Broadcast("payout_exported", fmt.Sprintf("Payout %s exported", payoutID.Hex()), payout)
		}
	}

	return payout, rows, nil
}

// MarkPaid finalizes the payout and every commission it covers. Export is
// not a precondition; a draft payout may be marked paid directly. Marking an
// already-paid payout again is a no-op.
func (s *PayoutService) MarkPaid(ctx context.Context, payoutID primitive.ObjectID) (*models.Payout, error) {
	payout, err := s.payouts.FindPayoutByID(ctx, payoutID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if payout.Status == models.PayoutStatusPaid {
		return payout, nil
	}

	now := time.Now()
	advanced, err := s.payouts.TransitionStatus(ctx, payoutID,
		[]string{models.PayoutStatusDraft, models.PayoutStatusExported}, models.PayoutStatusPaid, now)
	if err != nil {
		return nil, err
	}
	if !advanced {
		// Someone else finalized it concurrently.
		return s.payouts.FindPayoutByID(ctx, payoutID)
	}

	items, err := s.payouts.FindItemsByPayoutID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		for _, commissionID := range item.CommissionIDs {
			paid, err := s.commissions.MarkPaid(ctx, commissionID, payoutID, now)
			if err != nil {
				return nil, err
			}
			if !paid {
				// Voided after claiming (refund landed while queued); its
				// amount was part of the batch total but no money moves for it.
				log.Printf("commission %s in payout %s was not in queued status at payment time", commissionID.Hex(), payoutID.Hex())
			}
		}
	}

	payout.Status = models.PayoutStatusPaid
	payout.PaidAt = &now

	if s.notifier != nil {
		s.notifier.Broadcast("payout_paid", fmt.Sprintf("Payout %s marked paid", payoutID.Hex()), payout)
	}
	return payout, nil
}
